package router

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	container "github.com/thehyperflames/dicontainer-go"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/metrics"
	"github.com/ccmlabs/ccm-router/internal/services"
	"github.com/ccmlabs/ccm-router/internal/services/exchange"
	"github.com/ccmlabs/ccm-router/internal/services/ledger"
	"github.com/ccmlabs/ccm-router/internal/services/tax"
)

const SETTLEMENT_SERVICE = "settlement-service"

// Engine settles tax-aware multi-hop swaps. One non-reentrant mutex covers
// each whole settlement; all ledger and tax-state changes are staged and
// applied only after every exchange segment succeeded, so an abort at any
// point leaves no partial effects.
//
// State machine per settlement:
// Validating -> Segmenting -> Executing(segment i) -> Settled | Aborted.
type Engine struct {
	container.BaseDIInstance

	mu sync.Mutex

	exchange *exchange.Service
	taxes    *tax.Service
	ledger   *ledger.Service
	conf     *config.RouterConfig
	logger   *services.ServiceLogger

	now func() time.Time
}

// New creates an engine without DI wiring, for embedding in tests.
func New(conf *config.RouterConfig, ex *exchange.Service, tx *tax.Service, led *ledger.Service) *Engine {
	e := &Engine{
		conf:     conf,
		exchange: ex,
		taxes:    tx,
		ledger:   led,
		now:      time.Now,
	}
	e.logger = services.NewServiceLogger(e)
	return e
}

func (e *Engine) ID() string {
	return SETTLEMENT_SERVICE
}

func (e *Engine) Configure(c container.IContainer) error {
	e.conf = c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	if e.conf == nil {
		return errors.New("invalid router config")
	}
	e.exchange = c.Instance(exchange.EXCHANGE_SERVICE).(*exchange.Service)
	e.taxes = c.Instance(tax.TAX_SERVICE).(*tax.Service)
	e.ledger = c.Instance(ledger.LEDGER_SERVICE).(*ledger.Service)
	e.logger = services.NewServiceLogger(e)
	e.now = time.Now
	return nil
}

func (e *Engine) Start() error {
	e.logger.Info().Str("native", e.conf.Native.Hex()).Msg("settlement engine ready")
	return nil
}

func (e *Engine) Stop() error {
	return nil
}

// SwapExactTokensForTokens settles an exact-input token-to-token swap.
func (e *Engine) SwapExactTokensForTokens(ctx context.Context, payer common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error) {
	req := &domain.SwapRequest{
		Payer: payer, Recipient: to, Path: path,
		Mode: domain.ExactIn, Amount: amountIn, Limit: amountOutMin, Deadline: deadline,
	}
	return e.settle(ctx, req, "exactTokensForTokens")
}

// SwapTokensForExactTokens settles an exact-output token-to-token swap.
func (e *Engine) SwapTokensForExactTokens(ctx context.Context, payer common.Address, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error) {
	req := &domain.SwapRequest{
		Payer: payer, Recipient: to, Path: path,
		Mode: domain.ExactOut, Amount: amountOut, Limit: amountInMax, Deadline: deadline,
	}
	return e.settle(ctx, req, "tokensForExactTokens")
}

// SwapExactNativeForTokens settles an exact-input swap funded by native
// value; the path must start at the wrapped-native token.
func (e *Engine) SwapExactNativeForTokens(ctx context.Context, payer common.Address, value, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error) {
	if len(path) == 0 || path[0] != e.conf.Native {
		return nil, routercommon.ErrInvalidValue("path must start at the native token")
	}
	req := &domain.SwapRequest{
		Payer: payer, Recipient: to, Path: path,
		Mode: domain.ExactIn, Amount: value, Limit: amountOutMin, Deadline: deadline,
		NativeIn: true,
	}
	return e.settle(ctx, req, "exactNativeForTokens")
}

// SwapNativeForExactTokens settles an exact-output swap funded by native
// value; the sent value bounds the input.
func (e *Engine) SwapNativeForExactTokens(ctx context.Context, payer common.Address, amountOut, value *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error) {
	if len(path) == 0 || path[0] != e.conf.Native {
		return nil, routercommon.ErrInvalidValue("path must start at the native token")
	}
	req := &domain.SwapRequest{
		Payer: payer, Recipient: to, Path: path,
		Mode: domain.ExactOut, Amount: amountOut, Limit: value, Deadline: deadline,
		NativeIn: true,
	}
	return e.settle(ctx, req, "nativeForExactTokens")
}

// SwapExactTokensForNative settles an exact-input swap delivering native
// value; the path must end at the wrapped-native token.
func (e *Engine) SwapExactTokensForNative(ctx context.Context, payer common.Address, amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error) {
	if len(path) == 0 || path[len(path)-1] != e.conf.Native {
		return nil, routercommon.ErrInvalidValue("path must end at the native token")
	}
	req := &domain.SwapRequest{
		Payer: payer, Recipient: to, Path: path,
		Mode: domain.ExactIn, Amount: amountIn, Limit: amountOutMin, Deadline: deadline,
		NativeOut: true,
	}
	return e.settle(ctx, req, "exactTokensForNative")
}

// SwapTokensForExactNative settles an exact-output swap delivering native
// value.
func (e *Engine) SwapTokensForExactNative(ctx context.Context, payer common.Address, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error) {
	if len(path) == 0 || path[len(path)-1] != e.conf.Native {
		return nil, routercommon.ErrInvalidValue("path must end at the native token")
	}
	req := &domain.SwapRequest{
		Payer: payer, Recipient: to, Path: path,
		Mode: domain.ExactOut, Amount: amountOut, Limit: amountInMax, Deadline: deadline,
		NativeOut: true,
	}
	return e.settle(ctx, req, "tokensForExactNative")
}

// Quote runs the full settlement pipeline against a throwaway session and
// reports the tax-aware amounts without committing anything.
func (e *Engine) Quote(ctx context.Context, payer common.Address, path []common.Address, mode domain.SwapMode, amount *big.Int) (*domain.SwapResult, error) {
	req := &domain.SwapRequest{
		Payer: payer, Recipient: payer, Path: path,
		Mode: mode, Amount: amount,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(ctx, req); err != nil {
		return nil, err
	}

	segments := SplitPath(req.Path, e.exchange.PairFor, e.taxes.TaxableThrough)
	sess := e.exchange.Begin()

	amountIn := req.Amount
	if req.Mode == domain.ExactOut {
		required, err := e.requiredInput(sess, segments, req)
		if err != nil {
			return nil, err
		}
		amountIn = required
	}

	result, _, err := e.execute(sess, req, segments, amountIn)
	return result, err
}

func (e *Engine) settle(ctx context.Context, req *domain.SwapRequest, shape string) (*domain.SwapResult, error) {
	start := time.Now()
	req.ID = uuid.New()

	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.settleLocked(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SwapRequests.WithLabelValues(shape, status).Inc()
	metrics.SwapDuration.WithLabelValues(shape).Observe(time.Since(start).Seconds())

	if err != nil {
		e.logger.Warn().
			Str("settlement_id", req.ID.String()).
			Str("shape", shape).
			Err(err).
			Msg("settlement aborted")
		return nil, err
	}

	e.logger.Info().
		Str("settlement_id", req.ID.String()).
		Str("shape", shape).
		Str("amount_in", result.AmountIn.String()).
		Str("amount_out", result.AmountOut.String()).
		Int("segments", result.SegmentCount).
		Msg("settlement complete")
	return result, nil
}

func (e *Engine) settleLocked(ctx context.Context, req *domain.SwapRequest) (*domain.SwapResult, error) {
	// Validating
	if err := e.validate(ctx, req); err != nil {
		return nil, err
	}

	// Segmenting
	segments := SplitPath(req.Path, e.exchange.PairFor, e.taxes.TaxableThrough)
	metrics.SegmentsPerSettlement.Observe(float64(len(segments)))

	sess := e.exchange.Begin()

	amountIn := req.Amount
	if req.Mode == domain.ExactOut {
		required, err := e.requiredInput(sess, segments, req)
		if err != nil {
			return nil, err
		}
		if req.Limit != nil && req.Limit.Sign() > 0 && required.Cmp(req.Limit) > 0 {
			return nil, routercommon.ErrSlippage("required input exceeds caller maximum")
		}
		amountIn = required
	}

	// Executing
	result, staged, err := e.execute(sess, req, segments, amountIn)
	if err != nil {
		return nil, err
	}

	if req.Mode == domain.ExactIn {
		if req.Limit != nil && req.Limit.Sign() > 0 && result.AmountOut.Cmp(req.Limit) < 0 {
			return nil, routercommon.ErrSlippage("")
		}
	} else if result.AmountOut.Cmp(req.Amount) < 0 {
		return nil, routercommon.ErrSlippage("output short of requested amount")
	}

	// Settled: publish reserves, then ledger and tax state
	sess.Commit()
	staged.apply(e)
	result.ID = req.ID
	return result, nil
}

func (e *Engine) validate(ctx context.Context, req *domain.SwapRequest) error {
	if err := ctx.Err(); err != nil {
		return routercommon.ErrDeadlineExpired("context cancelled")
	}
	if !req.Deadline.IsZero() && e.now().After(req.Deadline) {
		return routercommon.ErrDeadlineExpired("")
	}
	if len(req.Path) < 2 {
		return routercommon.ErrInvalidValue("path must contain at least two tokens")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return routercommon.ErrInvalidValue("amount must be positive")
	}
	// pricing math runs on 256-bit integers; wider amounts would wrap
	if req.Amount.BitLen() > 256 {
		return routercommon.ErrInvalidValue("amount exceeds 256 bits")
	}
	if req.Limit != nil && req.Limit.Sign() < 0 {
		return routercommon.ErrInvalidValue("bound must not be negative")
	}
	if req.Limit != nil && req.Limit.BitLen() > 256 {
		return routercommon.ErrInvalidValue("bound exceeds 256 bits")
	}
	if req.Recipient == (common.Address{}) {
		return routercommon.ErrInvalidValue("recipient must not be zero")
	}
	return nil
}

// changeset stages every ledger and tax mutation of one settlement.
type changeset struct {
	accruals map[string]*pendingAccrual
	order    []string
	tierFees map[common.Address]*big.Int
	events   []tax.TradeEvent
}

type pendingAccrual struct {
	token    common.Address
	currency common.Address
	in       *big.Int
	out      *big.Int
}

func newChangeset() *changeset {
	return &changeset{
		accruals: make(map[string]*pendingAccrual),
		tierFees: make(map[common.Address]*big.Int),
	}
}

func (cs *changeset) accrue(token, currency common.Address, dir domain.TaxDirection, amount *big.Int) {
	key := token.Hex() + "|" + currency.Hex()
	acc, ok := cs.accruals[key]
	if !ok {
		acc = &pendingAccrual{token: token, currency: currency, in: new(big.Int), out: new(big.Int)}
		cs.accruals[key] = acc
		cs.order = append(cs.order, key)
	}
	if dir == domain.TaxIn {
		acc.in.Add(acc.in, amount)
	} else {
		acc.out.Add(acc.out, amount)
	}
}

func (cs *changeset) addTierFee(currency common.Address, amount *big.Int) {
	fee, ok := cs.tierFees[currency]
	if !ok {
		fee = new(big.Int)
		cs.tierFees[currency] = fee
	}
	fee.Add(fee, amount)
}

func (cs *changeset) apply(e *Engine) {
	for _, key := range cs.order {
		acc := cs.accruals[key]
		e.ledger.RecordTrade(acc.token, acc.currency, acc.in, acc.out)
	}
	for currency, fee := range cs.tierFees {
		e.ledger.CreditRouterEarned(currency, fee)
	}
	e.taxes.CommitTradeEvents(cs.events)
}

// execute runs the segments in path order on the session, withholding taxes
// at every boundary. Nothing outside the session and changeset is touched.
func (e *Engine) execute(sess *exchange.Session, req *domain.SwapRequest, segments []Segment, amountIn *big.Int) (*domain.SwapResult, *changeset, error) {
	now := e.now()
	staged := newChangeset()
	result := &domain.SwapResult{
		AmountIn:     new(big.Int).Set(amountIn),
		Route:        req.Path,
		SegmentCount: len(segments),
		TierFees:     new(big.Int),
	}

	carry := new(big.Int).Set(amountIn)
	for _, seg := range segments {
		if seg.Entry != nil {
			buyBp := e.taxes.EvalBuy(seg.Entry.Token, seg.Entry.Currency, req.Payer, now)
			tierBp := e.taxes.TierBp(seg.Entry.Token)

			taxAmt := ApplyBps(carry, buyBp)
			tierAmt := ApplyBps(carry, tierBp)
			carry.Sub(carry, taxAmt)
			carry.Sub(carry, tierAmt)
			if carry.Sign() <= 0 {
				return nil, nil, routercommon.ErrInvalidValue("input consumed entirely by taxes")
			}

			e.chargeTax(result, staged, seg.Entry, domain.TaxIn, buyBp, taxAmt, tierAmt, now, 0)
		}

		var currencyReserveBefore *big.Int
		if seg.Exit != nil {
			last := len(seg.Path) - 1
			_, rOut, err := sess.Reserves(seg.Path[last-1], seg.Path[last])
			if err != nil {
				return nil, nil, err
			}
			currencyReserveBefore = rOut
		}

		out, err := sess.SwapExactIn(carry, seg.Path)
		if err != nil {
			return nil, nil, err
		}

		if seg.Exit != nil {
			impactBp := ImpactBps(out, currencyReserveBefore)
			metrics.PriceImpact.WithLabelValues(impactSeverity(impactBp)).Observe(float64(impactBp))

			sellBp := e.taxes.EvalSell(seg.Exit.Token, seg.Exit.Currency, req.Payer, now, impactBp)
			tierBp := e.taxes.TierBp(seg.Exit.Token)

			taxAmt := ApplyBps(out, sellBp)
			tierAmt := ApplyBps(out, tierBp)
			out.Sub(out, taxAmt)
			out.Sub(out, tierAmt)
			if out.Sign() <= 0 {
				return nil, nil, routercommon.ErrSlippage("output consumed entirely by taxes")
			}

			e.chargeTax(result, staged, seg.Exit, domain.TaxOut, sellBp, taxAmt, tierAmt, now, impactBp)
		}

		carry = out
	}

	result.AmountOut = carry
	return result, staged, nil
}

func (e *Engine) chargeTax(result *domain.SwapResult, staged *changeset, point *TaxPoint, dir domain.TaxDirection, rateBp uint16, taxAmt, tierAmt *big.Int, now time.Time, impactBp uint16) {
	if taxAmt.Sign() > 0 || rateBp > 0 {
		staged.accrue(point.Token, point.Currency, dir, taxAmt)
		result.Taxes = append(result.Taxes, domain.TaxCharge{
			Token:     point.Token,
			Currency:  point.Currency,
			Direction: dir,
			RateBp:    rateBp,
			Amount:    taxAmt,
		})
	}
	staged.events = append(staged.events, tax.TradeEvent{
		Token:     point.Token,
		Currency:  point.Currency,
		Direction: dir,
		ImpactBp:  impactBp,
		At:        now,
	})
	if tierAmt.Sign() > 0 {
		staged.addTierFee(point.Currency, tierAmt)
		result.TierFees.Add(result.TierFees, tierAmt)
		metrics.TierFeesCollected.Inc()
	}
}

// requiredInput propagates an exact-output request backward: gross up for
// exit taxes, invert the exchange pricing per segment, gross up for entry
// taxes. Dynamic escalation is estimated at zero impact; the forward pass
// still enforces the requested output as a hard minimum.
func (e *Engine) requiredInput(sess *exchange.Session, segments []Segment, req *domain.SwapRequest) (*big.Int, error) {
	now := e.now()
	need := new(big.Int).Set(req.Amount)

	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]

		if seg.Exit != nil {
			sellBp := e.taxes.EvalSell(seg.Exit.Token, seg.Exit.Currency, req.Payer, now, 0)
			totalBp := int(sellBp) + int(e.taxes.TierBp(seg.Exit.Token))
			grossed, err := grossUpChecked(need, totalBp)
			if err != nil {
				return nil, err
			}
			need = grossed
		}

		amounts, err := sess.AmountsIn(need, seg.Path)
		if err != nil {
			return nil, err
		}
		need = amounts[0]

		if seg.Entry != nil {
			buyBp := e.taxes.EvalBuy(seg.Entry.Token, seg.Entry.Currency, req.Payer, now)
			totalBp := int(buyBp) + int(e.taxes.TierBp(seg.Entry.Token))
			grossed, err := grossUpChecked(need, totalBp)
			if err != nil {
				return nil, err
			}
			need = grossed
		}
	}
	return need, nil
}

func grossUpChecked(net *big.Int, totalBp int) (*big.Int, error) {
	if totalBp >= routercommon.BpsDenom {
		return nil, routercommon.ErrInvalidTax("combined rate leaves no output")
	}
	return GrossUpBps(net, uint16(totalBp))
}
