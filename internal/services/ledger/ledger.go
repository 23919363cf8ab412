// Package ledger implements the fee ledger: per (token, currency) claimable
// balances, fee ownership, distribution receivers, auto-claim counters,
// router tier-fee earnings, and observable per-receiver payouts.
package ledger

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/ccmlabs/ccm-router/internal/adapters/persistence"
	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/metrics"
	"github.com/ccmlabs/ccm-router/internal/services"
)

const LEDGER_SERVICE = "ledger-service"

type Service struct {
	container.BaseDIInstance

	mu sync.Mutex

	claimables    map[string]*domain.ClaimableTaxBalance
	feeOwners     map[common.Address]domain.FeeOwnerRecord
	controllers   map[common.Address]common.Address
	distributions map[common.Address]*domain.TaxDistribution
	receivers     map[string]common.Address
	routerEarned  map[common.Address]*big.Int
	payouts       map[string]*big.Int
	totalClaimed  map[string]*big.Int

	conf    *config.RouterConfig
	storage *persistence.Service
	logger  *services.ServiceLogger
}

// New creates a ledger without DI wiring, for embedding in tests.
func New(conf *config.RouterConfig) *Service {
	svc := &Service{conf: conf}
	svc.initMaps()
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) initMaps() {
	svc.claimables = make(map[string]*domain.ClaimableTaxBalance)
	svc.feeOwners = make(map[common.Address]domain.FeeOwnerRecord)
	svc.controllers = make(map[common.Address]common.Address)
	svc.distributions = make(map[common.Address]*domain.TaxDistribution)
	svc.receivers = make(map[string]common.Address)
	svc.routerEarned = make(map[common.Address]*big.Int)
	svc.payouts = make(map[string]*big.Int)
	svc.totalClaimed = make(map[string]*big.Int)
}

func (svc *Service) ID() string {
	return LEDGER_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	if svc.conf == nil {
		return errors.New("invalid router config")
	}
	svc.storage = c.Instance(persistence.STORAGE_SERVICE).(*persistence.Service)
	svc.initMaps()
	svc.logger = services.NewServiceLogger(svc)
	return nil
}

func (svc *Service) Start() error {
	store := svc.store()
	if store == nil {
		return nil
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	balances, err := store.LoadAllClaimables()
	if err != nil {
		return err
	}
	for _, b := range balances {
		svc.claimables[persistence.CompositeKey(b.Token, b.Currency)] = b
	}

	owners, err := store.LoadAllFeeOwners()
	if err != nil {
		return err
	}
	svc.feeOwners = owners

	dists, err := store.LoadAllDistributions()
	if err != nil {
		return err
	}
	svc.distributions = dists

	receivers, err := store.LoadAllAddresses(persistence.ClaimReceiversBucket)
	if err != nil {
		return err
	}
	svc.receivers = receivers

	controllers, err := store.LoadAllAddresses(persistence.ControllersBucket)
	if err != nil {
		return err
	}
	for token, controller := range controllers {
		if common.IsHexAddress(token) {
			svc.controllers[common.HexToAddress(token)] = controller
		}
	}

	for bucket, target := range map[string]map[string]*big.Int{
		persistence.PayoutsBucket:      svc.payouts,
		persistence.TotalClaimedBucket: svc.totalClaimed,
	} {
		loaded, err := store.LoadAllBalances(bucket)
		if err != nil {
			return err
		}
		for k, v := range loaded {
			target[k] = v
		}
	}

	earned, err := store.LoadAllBalances(persistence.RouterEarnedBucket)
	if err != nil {
		return err
	}
	for currency, amount := range earned {
		if common.IsHexAddress(currency) {
			svc.routerEarned[common.HexToAddress(currency)] = amount
		}
	}

	svc.logger.Info().
		Int("claimables", len(svc.claimables)).
		Int("fee_owners", len(svc.feeOwners)).
		Msg("loaded ledger state")
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

func (svc *Service) store() *persistence.Storage {
	if svc.storage == nil {
		return nil
	}
	return svc.storage.Store()
}

// RegisterTokenController restricts who may claim a token's initial fee
// ownership. Router admin only.
func (svc *Service) RegisterTokenController(caller, token, controller common.Address) error {
	if caller != svc.conf.Admin {
		return routercommon.ErrNotAuthorized("only the router admin may register controllers")
	}
	if controller == (common.Address{}) {
		return routercommon.ErrInvalidValue("controller must not be zero")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.controllers[token] = controller
	if store := svc.store(); store != nil {
		if err := store.SaveAddress(persistence.ControllersBucket, strings.ToLower(token.Hex()), controller); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist controller")
		}
	}
	return nil
}

// ClaimInitialFeeOwnership makes the caller the token's fee owner. Succeeds
// exactly once per token; if a controller is registered for the token, only
// that controller may claim.
func (svc *Service) ClaimInitialFeeOwnership(caller, token common.Address) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if rec, ok := svc.feeOwners[token]; ok && rec.Initialized {
		return routercommon.ErrAlreadyInitialized("fee ownership already claimed")
	}
	if controller, ok := svc.controllers[token]; ok && controller != caller {
		return routercommon.ErrNotAuthorized("caller is not the token controller")
	}

	rec := domain.FeeOwnerRecord{Owner: caller, Initialized: true}
	svc.feeOwners[token] = rec
	svc.persistFeeOwner(token, rec)

	svc.logger.Info().Str("token", token.Hex()).Str("owner", caller.Hex()).Msg("fee ownership claimed")
	return nil
}

// TransferFeeOwnership hands a token's fee ownership to a new owner.
func (svc *Service) TransferFeeOwnership(caller, token, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return routercommon.ErrInvalidValue("new owner must not be zero")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	rec, ok := svc.feeOwners[token]
	if !ok || !rec.Initialized || rec.Owner != caller {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}

	rec.Owner = newOwner
	svc.feeOwners[token] = rec
	svc.persistFeeOwner(token, rec)
	return nil
}

// FeeOwner returns the token's fee owner record.
func (svc *Service) FeeOwner(token common.Address) (domain.FeeOwnerRecord, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	rec, ok := svc.feeOwners[token]
	return rec, ok
}

// IsFeeOwner reports whether the caller owns the token's fee configuration.
func (svc *Service) IsFeeOwner(caller, token common.Address) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	rec, ok := svc.feeOwners[token]
	return ok && rec.Initialized && rec.Owner == caller
}

// SetClaimReceiver records the default claim receiver for (token, currency),
// used when no three-way distribution is configured. Called by the tax
// service as part of setTaxes; authorization happens there.
func (svc *Service) SetClaimReceiver(token, currency, receiver common.Address) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	key := persistence.CompositeKey(token, currency)
	svc.receivers[key] = receiver
	if store := svc.store(); store != nil {
		if err := store.SaveAddress(persistence.ClaimReceiversBucket, key, receiver); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist claim receiver")
		}
	}
}

// SetAutoClaim configures the auto-claim trade interval; 0 disables it.
func (svc *Service) SetAutoClaim(caller, token, currency common.Address, everyN uint64) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	rec, ok := svc.feeOwners[token]
	if !ok || !rec.Initialized || rec.Owner != caller {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}

	b := svc.balanceLocked(token, currency)
	b.AutoClaimEveryN = everyN
	b.TradeCounter = 0
	svc.persistClaimable(b)
	return nil
}

// SetDistribution configures the three-way claim split for a token.
func (svc *Service) SetDistribution(caller, token common.Address, dist *domain.TaxDistribution) error {
	if err := dist.Validate(); err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	rec, ok := svc.feeOwners[token]
	if !ok || !rec.Initialized || rec.Owner != caller {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}

	copied := *dist
	svc.distributions[token] = &copied
	if store := svc.store(); store != nil {
		if err := store.SaveDistribution(token, &copied); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist distribution")
		}
	}
	return nil
}

// Distribution returns the configured split for a token, if any.
func (svc *Service) Distribution(token common.Address) (*domain.TaxDistribution, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	d, ok := svc.distributions[token]
	if !ok {
		return nil, false
	}
	copied := *d
	return &copied, true
}

// RecordTrade accrues one settled trade's withheld taxes and advances the
// auto-claim counter. The counter advances even when floor rounding leaves
// both amounts at zero: every taxed trade counts toward the cadence. Called
// by the settlement engine after all exchange segments succeeded; a
// settlement that aborts never reaches this point.
func (svc *Service) RecordTrade(token, currency common.Address, inTax, outTax *big.Int) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	b := svc.balanceLocked(token, currency)
	if inTax != nil && inTax.Sign() > 0 {
		b.InAccrued.Add(b.InAccrued, inTax)
		metrics.TaxAccrued.WithLabelValues(string(domain.TaxIn)).Inc()
	}
	if outTax != nil && outTax.Sign() > 0 {
		b.OutAccrued.Add(b.OutAccrued, outTax)
		metrics.TaxAccrued.WithLabelValues(string(domain.TaxOut)).Inc()
	}

	b.TradeCounter++
	if b.AutoClaimEveryN > 0 && b.TradeCounter%b.AutoClaimEveryN == 0 {
		if svc.distributeLocked(b) {
			metrics.AutoClaims.Inc()
		}
	}
	svc.persistClaimable(b)
}

// Claim distributes the current claimable balance immediately, regardless
// of the auto-claim counter.
func (svc *Service) Claim(caller, token, currency common.Address) (*big.Int, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	rec, ok := svc.feeOwners[token]
	if !ok || !rec.Initialized || rec.Owner != caller {
		return nil, routercommon.ErrNotAuthorized("caller is not the fee owner")
	}

	b := svc.balanceLocked(token, currency)
	total := b.Total()
	if total.Sign() == 0 {
		return new(big.Int), nil
	}
	if !svc.distributeLocked(b) {
		return nil, routercommon.ErrInvalidValue("no claim receiver configured")
	}
	svc.persistClaimable(b)
	metrics.ManualClaims.Inc()
	return total, nil
}

// CreditRouterEarned adds tier fees or tier deposits to the router's own
// earnings in the given currency.
func (svc *Service) CreditRouterEarned(currency common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	earned, ok := svc.routerEarned[currency]
	if !ok {
		earned = new(big.Int)
		svc.routerEarned[currency] = earned
	}
	earned.Add(earned, amount)

	if store := svc.store(); store != nil {
		if err := store.SaveBalance(persistence.RouterEarnedBucket, strings.ToLower(currency.Hex()), earned); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist router earnings")
		}
	}
}

// WithdrawRouterTaxes pays out the router's accrued earnings in a currency.
// Router admin only.
func (svc *Service) WithdrawRouterTaxes(caller, currency, to common.Address) (*big.Int, error) {
	if caller != svc.conf.Admin {
		return nil, routercommon.ErrNotAuthorized("only the router admin may withdraw")
	}
	if to == (common.Address{}) {
		return nil, routercommon.ErrInvalidValue("receiver must not be zero")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	earned, ok := svc.routerEarned[currency]
	if !ok || earned.Sign() == 0 {
		return new(big.Int), nil
	}

	amount := new(big.Int).Set(earned)
	earned.SetInt64(0)
	svc.creditPayoutLocked(to, currency, amount)

	if store := svc.store(); store != nil {
		if err := store.SaveBalance(persistence.RouterEarnedBucket, strings.ToLower(currency.Hex()), earned); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist router earnings")
		}
	}
	metrics.RouterTaxWithdrawals.Inc()
	return amount, nil
}

// Claimable returns a copy of the claimable balance for (token, currency).
func (svc *Service) Claimable(token, currency common.Address) *domain.ClaimableTaxBalance {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	b := svc.balanceLocked(token, currency)
	return &domain.ClaimableTaxBalance{
		Token:           b.Token,
		Currency:        b.Currency,
		InAccrued:       new(big.Int).Set(b.InAccrued),
		OutAccrued:      new(big.Int).Set(b.OutAccrued),
		TradeCounter:    b.TradeCounter,
		AutoClaimEveryN: b.AutoClaimEveryN,
	}
}

// RouterEarned returns the router's accrued earnings in a currency.
func (svc *Service) RouterEarned(currency common.Address) *big.Int {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if earned, ok := svc.routerEarned[currency]; ok {
		return new(big.Int).Set(earned)
	}
	return new(big.Int)
}

// Payout returns the observable payout balance credited to a receiver.
func (svc *Service) Payout(receiver, currency common.Address) *big.Int {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if p, ok := svc.payouts[persistence.CompositeKey(receiver, currency)]; ok {
		return new(big.Int).Set(p)
	}
	return new(big.Int)
}

// TotalClaimed returns the lifetime claimed total for (token, currency).
func (svc *Service) TotalClaimed(token, currency common.Address) *big.Int {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if t, ok := svc.totalClaimed[persistence.CompositeKey(token, currency)]; ok {
		return new(big.Int).Set(t)
	}
	return new(big.Int)
}

func (svc *Service) balanceLocked(token, currency common.Address) *domain.ClaimableTaxBalance {
	key := persistence.CompositeKey(token, currency)
	b, ok := svc.claimables[key]
	if !ok {
		b = &domain.ClaimableTaxBalance{
			Token:           token,
			Currency:        currency,
			InAccrued:       new(big.Int),
			OutAccrued:      new(big.Int),
			AutoClaimEveryN: svc.conf.DefaultAutoClaimEveryN,
		}
		svc.claimables[key] = b
	}
	return b
}

// distributeLocked pays out the full claimable balance and zeroes it.
// Returns false when no receiver can be resolved; the balance then keeps
// accruing untouched.
func (svc *Service) distributeLocked(b *domain.ClaimableTaxBalance) bool {
	total := b.Total()
	if total.Sign() == 0 {
		return true
	}

	if dist, ok := svc.distributions[b.Token]; ok {
		denom := big.NewInt(routercommon.DistributionDenom)
		payB := new(big.Int).Mul(total, big.NewInt(int64(dist.ShareB)))
		payB.Div(payB, denom)
		payC := new(big.Int).Mul(total, big.NewInt(int64(dist.ShareC)))
		payC.Div(payC, denom)
		// remainder goes to receiverA so distribution conserves to the unit
		payA := new(big.Int).Sub(total, payB)
		payA.Sub(payA, payC)

		svc.creditPayoutLocked(dist.ReceiverA, b.Currency, payA)
		svc.creditPayoutLocked(dist.ReceiverB, b.Currency, payB)
		svc.creditPayoutLocked(dist.ReceiverC, b.Currency, payC)
	} else if receiver, ok := svc.receivers[persistence.CompositeKey(b.Token, b.Currency)]; ok && receiver != (common.Address{}) {
		svc.creditPayoutLocked(receiver, b.Currency, total)
	} else if rec, ok := svc.feeOwners[b.Token]; ok && rec.Initialized {
		svc.creditPayoutLocked(rec.Owner, b.Currency, total)
	} else {
		return false
	}

	b.InAccrued.SetInt64(0)
	b.OutAccrued.SetInt64(0)

	key := persistence.CompositeKey(b.Token, b.Currency)
	claimed, ok := svc.totalClaimed[key]
	if !ok {
		claimed = new(big.Int)
		svc.totalClaimed[key] = claimed
	}
	claimed.Add(claimed, total)
	if store := svc.store(); store != nil {
		if err := store.SaveBalance(persistence.TotalClaimedBucket, key, claimed); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist claimed total")
		}
	}
	return true
}

func (svc *Service) creditPayoutLocked(receiver, currency common.Address, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}

	key := persistence.CompositeKey(receiver, currency)
	p, ok := svc.payouts[key]
	if !ok {
		p = new(big.Int)
		svc.payouts[key] = p
	}
	p.Add(p, amount)

	if store := svc.store(); store != nil {
		if err := store.SaveBalance(persistence.PayoutsBucket, key, p); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist payout")
		}
	}
}

func (svc *Service) persistClaimable(b *domain.ClaimableTaxBalance) {
	if store := svc.store(); store != nil {
		if err := store.SaveClaimable(b); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist claimable balance")
		}
	}
}

func (svc *Service) persistFeeOwner(token common.Address, rec domain.FeeOwnerRecord) {
	if store := svc.store(); store != nil {
		if err := store.SaveFeeOwner(token, rec); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist fee owner")
		}
	}
}
