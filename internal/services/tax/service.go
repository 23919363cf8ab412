// Package tax owns the per-token tax configuration: TaxModel registry,
// taxable pair designations, wallet sell overrides, and router tier fees.
// Rate mutation from trades is staged by the settlement engine and applied
// here only after a settlement fully succeeds.
package tax

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/ccmlabs/ccm-router/internal/adapters/persistence"
	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/services"
	"github.com/ccmlabs/ccm-router/internal/services/ledger"
)

const TAX_SERVICE = "tax-service"

type Service struct {
	container.BaseDIInstance

	mu           sync.Mutex
	models       map[string]*domain.TaxModel
	overrides    map[string]*domain.WalletOverride
	taxablePairs map[common.Address]common.Address
	tiers        map[common.Address]domain.TierFeeRecord

	conf    *config.RouterConfig
	ledger  *ledger.Service
	storage *persistence.Service
	logger  *services.ServiceLogger
}

// New creates a tax service without DI wiring, for embedding in tests.
func New(conf *config.RouterConfig, led *ledger.Service) *Service {
	svc := &Service{conf: conf, ledger: led}
	svc.initMaps()
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) initMaps() {
	svc.models = make(map[string]*domain.TaxModel)
	svc.overrides = make(map[string]*domain.WalletOverride)
	svc.taxablePairs = make(map[common.Address]common.Address)
	svc.tiers = make(map[common.Address]domain.TierFeeRecord)
}

func (svc *Service) ID() string {
	return TAX_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	if svc.conf == nil {
		return errors.New("invalid router config")
	}
	svc.ledger = c.Instance(ledger.LEDGER_SERVICE).(*ledger.Service)
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

	models, err := store.LoadAllTaxModels()
	if err != nil {
		return err
	}
	for _, m := range models {
		svc.models[persistence.CompositeKey(m.Token, m.Currency)] = m
	}

	overrides, err := store.LoadAllWalletOverrides()
	if err != nil {
		return err
	}
	for token, list := range overrides {
		for _, o := range list {
			svc.overrides[persistence.CompositeKey(token, o.Wallet)] = o
		}
	}

	pairs, err := store.LoadAllTaxablePairs()
	if err != nil {
		return err
	}
	svc.taxablePairs = pairs

	tiers, err := store.LoadAllTierFees()
	if err != nil {
		return err
	}
	svc.tiers = tiers

	svc.logger.Info().
		Int("models", len(svc.models)).
		Int("taxable_pairs", len(svc.taxablePairs)).
		Msg("loaded tax configuration")
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

// SetTaxes configures the static base rates for (token, currency). Fee-owner
// only; rejected when buyBp + sellBp exceeds the configured per-currency
// maximum. The fee owner becomes the model's exempt address.
func (svc *Service) SetTaxes(caller, token, currency common.Address, buyBp, sellBp uint16, receiver common.Address) error {
	if !svc.ledger.IsFeeOwner(caller, token) {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}
	if int(buyBp)+int(sellBp) > int(svc.conf.MaxTotalTaxBp) {
		return routercommon.ErrInvalidTax("buy + sell tax exceeds allowed maximum")
	}
	if receiver == (common.Address{}) {
		return routercommon.ErrInvalidValue("receiver must not be zero")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	key := persistence.CompositeKey(token, currency)
	m, ok := svc.models[key]
	if !ok {
		m = &domain.TaxModel{Token: token, Currency: currency}
		svc.models[key] = m
	}

	m.Receiver = receiver
	m.Exempt = caller
	m.BuyBaseBp = buyBp
	m.SellBaseBp = sellBp
	if !m.Dynamic {
		m.BuyMinBp, m.BuyMaxBp = buyBp, buyBp
		m.SellMinBp, m.SellMaxBp = sellBp, sellBp
	}
	if err := m.Validate(); err != nil {
		return err
	}

	svc.ledger.SetClaimReceiver(token, currency, receiver)
	svc.persistModel(m)

	svc.logger.Info().
		Str("token", token.Hex()).
		Str("currency", currency.Hex()).
		Uint16("buy_bp", buyBp).
		Uint16("sell_bp", sellBp).
		Msg("taxes configured")
	return nil
}

// SetDynamicSellTax switches (token, currency) to impact-scaled sell rates.
func (svc *Service) SetDynamicSellTax(caller, token, currency common.Address, minBp, baseBp, maxBp uint16, resetAfter, escalationResetAfter time.Duration) error {
	if !svc.ledger.IsFeeOwner(caller, token) {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}
	if resetAfter < 0 || escalationResetAfter < 0 {
		return routercommon.ErrInvalidValue("reset durations must not be negative")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	key := persistence.CompositeKey(token, currency)
	m, ok := svc.models[key]
	if !ok {
		return routercommon.ErrInvalidTax("no tax model configured; call setTaxes first")
	}

	prev := *m
	m.Dynamic = true
	m.SellMinBp, m.SellBaseBp, m.SellMaxBp = minBp, baseBp, maxBp
	m.ResetAfter = resetAfter
	m.EscalationResetAfter = escalationResetAfter
	if err := m.Validate(); err != nil {
		*m = prev
		return err
	}

	svc.persistModel(m)
	return nil
}

// SetTaxablePair designates the single pair through which the token's taxes
// trigger. Traversal through any other pair for the same token is untaxed.
func (svc *Service) SetTaxablePair(caller, token, pair common.Address) error {
	if !svc.ledger.IsFeeOwner(caller, token) {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}
	if pair == (common.Address{}) {
		return routercommon.ErrInvalidValue("pair must not be zero")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.taxablePairs[token] = pair
	if store := svc.store(); store != nil {
		if err := store.SaveTaxablePair(token, pair); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist taxable pair")
		}
	}
	return nil
}

// TaxablePair returns the token's designated taxable pair, if any.
func (svc *Service) TaxablePair(token common.Address) (common.Address, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	pair, ok := svc.taxablePairs[token]
	return pair, ok
}

// TaxableThrough reports whether traversing the given pair taxes the token
// against the given settlement currency.
func (svc *Service) TaxableThrough(token, currency, pair common.Address) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	designated, ok := svc.taxablePairs[token]
	if !ok || designated != pair {
		return false
	}
	_, ok = svc.models[persistence.CompositeKey(token, currency)]
	return ok
}

// Model returns a copy of the tax model for (token, currency).
func (svc *Service) Model(token, currency common.Address) (*domain.TaxModel, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	m, ok := svc.models[persistence.CompositeKey(token, currency)]
	if !ok {
		return nil, false
	}
	copied := *m
	return &copied, true
}

// EvalBuy returns the effective buy rate for the payer at the trade time.
// Decay is applied eagerly; it is a pure function of recorded timestamps so
// applying it before an eventual abort changes nothing.
func (svc *Service) EvalBuy(token, currency, payer common.Address, now time.Time) uint16 {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	m, ok := svc.models[persistence.CompositeKey(token, currency)]
	if !ok || m.ExemptFor(payer) {
		return 0
	}
	m.Decay(now)
	return m.BuyRateBp()
}

// EvalSell returns the effective sell rate including any active wallet
// override, for a trade with the given price impact.
func (svc *Service) EvalSell(token, currency, payer common.Address, now time.Time, impactBp uint16) uint16 {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	m, ok := svc.models[persistence.CompositeKey(token, currency)]
	if !ok || m.ExemptFor(payer) {
		return 0
	}
	m.Decay(now)

	rate := uint32(m.SellRateBp(impactBp))
	if o, ok := svc.overrides[persistence.CompositeKey(token, payer)]; ok && o.Active(now) {
		rate += uint32(o.ExtraSellBp)
	}
	if rate > routercommon.BpsDenom {
		rate = routercommon.BpsDenom
	}
	return uint16(rate)
}

// TradeEvent is one taxed boundary crossing staged by the settlement engine.
type TradeEvent struct {
	Token     common.Address
	Currency  common.Address
	Direction domain.TaxDirection
	ImpactBp  uint16
	At        time.Time
}

// CommitTradeEvents applies staged escalation state after a settlement
// fully succeeded. An aborted settlement never calls this.
func (svc *Service) CommitTradeEvents(events []TradeEvent) {
	if len(events) == 0 {
		return
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	touched := make(map[string]*domain.TaxModel, len(events))
	for _, ev := range events {
		key := persistence.CompositeKey(ev.Token, ev.Currency)
		m, ok := svc.models[key]
		if !ok {
			continue
		}
		switch ev.Direction {
		case domain.TaxIn:
			m.RecordBuy(ev.At)
		case domain.TaxOut:
			m.RecordSell(ev.At, ev.ImpactBp)
		}
		touched[key] = m
	}
	for _, m := range touched {
		svc.persistModel(m)
	}
}

func (svc *Service) persistModel(m *domain.TaxModel) {
	if store := svc.store(); store != nil {
		if err := store.SaveTaxModel(m); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist tax model")
		}
	}
}
