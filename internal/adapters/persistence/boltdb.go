package persistence

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/ccmlabs/ccm-router/internal/domain"
)

const (
	PairsBucket           = "pairs"
	TaxModelsBucket       = "tax_models"
	TaxablePairsBucket    = "taxable_pairs"
	WalletOverridesBucket = "wallet_overrides"
	TierFeesBucket        = "tier_fees"
	FeeOwnersBucket       = "fee_owners"
	DistributionsBucket   = "distributions"
	ClaimablesBucket      = "claimables"
	RouterEarnedBucket    = "router_earned"
	PayoutsBucket         = "payouts"
	TotalClaimedBucket    = "total_claimed"
	ClaimReceiversBucket  = "claim_receivers"
	ControllersBucket     = "controllers"

	DefaultDBPath = "./data/ccm-router.db"
)

// StoredPair is the persisted form of one exchange pair's reserves.
type StoredPair struct {
	Address  string `json:"address"`
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

type StoredTaxModel struct {
	Token                   string `json:"token"`
	Currency                string `json:"currency"`
	Receiver                string `json:"receiver"`
	Exempt                  string `json:"exempt,omitempty"`
	BuyBaseBp               uint16 `json:"buyBaseBp"`
	BuyMinBp                uint16 `json:"buyMinBp"`
	BuyMaxBp                uint16 `json:"buyMaxBp"`
	SellBaseBp              uint16 `json:"sellBaseBp"`
	SellMinBp               uint16 `json:"sellMinBp"`
	SellMaxBp               uint16 `json:"sellMaxBp"`
	Dynamic                 bool   `json:"dynamic"`
	ResetAfterSec           int64  `json:"resetAfterSec"`
	EscalationResetAfterSec int64  `json:"escalationResetAfterSec"`
	LastTradeAtUnix         int64  `json:"lastTradeAtUnix"`
	EscalationBp            uint32 `json:"escalationBp"`
	CumulativeImpactBp      uint32 `json:"cumulativeImpactBp"`
}

type StoredWalletOverride struct {
	Token       string `json:"token"`
	Wallet      string `json:"wallet"`
	ExtraSellBp uint16 `json:"extraSellBp"`
	ExpiryUnix  int64  `json:"expiryUnix"`
}

type StoredTierFee struct {
	Token  string `json:"token"`
	TierBp uint16 `json:"tierBp"`
	IsSet  bool   `json:"isSet"`
}

type StoredFeeOwner struct {
	Token       string `json:"token"`
	Owner       string `json:"owner"`
	Initialized bool   `json:"initialized"`
}

type StoredDistribution struct {
	Token     string `json:"token"`
	ReceiverA string `json:"receiverA"`
	ReceiverB string `json:"receiverB"`
	ReceiverC string `json:"receiverC"`
	ShareA    uint16 `json:"shareA"`
	ShareB    uint16 `json:"shareB"`
	ShareC    uint16 `json:"shareC"`
}

type StoredClaimable struct {
	Token           string `json:"token"`
	Currency        string `json:"currency"`
	InAccrued       string `json:"inAccrued"`
	OutAccrued      string `json:"outAccrued"`
	TradeCounter    uint64 `json:"tradeCounter"`
	AutoClaimEveryN uint64 `json:"autoClaimEveryN"`
}

// StoredBalance persists a single amount keyed by the bucket-specific key.
type StoredBalance struct {
	Amount string `json:"amount"`
}

type Storage struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	os.MkdirAll(filepath.Dir(dbPath), 0755)

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[routerStorage] opened database")

	return &Storage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CompositeKey joins a token and currency into one bucket key.
func CompositeKey(token, currency common.Address) string {
	return strings.ToLower(token.Hex()) + "|" + strings.ToLower(currency.Hex())
}

// SplitCompositeKey is the inverse of CompositeKey.
func SplitCompositeKey(key string) (common.Address, common.Address, error) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid composite key %q", key)
	}
	return common.HexToAddress(parts[0]), common.HexToAddress(parts[1]), nil
}

func (s *Storage) put(bucket, key string, v interface{}) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", bucket, err)
	}
	return s.db.Set(bucket, []byte(key), data)
}

func (s *Storage) SavePair(p *StoredPair) error {
	return s.put(PairsBucket, strings.ToLower(p.Address), p)
}

func (s *Storage) LoadAllPairs() ([]*StoredPair, error) {
	data, err := s.db.List(PairsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}

	pairs := make([]*StoredPair, 0, len(data))
	for address, value := range data {
		var stored StoredPair
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("address", address).Err(err).Msg("[routerStorage] failed to unmarshal pair, skipping")
			continue
		}
		pairs = append(pairs, &stored)
	}
	return pairs, nil
}

func (s *Storage) SaveTaxModel(m *domain.TaxModel) error {
	stored := taxModelToStored(m)
	return s.put(TaxModelsBucket, CompositeKey(m.Token, m.Currency), stored)
}

func (s *Storage) LoadAllTaxModels() ([]*domain.TaxModel, error) {
	data, err := s.db.List(TaxModelsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list tax models: %w", err)
	}

	models := make([]*domain.TaxModel, 0, len(data))
	for key, value := range data {
		var stored StoredTaxModel
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal tax model, skipping")
			continue
		}
		models = append(models, storedToTaxModel(&stored))
	}
	return models, nil
}

func (s *Storage) SaveTaxablePair(token, pair common.Address) error {
	return s.db.Set(TaxablePairsBucket, []byte(strings.ToLower(token.Hex())), []byte(strings.ToLower(pair.Hex())))
}

func (s *Storage) LoadAllTaxablePairs() (map[common.Address]common.Address, error) {
	data, err := s.db.List(TaxablePairsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list taxable pairs: %w", err)
	}

	pairs := make(map[common.Address]common.Address, len(data))
	for token, pair := range data {
		if !common.IsHexAddress(token) || !common.IsHexAddress(string(pair)) {
			log.Warn().Str("token", token).Msg("[routerStorage] invalid taxable pair entry, skipping")
			continue
		}
		pairs[common.HexToAddress(token)] = common.HexToAddress(string(pair))
	}
	return pairs, nil
}

func (s *Storage) SaveWalletOverride(token common.Address, o *domain.WalletOverride) error {
	stored := &StoredWalletOverride{
		Token:       strings.ToLower(token.Hex()),
		Wallet:      strings.ToLower(o.Wallet.Hex()),
		ExtraSellBp: o.ExtraSellBp,
		ExpiryUnix:  o.Expiry.Unix(),
	}
	return s.put(WalletOverridesBucket, CompositeKey(token, o.Wallet), stored)
}

func (s *Storage) LoadAllWalletOverrides() (map[common.Address][]*domain.WalletOverride, error) {
	data, err := s.db.List(WalletOverridesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet overrides: %w", err)
	}

	overrides := make(map[common.Address][]*domain.WalletOverride)
	for key, value := range data {
		var stored StoredWalletOverride
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal wallet override, skipping")
			continue
		}
		token := common.HexToAddress(stored.Token)
		overrides[token] = append(overrides[token], &domain.WalletOverride{
			Wallet:      common.HexToAddress(stored.Wallet),
			ExtraSellBp: stored.ExtraSellBp,
			Expiry:      time.Unix(stored.ExpiryUnix, 0),
		})
	}
	return overrides, nil
}

func (s *Storage) SaveTierFee(token common.Address, rec domain.TierFeeRecord) error {
	stored := &StoredTierFee{Token: strings.ToLower(token.Hex()), TierBp: rec.TierBp, IsSet: rec.IsSet}
	return s.put(TierFeesBucket, strings.ToLower(token.Hex()), stored)
}

func (s *Storage) LoadAllTierFees() (map[common.Address]domain.TierFeeRecord, error) {
	data, err := s.db.List(TierFeesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list tier fees: %w", err)
	}

	fees := make(map[common.Address]domain.TierFeeRecord, len(data))
	for key, value := range data {
		var stored StoredTierFee
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal tier fee, skipping")
			continue
		}
		fees[common.HexToAddress(stored.Token)] = domain.TierFeeRecord{TierBp: stored.TierBp, IsSet: stored.IsSet}
	}
	return fees, nil
}

func (s *Storage) SaveFeeOwner(token common.Address, rec domain.FeeOwnerRecord) error {
	stored := &StoredFeeOwner{
		Token:       strings.ToLower(token.Hex()),
		Owner:       strings.ToLower(rec.Owner.Hex()),
		Initialized: rec.Initialized,
	}
	return s.put(FeeOwnersBucket, strings.ToLower(token.Hex()), stored)
}

func (s *Storage) LoadAllFeeOwners() (map[common.Address]domain.FeeOwnerRecord, error) {
	data, err := s.db.List(FeeOwnersBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee owners: %w", err)
	}

	owners := make(map[common.Address]domain.FeeOwnerRecord, len(data))
	for key, value := range data {
		var stored StoredFeeOwner
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal fee owner, skipping")
			continue
		}
		owners[common.HexToAddress(stored.Token)] = domain.FeeOwnerRecord{
			Owner:       common.HexToAddress(stored.Owner),
			Initialized: stored.Initialized,
		}
	}
	return owners, nil
}

func (s *Storage) SaveDistribution(token common.Address, d *domain.TaxDistribution) error {
	stored := &StoredDistribution{
		Token:     strings.ToLower(token.Hex()),
		ReceiverA: strings.ToLower(d.ReceiverA.Hex()),
		ReceiverB: strings.ToLower(d.ReceiverB.Hex()),
		ReceiverC: strings.ToLower(d.ReceiverC.Hex()),
		ShareA:    d.ShareA,
		ShareB:    d.ShareB,
		ShareC:    d.ShareC,
	}
	return s.put(DistributionsBucket, strings.ToLower(token.Hex()), stored)
}

func (s *Storage) LoadAllDistributions() (map[common.Address]*domain.TaxDistribution, error) {
	data, err := s.db.List(DistributionsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}

	dists := make(map[common.Address]*domain.TaxDistribution, len(data))
	for key, value := range data {
		var stored StoredDistribution
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal distribution, skipping")
			continue
		}
		dists[common.HexToAddress(stored.Token)] = &domain.TaxDistribution{
			ReceiverA: common.HexToAddress(stored.ReceiverA),
			ReceiverB: common.HexToAddress(stored.ReceiverB),
			ReceiverC: common.HexToAddress(stored.ReceiverC),
			ShareA:    stored.ShareA,
			ShareB:    stored.ShareB,
			ShareC:    stored.ShareC,
		}
	}
	return dists, nil
}

func (s *Storage) SaveClaimable(b *domain.ClaimableTaxBalance) error {
	stored := &StoredClaimable{
		Token:           strings.ToLower(b.Token.Hex()),
		Currency:        strings.ToLower(b.Currency.Hex()),
		InAccrued:       b.InAccrued.String(),
		OutAccrued:      b.OutAccrued.String(),
		TradeCounter:    b.TradeCounter,
		AutoClaimEveryN: b.AutoClaimEveryN,
	}
	return s.put(ClaimablesBucket, CompositeKey(b.Token, b.Currency), stored)
}

func (s *Storage) LoadAllClaimables() ([]*domain.ClaimableTaxBalance, error) {
	data, err := s.db.List(ClaimablesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimables: %w", err)
	}

	balances := make([]*domain.ClaimableTaxBalance, 0, len(data))
	for key, value := range data {
		var stored StoredClaimable
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal claimable, skipping")
			continue
		}
		in, ok1 := new(big.Int).SetString(stored.InAccrued, 10)
		out, ok2 := new(big.Int).SetString(stored.OutAccrued, 10)
		if !ok1 || !ok2 {
			log.Error().Str("key", key).Msg("[routerStorage] invalid claimable amounts, skipping")
			continue
		}
		balances = append(balances, &domain.ClaimableTaxBalance{
			Token:           common.HexToAddress(stored.Token),
			Currency:        common.HexToAddress(stored.Currency),
			InAccrued:       in,
			OutAccrued:      out,
			TradeCounter:    stored.TradeCounter,
			AutoClaimEveryN: stored.AutoClaimEveryN,
		})
	}
	return balances, nil
}

// SaveAddress persists one address into the given address-map bucket
// (claim_receivers, controllers).
func (s *Storage) SaveAddress(bucket, key string, addr common.Address) error {
	return s.db.Set(bucket, []byte(key), []byte(strings.ToLower(addr.Hex())))
}

func (s *Storage) LoadAllAddresses(bucket string) (map[string]common.Address, error) {
	data, err := s.db.List(bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}

	addrs := make(map[string]common.Address, len(data))
	for key, value := range data {
		if !common.IsHexAddress(string(value)) {
			log.Warn().Str("bucket", bucket).Str("key", key).Msg("[routerStorage] invalid address entry, skipping")
			continue
		}
		addrs[key] = common.HexToAddress(string(value))
	}
	return addrs, nil
}

// SaveBalance persists one amount into the given balance bucket
// (router_earned, payouts, total_claimed).
func (s *Storage) SaveBalance(bucket, key string, amount *big.Int) error {
	return s.put(bucket, key, &StoredBalance{Amount: amount.String()})
}

func (s *Storage) LoadAllBalances(bucket string) (map[string]*big.Int, error) {
	data, err := s.db.List(bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}

	balances := make(map[string]*big.Int, len(data))
	for key, value := range data {
		var stored StoredBalance
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("bucket", bucket).Str("key", key).Err(err).Msg("[routerStorage] failed to unmarshal balance, skipping")
			continue
		}
		amount, ok := new(big.Int).SetString(stored.Amount, 10)
		if !ok {
			log.Warn().Str("bucket", bucket).Str("key", key).Msg("[routerStorage] invalid balance amount, skipping")
			continue
		}
		balances[key] = amount
	}
	return balances, nil
}

// SavePairBatch writes all pair reserves in one bolt transaction, used on
// shutdown snapshots.
func (s *Storage) SavePairBatch(pairs []*StoredPair) error {
	if len(pairs) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	for _, pair := range pairs {
		data, err := sonic.Marshal(pair)
		if err != nil {
			return fmt.Errorf("failed to marshal pair %s: %w", pair.Address, err)
		}

		value := data
		op := &boltdb.WriteOperation{
			Bucket: []byte(PairsBucket),
			Key:    []byte(strings.ToLower(pair.Address)),
			Value:  &value,
			Op:     boltdb.OpSet,
		}
		if err := batch.Add(op); err != nil {
			return fmt.Errorf("failed to add pair %s to batch: %w", pair.Address, err)
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", len(pairs)).Msg("[routerStorage] FAILED to execute pair batch")
		return err
	}

	log.Info().Int("count", len(pairs)).Msg("[routerStorage] saved pair batch")
	return nil
}

func taxModelToStored(m *domain.TaxModel) *StoredTaxModel {
	exempt := ""
	if m.Exempt != (common.Address{}) {
		exempt = strings.ToLower(m.Exempt.Hex())
	}
	lastTrade := int64(0)
	if !m.LastTradeAt.IsZero() {
		lastTrade = m.LastTradeAt.Unix()
	}
	return &StoredTaxModel{
		Token:                   strings.ToLower(m.Token.Hex()),
		Currency:                strings.ToLower(m.Currency.Hex()),
		Receiver:                strings.ToLower(m.Receiver.Hex()),
		Exempt:                  exempt,
		BuyBaseBp:               m.BuyBaseBp,
		BuyMinBp:                m.BuyMinBp,
		BuyMaxBp:                m.BuyMaxBp,
		SellBaseBp:              m.SellBaseBp,
		SellMinBp:               m.SellMinBp,
		SellMaxBp:               m.SellMaxBp,
		Dynamic:                 m.Dynamic,
		ResetAfterSec:           int64(m.ResetAfter / time.Second),
		EscalationResetAfterSec: int64(m.EscalationResetAfter / time.Second),
		LastTradeAtUnix:         lastTrade,
		EscalationBp:            m.EscalationBp,
		CumulativeImpactBp:      m.CumulativeImpactBp,
	}
}

func storedToTaxModel(stored *StoredTaxModel) *domain.TaxModel {
	m := &domain.TaxModel{
		Token:                common.HexToAddress(stored.Token),
		Currency:             common.HexToAddress(stored.Currency),
		Receiver:             common.HexToAddress(stored.Receiver),
		BuyBaseBp:            stored.BuyBaseBp,
		BuyMinBp:             stored.BuyMinBp,
		BuyMaxBp:             stored.BuyMaxBp,
		SellBaseBp:           stored.SellBaseBp,
		SellMinBp:            stored.SellMinBp,
		SellMaxBp:            stored.SellMaxBp,
		Dynamic:              stored.Dynamic,
		ResetAfter:           time.Duration(stored.ResetAfterSec) * time.Second,
		EscalationResetAfter: time.Duration(stored.EscalationResetAfterSec) * time.Second,
		EscalationBp:         stored.EscalationBp,
		CumulativeImpactBp:   stored.CumulativeImpactBp,
	}
	if stored.Exempt != "" {
		m.Exempt = common.HexToAddress(stored.Exempt)
	}
	if stored.LastTradeAtUnix > 0 {
		m.LastTradeAt = time.Unix(stored.LastTradeAtUnix, 0)
	}
	return m
}
