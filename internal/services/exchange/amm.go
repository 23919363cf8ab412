// Package exchange is the constant-product exchange boundary. The router
// only consumes pair lookup, reserve queries, the two pricing functions and
// a session-scoped swap primitive; this in-process implementation backs the
// reference deployment and the test suite.
package exchange

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/ccmlabs/ccm-router/internal/adapters/persistence"
	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/metrics"
	"github.com/ccmlabs/ccm-router/internal/services"
)

const EXCHANGE_SERVICE = "exchange-service"

type pairState struct {
	addr     common.Address
	token0   common.Address
	token1   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
}

func (p *pairState) clone() *pairState {
	return &pairState{
		addr:     p.addr,
		token0:   p.token0,
		token1:   p.token1,
		reserve0: new(big.Int).Set(p.reserve0),
		reserve1: new(big.Int).Set(p.reserve1),
	}
}

// reservesFor orients the pair's reserves from tokenIn's point of view.
func (p *pairState) reservesFor(tokenIn common.Address) (reserveIn, reserveOut *big.Int) {
	if tokenIn == p.token0 {
		return p.reserve0, p.reserve1
	}
	return p.reserve1, p.reserve0
}

// PairInfo is the externally visible view of one pair.
type PairInfo struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Service holds the exchange's pairs and reserves. All mutation during a
// settlement goes through a Session so an aborted settlement leaves the
// reserves untouched.
type Service struct {
	container.BaseDIInstance

	mu       sync.RWMutex
	pairs    map[common.Address]*pairState
	byTokens map[[2]common.Address]common.Address

	conf    *config.RouterConfig
	storage *persistence.Service
	logger  *services.ServiceLogger
}

// New creates an exchange service without DI wiring, for embedding in tests.
func New(conf *config.RouterConfig) *Service {
	svc := &Service{
		conf:     conf,
		pairs:    make(map[common.Address]*pairState),
		byTokens: make(map[[2]common.Address]common.Address),
	}
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return EXCHANGE_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.conf = c.GetConfig(config.ROUTER_CONFIG_KEY).(*config.RouterConfig)
	if svc.conf == nil {
		return errors.New("invalid router config")
	}
	svc.storage = c.Instance(persistence.STORAGE_SERVICE).(*persistence.Service)
	svc.pairs = make(map[common.Address]*pairState)
	svc.byTokens = make(map[[2]common.Address]common.Address)
	svc.logger = services.NewServiceLogger(svc)
	return nil
}

func (svc *Service) Start() error {
	store := svc.store()
	if store == nil {
		return nil
	}

	stored, err := store.LoadAllPairs()
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, sp := range stored {
		if !common.IsHexAddress(sp.Token0) || !common.IsHexAddress(sp.Token1) {
			continue
		}
		r0, ok0 := new(big.Int).SetString(sp.Reserve0, 10)
		r1, ok1 := new(big.Int).SetString(sp.Reserve1, 10)
		if !ok0 || !ok1 {
			continue
		}
		state := &pairState{
			token0:   common.HexToAddress(sp.Token0),
			token1:   common.HexToAddress(sp.Token1),
			reserve0: r0,
			reserve1: r1,
		}
		state.addr = PairAddress(state.token0, state.token1)
		svc.pairs[state.addr] = state
		svc.byTokens[[2]common.Address{state.token0, state.token1}] = state.addr
	}
	metrics.PairCount.Set(float64(len(svc.pairs)))

	svc.logger.Info().Int("pairs", len(svc.pairs)).Msg("loaded exchange pairs")
	return nil
}

func (svc *Service) Stop() error {
	store := svc.store()
	if store == nil {
		return nil
	}
	return store.SavePairBatch(svc.snapshot())
}

func (svc *Service) store() *persistence.Storage {
	if svc.storage == nil {
		return nil
	}
	return svc.storage.Store()
}

func (svc *Service) snapshot() []*persistence.StoredPair {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	stored := make([]*persistence.StoredPair, 0, len(svc.pairs))
	for _, p := range svc.pairs {
		stored = append(stored, &persistence.StoredPair{
			Address:  p.addr.Hex(),
			Token0:   p.token0.Hex(),
			Token1:   p.token1.Hex(),
			Reserve0: p.reserve0.String(),
			Reserve1: p.reserve1.String(),
		})
	}
	return stored
}

// SortTokens orders a token pair canonically.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}

// PairAddress derives the deterministic pair address for two tokens.
func PairAddress(a, b common.Address) common.Address {
	t0, t1 := SortTokens(a, b)
	return common.BytesToAddress(crypto.Keccak256(t0.Bytes(), t1.Bytes())[12:])
}

// CreatePair registers a new empty pair.
func (svc *Service) CreatePair(a, b common.Address) (common.Address, error) {
	if a == b || a == (common.Address{}) || b == (common.Address{}) {
		return common.Address{}, routercommon.ErrInvalidValue("identical or zero token addresses")
	}

	t0, t1 := SortTokens(a, b)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	key := [2]common.Address{t0, t1}
	if _, exists := svc.byTokens[key]; exists {
		return common.Address{}, routercommon.ErrAlreadyInitialized("pair already exists")
	}

	state := &pairState{
		addr:     PairAddress(t0, t1),
		token0:   t0,
		token1:   t1,
		reserve0: new(big.Int),
		reserve1: new(big.Int),
	}
	svc.pairs[state.addr] = state
	svc.byTokens[key] = state.addr
	metrics.PairCount.Set(float64(len(svc.pairs)))

	if store := svc.store(); store != nil {
		svc.persistPair(store, state)
	}
	return state.addr, nil
}

// AddLiquidity seeds reserves for an existing pair.
func (svc *Service) AddLiquidity(a, b common.Address, amountA, amountB *big.Int) error {
	if amountA == nil || amountB == nil || amountA.Sign() <= 0 || amountB.Sign() <= 0 {
		return routercommon.ErrInvalidValue("liquidity amounts must be positive")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	state, err := svc.stateForLocked(a, b)
	if err != nil {
		return err
	}

	if a == state.token0 {
		state.reserve0.Add(state.reserve0, amountA)
		state.reserve1.Add(state.reserve1, amountB)
	} else {
		state.reserve1.Add(state.reserve1, amountA)
		state.reserve0.Add(state.reserve0, amountB)
	}
	metrics.LiquidityEvents.Inc()

	if store := svc.store(); store != nil {
		svc.persistPair(store, state)
	}
	return nil
}

func (svc *Service) persistPair(store *persistence.Storage, p *pairState) {
	err := store.SavePair(&persistence.StoredPair{
		Address:  p.addr.Hex(),
		Token0:   p.token0.Hex(),
		Token1:   p.token1.Hex(),
		Reserve0: p.reserve0.String(),
		Reserve1: p.reserve1.String(),
	})
	if err != nil {
		svc.logger.Error().Err(err).Str("pair", p.addr.Hex()).Msg("failed to persist pair")
	}
}

func (svc *Service) stateForLocked(a, b common.Address) (*pairState, error) {
	t0, t1 := SortTokens(a, b)
	addr, ok := svc.byTokens[[2]common.Address{t0, t1}]
	if !ok {
		return nil, routercommon.ErrNoPair("")
	}
	return svc.pairs[addr], nil
}

// PairFor returns the pair address for a token pair, if one exists.
func (svc *Service) PairFor(a, b common.Address) (common.Address, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	t0, t1 := SortTokens(a, b)
	addr, ok := svc.byTokens[[2]common.Address{t0, t1}]
	return addr, ok
}

// Reserves returns the current reserves oriented as (reserveA, reserveB).
func (svc *Service) Reserves(a, b common.Address) (*big.Int, *big.Int, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	state, err := svc.stateForLocked(a, b)
	if err != nil {
		return nil, nil, err
	}
	rIn, rOut := state.reservesFor(a)
	return new(big.Int).Set(rIn), new(big.Int).Set(rOut), nil
}

// AmountsOut quotes an exact-input trade along a path against current reserves.
func (svc *Service) AmountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	sess := svc.Begin()
	return sess.AmountsOut(amountIn, path)
}

// AmountsIn quotes the required input for an exact output along a path.
func (svc *Service) AmountsIn(amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	sess := svc.Begin()
	return sess.AmountsIn(amountOut, path)
}

// Pairs lists all registered pairs with their reserves.
func (svc *Service) Pairs() []PairInfo {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	infos := make([]PairInfo, 0, len(svc.pairs))
	for _, p := range svc.pairs {
		infos = append(infos, PairInfo{
			Address:  p.addr,
			Token0:   p.token0,
			Token1:   p.token1,
			Reserve0: new(big.Int).Set(p.reserve0),
			Reserve1: new(big.Int).Set(p.reserve1),
		})
	}
	return infos
}
