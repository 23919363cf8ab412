package exchange

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

// Session is a copy-on-write view of the exchange's reserves. Swaps mutate
// only the session's overlay; Commit publishes the overlay atomically.
// Dropping a session without Commit discards all of its reserve changes,
// which is how the settlement engine gets full rollback on abort.
type Session struct {
	svc   *Service
	dirty map[common.Address]*pairState
}

// Begin opens a new session over the current reserves.
func (svc *Service) Begin() *Session {
	return &Session{
		svc:   svc,
		dirty: make(map[common.Address]*pairState),
	}
}

func (s *Session) state(a, b common.Address) (*pairState, error) {
	t0, t1 := SortTokens(a, b)

	s.svc.mu.RLock()
	addr, ok := s.svc.byTokens[[2]common.Address{t0, t1}]
	s.svc.mu.RUnlock()
	if !ok {
		return nil, routercommon.ErrNoPair("")
	}

	if state, ok := s.dirty[addr]; ok {
		return state, nil
	}

	s.svc.mu.RLock()
	state := s.svc.pairs[addr].clone()
	s.svc.mu.RUnlock()

	s.dirty[addr] = state
	return state, nil
}

// Reserves returns the session view of a pair's reserves as (reserveA, reserveB).
func (s *Session) Reserves(a, b common.Address) (*big.Int, *big.Int, error) {
	state, err := s.state(a, b)
	if err != nil {
		return nil, nil, err
	}
	rIn, rOut := state.reservesFor(a)
	return new(big.Int).Set(rIn), new(big.Int).Set(rOut), nil
}

// AmountsOut quotes an exact-input trade hop by hop against the session view.
func (s *Session) AmountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, routercommon.ErrInvalidValue("path must contain at least two tokens")
	}

	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		rIn, rOut, err := s.Reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := AmountOut(amounts[i], rIn, rOut)
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// AmountsIn quotes the inputs required for an exact output, walking the path
// backward.
func (s *Session) AmountsIn(amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, routercommon.ErrInvalidValue("path must contain at least two tokens")
	}

	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = new(big.Int).Set(amountOut)
	for i := len(path) - 1; i > 0; i-- {
		rIn, rOut, err := s.Reserves(path[i-1], path[i])
		if err != nil {
			return nil, err
		}
		in, err := AmountIn(amounts[i], rIn, rOut)
		if err != nil {
			return nil, err
		}
		amounts[i-1] = in
	}
	return amounts, nil
}

// SwapExactIn executes an exact-input swap along the path inside the
// session, moving overlay reserves hop by hop, and returns the final output.
func (s *Session) SwapExactIn(amountIn *big.Int, path []common.Address) (*big.Int, error) {
	if len(path) < 2 {
		return nil, routercommon.ErrInvalidValue("path must contain at least two tokens")
	}

	carry := new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		state, err := s.state(path[i], path[i+1])
		if err != nil {
			return nil, err
		}

		rIn, rOut := state.reservesFor(path[i])
		out, err := AmountOut(carry, rIn, rOut)
		if err != nil {
			return nil, err
		}
		if out.Sign() <= 0 || out.Cmp(rOut) >= 0 {
			return nil, routercommon.ErrExchangeFailure("insufficient liquidity")
		}

		rIn.Add(rIn, carry)
		rOut.Sub(rOut, out)
		carry = out
	}
	return carry, nil
}

// Commit publishes the session's reserve changes to the exchange.
func (s *Session) Commit() {
	if len(s.dirty) == 0 {
		return
	}

	s.svc.mu.Lock()
	for addr, state := range s.dirty {
		s.svc.pairs[addr] = state
	}
	s.svc.mu.Unlock()

	if store := s.svc.store(); store != nil {
		for _, state := range s.dirty {
			s.svc.persistPair(store, state)
		}
	}
	s.dirty = make(map[common.Address]*pairState)
}
