package exchange

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

// Pre-computed constants (avoid allocation on every call)
var (
	u256Thousand = uint256.NewInt(1000)
	u256FeeNum   = uint256.NewInt(997)
	u256One      = uint256.NewInt(1)
)

// Object pool for zero-allocation pricing on the settlement hot path

var uint256Pool = sync.Pool{
	New: func() interface{} {
		return new(uint256.Int)
	},
}

// GetU256 gets a uint256.Int from the pool
func GetU256() *uint256.Int {
	return uint256Pool.Get().(*uint256.Int)
}

// PutU256 returns a uint256.Int to the pool
func PutU256(v *uint256.Int) {
	v.Clear()
	uint256Pool.Put(v)
}

// AmountOut is the constant-product exact-input pricing function with the
// 0.3% LP fee: out = in*997*reserveOut / (reserveIn*1000 + in*997).
func AmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, routercommon.ErrInvalidValue("insufficient input amount")
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, routercommon.ErrExchangeFailure("insufficient liquidity")
	}

	in := GetU256()
	rIn := GetU256()
	rOut := GetU256()
	num := GetU256()
	den := GetU256()
	defer func() {
		PutU256(in)
		PutU256(rIn)
		PutU256(rOut)
		PutU256(num)
		PutU256(den)
	}()

	in.SetFromBig(amountIn)
	rIn.SetFromBig(reserveIn)
	rOut.SetFromBig(reserveOut)

	in.Mul(in, u256FeeNum)
	num.Mul(in, rOut)
	den.Mul(rIn, u256Thousand)
	den.Add(den, in)
	num.Div(num, den)

	return num.ToBig(), nil
}

// AmountIn is the inverse pricing function:
// in = reserveIn*out*1000 / ((reserveOut-out)*997) + 1.
func AmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, routercommon.ErrInvalidValue("insufficient output amount")
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, routercommon.ErrExchangeFailure("insufficient liquidity")
	}

	out := GetU256()
	rIn := GetU256()
	rOut := GetU256()
	num := GetU256()
	den := GetU256()
	defer func() {
		PutU256(out)
		PutU256(rIn)
		PutU256(rOut)
		PutU256(num)
		PutU256(den)
	}()

	out.SetFromBig(amountOut)
	rIn.SetFromBig(reserveIn)
	rOut.SetFromBig(reserveOut)

	num.Mul(rIn, out)
	num.Mul(num, u256Thousand)
	den.Sub(rOut, out)
	den.Mul(den, u256FeeNum)
	num.Div(num, den)
	num.Add(num, u256One)

	return num.ToBig(), nil
}
