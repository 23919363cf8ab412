package router

import (
	"math/big"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/services/exchange"
)

// ApplyBps returns amount * bp / 10000, rounded down.
func ApplyBps(amount *big.Int, bp uint16) *big.Int {
	if bp == 0 || amount.Sign() <= 0 {
		return new(big.Int)
	}

	v := exchange.GetU256()
	rate := exchange.GetU256()
	denom := exchange.GetU256()
	defer func() {
		exchange.PutU256(v)
		exchange.PutU256(rate)
		exchange.PutU256(denom)
	}()

	v.SetFromBig(amount)
	rate.SetUint64(uint64(bp))
	denom.SetUint64(routercommon.BpsDenom)
	v.Mul(v, rate)
	v.Div(v, denom)
	return v.ToBig()
}

// GrossUpBps returns the smallest gross amount whose post-tax remainder at
// the given total rate is at least net. Used by exact-output propagation.
func GrossUpBps(net *big.Int, totalBp uint16) (*big.Int, error) {
	if totalBp == 0 {
		return new(big.Int).Set(net), nil
	}
	if totalBp >= routercommon.BpsDenom {
		return nil, routercommon.ErrInvalidTax("combined rate leaves no output")
	}

	denom := big.NewInt(routercommon.BpsDenom)
	gross := new(big.Int).Mul(net, denom)
	gross.Div(gross, big.NewInt(int64(routercommon.BpsDenom-totalBp)))

	// floor rounding in ApplyBps can leave the remainder one unit short
	for {
		remainder := new(big.Int).Sub(gross, ApplyBps(gross, totalBp))
		if remainder.Cmp(net) >= 0 {
			return gross, nil
		}
		gross.Add(gross, big.NewInt(1))
	}
}

// ImpactBps measures fractional reserve depletion: the currency amount
// leaving (or entering) the pair relative to its reserve before the trade.
func ImpactBps(amount, reserveBefore *big.Int) uint16 {
	if amount == nil || reserveBefore == nil || amount.Sign() <= 0 || reserveBefore.Sign() <= 0 {
		return 0
	}

	bps := new(big.Int).Mul(amount, big.NewInt(routercommon.BpsDenom))
	bps.Div(bps, reserveBefore)
	if !bps.IsUint64() || bps.Uint64() > routercommon.BpsDenom {
		return routercommon.BpsDenom
	}
	return uint16(bps.Uint64())
}

func impactSeverity(bp uint16) string {
	switch {
	case bp < 100:
		return "low"
	case bp < 500:
		return "medium"
	default:
		return "high"
	}
}
