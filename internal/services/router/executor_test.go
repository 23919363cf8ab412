package router

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/services/exchange"
	"github.com/ccmlabs/ccm-router/internal/services/ledger"
	"github.com/ccmlabs/ccm-router/internal/services/tax"
)

var (
	adminAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	ownerAddr = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	trader    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	recvAddr  = common.HexToAddress("0x00000000000000000000000000000000000000E1")

	tokA = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	tokB = common.HexToAddress("0x00000000000000000000000000000000000000B1")
)

type fixture struct {
	conf   *config.RouterConfig
	ex     *exchange.Service
	taxes  *tax.Service
	ledger *ledger.Service
	eng    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conf := &config.RouterConfig{
		Native:        wNative,
		Admin:         adminAddr,
		MaxTotalTaxBp: routercommon.BpsDenom,
	}
	ex := exchange.New(conf)
	led := ledger.New(conf)
	taxes := tax.New(conf, led)
	return &fixture{conf: conf, ex: ex, taxes: taxes, ledger: led, eng: New(conf, ex, taxes, led)}
}

func (f *fixture) addPool(t *testing.T, a, b common.Address, rA, rB int64) common.Address {
	t.Helper()
	pool, err := f.ex.CreatePair(a, b)
	require.NoError(t, err)
	require.NoError(t, f.ex.AddLiquidity(a, b, big.NewInt(rA), big.NewInt(rB)))
	return pool
}

// configureTax claims fee ownership, sets static rates and designates the
// token's pool as its taxable pair.
func (f *fixture) configureTax(t *testing.T, token, cur common.Address, buyBp, sellBp uint16, pool common.Address) {
	t.Helper()
	if !f.ledger.IsFeeOwner(ownerAddr, token) {
		require.NoError(t, f.ledger.ClaimInitialFeeOwnership(ownerAddr, token))
	}
	require.NoError(t, f.taxes.SetTaxes(ownerAddr, token, cur, buyBp, sellBp, recvAddr))
	require.NoError(t, f.taxes.SetTaxablePair(ownerAddr, token, pool))
}

func rawQuote(t *testing.T, f *fixture, amountIn int64, a, b common.Address) *big.Int {
	t.Helper()
	rIn, rOut, err := f.ex.Reserves(a, b)
	require.NoError(t, err)
	out, err := exchange.AmountOut(big.NewInt(amountIn), rIn, rOut)
	require.NoError(t, err)
	return out
}

func TestExactInBuyWithStaticTax(t *testing.T) {
	// 5% buy tax plus the default 1% tier fee, both withheld from the
	// native input before pricing; the pool sees exactly the remainder
	f := newFixture(t)
	pool := f.addPool(t, wNative, taxedT, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, taxedT, wNative, 500, 1500, pool)

	path := []common.Address{wNative, taxedT}
	totalTax := new(big.Int)

	for i := 0; i < 3; i++ {
		expected := rawQuote(t, f, 940_000, wNative, taxedT)

		res, err := f.eng.SwapExactNativeForTokens(context.Background(), trader,
			big.NewInt(1_000_000), big.NewInt(0), path, trader, time.Time{})
		require.NoError(t, err)
		require.Equal(t, expected.String(), res.AmountOut.String())

		require.Len(t, res.Taxes, 1)
		require.Equal(t, uint16(500), res.Taxes[0].RateBp)
		require.Equal(t, int64(50_000), res.Taxes[0].Amount.Int64())
		require.Equal(t, int64(10_000), res.TierFees.Int64())
		totalTax.Add(totalTax, res.Taxes[0].Amount)
	}

	// tax accrued to the unit across all three buys, in the native currency
	require.Equal(t, int64(150_000), totalTax.Int64())
	require.Equal(t, int64(150_000), f.ledger.Claimable(taxedT, wNative).InAccrued.Int64())
	require.Equal(t, int64(30_000), f.ledger.RouterEarned(wNative).Int64())
}

func TestExactInExemptOwnerStillPaysTierFee(t *testing.T) {
	f := newFixture(t)
	pool := f.addPool(t, wNative, taxedT, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, taxedT, wNative, 500, 1500, pool)

	expected := rawQuote(t, f, 990_000, wNative, taxedT)
	res, err := f.eng.SwapExactNativeForTokens(context.Background(), ownerAddr,
		big.NewInt(1_000_000), big.NewInt(0), []common.Address{wNative, taxedT}, ownerAddr, time.Time{})
	require.NoError(t, err)

	require.Equal(t, expected.String(), res.AmountOut.String())
	require.Empty(t, res.Taxes)
	require.Equal(t, int64(10_000), res.TierFees.Int64())
}

func TestMultiHopTaxedToTaxed(t *testing.T) {
	// A -> native -> B: A's sell tax on the native amount leaving A's pool,
	// B's buy tax on the native amount entering B's pool, native leg itself
	// never taxed
	f := newFixture(t)
	poolA := f.addPool(t, tokA, wNative, 1_000_000_000, 1_000_000_000)
	poolB := f.addPool(t, wNative, tokB, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, tokA, wNative, 0, 1000, poolA)
	f.configureTax(t, tokB, wNative, 800, 0, poolB)

	in := int64(1_000_000)
	wOut := rawQuote(t, f, in, tokA, wNative)
	sellTax := new(big.Int).Div(new(big.Int).Mul(wOut, big.NewInt(1000)), big.NewInt(10_000))
	tierA := new(big.Int).Div(wOut, big.NewInt(100))
	wNet := new(big.Int).Sub(wOut, sellTax)
	wNet.Sub(wNet, tierA)

	buyTax := new(big.Int).Div(new(big.Int).Mul(wNet, big.NewInt(800)), big.NewInt(10_000))
	tierB := new(big.Int).Div(wNet, big.NewInt(100))
	wFwd := new(big.Int).Sub(wNet, buyTax)
	wFwd.Sub(wFwd, tierB)
	expectedOut := rawQuote(t, f, wFwd.Int64(), wNative, tokB)

	res, err := f.eng.SwapExactTokensForTokens(context.Background(), trader,
		big.NewInt(in), big.NewInt(0), []common.Address{tokA, wNative, tokB}, trader, time.Time{})
	require.NoError(t, err)

	require.Equal(t, expectedOut.String(), res.AmountOut.String())
	require.Equal(t, 2, res.SegmentCount)
	require.Len(t, res.Taxes, 2)
	for _, charge := range res.Taxes {
		require.NotEqual(t, wNative, charge.Token, "the native leg must never be taxed")
	}

	require.Equal(t, sellTax.String(), f.ledger.Claimable(tokA, wNative).OutAccrued.String())
	require.Equal(t, buyTax.String(), f.ledger.Claimable(tokB, wNative).InAccrued.String())

	tierTotal := new(big.Int).Add(tierA, tierB)
	require.Equal(t, tierTotal.String(), f.ledger.RouterEarned(wNative).String())
}

func TestUntaxedPathMatchesRawQuote(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, plainU, plainV, 1_000_000_000, 1_000_000_000)

	expected := rawQuote(t, f, 1_000_000, plainU, plainV)
	res, err := f.eng.SwapExactTokensForTokens(context.Background(), trader,
		big.NewInt(1_000_000), big.NewInt(0), []common.Address{plainU, plainV}, trader, time.Time{})
	require.NoError(t, err)

	require.Equal(t, expected.String(), res.AmountOut.String())
	require.Empty(t, res.Taxes)
	require.Zero(t, res.TierFees.Sign())
	require.Equal(t, 1, res.SegmentCount)
}

func TestSlippageAbortsWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	pool := f.addPool(t, wNative, taxedT, 1_000_000, 1_000_000)
	f.configureTax(t, taxedT, wNative, 500, 1500, pool)

	_, err := f.eng.SwapExactNativeForTokens(context.Background(), trader,
		big.NewInt(100_000), big.NewInt(99_999_999), []common.Address{wNative, taxedT}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeSlippage))

	// reserves, accruals and tier earnings all untouched
	rW, rT, err := f.ex.Reserves(wNative, taxedT)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000), rW.Int64())
	require.Equal(t, int64(1_000_000), rT.Int64())
	require.Zero(t, f.ledger.Claimable(taxedT, wNative).Total().Sign())
	require.Zero(t, f.ledger.RouterEarned(wNative).Sign())
}

func TestDeadlineExpired(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, plainU, plainV, 1_000_000, 1_000_000)

	frozen := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f.eng.now = func() time.Time { return frozen }

	_, err := f.eng.SwapExactTokensForTokens(context.Background(), trader,
		big.NewInt(1000), big.NewInt(0), []common.Address{plainU, plainV}, trader, frozen.Add(-time.Second))
	require.True(t, routercommon.IsCode(err, routercommon.CodeDeadlineExpired))

	// a future deadline passes
	_, err = f.eng.SwapExactTokensForTokens(context.Background(), trader,
		big.NewInt(1000), big.NewInt(0), []common.Address{plainU, plainV}, trader, frozen.Add(time.Minute))
	require.NoError(t, err)
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, plainU, plainV, 1_000_000, 1_000_000)
	ctx := context.Background()

	_, err := f.eng.SwapExactTokensForTokens(ctx, trader, big.NewInt(0), big.NewInt(0),
		[]common.Address{plainU, plainV}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	_, err = f.eng.SwapExactTokensForTokens(ctx, trader, big.NewInt(100), big.NewInt(0),
		[]common.Address{plainU}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	_, err = f.eng.SwapExactTokensForTokens(ctx, trader, big.NewInt(100), big.NewInt(0),
		[]common.Address{plainU, plainV}, common.Address{}, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	// native entry shape demands a native-leading path
	_, err = f.eng.SwapExactNativeForTokens(ctx, trader, big.NewInt(100), big.NewInt(0),
		[]common.Address{plainU, plainV}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	// native exit shape demands a native-trailing path
	_, err = f.eng.SwapExactTokensForNative(ctx, trader, big.NewInt(100), big.NewInt(0),
		[]common.Address{plainU, plainV}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	// amounts wider than 256 bits are rejected before any pricing math
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = f.eng.SwapExactTokensForTokens(ctx, trader, huge, big.NewInt(0),
		[]common.Address{plainU, plainV}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	_, err = f.eng.SwapExactTokensForTokens(ctx, trader, big.NewInt(100), huge,
		[]common.Address{plainU, plainV}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))
}

func TestExactOutUntaxed(t *testing.T) {
	f := newFixture(t)
	f.addPool(t, plainU, plainV, 1_000_000_000, 1_000_000_000)

	want := big.NewInt(500_000)
	res, err := f.eng.SwapTokensForExactTokens(context.Background(), trader,
		want, big.NewInt(0), []common.Address{plainU, plainV}, trader, time.Time{})
	require.NoError(t, err)

	require.GreaterOrEqual(t, res.AmountOut.Int64(), want.Int64())
	// the pricing inversion is tight: no more than a few units of overshoot
	require.LessOrEqual(t, res.AmountOut.Int64(), want.Int64()+5)
}

func TestExactOutTaxedGrossesUp(t *testing.T) {
	f := newFixture(t)
	pool := f.addPool(t, taxedT, wNative, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, taxedT, wNative, 0, 1500, pool)

	want := big.NewInt(100_000)
	res, err := f.eng.SwapTokensForExactNative(context.Background(), trader,
		want, big.NewInt(0), []common.Address{taxedT, wNative}, trader, time.Time{})
	require.NoError(t, err)

	// requested output is a hard minimum after the 15% sell tax and tier fee
	require.GreaterOrEqual(t, res.AmountOut.Int64(), want.Int64())
	require.Len(t, res.Taxes, 1)
	require.Equal(t, uint16(1500), res.Taxes[0].RateBp)

	// a max-input bound below the requirement aborts before execution
	_, err = f.eng.SwapTokensForExactNative(context.Background(), trader,
		want, big.NewInt(10), []common.Address{taxedT, wNative}, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeSlippage))
}

func TestQuoteMatchesSwapAndLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	pool := f.addPool(t, wNative, taxedT, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, taxedT, wNative, 500, 1500, pool)
	path := []common.Address{wNative, taxedT}

	quoted, err := f.eng.Quote(context.Background(), trader, path, "ExactIn", big.NewInt(1_000_000))
	require.NoError(t, err)

	// the quote left reserves and ledger untouched
	rW, _, err := f.ex.Reserves(wNative, taxedT)
	require.NoError(t, err)
	require.Equal(t, int64(1_000_000_000), rW.Int64())
	require.Zero(t, f.ledger.Claimable(taxedT, wNative).Total().Sign())

	// executing the same request settles at the quoted amounts
	res, err := f.eng.SwapExactNativeForTokens(context.Background(), trader,
		big.NewInt(1_000_000), big.NewInt(0), path, trader, time.Time{})
	require.NoError(t, err)
	require.Equal(t, quoted.AmountOut.String(), res.AmountOut.String())
	require.Equal(t, quoted.AmountIn.String(), res.AmountIn.String())
}

func TestDynamicSellEscalatesAcrossSettlements(t *testing.T) {
	f := newFixture(t)
	pool := f.addPool(t, taxedT, wNative, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, taxedT, wNative, 0, 500, pool)
	require.NoError(t, f.taxes.SetDynamicSellTax(ownerAddr, taxedT, wNative, 0, 500, 5000, time.Hour, 24*time.Hour))

	path := []common.Address{taxedT, wNative}
	sell := func() uint16 {
		res, err := f.eng.SwapExactTokensForNative(context.Background(), trader,
			big.NewInt(20_000_000), big.NewInt(0), path, trader, time.Time{})
		require.NoError(t, err)
		require.Len(t, res.Taxes, 1)
		return res.Taxes[0].RateBp
	}

	// each successful sell stacks its own impact into the next rate
	first := sell()
	require.Greater(t, first, uint16(500))
	second := sell()
	require.Greater(t, second, first)

	m, ok := f.taxes.Model(taxedT, wNative)
	require.True(t, ok)
	escalated := m.EscalationBp
	require.NotZero(t, escalated)

	// an aborted settlement must not move escalation state
	_, err := f.eng.SwapExactTokensForNative(context.Background(), trader,
		big.NewInt(20_000_000), big.NewInt(999_999_999), path, trader, time.Time{})
	require.True(t, routercommon.IsCode(err, routercommon.CodeSlippage))
	m, _ = f.taxes.Model(taxedT, wNative)
	require.Equal(t, escalated, m.EscalationBp)

	// a buy through the taxable pair resets stacking
	_, err = f.eng.SwapExactNativeForTokens(context.Background(), trader,
		big.NewInt(1_000_000), big.NewInt(0), []common.Address{wNative, taxedT}, trader, time.Time{})
	require.NoError(t, err)
	m, _ = f.taxes.Model(taxedT, wNative)
	require.Zero(t, m.EscalationBp)

	third := sell()
	require.Less(t, third, second)
}

func TestSettlementIsSerializedAndConserves(t *testing.T) {
	f := newFixture(t)
	pool := f.addPool(t, wNative, taxedT, 1_000_000_000, 1_000_000_000)
	f.configureTax(t, taxedT, wNative, 500, 1500, pool)

	in := big.NewInt(1_000_000)
	res, err := f.eng.SwapExactNativeForTokens(context.Background(), trader,
		in, big.NewInt(0), []common.Address{wNative, taxedT}, trader, time.Time{})
	require.NoError(t, err)

	// input = amount forwarded to the pool + token tax + tier fee, exactly
	rW, _, err := f.ex.Reserves(wNative, taxedT)
	require.NoError(t, err)
	forwarded := new(big.Int).Sub(rW, big.NewInt(1_000_000_000))
	total := new(big.Int).Set(forwarded)
	total.Add(total, res.Taxes[0].Amount)
	total.Add(total, res.TierFees)
	require.Equal(t, in.String(), total.String())
}
