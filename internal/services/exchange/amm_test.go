package exchange

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000Aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000Bb")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000Cc")
)

func newTestExchange(t *testing.T) *Service {
	t.Helper()
	return New(&config.RouterConfig{MaxTotalTaxBp: routercommon.BpsDenom})
}

func TestAmountOut(t *testing.T) {
	tests := []struct {
		name       string
		amountIn   int64
		reserveIn  int64
		reserveOut int64
		expected   int64
	}{
		{
			name:     "balanced reserves",
			amountIn: 100, reserveIn: 1000, reserveOut: 1000,
			// 100*997*1000 / (1000*1000 + 100*997) = 90.66 -> 90
			expected: 90,
		},
		{
			name:     "deep pool small trade",
			amountIn: 1000, reserveIn: 1_000_000, reserveOut: 1_000_000,
			expected: 996,
		},
		{
			name:     "asymmetric reserves",
			amountIn: 100, reserveIn: 1000, reserveOut: 4000,
			expected: 362,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := AmountOut(big.NewInt(tt.amountIn), big.NewInt(tt.reserveIn), big.NewInt(tt.reserveOut))
			require.NoError(t, err)
			require.Equal(t, tt.expected, out.Int64())
		})
	}
}

func TestAmountInInvertsAmountOut(t *testing.T) {
	rIn := big.NewInt(1000)
	rOut := big.NewInt(1000)

	in, err := AmountIn(big.NewInt(90), rIn, rOut)
	require.NoError(t, err)
	require.Equal(t, int64(100), in.Int64())

	// feeding the computed input back must yield at least the target output
	out, err := AmountOut(in, rIn, rOut)
	require.NoError(t, err)
	require.GreaterOrEqual(t, out.Int64(), int64(90))
}

func TestAmountOutRejectsBadInput(t *testing.T) {
	_, err := AmountOut(big.NewInt(0), big.NewInt(1000), big.NewInt(1000))
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	_, err = AmountOut(big.NewInt(100), big.NewInt(0), big.NewInt(1000))
	require.True(t, routercommon.IsCode(err, routercommon.CodeExchangeFailure))
}

func TestAmountInRejectsDrainingReserve(t *testing.T) {
	_, err := AmountIn(big.NewInt(1000), big.NewInt(1000), big.NewInt(1000))
	require.True(t, routercommon.IsCode(err, routercommon.CodeExchangeFailure))
}

func TestCreatePair(t *testing.T) {
	svc := newTestExchange(t)

	pair, err := svc.CreatePair(tokenA, tokenB)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, pair)

	// deterministic and order independent
	got, ok := svc.PairFor(tokenB, tokenA)
	require.True(t, ok)
	require.Equal(t, pair, got)

	_, err = svc.CreatePair(tokenB, tokenA)
	require.True(t, routercommon.IsCode(err, routercommon.CodeAlreadyInitialized))

	_, err = svc.CreatePair(tokenA, tokenA)
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))
}

func TestAddLiquidityAndReserves(t *testing.T) {
	svc := newTestExchange(t)

	_, err := svc.CreatePair(tokenA, tokenB)
	require.NoError(t, err)

	require.NoError(t, svc.AddLiquidity(tokenA, tokenB, big.NewInt(1000), big.NewInt(4000)))

	rA, rB, err := svc.Reserves(tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, int64(1000), rA.Int64())
	require.Equal(t, int64(4000), rB.Int64())

	// oriented the other way around
	rB, rA, err = svc.Reserves(tokenB, tokenA)
	require.NoError(t, err)
	require.Equal(t, int64(4000), rB.Int64())
	require.Equal(t, int64(1000), rA.Int64())

	_, _, err = svc.Reserves(tokenA, tokenC)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNoPair))
}

func TestSessionRollback(t *testing.T) {
	svc := newTestExchange(t)
	_, err := svc.CreatePair(tokenA, tokenB)
	require.NoError(t, err)
	require.NoError(t, svc.AddLiquidity(tokenA, tokenB, big.NewInt(1000), big.NewInt(1000)))

	sess := svc.Begin()
	out, err := sess.SwapExactIn(big.NewInt(100), []common.Address{tokenA, tokenB})
	require.NoError(t, err)
	require.Equal(t, int64(90), out.Int64())

	// session view moved
	rA, rB, err := sess.Reserves(tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, int64(1100), rA.Int64())
	require.Equal(t, int64(910), rB.Int64())

	// published reserves did not: the session was never committed
	rA, rB, err = svc.Reserves(tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, int64(1000), rA.Int64())
	require.Equal(t, int64(1000), rB.Int64())
}

func TestSessionCommit(t *testing.T) {
	svc := newTestExchange(t)
	_, err := svc.CreatePair(tokenA, tokenB)
	require.NoError(t, err)
	require.NoError(t, svc.AddLiquidity(tokenA, tokenB, big.NewInt(1000), big.NewInt(1000)))

	sess := svc.Begin()
	_, err = sess.SwapExactIn(big.NewInt(100), []common.Address{tokenA, tokenB})
	require.NoError(t, err)
	sess.Commit()

	rA, rB, err := svc.Reserves(tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, int64(1100), rA.Int64())
	require.Equal(t, int64(910), rB.Int64())
}

func TestSessionMultiHopQuote(t *testing.T) {
	svc := newTestExchange(t)
	for _, pair := range [][2]common.Address{{tokenA, tokenB}, {tokenB, tokenC}} {
		_, err := svc.CreatePair(pair[0], pair[1])
		require.NoError(t, err)
		require.NoError(t, svc.AddLiquidity(pair[0], pair[1], big.NewInt(1_000_000), big.NewInt(1_000_000)))
	}

	path := []common.Address{tokenA, tokenB, tokenC}
	amounts, err := svc.AmountsOut(big.NewInt(1000), path)
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	require.Equal(t, int64(1000), amounts[0].Int64())
	require.Equal(t, int64(996), amounts[1].Int64())
	require.Equal(t, int64(992), amounts[2].Int64())

	// backward quoting from the forward result lands on at least the input
	back, err := svc.AmountsIn(amounts[2], path)
	require.NoError(t, err)
	require.LessOrEqual(t, back[0].Int64(), int64(1001))
	require.GreaterOrEqual(t, back[0].Int64(), int64(999))
}
