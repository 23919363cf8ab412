package router

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

func TestApplyBps(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		bp       uint16
		expected int64
	}{
		{name: "five percent", amount: 1_000_000, bp: 500, expected: 50_000},
		{name: "one bp", amount: 10_000, bp: 1, expected: 1},
		{name: "floor rounding", amount: 999, bp: 1, expected: 0},
		{name: "full rate", amount: 12345, bp: 10_000, expected: 12345},
		{name: "zero rate", amount: 12345, bp: 0, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyBps(big.NewInt(tt.amount), tt.bp)
			require.Equal(t, tt.expected, got.Int64())
		})
	}
}

func TestGrossUpBpsInvertsApplyBps(t *testing.T) {
	for _, totalBp := range []uint16{1, 100, 999, 2337, 5000, 9999} {
		for _, net := range []int64{1, 999, 1_000_000, 123_456_789} {
			gross, err := GrossUpBps(big.NewInt(net), totalBp)
			require.NoError(t, err)

			// the grossed amount nets out to at least the target
			remainder := new(big.Int).Sub(gross, ApplyBps(gross, totalBp))
			require.GreaterOrEqual(t, remainder.Int64(), net, "totalBp=%d net=%d", totalBp, net)

			// without overshooting by more than the rounding margin
			margin := int64(routercommon.BpsDenom/int(routercommon.BpsDenom-int(totalBp))) + 2
			require.LessOrEqual(t, remainder.Int64(), net+margin, "totalBp=%d net=%d", totalBp, net)
		}
	}
}

func TestGrossUpBpsRejectsConfiscatoryRate(t *testing.T) {
	_, err := GrossUpBps(big.NewInt(100), 10_000)
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidTax))
}

func TestImpactBps(t *testing.T) {
	require.Equal(t, uint16(100), ImpactBps(big.NewInt(10), big.NewInt(1000)))
	require.Equal(t, uint16(5000), ImpactBps(big.NewInt(500), big.NewInt(1000)))
	// capped at the denominator even when the trade exceeds the reserve
	require.Equal(t, uint16(10_000), ImpactBps(big.NewInt(2000), big.NewInt(1000)))
	require.Zero(t, ImpactBps(big.NewInt(0), big.NewInt(1000)))
	require.Zero(t, ImpactBps(big.NewInt(10), big.NewInt(0)))
}
