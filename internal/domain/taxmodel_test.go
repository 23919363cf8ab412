package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

func dynamicModel() *TaxModel {
	return &TaxModel{
		Token:                common.HexToAddress("0x02"),
		Currency:             common.HexToAddress("0x01"),
		SellMinBp:            300,
		SellBaseBp:           500,
		SellMaxBp:            3000,
		Dynamic:              true,
		ResetAfter:           time.Hour,
		EscalationResetAfter: 24 * time.Hour,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TaxModel)
		wantErr bool
	}{
		{name: "valid", mutate: func(m *TaxModel) {}},
		{name: "max over denom", mutate: func(m *TaxModel) { m.SellMaxBp = 10001 }, wantErr: true},
		{name: "base below min", mutate: func(m *TaxModel) { m.SellBaseBp = 200 }, wantErr: true},
		{name: "base above max", mutate: func(m *TaxModel) { m.SellBaseBp = 3500 }, wantErr: true},
		{name: "buy min above base", mutate: func(m *TaxModel) { m.BuyMinBp = 100 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := dynamicModel()
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr {
				require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidTax))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestStaticRatesIgnoreImpact(t *testing.T) {
	m := &TaxModel{BuyBaseBp: 500, BuyMaxBp: 500, SellBaseBp: 1500, SellMaxBp: 1500}

	require.Equal(t, uint16(500), m.BuyRateBp())
	require.Equal(t, uint16(1500), m.SellRateBp(0))
	require.Equal(t, uint16(1500), m.SellRateBp(900))

	m.RecordSell(time.Now(), 900)
	require.Equal(t, uint16(1500), m.SellRateBp(0))
	require.Zero(t, m.EscalationBp)
}

func TestDynamicSellEscalationStaircase(t *testing.T) {
	m := dynamicModel()
	now := time.Now()

	// each sell pays the rate in effect at that trade, then stacks its
	// own impact for the next one
	require.Equal(t, uint16(500+100), m.SellRateBp(100))
	m.RecordSell(now, 100)

	require.Equal(t, uint16(500+150+100), m.SellRateBp(150))
	m.RecordSell(now.Add(time.Minute), 150)

	require.Equal(t, uint16(500+100+250), m.SellRateBp(100))
	m.RecordSell(now.Add(2*time.Minute), 100)
	require.Equal(t, uint32(350), m.EscalationBp)
	require.Equal(t, uint32(350), m.CumulativeImpactBp)

	// a buy zeroes stacking but not the cumulative counter
	m.RecordBuy(now.Add(3 * time.Minute))
	require.Zero(t, m.EscalationBp)
	require.Equal(t, uint32(350), m.CumulativeImpactBp)

	// next sell is back at base plus its own impact
	require.Equal(t, uint16(500+50), m.SellRateBp(50))
}

func TestDynamicSellClamps(t *testing.T) {
	m := dynamicModel()

	// huge impact clamps at max
	require.Equal(t, uint16(3000), m.SellRateBp(9000))

	// min binds when base is configured below it
	m.SellBaseBp = 300
	require.Equal(t, uint16(300), m.SellRateBp(0))
}

func TestDecayTimersAreIndependent(t *testing.T) {
	m := dynamicModel()
	start := time.Now()
	m.RecordSell(start, 200)
	require.Equal(t, uint32(200), m.EscalationBp)
	require.Equal(t, uint32(200), m.CumulativeImpactBp)

	// before the first timer, nothing resets
	m.Decay(start.Add(30 * time.Minute))
	require.Equal(t, uint32(200), m.EscalationBp)

	// ResetAfter zeroes stacking only
	m.Decay(start.Add(time.Hour))
	require.Zero(t, m.EscalationBp)
	require.Equal(t, uint32(200), m.CumulativeImpactBp)

	// EscalationResetAfter zeroes the cumulative counter too
	m.Decay(start.Add(24 * time.Hour))
	require.Zero(t, m.CumulativeImpactBp)
}

func TestDecayBeforeAnyTradeIsNoop(t *testing.T) {
	m := dynamicModel()
	m.Decay(time.Now())
	require.Zero(t, m.EscalationBp)
	require.True(t, m.LastTradeAt.IsZero())
}

func TestExemptFor(t *testing.T) {
	owner := common.HexToAddress("0x0a")
	m := &TaxModel{Exempt: owner}

	require.True(t, m.ExemptFor(owner))
	require.False(t, m.ExemptFor(common.HexToAddress("0x0b")))

	// zero exempt address never matches anyone
	m.Exempt = common.Address{}
	require.False(t, m.ExemptFor(common.Address{}))
}
