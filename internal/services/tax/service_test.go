package tax

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/services/ledger"
)

var (
	admin    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	owner    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	trader   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	native   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token    = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	receiver = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	pair     = common.HexToAddress("0x00000000000000000000000000000000000000D1")
)

func newTestTax(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	conf := &config.RouterConfig{
		Native:        native,
		Admin:         admin,
		MaxTotalTaxBp: routercommon.BpsDenom,
	}
	led := ledger.New(conf)
	require.NoError(t, led.ClaimInitialFeeOwnership(owner, token))
	return New(conf, led), led
}

func TestSetTaxesRequiresFeeOwner(t *testing.T) {
	svc, _ := newTestTax(t)

	err := svc.SetTaxes(trader, token, native, 500, 1500, receiver)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))

	require.NoError(t, svc.SetTaxes(owner, token, native, 500, 1500, receiver))

	m, ok := svc.Model(token, native)
	require.True(t, ok)
	require.Equal(t, uint16(500), m.BuyBaseBp)
	require.Equal(t, uint16(1500), m.SellBaseBp)
	require.Equal(t, owner, m.Exempt)
	require.Equal(t, receiver, m.Receiver)
}

func TestSetTaxesRejectsExcessiveSum(t *testing.T) {
	conf := &config.RouterConfig{Native: native, Admin: admin, MaxTotalTaxBp: 2000}
	led := ledger.New(conf)
	require.NoError(t, led.ClaimInitialFeeOwnership(owner, token))
	svc := New(conf, led)

	err := svc.SetTaxes(owner, token, native, 1500, 600, receiver)
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidTax))

	require.NoError(t, svc.SetTaxes(owner, token, native, 1500, 500, receiver))
}

func TestEvalRespectsExemptionAndTaxablePair(t *testing.T) {
	svc, _ := newTestTax(t)
	now := time.Now()
	require.NoError(t, svc.SetTaxes(owner, token, native, 500, 1500, receiver))

	// the fee owner is exempt from token tax
	require.Zero(t, svc.EvalBuy(token, native, owner, now))
	require.Zero(t, svc.EvalSell(token, native, owner, now, 0))

	// everyone else pays
	require.Equal(t, uint16(500), svc.EvalBuy(token, native, trader, now))
	require.Equal(t, uint16(1500), svc.EvalSell(token, native, trader, now, 0))

	// taxable only through the designated pair
	require.NoError(t, svc.SetTaxablePair(owner, token, pair))
	require.True(t, svc.TaxableThrough(token, native, pair))
	require.False(t, svc.TaxableThrough(token, native, receiver))
	// no model against this currency
	require.False(t, svc.TaxableThrough(token, trader, pair))
}

func TestDynamicSellTaxLifecycle(t *testing.T) {
	svc, _ := newTestTax(t)
	now := time.Now()

	// dynamic mode requires a base model first
	err := svc.SetDynamicSellTax(owner, token, native, 300, 500, 3000, time.Hour, 24*time.Hour)
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidTax))

	require.NoError(t, svc.SetTaxes(owner, token, native, 0, 500, receiver))
	require.NoError(t, svc.SetDynamicSellTax(owner, token, native, 300, 500, 3000, time.Hour, 24*time.Hour))

	// invalid bounds roll back without clobbering the model
	err = svc.SetDynamicSellTax(owner, token, native, 600, 500, 3000, time.Hour, 24*time.Hour)
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidTax))
	m, ok := svc.Model(token, native)
	require.True(t, ok)
	require.Equal(t, uint16(300), m.SellMinBp)

	// escalation only lands when the settlement commits its trade events
	require.Equal(t, uint16(600), svc.EvalSell(token, native, trader, now, 100))
	require.Equal(t, uint16(600), svc.EvalSell(token, native, trader, now, 100))

	svc.CommitTradeEvents([]TradeEvent{{Token: token, Currency: native, Direction: domain.TaxOut, ImpactBp: 100, At: now}})
	require.Equal(t, uint16(700), svc.EvalSell(token, native, trader, now, 100))

	// a committed buy resets stacking
	svc.CommitTradeEvents([]TradeEvent{{Token: token, Currency: native, Direction: domain.TaxIn, At: now}})
	require.Equal(t, uint16(600), svc.EvalSell(token, native, trader, now, 100))
}

func TestWalletOverrideAppliesUntilExpiry(t *testing.T) {
	svc, _ := newTestTax(t)
	now := time.Now()
	require.NoError(t, svc.SetTaxes(owner, token, native, 0, 1000, receiver))

	err := svc.SetWalletSellTax(trader, token, trader, 500, now.Add(time.Hour))
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))

	require.NoError(t, svc.SetWalletSellTax(owner, token, trader, 500, now.Add(time.Hour)))
	require.Equal(t, uint16(1500), svc.EvalSell(token, native, trader, now, 0))

	// other wallets unaffected
	require.Equal(t, uint16(1000), svc.EvalSell(token, native, receiver, now, 0))

	// inert after expiry
	require.Equal(t, uint16(1000), svc.EvalSell(token, native, trader, now.Add(2*time.Hour), 0))
}

func TestChooseTaxTierLevel(t *testing.T) {
	svc, led := newTestTax(t)

	// default fee before any tier choice
	require.Equal(t, uint16(routercommon.DefaultTierFeeBp), svc.TierBp(token))

	// deposit must match the menu exactly
	_, err := svc.ChooseTaxTierLevel(trader, token, big.NewInt(123))
	require.True(t, routercommon.IsCode(err, routercommon.CodeNoTierSelected))

	tierBp, err := svc.ChooseTaxTierLevel(trader, token, routercommon.ApprenticeTierDeposit)
	require.NoError(t, err)
	require.Equal(t, uint16(routercommon.ApprenticeTierBp), tierBp)
	require.Equal(t, uint16(routercommon.ApprenticeTierBp), svc.TierBp(token))

	// the deposit lands in the router's native earnings
	require.Equal(t, routercommon.ApprenticeTierDeposit.String(), led.RouterEarned(native).String())

	// re-buying the same tier is rejected
	_, err = svc.ChooseTaxTierLevel(trader, token, routercommon.ApprenticeTierDeposit)
	require.True(t, routercommon.IsCode(err, routercommon.CodeTierNotLower))

	// upgrading to a lower fee works
	tierBp, err = svc.ChooseTaxTierLevel(trader, token, routercommon.ExpertTierDeposit)
	require.NoError(t, err)
	require.Equal(t, uint16(routercommon.ExpertTierBp), tierBp)
}

func TestSetTaxTierLevelRatchet(t *testing.T) {
	svc, _ := newTestTax(t)

	err := svc.SetTaxTierLevel(trader, token, 40)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))

	err = svc.SetTaxTierLevel(admin, token, routercommon.MaxTierFeeBp+1)
	require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidValue))

	require.NoError(t, svc.SetTaxTierLevel(admin, token, 40))
	require.Equal(t, uint16(40), svc.TierBp(token))

	// ratchet: never up, never sideways
	err = svc.SetTaxTierLevel(admin, token, 40)
	require.True(t, routercommon.IsCode(err, routercommon.CodeTierNotLower))
	err = svc.SetTaxTierLevel(admin, token, 60)
	require.True(t, routercommon.IsCode(err, routercommon.CodeTierNotLower))

	require.NoError(t, svc.SetTaxTierLevel(admin, token, 10))
	require.Equal(t, uint16(10), svc.TierBp(token))
}
