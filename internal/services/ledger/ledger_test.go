package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/domain"
)

var (
	admin    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	owner    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	stranger = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	token    = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	currency = common.HexToAddress("0x00000000000000000000000000000000000000C1")
)

func newTestLedger(t *testing.T) *Service {
	t.Helper()
	return New(&config.RouterConfig{
		Admin:         admin,
		MaxTotalTaxBp: routercommon.BpsDenom,
	})
}

func claimedLedger(t *testing.T) *Service {
	t.Helper()
	svc := newTestLedger(t)
	require.NoError(t, svc.ClaimInitialFeeOwnership(owner, token))
	return svc
}

func TestOwnershipLifecycle(t *testing.T) {
	svc := newTestLedger(t)

	// first come wins, exactly once
	require.NoError(t, svc.ClaimInitialFeeOwnership(owner, token))
	err := svc.ClaimInitialFeeOwnership(stranger, token)
	require.True(t, routercommon.IsCode(err, routercommon.CodeAlreadyInitialized))
	require.True(t, svc.IsFeeOwner(owner, token))

	// only the owner may transfer
	err = svc.TransferFeeOwnership(stranger, token, stranger)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))

	require.NoError(t, svc.TransferFeeOwnership(owner, token, stranger))
	require.True(t, svc.IsFeeOwner(stranger, token))
	require.False(t, svc.IsFeeOwner(owner, token))
}

func TestControllerGatesInitialClaim(t *testing.T) {
	svc := newTestLedger(t)

	err := svc.RegisterTokenController(stranger, token, owner)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))

	require.NoError(t, svc.RegisterTokenController(admin, token, owner))

	err = svc.ClaimInitialFeeOwnership(stranger, token)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))
	require.NoError(t, svc.ClaimInitialFeeOwnership(owner, token))
}

func TestDistributionValidation(t *testing.T) {
	recA := common.HexToAddress("0x0a")
	tests := []struct {
		name    string
		shares  [3]uint16
		wantErr bool
	}{
		{name: "valid even split", shares: [3]uint16{500, 250, 250}},
		{name: "all to primary", shares: [3]uint16{1000, 0, 0}},
		{name: "sum above denom", shares: [3]uint16{500, 251, 250}, wantErr: true},
		{name: "sum below denom", shares: [3]uint16{400, 300, 250}, wantErr: true},
		{name: "secondary exceeds primary", shares: [3]uint16{400, 450, 150}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &domain.TaxDistribution{
				ReceiverA: recA,
				ShareA:    tt.shares[0], ShareB: tt.shares[1], ShareC: tt.shares[2],
			}
			err := d.Validate()
			if tt.wantErr {
				require.True(t, routercommon.IsCode(err, routercommon.CodeInvalidTaxDistribution))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSetDistributionRequiresOwner(t *testing.T) {
	svc := claimedLedger(t)
	dist := &domain.TaxDistribution{ReceiverA: owner, ShareA: 1000}

	err := svc.SetDistribution(stranger, token, dist)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))
	require.NoError(t, svc.SetDistribution(owner, token, dist))

	got, ok := svc.Distribution(token)
	require.True(t, ok)
	require.Equal(t, uint16(1000), got.ShareA)
}

func TestClaimDistributesWithRemainderToPrimary(t *testing.T) {
	svc := claimedLedger(t)
	recA := common.HexToAddress("0x0a")
	recB := common.HexToAddress("0x0b")
	recC := common.HexToAddress("0x0c")
	require.NoError(t, svc.SetDistribution(owner, token, &domain.TaxDistribution{
		ReceiverA: recA, ReceiverB: recB, ReceiverC: recC,
		ShareA: 500, ShareB: 250, ShareC: 250,
	}))

	// 1001 does not split evenly: B and C floor to 250, A takes 501
	svc.RecordTrade(token, currency, big.NewInt(1001), nil)

	claimed, err := svc.Claim(owner, token, currency)
	require.NoError(t, err)
	require.Equal(t, int64(1001), claimed.Int64())

	payA := svc.Payout(recA, currency)
	payB := svc.Payout(recB, currency)
	payC := svc.Payout(recC, currency)
	require.Equal(t, int64(501), payA.Int64())
	require.Equal(t, int64(250), payB.Int64())
	require.Equal(t, int64(250), payC.Int64())

	// exact conservation
	sum := new(big.Int).Add(payA, payB)
	sum.Add(sum, payC)
	require.Equal(t, claimed, sum)

	// balance zeroed, lifetime total advanced
	require.Zero(t, svc.Claimable(token, currency).Total().Sign())
	require.Equal(t, int64(1001), svc.TotalClaimed(token, currency).Int64())
}

func TestClaimFallsBackToClaimReceiverThenOwner(t *testing.T) {
	svc := claimedLedger(t)
	receiver := common.HexToAddress("0x0e")

	// no distribution: the claim receiver set via tax configuration wins
	svc.SetClaimReceiver(token, currency, receiver)
	svc.RecordTrade(token, currency, big.NewInt(100), big.NewInt(50))

	claimed, err := svc.Claim(owner, token, currency)
	require.NoError(t, err)
	require.Equal(t, int64(150), claimed.Int64())
	require.Equal(t, int64(150), svc.Payout(receiver, currency).Int64())

	// no claim receiver either: falls back to the fee owner
	other := common.HexToAddress("0x00000000000000000000000000000000000000F2")
	require.NoError(t, svc.ClaimInitialFeeOwnership(owner, other))
	svc.RecordTrade(other, currency, big.NewInt(70), nil)

	claimed, err = svc.Claim(owner, other, currency)
	require.NoError(t, err)
	require.Equal(t, int64(70), claimed.Int64())
	require.Equal(t, int64(70), svc.Payout(owner, currency).Int64())
}

func TestClaimRequiresOwner(t *testing.T) {
	svc := claimedLedger(t)
	svc.RecordTrade(token, currency, big.NewInt(100), nil)

	_, err := svc.Claim(stranger, token, currency)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))
}

func TestAutoClaimFiresExactlyOnCadence(t *testing.T) {
	svc := claimedLedger(t)
	require.NoError(t, svc.SetAutoClaim(owner, token, currency, 3))

	for i := 0; i < 2; i++ {
		svc.RecordTrade(token, currency, big.NewInt(10), nil)
	}
	// two trades in: nothing distributed yet
	require.Equal(t, int64(20), svc.Claimable(token, currency).Total().Int64())
	require.Zero(t, svc.Payout(owner, currency).Int64())

	// third trade trips the counter and sweeps the whole balance
	svc.RecordTrade(token, currency, big.NewInt(10), nil)
	require.Zero(t, svc.Claimable(token, currency).Total().Sign())
	require.Equal(t, int64(30), svc.Payout(owner, currency).Int64())

	// counter keeps running for the next window
	svc.RecordTrade(token, currency, big.NewInt(5), nil)
	require.Equal(t, int64(5), svc.Claimable(token, currency).Total().Int64())
}

func TestAutoClaimCountsZeroAmountTrades(t *testing.T) {
	svc := claimedLedger(t)
	require.NoError(t, svc.SetAutoClaim(owner, token, currency, 2))

	// a taxed trade whose withheld amount floors to zero still advances
	// the cadence counter
	svc.RecordTrade(token, currency, big.NewInt(10), nil)
	svc.RecordTrade(token, currency, big.NewInt(0), big.NewInt(0))

	require.Zero(t, svc.Claimable(token, currency).Total().Sign())
	require.Equal(t, int64(10), svc.Payout(owner, currency).Int64())
}

func TestWithdrawRouterTaxes(t *testing.T) {
	svc := newTestLedger(t)
	svc.CreditRouterEarned(currency, big.NewInt(400))
	svc.CreditRouterEarned(currency, big.NewInt(100))
	require.Equal(t, int64(500), svc.RouterEarned(currency).Int64())

	_, err := svc.WithdrawRouterTaxes(stranger, currency, stranger)
	require.True(t, routercommon.IsCode(err, routercommon.CodeNotAuthorized))
	require.Equal(t, int64(500), svc.RouterEarned(currency).Int64())

	withdrawn, err := svc.WithdrawRouterTaxes(admin, currency, owner)
	require.NoError(t, err)
	require.Equal(t, int64(500), withdrawn.Int64())
	require.Zero(t, svc.RouterEarned(currency).Sign())
	require.Equal(t, int64(500), svc.Payout(owner, currency).Int64())

	// second withdrawal finds nothing
	withdrawn, err = svc.WithdrawRouterTaxes(admin, currency, owner)
	require.NoError(t, err)
	require.Zero(t, withdrawn.Sign())
}
