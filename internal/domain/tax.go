// Package domain defines the settlement layer's core records: tax
// configuration, fee ownership, ledger balances, and swap requests.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

// TaxDistribution splits claimed taxes across up to three receivers.
// Shares are expressed out of DistributionDenom (1000). ShareB and ShareC
// may never exceed ShareA; violations are rejected at configuration time.
type TaxDistribution struct {
	ReceiverA common.Address
	ReceiverB common.Address
	ReceiverC common.Address
	ShareA    uint16
	ShareB    uint16
	ShareC    uint16
}

func (d *TaxDistribution) Validate() error {
	if int(d.ShareA)+int(d.ShareB)+int(d.ShareC) != routercommon.DistributionDenom {
		return routercommon.ErrInvalidTaxDistribution("shares must sum to 1000")
	}
	if d.ShareB > d.ShareA || d.ShareC > d.ShareA {
		return routercommon.ErrInvalidTaxDistribution("secondary share exceeds primary share")
	}
	return nil
}

// TierFeeRecord holds a token's router tier fee. Once set, administrative
// updates must be strictly lower (ratchet-down only).
type TierFeeRecord struct {
	TierBp uint16
	IsSet  bool
}

// FeeOwnerRecord tracks who may configure a token's taxes and receive its
// revenue. Claimable exactly once, thereafter transferable by the owner only.
type FeeOwnerRecord struct {
	Owner       common.Address
	Initialized bool
}

// WalletOverride adds an extra sell surcharge for one wallet on one token,
// active only while now < Expiry. Never physically deleted, it simply
// becomes inert past expiry.
type WalletOverride struct {
	Wallet      common.Address
	ExtraSellBp uint16
	Expiry      time.Time
}

// Active reports whether the override still applies at the given time.
func (o *WalletOverride) Active(now time.Time) bool {
	return now.Before(o.Expiry)
}

// ClaimableTaxBalance accumulates withheld taxes for one (token, currency)
// pair. TradeCounter wraps mod AutoClaimEveryN to trigger auto-claim;
// AutoClaimEveryN == 0 disables auto-claim.
type ClaimableTaxBalance struct {
	Token           common.Address
	Currency        common.Address
	InAccrued       *big.Int
	OutAccrued      *big.Int
	TradeCounter    uint64
	AutoClaimEveryN uint64
}

// Total returns InAccrued + OutAccrued as a fresh value.
func (b *ClaimableTaxBalance) Total() *big.Int {
	return new(big.Int).Add(b.InAccrued, b.OutAccrued)
}
