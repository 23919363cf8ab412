package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

// TaxModel holds the buy/sell tax configuration for one (token, currency)
// pair. Pure data plus pure functions of time and trade size; the tax
// service owns mutation and the settlement engine drives the trade hooks.
//
// Dynamic sell rate: clamp(base + impactBp + escalationBp, min, max) where
// impactBp is the fractional reserve depletion of the currency reserve for
// this trade. Two independently decayed accumulators track escalation:
// EscalationBp stacks repeated sells and is zeroed by a qualifying buy or
// by ResetAfter of inactivity; CumulativeImpactBp is zeroed only by
// EscalationResetAfter of inactivity.
type TaxModel struct {
	Token    common.Address
	Currency common.Address

	// Receiver collects claims when no distribution is configured.
	Receiver common.Address
	// Exempt trades with zero token tax (tier fees still apply).
	Exempt common.Address

	BuyBaseBp  uint16
	BuyMinBp   uint16
	BuyMaxBp   uint16
	SellBaseBp uint16
	SellMinBp  uint16
	SellMaxBp  uint16

	Dynamic              bool
	ResetAfter           time.Duration
	EscalationResetAfter time.Duration

	LastTradeAt        time.Time
	EscalationBp       uint32
	CumulativeImpactBp uint32
}

func (m *TaxModel) Validate() error {
	if m.BuyMaxBp > routercommon.BpsDenom || m.SellMaxBp > routercommon.BpsDenom {
		return routercommon.ErrInvalidTax("rate exceeds 10000 bp")
	}
	if m.BuyMinBp > m.BuyBaseBp || m.BuyBaseBp > m.BuyMaxBp {
		return routercommon.ErrInvalidTax("buy rates must satisfy min <= base <= max")
	}
	if m.SellMinBp > m.SellBaseBp || m.SellBaseBp > m.SellMaxBp {
		return routercommon.ErrInvalidTax("sell rates must satisfy min <= base <= max")
	}
	return nil
}

// Decay applies the idle resets in effect at the given time. Escalation
// state is purely a function of recorded timestamps, there is no background
// decay loop.
func (m *TaxModel) Decay(now time.Time) {
	if m.LastTradeAt.IsZero() {
		return
	}
	idle := now.Sub(m.LastTradeAt)
	if m.ResetAfter > 0 && idle >= m.ResetAfter {
		m.EscalationBp = 0
	}
	if m.EscalationResetAfter > 0 && idle >= m.EscalationResetAfter {
		m.CumulativeImpactBp = 0
	}
}

// SellRateBp returns the effective sell rate for a trade with the given
// price impact, after Decay has been applied for the trade time.
func (m *TaxModel) SellRateBp(impactBp uint16) uint16 {
	if !m.Dynamic {
		return m.SellBaseBp
	}
	rate := uint32(m.SellBaseBp) + uint32(impactBp) + m.EscalationBp
	return clampBp(rate, m.SellMinBp, m.SellMaxBp)
}

// BuyRateBp returns the effective buy rate. Buy-side escalation is carried
// by the same clamp but disabled by default, so this is the base rate.
func (m *TaxModel) BuyRateBp() uint16 {
	if !m.Dynamic {
		return m.BuyBaseBp
	}
	return clampBp(uint32(m.BuyBaseBp), m.BuyMinBp, m.BuyMaxBp)
}

// RecordSell accumulates escalation state after a taxed sell.
func (m *TaxModel) RecordSell(now time.Time, impactBp uint16) {
	if m.Dynamic {
		m.EscalationBp += uint32(impactBp)
		m.CumulativeImpactBp += uint32(impactBp)
	}
	m.LastTradeAt = now
}

// RecordBuy zeroes the stacking accumulator after a taxed buy.
func (m *TaxModel) RecordBuy(now time.Time) {
	m.EscalationBp = 0
	m.LastTradeAt = now
}

// ExemptFor reports whether the wallet bypasses this model's taxes.
func (m *TaxModel) ExemptFor(wallet common.Address) bool {
	return m.Exempt != (common.Address{}) && m.Exempt == wallet
}

func clampBp(rate uint32, min, max uint16) uint16 {
	if rate < uint32(min) {
		return min
	}
	if rate > uint32(max) {
		return max
	}
	return uint16(rate)
}
