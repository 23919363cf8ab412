// Package common contains common constants and variables used across services
package common

import "math/big"

const (
	// BpsDenom is the basis-point denominator; rates are integers 0-10000.
	BpsDenom = 10000

	// DistributionDenom is the share denominator for tax distributions.
	DistributionDenom = 1000

	// MaxTierFeeBp caps the router tier fee at 1%.
	MaxTierFeeBp = 100

	// DefaultTierFeeBp applies when a token never chose a tier.
	DefaultTierFeeBp = 100

	// ApprenticeTierBp and ExpertTierBp are the two discounted tier levels.
	ApprenticeTierBp = 50
	ExpertTierBp     = 30
)

var (
	// ApprenticeTierDeposit is the exact native deposit selecting the apprentice tier (0.5 native).
	ApprenticeTierDeposit = new(big.Int).SetUint64(500_000_000_000_000_000)

	// ExpertTierDeposit is the exact native deposit selecting the expert tier (1 native).
	ExpertTierDeposit = new(big.Int).SetUint64(1_000_000_000_000_000_000)
)
