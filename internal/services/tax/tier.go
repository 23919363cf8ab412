package tax

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/metrics"
)

// The tier menu: an exact native deposit selects a discounted flat fee.
// Anything else fails with NO_TIER_SELECTED. Tokens that never chose a tier
// pay the default (highest) fee.

// TierBp returns the token's effective router tier fee.
func (svc *Service) TierBp(token common.Address) uint16 {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.tierBpLocked(token)
}

func (svc *Service) tierBpLocked(token common.Address) uint16 {
	if rec, ok := svc.tiers[token]; ok && rec.IsSet {
		return rec.TierBp
	}
	return routercommon.DefaultTierFeeBp
}

// ChooseTaxTierLevel selects a tier by depositing an exact amount of native
// currency. The deposit is credited to the router's earnings. The selected
// tier must improve on the one currently in effect.
func (svc *Service) ChooseTaxTierLevel(payer, token common.Address, deposit *big.Int) (uint16, error) {
	if deposit == nil {
		return 0, routercommon.ErrNoTierSelected("")
	}

	var tierBp uint16
	switch {
	case deposit.Cmp(routercommon.ApprenticeTierDeposit) == 0:
		tierBp = routercommon.ApprenticeTierBp
	case deposit.Cmp(routercommon.ExpertTierDeposit) == 0:
		tierBp = routercommon.ExpertTierBp
	default:
		return 0, routercommon.ErrNoTierSelected("")
	}

	svc.mu.Lock()
	current := svc.tierBpLocked(token)
	if tierBp >= current {
		svc.mu.Unlock()
		return 0, routercommon.ErrTierNotLower("already at or below that tax tier")
	}

	rec := domain.TierFeeRecord{TierBp: tierBp, IsSet: true}
	svc.tiers[token] = rec
	svc.persistTier(token, rec)
	svc.mu.Unlock()

	svc.ledger.CreditRouterEarned(svc.conf.Native, deposit)
	metrics.TierDeposits.Inc()

	svc.logger.Info().
		Str("token", token.Hex()).
		Str("payer", payer.Hex()).
		Uint16("tier_bp", tierBp).
		Msg("tax tier chosen")
	return tierBp, nil
}

// SetTaxTierLevel sets an explicit tier fee. Router admin only, capped at
// the tier maximum, and strictly lower than the fee currently in effect.
func (svc *Service) SetTaxTierLevel(caller, token common.Address, tierBp uint16) error {
	if caller != svc.conf.Admin {
		return routercommon.ErrNotAuthorized("only the router admin may set tier levels")
	}
	if tierBp > routercommon.MaxTierFeeBp {
		return routercommon.ErrInvalidValue("tier fee exceeds maximum")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if tierBp >= svc.tierBpLocked(token) {
		return routercommon.ErrTierNotLower("")
	}

	rec := domain.TierFeeRecord{TierBp: tierBp, IsSet: true}
	svc.tiers[token] = rec
	svc.persistTier(token, rec)
	return nil
}

func (svc *Service) persistTier(token common.Address, rec domain.TierFeeRecord) {
	if store := svc.store(); store != nil {
		if err := store.SaveTierFee(token, rec); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist tier fee")
		}
	}
}
