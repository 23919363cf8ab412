package tax

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ccmlabs/ccm-router/internal/adapters/persistence"
	routercommon "github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/domain"
)

// SetWalletSellTax adds an extra sell surcharge for one wallet on one
// token, active until expiry. Fee-owner only. There is no cap beyond the
// global tax-sum clamp applied at evaluation time.
func (svc *Service) SetWalletSellTax(caller, token, wallet common.Address, extraSellBp uint16, expiry time.Time) error {
	if !svc.ledger.IsFeeOwner(caller, token) {
		return routercommon.ErrNotAuthorized("caller is not the fee owner")
	}
	if wallet == (common.Address{}) {
		return routercommon.ErrInvalidValue("wallet must not be zero")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	o := &domain.WalletOverride{
		Wallet:      wallet,
		ExtraSellBp: extraSellBp,
		Expiry:      expiry,
	}
	svc.overrides[persistence.CompositeKey(token, wallet)] = o

	if store := svc.store(); store != nil {
		if err := store.SaveWalletOverride(token, o); err != nil {
			svc.logger.Error().Err(err).Msg("failed to persist wallet override")
		}
	}
	return nil
}

// WalletOverride returns a copy of the override for (token, wallet), if set.
func (svc *Service) WalletOverride(token, wallet common.Address) (*domain.WalletOverride, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	o, ok := svc.overrides[persistence.CompositeKey(token, wallet)]
	if !ok {
		return nil, false
	}
	copied := *o
	return &copied, true
}
