package config

import (
	"errors"

	"github.com/andrew-solarstorm/go-packages/common"
	ethcommon "github.com/ethereum/go-ethereum/common"

	routercommon "github.com/ccmlabs/ccm-router/internal/common"
)

type RouterConfig struct {
	// Native is the wrapped-native settlement token. Native-leg swap shapes
	// require the path to start or end here; tier deposits are credited in it.
	Native ethcommon.Address

	// Admin may ratchet tier fees down and withdraw router tax earnings.
	Admin ethcommon.Address

	// MaxTotalTaxBp bounds buyBp + sellBp per (token, currency) at setTaxes time.
	MaxTotalTaxBp uint16

	// DefaultAutoClaimEveryN applies to new claimable balances; 0 disables
	// auto-claim until configured per (token, currency).
	DefaultAutoClaimEveryN uint64

	// DBPath is the path to the BoltDB file for router state persistence.
	// Default: "./data/ccm-router.db"
	DBPath string

	// PersistenceEnabled controls whether router state is persisted to disk.
	// Default: true
	PersistenceEnabled bool
}

func (c *RouterConfig) Key() string {
	return ROUTER_CONFIG_KEY
}

func (c *RouterConfig) Load() error {
	native := common.GetEnvOrDefault("ROUTER_NATIVE_TOKEN", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	admin := common.GetEnvOrDefault("ROUTER_ADMIN_ADDRESS", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if !ethcommon.IsHexAddress(native) || !ethcommon.IsHexAddress(admin) {
		return errors.New("invalid router address config")
	}
	c.Native = ethcommon.HexToAddress(native)
	c.Admin = ethcommon.HexToAddress(admin)
	c.MaxTotalTaxBp = uint16(common.GetEnvOrDefaultInt("ROUTER_MAX_TOTAL_TAX_BP", routercommon.BpsDenom))
	c.DefaultAutoClaimEveryN = uint64(common.GetEnvOrDefaultInt("ROUTER_DEFAULT_AUTO_CLAIM_N", 0))
	c.DBPath = common.GetEnvOrDefault("ROUTER_DB_PATH", "./data/ccm-router.db")
	c.PersistenceEnabled = common.GetEnvOrDefault("ROUTER_PERSISTENCE_ENABLED", "true") == "true"
	return c.Validate()
}

func (c *RouterConfig) Validate() error {
	if c.Native == (ethcommon.Address{}) {
		return errors.New("native token address must not be zero")
	}
	if c.Admin == (ethcommon.Address{}) {
		return errors.New("router admin address must not be zero")
	}
	if c.MaxTotalTaxBp > routercommon.BpsDenom {
		return errors.New("max total tax exceeds 10000 bp")
	}
	return nil
}
