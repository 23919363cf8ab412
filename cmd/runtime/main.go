package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/ccmlabs/ccm-router/internal/adapters/persistence"
	"github.com/ccmlabs/ccm-router/internal/common"
	"github.com/ccmlabs/ccm-router/internal/config"
	"github.com/ccmlabs/ccm-router/internal/http"
	"github.com/ccmlabs/ccm-router/internal/services/exchange"
	"github.com/ccmlabs/ccm-router/internal/services/ledger"
	"github.com/ccmlabs/ccm-router/internal/services/router"
	"github.com/ccmlabs/ccm-router/internal/services/tax"
)

// @title CCM Router API
// @version 1.0
// @description Tax-aware settlement router in front of a constant-product exchange.
// @description
// @description ## - Features
// @description - **Tax-Aware Routing**: Multi-hop paths segmented at taxable boundaries
// @description - **Dynamic Sell Taxes**: Impact-scaled rates with idle decay
// @description - **Tier Fees**: Buy-down menu for the router's per-boundary fee
// @description - **Atomic Settlement**: Every segment lands or none does
// @description - **Fee Ledger**: Accrual, three-way distribution and auto-claim
// @description
// @description ## - Usage Tips
// @description - Amounts are strings in base units (18 decimals for most tokens)
// @description - Rates are basis points: 100 bp = 1%
// @description - Distribution shares are out of 1000
// @description - Rate Limit: 10 requests/second (burst: 20)
//
// @BasePath /
// @schemes http
// @tag.name quote
// @tag.description Price tax-aware swaps without committing state
// @tag.name swap
// @tag.description Execute atomic multi-hop settlements
// @tag.name taxes
// @tag.description Tax models, taxable pairs, wallet overrides and tier fees
// @tag.name ledger
// @tag.description Fee ownership, distributions and claims
// @tag.name pools
// @tag.description Pair creation, liquidity and reserves

func main() {
	// GOGC, GOMAXPROCS, GOMEMLIMIT tuning
	common.InitRuntime()

	// load env
	err := godotenv.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load env")
		return
	}

	// di container config
	conf := container.NewConf(
		&config.GeneralConfig{},
		&config.RouterConfig{},
	)

	// di container; instances start in dependency order
	dic, err := container.New(
		conf,

		&persistence.Service{},
		&exchange.Service{},
		&ledger.Service{},
		&tax.Service{},
		&router.Engine{},

		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
