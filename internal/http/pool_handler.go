package http

import (
	"github.com/gin-gonic/gin"

	"github.com/ccmlabs/ccm-router/internal/http/httputil"
	"github.com/ccmlabs/ccm-router/internal/services/exchange"
)

// PoolHandler exposes pair creation, liquidity seeding and reserve queries.
type PoolHandler struct {
	exchangeSvc *exchange.Service
}

func NewPoolHandler(exchangeSvc *exchange.Service) *PoolHandler {
	return &PoolHandler{exchangeSvc: exchangeSvc}
}

func (h *PoolHandler) Root() string {
	return "/pools"
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listPairs)
	pub.GET("/reserves", h.getReserves)
	admin.POST("", h.createPair)
	admin.POST("/liquidity", h.addLiquidity)
}

type CreatePairRequest struct {
	TokenA string `json:"tokenA" binding:"required" example:"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"`
	TokenB string `json:"tokenB" binding:"required" example:"0x6B175474E89094C44Da98b954EedeAC495271d0F"`
}

type CreatePairResponse struct {
	Pair string `json:"pair"`
}

// @Summary Create a trading pair
// @Tags pools
// @Accept json
// @Produce json
// @Param request body CreatePairRequest true "Pair tokens"
// @Success 200 {object} CreatePairResponse
// @Failure 400 {object} httputil.Response
// @Failure 409 {object} httputil.Response "Pair already exists"
// @Router /api/v1/admin/pools [post]
func (h *PoolHandler) createPair(c *gin.Context) {
	var req CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	a, err := parseAddress("tokenA", req.TokenA)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	b, err := parseAddress("tokenB", req.TokenB)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	pair, err := h.exchangeSvc.CreatePair(a, b)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, CreatePairResponse{Pair: pair.Hex()})
}

type AddLiquidityRequest struct {
	TokenA  string `json:"tokenA" binding:"required"`
	TokenB  string `json:"tokenB" binding:"required"`
	AmountA string `json:"amountA" binding:"required" example:"1000000000000000000"`
	AmountB string `json:"amountB" binding:"required" example:"2500000000000000000000"`
}

// @Summary Add liquidity to a pair
// @Tags pools
// @Accept json
// @Produce json
// @Param request body AddLiquidityRequest true "Liquidity amounts in base units"
// @Success 200 {object} httputil.Response
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response "Pair not found"
// @Router /api/v1/admin/pools/liquidity [post]
func (h *PoolHandler) addLiquidity(c *gin.Context) {
	var req AddLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	a, err := parseAddress("tokenA", req.TokenA)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	b, err := parseAddress("tokenB", req.TokenB)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	amountA, err := parseAmount("amountA", req.AmountA)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	amountB, err := parseAmount("amountB", req.AmountB)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.exchangeSvc.AddLiquidity(a, b, amountA, amountB); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type PairResponse struct {
	Address  string `json:"address"`
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
}

// @Summary List all pairs
// @Tags pools
// @Produce json
// @Success 200 {array} PairResponse
// @Router /api/v1/pools [get]
func (h *PoolHandler) listPairs(c *gin.Context) {
	pairs := h.exchangeSvc.Pairs()
	out := make([]PairResponse, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PairResponse{
			Address:  p.Address.Hex(),
			Token0:   p.Token0.Hex(),
			Token1:   p.Token1.Hex(),
			Reserve0: bigString(p.Reserve0),
			Reserve1: bigString(p.Reserve1),
		})
	}
	httputil.HandleSuccess(c, out)
}

// @Summary Get oriented reserves for a token pair
// @Tags pools
// @Produce json
// @Param tokenA query string true "First token address"
// @Param tokenB query string true "Second token address"
// @Success 200 {object} PairResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/pools/reserves [get]
func (h *PoolHandler) getReserves(c *gin.Context) {
	a, err := parseAddress("tokenA", c.Query("tokenA"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	b, err := parseAddress("tokenB", c.Query("tokenB"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	rA, rB, err := h.exchangeSvc.Reserves(a, b)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}

	pair, _ := h.exchangeSvc.PairFor(a, b)
	httputil.HandleSuccess(c, PairResponse{
		Address:  pair.Hex(),
		Token0:   a.Hex(),
		Token1:   b.Hex(),
		Reserve0: bigString(rA),
		Reserve1: bigString(rB),
	})
}
