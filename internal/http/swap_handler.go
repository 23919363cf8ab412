package http

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/http/httputil"
	"github.com/ccmlabs/ccm-router/internal/services/router"
)

// SwapHandler executes settlements. The six methods mirror the engine's
// entry shapes; native shapes require the path to start or end at the
// wrapped-native token.
type SwapHandler struct {
	engine *router.Engine
}

func NewSwapHandler(engine *router.Engine) *SwapHandler {
	return &SwapHandler{engine: engine}
}

func (h *SwapHandler) Root() string {
	return "/swap"
}

func (h *SwapHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	private.POST("", h.swap)
}

type SwapRequest struct {
	// Settlement shape, one of:
	// exactTokensForTokens, tokensForExactTokens,
	// exactNativeForTokens, nativeForExactTokens,
	// exactTokensForNative, tokensForExactNative.
	Method string `json:"method" binding:"required" example:"exactTokensForTokens"`

	// Acting wallet; may also come from the X-Wallet-Address header.
	Payer string `json:"payer" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`

	// Token path, at least two addresses.
	Path []string `json:"path" binding:"required"`

	// Fixed side amount in base units. Input for exact-in shapes, output
	// for exact-out shapes. For exactNativeForTokens this is the sent value.
	Amount string `json:"amount" binding:"required" example:"1000000000000000000"`

	// Bound on the floating side: minimum output for exact-in, maximum
	// input (or sent value) for exact-out. Zero disables the bound.
	Limit string `json:"limit" example:"0"`

	// Recipient of the output; defaults to the payer.
	To string `json:"to"`

	// Unix seconds after which the settlement is rejected. Zero disables.
	Deadline int64 `json:"deadline" example:"1767225600"`
}

type SwapResponse struct {
	SettlementID string              `json:"settlementId"`
	AmountIn     string              `json:"amountIn"`
	AmountOut    string              `json:"amountOut"`
	Route        []string            `json:"route"`
	SegmentCount int                 `json:"segmentCount"`
	Taxes        []TaxChargeResponse `json:"taxes"`
	TierFees     string              `json:"tierFees"`
}

// @Summary Execute a tax-aware swap
// @Description Settle a multi-hop swap atomically: the path is segmented at
// @Description taxable boundaries, token taxes and tier fees are withheld at
// @Description each boundary, and either every segment lands or none does.
// @Tags swap
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string false "Acting wallet address"
// @Param request body SwapRequest true "Swap request"
// @Success 200 {object} SwapResponse
// @Failure 400 {object} httputil.Response "Validation, slippage or deadline failure"
// @Failure 404 {object} httputil.Response "No pair on the path"
// @Router /api/v1/swap [post]
func (h *SwapHandler) swap(c *gin.Context) {
	var req SwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	payer, err := callerAddress(c, req.Payer)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	path, err := parsePath(req.Path)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	limit := new(big.Int)
	if req.Limit != "" && req.Limit != "0" {
		limit, err = parseAmount("limit", req.Limit)
		if err != nil {
			httputil.HandleBadRequest(c, err.Error())
			return
		}
	}

	to := payer
	if req.To != "" {
		to, err = parseAddress("to", req.To)
		if err != nil {
			httputil.HandleBadRequest(c, err.Error())
			return
		}
	}

	var deadline time.Time
	if req.Deadline > 0 {
		deadline = time.Unix(req.Deadline, 0)
	}

	exec, ok := h.method(req.Method)
	if !ok {
		httputil.HandleBadRequest(c, "unknown method: "+req.Method)
		return
	}

	result, err := exec(c.Request.Context(), payer, amount, limit, path, to, deadline)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}

	quote := newQuoteResponse(result)
	httputil.HandleSuccess(c, SwapResponse{
		SettlementID: result.ID.String(),
		AmountIn:     quote.AmountIn,
		AmountOut:    quote.AmountOut,
		Route:        quote.Route,
		SegmentCount: quote.SegmentCount,
		Taxes:        quote.Taxes,
		TierFees:     quote.TierFees,
	})
}

type settleFunc func(ctx context.Context, payer common.Address, amount, limit *big.Int, path []common.Address, to common.Address, deadline time.Time) (*domain.SwapResult, error)

func (h *SwapHandler) method(name string) (settleFunc, bool) {
	switch name {
	case "exactTokensForTokens":
		return h.engine.SwapExactTokensForTokens, true
	case "tokensForExactTokens":
		return h.engine.SwapTokensForExactTokens, true
	case "exactNativeForTokens":
		return h.engine.SwapExactNativeForTokens, true
	case "nativeForExactTokens":
		return h.engine.SwapNativeForExactTokens, true
	case "exactTokensForNative":
		return h.engine.SwapExactTokensForNative, true
	case "tokensForExactNative":
		return h.engine.SwapTokensForExactNative, true
	default:
		return nil, false
	}
}
