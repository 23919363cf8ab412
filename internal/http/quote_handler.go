package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/http/httputil"
	"github.com/ccmlabs/ccm-router/internal/metrics"
	"github.com/ccmlabs/ccm-router/internal/services/router"
)

// QuoteHandler prices swaps through the full tax-aware settlement pipeline
// without committing anything.
type QuoteHandler struct {
	engine *router.Engine
}

func NewQuoteHandler(engine *router.Engine) *QuoteHandler {
	return &QuoteHandler{engine: engine}
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("", h.quote)
}

type QuoteRequest struct {
	// Acting wallet; exemptions and wallet overrides are evaluated against it.
	// Optional, zero address when omitted.
	Payer string `json:"payer" example:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`

	// Token path, at least two addresses.
	Path []string `json:"path" binding:"required"`

	// "ExactIn" prices a fixed input, "ExactOut" a fixed output.
	SwapMode string `json:"swapMode" binding:"required" enums:"ExactIn,ExactOut" example:"ExactIn"`

	// Amount in base units of the fixed side.
	Amount string `json:"amount" binding:"required" example:"1000000000000000000"`
}

type TaxChargeResponse struct {
	Token     string `json:"token"`
	Currency  string `json:"currency"`
	Direction string `json:"direction"`
	RateBp    uint16 `json:"rateBp"`
	Amount    string `json:"amount"`
}

type QuoteResponse struct {
	AmountIn     string              `json:"amountIn"`
	AmountOut    string              `json:"amountOut"`
	Route        []string            `json:"route"`
	SegmentCount int                 `json:"segmentCount"`
	Taxes        []TaxChargeResponse `json:"taxes"`
	TierFees     string              `json:"tierFees"`
}

// @Summary Quote a tax-aware swap
// @Description Price a swap along the given path, including token taxes and
// @Description router tier fees at every taxable boundary. Reserves and tax
// @Description state are left untouched.
// @Tags quote
// @Accept json
// @Produce json
// @Param request body QuoteRequest true "Quote request"
// @Success 200 {object} QuoteResponse
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response "No pair on the path"
// @Router /api/v1/quote [post]
func (h *QuoteHandler) quote(c *gin.Context) {
	start := time.Now()

	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	mode := domain.SwapMode(req.SwapMode)
	if mode != domain.ExactIn && mode != domain.ExactOut {
		httputil.HandleBadRequest(c, "invalid swapMode: must be ExactIn or ExactOut")
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

	var payer = zeroAddress
	if req.Payer != "" {
		payer, err = parseAddress("payer", req.Payer)
		if err != nil {
			httputil.HandleBadRequest(c, err.Error())
			return
		}
	}

	result, err := h.engine.Quote(c.Request.Context(), payer, path, mode, amount)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.QuoteRequests.WithLabelValues(req.SwapMode, status).Inc()
	metrics.QuoteDuration.WithLabelValues(req.SwapMode).Observe(time.Since(start).Seconds())

	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, newQuoteResponse(result))
}

func newQuoteResponse(result *domain.SwapResult) QuoteResponse {
	taxes := make([]TaxChargeResponse, 0, len(result.Taxes))
	for _, t := range result.Taxes {
		taxes = append(taxes, TaxChargeResponse{
			Token:     t.Token.Hex(),
			Currency:  t.Currency.Hex(),
			Direction: string(t.Direction),
			RateBp:    t.RateBp,
			Amount:    bigString(t.Amount),
		})
	}
	return QuoteResponse{
		AmountIn:     bigString(result.AmountIn),
		AmountOut:    bigString(result.AmountOut),
		Route:        hexPath(result.Route),
		SegmentCount: result.SegmentCount,
		Taxes:        taxes,
		TierFees:     bigString(result.TierFees),
	}
}
