package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ccmlabs/ccm-router/internal/http/httputil"
	"github.com/ccmlabs/ccm-router/internal/services/tax"
)

// TaxHandler exposes tax model configuration, taxable pair designation,
// wallet overrides and router tier fees.
type TaxHandler struct {
	taxSvc *tax.Service
}

func NewTaxHandler(taxSvc *tax.Service) *TaxHandler {
	return &TaxHandler{taxSvc: taxSvc}
}

func (h *TaxHandler) Root() string {
	return "/taxes"
}

func (h *TaxHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/model", h.getModel)
	pub.GET("/tier", h.getTier)

	private.POST("", h.setTaxes)
	private.POST("/dynamic-sell", h.setDynamicSellTax)
	private.POST("/taxable-pair", h.setTaxablePair)
	private.POST("/wallet-override", h.setWalletSellTax)
	private.POST("/tier/choose", h.chooseTier)

	admin.POST("/tier", h.setTierLevel)
}

type SetTaxesRequest struct {
	Token    string `json:"token" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	BuyBp    uint16 `json:"buyBp" example:"500"`
	SellBp   uint16 `json:"sellBp" example:"1500"`
	Receiver string `json:"receiver" binding:"required"`
}

// @Summary Configure buy and sell taxes for a token
// @Description Fee-owner only. The caller becomes the model's exempt address
// @Description and the receiver becomes the claim receiver for this pairing.
// @Tags taxes
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body SetTaxesRequest true "Tax configuration"
// @Success 200 {object} httputil.Response
// @Failure 400 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/taxes [post]
func (h *TaxHandler) setTaxes(c *gin.Context) {
	var req SetTaxesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	currency, err := parseAddress("currency", req.Currency)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	receiver, err := parseAddress("receiver", req.Receiver)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.taxSvc.SetTaxes(caller, token, currency, req.BuyBp, req.SellBp, receiver); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type SetDynamicSellTaxRequest struct {
	Token    string `json:"token" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	MinBp    uint16 `json:"minBp" example:"300"`
	BaseBp   uint16 `json:"baseBp" example:"500"`
	MaxBp    uint16 `json:"maxBp" example:"3000"`

	// Idle seconds before escalation resets to zero.
	ResetAfterSec int64 `json:"resetAfterSec" example:"3600"`

	// Idle seconds before the cumulative impact counter resets.
	EscalationResetAfterSec int64 `json:"escalationResetAfterSec" example:"86400"`
}

// @Summary Enable impact-scaled sell taxes
// @Tags taxes
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body SetDynamicSellTaxRequest true "Dynamic sell configuration"
// @Success 200 {object} httputil.Response
// @Failure 400 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/taxes/dynamic-sell [post]
func (h *TaxHandler) setDynamicSellTax(c *gin.Context) {
	var req SetDynamicSellTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	currency, err := parseAddress("currency", req.Currency)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	err = h.taxSvc.SetDynamicSellTax(
		caller, token, currency,
		req.MinBp, req.BaseBp, req.MaxBp,
		time.Duration(req.ResetAfterSec)*time.Second,
		time.Duration(req.EscalationResetAfterSec)*time.Second,
	)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type SetTaxablePairRequest struct {
	Token string `json:"token" binding:"required"`
	Pair  string `json:"pair" binding:"required"`
}

// @Summary Designate a token's taxable pair
// @Tags taxes
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body SetTaxablePairRequest true "Taxable pair designation"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/taxes/taxable-pair [post]
func (h *TaxHandler) setTaxablePair(c *gin.Context) {
	var req SetTaxablePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	pair, err := parseAddress("pair", req.Pair)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.taxSvc.SetTaxablePair(caller, token, pair); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type SetWalletSellTaxRequest struct {
	Token       string `json:"token" binding:"required"`
	Wallet      string `json:"wallet" binding:"required"`
	ExtraSellBp uint16 `json:"extraSellBp" example:"200"`

	// Unix seconds after which the surcharge stops applying.
	Expiry int64 `json:"expiry" binding:"required" example:"1767225600"`
}

// @Summary Add a per-wallet sell surcharge
// @Tags taxes
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body SetWalletSellTaxRequest true "Wallet surcharge"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/taxes/wallet-override [post]
func (h *TaxHandler) setWalletSellTax(c *gin.Context) {
	var req SetWalletSellTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	wallet, err := parseAddress("wallet", req.Wallet)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.taxSvc.SetWalletSellTax(caller, token, wallet, req.ExtraSellBp, time.Unix(req.Expiry, 0)); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type ChooseTierRequest struct {
	Token string `json:"token" binding:"required"`

	// Deposit in native base units; must match a tier on the menu exactly.
	Deposit string `json:"deposit" binding:"required" example:"500000000000000000"`
}

type ChooseTierResponse struct {
	TierBp uint16 `json:"tierBp"`
}

// @Summary Buy down the router tier fee for a token
// @Description The deposit must exactly match a menu tier and the purchased
// @Description rate must be strictly lower than the current one. The deposit
// @Description is credited to the router's native earnings.
// @Tags taxes
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Paying wallet"
// @Param request body ChooseTierRequest true "Tier purchase"
// @Success 200 {object} ChooseTierResponse
// @Failure 400 {object} httputil.Response "No such tier, or tier not lower"
// @Router /api/v1/taxes/tier/choose [post]
func (h *TaxHandler) chooseTier(c *gin.Context) {
	var req ChooseTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	payer, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	deposit, err := parseAmount("deposit", req.Deposit)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	tierBp, err := h.taxSvc.ChooseTaxTierLevel(payer, token, deposit)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, ChooseTierResponse{TierBp: tierBp})
}

type SetTierLevelRequest struct {
	Token  string `json:"token" binding:"required"`
	TierBp uint16 `json:"tierBp" example:"30"`
}

// @Summary Set a token's tier fee directly (admin)
// @Description Admin only; the new rate must be strictly lower than the
// @Description current one.
// @Tags taxes
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Admin wallet"
// @Param request body SetTierLevelRequest true "Tier rate"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/admin/taxes/tier [post]
func (h *TaxHandler) setTierLevel(c *gin.Context) {
	var req SetTierLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	token, err := parseAddress("token", req.Token)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.taxSvc.SetTaxTierLevel(caller, token, req.TierBp); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type TaxModelResponse struct {
	Token                string `json:"token"`
	Currency             string `json:"currency"`
	Receiver             string `json:"receiver"`
	Dynamic              bool   `json:"dynamic"`
	BuyBaseBp            uint16 `json:"buyBaseBp"`
	SellBaseBp           uint16 `json:"sellBaseBp"`
	SellMinBp            uint16 `json:"sellMinBp"`
	SellMaxBp            uint16 `json:"sellMaxBp"`
	EscalationBp         uint32 `json:"escalationBp"`
	CumulativeImpactBp   uint32 `json:"cumulativeImpactBp"`
	LastTradeAt          int64  `json:"lastTradeAt"`
	ResetAfterSec        int64  `json:"resetAfterSec"`
	EscalationResetAfter int64  `json:"escalationResetAfterSec"`
}

// @Summary Get the tax model for a (token, currency) pairing
// @Tags taxes
// @Produce json
// @Param token query string true "Token address"
// @Param currency query string true "Settlement currency address"
// @Success 200 {object} TaxModelResponse
// @Failure 404 {object} httputil.Response
// @Router /api/v1/taxes/model [get]
func (h *TaxHandler) getModel(c *gin.Context) {
	token, err := parseAddress("token", c.Query("token"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	currency, err := parseAddress("currency", c.Query("currency"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	m, ok := h.taxSvc.Model(token, currency)
	if !ok {
		httputil.HandleNotFound(c, "no tax model for pairing")
		return
	}

	var lastTrade int64
	if !m.LastTradeAt.IsZero() {
		lastTrade = m.LastTradeAt.Unix()
	}
	httputil.HandleSuccess(c, TaxModelResponse{
		Token:                m.Token.Hex(),
		Currency:             m.Currency.Hex(),
		Receiver:             m.Receiver.Hex(),
		Dynamic:              m.Dynamic,
		BuyBaseBp:            m.BuyBaseBp,
		SellBaseBp:           m.SellBaseBp,
		SellMinBp:            m.SellMinBp,
		SellMaxBp:            m.SellMaxBp,
		EscalationBp:         m.EscalationBp,
		CumulativeImpactBp:   m.CumulativeImpactBp,
		LastTradeAt:          lastTrade,
		ResetAfterSec:        int64(m.ResetAfter / time.Second),
		EscalationResetAfter: int64(m.EscalationResetAfter / time.Second),
	})
}

// @Summary Get a token's effective tier fee
// @Tags taxes
// @Produce json
// @Param token query string true "Token address"
// @Success 200 {object} ChooseTierResponse
// @Router /api/v1/taxes/tier [get]
func (h *TaxHandler) getTier(c *gin.Context) {
	token, err := parseAddress("token", c.Query("token"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	httputil.HandleSuccess(c, ChooseTierResponse{TierBp: h.taxSvc.TierBp(token)})
}
