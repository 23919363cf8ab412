package http

import (
	"github.com/gin-gonic/gin"

	"github.com/ccmlabs/ccm-router/internal/domain"
	"github.com/ccmlabs/ccm-router/internal/http/httputil"
	"github.com/ccmlabs/ccm-router/internal/services/ledger"
)

// LedgerHandler exposes fee ownership, distribution configuration and
// claim operations over the fee ledger.
type LedgerHandler struct {
	ledgerSvc *ledger.Service
}

func NewLedgerHandler(ledgerSvc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

func (h *LedgerHandler) Root() string {
	return "/ledger"
}

func (h *LedgerHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/claimable", h.getClaimable)
	pub.GET("/owner", h.getFeeOwner)
	pub.GET("/router-earned", h.getRouterEarned)
	pub.GET("/payout", h.getPayout)

	private.POST("/claim-ownership", h.claimOwnership)
	private.POST("/transfer-ownership", h.transferOwnership)
	private.POST("/auto-claim", h.setAutoClaim)
	private.POST("/distribution", h.setDistribution)
	private.POST("/claim", h.claim)

	admin.POST("/controllers", h.registerController)
	admin.POST("/router-withdraw", h.withdrawRouterTaxes)
}

type ClaimOwnershipRequest struct {
	Token string `json:"token" binding:"required"`
}

// @Summary Claim initial fee ownership of a token
// @Description First-come unless a controller is registered for the token,
// @Description in which case only the controller may claim.
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Claiming wallet"
// @Param request body ClaimOwnershipRequest true "Token"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Failure 409 {object} httputil.Response "Already claimed"
// @Router /api/v1/ledger/claim-ownership [post]
func (h *LedgerHandler) claimOwnership(c *gin.Context) {
	var req ClaimOwnershipRequest
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

	if err := h.ledgerSvc.ClaimInitialFeeOwnership(caller, token); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"owner": caller.Hex()})
}

type TransferOwnershipRequest struct {
	Token    string `json:"token" binding:"required"`
	NewOwner string `json:"newOwner" binding:"required"`
}

// @Summary Transfer fee ownership of a token
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Current owner wallet"
// @Param request body TransferOwnershipRequest true "Transfer"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/ledger/transfer-ownership [post]
func (h *LedgerHandler) transferOwnership(c *gin.Context) {
	var req TransferOwnershipRequest
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
	newOwner, err := parseAddress("newOwner", req.NewOwner)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.ledgerSvc.TransferFeeOwnership(caller, token, newOwner); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"owner": newOwner.Hex()})
}

type SetAutoClaimRequest struct {
	Token    string `json:"token" binding:"required"`
	Currency string `json:"currency" binding:"required"`

	// Distribute automatically every N trades; zero disables.
	EveryN uint64 `json:"everyN" example:"10"`
}

// @Summary Configure auto-claim cadence
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body SetAutoClaimRequest true "Cadence"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/ledger/auto-claim [post]
func (h *LedgerHandler) setAutoClaim(c *gin.Context) {
	var req SetAutoClaimRequest
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

	if err := h.ledgerSvc.SetAutoClaim(caller, token, currency, req.EveryN); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type SetDistributionRequest struct {
	Token     string `json:"token" binding:"required"`
	ReceiverA string `json:"receiverA" binding:"required"`
	ReceiverB string `json:"receiverB"`
	ReceiverC string `json:"receiverC"`

	// Shares out of 1000; must sum to exactly 1000 and A must hold the
	// largest share. Rounding remainders go to A.
	ShareA uint16 `json:"shareA" example:"500"`
	ShareB uint16 `json:"shareB" example:"250"`
	ShareC uint16 `json:"shareC" example:"250"`
}

// @Summary Configure the tax distribution split for a token
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body SetDistributionRequest true "Distribution"
// @Success 200 {object} httputil.Response
// @Failure 400 {object} httputil.Response "Shares invalid"
// @Failure 403 {object} httputil.Response
// @Router /api/v1/ledger/distribution [post]
func (h *LedgerHandler) setDistribution(c *gin.Context) {
	var req SetDistributionRequest
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

	dist := &domain.TaxDistribution{
		ShareA: req.ShareA,
		ShareB: req.ShareB,
		ShareC: req.ShareC,
	}
	dist.ReceiverA, err = parseAddress("receiverA", req.ReceiverA)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	if req.ReceiverB != "" {
		dist.ReceiverB, err = parseAddress("receiverB", req.ReceiverB)
		if err != nil {
			httputil.HandleBadRequest(c, err.Error())
			return
		}
	}
	if req.ReceiverC != "" {
		dist.ReceiverC, err = parseAddress("receiverC", req.ReceiverC)
		if err != nil {
			httputil.HandleBadRequest(c, err.Error())
			return
		}
	}

	if err := h.ledgerSvc.SetDistribution(caller, token, dist); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type ClaimRequest struct {
	Token    string `json:"token" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

type ClaimResponse struct {
	Claimed string `json:"claimed"`
}

// @Summary Claim accrued taxes for a (token, currency) pairing
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Fee owner wallet"
// @Param request body ClaimRequest true "Claim target"
// @Success 200 {object} ClaimResponse
// @Failure 403 {object} httputil.Response
// @Router /api/v1/ledger/claim [post]
func (h *LedgerHandler) claim(c *gin.Context) {
	var req ClaimRequest
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

	claimed, err := h.ledgerSvc.Claim(caller, token, currency)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, ClaimResponse{Claimed: bigString(claimed)})
}

type RegisterControllerRequest struct {
	Token      string `json:"token" binding:"required"`
	Controller string `json:"controller" binding:"required"`
}

// @Summary Register a token controller (admin)
// @Description Once registered, only the controller may claim initial fee
// @Description ownership of the token.
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Admin wallet"
// @Param request body RegisterControllerRequest true "Controller"
// @Success 200 {object} httputil.Response
// @Failure 403 {object} httputil.Response
// @Router /api/v1/admin/ledger/controllers [post]
func (h *LedgerHandler) registerController(c *gin.Context) {
	var req RegisterControllerRequest
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
	controller, err := parseAddress("controller", req.Controller)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	if err := h.ledgerSvc.RegisterTokenController(caller, token, controller); err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, gin.H{"status": "ok"})
}

type WithdrawRouterTaxesRequest struct {
	Currency string `json:"currency" binding:"required"`
	To       string `json:"to" binding:"required"`
}

// @Summary Withdraw router earnings (admin)
// @Tags ledger
// @Accept json
// @Produce json
// @Param X-Wallet-Address header string true "Admin wallet"
// @Param request body WithdrawRouterTaxesRequest true "Withdrawal"
// @Success 200 {object} ClaimResponse
// @Failure 403 {object} httputil.Response
// @Router /api/v1/admin/ledger/router-withdraw [post]
func (h *LedgerHandler) withdrawRouterTaxes(c *gin.Context) {
	var req WithdrawRouterTaxesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller, err := callerAddress(c, "")
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	currency, err := parseAddress("currency", req.Currency)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	withdrawn, err := h.ledgerSvc.WithdrawRouterTaxes(caller, currency, to)
	if err != nil {
		httputil.HandleDomainError(c, err)
		return
	}
	httputil.HandleSuccess(c, ClaimResponse{Claimed: bigString(withdrawn)})
}

type ClaimableResponse struct {
	Token        string `json:"token"`
	Currency     string `json:"currency"`
	InAccrued    string `json:"inAccrued"`
	OutAccrued   string `json:"outAccrued"`
	TradeCounter uint64 `json:"tradeCounter"`
	TotalClaimed string `json:"totalClaimed"`
}

// @Summary Get the claimable balance for a (token, currency) pairing
// @Tags ledger
// @Produce json
// @Param token query string true "Token address"
// @Param currency query string true "Settlement currency address"
// @Success 200 {object} ClaimableResponse
// @Router /api/v1/ledger/claimable [get]
func (h *LedgerHandler) getClaimable(c *gin.Context) {
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

	b := h.ledgerSvc.Claimable(token, currency)
	httputil.HandleSuccess(c, ClaimableResponse{
		Token:        token.Hex(),
		Currency:     currency.Hex(),
		InAccrued:    bigString(b.InAccrued),
		OutAccrued:   bigString(b.OutAccrued),
		TradeCounter: b.TradeCounter,
		TotalClaimed: bigString(h.ledgerSvc.TotalClaimed(token, currency)),
	})
}

// @Summary Get the fee owner of a token
// @Tags ledger
// @Produce json
// @Param token query string true "Token address"
// @Success 200 {object} httputil.Response
// @Failure 404 {object} httputil.Response
// @Router /api/v1/ledger/owner [get]
func (h *LedgerHandler) getFeeOwner(c *gin.Context) {
	token, err := parseAddress("token", c.Query("token"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	rec, ok := h.ledgerSvc.FeeOwner(token)
	if !ok || !rec.Initialized {
		httputil.HandleNotFound(c, "fee ownership not claimed")
		return
	}
	httputil.HandleSuccess(c, gin.H{"owner": rec.Owner.Hex()})
}

// @Summary Get router earnings for a currency
// @Tags ledger
// @Produce json
// @Param currency query string true "Currency address"
// @Success 200 {object} httputil.Response
// @Router /api/v1/ledger/router-earned [get]
func (h *LedgerHandler) getRouterEarned(c *gin.Context) {
	currency, err := parseAddress("currency", c.Query("currency"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	httputil.HandleSuccess(c, gin.H{"earned": bigString(h.ledgerSvc.RouterEarned(currency))})
}

// @Summary Get the accumulated payout owed to a receiver
// @Tags ledger
// @Produce json
// @Param receiver query string true "Receiver address"
// @Param currency query string true "Currency address"
// @Success 200 {object} httputil.Response
// @Router /api/v1/ledger/payout [get]
func (h *LedgerHandler) getPayout(c *gin.Context) {
	receiver, err := parseAddress("receiver", c.Query("receiver"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	currency, err := parseAddress("currency", c.Query("currency"))
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	httputil.HandleSuccess(c, gin.H{"payout": bigString(h.ledgerSvc.Payout(receiver, currency))})
}
