package market

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/auth"
	"carbon-scribe/credit-market/internal/ledger"
	"carbon-scribe/credit-market/internal/notifications"
)

// Handler handles HTTP requests for market operations
type Handler struct {
	service Service
	journal notifications.Journal
	logger  *zap.Logger
}

// NewHandler creates a new market handler. journal may be nil, in which
// case the events route is not registered.
func NewHandler(service Service, journal notifications.Journal, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		journal: journal,
		logger:  logger,
	}
}

// RegisterRoutes registers market routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/balances/:owner", h.getBalance)

	credits := router.Group("/credits")
	{
		credits.POST("", h.mint)
		credits.GET("", h.listCredits)
		credits.GET("/:id", h.getCredit)
		credits.POST("/:id/issues", h.reportIssue)
	}

	listings := router.Group("/listings")
	{
		listings.POST("", h.createListing)
		listings.GET("", h.listListings)
		listings.GET("/:id", h.getListing)
		listings.PUT("/:id", h.updateListing)
		listings.POST("/:id/cancel", h.cancelListing)
		listings.POST("/:id/purchase", h.purchase)
	}

	router.POST("/transfers", h.transfer)

	payments := router.Group("/payments")
	{
		payments.POST("/deposits", h.deposit)
		payments.GET("/:account", h.getPaymentBalance)
	}

	if h.journal != nil {
		router.GET("/events", h.listEvents)
	}
}

// getBalance handles GET /api/v1/balances/:owner
func (h *Handler) getBalance(c *gin.Context) {
	owner := c.Param("owner")
	balance, err := h.service.GetBalance(c.Request.Context(), owner)
	if err != nil {
		h.respondError(c, "Failed to get balance", err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{Owner: owner, Balance: balance})
}

// mint handles POST /api/v1/credits
func (h *Handler) mint(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.Mint(c.Request.Context(), caller, req)
	if err != nil {
		h.respondError(c, "Failed to mint credits", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// listCredits handles GET /api/v1/credits
func (h *Handler) listCredits(c *gin.Context) {
	credits, err := h.service.ListCredits(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list credits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits, "count": len(credits)})
}

// getCredit handles GET /api/v1/credits/:id
func (h *Handler) getCredit(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	record, err := h.service.GetCreditInfo(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get credit", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// reportIssue handles POST /api/v1/credits/:id/issues
func (h *Handler) reportIssue(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	var req ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.service.ReportIssue(c.Request.Context(), caller, id, req)
	if err != nil {
		h.respondError(c, "Failed to report issue", err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

// createListing handles POST /api/v1/listings
func (h *Handler) createListing(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.CreateListing(c.Request.Context(), caller, req)
	if err != nil {
		h.respondError(c, "Failed to create listing", err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// listListings handles GET /api/v1/listings
func (h *Handler) listListings(c *gin.Context) {
	filter := ledger.ListingFilter{
		Seller:     c.Query("seller"),
		ActiveOnly: c.Query("active") == "true",
		Limit:      h.getIntParam(c, "limit", 50),
		Offset:     h.getIntParam(c, "offset", 0),
	}
	if raw := c.Query("credit_id"); raw != "" {
		creditID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit_id"})
			return
		}
		filter.CreditID = creditID
	}

	listings, err := h.service.ListListings(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "Failed to list listings", err)
		return
	}
	c.JSON(http.StatusOK, ListingsResponse{Listings: listings, Count: len(listings)})
}

// getListing handles GET /api/v1/listings/:id
func (h *Handler) getListing(c *gin.Context) {
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// updateListing handles PUT /api/v1/listings/:id
func (h *Handler) updateListing(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.UpdateListing(c.Request.Context(), caller, id, req)
	if err != nil {
		h.respondError(c, "Failed to update listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// cancelListing handles POST /api/v1/listings/:id/cancel
func (h *Handler) cancelListing(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	listing, err := h.service.CancelListing(c.Request.Context(), caller, id)
	if err != nil {
		h.respondError(c, "Failed to cancel listing", err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// purchase handles POST /api/v1/listings/:id/purchase
func (h *Handler) purchase(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	id, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	receipt, err := h.service.Purchase(c.Request.Context(), caller, id)
	if err != nil {
		h.respondError(c, "Failed to purchase listing", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// transfer handles POST /api/v1/transfers
func (h *Handler) transfer(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.service.Transfer(c.Request.Context(), caller, req)
	if err != nil {
		h.respondError(c, "Failed to transfer credits", err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// deposit handles POST /api/v1/payments/deposits
func (h *Handler) deposit(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.service.DepositFunds(c.Request.Context(), caller, req)
	if err != nil {
		h.respondError(c, "Failed to deposit funds", err)
		return
	}
	c.JSON(http.StatusOK, PaymentBalanceResponse{Account: req.Account, Balance: balance})
}

// getPaymentBalance handles GET /api/v1/payments/:account
func (h *Handler) getPaymentBalance(c *gin.Context) {
	account := c.Param("account")
	balance, err := h.service.GetPaymentBalance(c.Request.Context(), account)
	if err != nil {
		h.respondError(c, "Failed to get payment balance", err)
		return
	}
	c.JSON(http.StatusOK, PaymentBalanceResponse{Account: account, Balance: balance})
}

// listEvents handles GET /api/v1/events
func (h *Handler) listEvents(c *gin.Context) {
	filter := notifications.JournalFilter{
		Kind:  notifications.EventKind(c.Query("kind")),
		Actor: c.Query("actor"),
		Limit: h.getIntParam(c, "limit", 100),
	}
	if raw := c.Query("credit_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit_id"})
			return
		}
		filter.CreditID = id
	}
	if raw := c.Query("listing_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing_id"})
			return
		}
		filter.ListingID = id
	}

	entries, err := h.journal.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "Failed to list events", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": entries, "count": len(entries)})
}

// =====================================================
// Helper Methods
// =====================================================

func (h *Handler) caller(c *gin.Context) (string, bool) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return "", false
	}
	return caller, true
}

func (h *Handler) idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *Handler) getIntParam(c *gin.Context, key string, defaultValue int) int {
	if value := c.Query(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue >= 0 {
			return intValue
		}
	}
	return defaultValue
}

func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err), zap.String("path", c.Request.URL.Path))
	} else {
		h.logger.Debug(message, zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps ledger errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case ledger.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrOwnerOnly),
		errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrRecipientRejected):
		return http.StatusForbidden
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrListingNotActive):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrAmountOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
