package reports

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/auth"
	"carbon-scribe/credit-market/internal/reports/export"
)

// Handler handles HTTP requests for reporting operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers reporting routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	{
		reports.GET("/conservation", h.conservation)
		reports.GET("/conservation/latest", h.latestConservation)
		reports.GET("/holdings", h.downloadHoldings)
		reports.POST("/holdings/export", h.uploadHoldings)
	}
}

// conservation handles GET /api/v1/reports/conservation
func (h *Handler) conservation(c *gin.Context) {
	report, err := h.service.RunConservationAudit(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to run conservation audit", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// latestConservation handles GET /api/v1/reports/conservation/latest
func (h *Handler) latestConservation(c *gin.Context) {
	report := h.service.LatestAudit()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audit has run yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// downloadHoldings handles GET /api/v1/reports/holdings?format=
func (h *Handler) downloadHoldings(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportHoldings(c.Request.Context(), &buf, format); err != nil {
		h.logger.Error("Failed to export holdings", zap.Error(err), zap.String("format", string(format)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="holdings.%s"`, format.Extension()))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// uploadHoldings handles POST /api/v1/reports/holdings/export
func (h *Handler) uploadHoldings(c *gin.Context) {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	var req ExportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.service.UploadHoldings(c.Request.Context(), format, caller)
	switch {
	case errors.Is(err, ErrStorageDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, receipt)
	}
}
