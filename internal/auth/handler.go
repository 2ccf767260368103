package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenResponse is returned by the token endpoint
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Handler exposes caller introspection and token exchange
type Handler struct {
	authenticator *Authenticator
	tokenTTL      time.Duration
	logger        *zap.Logger
}

func NewHandler(authenticator *Authenticator, tokenTTL time.Duration, logger *zap.Logger) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &Handler{authenticator: authenticator, tokenTTL: tokenTTL, logger: logger}
}

// Me reports the identity the request authenticated as
func (h *Handler) Me(c *gin.Context) {
	caller, ok := CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}
	authType, _ := c.Get(authTypeKey)
	c.JSON(http.StatusOK, gin.H{"caller": caller, "auth_type": authType})
}

// Token exchanges the current credentials for a short-lived bearer token.
// Callers holding an API key use it to avoid sending the key on every request.
func (h *Handler) Token(c *gin.Context) {
	caller, ok := CallerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "caller identity required"})
		return
	}

	cfg := h.authenticator.config
	if cfg.JWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuance is not configured"})
		return
	}

	expiresAt := time.Now().Add(h.tokenTTL).UTC()
	token, err := IssueToken(cfg.JWTSecret, cfg.Issuer, caller, h.tokenTTL)
	if err != nil {
		h.logger.Error("Failed to issue token", zap.Error(err), zap.String("caller", caller))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	h.logger.Info("Issued access token", zap.String("caller", caller), zap.Time("expires_at", expiresAt))
	c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}
