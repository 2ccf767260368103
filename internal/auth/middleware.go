package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	callerKey   = "auth_caller"
	authTypeKey = "auth_type"

	// HeaderUserID carries the caller identity when header identities are enabled
	HeaderUserID = "X-User-ID"
)

// Config holds authentication configuration
type Config struct {
	// JWTSecret verifies HS256 bearer tokens; the subject is the caller
	JWTSecret string
	Issuer    string
	// APIKeys maps a key id to the bcrypt hash of its secret. Clients send
	// "ApiKey <id>.<secret>" and act as <id>.
	APIKeys map[string]string
	// AllowHeaderIdentity trusts X-User-ID. Development only.
	AllowHeaderIdentity bool
}

// Result is the outcome of authenticating one request
type Result struct {
	Caller   string
	AuthType string
}

// Authenticator resolves the calling identity of a request
type Authenticator struct {
	config Config
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(config Config, logger *zap.Logger) *Authenticator {
	return &Authenticator{config: config, logger: logger}
}

// Authenticate inspects the Authorization and X-User-ID headers
func (a *Authenticator) Authenticate(r *http.Request) (Result, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if a.config.AllowHeaderIdentity {
			if user := strings.TrimSpace(r.Header.Get(HeaderUserID)); user != "" {
				return Result{Caller: user, AuthType: "header"}, nil
			}
		}
		return Result{}, errors.New("missing Authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return Result{}, errors.New("invalid Authorization header format")
	}

	credentials := strings.TrimSpace(parts[1])
	switch strings.ToLower(parts[0]) {
	case "bearer":
		claims, err := a.validateJWT(credentials)
		if err != nil {
			return Result{}, err
		}
		return Result{Caller: claims.Subject, AuthType: "jwt"}, nil

	case "apikey":
		caller, err := a.validateAPIKey(credentials)
		if err != nil {
			return Result{}, err
		}
		return Result{Caller: caller, AuthType: "apikey"}, nil

	default:
		return Result{}, fmt.Errorf("unsupported authorization type: %s", parts[0])
	}
}

// Middleware rejects unauthenticated requests and stores the caller
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := a.Authenticate(c.Request)
		if err != nil {
			a.logger.Warn("Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed: " + err.Error()})
			return
		}

		c.Set(callerKey, result.Caller)
		c.Set(authTypeKey, result.AuthType)
		c.Next()
	}
}

// CallerFromContext returns the identity stored by Middleware
func CallerFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(callerKey)
	if !ok {
		return "", false
	}
	caller, ok := value.(string)
	return caller, ok && caller != ""
}

// SetCaller stores caller on the context. Tests and internal callers use it
// in place of Middleware.
func SetCaller(c *gin.Context, caller string) {
	c.Set(callerKey, caller)
}

func (a *Authenticator) validateJWT(tokenString string) (*jwt.RegisteredClaims, error) {
	if a.config.JWTSecret == "" {
		return nil, errors.New("JWT secret not configured")
	}

	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.config.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.JWTSecret), nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (a *Authenticator) validateAPIKey(credentials string) (string, error) {
	id, secret, ok := strings.Cut(credentials, ".")
	if !ok || id == "" || secret == "" {
		return "", errors.New("invalid API key format")
	}
	hash, ok := a.config.APIKeys[id]
	if !ok {
		return "", errors.New("invalid API key")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return "", errors.New("invalid API key")
	}
	return id, nil
}

// IssueToken signs an HS256 token for subject. A zero ttl never expires.
func IssueToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HashAPIKey returns the bcrypt hash stored in configuration for secret
func HashAPIKey(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
