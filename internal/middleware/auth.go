package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/pkg/jwt"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/response"
)

// ErrTokenRevoked is returned for a valid token found on the revocation list
var ErrTokenRevoked = errors.New("token revoked")

// RevocationChecker defines interface for checking if a token is revoked (blacklisted)
type RevocationChecker interface {
	// IsTokenRevoked checks if the token with the given jti has been revoked
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Authenticator verifies bearer tokens for both REST requests and socket upgrades
type Authenticator struct {
	jwtManager *jwt.JWTManager
	revocation RevocationChecker
}

// NewAuthenticator creates an authenticator. revocation may be nil.
func NewAuthenticator(jwtManager *jwt.JWTManager, revocation RevocationChecker) *Authenticator {
	return &Authenticator{
		jwtManager: jwtManager,
		revocation: revocation,
	}
}

// Authenticate validates the token signature, audience and expiry, then
// checks revocation. Revocation lookups fail open.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := a.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	if a.revocation != nil && claims.ID != "" {
		revoked, err := a.revocation.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			logger.Warn("Token revocation check failed, allowing request",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err))
		} else if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware creates a Gin middleware that validates JWT tokens.
// If valid, it sets user_id, username, display_name and role in the Gin context.
func AuthMiddleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrTokenRevoked) {
				response.Unauthorized(c, "Token revoked")
			} else {
				response.Unauthorized(c, "Invalid token")
			}
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("display_name", claims.DisplayName())
		c.Set("role", claims.Role)
		c.Next()
	}
}

// GetUserID returns the authenticated user set by AuthMiddleware
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}

// GetDisplayName returns the display name set by AuthMiddleware
func GetDisplayName(c *gin.Context) string {
	return c.GetString("display_name")
}
