package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/middleware"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/push"
	"crewdo-backend/pkg/response"
)

// TokenRegistry stores device push tokens
type TokenRegistry interface {
	Store(ctx context.Context, token *push.Token) error
	GetByToken(ctx context.Context, token string) (*push.Token, error)
	Delete(ctx context.Context, userID uuid.UUID, token string) error
}

// Handler handles push token HTTP requests
type Handler struct {
	tokens TokenRegistry
}

// NewHandler creates a new push token handler
func NewHandler(tokens TokenRegistry) *Handler {
	return &Handler{
		tokens: tokens,
	}
}

// RegisterRoutes mounts the push token endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/push/tokens", h.RegisterToken)
	rg.DELETE("/push/tokens", h.UnregisterToken)
}

// RegisterTokenRequest represents request to register a push token
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required,max=4096"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm web"`
	DeviceID string         `json:"device_id" binding:"max=256"`
	Platform string         `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterToken registers a device token for call notifications
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token := &push.Token{
		UserID:   userID,
		Token:    req.Token,
		Type:     req.Type,
		DeviceID: req.DeviceID,
		Platform: req.Platform,
		Active:   true,
	}
	if err := h.tokens.Store(c.Request.Context(), token); err != nil {
		logger.Error("Failed to register push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to register token")
		return
	}

	logger.Info("Push token registered",
		zap.String("user_id", userID.String()),
		zap.String("token_type", string(req.Type)),
		zap.String("platform", req.Platform))

	response.Success(c, http.StatusCreated, gin.H{
		"token_id": token.ID,
	})
}

// UnregisterToken removes one of the caller's device tokens
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token, err := h.tokens.GetByToken(c.Request.Context(), req.Token)
	if err != nil {
		response.InternalError(c, "Failed to get token")
		return
	}
	if token == nil {
		response.NotFound(c, "Token not found")
		return
	}
	if token.UserID != userID {
		response.Forbidden(c, "Token belongs to another user")
		return
	}

	if err := h.tokens.Delete(c.Request.Context(), userID, req.Token); err != nil {
		response.InternalError(c, "Failed to unregister token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Token unregistered successfully",
	})
}
