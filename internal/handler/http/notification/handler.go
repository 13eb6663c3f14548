package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/middleware"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/response"
)

// Inbox reads and acknowledges a user's durable notifications
type Inbox interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
}

// Handler handles notification HTTP requests
type Handler struct {
	inbox Inbox
}

// NewHandler creates a new notification handler
func NewHandler(inbox Inbox) *Handler {
	return &Handler{
		inbox: inbox,
	}
}

// RegisterRoutes mounts the notification endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.GetNotifications)
	rg.POST("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications retrieves user's notifications
// GET /v1/notifications
func (h *Handler) GetNotifications(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit := constants.DefaultPageSize
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= constants.MaxPageSize {
			limit = l
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	notifications, err := h.inbox.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(c, "Failed to get notifications")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": notifications,
		"limit":         limit,
		"offset":        offset,
	})
}

// MarkAsRead marks a notification as read
// POST /v1/notifications/:id/read
func (h *Handler) MarkAsRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid notification ID")
		return
	}

	if err := h.inbox.MarkRead(c.Request.Context(), userID, notificationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "Notification not found")
			return
		}
		response.InternalError(c, "Failed to mark notification as read")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Notification marked as read",
	})
}
