package presence

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/middleware"
	"crewdo-backend/internal/service/presence"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/response"
)

// ConnectionChecker reports whether a user holds a live socket connection
type ConnectionChecker interface {
	IsConnected(userID uuid.UUID) bool
}

// Handler handles presence HTTP requests
type Handler struct {
	presenceService *presence.Service
	connections     ConnectionChecker
}

// NewHandler creates a new presence handler
func NewHandler(presenceService *presence.Service, connections ConnectionChecker) *Handler {
	return &Handler{
		presenceService: presenceService,
		connections:     connections,
	}
}

// RegisterRoutes mounts the presence endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	p := rg.Group("/presence")
	p.GET("/:user_id", h.GetPresence)
	p.POST("/query", h.QueryPresence)
	p.PUT("/me", h.SetManualStatus)
	p.DELETE("/me", h.ClearManualStatus)
}

// SetStatusRequest pins the caller's visible status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=online away dnd offline"`
}

// QueryRequest asks for the presence of several users
type QueryRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1"`
}

// GetPresence returns one user's presence
// GET /v1/presence/:user_id
func (h *Handler) GetPresence(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	rec, err := h.presenceService.GetPresence(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}

// QueryPresence returns presence for a batch of users
// POST /v1/presence/query
func (h *Handler) QueryPresence(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	if len(req.UserIDs) > constants.MaxPageSize {
		response.ValidationError(c, "Too many user IDs")
		return
	}

	records, err := h.presenceService.GetPresences(c.Request.Context(), req.UserIDs)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"presences": records,
	})
}

// SetManualStatus pins the caller's status
// PUT /v1/presence/me
func (h *Handler) SetManualStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	rec, err := h.presenceService.SetManualStatus(c.Request.Context(), userID, domain.PresenceStatus(req.Status))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}

// ClearManualStatus removes the caller's pinned status
// DELETE /v1/presence/me
func (h *Handler) ClearManualStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	rec, err := h.presenceService.ClearManualStatus(c.Request.Context(), userID, h.connections.IsConnected(userID))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, rec)
}
