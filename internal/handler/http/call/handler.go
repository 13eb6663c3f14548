package call

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/middleware"
	"crewdo-backend/internal/service/call"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/response"
)

// Handler handles call HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// RegisterRoutes mounts the call endpoints on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	calls := rg.Group("/calls")
	calls.POST("", h.StartCall)
	calls.POST("/schedule", h.ScheduleCall)
	calls.GET("", h.GetUserCalls)
	calls.GET("/:id", h.GetCall)
	calls.POST("/:id/join", h.JoinCall)
	calls.POST("/:id/leave", h.LeaveCall)
	calls.POST("/:id/end", h.EndCall)
	calls.POST("/:id/cancel", h.CancelCall)
	calls.PATCH("/:id/participants/me", h.UpdateParticipant)
	calls.POST("/:id/media-session", h.IssueMediaSession)
}

// StartCallRequest represents call initiation request
type StartCallRequest struct {
	InviteeIDs []uuid.UUID `json:"invitee_ids"`
	Type       string      `json:"type" binding:"omitempty,oneof=voice video"`
	ChannelID  *uuid.UUID  `json:"channel_id"`
	WithVideo  *bool       `json:"with_video"`
	WithAudio  *bool       `json:"with_audio"`
}

// ScheduleCallRequest represents a call scheduled for later
type ScheduleCallRequest struct {
	InviteeIDs     []uuid.UUID `json:"invitee_ids"`
	Type           string      `json:"type" binding:"omitempty,oneof=voice video"`
	ChannelID      *uuid.UUID  `json:"channel_id"`
	Title          string      `json:"title" binding:"max=200"`
	ScheduledStart time.Time   `json:"scheduled_start" binding:"required"`
	ScheduledEnd   *time.Time  `json:"scheduled_end"`
}

// JoinCallRequest carries the requested media state
type JoinCallRequest struct {
	WithVideo *bool `json:"with_video"`
	WithAudio *bool `json:"with_audio"`
}

// StartCall starts an active call
// POST /v1/calls
func (h *Handler) StartCall(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	snapshot, err := h.callService.StartCall(c.Request.Context(), &call.StartCallInput{
		InitiatorID: userID,
		InviteeIDs:  req.InviteeIDs,
		Type:        domain.CallType(req.Type),
		ChannelID:   req.ChannelID,
		Media:       domain.MediaFlags{WithVideo: req.WithVideo, WithAudio: req.WithAudio},
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, snapshot)
}

// ScheduleCall creates a scheduled call
// POST /v1/calls/schedule
func (h *Handler) ScheduleCall(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req ScheduleCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	snapshot, err := h.callService.ScheduleCall(c.Request.Context(), &call.ScheduleCallInput{
		InitiatorID:    userID,
		InviteeIDs:     req.InviteeIDs,
		Type:           domain.CallType(req.Type),
		ChannelID:      req.ChannelID,
		Title:          req.Title,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, snapshot)
}

// JoinCall joins an active call
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	userID, callID, ok := h.identify(c)
	if !ok {
		return
	}

	var req JoinCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	snapshot, err := h.callService.JoinCall(c.Request.Context(), callID, userID, domain.MediaFlags{
		WithVideo: req.WithVideo,
		WithAudio: req.WithAudio,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// LeaveCall leaves a call
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	h.act(c, h.callService.LeaveCall)
}

// EndCall ends a call for everyone
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	h.act(c, h.callService.EndCall)
}

// CancelCall cancels a scheduled call
// POST /v1/calls/:id/cancel
func (h *Handler) CancelCall(c *gin.Context) {
	h.act(c, h.callService.CancelCall)
}

// GetCall returns a call with its participants
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	h.act(c, h.callService.GetCall)
}

// UpdateParticipant changes the caller's media flags
// PATCH /v1/calls/:id/participants/me
func (h *Handler) UpdateParticipant(c *gin.Context) {
	userID, callID, ok := h.identify(c)
	if !ok {
		return
	}

	var patch domain.ParticipantPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	snapshot, err := h.callService.UpdateParticipant(c.Request.Context(), callID, userID, patch)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

// IssueMediaSession returns a media room credential for a joined participant
// POST /v1/calls/:id/media-session
func (h *Handler) IssueMediaSession(c *gin.Context) {
	userID, callID, ok := h.identify(c)
	if !ok {
		return
	}

	session, err := h.callService.IssueMediaSession(c.Request.Context(), callID, userID, middleware.GetDisplayName(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GetUserCalls returns the caller's call history
// GET /v1/calls?limit=20&offset=0
func (h *Handler) GetUserCalls(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(constants.DefaultPageSize)))
	if err != nil {
		response.ValidationError(c, "Invalid limit")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		response.ValidationError(c, "Invalid offset")
		return
	}

	calls, err := h.callService.GetUserCalls(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls":  calls,
		"limit":  limit,
		"offset": offset,
	})
}

// act runs a call operation that needs only the call and the caller
func (h *Handler) act(c *gin.Context, op func(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error)) {
	userID, callID, ok := h.identify(c)
	if !ok {
		return
	}

	snapshot, err := op(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}

func (h *Handler) identify(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, uuid.Nil, false
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, callID, true
}
