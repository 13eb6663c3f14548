package call

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/repository/memory"
	"crewdo-backend/internal/service/call"
)

type discardPublisher struct{}

func (discardPublisher) SendToUsers([]uuid.UUID, string, interface{})                {}
func (discardPublisher) SendToRoom(string, string, interface{})                      {}
func (discardPublisher) SendToRoomAndUsers(string, []uuid.UUID, string, interface{}) {}

type staticIssuer struct{}

func (staticIssuer) Issue(_ context.Context, req domain.MediaSessionRequest) (*domain.MediaSession, error) {
	return &domain.MediaSession{RoomName: req.RoomName, Token: "tok", URL: "wss://media.test"}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := call.NewService(memory.NewCallRepository(), discardPublisher{}, nil, staticIssuer{})

	r := gin.New()
	v1 := r.Group("/v1", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-User-ID")); err == nil {
			c.Set("user_id", id)
			c.Set("display_name", "tester")
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(v1)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, userID uuid.UUID, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func startCall(t *testing.T, r *gin.Engine, initiator, invitee uuid.UUID) uuid.UUID {
	t.Helper()
	status, env := do(t, r, http.MethodPost, "/v1/calls", initiator, gin.H{
		"invitee_ids": []uuid.UUID{invitee},
		"type":        "video",
	})
	require.Equal(t, http.StatusCreated, status)

	var snap domain.CallSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, domain.CallStatusActive, snap.Status)
	return snap.CallID
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	r := setupRouter()

	status, env := do(t, r, http.MethodPost, "/v1/calls", uuid.Nil, gin.H{"type": "voice"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
}

func TestHandler_StartJoinAndLeave(t *testing.T) {
	r := setupRouter()
	alice, bob := uuid.New(), uuid.New()
	callID := startCall(t, r, alice, bob)

	status, _ := do(t, r, http.MethodPost, "/v1/calls/"+callID.String()+"/join", bob, gin.H{"with_video": false})
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, r, http.MethodPost, "/v1/calls/"+callID.String()+"/join", bob, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)

	status, env = do(t, r, http.MethodPatch, "/v1/calls/"+callID.String()+"/participants/me", bob, gin.H{"is_muted": true})
	require.Equal(t, http.StatusOK, status)
	var snap domain.CallSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.True(t, snap.Participant(bob).IsMuted)

	status, env = do(t, r, http.MethodPost, "/v1/calls/"+callID.String()+"/media-session", bob, nil)
	require.Equal(t, http.StatusOK, status)
	var session domain.MediaSession
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, domain.RoomNameFor(callID), session.RoomName)

	for _, user := range []uuid.UUID{bob, alice} {
		status, _ = do(t, r, http.MethodPost, "/v1/calls/"+callID.String()+"/leave", user, nil)
		require.Equal(t, http.StatusOK, status)
	}

	status, env = do(t, r, http.MethodGet, "/v1/calls/"+callID.String(), alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, domain.CallStatusEnded, snap.Status)
}

func TestHandler_GetCallForbiddenToStrangers(t *testing.T) {
	r := setupRouter()
	callID := startCall(t, r, uuid.New(), uuid.New())

	status, env := do(t, r, http.MethodGet, "/v1/calls/"+callID.String(), uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestHandler_UnknownAndMalformedCallIDs(t *testing.T) {
	r := setupRouter()
	user := uuid.New()

	status, env := do(t, r, http.MethodPost, "/v1/calls/"+uuid.NewString()+"/join", user, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "CALL_NOT_FOUND", env.Error.Code)

	status, env = do(t, r, http.MethodPost, "/v1/calls/not-a-uuid/join", user, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestHandler_ScheduleAndCancel(t *testing.T) {
	r := setupRouter()
	alice, bob := uuid.New(), uuid.New()
	start := time.Now().Add(time.Hour).UTC()

	status, env := do(t, r, http.MethodPost, "/v1/calls/schedule", alice, gin.H{
		"invitee_ids":     []uuid.UUID{bob},
		"title":           "Planning",
		"scheduled_start": start,
	})
	require.Equal(t, http.StatusCreated, status)
	var snap domain.CallSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, domain.CallStatusScheduled, snap.Status)

	status, env = do(t, r, http.MethodPost, "/v1/calls/"+snap.CallID.String()+"/join", bob, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, r, http.MethodPost, "/v1/calls/"+snap.CallID.String()+"/cancel", bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = do(t, r, http.MethodPost, "/v1/calls/"+snap.CallID.String()+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, domain.CallStatusCancelled, snap.Status)
}

func TestHandler_ScheduleRequiresStart(t *testing.T) {
	r := setupRouter()

	status, env := do(t, r, http.MethodPost, "/v1/calls/schedule", uuid.New(), gin.H{"title": "No start"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestHandler_GetUserCalls(t *testing.T) {
	r := setupRouter()
	alice := uuid.New()
	startCall(t, r, alice, uuid.New())
	startCall(t, r, alice, uuid.New())

	status, env := do(t, r, http.MethodGet, "/v1/calls?limit=1", alice, nil)
	require.Equal(t, http.StatusOK, status)

	var page struct {
		Calls []domain.Call `json:"calls"`
		Limit int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Calls, 1)
	assert.Equal(t, 1, page.Limit)
}
