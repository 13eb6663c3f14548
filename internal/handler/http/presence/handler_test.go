package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/repository/memory"
	"crewdo-backend/internal/service/presence"
)

type connectedSet map[uuid.UUID]bool

func (s connectedSet) IsConnected(userID uuid.UUID) bool { return s[userID] }

type countingPublisher struct{ n int }

func (p *countingPublisher) PublishPresence(context.Context, *domain.PresenceRecord) { p.n++ }

func setupRouter(connected connectedSet) (*gin.Engine, *presence.Service, *countingPublisher) {
	gin.SetMode(gin.TestMode)
	pub := &countingPublisher{}
	svc := presence.NewService(memory.NewPresenceRepository(), pub)

	r := gin.New()
	v1 := r.Group("/v1", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-User-ID")); err == nil {
			c.Set("user_id", id)
		}
		c.Next()
	})
	NewHandler(svc, connected).RegisterRoutes(v1)
	return r, svc, pub
}

func request(t *testing.T, r *gin.Engine, method, path string, userID uuid.UUID, body interface{}) (int, json.RawMessage) {
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

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env.Data
}

func TestHandler_UnknownUserIsOffline(t *testing.T) {
	r, _, _ := setupRouter(connectedSet{})
	user := uuid.New()

	status, data := request(t, r, http.MethodGet, "/v1/presence/"+user.String(), uuid.Nil, nil)
	require.Equal(t, http.StatusOK, status)

	var rec domain.PresenceRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, user, rec.UserID)
	assert.Equal(t, domain.PresenceOffline, rec.Status)
}

func TestHandler_ManualPinAndClear(t *testing.T) {
	user := uuid.New()
	r, svc, pub := setupRouter(connectedSet{user: true})
	ctx := context.Background()

	_, err := svc.SetAutomaticStatus(ctx, user, domain.PresenceOnline)
	require.NoError(t, err)

	status, data := request(t, r, http.MethodPut, "/v1/presence/me", user, gin.H{"status": "dnd"})
	require.Equal(t, http.StatusOK, status)
	var rec domain.PresenceRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, domain.PresenceDoNotDisturb, rec.Status)
	assert.Equal(t, domain.StatusSourceManual, rec.Source)

	status, data = request(t, r, http.MethodDelete, "/v1/presence/me", user, nil)
	rec = domain.PresenceRecord{}
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, domain.PresenceOnline, rec.Status)
	assert.Equal(t, domain.StatusSourceAuto, rec.Source)
	assert.Nil(t, rec.ManualStatus)

	assert.Equal(t, 3, pub.n)
}

func TestHandler_RejectsUnknownStatus(t *testing.T) {
	r, _, pub := setupRouter(connectedSet{})

	status, _ := request(t, r, http.MethodPut, "/v1/presence/me", uuid.New(), gin.H{"status": "busy"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Zero(t, pub.n)
}

func TestHandler_QueryPresence(t *testing.T) {
	r, svc, _ := setupRouter(connectedSet{})
	online, unknown := uuid.New(), uuid.New()
	_, err := svc.SetAutomaticStatus(context.Background(), online, domain.PresenceOnline)
	require.NoError(t, err)

	status, data := request(t, r, http.MethodPost, "/v1/presence/query", uuid.New(), gin.H{
		"user_ids": []uuid.UUID{online, unknown},
	})
	require.Equal(t, http.StatusOK, status)

	var out struct {
		Presences []domain.PresenceRecord `json:"presences"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Presences, 2)
	assert.Equal(t, domain.PresenceOnline, out.Presences[0].Status)
	assert.Equal(t, domain.PresenceOffline, out.Presences[1].Status)
}

func TestHandler_ClearRequiresAuthentication(t *testing.T) {
	r, _, _ := setupRouter(connectedSet{})

	status, _ := request(t, r, http.MethodDelete, "/v1/presence/me", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
