package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/repository/redis"
)

func setupRouter(t *testing.T) (*gin.Engine, *redis.PushTokenRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	repo := redis.NewPushTokenRepository(client)

	r := gin.New()
	v1 := r.Group("/v1", func(c *gin.Context) {
		if id, err := uuid.Parse(c.GetHeader("X-User-ID")); err == nil {
			c.Set("user_id", id)
		}
		c.Next()
	})
	NewHandler(repo).RegisterRoutes(v1)
	return r, repo
}

func do(t *testing.T, r *gin.Engine, method string, userID uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, "/v1/push/tokens", &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterToken(t *testing.T) {
	r, repo := setupRouter(t)
	alice := uuid.New()

	tests := []struct {
		name   string
		user   uuid.UUID
		body   gin.H
		status int
	}{
		{"unauthenticated", uuid.Nil, gin.H{"token": "t1", "type": "fcm"}, http.StatusUnauthorized},
		{"missing token", alice, gin.H{"type": "fcm"}, http.StatusBadRequest},
		{"unknown type", alice, gin.H{"token": "t1", "type": "apns"}, http.StatusBadRequest},
		{"unknown platform", alice, gin.H{"token": "t1", "type": "fcm", "platform": "tv"}, http.StatusBadRequest},
		{"valid", alice, gin.H{"token": "t1", "type": "fcm", "platform": "android", "device_id": "pixel"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, tt.user, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	active, err := repo.GetActiveTokens(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, active)
}

func TestUnregisterToken(t *testing.T) {
	r, repo := setupRouter(t)
	alice, mallory := uuid.New(), uuid.New()

	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, alice, gin.H{"token": "t1", "type": "web"}).Code)

	w := do(t, r, http.MethodDelete, mallory, gin.H{"token": "t1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodDelete, alice, gin.H{"token": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodDelete, alice, gin.H{"token": "t1"})
	assert.Equal(t, http.StatusOK, w.Code)

	token, err := repo.GetByToken(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, token)
}
