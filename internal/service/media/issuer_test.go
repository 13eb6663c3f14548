package media

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
)

func parseClaims(t *testing.T, token, secret string) *AccessClaims {
	t.Helper()
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	return claims
}

func TestIssue_HostGrant(t *testing.T) {
	issuer, err := NewLiveKitIssuer("wss://media.example.com", "key", "secret", time.Hour)
	require.NoError(t, err)

	session, err := issuer.Issue(context.Background(), domain.MediaSessionRequest{
		RoomName:    "call-1",
		Identity:    "user-1",
		DisplayName: "Alice",
		Metadata:    `{"call_id":"1"}`,
		IsHost:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "call-1", session.RoomName)
	assert.Equal(t, "wss://media.example.com", session.URL)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	claims := parseClaims(t, session.Token, "secret")
	assert.Equal(t, "key", claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, `{"call_id":"1"}`, claims.Metadata)
	require.NotNil(t, claims.Video)
	assert.Equal(t, "call-1", claims.Video.Room)
	assert.True(t, claims.Video.RoomJoin)
	assert.True(t, claims.Video.RoomAdmin)
	assert.True(t, claims.Video.CanPublish)
}

func TestIssue_GuestIsNotAdmin(t *testing.T) {
	issuer, err := NewLiveKitIssuer("wss://media.example.com", "key", "secret", 0)
	require.NoError(t, err)

	session, err := issuer.Issue(context.Background(), domain.MediaSessionRequest{RoomName: "call-1", Identity: "user-2"})
	require.NoError(t, err)

	claims := parseClaims(t, session.Token, "secret")
	assert.False(t, claims.Video.RoomAdmin)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), session.ExpiresAt, 5*time.Second)
}

func TestIssue_RequiresRoomAndIdentity(t *testing.T) {
	issuer, err := NewLiveKitIssuer("wss://media.example.com", "key", "secret", time.Hour)
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), domain.MediaSessionRequest{RoomName: "call-1"})
	assert.Error(t, err)
}

func TestNewLiveKitIssuer_RequiresCredentials(t *testing.T) {
	_, err := NewLiveKitIssuer("wss://media.example.com", "", "secret", time.Hour)
	assert.Error(t, err)
}
