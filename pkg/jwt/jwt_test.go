package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager("test-secret", "crewdo", "crewdo-api", 15*time.Minute)

	assert.NotNil(t, manager)
	assert.Equal(t, "test-secret", manager.secretKey)
	assert.Equal(t, "crewdo", manager.issuer)
	assert.Equal(t, 15*time.Minute, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "crewdo", "crewdo-api", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "test@example.com", "testuser", "user")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, "testuser", claims.DisplayName())
	assert.Equal(t, "user", claims.Role)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", "crewdo", "crewdo-api", 15*time.Minute)
	verifier := NewJWTManager("secret-b", "crewdo", "crewdo-api", 15*time.Minute)

	token, err := issuer.GenerateAccessToken(uuid.New(), "a@example.com", "a", "user")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	manager := NewJWTManager("test-secret", "crewdo", "crewdo-api", -time.Minute)

	token, err := manager.GenerateAccessToken(uuid.New(), "a@example.com", "a", "user")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	issuer := NewJWTManager("test-secret", "crewdo", "other-api", 15*time.Minute)
	verifier := NewJWTManager("test-secret", "crewdo", "crewdo-api", 15*time.Minute)

	token, err := issuer.GenerateAccessToken(uuid.New(), "a@example.com", "a", "user")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	manager := NewJWTManager("test-secret", "", "", 15*time.Minute)
	claims := &Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Garbage(t *testing.T) {
	manager := NewJWTManager("test-secret", "", "", 15*time.Minute)

	_, err := manager.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestDisplayName_FallsBackToEmail(t *testing.T) {
	claims := &Claims{Email: "a@example.com"}
	assert.Equal(t, "a@example.com", claims.DisplayName())
}
