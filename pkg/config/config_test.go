package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Realtime.ReconcileInterval)
	assert.Equal(t, 10000, cfg.Realtime.MaxConnections)
	assert.Equal(t, "cockroach", cfg.Realtime.CallStore)
	assert.Equal(t, 6*time.Hour, cfg.Media.TokenTTL)
	assert.Equal(t, []string{"localhost"}, cfg.Cassandra.Hosts)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RECONCILE_INTERVAL", "5s")
	t.Setenv("CASSANDRA_HOSTS", "cass-1, cass-2")
	t.Setenv("CALL_STORE", "memory")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Realtime.ReconcileInterval)
	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "memory", cfg.Realtime.CallStore)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
}

func TestLoad_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt_secret")
	require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.JWT.Secret)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: 7000\nrealtime:\n  max_connections: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Realtime.MaxConnections)
}

func TestLoad_InvalidCallStore(t *testing.T) {
	t.Setenv("CALL_STORE", "sqlite")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Environment: "production"},
		JWT:      JWTConfig{Secret: "short"},
		Realtime: RealtimeConfig{ReconcileInterval: time.Second, MaxConnections: 1, CallStore: "memory"},
	}
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	assert.Error(t, cfg.Validate())

	cfg.Media.APISecret = "media-secret"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsProduction())
}
