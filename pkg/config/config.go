package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"crewdo-backend/pkg/env"
)

// Config holds all configuration for the realtime service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cassandra CassandraConfig `mapstructure:"cassandra"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Media     MediaConfig     `mapstructure:"media"`
	Push      PushConfig      `mapstructure:"push"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"` // development, staging, production
	ServiceName string `mapstructure:"service_name"`
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, text
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// RealtimeConfig holds call, presence and socket settings
type RealtimeConfig struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	MaxConnections    int           `mapstructure:"max_connections"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	CallStore         string        `mapstructure:"call_store"` // cockroach, memory
}

// MediaConfig holds the external media room service settings
type MediaConfig struct {
	URL       string        `mapstructure:"url"`
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// PushConfig holds push notification settings
type PushConfig struct {
	FirebaseProjectID       string `mapstructure:"firebase_project_id"`
	FirebaseCredentialsPath string `mapstructure:"firebase_credentials_path"`
}

// envBindings maps config keys to the environment variables operators already use
var envBindings = map[string]string{
	"server.port":                    "PORT",
	"server.environment":             "ENV",
	"server.service_name":            "SERVICE_NAME",
	"database.host":                  "DB_HOST",
	"database.port":                  "DB_PORT",
	"database.user":                  "DB_USER",
	"database.name":                  "DB_NAME",
	"database.ssl_mode":              "DB_SSL_MODE",
	"database.max_conns":             "DB_MAX_CONNS",
	"database.min_conns":             "DB_MIN_CONNS",
	"redis.host":                     "REDIS_HOST",
	"redis.port":                     "REDIS_PORT",
	"redis.db":                       "REDIS_DB",
	"redis.pool_size":                "REDIS_POOL_SIZE",
	"redis.timeout":                  "REDIS_TIMEOUT",
	"cassandra.hosts":                "CASSANDRA_HOSTS",
	"cassandra.keyspace":             "CASSANDRA_KEYSPACE",
	"cassandra.consistency":          "CASSANDRA_CONSISTENCY",
	"cassandra.timeout":              "CASSANDRA_TIMEOUT",
	"jwt.issuer":                     "JWT_ISSUER",
	"jwt.audience":                   "JWT_AUDIENCE",
	"log.level":                      "LOG_LEVEL",
	"log.format":                     "LOG_FORMAT",
	"log.output":                     "LOG_OUTPUT",
	"log.file_path":                  "LOG_FILE_PATH",
	"realtime.reconcile_interval":    "RECONCILE_INTERVAL",
	"realtime.max_connections":       "WS_MAX_CONNECTIONS",
	"realtime.allowed_origins":       "WS_ALLOWED_ORIGINS",
	"realtime.call_store":            "CALL_STORE",
	"media.url":                      "MEDIA_URL",
	"media.api_key":                  "MEDIA_API_KEY",
	"media.token_ttl":                "MEDIA_TOKEN_TTL",
	"push.firebase_project_id":       "FIREBASE_PROJECT_ID",
	"push.firebase_credentials_path": "FIREBASE_CREDENTIALS_PATH",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.service_name", "realtime-service")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 26257)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.name", "crewdo")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("cassandra.hosts", []string{"localhost"})
	v.SetDefault("cassandra.keyspace", "crewdo")
	v.SetDefault("cassandra.consistency", "QUORUM")
	v.SetDefault("cassandra.timeout", 600*time.Millisecond)

	v.SetDefault("jwt.issuer", "crewdo")
	v.SetDefault("jwt.audience", "crewdo-api")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "/logs/realtime-service.log")

	v.SetDefault("realtime.reconcile_interval", 30*time.Second)
	v.SetDefault("realtime.max_connections", 10000)
	v.SetDefault("realtime.allowed_origins", []string{"*"})
	v.SetDefault("realtime.call_store", "cockroach")

	v.SetDefault("media.url", "ws://localhost:7880")
	v.SetDefault("media.token_ttl", 6*time.Hour)
}

// Load reads defaults, an optional YAML file named by CONFIG_FILE and the environment
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	for key, name := range envBindings {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Secrets may come from Docker secret files
	cfg.Database.Password = env.GetStringFromFile("DB_PASSWORD", cfg.Database.Password)
	cfg.Redis.Password = env.GetStringFromFile("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.JWT.Secret = env.GetStringFromFile("JWT_SECRET", cfg.JWT.Secret)
	cfg.Media.APISecret = env.GetStringFromFile("MEDIA_API_SECRET", cfg.Media.APISecret)

	cfg.Cassandra.Hosts = splitList(cfg.Cassandra.Hosts)
	cfg.Realtime.AllowedOrigins = splitList(cfg.Realtime.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Media.APISecret == "" {
			return fmt.Errorf("MEDIA_API_SECRET must be set in production")
		}
	}
	if c.Realtime.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if c.Realtime.MaxConnections <= 0 {
		return fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	switch c.Realtime.CallStore {
	case "cockroach", "memory":
	default:
		return fmt.Errorf("CALL_STORE must be cockroach or memory, got %q", c.Realtime.CallStore)
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// splitList flattens comma separated entries coming from a single env value
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
