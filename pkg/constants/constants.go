// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WebSocketPongWait is how long a connection may stay silent before it is considered dead
	WebSocketPongWait = 60 * time.Second

	// WebSocketPingInterval must be shorter than WebSocketPongWait
	WebSocketPingInterval = 54 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// WebSocketMaxMessageSize caps inbound client frames
	WebSocketMaxMessageSize = 64 * 1024

	// WebSocketSendBuffer is the per-connection outbound queue length
	WebSocketSendBuffer = 256

	// WebSocketMaxConnections is the default connection cap per process
	WebSocketMaxConnections = 10000
)

// Call lifecycle constants
const (
	// ReconcileInterval is the default period of the call reconciliation sweep
	ReconcileInterval = 30 * time.Second

	// ReconcileTimeout bounds a single sweep
	ReconcileTimeout = 20 * time.Second

	// MediaTokenTTL is the default lifetime of a media room join token
	MediaTokenTTL = 6 * time.Hour

	// MaxCallInvitees caps the invite list of a single call
	MaxCallInvitees = 50
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize caps list endpoints
	MaxPageSize = 100
)
