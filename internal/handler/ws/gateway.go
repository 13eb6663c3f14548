package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/middleware"
	"crewdo-backend/internal/service/call"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/jwt"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
	"crewdo-backend/pkg/response"
)

// TokenAuthenticator verifies the bearer credential of a connection
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*jwt.Claims, error)
}

// PresenceTracker is the presence service as seen by the gateway
type PresenceTracker interface {
	SetAutomaticStatus(ctx context.Context, userID uuid.UUID, candidate domain.PresenceStatus) (*domain.PresenceRecord, error)
	SetManualStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus) (*domain.PresenceRecord, error)
	ClearManualStatus(ctx context.Context, userID uuid.UUID, isCurrentlyConnected bool) (*domain.PresenceRecord, error)
	MarkDisconnected(ctx context.Context, userID uuid.UUID, stillConnected func() bool) (*domain.PresenceRecord, error)
}

// CallManager is the call lifecycle service as seen by the gateway
type CallManager interface {
	StartCall(ctx context.Context, input *call.StartCallInput) (*domain.CallSnapshot, error)
	JoinCall(ctx context.Context, callID, userID uuid.UUID, media domain.MediaFlags) (*domain.CallSnapshot, error)
	LeaveCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error)
	EndCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error)
	UpdateParticipant(ctx context.Context, callID, userID uuid.UUID, patch domain.ParticipantPatch) (*domain.CallSnapshot, error)
	IssueMediaSession(ctx context.Context, callID, userID uuid.UUID, displayName string) (*domain.MediaSession, error)
	GetCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error)
}

// Messenger persists chat messages and reactions
type Messenger interface {
	SendMessage(ctx context.Context, input *domain.MessageCreate) (*domain.Message, error)
	ToggleReaction(ctx context.Context, channelID, messageID, userID uuid.UUID, emoji string) (*domain.ReactionUpdate, error)
}

// ChannelDirectory resolves standing rooms and channel access
type ChannelDirectory interface {
	ListDirectChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
}

// GatewayConfig holds connection limits and origin policy
type GatewayConfig struct {
	MaxConnections int
	AllowedOrigins []string
	SendBuffer     int
}

// Gateway owns the socket connection lifecycle and dispatches client commands
type Gateway struct {
	hub        *Hub
	registry   *Registry
	auth       TokenAuthenticator
	presence   PresenceTracker
	calls      CallManager
	chat       Messenger
	channels   ChannelDirectory
	upgrader   websocket.Upgrader
	semaphore  chan struct{}
	sendBuffer int
	handlers   map[string]commandHandler
}

// NewGateway creates a socket gateway
func NewGateway(
	cfg GatewayConfig,
	hub *Hub,
	auth TokenAuthenticator,
	presence PresenceTracker,
	calls CallManager,
	chat Messenger,
	channels ChannelDirectory,
) *Gateway {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = constants.WebSocketMaxConnections
	}

	g := &Gateway{
		hub:        hub,
		registry:   hub.Registry(),
		auth:       auth,
		presence:   presence,
		calls:      calls,
		chat:       chat,
		channels:   channels,
		semaphore:  make(chan struct{}, maxConns),
		sendBuffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
	g.handlers = g.commandHandlers()
	return g
}

// originChecker allows requests without an Origin header (native clients)
// and browser origins on the allow list. "*" allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		return set[origin]
	}
}

// ServeWS authenticates and upgrades a connection, then serves it until it closes.
// Authentication happens before the upgrade, so a bad token never opens a socket.
func (g *Gateway) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.Request)
	}
	if token == "" {
		metrics.WSConnectionsRejectedTotal.WithLabelValues("unauthorized").Inc()
		response.Unauthorized(c, "Token required")
		return
	}

	claims, err := g.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		metrics.WSConnectionsRejectedTotal.WithLabelValues("unauthorized").Inc()
		logger.Debug("WebSocket authentication failed", zap.Error(err))
		response.Unauthorized(c, "Invalid token")
		return
	}

	select {
	case g.semaphore <- struct{}{}:
		defer func() { <-g.semaphore }()
	default:
		metrics.WSConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", cap(g.semaphore)))
		response.ServiceUnavailable(c, "Server at capacity, please try again later")
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.WSConnectionsRejectedTotal.WithLabelValues("upgrade").Inc()
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", claims.UserID.String()),
			zap.Error(err))
		return
	}

	client := newClient(conn, claims.UserID, claims.DisplayName(), g.sendBuffer)
	g.connect(client)
	go client.writePump()

	client.readPump(func(frame []byte) {
		g.handleFrame(client, frame)
	})

	g.disconnect(client)
}

// connect registers the connection, marks the user online and joins the
// user's direct message rooms
func (g *Gateway) connect(client *Client) {
	g.registry.Add(client)
	metrics.WSConnectionsActive.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	logger.Info("WebSocket connected",
		zap.String("conn_id", client.id),
		zap.String("user_id", client.userID.String()),
		zap.Int("user_connections", g.registry.UserConnectionCount(client.userID)))

	if _, err := g.presence.SetAutomaticStatus(ctx, client.userID, domain.PresenceOnline); err != nil {
		logger.Warn("Failed to mark user online",
			zap.String("user_id", client.userID.String()),
			zap.Error(err))
	}

	if g.channels == nil {
		return
	}
	channelIDs, err := g.channels.ListDirectChannelIDs(ctx, client.userID)
	if err != nil {
		logger.Warn("Failed to load direct message channels",
			zap.String("user_id", client.userID.String()),
			zap.Error(err))
		return
	}
	for _, id := range channelIDs {
		g.registry.Join(client, domain.ChannelRoomID(id))
	}
}

// disconnect removes every trace of the connection. The user goes offline
// only when this was their last live connection.
func (g *Gateway) disconnect(client *Client) {
	rooms, last := g.registry.Remove(client)
	client.Close()
	metrics.WSConnectionsActive.Dec()

	logger.Info("WebSocket disconnected",
		zap.String("conn_id", client.id),
		zap.String("user_id", client.userID.String()),
		zap.Bool("last_connection", last))

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	for _, room := range rooms {
		callID, ok := callIDFromRoom(room)
		if !ok {
			continue
		}
		g.hub.SendToRoom(room, domain.EventMediaUserLeft, &MediaUserEvent{
			CallID:      callID,
			UserID:      client.userID,
			DisplayName: client.displayName,
		})
		if !g.userInRoom(client.userID, room) {
			g.leaveAbandonedCall(ctx, callID, client.userID)
		}
	}

	if !last {
		return
	}

	if _, err := g.presence.MarkDisconnected(ctx, client.userID, func() bool {
		return g.registry.IsConnected(client.userID)
	}); err != nil {
		logger.Warn("Failed to mark user offline",
			zap.String("user_id", client.userID.String()),
			zap.Error(err))
	}
}

func (g *Gateway) userInRoom(userID uuid.UUID, room string) bool {
	for _, conn := range g.registry.UserConnections(userID) {
		if g.registry.InRoom(conn, room) {
			return true
		}
	}
	return false
}

// leaveAbandonedCall leaves the call for a user with no connection left in its room
func (g *Gateway) leaveAbandonedCall(ctx context.Context, callID, userID uuid.UUID) {
	if _, err := g.calls.LeaveCall(ctx, callID, userID); err != nil {
		logger.Debug("Call leave on disconnect skipped",
			zap.String("call_id", callID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}

func callIDFromRoom(room string) (uuid.UUID, bool) {
	rest, ok := strings.CutPrefix(room, "call:")
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rest)
	return id, err == nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
