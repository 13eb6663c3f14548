package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
)

// ChannelLister resolves the channels a user belongs to
type ChannelLister interface {
	ListUserChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Hub delivers events to live connections resolved through the registry.
// Delivery never blocks: a connection whose queue is full is closed and
// the remaining targets still receive the frame.
type Hub struct {
	registry *Registry
	channels ChannelLister
	now      func() time.Time
}

// NewHub creates a hub over registry. channels may be nil, in which case
// presence changes only reach the user's own devices.
func NewHub(registry *Registry, channels ChannelLister) *Hub {
	return &Hub{
		registry: registry,
		channels: channels,
		now:      time.Now,
	}
}

// Registry returns the hub's connection registry
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Close closes every live connection. Their read loops then run the normal disconnect path.
func (h *Hub) Close() {
	for _, c := range h.registry.All() {
		c.Close()
	}
}

// SendToUser delivers to every live connection of the user
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload interface{}) int {
	return h.deliver(h.registry.UserConnections(userID), event, payload)
}

// SendToUsers delivers to every live connection of each user
func (h *Hub) SendToUsers(userIDs []uuid.UUID, event string, payload interface{}) {
	var targets []*Client
	for _, id := range userIDs {
		targets = append(targets, h.registry.UserConnections(id)...)
	}
	h.deliver(dedupe(targets), event, payload)
}

// SendToRoom delivers to every connection joined to room
func (h *Hub) SendToRoom(roomID string, event string, payload interface{}) {
	h.deliver(h.registry.RoomConnections(roomID), event, payload)
}

// SendToRoomExcept delivers to the room, skipping one connection
func (h *Hub) SendToRoomExcept(roomID string, exceptConnID string, event string, payload interface{}) {
	members := h.registry.RoomConnections(roomID)
	targets := members[:0]
	for _, c := range members {
		if c.id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.deliver(targets, event, payload)
}

// SendToRoomAndUsers delivers once per connection to the union of the room
// and the users' connections
func (h *Hub) SendToRoomAndUsers(roomID string, userIDs []uuid.UUID, event string, payload interface{}) {
	targets := h.registry.RoomConnections(roomID)
	for _, id := range userIDs {
		targets = append(targets, h.registry.UserConnections(id)...)
	}
	h.deliver(dedupe(targets), event, payload)
}

// SendToConn delivers to a single connection
func (h *Hub) SendToConn(c *Client, event string, payload interface{}) {
	h.deliver([]*Client{c}, event, payload)
}

// RelaySignal routes an opaque signaling payload to every connection of the
// target user. The payload is never inspected.
func (h *Hub) RelaySignal(fromUser, toUser, callID uuid.UUID, signal json.RawMessage) int {
	return h.SendToUser(toUser, domain.EventWebRTCSignal, &SignalEvent{
		CallID:   callID,
		FromUser: fromUser,
		Signal:   signal,
	})
}

// PublishPresence sends a presence change to the user's devices and to the
// rooms of every channel the user belongs to
func (h *Hub) PublishPresence(ctx context.Context, rec *domain.PresenceRecord) {
	targets := h.registry.UserConnections(rec.UserID)
	if h.channels != nil {
		channelIDs, err := h.channels.ListUserChannelIDs(ctx, rec.UserID)
		if err != nil {
			logger.Warn("Failed to resolve channels for presence broadcast",
				zap.String("user_id", rec.UserID.String()),
				zap.Error(err))
		}
		for _, id := range channelIDs {
			targets = append(targets, h.registry.RoomConnections(domain.ChannelRoomID(id))...)
		}
	}
	h.deliver(dedupe(targets), domain.EventPresenceUpdated, rec)
}

// deliver marshals once and queues the frame on each target
func (h *Hub) deliver(targets []*Client, event string, payload interface{}) int {
	if len(targets) == 0 {
		return 0
	}

	frame, err := json.Marshal(&Event{Event: event, Data: payload, Timestamp: h.now().UTC()})
	if err != nil {
		logger.Error("Failed to marshal event",
			zap.String("event", event),
			zap.Error(err))
		return 0
	}

	delivered := 0
	for _, c := range targets {
		err := c.TrySend(frame)
		if err == nil {
			delivered++
			continue
		}

		metrics.WSFramesDroppedTotal.Inc()
		if errors.Is(err, ErrBackpressure) {
			metrics.WSSlowConsumerClosedTotal.Inc()
			logger.Warn("Closing slow WebSocket consumer",
				zap.String("conn_id", c.id),
				zap.String("user_id", c.userID.String()),
				zap.String("event", event))
			c.Close()
		}
	}
	metrics.WSFramesDeliveredTotal.Add(float64(delivered))
	return delivered
}

func dedupe(clients []*Client) []*Client {
	if len(clients) < 2 {
		return clients
	}
	seen := make(map[string]struct{}, len(clients))
	out := clients[:0]
	for _, c := range clients {
		if _, ok := seen[c.id]; ok {
			continue
		}
		seen[c.id] = struct{}{}
		out = append(out, c)
	}
	return out
}
