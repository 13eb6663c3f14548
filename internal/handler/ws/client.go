package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/logger"
)

var (
	// ErrConnectionClosed is returned when sending to a closed connection
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBackpressure is returned when the connection's send queue is full
	ErrBackpressure = errors.New("send queue full")
)

// Client is one live WebSocket connection of a user
type Client struct {
	id          string
	userID      uuid.UUID
	displayName string
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
}

func newClient(conn *websocket.Conn, userID uuid.UUID, displayName string, buffer int) *Client {
	if buffer <= 0 {
		buffer = constants.WebSocketSendBuffer
	}
	return &Client{
		id:          uuid.NewString(),
		userID:      userID,
		displayName: displayName,
		conn:        conn,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user of the connection
func (c *Client) UserID() uuid.UUID { return c.userID }

// TrySend queues a frame without blocking
func (c *Client) TrySend(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close stops the write pump, which closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Closed reports whether Close has been called
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump delivers inbound frames to handle until the socket fails.
// It blocks, so the caller owns the connection lifetime.
func (c *Client) readPump(handle func(frame []byte)) {
	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("conn_id", c.id),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}
		handle(frame)
	}
}

// writePump drains the send queue and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
