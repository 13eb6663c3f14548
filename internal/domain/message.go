package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a channel chat message
// Maps to Cassandra messages table, partitioned by (channel_id, bucket)
type Message struct {
	MessageID   uuid.UUID         `json:"message_id" cql:"message_id"`
	ChannelID   uuid.UUID         `json:"channel_id" cql:"channel_id"`
	Bucket      int               `json:"-" cql:"bucket"`
	SenderID    uuid.UUID         `json:"sender_id" cql:"sender_id"`
	Content     string            `json:"content" cql:"content"`
	MessageType string            `json:"message_type" cql:"message_type"` // text, image, file
	ReplyToID   *uuid.UUID        `json:"reply_to_id,omitempty" cql:"reply_to_id"`
	Metadata    map[string]string `json:"metadata,omitempty" cql:"metadata"`
	CreatedAt   time.Time         `json:"created_at" cql:"created_at"`
}

// CalculateBucket returns the monthly partition bucket (yyyymm) for t
func CalculateBucket(t time.Time) int {
	t = t.UTC()
	return t.Year()*100 + int(t.Month())
}

// MessageCreate represents data needed to send a message
type MessageCreate struct {
	ChannelID   uuid.UUID         `json:"channel_id"`
	SenderID    uuid.UUID         `json:"-"`
	Content     string            `json:"content"`
	MessageType string            `json:"message_type"`
	ReplyToID   *uuid.UUID        `json:"reply_to_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReactionUpdate is the result of toggling an emoji reaction
type ReactionUpdate struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Added     bool      `json:"added"`
}
