package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/metrics"
)

// MessageRepository handles channel message storage in Cassandra.
// Messages are partitioned by (channel_id, bucket) with a monthly bucket.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a new message. MessageID is a time UUID so the bucket can be
// recovered from the id alone.
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveCassandraQuery("insert", "messages", start, err) }()

	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.UUID(gocql.UUIDFromTime(message.CreatedAt))
	}
	if message.Bucket == 0 {
		message.Bucket = domain.CalculateBucket(message.CreatedAt)
	}

	var replyTo *gocql.UUID
	if message.ReplyToID != nil {
		id := gocql.UUID(*message.ReplyToID)
		replyTo = &id
	}

	err = r.session.Query(`
		INSERT INTO messages (
			channel_id, bucket, message_id, sender_id, content,
			message_type, reply_to_id, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		gocql.UUID(message.ChannelID),
		message.Bucket,
		gocql.UUID(message.MessageID),
		gocql.UUID(message.SenderID),
		message.Content,
		message.MessageType,
		replyTo,
		message.Metadata,
		message.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetByID retrieves a specific message
func (r *MessageRepository) GetByID(ctx context.Context, channelID, messageID uuid.UUID) (_ *domain.Message, err error) {
	start := time.Now()
	defer func() { metrics.ObserveCassandraQuery("select", "messages", start, err) }()

	bucket, ok := bucketOf(messageID)
	if !ok {
		return nil, domain.ErrNotFound
	}

	var (
		chID, msgID, senderID gocql.UUID
		replyTo               *gocql.UUID
		message               = &domain.Message{}
	)
	err = r.session.Query(`
		SELECT channel_id, bucket, message_id, sender_id, content,
		       message_type, reply_to_id, metadata, created_at
		FROM messages
		WHERE channel_id = ? AND bucket = ? AND message_id = ?
		LIMIT 1
	`, gocql.UUID(channelID), bucket, gocql.UUID(messageID)).WithContext(ctx).Scan(
		&chID,
		&message.Bucket,
		&msgID,
		&senderID,
		&message.Content,
		&message.MessageType,
		&replyTo,
		&message.Metadata,
		&message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	message.ChannelID = uuid.UUID(chID)
	message.MessageID = uuid.UUID(msgID)
	message.SenderID = uuid.UUID(senderID)
	if replyTo != nil {
		id := uuid.UUID(*replyTo)
		message.ReplyToID = &id
	}
	return message, nil
}

// ToggleReaction adds the user's emoji reaction or removes it when present.
// Both directions are lightweight transactions so concurrent toggles settle.
func (r *MessageRepository) ToggleReaction(ctx context.Context, channelID, messageID, userID uuid.UUID, emoji string) (added bool, err error) {
	start := time.Now()
	defer func() { metrics.ObserveCassandraQuery("toggle", "message_reactions", start, err) }()

	applied, err := r.session.Query(`
		INSERT INTO message_reactions (channel_id, message_id, emoji, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		IF NOT EXISTS
	`, gocql.UUID(channelID), gocql.UUID(messageID), emoji, gocql.UUID(userID), time.Now().UTC()).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to add reaction: %w", err)
	}
	if applied {
		return true, nil
	}

	_, err = r.session.Query(`
		DELETE FROM message_reactions
		WHERE channel_id = ? AND message_id = ? AND emoji = ? AND user_id = ?
		IF EXISTS
	`, gocql.UUID(channelID), gocql.UUID(messageID), emoji, gocql.UUID(userID)).
		WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to remove reaction: %w", err)
	}
	return false, nil
}

// bucketOf derives the partition bucket from a version 1 message id
func bucketOf(messageID uuid.UUID) (int, bool) {
	if messageID.Version() != 1 {
		return 0, false
	}
	sec, nsec := messageID.Time().UnixTime()
	return domain.CalculateBucket(time.Unix(sec, nsec)), true
}
