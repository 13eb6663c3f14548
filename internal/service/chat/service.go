package chat

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/errors"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
)

const (
	maxContentLength = 4000
	maxEmojiLength   = 64
)

var messageTypes = map[string]bool{
	"text":  true,
	"image": true,
	"file":  true,
}

// MessageRepository persists channel messages
type MessageRepository interface {
	Save(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, channelID, messageID uuid.UUID) (*domain.Message, error)
	ToggleReaction(ctx context.Context, channelID, messageID, userID uuid.UUID, emoji string) (bool, error)
}

// ChannelDirectory answers channel membership questions
type ChannelDirectory interface {
	IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error)
}

// Service handles chat business logic for the socket gateway
type Service struct {
	messageRepo MessageRepository
	channels    ChannelDirectory
	now         func() time.Time
}

// NewService creates a new chat service
func NewService(messageRepo MessageRepository, channels ChannelDirectory) *Service {
	return &Service{
		messageRepo: messageRepo,
		channels:    channels,
		now:         time.Now,
	}
}

// SendMessage validates and stores a message. The caller broadcasts it.
func (s *Service) SendMessage(ctx context.Context, input *domain.MessageCreate) (*domain.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, errors.ValidationError("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, errors.ValidationError("content is too long")
	}
	messageType := input.MessageType
	if messageType == "" {
		messageType = "text"
	}
	if !messageTypes[messageType] {
		return nil, errors.ValidationError("invalid message type")
	}

	if err := s.requireMember(ctx, input.ChannelID, input.SenderID); err != nil {
		return nil, err
	}

	message := &domain.Message{
		ChannelID:   input.ChannelID,
		SenderID:    input.SenderID,
		Content:     content,
		MessageType: messageType,
		ReplyToID:   input.ReplyToID,
		Metadata:    input.Metadata,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		logger.Error("Failed to save message",
			zap.String("channel_id", input.ChannelID.String()),
			zap.Error(err))
		return nil, errors.DatabaseError(err)
	}

	metrics.ChatMessageCreatedTotal.WithLabelValues(messageType).Inc()
	return message, nil
}

// ToggleReaction adds or removes the user's reaction on a message
func (s *Service) ToggleReaction(ctx context.Context, channelID, messageID, userID uuid.UUID, emoji string) (*domain.ReactionUpdate, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiLength {
		return nil, errors.ValidationError("invalid emoji")
	}
	if err := s.requireMember(ctx, channelID, userID); err != nil {
		return nil, err
	}

	if _, err := s.messageRepo.GetByID(ctx, channelID, messageID); err != nil {
		if stderrors.Is(err, domain.ErrNotFound) {
			return nil, errors.NotFoundError("Message")
		}
		return nil, errors.DatabaseError(err)
	}

	added, err := s.messageRepo.ToggleReaction(ctx, channelID, messageID, userID, emoji)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	return &domain.ReactionUpdate{
		ChannelID: channelID,
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Added:     added,
	}, nil
}

func (s *Service) requireMember(ctx context.Context, channelID, userID uuid.UUID) error {
	ok, err := s.channels.IsMember(ctx, channelID, userID)
	if err != nil {
		return errors.DatabaseError(err)
	}
	if !ok {
		return errors.ForbiddenError("not a member of this channel")
	}
	return nil
}
