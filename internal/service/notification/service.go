package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
	"crewdo-backend/pkg/push"
)

// Repository stores durable notifications
type Repository interface {
	Create(ctx context.Context, notification *domain.NotificationCreate) (*domain.Notification, error)
	MarkPushed(ctx context.Context, notificationID uuid.UUID) error
}

// TokenStore resolves device tokens for push delivery
type TokenStore interface {
	GetActiveTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
	Deactivate(ctx context.Context, tokens []string) error
}

// Dispatcher creates durable notifications and pushes them to the user's devices.
// The durable row is the source of truth; push delivery is best effort.
type Dispatcher struct {
	repo     Repository
	tokens   TokenStore
	provider push.Provider
	metrics  *metrics.Metrics
}

// NewDispatcher creates a notification dispatcher. tokens may be nil when no
// token store is available, in which case only durable rows are written.
func NewDispatcher(repo Repository, tokens TokenStore, provider push.Provider, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		tokens:   tokens,
		provider: provider,
		metrics:  m,
	}
}

// Dispatch writes the notification and attempts a push.
// Only a failure to write the durable row is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, input *domain.NotificationCreate) error {
	notification, err := d.repo.Create(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if d.tokens == nil || d.provider == nil {
		return nil
	}

	tokens, err := d.tokens.GetActiveTokens(ctx, input.UserID)
	if err != nil {
		logger.Warn("Failed to get push tokens",
			zap.String("user_id", input.UserID.String()),
			zap.Error(err))
		return nil
	}
	if len(tokens) == 0 {
		return nil
	}

	result, err := d.provider.Send(ctx, toPush(notification), tokens)
	if d.metrics != nil {
		d.metrics.RecordPushNotification(input.Type, err)
	}
	if err != nil {
		logger.Warn("Failed to push notification",
			zap.String("notification_id", notification.NotificationID.String()),
			zap.String("type", input.Type),
			zap.Error(err))
		return nil
	}

	if len(result.InvalidTokens) > 0 {
		if err := d.tokens.Deactivate(ctx, result.InvalidTokens); err != nil {
			logger.Warn("Failed to deactivate invalid push tokens",
				zap.String("user_id", input.UserID.String()),
				zap.Error(err))
		}
	}
	if result.SuccessCount > 0 {
		if err := d.repo.MarkPushed(ctx, notification.NotificationID); err != nil {
			logger.Warn("Failed to mark notification pushed",
				zap.String("notification_id", notification.NotificationID.String()),
				zap.Error(err))
		}
	}
	return nil
}

func toPush(n *domain.Notification) *push.Notification {
	data := make(map[string]string, len(n.Data)+2)
	for k, v := range n.Data {
		data[k] = v
	}
	data["type"] = n.Type
	data["notification_id"] = n.NotificationID.String()

	p := &push.Notification{
		Title:    n.Title,
		Body:     n.Body,
		Data:     data,
		Priority: "normal",
	}
	if n.Type == domain.NotificationIncomingCall {
		p.Priority = "high"
		p.Sound = "default"
		p.Category = "INCOMING_CALL"
	}
	return p
}
