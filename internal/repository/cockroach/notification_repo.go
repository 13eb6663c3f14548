package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crewdo-backend/internal/domain"
)

// NotificationRepository handles notification data operations
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, notification *domain.NotificationCreate) (*domain.Notification, error) {
	query := `
		INSERT INTO notifications (user_id, type, title, body, data, is_read, is_pushed, created_at)
		VALUES ($1, $2, $3, $4, $5, false, false, NOW())
		RETURNING notification_id, user_id, type, title, body, data, is_read, is_pushed, created_at
	`

	var n domain.Notification
	err := r.db.QueryRow(ctx, query,
		notification.UserID,
		notification.Type,
		notification.Title,
		notification.Body,
		notification.Data,
	).Scan(
		&n.NotificationID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Body,
		&n.Data,
		&n.IsRead,
		&n.IsPushed,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return &n, nil
}

// MarkPushed records that a push was delivered for the notification
func (r *NotificationRepository) MarkPushed(ctx context.Context, notificationID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_pushed = true WHERE notification_id = $1
	`, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification pushed: %w", err)
	}
	return nil
}

// ListByUser returns a page of the user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT notification_id, user_id, type, title, body, data, is_read, is_pushed, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Notification, error) {
		var n domain.Notification
		err := row.Scan(
			&n.NotificationID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Body,
			&n.Data,
			&n.IsRead,
			&n.IsPushed,
			&n.CreatedAt,
		)
		return &n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead marks one of the user's notifications as read
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE notification_id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
