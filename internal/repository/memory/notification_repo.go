package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
)

// NotificationRepository keeps notifications in process memory
type NotificationRepository struct {
	mu            sync.RWMutex
	notifications map[uuid.UUID]*domain.Notification
	byUser        map[uuid.UUID][]uuid.UUID
}

// NewNotificationRepository creates an empty in-memory notification repository
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		notifications: make(map[uuid.UUID]*domain.Notification),
		byUser:        make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create stores a new unread notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.NotificationCreate) (*domain.Notification, error) {
	stored := &domain.Notification{
		NotificationID: uuid.New(),
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Data:           copyData(n.Data),
		CreatedAt:      time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifications[stored.NotificationID] = stored
	r.byUser[n.UserID] = append(r.byUser[n.UserID], stored.NotificationID)

	out := *stored
	return &out, nil
}

// MarkPushed records that a push was delivered. Unknown ids return ErrNotFound.
func (r *NotificationRepository) MarkPushed(ctx context.Context, notificationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[notificationID]
	if !ok {
		return domain.ErrNotFound
	}
	n.IsPushed = true
	return nil
}

// ListByUser returns a page of the user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	out := make([]*domain.Notification, 0, limit)
	for i := len(ids) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		n := *r.notifications[ids[i]]
		n.Data = copyData(n.Data)
		out = append(out, &n)
	}
	return out, nil
}

// MarkRead marks one of the user's notifications as read
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[notificationID]
	if !ok || n.UserID != userID {
		return domain.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func copyData(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
