package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"crewdo-backend/internal/domain"
)

// PresenceRepository stores presence records as one Redis hash per user
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// onlineSetKey holds every user whose automatic status is not offline
const onlineSetKey = "presence:online"

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// Get returns the stored record or an offline record for unknown users
func (r *PresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	if len(fields) == 0 {
		return domain.NewOfflinePresence(userID), nil
	}

	rec := &domain.PresenceRecord{
		UserID:     userID,
		Status:     domain.PresenceStatus(fields["status"]),
		Source:     domain.StatusSource(fields["source"]),
		AutoStatus: domain.PresenceStatus(fields["auto_status"]),
	}
	if manual := fields["manual_status"]; manual != "" {
		s := domain.PresenceStatus(manual)
		rec.ManualStatus = &s
	}
	if ts := fields["last_seen_at"]; ts != "" {
		seen, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_seen_at: %w", err)
		}
		rec.LastSeenAt = seen
	}
	if !rec.AutoStatus.Valid() {
		rec.AutoStatus = domain.PresenceOffline
	}
	rec.Recompute()
	return rec, nil
}

// Save replaces the record of rec.UserID atomically
func (r *PresenceRepository) Save(ctx context.Context, rec *domain.PresenceRecord) error {
	key := presenceKey(rec.UserID)
	manual := ""
	if rec.ManualStatus != nil {
		manual = string(*rec.ManualStatus)
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"status", string(rec.Status),
			"source", string(rec.Source),
			"manual_status", manual,
			"auto_status", string(rec.AutoStatus),
			"last_seen_at", rec.LastSeenAt.UTC().Format(time.RFC3339Nano),
		)
		if rec.AutoStatus == domain.PresenceOffline {
			pipe.SRem(ctx, onlineSetKey, rec.UserID.String())
		} else {
			pipe.SAdd(ctx, onlineSetKey, rec.UserID.String())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save presence: %w", err)
	}
	return nil
}

// ListOnline returns the users recorded with a non-offline automatic status
func (r *PresenceRepository) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, nil
}
