package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChannelRepository reads channel membership owned by the workspace service
type ChannelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(pool *pgxpool.Pool) *ChannelRepository {
	return &ChannelRepository{pool: pool}
}

// ListDirectChannelIDs returns the direct-message channels of a user
func (r *ChannelRepository) ListDirectChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.listChannelIDs(ctx, `
		SELECT c.channel_id
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.channel_id
		WHERE m.user_id = $1 AND c.kind = 'direct'
	`, userID)
}

// ListUserChannelIDs returns every channel the user belongs to
func (r *ChannelRepository) ListUserChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.listChannelIDs(ctx, `
		SELECT channel_id FROM channel_members WHERE user_id = $1
	`, userID)
}

// IsMember reports whether the user may see the channel
func (r *ChannelRepository) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2
		)
	`, channelID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check channel membership: %w", err)
	}
	return exists, nil
}

func (r *ChannelRepository) listChannelIDs(ctx context.Context, query string, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channels: %w", err)
	}
	return ids, nil
}
