package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crewdo-backend/internal/domain"
)

// CallRepository handles call and participant data operations
type CallRepository struct {
	pool *pgxpool.Pool
}

// NewCallRepository creates a new call repository
func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

const callColumns = `call_id, channel_id, initiator_id, call_type, status, room_name,
	title, scheduled_start, scheduled_end, screen_sharing_user_id,
	started_at, ended_at, created_at, updated_at`

const participantColumns = `call_id, user_id, status, is_muted, is_video_off, invited_at, joined_at, left_at`

// Create inserts a call and its initial participants in one transaction
func (r *CallRepository) Create(ctx context.Context, call *domain.Call, participants []*domain.CallParticipant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO calls (`+callColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		call.CallID,
		call.ChannelID,
		call.InitiatorID,
		call.Type,
		call.Status,
		call.RoomName,
		call.Schedule.Title,
		call.Schedule.ScheduledStart,
		call.Schedule.ScheduledEnd,
		call.ScreenSharingUserID,
		call.StartedAt,
		call.EndedAt,
		call.CreatedAt,
		call.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create call: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range participants {
		batch.Queue(`
			INSERT INTO call_participants (`+participantColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.CallID, p.UserID, p.Status, p.IsMuted, p.IsVideoOff, p.InvitedAt, p.JoinedAt, p.LeftAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to add call participants: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit call: %w", err)
	}
	return nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = $1`, callID)
	call, err := scanCall(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// GetParticipants retrieves all participant records of a call
func (r *CallRepository) GetParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM call_participants
		WHERE call_id = $1
		ORDER BY invited_at ASC, user_id ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get call participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.CallParticipant
	for rows.Next() {
		p := &domain.CallParticipant{}
		if err := rows.Scan(
			&p.CallID, &p.UserID, &p.Status, &p.IsMuted, &p.IsVideoOff,
			&p.InvitedAt, &p.JoinedAt, &p.LeftAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// ListOpen returns every scheduled or active call
func (r *CallRepository) ListOpen(ctx context.Context) ([]*domain.Call, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE status IN ('scheduled', 'active')
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// TransitionStatus moves a call from -> to only if it is still in from.
// Returns false when another writer moved the call first.
func (r *CallRepository) TransitionStatus(ctx context.Context, callID uuid.UUID, from, to domain.CallStatus, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET status = $3::STRING,
		    updated_at = $4,
		    started_at = CASE WHEN $3::STRING = 'active' THEN $4 ELSE started_at END,
		    ended_at = CASE WHEN $3::STRING IN ('ended', 'cancelled') THEN $4 ELSE ended_at END,
		    screen_sharing_user_id = CASE WHEN $3::STRING = 'active' THEN screen_sharing_user_id ELSE NULL END
		WHERE call_id = $1 AND status = $2
	`, callID, from, to, at)
	if err != nil {
		return false, fmt.Errorf("failed to transition call: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish a lost race from a missing call
	if _, err := r.GetByID(ctx, callID); err != nil {
		return false, err
	}
	return false, nil
}

// JoinParticipant marks p joined in one conditional write guarded by
// "call is active" and "participant not joined"
func (r *CallRepository) JoinParticipant(ctx context.Context, p *domain.CallParticipant, allowCreate bool) error {
	var query string
	if allowCreate {
		query = `
			INSERT INTO call_participants (` + participantColumns + `)
			SELECT $1, $2, 'joined', $3, $4, $5, $5, NULL
			WHERE EXISTS (SELECT 1 FROM calls WHERE call_id = $1 AND status = 'active')
			ON CONFLICT (call_id, user_id) DO UPDATE
			SET status = 'joined',
			    is_muted = excluded.is_muted,
			    is_video_off = excluded.is_video_off,
			    joined_at = excluded.joined_at,
			    left_at = NULL
			WHERE call_participants.status <> 'joined'
		`
	} else {
		query = `
			UPDATE call_participants
			SET status = 'joined', is_muted = $3, is_video_off = $4, joined_at = $5, left_at = NULL
			WHERE call_id = $1 AND user_id = $2 AND status <> 'joined'
			  AND EXISTS (SELECT 1 FROM calls WHERE call_id = $1 AND status = 'active')
		`
	}

	tag, err := r.pool.Exec(ctx, query, p.CallID, p.UserID, p.IsMuted, p.IsVideoOff, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to join call: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainJoinMiss(ctx, p.CallID, p.UserID, allowCreate)
}

// explainJoinMiss reports why a conditional join wrote nothing
func (r *CallRepository) explainJoinMiss(ctx context.Context, callID, userID uuid.UUID, allowCreate bool) error {
	call, err := r.GetByID(ctx, callID)
	if err != nil {
		return err
	}

	var status domain.ParticipantStatus
	err = r.pool.QueryRow(ctx, `
		SELECT status FROM call_participants WHERE call_id = $1 AND user_id = $2
	`, callID, userID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if !allowCreate {
			return domain.ErrNotFound
		}
	case err != nil:
		return fmt.Errorf("failed to get participant: %w", err)
	case status == domain.ParticipantJoined:
		return domain.ErrAlreadyJoined
	}

	if call.Status != domain.CallStatusActive {
		return domain.ErrCallNotActive
	}
	return domain.ErrAlreadyJoined
}

// LeaveParticipant marks a joined participant as left
func (r *CallRepository) LeaveParticipant(ctx context.Context, callID, userID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE call_participants
		SET status = 'left', left_at = $3
		WHERE call_id = $1 AND user_id = $2 AND status = 'joined'
	`, callID, userID, at)
	if err != nil {
		return fmt.Errorf("failed to leave call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotJoined
	}
	return nil
}

// LeaveAll marks every joined participant as left and returns their ids
func (r *CallRepository) LeaveAll(ctx context.Context, callID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE call_participants
		SET status = 'left', left_at = $2
		WHERE call_id = $1 AND status = 'joined'
		RETURNING user_id
	`, callID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to remove call participants: %w", err)
	}
	defer rows.Close()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// UpdateParticipantMedia applies the non-nil flags to a joined participant
func (r *CallRepository) UpdateParticipantMedia(ctx context.Context, callID, userID uuid.UUID, isMuted, isVideoOff *bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE call_participants
		SET is_muted = COALESCE($3, is_muted),
		    is_video_off = COALESCE($4, is_video_off)
		WHERE call_id = $1 AND user_id = $2 AND status = 'joined'
	`, callID, userID, isMuted, isVideoOff)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotJoined
	}
	return nil
}

// SetScreenSharer makes userID the sharer of an active call and returns the previous sharer
func (r *CallRepository) SetScreenSharer(ctx context.Context, callID, userID uuid.UUID, at time.Time) (*uuid.UUID, error) {
	var prev *uuid.UUID
	err := r.pool.QueryRow(ctx, `
		WITH prev AS (SELECT screen_sharing_user_id FROM calls WHERE call_id = $1)
		UPDATE calls
		SET screen_sharing_user_id = $2, updated_at = $3
		WHERE call_id = $1 AND status = 'active'
		RETURNING (SELECT screen_sharing_user_id FROM prev)
	`, callID, userID, at).Scan(&prev)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, callID); getErr != nil {
				return nil, getErr
			}
			return nil, domain.ErrCallNotActive
		}
		return nil, fmt.Errorf("failed to set screen sharer: %w", err)
	}
	return prev, nil
}

// ClearScreenSharer removes the sharer only if it is userID
func (r *CallRepository) ClearScreenSharer(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET screen_sharing_user_id = NULL, updated_at = $3
		WHERE call_id = $1 AND screen_sharing_user_id = $2
	`, callID, userID, at)
	if err != nil {
		return false, fmt.Errorf("failed to clear screen sharer: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetUserCalls retrieves calls the user initiated or was invited to
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+callColumns+`
		FROM calls
		WHERE initiator_id = $1
		   OR call_id IN (SELECT call_id FROM call_participants WHERE user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.CallID,
		&call.ChannelID,
		&call.InitiatorID,
		&call.Type,
		&call.Status,
		&call.RoomName,
		&call.Schedule.Title,
		&call.Schedule.ScheduledStart,
		&call.Schedule.ScheduledEnd,
		&call.ScreenSharingUserID,
		&call.StartedAt,
		&call.EndedAt,
		&call.CreatedAt,
		&call.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return call, nil
}

func scanCalls(rows pgx.Rows) ([]*domain.Call, error) {
	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calls: %w", err)
	}
	return calls, nil
}
