package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/errors"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
)

// Repository persists presence records
type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error)
	Save(ctx context.Context, rec *domain.PresenceRecord) error
	ListOnline(ctx context.Context) ([]uuid.UUID, error)
}

// Publisher broadcasts a presence change to observers of the user
type Publisher interface {
	PublishPresence(ctx context.Context, rec *domain.PresenceRecord)
}

// Service tracks per-user presence combining automatic and manual signals
type Service struct {
	repo      Repository
	publisher Publisher
	locks     *userLocks
	now       func() time.Time
}

// NewService creates a new presence service
func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		locks:     newUserLocks(),
		now:       time.Now,
	}
}

// SetAutomaticStatus records a connection-derived status. A manual pin keeps
// the visible status unchanged, but lastSeenAt still advances.
func (s *Service) SetAutomaticStatus(ctx context.Context, userID uuid.UUID, candidate domain.PresenceStatus) (*domain.PresenceRecord, error) {
	if !candidate.Valid() {
		return nil, errors.ValidationError(fmt.Sprintf("invalid presence status %q", candidate))
	}
	return s.mutate(ctx, userID, func(rec *domain.PresenceRecord) bool {
		rec.AutoStatus = candidate
		return true
	})
}

// SetManualStatus pins the visible status until ClearManualStatus runs
func (s *Service) SetManualStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus) (*domain.PresenceRecord, error) {
	if !status.Valid() {
		return nil, errors.ValidationError(fmt.Sprintf("invalid presence status %q", status))
	}
	return s.mutate(ctx, userID, func(rec *domain.PresenceRecord) bool {
		pinned := status
		rec.Source = domain.StatusSourceManual
		rec.ManualStatus = &pinned
		return true
	})
}

// ClearManualStatus removes the pin. The automatic status becomes online when
// the user holds a live connection or was already non-offline, else offline.
func (s *Service) ClearManualStatus(ctx context.Context, userID uuid.UUID, isCurrentlyConnected bool) (*domain.PresenceRecord, error) {
	return s.mutate(ctx, userID, func(rec *domain.PresenceRecord) bool {
		rec.Source = domain.StatusSourceAuto
		rec.ManualStatus = nil
		if isCurrentlyConnected || rec.AutoStatus != domain.PresenceOffline {
			rec.AutoStatus = domain.PresenceOnline
		} else {
			rec.AutoStatus = domain.PresenceOffline
		}
		return true
	})
}

// MarkDisconnected sets the automatic status offline unless stillConnected
// reports a live connection. The check runs under the user's lock, so a
// reconnect that registered first is never overwritten. It returns nil when
// nothing changed.
func (s *Service) MarkDisconnected(ctx context.Context, userID uuid.UUID, stillConnected func() bool) (*domain.PresenceRecord, error) {
	return s.mutate(ctx, userID, func(rec *domain.PresenceRecord) bool {
		if stillConnected() {
			return false
		}
		rec.AutoStatus = domain.PresenceOffline
		return true
	})
}

// ReleaseDisconnected marks offline every recorded-online user without a live
// connection. Records left behind by a previous process are cleared this way.
// It returns the number of users released.
func (s *Service) ReleaseDisconnected(ctx context.Context, isConnected func(uuid.UUID) bool) (int, error) {
	userIDs, err := s.repo.ListOnline(ctx)
	if err != nil {
		return 0, errors.InternalError("failed to list online users").WithDetails(err.Error())
	}

	released := 0
	for _, id := range userIDs {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		userID := id
		rec, err := s.MarkDisconnected(ctx, userID, func() bool { return isConnected(userID) })
		if err != nil {
			logger.Warn("Failed to release stale presence",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		if rec != nil {
			released++
		}
	}

	metrics.PresenceOnlineUsers.Set(float64(len(userIDs) - released))
	return released, nil
}

// GetPresence returns the presence of a single user
func (s *Service) GetPresence(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.InternalError("failed to load presence").WithDetails(err.Error())
	}
	return rec, nil
}

// GetPresences returns presence for each requested user, in request order
func (s *Service) GetPresences(ctx context.Context, userIDs []uuid.UUID) ([]*domain.PresenceRecord, error) {
	out := make([]*domain.PresenceRecord, 0, len(userIDs))
	for _, id := range userIDs {
		rec, err := s.GetPresence(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// mutate runs one read-modify-write under the user's lock, then publishes once.
// apply returning false abandons the write.
func (s *Service) mutate(ctx context.Context, userID uuid.UUID, apply func(rec *domain.PresenceRecord) bool) (*domain.PresenceRecord, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.InternalError("failed to load presence").WithDetails(err.Error())
	}

	if !apply(rec) {
		return nil, nil
	}
	rec.LastSeenAt = s.now().UTC()
	rec.Recompute()

	if err := s.repo.Save(ctx, rec); err != nil {
		logger.Error("Failed to save presence",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, errors.InternalError("failed to save presence")
	}

	metrics.PresenceUpdatesTotal.WithLabelValues(string(rec.Source), string(rec.Status)).Inc()
	if s.publisher != nil {
		s.publisher.PublishPresence(ctx, rec)
	}
	return rec, nil
}

// userLocks hands out one mutex per user and forgets it when unused
type userLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uuid.UUID]*userLock)}
}

func (l *userLocks) lock(userID uuid.UUID) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
