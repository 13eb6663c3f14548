package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
)

// PresenceRepository stores presence records in process memory.
// Used when Redis is unavailable at startup.
type PresenceRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.PresenceRecord
}

// NewPresenceRepository creates an empty in-memory presence store
func NewPresenceRepository() *PresenceRepository {
	return &PresenceRepository{records: make(map[uuid.UUID]domain.PresenceRecord)}
}

// Get returns the stored record or an offline record for unknown users
func (r *PresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return domain.NewOfflinePresence(userID), nil
	}
	return clonePresence(rec), nil
}

// Save replaces the record of rec.UserID
func (r *PresenceRepository) Save(ctx context.Context, rec *domain.PresenceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.UserID] = *clonePresence(*rec)
	return nil
}

// ListOnline returns the users whose automatic status is not offline
func (r *PresenceRepository) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []uuid.UUID
	for id, rec := range r.records {
		if rec.AutoStatus != domain.PresenceOffline {
			out = append(out, id)
		}
	}
	return out, nil
}

func clonePresence(rec domain.PresenceRecord) *domain.PresenceRecord {
	if rec.ManualStatus != nil {
		s := *rec.ManualStatus
		rec.ManualStatus = &s
	}
	return &rec
}
