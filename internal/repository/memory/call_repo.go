package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"crewdo-backend/internal/domain"
)

// CallRepository keeps calls and participants in process memory.
// Every method runs under one lock, so conditional writes are atomic.
type CallRepository struct {
	mu           sync.RWMutex
	calls        map[uuid.UUID]*domain.Call
	participants map[uuid.UUID]map[uuid.UUID]*domain.CallParticipant
}

// NewCallRepository creates an empty in-memory call repository
func NewCallRepository() *CallRepository {
	return &CallRepository{
		calls:        make(map[uuid.UUID]*domain.Call),
		participants: make(map[uuid.UUID]map[uuid.UUID]*domain.CallParticipant),
	}
}

// Create stores a call and its initial participants
func (r *CallRepository) Create(ctx context.Context, call *domain.Call, participants []*domain.CallParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[call.CallID] = copyCall(call)
	byUser := make(map[uuid.UUID]*domain.CallParticipant, len(participants))
	for _, p := range participants {
		byUser[p.UserID] = copyParticipant(p)
	}
	r.participants[call.CallID] = byUser
	return nil
}

// GetByID retrieves a call
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	call, ok := r.calls[callID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyCall(call), nil
}

// GetParticipants retrieves all participant records of a call ordered by invite time
func (r *CallRepository) GetParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.CallParticipant, 0, len(r.participants[callID]))
	for _, p := range r.participants[callID] {
		out = append(out, copyParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InvitedAt.Equal(out[j].InvitedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].InvitedAt.Before(out[j].InvitedAt)
	})
	return out, nil
}

// ListOpen returns every scheduled or active call
func (r *CallRepository) ListOpen(ctx context.Context) ([]*domain.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Call
	for _, c := range r.calls {
		if c.Status.IsOpen() {
			out = append(out, copyCall(c))
		}
	}
	return out, nil
}

// TransitionStatus moves a call from -> to only if it is still in from
func (r *CallRepository) TransitionStatus(ctx context.Context, callID uuid.UUID, from, to domain.CallStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if call.Status != from {
		return false, nil
	}
	call.Status = to
	call.UpdatedAt = at
	switch to {
	case domain.CallStatusActive:
		call.StartedAt = &at
	case domain.CallStatusEnded, domain.CallStatusCancelled:
		call.EndedAt = &at
		call.ScreenSharingUserID = nil
	}
	return true, nil
}

// JoinParticipant marks p joined if the call is active and p is not already joined.
// Without allowCreate the participant record must already exist.
func (r *CallRepository) JoinParticipant(ctx context.Context, p *domain.CallParticipant, allowCreate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[p.CallID]
	if !ok {
		return domain.ErrNotFound
	}
	existing := r.participants[p.CallID][p.UserID]
	if existing == nil && !allowCreate {
		return domain.ErrNotFound
	}
	if call.Status != domain.CallStatusActive {
		return domain.ErrCallNotActive
	}
	if existing != nil && existing.Status == domain.ParticipantJoined {
		return domain.ErrAlreadyJoined
	}

	joinedAt := *p.JoinedAt
	if existing == nil {
		if r.participants[p.CallID] == nil {
			r.participants[p.CallID] = make(map[uuid.UUID]*domain.CallParticipant)
		}
		existing = &domain.CallParticipant{CallID: p.CallID, UserID: p.UserID, InvitedAt: joinedAt}
		r.participants[p.CallID][p.UserID] = existing
	}
	existing.Status = domain.ParticipantJoined
	existing.IsMuted = p.IsMuted
	existing.IsVideoOff = p.IsVideoOff
	existing.JoinedAt = &joinedAt
	existing.LeftAt = nil
	return nil
}

// LeaveParticipant marks a joined participant as left
func (r *CallRepository) LeaveParticipant(ctx context.Context, callID, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.participants[callID][userID]
	if p == nil || p.Status != domain.ParticipantJoined {
		return domain.ErrNotJoined
	}
	p.Status = domain.ParticipantLeft
	p.LeftAt = &at
	return nil
}

// LeaveAll marks every joined participant as left and returns their ids
func (r *CallRepository) LeaveAll(ctx context.Context, callID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []uuid.UUID
	for _, p := range r.participants[callID] {
		if p.Status != domain.ParticipantJoined {
			continue
		}
		p.Status = domain.ParticipantLeft
		p.LeftAt = &at
		left = append(left, p.UserID)
	}
	return left, nil
}

// UpdateParticipantMedia applies the non-nil flags to a joined participant
func (r *CallRepository) UpdateParticipantMedia(ctx context.Context, callID, userID uuid.UUID, isMuted, isVideoOff *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.participants[callID][userID]
	if p == nil || p.Status != domain.ParticipantJoined {
		return domain.ErrNotJoined
	}
	if isMuted != nil {
		p.IsMuted = *isMuted
	}
	if isVideoOff != nil {
		p.IsVideoOff = *isVideoOff
	}
	return nil
}

// SetScreenSharer makes userID the sharer of an active call and returns the previous sharer
func (r *CallRepository) SetScreenSharer(ctx context.Context, callID, userID uuid.UUID, at time.Time) (*uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if call.Status != domain.CallStatusActive {
		return nil, domain.ErrCallNotActive
	}
	prev := call.ScreenSharingUserID
	sharer := userID
	call.ScreenSharingUserID = &sharer
	call.UpdatedAt = at
	return prev, nil
}

// ClearScreenSharer removes the sharer only if it is userID
func (r *CallRepository) ClearScreenSharer(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if call.ScreenSharingUserID == nil || *call.ScreenSharingUserID != userID {
		return false, nil
	}
	call.ScreenSharingUserID = nil
	call.UpdatedAt = at
	return true, nil
}

// GetUserCalls lists calls the user initiated or was invited to, newest first
func (r *CallRepository) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Call
	for id, c := range r.calls {
		if c.InitiatorID == userID || r.participants[id][userID] != nil {
			out = append(out, copyCall(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyCall(c *domain.Call) *domain.Call {
	cp := *c
	if c.ScreenSharingUserID != nil {
		id := *c.ScreenSharingUserID
		cp.ScreenSharingUserID = &id
	}
	return &cp
}

func copyParticipant(p *domain.CallParticipant) *domain.CallParticipant {
	cp := *p
	return &cp
}
