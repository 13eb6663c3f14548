package call

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/repository/memory"
)

func TestReconcile_ActivatesOnExactlyOneTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a, b := uuid.New(), uuid.New()
	end := f.clock.Add(time.Hour)

	snap, err := f.svc.ScheduleCall(ctx, &ScheduleCallInput{
		InitiatorID:    a,
		InviteeIDs:     []uuid.UUID{b},
		ScheduledStart: f.clock.Add(-time.Minute),
		ScheduledEnd:   &end,
	})
	require.NoError(t, err)

	first, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Scanned: 1, Changed: 1}, first)

	f.clock = f.clock.Add(30 * time.Second)
	second, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Scanned: 1}, second)

	updates := f.events.byEvent(domain.EventCallUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, domain.CallStatusActive, updates[0].Payload.(*domain.CallSnapshot).Status)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, updates[0].Users)

	stored, err := f.repo.GetByID(ctx, snap.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusActive, stored.Status)
	assert.NotNil(t, stored.StartedAt)
}

func TestReconcile_TimeRules(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	past := base.Add(-2 * time.Hour)
	recent := base.Add(-time.Minute)
	future := base.Add(time.Hour)

	tests := []struct {
		name   string
		status domain.CallStatus
		start  *time.Time
		end    *time.Time
		want   domain.CallStatus
		change bool
	}{
		{"scheduled before start", domain.CallStatusScheduled, &future, nil, "", false},
		{"scheduled at start", domain.CallStatusScheduled, &base, nil, domain.CallStatusActive, true},
		{"scheduled window open", domain.CallStatusScheduled, &past, &future, domain.CallStatusActive, true},
		{"scheduled window missed", domain.CallStatusScheduled, &past, &recent, domain.CallStatusEnded, true},
		{"active without end", domain.CallStatusActive, nil, nil, "", false},
		{"active past end", domain.CallStatusActive, &past, &recent, domain.CallStatusEnded, true},
		{"ended stays ended", domain.CallStatusEnded, &past, &recent, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := &domain.Call{
				Status:   tt.status,
				Schedule: domain.CallSchedule{ScheduledStart: tt.start, ScheduledEnd: tt.end},
			}
			got, ok := dueStatus(call, base)
			assert.Equal(t, tt.change, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.True(t, tt.status.CanTransitionTo(got))
			}
		})
	}
}

func TestReconcile_ActiveCallPastEndReleasesParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a, b := uuid.New(), uuid.New()
	end := f.clock.Add(time.Hour)

	snap, err := f.svc.ScheduleCall(ctx, &ScheduleCallInput{InitiatorID: a, InviteeIDs: []uuid.UUID{b}, ScheduledStart: f.clock, ScheduledEnd: &end})
	require.NoError(t, err)
	_, err = f.svc.Reconcile(ctx)
	require.NoError(t, err)
	_, err = f.svc.JoinCall(ctx, snap.CallID, b, domain.MediaFlags{})
	require.NoError(t, err)

	f.clock = end
	result, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)

	stored, err := f.svc.GetCall(ctx, snap.CallID, a)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, stored.Status)
	assert.Equal(t, domain.ParticipantLeft, stored.Participant(b).Status)
	assert.Len(t, f.events.byEvent(domain.EventCallUpdated), 2)
}

type blockingRepo struct {
	*memory.CallRepository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepo) ListOpen(ctx context.Context) ([]*domain.Call, error) {
	r.entered <- struct{}{}
	<-r.release
	return r.CallRepository.ListOpen(ctx)
}

func TestReconcile_SingleFlight(t *testing.T) {
	repo := &blockingRepo{
		CallRepository: memory.NewCallRepository(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	svc := NewService(repo, &recordingPublisher{}, &recordingNotifier{}, &fakeIssuer{})

	done := make(chan ReconcileResult)
	go func() {
		result, _ := svc.Reconcile(context.Background())
		done <- result
	}()
	<-repo.entered

	overlapping, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, overlapping.Skipped)

	close(repo.release)
	first := <-done
	assert.False(t, first.Skipped)

	go func() { <-repo.entered }()
	next, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, next.Skipped)
}

type countingSweeper struct {
	calls atomic.Int32
	mu    sync.Mutex
	ctxs  []context.Context
}

func (s *countingSweeper) Reconcile(ctx context.Context) (ReconcileResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.ctxs = append(s.ctxs, ctx)
	s.mu.Unlock()
	return ReconcileResult{}, nil
}

func TestReconciler_RunTicksUntilCancelled(t *testing.T) {
	sweeper := &countingSweeper{}
	r := NewReconciler(sweeper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancellation")
	}

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	_, hasDeadline := sweeper.ctxs[0].Deadline()
	assert.True(t, hasDeadline)
}
