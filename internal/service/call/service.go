package call

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/pkg/constants"
	"crewdo-backend/pkg/errors"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
)

// Repository persists calls and participants.
// TransitionStatus and JoinParticipant are conditional writes.
type Repository interface {
	Create(ctx context.Context, call *domain.Call, participants []*domain.CallParticipant) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	GetParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error)
	ListOpen(ctx context.Context) ([]*domain.Call, error)
	TransitionStatus(ctx context.Context, callID uuid.UUID, from, to domain.CallStatus, at time.Time) (bool, error)
	JoinParticipant(ctx context.Context, p *domain.CallParticipant, allowCreate bool) error
	LeaveParticipant(ctx context.Context, callID, userID uuid.UUID, at time.Time) error
	LeaveAll(ctx context.Context, callID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	UpdateParticipantMedia(ctx context.Context, callID, userID uuid.UUID, isMuted, isVideoOff *bool) error
	SetScreenSharer(ctx context.Context, callID, userID uuid.UUID, at time.Time) (*uuid.UUID, error)
	ClearScreenSharer(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
}

// EventPublisher delivers call events to live connections
type EventPublisher interface {
	SendToUsers(userIDs []uuid.UUID, event string, payload interface{})
	SendToRoomAndUsers(roomID string, userIDs []uuid.UUID, event string, payload interface{})
}

// Notifier creates durable notifications
type Notifier interface {
	Dispatch(ctx context.Context, notification *domain.NotificationCreate) error
}

// SessionIssuer issues media room credentials
type SessionIssuer interface {
	Issue(ctx context.Context, req domain.MediaSessionRequest) (*domain.MediaSession, error)
}

// Service drives the call lifecycle state machine
type Service struct {
	repo        Repository
	events      EventPublisher
	notifier    Notifier
	issuer      SessionIssuer
	now         func() time.Time
	reconciling atomic.Bool
}

// NewService creates a new call service
func NewService(repo Repository, events EventPublisher, notifier Notifier, issuer SessionIssuer) *Service {
	return &Service{
		repo:     repo,
		events:   events,
		notifier: notifier,
		issuer:   issuer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ScheduleCallInput contains scheduling data
type ScheduleCallInput struct {
	InitiatorID    uuid.UUID
	InviteeIDs     []uuid.UUID
	Type           domain.CallType
	ChannelID      *uuid.UUID
	Title          string
	ScheduledStart time.Time
	ScheduledEnd   *time.Time
}

// ScheduleCall creates a scheduled call and notifies the invitees
func (s *Service) ScheduleCall(ctx context.Context, input *ScheduleCallInput) (*domain.CallSnapshot, error) {
	callType, err := normalizeType(input.Type)
	if err != nil {
		return nil, err
	}
	if input.ScheduledStart.IsZero() {
		return nil, errors.ValidationError("scheduled_start is required")
	}
	if input.ScheduledEnd != nil && !input.ScheduledStart.Before(*input.ScheduledEnd) {
		return nil, errors.ValidationError("scheduled_start must be before scheduled_end")
	}
	invitees, err := normalizeInvitees(input.InitiatorID, input.InviteeIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := input.ScheduledStart.UTC()
	var end *time.Time
	if input.ScheduledEnd != nil {
		e := input.ScheduledEnd.UTC()
		end = &e
	}

	callID := uuid.New()
	call := &domain.Call{
		CallID:      callID,
		ChannelID:   input.ChannelID,
		InitiatorID: input.InitiatorID,
		Type:        callType,
		Status:      domain.CallStatusScheduled,
		RoomName:    domain.RoomNameFor(callID),
		Schedule: domain.CallSchedule{
			Title:          input.Title,
			ScheduledStart: &start,
			ScheduledEnd:   end,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	participants := make([]*domain.CallParticipant, 0, len(invitees)+1)
	participants = append(participants, invited(callID, input.InitiatorID, now))
	for _, id := range invitees {
		participants = append(participants, invited(callID, id, now))
	}

	if err := s.repo.Create(ctx, call, participants); err != nil {
		return nil, errors.DatabaseError(fmt.Errorf("failed to create call: %w", err))
	}

	logger.Info("Call scheduled",
		zap.String("call_id", callID.String()),
		zap.String("initiator_id", input.InitiatorID.String()),
		zap.Time("scheduled_start", start))

	title := input.Title
	if title == "" {
		title = "Scheduled call"
	}
	s.notify(ctx, invitees, &domain.NotificationCreate{
		Type:  domain.NotificationCallScheduled,
		Title: title,
		Body:  fmt.Sprintf("You have been invited to a call at %s", start.Format(time.RFC1123)),
		Data: map[string]string{
			"call_id":         callID.String(),
			"scheduled_start": start.Format(time.RFC3339),
		},
	})

	return &domain.CallSnapshot{Call: call, Participants: participants}, nil
}

// StartCallInput contains call initiation data
type StartCallInput struct {
	InitiatorID uuid.UUID
	InviteeIDs  []uuid.UUID
	Type        domain.CallType
	ChannelID   *uuid.UUID
	Media       domain.MediaFlags
}

// StartCall creates an active call with the initiator already joined
func (s *Service) StartCall(ctx context.Context, input *StartCallInput) (*domain.CallSnapshot, error) {
	callType, err := normalizeType(input.Type)
	if err != nil {
		return nil, err
	}
	invitees, err := normalizeInvitees(input.InitiatorID, input.InviteeIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	callID := uuid.New()
	call := &domain.Call{
		CallID:      callID,
		ChannelID:   input.ChannelID,
		InitiatorID: input.InitiatorID,
		Type:        callType,
		Status:      domain.CallStatusActive,
		RoomName:    domain.RoomNameFor(callID),
		StartedAt:   &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	host := invited(callID, input.InitiatorID, now)
	host.Status = domain.ParticipantJoined
	host.JoinedAt = &now
	host.IsMuted, host.IsVideoOff = mediaState(callType, input.Media)

	participants := make([]*domain.CallParticipant, 0, len(invitees)+1)
	participants = append(participants, host)
	for _, id := range invitees {
		participants = append(participants, invited(callID, id, now))
	}

	if err := s.repo.Create(ctx, call, participants); err != nil {
		return nil, errors.DatabaseError(fmt.Errorf("failed to create call: %w", err))
	}

	logger.Info("Call started",
		zap.String("call_id", callID.String()),
		zap.String("initiator_id", input.InitiatorID.String()),
		zap.String("type", string(callType)),
		zap.Int("invitees", len(invitees)))

	snapshot := &domain.CallSnapshot{Call: call, Participants: participants}
	s.events.SendToUsers([]uuid.UUID{input.InitiatorID}, domain.EventCallStarted, snapshot)
	if len(invitees) > 0 {
		s.events.SendToUsers(invitees, domain.EventIncomingCall, snapshot)
		s.notify(ctx, invitees, &domain.NotificationCreate{
			Type:  domain.NotificationIncomingCall,
			Title: "Incoming call",
			Body:  fmt.Sprintf("Incoming %s call", callType),
			Data: map[string]string{
				"call_id":      callID.String(),
				"call_type":    string(callType),
				"initiator_id": input.InitiatorID.String(),
			},
		})
	}

	return snapshot, nil
}

// JoinCall marks the user joined to an active call
func (s *Service) JoinCall(ctx context.Context, callID, userID uuid.UUID, media domain.MediaFlags) (*domain.CallSnapshot, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	switch call.Status {
	case domain.CallStatusScheduled:
		return nil, errors.InvalidStateError("call has not started yet")
	case domain.CallStatusActive:
	default:
		return nil, errors.InvalidStateError("call is not active")
	}

	participants, err := s.repo.GetParticipants(ctx, callID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	snapshot := &domain.CallSnapshot{Call: call, Participants: participants}
	existing := snapshot.Participant(userID)
	if existing == nil && userID != call.InitiatorID {
		return nil, errors.ForbiddenError("not invited to this call")
	}
	if existing != nil && existing.Status == domain.ParticipantJoined {
		return nil, errors.InvalidStateError("already joined")
	}

	now := s.now()
	p := &domain.CallParticipant{
		CallID:   callID,
		UserID:   userID,
		Status:   domain.ParticipantJoined,
		JoinedAt: &now,
	}
	p.IsMuted, p.IsVideoOff = mediaState(call.Type, media)

	if err := s.repo.JoinParticipant(ctx, p, userID == call.InitiatorID); err != nil {
		if stderrors.Is(err, domain.ErrNotFound) {
			return nil, errors.ForbiddenError("not invited to this call")
		}
		return nil, mapRepoError(err)
	}

	logger.Info("User joined call",
		zap.String("call_id", callID.String()),
		zap.String("user_id", userID.String()))

	snapshot, err = s.snapshot(ctx, callID)
	if err != nil {
		return nil, err
	}
	s.events.SendToRoomAndUsers(domain.CallRoomID(callID), snapshot.UserIDs(), domain.EventUserJoinedCall, &domain.ParticipantEvent{
		CallID:     callID,
		UserID:     userID,
		IsMuted:    p.IsMuted,
		IsVideoOff: p.IsVideoOff,
	})
	return snapshot, nil
}

// LeaveCall marks the user left and ends the call when nobody remains
func (s *Service) LeaveCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.repo.LeaveParticipant(ctx, callID, userID, now); err != nil {
		return nil, mapRepoError(err)
	}

	logger.Info("User left call",
		zap.String("call_id", callID.String()),
		zap.String("user_id", userID.String()))

	stoppedSharing := false
	if call.ScreenSharingUserID != nil && *call.ScreenSharingUserID == userID {
		cleared, err := s.repo.ClearScreenSharer(ctx, callID, userID, now)
		if err != nil {
			logger.Warn("Failed to clear screen share of leaving user",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
		stoppedSharing = cleared
	}

	snapshot, err := s.snapshot(ctx, callID)
	if err != nil {
		return nil, err
	}
	if stoppedSharing {
		s.events.SendToRoomAndUsers(domain.CallRoomID(callID), snapshot.UserIDs(), domain.EventScreenShareStopped, &domain.ScreenShareEvent{
			CallID: callID,
			UserID: userID,
		})
	}
	s.events.SendToRoomAndUsers(domain.CallRoomID(callID), snapshot.UserIDs(), domain.EventUserLeftCall, &domain.ParticipantEvent{
		CallID: callID,
		UserID: userID,
	})

	if snapshot.Status == domain.CallStatusActive && snapshot.JoinedCount() == 0 {
		changed, err := s.transition(ctx, callID, domain.CallStatusActive, domain.CallStatusEnded)
		if err != nil {
			return nil, err
		}
		if changed != nil {
			return changed, nil
		}
		return s.snapshot(ctx, callID)
	}
	return snapshot, nil
}

// EndCall ends an active call for everyone. Only the initiator may end it.
func (s *Service) EndCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.InitiatorID != userID {
		return nil, errors.ForbiddenError("only the initiator can end the call")
	}
	if call.Status != domain.CallStatusActive {
		return nil, errors.InvalidStateError("call is not active")
	}

	snapshot, err := s.transition(ctx, callID, domain.CallStatusActive, domain.CallStatusEnded)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, errors.InvalidStateError("call is not active")
	}
	return snapshot, nil
}

// CancelCall cancels a scheduled call. Only the initiator may cancel it.
func (s *Service) CancelCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.InitiatorID != userID {
		return nil, errors.ForbiddenError("only the initiator can cancel the call")
	}
	if call.Status != domain.CallStatusScheduled {
		return nil, errors.InvalidStateError("only scheduled calls can be cancelled")
	}

	snapshot, err := s.transition(ctx, callID, domain.CallStatusScheduled, domain.CallStatusCancelled)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, errors.InvalidStateError("only scheduled calls can be cancelled")
	}

	invitees := make([]uuid.UUID, 0, len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		if p.UserID != call.InitiatorID {
			invitees = append(invitees, p.UserID)
		}
	}
	s.events.SendToUsers(invitees, domain.EventCallCancelled, snapshot)

	title := call.Schedule.Title
	if title == "" {
		title = "Scheduled call"
	}
	s.notify(ctx, invitees, &domain.NotificationCreate{
		Type:  domain.NotificationCallCancelled,
		Title: title,
		Body:  "The scheduled call was cancelled",
		Data:  map[string]string{"call_id": callID.String()},
	})
	return snapshot, nil
}

// screenShareChange is a share event held back until the write it describes succeeded
type screenShareChange struct {
	event   string
	payload *domain.ScreenShareEvent
}

// UpdateParticipant applies a partial media update for a joined participant.
// Every precondition is checked before the first write.
func (s *Service) UpdateParticipant(ctx context.Context, callID, userID uuid.UUID, patch domain.ParticipantPatch) (*domain.CallSnapshot, error) {
	if patch.IsMuted == nil && patch.IsVideoOff == nil && patch.IsScreenSharing == nil {
		return nil, errors.ValidationError("nothing to update")
	}

	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status != domain.CallStatusActive {
		return nil, errors.InvalidStateError("call is not active")
	}
	if err := s.requireJoined(ctx, callID, userID); err != nil {
		return nil, err
	}
	stopSharing := patch.IsScreenSharing != nil && !*patch.IsScreenSharing
	if stopSharing && (call.ScreenSharingUserID == nil || *call.ScreenSharingUserID != userID) {
		return nil, errors.ForbiddenError("only the current sharer can stop screen sharing")
	}

	now := s.now()
	var changes []screenShareChange

	if patch.IsScreenSharing != nil {
		if *patch.IsScreenSharing {
			prev, err := s.repo.SetScreenSharer(ctx, callID, userID, now)
			if err != nil {
				return nil, mapRepoError(err)
			}
			if prev == nil || *prev != userID {
				if prev != nil {
					replacedBy := userID
					changes = append(changes, screenShareChange{domain.EventScreenShareStopped, &domain.ScreenShareEvent{
						CallID:     callID,
						UserID:     *prev,
						ReplacedBy: &replacedBy,
					}})
				}
				changes = append(changes, screenShareChange{domain.EventScreenShareStarted, &domain.ScreenShareEvent{
					CallID: callID,
					UserID: userID,
				}})
			}
		} else {
			cleared, err := s.repo.ClearScreenSharer(ctx, callID, userID, now)
			if err != nil {
				return nil, mapRepoError(err)
			}
			// Lost a race with another sharer; nothing has been written yet
			if !cleared {
				return nil, errors.ForbiddenError("only the current sharer can stop screen sharing")
			}
			changes = append(changes, screenShareChange{domain.EventScreenShareStopped, &domain.ScreenShareEvent{
				CallID: callID,
				UserID: userID,
			}})
		}
	}

	var mediaErr error
	if patch.IsMuted != nil || patch.IsVideoOff != nil {
		mediaErr = s.repo.UpdateParticipantMedia(ctx, callID, userID, patch.IsMuted, patch.IsVideoOff)
	}

	snapshot, err := s.snapshot(ctx, callID)
	if err != nil {
		return nil, err
	}
	room := domain.CallRoomID(callID)
	recipients := snapshot.UserIDs()
	for _, c := range changes {
		s.events.SendToRoomAndUsers(room, recipients, c.event, c.payload)
	}
	if mediaErr != nil {
		return nil, mapRepoError(mediaErr)
	}

	if patch.IsMuted != nil || patch.IsVideoOff != nil {
		if p := snapshot.Participant(userID); p != nil {
			s.events.SendToRoomAndUsers(room, recipients, domain.EventParticipantUpdated, &domain.ParticipantEvent{
				CallID:     callID,
				UserID:     userID,
				IsMuted:    p.IsMuted,
				IsVideoOff: p.IsVideoOff,
			})
		}
	}
	return snapshot, nil
}

// IssueMediaSession returns a media room credential for a joined participant
func (s *Service) IssueMediaSession(ctx context.Context, callID, userID uuid.UUID, displayName string) (*domain.MediaSession, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status != domain.CallStatusActive {
		return nil, errors.InvalidStateError("call is not active")
	}
	if err := s.requireJoined(ctx, callID, userID); err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]string{
		"call_id": callID.String(),
		"user_id": userID.String(),
	})
	if err != nil {
		return nil, errors.InternalError("failed to encode media metadata")
	}

	session, err := s.issuer.Issue(ctx, domain.MediaSessionRequest{
		RoomName:    call.RoomName,
		Identity:    userID.String(),
		DisplayName: displayName,
		Metadata:    string(metadata),
		IsHost:      call.InitiatorID == userID,
	})
	if err != nil {
		logger.Error("Failed to issue media session",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return nil, errors.WrapWithStatus(errors.ErrCodeServiceUnavail, "Media service unavailable", http.StatusServiceUnavailable, err)
	}
	return session, nil
}

// GetCall returns the call snapshot to one of its participants
func (s *Service) GetCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error) {
	snapshot, err := s.snapshot(ctx, callID)
	if err != nil {
		return nil, err
	}
	if snapshot.InitiatorID != userID && snapshot.Participant(userID) == nil {
		return nil, errors.ForbiddenError("not a participant of this call")
	}
	return snapshot, nil
}

// GetUserCalls lists the user's calls, newest first
func (s *Service) GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	calls, err := s.repo.GetUserCalls(ctx, userID, limit, offset)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	if calls == nil {
		calls = []*domain.Call{}
	}
	return calls, nil
}

// transition applies a compare-and-set status change. It returns a nil
// snapshot when another actor already moved the call.
func (s *Service) transition(ctx context.Context, callID uuid.UUID, from, to domain.CallStatus) (*domain.CallSnapshot, error) {
	finishing := to == domain.CallStatusEnded || to == domain.CallStatusCancelled

	// The sharer is cleared by the status write, so read it first
	var sharer *uuid.UUID
	if finishing {
		call, err := s.getCall(ctx, callID)
		if err != nil {
			return nil, err
		}
		sharer = call.ScreenSharingUserID
	}

	now := s.now()
	ok, err := s.repo.TransitionStatus(ctx, callID, from, to, now)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !ok {
		return nil, nil
	}
	metrics.CallTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	if finishing {
		if _, err := s.repo.LeaveAll(ctx, callID, now); err != nil {
			logger.Error("Failed to release participants of finished call",
				zap.String("call_id", callID.String()),
				zap.Error(err))
		}
	}

	logger.Info("Call status changed",
		zap.String("call_id", callID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	snapshot, err := s.snapshot(ctx, callID)
	if err != nil {
		return nil, err
	}
	if sharer != nil {
		s.events.SendToRoomAndUsers(domain.CallRoomID(callID), snapshot.UserIDs(), domain.EventScreenShareStopped, &domain.ScreenShareEvent{
			CallID: callID,
			UserID: *sharer,
		})
	}
	s.events.SendToRoomAndUsers(domain.CallRoomID(callID), snapshot.UserIDs(), domain.EventCallUpdated, snapshot)
	return snapshot, nil
}

func (s *Service) getCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	call, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return call, nil
}

func (s *Service) snapshot(ctx context.Context, callID uuid.UUID) (*domain.CallSnapshot, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.GetParticipants(ctx, callID)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}
	return &domain.CallSnapshot{Call: call, Participants: participants}, nil
}

func (s *Service) requireJoined(ctx context.Context, callID, userID uuid.UUID) error {
	participants, err := s.repo.GetParticipants(ctx, callID)
	if err != nil {
		return errors.DatabaseError(err)
	}
	for _, p := range participants {
		if p.UserID == userID && p.Status == domain.ParticipantJoined {
			return nil
		}
	}
	return errors.InvalidStateError("not joined to this call")
}

// notify dispatches one notification per user. Failures are logged only.
func (s *Service) notify(ctx context.Context, userIDs []uuid.UUID, template *domain.NotificationCreate) {
	if s.notifier == nil {
		return
	}
	for _, userID := range userIDs {
		n := *template
		n.UserID = userID
		if err := s.notifier.Dispatch(ctx, &n); err != nil {
			logger.Warn("Failed to dispatch call notification",
				zap.String("user_id", userID.String()),
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}
}

func invited(callID, userID uuid.UUID, at time.Time) *domain.CallParticipant {
	return &domain.CallParticipant{
		CallID:     callID,
		UserID:     userID,
		Status:     domain.ParticipantInvited,
		InvitedAt:  at,
		IsVideoOff: true,
	}
}

// mediaState derives (isMuted, isVideoOff) from the call type and requested flags
func mediaState(callType domain.CallType, media domain.MediaFlags) (bool, bool) {
	isVideoOff := callType != domain.CallTypeVideo
	if media.WithVideo != nil {
		isVideoOff = !*media.WithVideo
	}
	isMuted := false
	if media.WithAudio != nil {
		isMuted = !*media.WithAudio
	}
	return isMuted, isVideoOff
}

func normalizeType(t domain.CallType) (domain.CallType, error) {
	if t == "" {
		return domain.CallTypeVoice, nil
	}
	if !t.Valid() {
		return "", errors.ValidationError("type must be voice or video")
	}
	return t, nil
}

// normalizeInvitees removes duplicates, nil ids and the initiator
func normalizeInvitees(initiatorID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if initiatorID == uuid.Nil {
		return nil, errors.UnauthorizedError("initiator is required")
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || id == initiatorID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) > constants.MaxCallInvitees {
		return nil, errors.ValidationError(fmt.Sprintf("at most %d invitees are allowed", constants.MaxCallInvitees))
	}
	return out, nil
}

func mapRepoError(err error) error {
	switch {
	case stderrors.Is(err, domain.ErrNotFound):
		return errors.CallNotFoundError()
	case stderrors.Is(err, domain.ErrAlreadyJoined):
		return errors.InvalidStateError("already joined")
	case stderrors.Is(err, domain.ErrNotJoined):
		return errors.InvalidStateError("not joined to this call")
	case stderrors.Is(err, domain.ErrCallNotActive):
		return errors.InvalidStateError("call is not active")
	case errors.IsAppError(err):
		return err
	default:
		return errors.DatabaseError(err)
	}
}
