package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallType represents the media kind of a call
type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeVoice || t == CallTypeVideo
}

// CallStatus is the lifecycle state of a call
type CallStatus string

const (
	CallStatusScheduled CallStatus = "scheduled"
	CallStatusActive    CallStatus = "active"
	CallStatusEnded     CallStatus = "ended"
	CallStatusCancelled CallStatus = "cancelled"
)

// callTransitions is the directed transition graph. Nothing leaves ended or cancelled.
var callTransitions = map[CallStatus][]CallStatus{
	CallStatusScheduled: {CallStatusActive, CallStatusEnded, CallStatusCancelled},
	CallStatusActive:    {CallStatusEnded},
}

// CanTransitionTo reports whether the graph allows s -> next
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsOpen reports whether the call can still change state on its own
func (s CallStatus) IsOpen() bool {
	return s == CallStatusScheduled || s == CallStatusActive
}

// ParticipantStatus is the state of a user within a call
type ParticipantStatus string

const (
	ParticipantInvited ParticipantStatus = "invited"
	ParticipantJoined  ParticipantStatus = "joined"
	ParticipantLeft    ParticipantStatus = "left"
)

// CallSchedule carries the optional wall-clock boundaries of a call
type CallSchedule struct {
	Title          string     `json:"title,omitempty"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
}

// Call represents a voice/video call session
type Call struct {
	CallID              uuid.UUID    `json:"call_id"`
	ChannelID           *uuid.UUID   `json:"channel_id,omitempty"`
	InitiatorID         uuid.UUID    `json:"initiator_id"`
	Type                CallType     `json:"type"`
	Status              CallStatus   `json:"status"`
	RoomName            string       `json:"room_name"`
	Schedule            CallSchedule `json:"schedule"`
	ScreenSharingUserID *uuid.UUID   `json:"screen_sharing_user_id,omitempty"`
	StartedAt           *time.Time   `json:"started_at,omitempty"`
	EndedAt             *time.Time   `json:"ended_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// RoomNameFor derives the media room name of a call
func RoomNameFor(callID uuid.UUID) string {
	return fmt.Sprintf("call-%s", callID)
}

// CallParticipant represents a user's membership in a call
type CallParticipant struct {
	CallID     uuid.UUID         `json:"call_id"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     ParticipantStatus `json:"status"`
	IsMuted    bool              `json:"is_muted"`
	IsVideoOff bool              `json:"is_video_off"`
	InvitedAt  time.Time         `json:"invited_at"`
	JoinedAt   *time.Time        `json:"joined_at,omitempty"`
	LeftAt     *time.Time        `json:"left_at,omitempty"`
}

// CallSnapshot is a call together with its full participant list
type CallSnapshot struct {
	*Call
	Participants []*CallParticipant `json:"participants"`
}

// Participant returns the record of userID, or nil
func (s *CallSnapshot) Participant(userID uuid.UUID) *CallParticipant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// JoinedCount returns the number of currently joined participants
func (s *CallSnapshot) JoinedCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Status == ParticipantJoined {
			n++
		}
	}
	return n
}

// UserIDs returns every participant user, regardless of status
func (s *CallSnapshot) UserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// ParticipantPatch is a partial update of a participant's media flags
type ParticipantPatch struct {
	IsMuted         *bool `json:"is_muted,omitempty"`
	IsVideoOff      *bool `json:"is_video_off,omitempty"`
	IsScreenSharing *bool `json:"is_screen_sharing,omitempty"`
}

// MediaFlags are the requested media state on join
type MediaFlags struct {
	WithVideo *bool `json:"with_video,omitempty"`
	WithAudio *bool `json:"with_audio,omitempty"`
}

// MediaSession is a credential for the external media room
type MediaSession struct {
	RoomName  string    `json:"room_name"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MediaSessionRequest describes who is joining which media room
type MediaSessionRequest struct {
	RoomName    string
	Identity    string
	DisplayName string
	Metadata    string
	IsHost      bool
}
