package domain

import "github.com/google/uuid"

// Server to client event names
const (
	EventNewMessage          = "new_message"
	EventUserJoinedChannel   = "user_joined_channel"
	EventUserLeftChannel     = "user_left_channel"
	EventTypingStarted       = "typing_started"
	EventTypingStopped       = "typing_stopped"
	EventReactionUpdated     = "reaction_updated"
	EventPresenceUpdated     = "presence_updated"
	EventCallStarted         = "call_started"
	EventCallUpdated         = "call_updated"
	EventCallCancelled       = "call_cancelled"
	EventIncomingCall        = "incoming_call"
	EventUserJoinedCall      = "user_joined_call"
	EventUserLeftCall        = "user_left_call"
	EventParticipantUpdated  = "participant_updated"
	EventWebRTCSignal        = "webrtc_signal"
	EventMediaSessionCreated = "media_session_created"
	EventMediaUserJoined     = "media_user_joined"
	EventMediaUserLeft       = "media_user_left"
	EventScreenShareStarted  = "screen_share_started"
	EventScreenShareStopped  = "screen_share_stopped"
	EventRecordingStarted    = "recording_started"
	EventRecordingStopped    = "recording_stopped"
	EventRecordingNotice     = "recording_notification"
	EventQualityMetrics      = "quality_metrics_updated"
	EventError               = "error"
)

// CallRoomID is the broadcast room of a call
func CallRoomID(callID uuid.UUID) string {
	return "call:" + callID.String()
}

// ChannelRoomID is the broadcast room of a chat channel
func ChannelRoomID(channelID uuid.UUID) string {
	return "channel:" + channelID.String()
}

// ParticipantEvent describes a participant joining, leaving or changing media state
type ParticipantEvent struct {
	CallID     uuid.UUID `json:"call_id"`
	UserID     uuid.UUID `json:"user_id"`
	IsMuted    bool      `json:"is_muted"`
	IsVideoOff bool      `json:"is_video_off"`
}

// ScreenShareEvent describes a change of the call's screen sharer
type ScreenShareEvent struct {
	CallID     uuid.UUID  `json:"call_id"`
	UserID     uuid.UUID  `json:"user_id"`
	ReplacedBy *uuid.UUID `json:"replaced_by,omitempty"`
}
