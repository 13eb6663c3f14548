package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client to server commands
const (
	CmdJoinChannel     = "join_channel"
	CmdLeaveChannel    = "leave_channel"
	CmdSendMessage     = "send_message"
	CmdTypingStart     = "typing_start"
	CmdTypingStop      = "typing_stop"
	CmdReactionAdd     = "reaction_add"
	CmdStartCall       = "start_call"
	CmdJoinCall        = "join_call"
	CmdLeaveCall       = "leave_call"
	CmdEndCall         = "end_call"
	CmdUpdateCallMedia = "update_call_media"
	CmdWebRTCSignal    = "webrtc_signal"
	CmdMediaJoinRoom   = "media_join_room"
	CmdMediaLeaveRoom  = "media_leave_room"
	CmdScreenShareOn   = "screen_share_start"
	CmdScreenShareOff  = "screen_share_stop"
	CmdRecordingStart  = "recording_start"
	CmdRecordingStop   = "recording_stop"
	CmdQualityReport   = "quality_report"
	CmdUpdatePresence  = "update_presence"
)

// Command is an inbound client frame
type Command struct {
	Command   string          `json:"command"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound server frame
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorPayload is the data of an error event
type ErrorPayload struct {
	Command   string `json:"command,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// ChannelRequest targets a chat channel
type ChannelRequest struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// SendMessageRequest is the data of send_message
type SendMessageRequest struct {
	ChannelID   uuid.UUID         `json:"channel_id"`
	Content     string            `json:"content"`
	MessageType string            `json:"message_type,omitempty"`
	ReplyToID   *uuid.UUID        `json:"reply_to_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ReactionRequest is the data of reaction_add
type ReactionRequest struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

// TypingEvent is the data of typing_started and typing_stopped
type TypingEvent struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// ChannelMemberEvent is the data of user_joined_channel and user_left_channel
type ChannelMemberEvent struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// StartCallRequest is the data of start_call
type StartCallRequest struct {
	InviteeIDs []uuid.UUID `json:"invitee_ids"`
	Type       string      `json:"type"`
	ChannelID  *uuid.UUID  `json:"channel_id,omitempty"`
	WithVideo  *bool       `json:"with_video,omitempty"`
	WithAudio  *bool       `json:"with_audio,omitempty"`
}

// CallRequest targets a call
type CallRequest struct {
	CallID    uuid.UUID `json:"call_id"`
	WithVideo *bool     `json:"with_video,omitempty"`
	WithAudio *bool     `json:"with_audio,omitempty"`
}

// CallMediaRequest is the data of update_call_media
type CallMediaRequest struct {
	CallID     uuid.UUID `json:"call_id"`
	IsMuted    *bool     `json:"is_muted,omitempty"`
	IsVideoOff *bool     `json:"is_video_off,omitempty"`
}

// SignalRequest is the data of webrtc_signal. Signal is relayed untouched.
type SignalRequest struct {
	CallID   uuid.UUID       `json:"call_id"`
	TargetID uuid.UUID       `json:"target_user_id"`
	Signal   json.RawMessage `json:"signal"`
}

// SignalEvent is the data of a relayed webrtc_signal
type SignalEvent struct {
	CallID   uuid.UUID       `json:"call_id"`
	FromUser uuid.UUID       `json:"from_user_id"`
	Signal   json.RawMessage `json:"signal"`
}

// MediaUserEvent is the data of media_user_joined and media_user_left
type MediaUserEvent struct {
	CallID      uuid.UUID `json:"call_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// RecordingEvent is the data of the recording events
type RecordingEvent struct {
	CallID  uuid.UUID `json:"call_id"`
	UserID  uuid.UUID `json:"user_id"`
	Message string    `json:"message,omitempty"`
}

// QualityReport is the data of quality_report. Stats are relayed untouched.
type QualityReport struct {
	CallID uuid.UUID       `json:"call_id"`
	Stats  json.RawMessage `json:"stats"`
}

// QualityEvent is the data of quality_metrics_updated
type QualityEvent struct {
	CallID uuid.UUID       `json:"call_id"`
	UserID uuid.UUID       `json:"user_id"`
	Stats  json.RawMessage `json:"stats"`
}

// PresenceRequest is the data of update_presence. An empty status clears a manual pin.
type PresenceRequest struct {
	Status string `json:"status"`
	Manual bool   `json:"manual"`
}
