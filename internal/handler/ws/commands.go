package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/service/call"
	"crewdo-backend/pkg/errors"
	"crewdo-backend/pkg/logger"
	"crewdo-backend/pkg/metrics"
)

const recordingNotice = "This call is being recorded"

type commandHandler func(ctx context.Context, client *Client, cmd *Command) error

func (g *Gateway) commandHandlers() map[string]commandHandler {
	return map[string]commandHandler{
		CmdJoinChannel:     g.handleJoinChannel,
		CmdLeaveChannel:    g.handleLeaveChannel,
		CmdSendMessage:     g.handleSendMessage,
		CmdTypingStart:     g.handleTyping(domain.EventTypingStarted),
		CmdTypingStop:      g.handleTyping(domain.EventTypingStopped),
		CmdReactionAdd:     g.handleReaction,
		CmdStartCall:       g.handleStartCall,
		CmdJoinCall:        g.handleJoinCall,
		CmdLeaveCall:       g.handleLeaveCall,
		CmdEndCall:         g.handleEndCall,
		CmdUpdateCallMedia: g.handleCallMedia,
		CmdWebRTCSignal:    g.handleSignal,
		CmdMediaJoinRoom:   g.handleMediaJoin,
		CmdMediaLeaveRoom:  g.handleMediaLeave,
		CmdScreenShareOn:   g.handleScreenShare(true),
		CmdScreenShareOff:  g.handleScreenShare(false),
		CmdRecordingStart:  g.handleRecording(domain.EventRecordingStarted),
		CmdRecordingStop:   g.handleRecording(domain.EventRecordingStopped),
		CmdQualityReport:   g.handleQualityReport,
		CmdUpdatePresence:  g.handlePresence,
	}
}

// handleFrame decodes and dispatches one inbound frame. Failures are reported
// to the sending connection only and never close it.
func (g *Gateway) handleFrame(client *Client, frame []byte) {
	var cmd Command
	if err := json.Unmarshal(frame, &cmd); err != nil || cmd.Command == "" {
		metrics.WSCommandsTotal.WithLabelValues("invalid", "error").Inc()
		g.sendError(client, &cmd, errors.InvalidInputError("malformed command frame"))
		return
	}

	handler, ok := g.handlers[cmd.Command]
	if !ok {
		metrics.WSCommandsTotal.WithLabelValues("unknown", "error").Inc()
		g.sendError(client, &cmd, errors.InvalidInputError("unknown command: "+cmd.Command))
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := g.run(ctx, handler, client, &cmd); err != nil {
		metrics.WSCommandsTotal.WithLabelValues(cmd.Command, "error").Inc()
		g.sendError(client, &cmd, err)
		return
	}
	metrics.WSCommandsTotal.WithLabelValues(cmd.Command, "ok").Inc()
}

func (g *Gateway) run(ctx context.Context, handler commandHandler, client *Client, cmd *Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling WebSocket command",
				zap.String("command", cmd.Command),
				zap.String("user_id", client.userID.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = errors.InternalError("command failed")
		}
	}()
	return handler(ctx, client, cmd)
}

func (g *Gateway) sendError(client *Client, cmd *Command, err error) {
	appErr := errors.GetAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("WebSocket command failed",
			zap.String("command", cmd.Command),
			zap.String("user_id", client.userID.String()),
			zap.Error(err))
	}
	g.hub.SendToConn(client, domain.EventError, &ErrorPayload{
		Command:   cmd.Command,
		RequestID: cmd.RequestID,
		Code:      string(appErr.Code),
		Message:   appErr.Message,
	})
}

func decode(cmd *Command, v interface{}) error {
	if len(cmd.Data) == 0 {
		return errors.ValidationError("missing data for " + cmd.Command)
	}
	if err := json.Unmarshal(cmd.Data, v); err != nil {
		return errors.ValidationError("invalid data for " + cmd.Command)
	}
	return nil
}

func requireID(id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return errors.ValidationError(field + " is required")
	}
	return nil
}

func (g *Gateway) decodeCall(cmd *Command) (*CallRequest, error) {
	var req CallRequest
	if err := decode(cmd, &req); err != nil {
		return nil, err
	}
	if err := requireID(req.CallID, "call_id"); err != nil {
		return nil, err
	}
	return &req, nil
}

func (g *Gateway) requireMember(ctx context.Context, channelID, userID uuid.UUID) error {
	if g.channels == nil {
		return nil
	}
	member, err := g.channels.IsMember(ctx, channelID, userID)
	if err != nil {
		return errors.DatabaseError(err)
	}
	if !member {
		return errors.ForbiddenError("not a member of this channel")
	}
	return nil
}

// requireJoined returns the call if userID is currently joined to it
func (g *Gateway) requireJoined(ctx context.Context, callID, userID uuid.UUID) (*domain.CallSnapshot, error) {
	snap, err := g.calls.GetCall(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if p := snap.Participant(userID); p == nil || p.Status != domain.ParticipantJoined {
		return nil, errors.InvalidStateError("not joined to this call")
	}
	return snap, nil
}

func (g *Gateway) handleJoinChannel(ctx context.Context, client *Client, cmd *Command) error {
	var req ChannelRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}
	if err := requireID(req.ChannelID, "channel_id"); err != nil {
		return err
	}
	if err := g.requireMember(ctx, req.ChannelID, client.userID); err != nil {
		return err
	}

	room := domain.ChannelRoomID(req.ChannelID)
	if g.registry.Join(client, room) {
		g.hub.SendToRoom(room, domain.EventUserJoinedChannel, &ChannelMemberEvent{
			ChannelID: req.ChannelID,
			UserID:    client.userID,
		})
	}
	return nil
}

func (g *Gateway) handleLeaveChannel(_ context.Context, client *Client, cmd *Command) error {
	var req ChannelRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}
	if err := requireID(req.ChannelID, "channel_id"); err != nil {
		return err
	}

	room := domain.ChannelRoomID(req.ChannelID)
	if g.registry.Leave(client, room) {
		g.hub.SendToRoom(room, domain.EventUserLeftChannel, &ChannelMemberEvent{
			ChannelID: req.ChannelID,
			UserID:    client.userID,
		})
	}
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, client *Client, cmd *Command) error {
	var req SendMessageRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}
	if err := requireID(req.ChannelID, "channel_id"); err != nil {
		return err
	}

	msg, err := g.chat.SendMessage(ctx, &domain.MessageCreate{
		ChannelID:   req.ChannelID,
		SenderID:    client.userID,
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyToID:   req.ReplyToID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return err
	}

	g.hub.SendToRoomAndUsers(domain.ChannelRoomID(req.ChannelID), []uuid.UUID{client.userID}, domain.EventNewMessage, msg)
	return nil
}

func (g *Gateway) handleTyping(event string) commandHandler {
	return func(_ context.Context, client *Client, cmd *Command) error {
		var req ChannelRequest
		if err := decode(cmd, &req); err != nil {
			return err
		}

		room := domain.ChannelRoomID(req.ChannelID)
		if !g.registry.InRoom(client, room) {
			return errors.ForbiddenError("join the channel before typing")
		}
		g.hub.SendToRoomExcept(room, client.id, event, &TypingEvent{
			ChannelID:   req.ChannelID,
			UserID:      client.userID,
			DisplayName: client.displayName,
		})
		return nil
	}
}

func (g *Gateway) handleReaction(ctx context.Context, client *Client, cmd *Command) error {
	var req ReactionRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}
	if err := requireID(req.ChannelID, "channel_id"); err != nil {
		return err
	}
	if err := requireID(req.MessageID, "message_id"); err != nil {
		return err
	}

	update, err := g.chat.ToggleReaction(ctx, req.ChannelID, req.MessageID, client.userID, req.Emoji)
	if err != nil {
		return err
	}
	g.hub.SendToRoomAndUsers(domain.ChannelRoomID(req.ChannelID), []uuid.UUID{client.userID}, domain.EventReactionUpdated, update)
	return nil
}

func (g *Gateway) handleStartCall(ctx context.Context, client *Client, cmd *Command) error {
	var req StartCallRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}

	snap, err := g.calls.StartCall(ctx, &call.StartCallInput{
		InitiatorID: client.userID,
		InviteeIDs:  req.InviteeIDs,
		Type:        domain.CallType(req.Type),
		ChannelID:   req.ChannelID,
		Media:       domain.MediaFlags{WithVideo: req.WithVideo, WithAudio: req.WithAudio},
	})
	if err != nil {
		return err
	}
	g.registry.Join(client, domain.CallRoomID(snap.CallID))
	return nil
}

func (g *Gateway) handleJoinCall(ctx context.Context, client *Client, cmd *Command) error {
	req, err := g.decodeCall(cmd)
	if err != nil {
		return err
	}

	media := domain.MediaFlags{WithVideo: req.WithVideo, WithAudio: req.WithAudio}
	if _, err := g.calls.JoinCall(ctx, req.CallID, client.userID, media); err != nil {
		return err
	}
	g.registry.Join(client, domain.CallRoomID(req.CallID))
	return nil
}

func (g *Gateway) handleLeaveCall(ctx context.Context, client *Client, cmd *Command) error {
	req, err := g.decodeCall(cmd)
	if err != nil {
		return err
	}

	if _, err := g.calls.LeaveCall(ctx, req.CallID, client.userID); err != nil {
		return err
	}
	for _, conn := range g.registry.UserConnections(client.userID) {
		g.registry.Leave(conn, domain.CallRoomID(req.CallID))
	}
	return nil
}

func (g *Gateway) handleEndCall(ctx context.Context, client *Client, cmd *Command) error {
	req, err := g.decodeCall(cmd)
	if err != nil {
		return err
	}

	_, err = g.calls.EndCall(ctx, req.CallID, client.userID)
	return err
}

func (g *Gateway) handleCallMedia(ctx context.Context, client *Client, cmd *Command) error {
	var req CallMediaRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}
	if err := requireID(req.CallID, "call_id"); err != nil {
		return err
	}

	_, err := g.calls.UpdateParticipant(ctx, req.CallID, client.userID, domain.ParticipantPatch{
		IsMuted:    req.IsMuted,
		IsVideoOff: req.IsVideoOff,
	})
	return err
}

func (g *Gateway) handleScreenShare(on bool) commandHandler {
	return func(ctx context.Context, client *Client, cmd *Command) error {
		req, err := g.decodeCall(cmd)
		if err != nil {
			return err
		}

		sharing := on
		_, err = g.calls.UpdateParticipant(ctx, req.CallID, client.userID, domain.ParticipantPatch{
			IsScreenSharing: &sharing,
		})
		return err
	}
}

// handleSignal relays an opaque signaling payload between two joined participants
func (g *Gateway) handleSignal(ctx context.Context, client *Client, cmd *Command) error {
	var req SignalRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}
	if err := requireID(req.CallID, "call_id"); err != nil {
		return err
	}
	if err := requireID(req.TargetID, "target_user_id"); err != nil {
		return err
	}
	if len(req.Signal) == 0 {
		return errors.ValidationError("signal is required")
	}

	snap, err := g.requireJoined(ctx, req.CallID, client.userID)
	if err != nil {
		return err
	}
	if p := snap.Participant(req.TargetID); p == nil || p.Status != domain.ParticipantJoined {
		return errors.InvalidStateError("target user is not in the call")
	}

	g.hub.RelaySignal(client.userID, req.TargetID, req.CallID, req.Signal)
	return nil
}

func (g *Gateway) handleMediaJoin(ctx context.Context, client *Client, cmd *Command) error {
	req, err := g.decodeCall(cmd)
	if err != nil {
		return err
	}

	session, err := g.calls.IssueMediaSession(ctx, req.CallID, client.userID, client.displayName)
	if err != nil {
		return err
	}

	room := domain.CallRoomID(req.CallID)
	g.registry.Join(client, room)
	g.hub.SendToConn(client, domain.EventMediaSessionCreated, session)
	g.hub.SendToRoomExcept(room, client.id, domain.EventMediaUserJoined, &MediaUserEvent{
		CallID:      req.CallID,
		UserID:      client.userID,
		DisplayName: client.displayName,
	})
	return nil
}

func (g *Gateway) handleMediaLeave(_ context.Context, client *Client, cmd *Command) error {
	req, err := g.decodeCall(cmd)
	if err != nil {
		return err
	}

	room := domain.CallRoomID(req.CallID)
	if !g.registry.Leave(client, room) {
		return nil
	}
	g.hub.SendToRoom(room, domain.EventMediaUserLeft, &MediaUserEvent{
		CallID:      req.CallID,
		UserID:      client.userID,
		DisplayName: client.displayName,
	})
	return nil
}

func (g *Gateway) handleRecording(event string) commandHandler {
	return func(ctx context.Context, client *Client, cmd *Command) error {
		req, err := g.decodeCall(cmd)
		if err != nil {
			return err
		}
		snap, err := g.requireJoined(ctx, req.CallID, client.userID)
		if err != nil {
			return err
		}

		room := domain.CallRoomID(req.CallID)
		participants := snap.UserIDs()
		g.hub.SendToRoomAndUsers(room, participants, event, &RecordingEvent{
			CallID: req.CallID,
			UserID: client.userID,
		})
		if event == domain.EventRecordingStarted {
			g.hub.SendToRoomAndUsers(room, participants, domain.EventRecordingNotice, &RecordingEvent{
				CallID:  req.CallID,
				UserID:  client.userID,
				Message: recordingNotice,
			})
		}
		return nil
	}
}

func (g *Gateway) handleQualityReport(_ context.Context, client *Client, cmd *Command) error {
	var req QualityReport
	if err := decode(cmd, &req); err != nil {
		return err
	}

	room := domain.CallRoomID(req.CallID)
	if !g.registry.InRoom(client, room) {
		return errors.InvalidStateError("not joined to this call")
	}
	g.hub.SendToRoomExcept(room, client.id, domain.EventQualityMetrics, &QualityEvent{
		CallID: req.CallID,
		UserID: client.userID,
		Stats:  req.Stats,
	})
	return nil
}

func (g *Gateway) handlePresence(ctx context.Context, client *Client, cmd *Command) error {
	var req PresenceRequest
	if err := decode(cmd, &req); err != nil {
		return err
	}

	var err error
	status := domain.PresenceStatus(req.Status)
	switch {
	case req.Status == "":
		_, err = g.presence.ClearManualStatus(ctx, client.userID, g.registry.IsConnected(client.userID))
	case !status.Valid():
		return errors.ValidationError("invalid presence status")
	case req.Manual:
		_, err = g.presence.SetManualStatus(ctx, client.userID, status)
	default:
		_, err = g.presence.SetAutomaticStatus(ctx, client.userID, status)
	}
	return err
}
