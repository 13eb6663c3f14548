package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
	"crewdo-backend/internal/repository/memory"
	"crewdo-backend/internal/service/call"
	"crewdo-backend/internal/service/presence"
	"crewdo-backend/pkg/jwt"
)

type tokenTable struct {
	mu     sync.Mutex
	claims map[string]*jwt.Claims
}

func (t *tokenTable) issue(userID uuid.UUID, username string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	token := uuid.NewString()
	t.claims[token] = &jwt.Claims{UserID: userID, Username: username}
	return token
}

func (t *tokenTable) Authenticate(_ context.Context, token string) (*jwt.Claims, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.claims[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

type openDirectory struct {
	sharedChannel uuid.UUID
}

func (d *openDirectory) ListDirectChannelIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (d *openDirectory) ListUserChannelIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return []uuid.UUID{d.sharedChannel}, nil
}

func (d *openDirectory) IsMember(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}

type echoMessenger struct{}

func (echoMessenger) SendMessage(_ context.Context, in *domain.MessageCreate) (*domain.Message, error) {
	return &domain.Message{
		MessageID:   uuid.New(),
		ChannelID:   in.ChannelID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		MessageType: "text",
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (echoMessenger) ToggleReaction(_ context.Context, channelID, messageID, userID uuid.UUID, emoji string) (*domain.ReactionUpdate, error) {
	return &domain.ReactionUpdate{ChannelID: channelID, MessageID: messageID, UserID: userID, Emoji: emoji, Added: true}, nil
}

type stubIssuer struct{}

func (stubIssuer) Issue(_ context.Context, req domain.MediaSessionRequest) (*domain.MediaSession, error) {
	return &domain.MediaSession{RoomName: req.RoomName, Token: "media-token", URL: "wss://media.test"}, nil
}

type testServer struct {
	url      string
	tokens   *tokenTable
	registry *Registry
	calls    *call.Service
	channel  uuid.UUID
}

func newTestServer(t *testing.T, maxConnections int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := &openDirectory{sharedChannel: uuid.New()}
	registry := NewRegistry()
	hub := NewHub(registry, dir)
	tokens := &tokenTable{claims: make(map[string]*jwt.Claims)}

	presenceSvc := presence.NewService(memory.NewPresenceRepository(), hub)
	callSvc := call.NewService(memory.NewCallRepository(), hub, nil, stubIssuer{})

	gateway := NewGateway(GatewayConfig{MaxConnections: maxConnections, SendBuffer: 64},
		hub, tokens, presenceSvc, callSvc, echoMessenger{}, dir)

	router := gin.New()
	router.GET("/v1/ws", gateway.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws",
		tokens:   tokens,
		registry: registry,
		calls:    callSvc,
		channel:  dir.sharedChannel,
	}
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, command string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(&Command{Command: command, RequestID: uuid.NewString(), Data: raw}))
}

// await reads frames until one matches, failing after timeout
func await(t *testing.T, conn *websocket.Conn, timeout time.Duration, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		err := conn.ReadJSON(&f)
		require.NoError(t, err, "no matching frame before timeout")
		if match(f) {
			return f
		}
	}
}

func isEvent(name string) func(frame) bool {
	return func(f frame) bool { return f.Event == name }
}

func presenceOf(userID uuid.UUID, status domain.PresenceStatus) func(frame) bool {
	return func(f frame) bool {
		if f.Event != domain.EventPresenceUpdated {
			return false
		}
		var rec domain.PresenceRecord
		if json.Unmarshal(f.Data, &rec) != nil {
			return false
		}
		return rec.UserID == userID && rec.Status == status
	}
}

func TestServeWS_RejectsMissingAndInvalidToken(t *testing.T) {
	s := newTestServer(t, 10)

	for _, url := range []string{s.url, s.url + "?token=forged"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Zero(t, s.registry.Count())
}

func TestServeWS_RejectsOverCapacity(t *testing.T) {
	s := newTestServer(t, 1)
	s.dial(t, s.tokens.issue(uuid.New(), "first"))

	_, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+s.tokens.issue(uuid.New(), "second"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestServeWS_ConnectMarksUserOnline(t *testing.T) {
	s := newTestServer(t, 10)
	user := uuid.New()
	conn := s.dial(t, s.tokens.issue(user, "alice"))

	await(t, conn, 2*time.Second, presenceOf(user, domain.PresenceOnline))
	assert.True(t, s.registry.IsConnected(user))
}

func TestServeWS_CommandErrorKeepsConnectionOpen(t *testing.T) {
	s := newTestServer(t, 10)
	conn := s.dial(t, s.tokens.issue(uuid.New(), "alice"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f := await(t, conn, 2*time.Second, isEvent(domain.EventError))
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "INVALID_INPUT", payload.Code)

	send(t, conn, CmdJoinCall, &CallRequest{CallID: uuid.New()})
	f = await(t, conn, 2*time.Second, isEvent(domain.EventError))
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, CmdJoinCall, payload.Command)
	assert.Equal(t, "CALL_NOT_FOUND", payload.Code)

	send(t, conn, CmdJoinChannel, &ChannelRequest{ChannelID: s.channel})
	await(t, conn, 2*time.Second, isEvent(domain.EventUserJoinedChannel))
}

func TestServeWS_ChannelMessagingAndTyping(t *testing.T) {
	s := newTestServer(t, 10)
	alice := s.dial(t, s.tokens.issue(uuid.New(), "alice"))
	bob := s.dial(t, s.tokens.issue(uuid.New(), "bob"))

	for _, conn := range []*websocket.Conn{alice, bob} {
		send(t, conn, CmdJoinChannel, &ChannelRequest{ChannelID: s.channel})
		await(t, conn, 2*time.Second, isEvent(domain.EventUserJoinedChannel))
	}

	send(t, alice, CmdTypingStart, &ChannelRequest{ChannelID: s.channel})
	f := await(t, bob, 2*time.Second, isEvent(domain.EventTypingStarted))
	var typing TypingEvent
	require.NoError(t, json.Unmarshal(f.Data, &typing))
	assert.Equal(t, "alice", typing.DisplayName)

	send(t, alice, CmdSendMessage, &SendMessageRequest{ChannelID: s.channel, Content: "hello"})
	f = await(t, bob, 2*time.Second, isEvent(domain.EventNewMessage))
	var msg domain.Message
	require.NoError(t, json.Unmarshal(f.Data, &msg))
	assert.Equal(t, "hello", msg.Content)

	await(t, alice, 2*time.Second, isEvent(domain.EventNewMessage))
}

func TestServeWS_CallSignalingBetweenParticipants(t *testing.T) {
	s := newTestServer(t, 10)
	aliceID, bobID := uuid.New(), uuid.New()
	alice := s.dial(t, s.tokens.issue(aliceID, "alice"))
	bob := s.dial(t, s.tokens.issue(bobID, "bob"))
	await(t, bob, 2*time.Second, presenceOf(bobID, domain.PresenceOnline))

	send(t, alice, CmdStartCall, &StartCallRequest{InviteeIDs: []uuid.UUID{bobID}, Type: "video"})
	f := await(t, bob, 2*time.Second, isEvent(domain.EventIncomingCall))
	var snap domain.CallSnapshot
	require.NoError(t, json.Unmarshal(f.Data, &snap))

	send(t, bob, CmdJoinCall, &CallRequest{CallID: snap.CallID})
	await(t, alice, 2*time.Second, isEvent(domain.EventUserJoinedCall))

	send(t, alice, CmdWebRTCSignal, &SignalRequest{
		CallID:   snap.CallID,
		TargetID: bobID,
		Signal:   json.RawMessage(`{"type":"offer"}`),
	})
	f = await(t, bob, 2*time.Second, isEvent(domain.EventWebRTCSignal))
	var relayed SignalEvent
	require.NoError(t, json.Unmarshal(f.Data, &relayed))
	assert.Equal(t, aliceID, relayed.FromUser)
	assert.JSONEq(t, `{"type":"offer"}`, string(relayed.Signal))

	send(t, bob, CmdMediaJoinRoom, &CallRequest{CallID: snap.CallID})
	f = await(t, bob, 2*time.Second, isEvent(domain.EventMediaSessionCreated))
	var session domain.MediaSession
	require.NoError(t, json.Unmarshal(f.Data, &session))
	assert.Equal(t, domain.RoomNameFor(snap.CallID), session.RoomName)
	await(t, alice, 2*time.Second, isEvent(domain.EventMediaUserJoined))
}

func TestServeWS_TwoTabsGoOfflineOnce(t *testing.T) {
	s := newTestServer(t, 10)
	aliceID, observerID := uuid.New(), uuid.New()

	observer := s.dial(t, s.tokens.issue(observerID, "observer"))
	send(t, observer, CmdJoinChannel, &ChannelRequest{ChannelID: s.channel})
	await(t, observer, 2*time.Second, isEvent(domain.EventUserJoinedChannel))

	tab1 := s.dial(t, s.tokens.issue(aliceID, "alice"))
	tab2 := s.dial(t, s.tokens.issue(aliceID, "alice"))
	await(t, tab1, 2*time.Second, presenceOf(aliceID, domain.PresenceOnline))
	await(t, tab2, 2*time.Second, presenceOf(aliceID, domain.PresenceOnline))
	require.Eventually(t, func() bool { return s.registry.UserConnectionCount(aliceID) == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, tab1.Close())
	require.Eventually(t, func() bool { return s.registry.UserConnectionCount(aliceID) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tab2.Close())
	require.Eventually(t, func() bool { return !s.registry.IsConnected(aliceID) }, 2*time.Second, 10*time.Millisecond)

	offline := 0
	require.NoError(t, observer.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	for {
		var f frame
		if err := observer.ReadJSON(&f); err != nil {
			break
		}
		if presenceOf(aliceID, domain.PresenceOffline)(f) {
			offline++
		}
	}
	assert.Equal(t, 1, offline)
}

func TestServeWS_LeaveChannelRequiresChannelID(t *testing.T) {
	s := newTestServer(t, 10)
	conn := s.dial(t, s.tokens.issue(uuid.New(), "alice"))

	send(t, conn, CmdLeaveChannel, map[string]string{})
	f := await(t, conn, 2*time.Second, isEvent(domain.EventError))
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, CmdLeaveChannel, payload.Command)
	assert.Equal(t, "VALIDATION_ERROR", payload.Code)
}

func TestServeWS_DisconnectLeavesCall(t *testing.T) {
	s := newTestServer(t, 10)
	aliceID, bobID := uuid.New(), uuid.New()
	alice := s.dial(t, s.tokens.issue(aliceID, "alice"))
	bob := s.dial(t, s.tokens.issue(bobID, "bob"))
	await(t, bob, 2*time.Second, presenceOf(bobID, domain.PresenceOnline))

	send(t, alice, CmdStartCall, &StartCallRequest{InviteeIDs: []uuid.UUID{bobID}, Type: "voice"})
	f := await(t, bob, 2*time.Second, isEvent(domain.EventIncomingCall))
	var snap domain.CallSnapshot
	require.NoError(t, json.Unmarshal(f.Data, &snap))

	send(t, bob, CmdJoinCall, &CallRequest{CallID: snap.CallID})
	await(t, alice, 2*time.Second, isEvent(domain.EventUserJoinedCall))

	require.NoError(t, bob.Close())
	await(t, alice, 2*time.Second, isEvent(domain.EventUserLeftCall))

	current, err := s.calls.GetCall(context.Background(), snap.CallID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusActive, current.Status)
	require.NotNil(t, current.Participant(bobID))
	assert.Equal(t, domain.ParticipantLeft, current.Participant(bobID).Status)

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		current, err := s.calls.GetCall(context.Background(), snap.CallID, aliceID)
		return err == nil && current.Status == domain.CallStatusEnded
	}, 2*time.Second, 10*time.Millisecond)
}
