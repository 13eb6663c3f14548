package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
)

type staticChannels map[uuid.UUID][]uuid.UUID

func (s staticChannels) ListUserChannelIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s[userID], nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// drain returns every frame queued on c without blocking
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw := <-c.send:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func connect(r *Registry, userID uuid.UUID, buffer int, rooms ...string) *Client {
	c := testClient(userID, buffer)
	r.Add(c)
	for _, room := range rooms {
		r.Join(c, room)
	}
	return c
}

func TestHub_SendToUserReachesOnlyThatUser(t *testing.T) {
	r := NewRegistry()
	hub := NewHub(r, nil)
	alice, bob := uuid.New(), uuid.New()
	aliceTab1 := connect(r, alice, 4)
	aliceTab2 := connect(r, alice, 4)
	bobTab := connect(r, bob, 4)

	delivered := hub.SendToUser(alice, domain.EventIncomingCall, map[string]string{"call_id": "x"})

	assert.Equal(t, 2, delivered)
	assert.Len(t, drain(t, aliceTab1), 1)
	assert.Len(t, drain(t, aliceTab2), 1)
	assert.Empty(t, drain(t, bobTab))
}

func TestHub_SlowConsumerIsClosedOthersStillReceive(t *testing.T) {
	r := NewRegistry()
	hub := NewHub(r, nil)
	room := domain.ChannelRoomID(uuid.New())
	slow := connect(r, uuid.New(), 1, room)
	fast := connect(r, uuid.New(), 8, room)

	hub.SendToRoom(room, domain.EventNewMessage, "first")
	hub.SendToRoom(room, domain.EventNewMessage, "second")

	assert.True(t, slow.Closed())
	assert.False(t, fast.Closed())
	assert.Len(t, drain(t, fast), 2)
	assert.Len(t, drain(t, slow), 1)

	assert.ErrorIs(t, slow.TrySend([]byte("{}")), ErrConnectionClosed)
}

func TestHub_SendToRoomExceptSkipsSender(t *testing.T) {
	r := NewRegistry()
	hub := NewHub(r, nil)
	room := domain.ChannelRoomID(uuid.New())
	sender := connect(r, uuid.New(), 4, room)
	other := connect(r, uuid.New(), 4, room)

	hub.SendToRoomExcept(room, sender.ID(), domain.EventTypingStarted, &TypingEvent{UserID: sender.UserID()})

	assert.Empty(t, drain(t, sender))
	frames := drain(t, other)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventTypingStarted, frames[0].Event)
}

func TestHub_SendToRoomAndUsersDeliversOncePerConnection(t *testing.T) {
	r := NewRegistry()
	hub := NewHub(r, nil)
	callID := uuid.New()
	room := domain.CallRoomID(callID)
	member, invitee := uuid.New(), uuid.New()
	inRoom := connect(r, member, 4, room)
	outside := connect(r, invitee, 4)

	hub.SendToRoomAndUsers(room, []uuid.UUID{member, invitee}, domain.EventCallUpdated, map[string]string{"status": "ended"})

	assert.Len(t, drain(t, inRoom), 1)
	assert.Len(t, drain(t, outside), 1)
}

func TestHub_RelaySignalIsOpaque(t *testing.T) {
	r := NewRegistry()
	hub := NewHub(r, nil)
	from, to := uuid.New(), uuid.New()
	target := connect(r, to, 4)
	callID := uuid.New()
	signal := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)

	assert.Equal(t, 1, hub.RelaySignal(from, to, callID, signal))

	frames := drain(t, target)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventWebRTCSignal, frames[0].Event)

	var got SignalEvent
	require.NoError(t, json.Unmarshal(frames[0].Data, &got))
	assert.Equal(t, from, got.FromUser)
	assert.Equal(t, callID, got.CallID)
	assert.JSONEq(t, string(signal), string(got.Signal))
}

func TestHub_PublishPresenceReachesChannelRooms(t *testing.T) {
	r := NewRegistry()
	user, teammate, stranger := uuid.New(), uuid.New(), uuid.New()
	channelID := uuid.New()
	hub := NewHub(r, staticChannels{user: {channelID}})

	own := connect(r, user, 4, domain.ChannelRoomID(channelID))
	mate := connect(r, teammate, 4, domain.ChannelRoomID(channelID))
	other := connect(r, stranger, 4)

	hub.PublishPresence(context.Background(), &domain.PresenceRecord{UserID: user, Status: domain.PresenceAway})

	assert.Len(t, drain(t, own), 1, "own device is both a user target and a room member")
	frames := drain(t, mate)
	require.Len(t, frames, 1)
	assert.Equal(t, domain.EventPresenceUpdated, frames[0].Event)
	assert.Empty(t, drain(t, other))
}
