package push

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMulticast_Plain(t *testing.T) {
	msg := buildMulticast(&Notification{Title: "t", Body: "b", Data: map[string]string{"k": "v"}}, []string{"x"})

	assert.Equal(t, "t", msg.Notification.Title)
	assert.Equal(t, []string{"x"}, msg.Tokens)
	assert.Equal(t, "v", msg.Data["k"])
	assert.Nil(t, msg.Android)
	assert.Nil(t, msg.APNS)
}

func TestBuildMulticast_HighPriorityCall(t *testing.T) {
	msg := buildMulticast(&Notification{
		Title:    "Incoming call",
		Priority: "high",
		Sound:    "default",
		Category: "INCOMING_CALL",
	}, []string{"x"})

	require.NotNil(t, msg.Android)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "default", msg.Android.Notification.Sound)
	assert.Equal(t, "INCOMING_CALL", msg.Android.Notification.ChannelID)
	require.NotNil(t, msg.APNS)
	assert.Equal(t, "INCOMING_CALL", msg.APNS.Payload.Aps.Category)
}

func TestMaskPushToken(t *testing.T) {
	assert.Equal(t, "********", maskPushToken("short"))
	assert.Equal(t, "abcdefgh...stuvwxyz", maskPushToken("abcdefghijklmnopqrstuvwxyz"))
}

func TestNewFCMProvider_RequiresCredentials(t *testing.T) {
	_, err := NewFCMProvider(context.Background(), &FCMConfig{ProjectID: "p"})
	assert.Error(t, err)

	_, err = NewFCMProvider(context.Background(), nil)
	assert.Error(t, err)
}

func TestLogProvider_Send(t *testing.T) {
	res, err := LogProvider{}.Send(context.Background(), &Notification{Title: "t"}, []string{"a", "b"})

	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)
}
