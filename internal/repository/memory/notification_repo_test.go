package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewdo-backend/internal/domain"
)

func TestNotificationRepository_CreateAndMarkPushed(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	user := uuid.New()

	first, err := repo.Create(ctx, &domain.NotificationCreate{UserID: user, Type: domain.NotificationIncomingCall, Title: "Incoming call"})
	require.NoError(t, err)
	second, err := repo.Create(ctx, &domain.NotificationCreate{
		UserID: user,
		Type:   domain.NotificationCallCancelled,
		Data:   map[string]string{"call_id": "c1"},
	})
	require.NoError(t, err)
	assert.False(t, first.IsPushed)

	require.NoError(t, repo.MarkPushed(ctx, first.NotificationID))
	assert.ErrorIs(t, repo.MarkPushed(ctx, uuid.New()), domain.ErrNotFound)

	list, err := repo.ListByUser(ctx, user, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.NotificationID, list[0].NotificationID)
	assert.True(t, list[1].IsPushed)

	list[0].Data["call_id"] = "mutated"
	again, err := repo.ListByUser(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "c1", again[0].Data["call_id"])
}

func TestNotificationRepository_PagingAndMarkRead(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	user, other := uuid.New(), uuid.New()

	var created []*domain.Notification
	for i := 0; i < 3; i++ {
		n, err := repo.Create(ctx, &domain.NotificationCreate{UserID: user, Type: domain.NotificationIncomingCall})
		require.NoError(t, err)
		created = append(created, n)
	}

	page, err := repo.ListByUser(ctx, user, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, created[1].NotificationID, page[0].NotificationID)
	assert.Equal(t, created[0].NotificationID, page[1].NotificationID)

	past, err := repo.ListByUser(ctx, user, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, past)

	assert.ErrorIs(t, repo.MarkRead(ctx, other, created[0].NotificationID), domain.ErrNotFound)
	require.NoError(t, repo.MarkRead(ctx, user, created[0].NotificationID))

	all, err := repo.ListByUser(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.True(t, all[2].IsRead)
	assert.False(t, all[0].IsRead)
}
