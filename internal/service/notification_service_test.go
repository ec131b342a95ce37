package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/models"
)

func TestNotificationService_ListCountMarkRead(t *testing.T) {
	f := newFixture(t)
	svc := NewNotificationService(f.db)
	ctx := context.Background()

	mine := []models.Notification{
		{UserID: f.editor.ID, Type: models.NotificationChangeApproved, Title: "a"},
		{UserID: f.editor.ID, Type: models.NotificationCompleted, Title: "b"},
	}
	require.NoError(t, f.db.Create(&mine).Error)
	theirs := models.Notification{UserID: f.inspector.ID, Type: models.NotificationCompleted, Title: "c"}
	require.NoError(t, f.db.Create(&theirs).Error)

	n, err := svc.UnreadCount(ctx, f.editor.Actor())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, svc.MarkRead(ctx, f.editor.Actor(), mine[0].ID))
	assert.True(t, models.IsCode(svc.MarkRead(ctx, f.editor.Actor(), theirs.ID), models.CodeNotFound))

	unread, err := svc.List(ctx, f.editor.Actor(), true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, mine[1].ID, unread[0].ID)

	all, err := svc.List(ctx, f.editor.Actor(), false, 500)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
