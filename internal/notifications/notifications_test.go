package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/models"
	"docket/internal/repository"
	"docket/internal/testutil"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestUserChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:user:1", UserChannel(1))
	assert.Equal(t, "notifications:user:100", UserChannel(100))

	id, err := parseUserChannel("notifications:user:42")
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	_, err = parseUserChannel("chat:conv:1")
	assert.Error(t, err)
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishUser(context.Background(), 1, "payload"))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))
}

func TestHub_RegisterLimitsAndUnregister(t *testing.T) {
	hub := NewHub()
	var clients []*Client
	for i := 0; i < maxConnsPerUser; i++ {
		c, err := hub.Register(7, nil)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	_, err := hub.Register(7, nil)
	assert.ErrorIs(t, err, ErrUserFull)

	hub.UnregisterClient(clients[0])
	hub.UnregisterClient(clients[0])
	assert.Equal(t, maxConnsPerUser-1, hub.Connections(7))

	_, ok := <-clients[0].Send
	assert.False(t, ok, "send queue is closed on unregister")

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Zero(t, hub.Connections(7))
	_, err = hub.Register(7, nil)
	assert.ErrorIs(t, err, ErrServerFull)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(3, nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send); i++ {
		c.TrySend([]byte("x"))
	}
	c.TrySend([]byte("overflow"))
	assert.Len(t, c.Send, cap(c.Send))

	hub.UnregisterClient(c)
	assert.NotPanics(t, func() { c.TrySend([]byte("after close")) })
}

func TestHub_StartWiringDeliversPublishedMessages(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hub := NewHub()
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	c, err := hub.Register(9, nil)
	require.NoError(t, err)
	other, err := hub.Register(10, nil)
	require.NoError(t, err)

	require.NoError(t, n.PublishUser(context.Background(), 9, `{"type":"notification"}`))

	assert.Eventually(t, func() bool { return len(c.Send) == 1 }, testEventuallyTimeout, testPollInterval)
	assert.Equal(t, `{"type":"notification"}`, string(<-c.Send))
	assert.Empty(t, other.Send)
}

func TestDispatcher_PersistsAndDeliversLocally(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, models.RoleEditor, false, false)
	repo := repository.NewNotificationRepository(db)

	hub := NewHub()
	c, err := hub.Register(u.ID, nil)
	require.NoError(t, err)

	d := NewDispatcher(repo, NewNotifier(nil), hub)
	d.Notify(context.Background(), models.Notification{
		UserID:  u.ID,
		Type:    models.NotificationChangeApproved,
		Title:   "變更申請已核准",
		Message: "NUM-1",
	})

	stored, err := repo.ListByUser(context.Background(), u.ID, true, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.NotificationChangeApproved, stored[0].Type)

	require.Len(t, c.Send, 1)
	var ev Event
	require.NoError(t, json.Unmarshal(<-c.Send, &ev))
	assert.Equal(t, "notification", ev.Type)
	require.NotNil(t, ev.Payload)
	assert.Equal(t, stored[0].ID, ev.Payload.ID)
}

func TestDispatcher_PublishesThroughRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, models.RoleEditor, false, false)

	hub := NewHub()
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))
	c, err := hub.Register(u.ID, nil)
	require.NoError(t, err)

	d := NewDispatcher(repository.NewNotificationRepository(db), n, hub)
	d.Notify(context.Background(), models.Notification{UserID: u.ID, Type: models.NotificationCompleted, Title: "品質文件審核完成"})

	assert.Eventually(t, func() bool { return len(c.Send) == 1 }, testEventuallyTimeout, testPollInterval)
}
