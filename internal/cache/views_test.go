package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *ViewCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewViewCache(rdb, time.Minute)
}

func TestViewCache_ProjectTreeLifecycle(t *testing.T) {
	mr, vc := newTestCache(t)
	ctx := context.Background()

	_, ok := vc.ProjectTree(ctx, 4)
	assert.False(t, ok)

	vc.StoreProjectTree(ctx, 4, []byte(`[{"full_id":"NUM-1"}]`))
	got, ok := vc.ProjectTree(ctx, 4)
	require.True(t, ok)
	assert.JSONEq(t, `[{"full_id":"NUM-1"}]`, string(got))
	assert.True(t, mr.TTL(ProjectTreeKey(4)) > 0)

	vc.InvalidateProject(ctx, 4)
	_, ok = vc.ProjectTree(ctx, 4)
	assert.False(t, ok)
}

func TestViewCache_InvalidateItems(t *testing.T) {
	mr, vc := newTestCache(t)
	ctx := context.Background()

	vc.StoreItem(ctx, 1, []byte(`{}`))
	vc.StoreItem(ctx, 2, []byte(`{}`))
	vc.StoreItem(ctx, 3, []byte(`{}`))

	vc.InvalidateItem(ctx, 1, 2)
	assert.False(t, mr.Exists(ItemKey(1)))
	assert.False(t, mr.Exists(ItemKey(2)))
	assert.True(t, mr.Exists(ItemKey(3)))
}

func TestViewCache_ExpiresAfterTTL(t *testing.T) {
	mr, vc := newTestCache(t)
	ctx := context.Background()

	vc.StoreItem(ctx, 9, []byte(`{"id":9}`))
	mr.FastForward(2 * time.Minute)
	_, ok := vc.Item(ctx, 9)
	assert.False(t, ok)
}

func TestViewCache_NilClientIsNoop(t *testing.T) {
	vc := NewViewCache(nil, 0)
	ctx := context.Background()

	vc.StoreProjectTree(ctx, 1, []byte(`[]`))
	_, ok := vc.ProjectTree(ctx, 1)
	assert.False(t, ok)
	vc.InvalidateProject(ctx, 1)
	vc.InvalidateItem(ctx, 1)
}

func TestInitRedis_UnreachableLeavesClientNil(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	InitRedis(addr)
	assert.Nil(t, GetClient())
}

func TestInitRedis_ParsesURL(t *testing.T) {
	mr := miniredis.RunT(t)
	InitRedis("redis://" + mr.Addr() + "/0")
	require.NotNil(t, GetClient())
	t.Cleanup(func() { _ = GetClient().Close() })
	assert.NoError(t, GetClient().Ping(context.Background()).Err())
}
