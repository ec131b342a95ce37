package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docket/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	ProjectTreeKeyPrefix = "docket:project:%d:tree"
	ItemKeyPrefix        = "docket:item:%d"
)

// DefaultViewTTL bounds staleness if an invalidation is ever missed.
const DefaultViewTTL = 5 * time.Minute

func ProjectTreeKey(projectID uint) string {
	return fmt.Sprintf(ProjectTreeKeyPrefix, projectID)
}

func ItemKey(itemID uint) string {
	return fmt.Sprintf(ItemKeyPrefix, itemID)
}

// ViewCache stores pre-rendered JSON views. A nil Redis client turns every call into a miss or no-op.
type ViewCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewViewCache returns a cache backed by rdb, which may be nil.
func NewViewCache(rdb *redis.Client, ttl time.Duration) *ViewCache {
	if ttl <= 0 {
		ttl = DefaultViewTTL
	}
	return &ViewCache{rdb: rdb, ttl: ttl}
}

func (v *ViewCache) get(ctx context.Context, key string) ([]byte, bool) {
	if v == nil || v.rdb == nil {
		return nil, false
	}
	b, err := v.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.WarnContext(ctx, "view cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	return b, true
}

func (v *ViewCache) set(ctx context.Context, key string, data []byte) {
	if v == nil || v.rdb == nil {
		return
	}
	if err := v.rdb.Set(ctx, key, data, v.ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "view cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (v *ViewCache) del(ctx context.Context, keys ...string) {
	if v == nil || v.rdb == nil {
		return
	}
	if err := v.rdb.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "view cache invalidation failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}

// ProjectTree returns the cached tree JSON for a project.
func (v *ViewCache) ProjectTree(ctx context.Context, projectID uint) ([]byte, bool) {
	return v.get(ctx, ProjectTreeKey(projectID))
}

// StoreProjectTree caches the tree JSON for a project.
func (v *ViewCache) StoreProjectTree(ctx context.Context, projectID uint, data []byte) {
	v.set(ctx, ProjectTreeKey(projectID), data)
}

// Item returns the cached detail JSON for an item.
func (v *ViewCache) Item(ctx context.Context, itemID uint) ([]byte, bool) {
	return v.get(ctx, ItemKey(itemID))
}

// StoreItem caches the detail JSON for an item.
func (v *ViewCache) StoreItem(ctx context.Context, itemID uint, data []byte) {
	v.set(ctx, ItemKey(itemID), data)
}

// InvalidateProject drops the cached tree of a project.
func (v *ViewCache) InvalidateProject(ctx context.Context, projectID uint) {
	v.del(ctx, ProjectTreeKey(projectID))
}

// InvalidateItem drops the cached detail of one or more items.
func (v *ViewCache) InvalidateItem(ctx context.Context, itemIDs ...uint) {
	if len(itemIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		keys = append(keys, ItemKey(id))
	}
	v.del(ctx, keys...)
}
