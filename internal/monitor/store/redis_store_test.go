package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/pkg/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(rdb, zap.NewNop())
}

func newTestEntry(name, url string) *model.Entry {
	now := time.Now()
	return &model.Entry{
		ID:            model.NewID(),
		URL:           url,
		NormalizedURL: url,
		Name:          name,
		Group:         types.GroupAPI,
		Enabled:       true,
		CheckInterval: 5 * time.Minute,
		Status:        types.StatusFresh,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
}

func TestRedisStore_InsertAndFind(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	e := newTestEntry("HealthAPI", "https://api.example.com/health")
	require.NoError(t, s.Insert(ctx, e))

	got, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Name, got.Name)
	assert.Equal(t, e.NormalizedURL, got.NormalizedURL)

	byURL, err := s.FindByNormalizedURL(ctx, e.NormalizedURL)
	require.NoError(t, err)
	assert.Equal(t, e.ID, byURL.ID)

	byName, err := s.FindByName(ctx, e.Name)
	require.NoError(t, err)
	assert.Equal(t, e.ID, byName.ID)
}

func TestRedisStore_InsertConflict(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	e1 := newTestEntry("Dup", "https://a.com/")
	require.NoError(t, s.Insert(ctx, e1))

	e2 := newTestEntry("Dup2", "https://a.com/")
	assert.ErrorIs(t, s.Insert(ctx, e2), model.ErrConflict)

	e3 := newTestEntry("Dup", "https://b.com/")
	assert.ErrorIs(t, s.Insert(ctx, e3), model.ErrConflict)
}

func TestRedisStore_UpdateVersionConflict(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	e := newTestEntry("Svc", "https://svc.example.com/")
	require.NoError(t, s.Insert(ctx, e))

	e.Name = "SvcRenamed"
	require.NoError(t, s.Update(ctx, e, 1))
	assert.Equal(t, int64(2), e.Version)

	stale := newTestEntry("Stale", "https://svc.example.com/")
	stale.ID = e.ID
	err := s.Update(ctx, stale, 1)
	assert.ErrorIs(t, err, model.ErrVersionConflict)
}

func TestRedisStore_AppendHistoryBounded(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	e := newTestEntry("Bounded", "https://bounded.example.com/")
	require.NoError(t, s.Insert(ctx, e))

	version := e.Version
	for i := 0; i < model.MaxHistory+5; i++ {
		updated, err := s.AppendHistory(ctx, e.ID, version, model.StatusPatch{
			LatencyMs: int64(i), Status: types.StatusUp, CheckedAt: time.Now(),
		})
		require.NoError(t, err)
		version = updated.Version
	}

	final, err := s.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(final.History), model.MaxHistory)
	assert.Equal(t, int64(model.MaxHistory+4), final.History[len(final.History)-1])
}

func TestRedisStore_Delete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	e := newTestEntry("ToDelete", "https://del.example.com/")
	require.NoError(t, s.Insert(ctx, e))
	require.NoError(t, s.Delete(ctx, e.ID))

	_, err := s.FindByID(ctx, e.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = s.FindByNormalizedURL(ctx, e.NormalizedURL)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
