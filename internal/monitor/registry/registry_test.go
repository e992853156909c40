package registry

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
	"github.com/watchvane/sentinel/internal/monitor/store"
	"github.com/watchvane/sentinel/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStoreFromClient(rdb, zap.NewNop())

	dispatch := func(ctx context.Context, urlID string) (*types.ProbeResult, error) {
		return &types.ProbeResult{URLID: urlID, Status: types.StatusFresh, CheckedAt: time.Now()}, nil
	}
	return New(st, dispatch, nil, zap.NewNop(), false)
}

func TestAddURL_Success(t *testing.T) {
	s := newTestService(t)
	e, err := s.AddURL(context.Background(), AddInput{
		URL: "https://api.example.com/health", Name: "HealthAPI", Group: types.GroupAPI,
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFresh, e.Status)
	assert.Empty(t, e.History)
	assert.True(t, model.ValidID(e.ID))
}

func TestAddURL_DuplicateURLRejected(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.AddURL(ctx, AddInput{URL: "https://a.com/", Name: "A1"})
	require.NoError(t, err)

	_, err = s.AddURL(ctx, AddInput{URL: "https://a.com", Name: "A2"})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestAddURL_InvalidName(t *testing.T) {
	s := newTestService(t)
	_, err := s.AddURL(context.Background(), AddInput{URL: "https://a.com", Name: "x"})
	assert.Error(t, err)
}

func TestAddURL_RejectsPrivateHostInProduction(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStoreFromClient(rdb, zap.NewNop())
	s := New(st, nil, nil, zap.NewNop(), true)

	_, err = s.AddURL(context.Background(), AddInput{URL: "http://127.0.0.1:8080", Name: "Loopback"})
	assert.Error(t, err)
}

func TestUpdateURL_CycleRejected(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.AddURL(ctx, AddInput{URL: "https://a.example.com", Name: "A"})
	require.NoError(t, err)
	b, err := s.AddURL(ctx, AddInput{URL: "https://b.example.com", Name: "B", Dependencies: []string{a.ID}})
	require.NoError(t, err)
	c, err := s.AddURL(ctx, AddInput{URL: "https://c.example.com", Name: "C", Dependencies: []string{b.ID}})
	require.NoError(t, err)

	cycleDeps := []string{c.ID}
	_, err = s.UpdateURL(ctx, a.ID, model.Patch{Dependencies: &cycleDeps})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRemoveURL(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	e, err := s.AddURL(ctx, AddInput{URL: "https://del.example.com", Name: "Del"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveURL(ctx, e.ID))
	_, err = s.CheckNow(ctx, e.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCheckNow(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	e, err := s.AddURL(ctx, AddInput{URL: "https://check.example.com", Name: "Check"})
	require.NoError(t, err)

	r, err := s.CheckNow(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, r.URLID)
}
