package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/httpprobe"
	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/internal/monitor/store"
	"github.com/watchvane/sentinel/pkg/types"
)

type fakeEmitter struct {
	mu      sync.Mutex
	results []*types.ProbeResult
	changes int
}

func (f *fakeEmitter) EmitProbeResult(r *types.ProbeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
}

func (f *fakeEmitter) EmitStatusChange(urlID string, old, new types.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes++
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewRedisStoreFromClient(rdb, zap.NewNop())
}

func TestDispatcher_SingleFlight(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	entry := &model.Entry{
		ID: model.NewID(), URL: srv.URL, NormalizedURL: srv.URL, Name: "SingleFlight",
		Group: types.GroupAPI, Enabled: true, CheckInterval: time.Minute,
		Status: types.StatusFresh, CreatedAt: now, UpdatedAt: now, Version: 1,
	}
	require.NoError(t, st.Insert(ctx, entry))

	emitter := &fakeEmitter{}
	d := New(st, httpprobe.New(false), nil, emitter, zap.NewNop(), nil)

	var wg sync.WaitGroup
	results := make([]*types.ProbeResult, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := d.Dispatch(ctx, entry.ID)
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	for _, r := range results {
		assert.Equal(t, results[0].Status, r.Status)
		assert.Equal(t, results[0].CheckedAt, r.CheckedAt)
	}
}

func TestDispatcher_PersistsAndEmits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	entry := &model.Entry{
		ID: model.NewID(), URL: srv.URL, NormalizedURL: srv.URL, Name: "Persisted",
		Group: types.GroupAPI, Enabled: true, CheckInterval: time.Minute,
		Status: types.StatusFresh, CreatedAt: now, UpdatedAt: now, Version: 1,
	}
	require.NoError(t, st.Insert(ctx, entry))

	emitter := &fakeEmitter{}
	d := New(st, httpprobe.New(false), nil, emitter, zap.NewNop(), nil)

	r, err := d.Dispatch(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, r.Persisted)
	assert.Equal(t, types.StatusFresh, r.Status)
	assert.Equal(t, 1, emitter.count())

	updated, err := st.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, updated.History, 1)
}

func TestDispatcher_CleansUpInflightOnMissingEntry(t *testing.T) {
	st := newTestStore(t)
	emitter := &fakeEmitter{}
	d := New(st, httpprobe.New(false), nil, emitter, zap.NewNop(), nil)

	_, err := d.Dispatch(context.Background(), model.NewID())
	require.Error(t, err)

	d.mu.Lock()
	n := len(d.inFlight)
	d.mu.Unlock()
	assert.Equal(t, 0, n)
}
