// Package store implements the durable registry state of spec.md §4.1:
// a Store interface with two production backends (Redis, MySQL) plus a
// best-effort ClickHouse analytics sink, all built the way the teacher's
// internal/common/redis client wraps go-redis — inject the driver once,
// expose domain-shaped methods.
package store

import (
	"context"

	"github.com/watchvane/sentinel/internal/monitor/model"
)

// Store is the durable persistence contract for registry entries.
// Every mutation that touches version is optimistic-concurrency checked:
// implementations return model.ErrVersionConflict rather than silently
// overwriting a newer write (spec.md §9, "surface a typed VersionConflict
// result from the Store").
type Store interface {
	Insert(ctx context.Context, e *model.Entry) error
	Update(ctx context.Context, e *model.Entry, expectedVersion int64) error
	FindByID(ctx context.Context, id string) (*model.Entry, error)
	FindAll(ctx context.Context) ([]*model.Entry, error)
	Delete(ctx context.Context, id string) error

	// FindByNormalizedURL and FindByName back the registry's conflict
	// checks (spec.md §4.7 addUrl).
	FindByNormalizedURL(ctx context.Context, normalizedURL string) (*model.Entry, error)
	FindByName(ctx context.Context, name string) (*model.Entry, error)

	// AppendHistory is the atomic compound write a probe completion makes:
	// bump latency history, status fields, and version together, gated on
	// expectedVersion (spec.md §4.5 "Persistence with retry").
	AppendHistory(ctx context.Context, id string, expectedVersion int64, patch model.StatusPatch) (*model.Entry, error)

	Close() error
}
