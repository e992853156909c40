// Package registry implements the Registry Service of spec.md §4.7:
// addUrl/updateUrl/removeUrl/checkNow, with validation, normalization,
// conflict and dependency-cycle checks before any Store write. The
// validate-then-mutate structure mirrors the teacher's admission-control
// style in internal/edge/internal_server's request handlers — reject
// early, touch the store only once the input is known-good.
package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/internal/monitor/store"
	"github.com/watchvane/sentinel/pkg/types"
)

// Dispatch matches dispatch.Dispatcher.Dispatch's signature; declared
// locally so this package never imports the dispatcher's prober/store
// wiring, the same seam dispatch.Emitter and scheduler.Dispatch use.
type Dispatch func(ctx context.Context, urlID string) (*types.ProbeResult, error)

// SyncNotifier is called after any registry mutation so the push bus can
// emit sync_complete (spec.md §4.8). Declared locally for the same reason
// as Dispatch.
type SyncNotifier func()

type Service struct {
	store      store.Store
	dispatch   Dispatch
	notify     SyncNotifier
	logger     *zap.Logger
	production bool
}

func New(st store.Store, dispatch Dispatch, notify SyncNotifier, logger *zap.Logger, production bool) *Service {
	return &Service{store: st, dispatch: dispatch, notify: notify, logger: logger, production: production}
}

// AddInput is the addUrl request payload.
type AddInput struct {
	URL           string
	Name          string
	Description   string
	Group         types.Group
	Enabled       *bool
	CheckInterval time.Duration
	Dependencies  []string
	Auth          *model.AuthConfig
}

// AddURL implements spec.md §4.7's addUrl.
func (s *Service) AddURL(ctx context.Context, in AddInput) (*model.Entry, error) {
	if err := validateName(in.Name); err != nil {
		return nil, err
	}
	normalized, err := validateURL(in.URL, s.production)
	if err != nil {
		return nil, err
	}
	if err := validateGroup(in.Group); err != nil {
		return nil, err
	}
	if err := validateDependencies(in.Dependencies); err != nil {
		return nil, err
	}

	if _, err := s.store.FindByNormalizedURL(ctx, normalized); err == nil {
		return nil, model.ErrConflict
	} else if err != model.ErrNotFound {
		return nil, err
	}
	if _, err := s.store.FindByName(ctx, in.Name); err == nil {
		return nil, model.ErrConflict
	} else if err != model.ErrNotFound {
		return nil, err
	}

	id := model.NewID()
	if len(in.Dependencies) > 0 {
		all, err := s.store.FindAll(ctx)
		if err != nil {
			return nil, err
		}
		if CreatesCycle(id, in.Dependencies, lookupFromEntries(all, id, in.Dependencies)) {
			return nil, model.NewValidationError("dependencies", "would create a cycle")
		}
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	now := time.Now()
	entry := &model.Entry{
		ID: id, URL: in.URL, NormalizedURL: normalized, Name: in.Name,
		Description: in.Description, Group: in.Group, Enabled: enabled,
		CheckInterval: in.CheckInterval, Dependencies: in.Dependencies, Auth: in.Auth,
		Status: types.StatusFresh, CreatedAt: now, UpdatedAt: now, Version: 1,
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	s.notifyAsync()
	return entry, nil
}

// UpdateURL implements spec.md §4.7's updateUrl.
func (s *Service) UpdateURL(ctx context.Context, id string, patch model.Patch) (*model.Entry, error) {
	entry, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	normalized := entry.NormalizedURL
	if patch.URL != nil {
		normalized, err = validateURL(*patch.URL, s.production)
		if err != nil {
			return nil, err
		}
		if existing, err := s.store.FindByNormalizedURL(ctx, normalized); err == nil && existing.ID != id {
			return nil, model.ErrConflict
		}
	}
	if patch.Name != nil {
		if err := validateName(*patch.Name); err != nil {
			return nil, err
		}
		if existing, err := s.store.FindByName(ctx, *patch.Name); err == nil && existing.ID != id {
			return nil, model.ErrConflict
		}
	}
	if patch.Group != nil {
		if err := validateGroup(*patch.Group); err != nil {
			return nil, err
		}
	}

	newDeps := entry.Dependencies
	if patch.Dependencies != nil {
		if err := validateDependencies(*patch.Dependencies); err != nil {
			return nil, err
		}
		newDeps = *patch.Dependencies
	}
	if patch.Dependencies != nil {
		all, err := s.store.FindAll(ctx)
		if err != nil {
			return nil, err
		}
		if CreatesCycle(id, newDeps, lookupFromEntries(all, id, newDeps)) {
			return nil, model.NewValidationError("dependencies", "would create a cycle")
		}
	}

	if patch.URL != nil {
		entry.URL = *patch.URL
		entry.NormalizedURL = normalized
	}
	if patch.Name != nil {
		entry.Name = *patch.Name
	}
	if patch.Description != nil {
		entry.Description = *patch.Description
	}
	if patch.Group != nil {
		entry.Group = *patch.Group
	}
	if patch.Enabled != nil {
		entry.Enabled = *patch.Enabled
	}
	if patch.CheckInterval != nil {
		entry.CheckInterval = *patch.CheckInterval
	}
	if patch.Dependencies != nil {
		entry.Dependencies = newDeps
	}
	if patch.Auth != nil {
		entry.Auth = model.ApplyAuthPatch(entry.Auth, patch.Auth)
	}
	entry.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, entry, entry.Version); err != nil {
		return nil, err
	}
	s.notifyAsync()
	return entry, nil
}

// RemoveURL implements spec.md §4.7's removeUrl. Any probe already
// in-flight for id is left to run to completion; its eventual persistence
// becomes a no-op once the entry is gone (Store.AppendHistory returns
// ErrNotFound, which the dispatcher already treats as a dropped write).
func (s *Service) RemoveURL(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyAsync()
	return nil
}

// CheckNow implements spec.md §4.7's checkNow: invoke the dispatcher
// directly and return its ProbeResult.
func (s *Service) CheckNow(ctx context.Context, id string) (*types.ProbeResult, error) {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.dispatch(ctx, id)
}

func (s *Service) notifyAsync() {
	if s.notify == nil {
		return
	}
	go s.notify()
}
