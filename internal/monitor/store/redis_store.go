package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/pkg/types"
)

// Redis key layout, generalized from the teacher's internal/common/redis
// client wrapper (hash-per-entity plus secondary index sets/sorted sets):
//
//	monitor:url:<id>        hash   — entry fields, JSON-encoded where needed
//	monitor:url:normurl     hash   — normalizedURL -> id uniqueness index
//	monitor:url:name        hash   — name -> id uniqueness index
//	monitor:url:bychecked   zset   — id scored by lastChecked unix millis
//	monitor:url:ids         set    — all ids, for FindAll
const (
	keyEntry      = "monitor:url:"
	keyByNormURL  = "monitor:url:normurl"
	keyByName     = "monitor:url:name"
	keyByChecked  = "monitor:url:bychecked"
	keyAllIDs     = "monitor:url:ids"
	casScriptBody = `
local key = KEYS[1]
local expected = tonumber(ARGV[1])
local current = redis.call("HGET", key, "version")
if current == false then
  return -1
end
if tonumber(current) ~= expected then
  return -2
end
for i = 2, #ARGV, 2 do
  redis.call("HSET", key, ARGV[i], ARGV[i+1])
end
return 0
`
)

// RedisStore is the default production Store, grounded on the teacher's
// go-redis/v9 wrapper style in internal/common/redis/client.go: a thin
// client field, domain methods that log-then-wrap on error, and a Lua
// script (client.Eval) for the one place a plain command can't be atomic.
type RedisStore struct {
	rdb       *redis.Client
	logger    *zap.Logger
	casScript *redis.Script
}

// NewRedisStore dials a Redis backend at addr and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis store: ping failed: %w", err)
	}
	return &RedisStore{
		rdb:       rdb,
		logger:    logger,
		casScript: redis.NewScript(casScriptBody),
	}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client; used by
// tests against miniredis.
func NewRedisStoreFromClient(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, logger: logger, casScript: redis.NewScript(casScriptBody)}
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func entryKey(id string) string { return keyEntry + id }

type entryRecord struct {
	ID            string       `json:"id"`
	URL           string       `json:"url"`
	NormalizedURL string       `json:"normalizedUrl"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Group         types.Group  `json:"group"`
	Enabled       bool         `json:"enabled"`
	CheckInterval int64        `json:"checkIntervalMs"`
	Dependencies  []string     `json:"dependencies"`
	Auth          *authRecord  `json:"auth,omitempty"`
	Status        types.Status `json:"status"`
	Latency       int64        `json:"latency"`
	History       []int64      `json:"history"`
	LastChecked   int64        `json:"lastCheckedMs"`
	HTTPStatus    int          `json:"httpStatus"`
	StatusMessage string       `json:"statusMessage"`
	CreatedAt     int64        `json:"createdAtMs"`
	UpdatedAt     int64        `json:"updatedAtMs"`
	Version       int64        `json:"version"`
}

type authRecord struct {
	Type                 model.AuthType  `json:"type"`
	Username             string          `json:"username"`
	BearerToken          string          `json:"bearerToken"`
	APIKeyHeader         string          `json:"apiKeyHeader"`
	APIKeyValue          string          `json:"apiKeyValue"`
	LoginURL             string          `json:"loginUrl"`
	LoginType            model.LoginType `json:"loginType"`
	UsernameSelector     string          `json:"usernameSelector"`
	PasswordSelector     string          `json:"passwordSelector"`
	SubmitSelector       string          `json:"submitSelector"`
	ModalTriggerSelector string          `json:"modalTriggerSelector"`
	LoginSuccessSelector string          `json:"loginSuccessSelector"`
	Password             string          `json:"password"`
}

func toRecord(e *model.Entry) *entryRecord {
	r := &entryRecord{
		ID:            e.ID,
		URL:           e.URL,
		NormalizedURL: e.NormalizedURL,
		Name:          e.Name,
		Description:   e.Description,
		Group:         e.Group,
		Enabled:       e.Enabled,
		CheckInterval: e.CheckInterval.Milliseconds(),
		Dependencies:  e.Dependencies,
		Status:        e.Status,
		Latency:       e.Latency,
		History:       e.History,
		HTTPStatus:    e.HTTPStatus,
		StatusMessage: e.StatusMessage,
		CreatedAt:     e.CreatedAt.UnixMilli(),
		UpdatedAt:     e.UpdatedAt.UnixMilli(),
		Version:       e.Version,
	}
	if !e.LastChecked.IsZero() {
		r.LastChecked = e.LastChecked.UnixMilli()
	}
	if e.Auth != nil {
		r.Auth = &authRecord{
			Type: e.Auth.Type, Username: e.Auth.Username, BearerToken: e.Auth.BearerToken,
			APIKeyHeader: e.Auth.APIKeyHeader, APIKeyValue: e.Auth.APIKeyValue,
			LoginURL: e.Auth.LoginURL, LoginType: e.Auth.LoginType,
			UsernameSelector: e.Auth.UsernameSelector, PasswordSelector: e.Auth.PasswordSelector,
			SubmitSelector: e.Auth.SubmitSelector, ModalTriggerSelector: e.Auth.ModalTriggerSelector,
			LoginSuccessSelector: e.Auth.LoginSuccessSelector, Password: e.Auth.Password,
		}
	}
	return r
}

func fromRecord(r *entryRecord) *model.Entry {
	e := &model.Entry{
		ID:            r.ID,
		URL:           r.URL,
		NormalizedURL: r.NormalizedURL,
		Name:          r.Name,
		Description:   r.Description,
		Group:         r.Group,
		Enabled:       r.Enabled,
		CheckInterval: time.Duration(r.CheckInterval) * time.Millisecond,
		Dependencies:  r.Dependencies,
		Status:        r.Status,
		Latency:       r.Latency,
		History:       r.History,
		HTTPStatus:    r.HTTPStatus,
		StatusMessage: r.StatusMessage,
		CreatedAt:     time.UnixMilli(r.CreatedAt),
		UpdatedAt:     time.UnixMilli(r.UpdatedAt),
		Version:       r.Version,
	}
	if r.LastChecked > 0 {
		e.LastChecked = time.UnixMilli(r.LastChecked)
	}
	if r.Auth != nil {
		e.Auth = &model.AuthConfig{
			Type: r.Auth.Type, Username: r.Auth.Username, BearerToken: r.Auth.BearerToken,
			APIKeyHeader: r.Auth.APIKeyHeader, APIKeyValue: r.Auth.APIKeyValue,
			LoginURL: r.Auth.LoginURL, LoginType: r.Auth.LoginType,
			UsernameSelector: r.Auth.UsernameSelector, PasswordSelector: r.Auth.PasswordSelector,
			SubmitSelector: r.Auth.SubmitSelector, ModalTriggerSelector: r.Auth.ModalTriggerSelector,
			LoginSuccessSelector: r.Auth.LoginSuccessSelector, Password: r.Auth.Password,
		}
	}
	return e
}

func (s *RedisStore) Insert(ctx context.Context, e *model.Entry) error {
	exists, err := s.rdb.HExists(ctx, keyByNormURL, e.NormalizedURL).Result()
	if err != nil {
		s.logger.Error("redis hexists failed", zap.Error(err))
		return fmt.Errorf("redis store: insert: %w", err)
	}
	if exists {
		return model.ErrConflict
	}
	nameExists, err := s.rdb.HExists(ctx, keyByName, e.Name).Result()
	if err != nil {
		return fmt.Errorf("redis store: insert: %w", err)
	}
	if nameExists {
		return model.ErrConflict
	}

	payload, err := json.Marshal(toRecord(e))
	if err != nil {
		return fmt.Errorf("redis store: marshal entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, entryKey(e.ID), "data", payload, "version", e.Version)
	pipe.SAdd(ctx, keyAllIDs, e.ID)
	pipe.HSet(ctx, keyByNormURL, e.NormalizedURL, e.ID)
	pipe.HSet(ctx, keyByName, e.Name, e.ID)
	pipe.ZAdd(ctx, keyByChecked, redis.Z{Score: float64(e.LastChecked.UnixMilli()), Member: e.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("redis insert pipeline failed", zap.Error(err), zap.String("id", e.ID))
		return fmt.Errorf("redis store: insert: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, e *model.Entry, expectedVersion int64) error {
	e.Version = expectedVersion + 1
	payload, err := json.Marshal(toRecord(e))
	if err != nil {
		return fmt.Errorf("redis store: marshal entry: %w", err)
	}

	res, err := s.casScript.Run(ctx, s.rdb, []string{entryKey(e.ID)},
		expectedVersion, "data", string(payload), "version", e.Version).Result()
	if err != nil {
		s.logger.Error("redis cas script failed", zap.Error(err), zap.String("id", e.ID))
		return fmt.Errorf("redis store: update: %w", err)
	}
	code, _ := res.(int64)
	switch code {
	case -1:
		return model.ErrNotFound
	case -2:
		return model.ErrVersionConflict
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, keyByNormURL, e.NormalizedURL, e.ID)
	pipe.HSet(ctx, keyByName, e.Name, e.ID)
	pipe.ZAdd(ctx, keyByChecked, redis.Z{Score: float64(e.LastChecked.UnixMilli()), Member: e.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	data, err := s.rdb.HGet(ctx, entryKey(id), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: find by id: %w", err)
	}
	var r entryRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("redis store: decode entry: %w", err)
	}
	return fromRecord(&r), nil
}

func (s *RedisStore) FindAll(ctx context.Context) ([]*model.Entry, error) {
	ids, err := s.rdb.SMembers(ctx, keyAllIDs).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: find all: %w", err)
	}
	entries := make([]*model.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.FindByID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	e, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	pipe.SRem(ctx, keyAllIDs, id)
	pipe.HDel(ctx, keyByNormURL, e.NormalizedURL)
	pipe.HDel(ctx, keyByName, e.Name)
	pipe.ZRem(ctx, keyByChecked, id)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis store: delete: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByNormalizedURL(ctx context.Context, normalizedURL string) (*model.Entry, error) {
	id, err := s.rdb.HGet(ctx, keyByNormURL, normalizedURL).Result()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: find by normalized url: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *RedisStore) FindByName(ctx context.Context, name string) (*model.Entry, error) {
	id, err := s.rdb.HGet(ctx, keyByName, name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: find by name: %w", err)
	}
	return s.FindByID(ctx, id)
}

// AppendHistory performs the optimistic-concurrency compound write a probe
// completion makes: bump history/status/lastChecked and version together,
// retrying the caller-visible model.ErrVersionConflict path is left to the
// dispatcher (spec.md §4.5), not retried here.
func (s *RedisStore) AppendHistory(ctx context.Context, id string, expectedVersion int64, patch model.StatusPatch) (*model.Entry, error) {
	e, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Version != expectedVersion {
		return nil, model.ErrVersionConflict
	}

	e.History = model.AppendHistory(e.History, patch.LatencyMs)
	e.Latency = patch.LatencyMs
	e.Status = patch.Status
	e.HTTPStatus = patch.HTTPStatus
	e.StatusMessage = patch.StatusMessage
	e.LastChecked = patch.CheckedAt
	e.UpdatedAt = patch.CheckedAt

	if err := s.Update(ctx, e, expectedVersion); err != nil {
		return nil, err
	}
	return e, nil
}
