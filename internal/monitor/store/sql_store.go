package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/monitor/model"
	"github.com/watchvane/sentinel/pkg/types"
)

// SQLStore is the alternate, relational Store backend of SPEC_FULL.md
// §4.1/§6.4: five tables mirroring the teacher's preference for
// database/sql plus a driver import for side effects, with the same
// "UPDATE ... WHERE version = ?, inspect RowsAffected" compare-and-swap
// idiom the teacher never needed but that every Go database/sql codebase
// in this corpus's domain converges on for optimistic concurrency.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLStore opens dsn (a go-sql-driver/mysql DSN), verifies connectivity,
// and creates the schema if absent.
func NewSQLStore(ctx context.Context, dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql store: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sql store: ping: %w", err)
	}

	s := &SQLStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range ddlStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sql store: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *SQLStore) Insert(ctx context.Context, e *model.Entry) error {
	deps, err := json.Marshal(e.Dependencies)
	if err != nil {
		return fmt.Errorf("sql store: marshal dependencies: %w", err)
	}
	history, err := json.Marshal(e.History)
	if err != nil {
		return fmt.Errorf("sql store: marshal history: %w", err)
	}
	auth, err := marshalAuth(e.Auth)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitored_urls
			(id, url, normalized_url, name, description, url_group, enabled,
			 check_interval_ms, dependencies, auth, status, latency, history,
			 last_checked, http_status, status_message, created_at, updated_at, version)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.URL, e.NormalizedURL, e.Name, e.Description, string(e.Group), e.Enabled,
		e.CheckInterval.Milliseconds(), deps, auth, string(e.Status), e.Latency, history,
		nullTime(e.LastChecked), e.HTTPStatus, e.StatusMessage, e.CreatedAt, e.UpdatedAt, e.Version,
	)
	if isDuplicateKeyErr(err) {
		return model.ErrConflict
	}
	if err != nil {
		s.logger.Error("sql insert failed", zap.Error(err), zap.String("id", e.ID))
		return fmt.Errorf("sql store: insert: %w", err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, e *model.Entry, expectedVersion int64) error {
	deps, err := json.Marshal(e.Dependencies)
	if err != nil {
		return fmt.Errorf("sql store: marshal dependencies: %w", err)
	}
	history, err := json.Marshal(e.History)
	if err != nil {
		return fmt.Errorf("sql store: marshal history: %w", err)
	}
	auth, err := marshalAuth(e.Auth)
	if err != nil {
		return err
	}
	newVersion := expectedVersion + 1

	res, err := s.db.ExecContext(ctx, `
		UPDATE monitored_urls SET
			url=?, normalized_url=?, name=?, description=?, url_group=?, enabled=?,
			check_interval_ms=?, dependencies=?, auth=?, status=?, latency=?, history=?,
			last_checked=?, http_status=?, status_message=?, updated_at=?, version=?
		WHERE id=? AND version=?`,
		e.URL, e.NormalizedURL, e.Name, e.Description, string(e.Group), e.Enabled,
		e.CheckInterval.Milliseconds(), deps, auth, string(e.Status), e.Latency, history,
		nullTime(e.LastChecked), e.HTTPStatus, e.StatusMessage, e.UpdatedAt, newVersion,
		e.ID, expectedVersion,
	)
	if isDuplicateKeyErr(err) {
		return model.ErrConflict
	}
	if err != nil {
		s.logger.Error("sql update failed", zap.Error(err), zap.String("id", e.ID))
		return fmt.Errorf("sql store: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sql store: update rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := s.FindByID(ctx, e.ID); errors.Is(getErr, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return model.ErrVersionConflict
	}
	e.Version = newVersion
	return nil
}

func (s *SQLStore) scanEntry(row *sql.Row) (*model.Entry, error) {
	var (
		e                                  model.Entry
		group, status, deps, history, auth sql.NullString
		lastChecked                        sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.URL, &e.NormalizedURL, &e.Name, &e.Description, &group, &e.Enabled,
		&e.CheckInterval, &deps, &auth, &status, &e.Latency, &history,
		&lastChecked, &e.HTTPStatus, &e.StatusMessage, &e.CreatedAt, &e.UpdatedAt, &e.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sql store: scan entry: %w", err)
	}
	e.Group = types.Group(group.String)
	e.Status = types.Status(status.String)
	e.CheckInterval = e.CheckInterval * time.Millisecond
	if lastChecked.Valid {
		e.LastChecked = lastChecked.Time
	}
	if deps.Valid && deps.String != "" {
		if err := json.Unmarshal([]byte(deps.String), &e.Dependencies); err != nil {
			return nil, fmt.Errorf("sql store: decode dependencies: %w", err)
		}
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &e.History); err != nil {
			return nil, fmt.Errorf("sql store: decode history: %w", err)
		}
	}
	if auth.Valid && auth.String != "" && auth.String != "null" {
		var a authRecord
		if err := json.Unmarshal([]byte(auth.String), &a); err != nil {
			return nil, fmt.Errorf("sql store: decode auth: %w", err)
		}
		e.Auth = &model.AuthConfig{
			Type: a.Type, Username: a.Username, BearerToken: a.BearerToken,
			APIKeyHeader: a.APIKeyHeader, APIKeyValue: a.APIKeyValue,
			LoginURL: a.LoginURL, LoginType: a.LoginType,
			UsernameSelector: a.UsernameSelector, PasswordSelector: a.PasswordSelector,
			SubmitSelector: a.SubmitSelector, ModalTriggerSelector: a.ModalTriggerSelector,
			LoginSuccessSelector: a.LoginSuccessSelector, Password: a.Password,
		}
	}
	return &e, nil
}

const selectEntryCols = `id, url, normalized_url, name, description, url_group, enabled,
	check_interval_ms, dependencies, auth, status, latency, history,
	last_checked, http_status, status_message, created_at, updated_at, version`

func (s *SQLStore) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectEntryCols+` FROM monitored_urls WHERE id=?`, id)
	return s.scanEntry(row)
}

func (s *SQLStore) FindByNormalizedURL(ctx context.Context, normalizedURL string) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectEntryCols+` FROM monitored_urls WHERE normalized_url=?`, normalizedURL)
	return s.scanEntry(row)
}

func (s *SQLStore) FindByName(ctx context.Context, name string) (*model.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectEntryCols+` FROM monitored_urls WHERE name=?`, name)
	return s.scanEntry(row)
}

func (s *SQLStore) FindAll(ctx context.Context) ([]*model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectEntryCols+` FROM monitored_urls ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("sql store: find all: %w", err)
	}
	defer rows.Close()

	var out []*model.Entry
	for rows.Next() {
		var (
			e                                  model.Entry
			group, status, deps, history, auth sql.NullString
			lastChecked                        sql.NullTime
		)
		if err := rows.Scan(
			&e.ID, &e.URL, &e.NormalizedURL, &e.Name, &e.Description, &group, &e.Enabled,
			&e.CheckInterval, &deps, &auth, &status, &e.Latency, &history,
			&lastChecked, &e.HTTPStatus, &e.StatusMessage, &e.CreatedAt, &e.UpdatedAt, &e.Version,
		); err != nil {
			return nil, fmt.Errorf("sql store: scan row: %w", err)
		}
		e.Group = types.Group(group.String)
		e.Status = types.Status(status.String)
		e.CheckInterval = e.CheckInterval * time.Millisecond
		if lastChecked.Valid {
			e.LastChecked = lastChecked.Time
		}
		if deps.Valid && deps.String != "" {
			json.Unmarshal([]byte(deps.String), &e.Dependencies)
		}
		if history.Valid && history.String != "" {
			json.Unmarshal([]byte(history.String), &e.History)
		}
		if auth.Valid && auth.String != "" && auth.String != "null" {
			var a authRecord
			if err := json.Unmarshal([]byte(auth.String), &a); err == nil {
				e.Auth = &model.AuthConfig{
					Type: a.Type, Username: a.Username, BearerToken: a.BearerToken,
					APIKeyHeader: a.APIKeyHeader, APIKeyValue: a.APIKeyValue,
					LoginURL: a.LoginURL, LoginType: a.LoginType,
					UsernameSelector: a.UsernameSelector, PasswordSelector: a.PasswordSelector,
					SubmitSelector: a.SubmitSelector, ModalTriggerSelector: a.ModalTriggerSelector,
					LoginSuccessSelector: a.LoginSuccessSelector, Password: a.Password,
				}
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitored_urls WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("sql store: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sql store: delete rows affected: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLStore) AppendHistory(ctx context.Context, id string, expectedVersion int64, patch model.StatusPatch) (*model.Entry, error) {
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

// RecordProbeDetail appends the per-probe detail trail (probe_results plus
// its error/iframe/video children) that feeds §6.4's analytics tables;
// it is a supplementary write the Store interface does not require, called
// directly by the dispatcher when running against the SQL backend.
func (s *SQLStore) RecordProbeDetail(ctx context.Context, urlID string, isBrowserProbe bool, r *types.ProbeResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sql store: record probe detail: begin: %w", err)
	}
	defer tx.Rollback()

	probeID := model.NewID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO probe_results
			(id, url_id, status, latency_ms, http_status, is_browser_probe,
			 auth_attempted, auth_succeeded, screenshot_ref, persisted, checked_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		probeID, urlID, string(r.Status), r.LatencyMs, r.HTTPStatus, isBrowserProbe,
		r.AuthAttempted, r.AuthSucceeded, r.ScreenshotRef, r.Persisted, r.CheckedAt,
	); err != nil {
		return fmt.Errorf("sql store: insert probe_results: %w", err)
	}

	for _, ce := range r.ConsoleErrors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO error_logs (probe_result_id, kind, message, source, line, column_no)
			VALUES (?,?,?,?,?,?)`, probeID, "console", ce.Message, ce.Source, ce.Line, ce.Column); err != nil {
			return fmt.Errorf("sql store: insert error_logs (console): %w", err)
		}
	}
	for _, ne := range r.NetworkErrors {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO error_logs (probe_result_id, kind, message, source)
			VALUES (?,?,?,?)`, probeID, "network", ne.FailureText, ne.URL); err != nil {
			return fmt.Errorf("sql store: insert error_logs (network): %w", err)
		}
	}
	for _, ic := range r.IframeChecks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO iframe_checks (probe_result_id, src, has_src, loaded, connected)
			VALUES (?,?,?,?,?)`, probeID, ic.Src, ic.HasSrc, ic.Loaded, ic.Connected); err != nil {
			return fmt.Errorf("sql store: insert iframe_checks: %w", err)
		}
	}
	for _, vc := range r.VideoChecks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO video_checks
				(probe_result_id, ready_state, network_state, has_source, error_code, error_message, playable)
			VALUES (?,?,?,?,?,?,?)`,
			probeID, vc.ReadyState, vc.NetworkState, vc.HasSource, vc.ErrorCode, vc.ErrorMessage, vc.Playable); err != nil {
			return fmt.Errorf("sql store: insert video_checks: %w", err)
		}
	}

	return tx.Commit()
}

func marshalAuth(a *model.AuthConfig) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	rec := authRecord{
		Type: a.Type, Username: a.Username, BearerToken: a.BearerToken,
		APIKeyHeader: a.APIKeyHeader, APIKeyValue: a.APIKeyValue,
		LoginURL: a.LoginURL, LoginType: a.LoginType,
		UsernameSelector: a.UsernameSelector, PasswordSelector: a.PasswordSelector,
		SubmitSelector: a.SubmitSelector, ModalTriggerSelector: a.ModalTriggerSelector,
		LoginSuccessSelector: a.LoginSuccessSelector, Password: a.Password,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("sql store: marshal auth: %w", err)
	}
	return b, nil
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
