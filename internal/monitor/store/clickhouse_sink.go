package store

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/pkg/types"
)

// ClickHouseSink is the best-effort, asynchronous analytics writer of
// SPEC_FULL.md §4.1: every ProbeResult the dispatcher emits is queued here
// and flushed on a background goroutine. A full queue drops the incoming
// sample rather than blocking the dispatcher — the same "never propagated,
// always just logged" treatment spec.md §7 gives every probe-surfaced
// error kind.
type ClickHouseSink struct {
	conn   clickhouse.Conn
	logger *zap.Logger
	queue  chan sinkRow
	done   chan struct{}
}

type sinkRow struct {
	urlID  string
	result *types.ProbeResult
}

const ddlProbeResultsCH = `
CREATE TABLE IF NOT EXISTS probe_results (
	url_id String,
	status String,
	http_status Int32,
	latency_ms Int64,
	error_kind String,
	checked_at DateTime64(3),
	persisted UInt8
) ENGINE = MergeTree()
ORDER BY (url_id, checked_at)
`

// NewClickHouseSink dials dsn (a clickhouse-go DSN) and starts the flush
// worker. Connectivity failure is returned, but once started, every later
// write failure is swallowed and logged.
func NewClickHouseSink(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, ddlProbeResultsCH); err != nil {
		return nil, err
	}

	sink := &ClickHouseSink{
		conn:   conn,
		logger: logger,
		queue:  make(chan sinkRow, 1024),
		done:   make(chan struct{}),
	}
	go sink.run()
	return sink, nil
}

// Record enqueues a result for asynchronous write; it never blocks the
// caller beyond a full-queue drop.
func (s *ClickHouseSink) Record(urlID string, r *types.ProbeResult) {
	select {
	case s.queue <- sinkRow{urlID: urlID, result: r}:
	default:
		s.logger.Warn("clickhouse sink queue full, dropping sample", zap.String("urlId", urlID))
	}
}

func (s *ClickHouseSink) run() {
	ctx := context.Background()
	for row := range s.queue {
		s.write(ctx, row)
	}
	close(s.done)
}

func (s *ClickHouseSink) write(ctx context.Context, row sinkRow) {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := s.conn.Exec(writeCtx, `
		INSERT INTO probe_results (url_id, status, http_status, latency_ms, error_kind, checked_at, persisted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.urlID, string(row.result.Status), row.result.HTTPStatus, row.result.LatencyMs,
		string(row.result.ErrorKind), row.result.CheckedAt, boolToUInt8(row.result.Persisted),
	)
	if err != nil {
		s.logger.Warn("clickhouse sink write failed", zap.Error(err), zap.String("urlId", row.urlID))
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Close stops accepting new records and waits for the queue to drain.
func (s *ClickHouseSink) Close() error {
	close(s.queue)
	<-s.done
	return s.conn.Close()
}
