// Command sentineld runs the endpoint-monitoring engine: registry API,
// scheduler sweep, probe dispatcher, and push bus, wired together the way
// EdgeComet-engine/cmd/cache-daemon/main.go wires its own daemon — a
// bootstrap logger, then config, then each subsystem in dependency order,
// then a signal-driven graceful shutdown in reverse order.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/watchvane/sentinel/internal/common/config"
	"github.com/watchvane/sentinel/internal/common/logger"
	"github.com/watchvane/sentinel/internal/common/metricsserver"
	"github.com/watchvane/sentinel/internal/monitor/api"
	"github.com/watchvane/sentinel/internal/monitor/browser"
	"github.com/watchvane/sentinel/internal/monitor/dispatch"
	"github.com/watchvane/sentinel/internal/monitor/httpprobe"
	"github.com/watchvane/sentinel/internal/monitor/metrics"
	"github.com/watchvane/sentinel/internal/monitor/pushbus"
	"github.com/watchvane/sentinel/internal/monitor/registry"
	"github.com/watchvane/sentinel/internal/monitor/scheduler"
	"github.com/watchvane/sentinel/internal/monitor/store"
	"github.com/watchvane/sentinel/pkg/types"
)

const defaultDatabaseURL = "redis://localhost:6379/0"
const shutdownTimeout = 30 * time.Second

func main() {
	bootLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("failed to create bootstrap logger: %v", err)
	}

	cfgManager, err := config.Load(bootLogger.Logger)
	if err != nil {
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}
	cfg := cfgManager.GetConfig()

	appLogger, err := logger.NewLogger(cfg.Log)
	if err != nil {
		bootLogger.Fatal("failed to create configured logger", zap.Error(err))
	}
	defer appLogger.Sync()
	zapLogger := appLogger.Logger

	st, closeStore, err := openStore(context.Background(), cfg.DatabaseURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	var chSink *store.ClickHouseSink
	if cfg.ClickHouseURL != "" {
		chSink, err = store.NewClickHouseSink(context.Background(), cfg.ClickHouseURL, zapLogger)
		if err != nil {
			zapLogger.Warn("clickhouse sink unavailable, continuing without analytics sink", zap.Error(err))
		} else {
			defer chSink.Close()
		}
	}

	metricsCollector := metrics.New("sentinel", zapLogger)

	hub := pushbus.NewHub(zapLogger)

	sup := browser.NewSupervisor(zapLogger, time.Duration(cfg.Browser.IdleTimeoutMs)*time.Millisecond)
	defer sup.Shutdown()
	browserProber := browser.NewProber(sup, zapLogger)
	httpProber := httpprobe.New(cfg.SSRFProtection)

	probeSink := func(urlID string, isBrowser bool, r *types.ProbeResult) {
		probeType := "http"
		if isBrowser {
			probeType = "browser"
		}
		group := "unknown"
		if entry, err := st.FindByID(context.Background(), urlID); err == nil {
			group = string(entry.Group)
		}
		metricsCollector.RecordProbe(group, probeType, string(r.Status), float64(r.LatencyMs)/1000)
		metricsCollector.RecordClassification(string(r.Status))
		if sqlStore, ok := st.(*store.SQLStore); ok {
			if err := sqlStore.RecordProbeDetail(context.Background(), urlID, isBrowser, r); err != nil {
				zapLogger.Warn("failed to record probe detail", zap.String("urlId", urlID), zap.Error(err))
			}
		}
		if chSink != nil {
			chSink.Record(urlID, r)
		}
	}

	dispatcher := dispatch.New(st, httpProber, browserProber, hub, zapLogger, probeSink)
	dispatchWithMetrics := func(ctx context.Context, urlID string) (*types.ProbeResult, error) {
		metricsCollector.IncInflight()
		defer metricsCollector.DecInflight()
		return dispatcher.Dispatch(ctx, urlID)
	}

	reg := registry.New(st, dispatchWithMetrics, hub.EmitSyncComplete, zapLogger, cfg.Production)

	sched := scheduler.New(st, func(ctx context.Context, urlID string) error {
		_, err := dispatchWithMetrics(ctx, urlID)
		return err
	}, zapLogger, cfg.CheckInterval.AsDuration())

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	go reportSubscriberGauge(schedCtx, hub, metricsCollector)
	go reportBrowserGauge(schedCtx, sup, metricsCollector)

	router := api.NewRouter(zapLogger)
	handlers := api.NewHandlers(reg, st, zapLogger)
	handlers.Register(router)
	router.Handle("GET", "/ws", hub.Handler())

	httpServer := &fasthttp.Server{
		Handler:                      router.Handler(),
		Name:                         "sentineld",
		ReadTimeout:                  time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		WriteTimeout:                 time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		IdleTimeout:                  60 * time.Second,
		DisablePreParseMultipartForm: true,
		NoDefaultServerHeader:        true,
	}

	listenAddr := ":" + strconv.Itoa(cfg.Port)
	go func() {
		zapLogger.Info("API server starting", zap.String("addr", listenAddr))
		if err := httpServer.ListenAndServe(listenAddr); err != nil {
			zapLogger.Error("API server stopped", zap.Error(err))
		}
	}()

	metricsServer, err := metricsserver.StartMetricsServer(
		cfg.Metrics.Enabled, cfg.Metrics.Listen, cfg.Metrics.Path, metricsCollector, zapLogger)
	if err != nil {
		zapLogger.Warn("failed to start metrics server", zap.Error(err))
	}

	zapLogger.Info("sentineld started", zap.Int("port", cfg.Port), zap.Bool("production", cfg.Production))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.EnsureInfoLevelForShutdown()
	zapLogger.Info("shutting down sentineld")

	cancelSched()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
		zapLogger.Error("failed to shut down API server gracefully", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.ShutdownWithContext(shutdownCtx); err != nil {
			zapLogger.Error("failed to shut down metrics server gracefully", zap.Error(err))
		}
	}

	zapLogger.Info("sentineld stopped")
}

// openStore selects the Store backend from databaseURL's scheme: redis://
// or rediss:// dials Redis, anything else is treated as a go-sql-driver/
// mysql DSN (an optional "mysql://" prefix is stripped first).
func openStore(ctx context.Context, databaseURL string, logger *zap.Logger) (store.Store, func(), error) {
	if databaseURL == "" {
		databaseURL = defaultDatabaseURL
	}

	if strings.HasPrefix(databaseURL, "redis://") || strings.HasPrefix(databaseURL, "rediss://") {
		opts, err := redis.ParseURL(databaseURL)
		if err != nil {
			return nil, nil, err
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		st := store.NewRedisStoreFromClient(rdb, logger)
		return st, func() { st.Close() }, nil
	}

	dsn := strings.TrimPrefix(databaseURL, "mysql://")
	st, err := store.NewSQLStore(ctx, dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

func reportSubscriberGauge(ctx context.Context, hub *pushbus.Hub, m *metrics.Collector) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SetSubscribers(hub.SubscriberCount())
		case <-ctx.Done():
			return
		}
	}
}

func reportBrowserGauge(ctx context.Context, sup *browser.Supervisor, m *metrics.Collector) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.SetBrowserSessionActive(sup.Active())
		case <-ctx.Done():
			return
		}
	}
}
