package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BaSui01/collabengine/api/handlers"
	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/config"
	"github.com/BaSui01/collabengine/engine"
	"github.com/BaSui01/collabengine/internal/database"
	imetrics "github.com/BaSui01/collabengine/internal/metrics"
	"github.com/BaSui01/collabengine/internal/migration"
	"github.com/BaSui01/collabengine/internal/server"
	"github.com/BaSui01/collabengine/internal/telemetry"
	"github.com/BaSui01/collabengine/internal/tlsutil"
	"github.com/BaSui01/collabengine/metrics"
	"github.com/BaSui01/collabengine/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dbStatsInterval 连接池指标采样间隔
const dbStatsInterval = 15 * time.Second

// skipAuthPaths 无需认证的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loader, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, loader, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, level, err := initLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting collabengine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	if configPath != "" {
		watcher := config.NewWatcher(loader, cfg,
			config.WithWatcherLogger(logger),
			config.WithAtomicLevel(&level),
		)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher not started", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	err = app.Run(ctx)
	logger.Info("collabengine stopped")
	return err
}

// app 进程内所有组件及其关闭顺序
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *engine.Engine
	telemetry *telemetry.Providers
	collector *imetrics.Collector
	db        *database.PoolManager
	redis     redis.UniversalClient
	kafka     *broadcast.KafkaDeliverer
	acks      *broadcast.AckListener
	api       *server.Manager
	metrics   *server.Manager
	health    *handlers.HealthHandler
}

// newApp 按配置装配引擎及其外部依赖；任一步失败时释放已创建的资源
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, health: handlers.NewHealthHandler(logger)}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.telemetry, err = telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a.collector = imetrics.NewCollector("collabengine", logger)
	sinks := []metrics.Sink{a.collector}
	if a.telemetry.Enabled() {
		sink, err := telemetry.NewMetricSink(a.telemetry.MeterProvider().Meter(telemetry.InstrumentationName))
		if err != nil {
			return nil, fmt.Errorf("otel metric sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithSinks(sinks...),
		engine.WithTracerProvider(a.telemetry.TracerProvider()),
	}

	if cfg.Database.Enabled {
		recs, err := a.openRecordStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithRecordStore(recs))
		a.health.RegisterCheck(handlers.NewFuncCheck("database", a.db.Ping))
	}

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			TLSConfig:    tlsutil.ClientConfig(cfg.Redis.TLS, cfg.Redis.Addr),
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, engine.WithLedger(broadcast.NewRedisLedger(a.redis, cfg.Redis.KeyPrefix, cfg.Redis.LedgerRetention)))
		a.health.RegisterCheck(handlers.NewFuncCheck("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}))
		logger.Info("redis delivery ledger enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka.Enabled {
		a.kafka, err = broadcast.NewKafkaDeliverer(kafkaConfig(cfg.Kafka), logger)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		opts = append(opts, engine.WithDeliverer(a.kafka))
		logger.Info("kafka delivery enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	a.engine, err = engine.New(cfg.Engine, opts...)
	if err != nil {
		return nil, err
	}
	a.health.RegisterCheck(handlers.NewFuncCheck("records", a.engine.Ping))

	if a.kafka != nil {
		a.acks = broadcast.NewAckListener(kafkaConfig(cfg.Kafka), a.engine, logger)
	}

	a.api = server.NewManager("api", a.routes(ctx), server.ConfigFrom(cfg.Server.HTTPPort, cfg.Server), logger)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	a.metrics = server.NewManager("metrics", metricsMux, server.ConfigFrom(cfg.Server.MetricsPort, cfg.Server), logger)
	return a, nil
}

// openRecordStore 打开数据库；sqlite 由 AutoMigrate 建表，其余驱动走版本化迁移
func (a *app) openRecordStore(ctx context.Context) (*store.GormStore, error) {
	dbCfg := a.cfg.Database
	pm, err := database.Open(dbCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = pm

	autoMigrate := dbCfg.Driver == "sqlite" && dbCfg.AutoMigrate
	if dbCfg.AutoMigrate && !autoMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("migrator: %w", err)
		}
		upErr := m.Up(ctx)
		closeErr := m.Close()
		if err := errors.Join(upErr, closeErr); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.logger.Info("record store migrations applied", zap.String("driver", dbCfg.Driver))
	}
	return store.NewGormStore(pm, autoMigrate, a.logger)
}

func kafkaConfig(kc config.KafkaConfig) broadcast.KafkaConfig {
	return broadcast.KafkaConfig{
		Brokers:       kc.Brokers,
		TopicPrefix:   kc.TopicPrefix,
		AckTopic:      kc.AckTopic,
		GroupID:       kc.GroupID,
		BatchTimeout:  kc.BatchTimeout,
		RatePerSecond: kc.RatePerSecond,
		TLS:           tlsutil.ClientConfig(kc.TLS, firstBroker(kc.Brokers)),
	}
}

func firstBroker(brokers []string) string {
	if len(brokers) == 0 {
		return ""
	}
	return brokers[0]
}

// routes 构建 API 路由与中间件链
func (a *app) routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.HandleFunc("GET /version", a.health.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewEngineHandler(a.engine, a.logger).Register(mux)
	if hub := a.engine.Hub(); hub != nil {
		handlers.NewSessionHandler(hub, a.engine, a.collector, a.logger).Register(mux)
	}

	middlewares := []Middleware{
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(a.logger),
		OTelTracing(),
		MetricsMiddleware(a.collector),
		RateLimiter(ctx, a.cfg.Server.RateLimitRPS, a.cfg.Server.RateLimitBurst, a.logger),
	}
	if a.cfg.Auth.Enabled {
		middlewares = append(middlewares, Authenticate(a.cfg.Auth, skipAuthPaths, a.logger))
	}
	return Chain(CaptureRoute(mux), middlewares...)
}

// Run 启动全部服务并阻塞到 ctx 结束或任一服务出错
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	for _, m := range []*server.Manager{a.api, a.metrics} {
		if err := m.Start(); err != nil {
			cancel(err)
			break
		}
		wg.Add(1)
		go func(m *server.Manager) {
			defer wg.Done()
			select {
			case err := <-m.Errors():
				cancel(fmt.Errorf("server %s: %w", m.Addr(), err))
			case <-ctx.Done():
			}
		}(m)
	}

	if a.acks != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.acks.Run(ctx); err != nil {
				a.logger.Warn("ack listener stopped", zap.Error(err))
			}
		}()
	}
	if a.db != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.sampleDBStats(ctx)
		}()
	}

	if ctx.Err() == nil {
		a.logger.Info("collabengine ready",
			zap.String("api_addr", a.api.Addr()),
			zap.String("metrics_addr", a.metrics.Addr()),
		)
	}
	<-ctx.Done()

	runErr := context.Cause(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer done()
	closeErr := a.close(shutdownCtx)
	wg.Wait()
	return errors.Join(runErr, closeErr)
}

func (a *app) sampleDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.db.GetStats()
			a.collector.RecordDBConnections(a.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// close 先停止接收请求，再关闭引擎，最后释放外部连接
func (a *app) close(ctx context.Context) error {
	var errs []error
	for _, m := range []*server.Manager{a.api, a.metrics} {
		if m != nil {
			if err := m.Shutdown(ctx); err != nil && !errors.Is(err, server.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
	}
	if a.acks != nil {
		errs = append(errs, a.acks.Close())
	}
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
