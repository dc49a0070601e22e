package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	persistlog "starlanes.ai/internal/persistence/log"
	"starlanes.ai/internal/protocol"
	"starlanes.ai/internal/sim/catalogs"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/orders"
	"starlanes.ai/internal/sim/resolver"
	"starlanes.ai/internal/sim/scheduler"
	"starlanes.ai/internal/sim/tuning"
	"starlanes.ai/internal/transport/api"
	"starlanes.ai/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := defaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	flag.StringVar(&cfg.ConfigDir, "configs", cfg.ConfigDir, "config directory")
	flag.StringVar(&cfg.TuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	flag.StringVar(&cfg.CatalogPath, "abilities", "", "path to abilities.yaml (default: <configs>/abilities.yaml)")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "store backend: sqlite, postgres or memory")
	flag.StringVar(&cfg.DSN, "dsn", "", "postgres dsn (store=postgres)")
	flag.DurationVar(&cfg.Sweep, "sweep", cfg.Sweep, "deadline sweep interval")
	flag.StringVar(&cfg.SnapshotFormat, "snapshot_format", cfg.SnapshotFormat, "periodic snapshot frame: zstd or lz4")
	flag.BoolVar(&cfg.Dev, "dev", false, "development logging")
	flag.Parse()
	cfg.applyEnv(os.Getenv)

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	tune, err := loadTuning(cfg.tuningPath(), logger)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.catalogPath(), logger)
	if err != nil {
		return err
	}
	logger.Info("config loaded",
		zap.String("tuning", cfg.tuningPath()),
		zap.String("catalog_digest", cat.Digest),
		zap.Int("turn_seconds", tune.TurnSeconds),
	)

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	turnLog := persistlog.NewTurnLogger(cfg.DataDir)
	defer turnLog.Close()
	entityLog := persistlog.NewEntityLogWriter(cfg.DataDir)
	defer entityLog.Close()
	hub := ws.NewHub(logger.Named("ws"))

	res := resolver.New(s, cat, tune,
		resolver.WithLogger(logger.Named("resolver")),
		resolver.WithSinks(diskSink{turnLog, entityLog}, hub),
	)
	sched := scheduler.New(s, res, time.Duration(tune.TurnSeconds)*time.Second, logger.Named("scheduler"))
	snaps := &snapshotter{
		store: s,
		dir:   cfg.DataDir,
		every: int64(tune.SnapshotEveryTurns),
		ext:   cfg.snapshotExt(),
		log:   logger.Named("snapshot"),
		now:   time.Now,
	}
	sched.AfterResolve = snaps.AfterResolve

	srv, err := api.New(api.Deps{
		Store:     s,
		Orders:    orders.New(s, cat, tune, logger.Named("orders")),
		Scheduler: sched,
		Resolver:  res,
		Tuning:    tune,
		Log:       logger.Named("api"),
		Events:    hub.Handler(),
		Clients:   hub.Clients,
	})
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx, cfg.Sweep) })
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadTuning(path string, logger *zap.Logger) (tuning.Tuning, error) {
	t, err := tuning.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("tuning not found; using defaults", zap.String("path", path))
			return tuning.Defaults(), nil
		}
		return t, fmt.Errorf("load tuning: %w", err)
	}
	return t, nil
}

func loadCatalog(path string, logger *zap.Logger) (*catalogs.Catalog, error) {
	c, err := catalogs.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("ability catalog not found; using defaults", zap.String("path", path))
			return catalogs.Defaults(), nil
		}
		return nil, fmt.Errorf("load abilities: %w", err)
	}
	return c, nil
}

// diskSink mirrors turn events and entity log rows to JSONL files.
type diskSink struct {
	turns    *persistlog.TurnLogger
	entities *persistlog.EntityLogWriter
}

func (d diskSink) TurnCompleted(m protocol.TurnCompletedMsg) error { return d.turns.TurnCompleted(m) }
func (d diskSink) TurnFailed(m protocol.TurnFailedMsg) error       { return d.turns.TurnFailed(m) }
func (d diskSink) EntityLogs(rows []model.EntityLog) error         { return d.entities.EntityLogs(rows) }
