package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/snapshot"
	"starlanes.ai/internal/persistence/store"
)

type config struct {
	Addr           string
	DataDir        string
	ConfigDir      string
	TuningPath     string
	CatalogPath    string
	Store          string
	DSN            string
	Sweep          time.Duration
	SnapshotFormat string
	Dev            bool
}

func defaultConfig() config {
	return config{
		Addr:           ":8080",
		DataDir:        "./data",
		ConfigDir:      "./configs",
		Store:          "sqlite",
		Sweep:          time.Second,
		SnapshotFormat: "zstd",
	}
}

// applyEnv lets SL_* variables override flags; .env is loaded first.
func (c *config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("SL_ADDR", &c.Addr)
	str("SL_DATA_DIR", &c.DataDir)
	str("SL_CONFIG_DIR", &c.ConfigDir)
	str("SL_TUNING", &c.TuningPath)
	str("SL_ABILITIES", &c.CatalogPath)
	str("SL_STORE", &c.Store)
	str("SL_DATABASE_URL", &c.DSN)
	str("SL_SNAPSHOT_FORMAT", &c.SnapshotFormat)
	if v := strings.TrimSpace(getenv("SL_SWEEP")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Sweep = d
		}
	}
	if v := strings.TrimSpace(getenv("SL_DEV")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Dev = b
		}
	}
}

func (c config) tuningPath() string {
	if c.TuningPath != "" {
		return c.TuningPath
	}
	return filepath.Join(c.ConfigDir, "tuning.yaml")
}

func (c config) catalogPath() string {
	if c.CatalogPath != "" {
		return c.CatalogPath
	}
	return filepath.Join(c.ConfigDir, "abilities.yaml")
}

func (c config) snapshotExt() string {
	if strings.EqualFold(c.SnapshotFormat, "lz4") {
		return snapshot.ExtLZ4
	}
	return snapshot.ExtZstd
}

func openStore(ctx context.Context, c config, logger *zap.Logger) (store.Store, error) {
	switch strings.ToLower(c.Store) {
	case "", "sqlite":
		path := filepath.Join(c.DataDir, "starlanes.sqlite")
		logger.Info("store", zap.String("backend", "sqlite"), zap.String("path", path))
		return store.OpenSQLite(path)
	case "postgres":
		if c.DSN == "" {
			return nil, fmt.Errorf("store=postgres needs -dsn or SL_DATABASE_URL")
		}
		logger.Info("store", zap.String("backend", "postgres"))
		return store.OpenPostgres(ctx, c.DSN)
	case "memory":
		logger.Warn("store", zap.String("backend", "memory"))
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.Store)
	}
}
