package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"starlanes.ai/internal/persistence/snapshot"
	"starlanes.ai/internal/persistence/store"
	"starlanes.ai/internal/sim/model"
	"starlanes.ai/internal/sim/resolver"
	"starlanes.ai/internal/sim/tuning"
)

func TestApplyEnvOverridesFlags(t *testing.T) {
	cfg := defaultConfig()
	cfg.Addr = ":9000"
	env := map[string]string{
		"SL_ADDR":            ":7000",
		"SL_STORE":           "memory",
		"SL_SWEEP":           "250ms",
		"SL_SNAPSHOT_FORMAT": "lz4",
		"SL_DEV":             "true",
		"SL_CONFIG_DIR":      "/etc/starlanes",
	}
	cfg.applyEnv(func(k string) string { return env[k] })
	if cfg.Addr != ":7000" || cfg.Store != "memory" || cfg.Sweep != 250*time.Millisecond || !cfg.Dev {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.snapshotExt() != snapshot.ExtLZ4 {
		t.Fatalf("ext: %s", cfg.snapshotExt())
	}
	if cfg.tuningPath() != filepath.Join("/etc/starlanes", "tuning.yaml") {
		t.Fatalf("tuning path: %s", cfg.tuningPath())
	}

	bad := defaultConfig()
	bad.applyEnv(func(k string) string {
		if k == "SL_SWEEP" {
			return "soon"
		}
		return ""
	})
	if bad.Sweep != time.Second {
		t.Fatalf("invalid duration should be ignored: %v", bad.Sweep)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.DataDir = t.TempDir()

	s, err := openStore(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = s.Close()
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "starlanes.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}

	cfg.Store = "postgres"
	if _, err := openStore(ctx, cfg, zap.NewNop()); err == nil {
		t.Fatalf("postgres without dsn should fail")
	}
	cfg.Store = "etcd"
	if _, err := openStore(ctx, cfg, zap.NewNop()); err == nil {
		t.Fatalf("unknown backend should fail")
	}
}

func TestLoadTuning_MissingFileUsesDefaults(t *testing.T) {
	tune, err := loadTuning(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	if err != nil {
		t.Fatalf("loadTuning: %v", err)
	}
	if tune.TurnSeconds != tuning.Defaults().TurnSeconds {
		t.Fatalf("expected defaults, got %+v", tune)
	}

	bad := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(bad, []byte("planner:\n  impulse_speed: -1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadTuning(bad, zap.NewNop()); err == nil {
		t.Fatalf("invalid tuning should fail")
	}
}

func TestSnapshotterWritesEveryNthTurn(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	err := store.Update(ctx, s, "g", func(tx *store.Tx) error {
		if err := tx.Turns().Put(ctx, model.Turn{Game: "g", Number: 4, Status: model.TurnWaiting}); err != nil {
			return err
		}
		return tx.Entities().Put(ctx, model.Entity{ID: "e1", Kind: model.KindShip, Owner: "p1"})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	dir := t.TempDir()
	snaps := &snapshotter{store: s, dir: dir, every: 2, ext: snapshot.ExtZstd, log: zap.NewNop(), now: time.Now}

	snaps.AfterResolve(ctx, resolver.Result{Game: "g", Turn: 2, NextTurn: 3})
	if _, err := os.Stat(snapshot.Path(dir, "g", 3, snapshot.ExtZstd)); !os.IsNotExist(err) {
		t.Fatalf("turn 3 should not be snapshotted: %v", err)
	}
	snaps.AfterResolve(ctx, resolver.Result{Game: "g", Turn: 3, NextTurn: 4})
	got, err := snapshot.ReadSnapshot(snapshot.Path(dir, "g", 4, snapshot.ExtZstd))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Game != "g" || len(got.Entities) != 1 {
		t.Fatalf("snapshot: %+v", got.Header)
	}
}
