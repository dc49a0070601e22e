package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte("turn_seconds: 30\nmovement:\n  warp_prep_turns: 3\nlanes:\n  slots_per_turn: 4\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tune.TurnSeconds != 30 || tune.Movement.WarpPrepTurns != 3 || tune.Lanes.SlotsPerTurn != 4 {
		t.Fatalf("overrides not applied: %+v", tune)
	}
	if tune.Lanes.CUPerSlot != Defaults().Lanes.CUPerSlot {
		t.Fatalf("untouched value should keep default, got %v", tune.Lanes.CUPerSlot)
	}
	if tune.Combat.SizePenaltyBase != 0.4 {
		t.Fatalf("combat defaults lost: %+v", tune.Combat)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("combat:\n  evasion_cap: 1.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for evasion_cap")
	}
	if err := os.WriteFile(path, []byte("lanes:\n  reference_distance: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for reference_distance")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
