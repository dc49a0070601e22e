package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults_CoverEveryKind(t *testing.T) {
	c := Defaults()
	seen := map[AbilityKind]bool{}
	for _, d := range c.ByKey {
		seen[d.Kind] = true
	}
	for _, k := range Kinds {
		if !seen[k] {
			t.Fatalf("default catalog has no ability of kind %s", k)
		}
	}
	if c.Digest == "" {
		t.Fatalf("expected digest")
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "abilities.yaml")
	raw := []byte(`abilities:
  - key: pd
    kind: weapon
    target: enemy
    range: 3
    damage: 10
    tags: [point_defense]
  - key: fix
    kind: repair
    magnitude: 20
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pd, ok := c.Get("pd")
	if !ok || !pd.HasTag(TagPointDefense) || !pd.Kind.Offensive() {
		t.Fatalf("pd mismatch: %+v", pd)
	}
	fix, _ := c.Get("fix")
	if fix.Target != TargetSelf {
		t.Fatalf("default target should be self, got %q", fix.Target)
	}
}

func TestNew_RejectsUnknownKindAndDuplicates(t *testing.T) {
	if _, err := New([]AbilityDef{{Key: "x", Kind: "teleport"}}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
	if _, err := New([]AbilityDef{{Key: "x", Kind: KindHold}, {Key: "x", Kind: KindHold}}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
