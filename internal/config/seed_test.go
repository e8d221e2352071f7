package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestDefaultSeedConfigIsValid(t *testing.T) {
	cfg := DefaultSeedConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default seed config invalid: %v", err)
	}
	ids, err := cfg.WellKnownIDs()
	if err != nil {
		t.Fatalf("WellKnownIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 well-known ids, got %d", len(ids))
	}
	if ids[0].String() != "549b8034-909d-4f25-abed-48a9fdb24276" {
		t.Fatalf("unexpected first id %s", ids[0])
	}
}

func TestLoadSeedConfigFromPath(t *testing.T) {
	path := writeSeedFile(t, `
settings:
  FeatureA: "on"
people:
  - 549b8034-909d-4f25-abed-48a9fdb24276
  - 549B8034-909D-4F25-ABED-48A9FDB24276
`)
	cfg, err := LoadSeedConfigFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Label != DefaultSeedLabel {
		t.Fatalf("label = %q, want default", cfg.Label)
	}
	if cfg.Settings["FeatureA"] != "on" {
		t.Fatalf("settings = %v", cfg.Settings)
	}
	ids, _ := cfg.WellKnownIDs()
	if len(ids) != 1 {
		t.Fatalf("duplicates should collapse, got %d ids", len(ids))
	}
}

func TestLoadSeedConfigFromPath_RejectsBadID(t *testing.T) {
	path := writeSeedFile(t, "label: x\npeople: [not-a-uuid]\n")
	if _, err := LoadSeedConfigFromPath(path); err == nil {
		t.Fatal("expected error for invalid person id")
	}
}

func TestLoadSeedConfigFromPath_RejectsMalformedYAML(t *testing.T) {
	path := writeSeedFile(t, "settings: [\n")
	if _, err := LoadSeedConfigFromPath(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadSeedConfigOrDefault(t *testing.T) {
	cfg, err := LoadSeedConfigOrDefault("")
	if err != nil || cfg.Label != DefaultSeedLabel {
		t.Fatalf("expected defaults, got %+v, %v", cfg, err)
	}
	if _, err := LoadSeedConfigOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}
