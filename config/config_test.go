package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func TestLoadCore_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := LoadCore()
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	if cfg.MetricsAddr == "" || cfg.AuditDir == "" || cfg.HostID == "" {
		t.Fatalf("expected populated defaults, got %+v", cfg)
	}
}

func TestSaveCoreThenLoadCore_RoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := DefaultCoreConfig(DataDir())
	cfg.MetricsAddr = "127.0.0.1:1234"
	cfg.LogLevel = "debug"

	if err := SaveCore(cfg); err != nil {
		t.Fatalf("SaveCore: %v", err)
	}
	got, err := LoadCore()
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	if got.MetricsAddr != cfg.MetricsAddr || got.LogLevel != cfg.LogLevel || got.HostID != cfg.HostID {
		t.Fatalf("got %+v, want %+v", got, cfg)
	}
}

func validPolicy() model.Policy {
	p := model.Policy{SchemaVersion: model.PolicySchemaVersion}
	p.Priors.Classes = map[string]model.ClassPriorParameters{}
	for _, c := range model.AllClasses() {
		p.Priors.Classes[c.String()] = model.ClassPriorParameters{PriorProbability: 0.25}
	}
	return p
}

func TestSavePolicyThenLoadPolicy_RoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	p := validPolicy()
	p.Guardrails.MaxKillsPerRun = 3

	if err := SavePolicy(p); err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}
	got, err := LoadPolicy()
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if got.Guardrails.MaxKillsPerRun != 3 {
		t.Fatalf("got MaxKillsPerRun=%d, want 3", got.Guardrails.MaxKillsPerRun)
	}
}

func TestLoadPolicy_RejectsSchemaVersionMismatch(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	p := validPolicy()
	p.SchemaVersion = "0.9.0"
	path := PolicyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, _ := json.Marshal(p)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write raw policy: %v", err)
	}

	if _, err := LoadPolicy(); err == nil {
		t.Fatal("expected a schema_version mismatch error")
	}
}
