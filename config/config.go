// Package config loads and saves the two on-disk configuration documents a
// run needs: the decision Policy (§3, schema-versioned, a hard error on
// mismatch) and a small CoreConfig naming where the audit log, pattern
// library, and decision store live plus the metrics listen address.
// Path/Load/Save are ported from ftahirops-xtop/config/config.go's
// XDG-aware pattern, split into two documents and retargeted to PT's own
// schema.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/joyshmitz/process-triage-sub001/model"
)

const appDirName = "process-triage"

// CoreConfig holds the runtime paths and integrations a triage run needs
// beyond the decision Policy itself.
type CoreConfig struct {
	HostID            string `json:"host_id"`
	AuditDir          string `json:"audit_dir"`
	AuditMaxSizeBytes int64  `json:"audit_max_size_bytes"`
	PatternDir        string `json:"pattern_dir"`
	StorePath         string `json:"store_path"`
	MetricsEnabled    bool   `json:"metrics_enabled"`
	MetricsAddr       string `json:"metrics_addr"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"` // "json" or "console"
}

// DefaultCoreConfig returns a CoreConfig rooted at baseDir (the XDG data
// directory) with a freshly generated host id.
func DefaultCoreConfig(baseDir string) CoreConfig {
	return CoreConfig{
		HostID:            uuid.NewString(),
		AuditDir:          filepath.Join(baseDir, "audit"),
		AuditMaxSizeBytes: 64 * 1024 * 1024,
		PatternDir:        filepath.Join(baseDir, "patterns"),
		StorePath:         filepath.Join(baseDir, "decision.db"),
		MetricsEnabled:    false,
		MetricsAddr:       "127.0.0.1:9090",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// xdgDir resolves an XDG base directory from envVar, falling back to
// filepath.Join(home, fallback). Returns "" if no home directory can be
// determined — callers must refuse to fall back to a shared temp
// directory.
func xdgDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, fallback, appDirName)
}

// ConfigPath returns the CoreConfig file path, honouring XDG_CONFIG_HOME.
func ConfigPath() string {
	dir := xdgDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "core.json")
}

// PolicyPath returns the Policy file path, honouring XDG_CONFIG_HOME.
func PolicyPath() string {
	dir := xdgDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "policy.json")
}

// DataDir returns the default data directory (audit/pattern/store roots
// live under here), honouring XDG_DATA_HOME.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local/share")
}

// LoadCore loads CoreConfig from ConfigPath(), returning
// DefaultCoreConfig(DataDir()) if the file does not exist.
func LoadCore() (CoreConfig, error) {
	def := DefaultCoreConfig(DataDir())
	path := ConfigPath()
	if path == "" {
		return def, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		return CoreConfig{}, fmt.Errorf("config: read core config: %w", err)
	}
	cfg := def
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CoreConfig{}, fmt.Errorf("config: parse core config: %w", err)
	}
	return cfg, nil
}

// SaveCore writes cfg to ConfigPath(), creating the parent directory.
func SaveCore(cfg CoreConfig) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("config: cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadPolicy loads a Policy from PolicyPath(). Unlike CoreConfig, a missing
// or schema-mismatched policy is a hard error (§6): there is no sensible
// default decision policy to fall back to.
func LoadPolicy() (model.Policy, error) {
	path := PolicyPath()
	if path == "" {
		return model.Policy{}, fmt.Errorf("config: cannot determine config directory")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Policy{}, fmt.Errorf("config: read policy: %w", err)
	}
	var p model.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Policy{}, fmt.Errorf("config: parse policy: %w", err)
	}
	if p.SchemaVersion != model.PolicySchemaVersion {
		return model.Policy{}, fmt.Errorf("config: policy schema_version %q does not match %q", p.SchemaVersion, model.PolicySchemaVersion)
	}
	return p, nil
}

// SavePolicy writes p to PolicyPath(), stamping SchemaVersion if unset.
func SavePolicy(p model.Policy) error {
	path := PolicyPath()
	if path == "" {
		return fmt.Errorf("config: cannot determine config directory")
	}
	if p.SchemaVersion == "" {
		p.SchemaVersion = model.PolicySchemaVersion
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
