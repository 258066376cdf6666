// Package userintent collects context signals that indicate a process is
// part of an active, human-driven workflow rather than an abandoned or
// zombie one: foreground TTY ownership, terminal multiplexer membership,
// SSH client ancestry, login-shell ancestry, and "cwd inside a VCS repo".
// Every signal feeds the evidence ledger as a Bernoulli feature.
package userintent

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joyshmitz/process-triage-sub001/inference"
	"github.com/joyshmitz/process-triage-sub001/model"
)

// maxAncestorDepth bounds the PPID walk for shell/SSH ancestry detection.
const maxAncestorDepth = 10

var shellNames = map[string]bool{
	"bash": true, "sh": true, "zsh": true, "fish": true, "dash": true,
	"tcsh": true, "csh": true, "ksh": true, "ash": true,
}

// AncestorProvider looks up a single process's observation by PID, used to
// walk the PPID chain for shell/SSH ancestry detection. Unlike the probe
// that produces ProcessObservation in the first place, this never
// enumerates every PID on the system — it resolves one PID at a time.
type AncestorProvider interface {
	Observation(pid uint32) (model.ProcessObservation, bool)
}

// NoopProvider is an AncestorProvider that never finds an ancestor. Use it
// where ancestry lookups are unavailable or in tests that only exercise the
// non-ancestry signals.
type NoopProvider struct{}

// Observation always reports not-found.
func (NoopProvider) Observation(uint32) (model.ProcessObservation, bool) {
	return model.ProcessObservation{}, false
}

// MapProvider is a fixture AncestorProvider backed by a fixed PID map, for
// tests that need to exercise the ancestor walk deterministically.
type MapProvider map[uint32]model.ProcessObservation

// Observation looks up pid in the map.
func (m MapProvider) Observation(pid uint32) (model.ProcessObservation, bool) {
	obs, ok := m[pid]
	return obs, ok
}

// Config enables or disables individual intent signals. All are on by
// default; none require the opt-in treatment the upstream collector gives
// its editor-focus signal, since that signal was dropped here (no
// window-manager/editor-socket concern fits this repo's scope).
type Config struct {
	EnableTTY        bool
	EnableMux        bool
	EnableSSH        bool
	EnableShellLogin bool
	EnableRepoCwd    bool
}

// DefaultConfig enables every signal.
func DefaultConfig() Config {
	return Config{
		EnableTTY:        true,
		EnableMux:        true,
		EnableSSH:        true,
		EnableShellLogin: true,
		EnableRepoCwd:    true,
	}
}

// Features is the five-signal user-intent context vector for one process
// observation, matching the ledger's intent.* evidence IDs.
type Features struct {
	TTYForeground bool // intent.tty.fg
	MuxMember     bool // intent.mux.member
	SSHClient     bool // intent.ssh.client
	ShellLogin    bool // intent.shell.login
	RepoCwd       bool // intent.repo.cwd
}

// Collect computes the five user-intent features for obs, walking the
// ancestor chain through provider for the SSH and shell-login signals.
func Collect(obs model.ProcessObservation, provider AncestorProvider, cfg Config) Features {
	var f Features
	if cfg.EnableTTY {
		f.TTYForeground = obs.HasControllingTTY() && obs.IsForeground()
	}
	if cfg.EnableMux {
		f.MuxMember = detectMuxMembership(obs)
	}
	if cfg.EnableSSH {
		f.SSHClient = detectSSHAncestry(obs, provider)
	}
	if cfg.EnableShellLogin {
		f.ShellLogin = detectShellLoginAncestry(obs, provider)
	}
	if cfg.EnableRepoCwd {
		f.RepoCwd = detectRepoCwd(obs.Cwd)
	}
	return f
}

func detectMuxMembership(obs model.ProcessObservation) bool {
	if obs.EnvironSnapshot == nil {
		return false
	}
	if _, ok := obs.EnvironSnapshot["TMUX"]; ok {
		return true
	}
	_, ok := obs.EnvironSnapshot["STY"]
	return ok
}

func detectSSHAncestry(obs model.ProcessObservation, provider AncestorProvider) bool {
	for _, key := range []string{"SSH_CONNECTION", "SSH_CLIENT", "SSH_TTY"} {
		if _, ok := obs.EnvironSnapshot[key]; ok {
			return true
		}
	}
	return walkAncestors(obs, provider, func(a model.ProcessObservation) bool {
		return strings.ToLower(a.Comm) == "sshd"
	})
}

func detectShellLoginAncestry(obs model.ProcessObservation, provider AncestorProvider) bool {
	if shellNames[strings.ToLower(obs.Comm)] {
		return true
	}
	return walkAncestors(obs, provider, func(a model.ProcessObservation) bool {
		return shellNames[strings.ToLower(a.Comm)]
	})
}

func walkAncestors(obs model.ProcessObservation, provider AncestorProvider, match func(model.ProcessObservation) bool) bool {
	if provider == nil {
		return false
	}
	pid := obs.PPID
	for depth := 0; depth < maxAncestorDepth && pid != 0; depth++ {
		ancestor, ok := provider.Observation(pid)
		if !ok {
			return false
		}
		if match(ancestor) {
			return true
		}
		if ancestor.PPID == pid {
			return false
		}
		pid = ancestor.PPID
	}
	return false
}

// detectRepoCwd walks up from cwd looking for a .git directory.
func detectRepoCwd(cwd string) bool {
	if cwd == "" {
		return false
	}
	dir := cwd
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return false
}

// evidenceOrder pairs each Features field with the model.BernoulliFeature
// the ledger tracks it under.
var evidenceOrder = []struct {
	feature model.BernoulliFeature
	get     func(Features) bool
}{
	{model.FeatureIntentTTYForeground, func(f Features) bool { return f.TTYForeground }},
	{model.FeatureIntentMuxMember, func(f Features) bool { return f.MuxMember }},
	{model.FeatureIntentSSHClient, func(f Features) bool { return f.SSHClient }},
	{model.FeatureIntentShellLogin, func(f Features) bool { return f.ShellLogin }},
	{model.FeatureIntentRepoCwd, func(f Features) bool { return f.RepoCwd }},
}

// FoldIntoLedger feeds every collected intent feature into the ledger as a
// Bernoulli evidence update.
func FoldIntoLedger(features Features, ledger *inference.Ledger, priors model.PriorParameters) {
	for _, e := range evidenceOrder {
		ledger.AddBernoulli(e.feature, e.get(features), priors)
	}
}
