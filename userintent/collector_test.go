package userintent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/inference"
	"github.com/joyshmitz/process-triage-sub001/model"
)

func newTestLedger(priors model.PriorParameters) *inference.Ledger {
	return inference.NewLedger(priors)
}

func TestCollect_ForegroundTTYDetected(t *testing.T) {
	obs := model.ProcessObservation{
		Identity: model.ProcessIdentity{PID: 100},
		TTYNr:    1,
		PGrp:     100,
		TPGID:    100,
	}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if !f.TTYForeground {
		t.Fatalf("expected TTYForeground true")
	}
}

func TestCollect_BackgroundTTYNotForeground(t *testing.T) {
	obs := model.ProcessObservation{
		Identity: model.ProcessIdentity{PID: 100},
		TTYNr:    1,
		PGrp:     100,
		TPGID:    200,
	}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if f.TTYForeground {
		t.Fatalf("expected TTYForeground false when not in foreground group")
	}
}

func TestCollect_TmuxMembershipViaEnviron(t *testing.T) {
	obs := model.ProcessObservation{
		EnvironSnapshot: map[string]string{"TMUX": "/tmp/tmux-1000/default,1234,0"},
	}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if !f.MuxMember {
		t.Fatalf("expected MuxMember true when TMUX is set")
	}
}

func TestCollect_ScreenMembershipViaEnviron(t *testing.T) {
	obs := model.ProcessObservation{
		EnvironSnapshot: map[string]string{"STY": "12345.pts-0.hostname"},
	}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if !f.MuxMember {
		t.Fatalf("expected MuxMember true when STY is set")
	}
}

func TestCollect_SSHDetectedViaEnviron(t *testing.T) {
	obs := model.ProcessObservation{
		EnvironSnapshot: map[string]string{"SSH_CONNECTION": "1.2.3.4 1 5.6.7.8 22"},
	}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if !f.SSHClient {
		t.Fatalf("expected SSHClient true when SSH_CONNECTION is set")
	}
}

func TestCollect_SSHDetectedViaAncestry(t *testing.T) {
	obs := model.ProcessObservation{PPID: 10}
	provider := MapProvider{
		10: {Identity: model.ProcessIdentity{PID: 10}, Comm: "sshd", PPID: 1},
	}
	f := Collect(obs, provider, DefaultConfig())
	if !f.SSHClient {
		t.Fatalf("expected SSHClient true via sshd ancestor")
	}
}

func TestCollect_ShellLoginViaOwnComm(t *testing.T) {
	obs := model.ProcessObservation{Comm: "bash"}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if !f.ShellLogin {
		t.Fatalf("expected ShellLogin true when comm is a shell")
	}
}

func TestCollect_ShellLoginViaAncestry(t *testing.T) {
	obs := model.ProcessObservation{Comm: "python3", PPID: 20}
	provider := MapProvider{
		20: {Identity: model.ProcessIdentity{PID: 20}, Comm: "zsh", PPID: 1},
	}
	f := Collect(obs, provider, DefaultConfig())
	if !f.ShellLogin {
		t.Fatalf("expected ShellLogin true via zsh ancestor")
	}
}

func TestCollect_NoAncestorStopsWalk(t *testing.T) {
	obs := model.ProcessObservation{Comm: "python3", PPID: 99}
	f := Collect(obs, NoopProvider{}, DefaultConfig())
	if f.ShellLogin {
		t.Fatalf("expected ShellLogin false when ancestor is unresolvable")
	}
}

func TestCollect_DisabledSignalsAreFalse(t *testing.T) {
	obs := model.ProcessObservation{
		TTYNr: 1, PGrp: 1, TPGID: 1,
		EnvironSnapshot: map[string]string{"TMUX": "x"},
	}
	cfg := Config{} // everything disabled
	f := Collect(obs, NoopProvider{}, cfg)
	if f.TTYForeground || f.MuxMember || f.SSHClient || f.ShellLogin || f.RepoCwd {
		t.Fatalf("expected all features false when disabled, got %+v", f)
	}
}

func TestDetectRepoCwd_FindsGitInParent(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	sub := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !detectRepoCwd(sub) {
		t.Fatalf("expected repo detected from nested cwd")
	}
}

func TestDetectRepoCwd_NoGitAnywhere(t *testing.T) {
	if detectRepoCwd(t.TempDir()) {
		t.Fatalf("expected no repo detected in a bare temp dir")
	}
}

func TestFoldIntoLedger_FlatPriorsLeavePosteriorUnchanged(t *testing.T) {
	classes := make(map[string]model.ClassPriorParameters)
	for _, c := range model.AllClasses() {
		classes[c.String()] = model.ClassPriorParameters{
			PriorProbability: 0.25,
			Beta:             map[string]model.BetaParams{},
		}
	}
	priors := model.PriorParameters{Classes: classes}

	ledgerBefore := newTestLedger(priors)
	before := ledgerBefore.Posterior()

	ledgerAfter := newTestLedger(priors)
	FoldIntoLedger(Features{TTYForeground: true, SSHClient: true}, ledgerAfter, priors)
	after := ledgerAfter.Posterior()

	// Flat priors with zero-info features should not move the posterior.
	for _, c := range model.AllClasses() {
		if diff := before[c] - after[c]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("class %s posterior changed from %v to %v with flat per-class Beta priors", c, before[c], after[c])
		}
	}
}
