package precheck

import (
	"context"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// fakeProber is a map-backed Prober fixture for deterministic tests.
type fakeProber map[uint32]model.ProcessObservation

func (f fakeProber) Reprobe(pid uint32) (model.ProcessObservation, bool) {
	obs, ok := f[pid]
	return obs, ok
}

func TestRunChain_AllPassWithNoopProvider(t *testing.T) {
	prober := fakeProber{
		1: {Identity: model.ProcessIdentity{PID: 1}, State: 'R'},
	}
	results := RunChain(
		[]model.PreCheck{model.CheckNotProtected, model.CheckDataLossGate, model.CheckVerifyProcessState},
		model.ProcessIdentity{PID: 1}, "", model.ProcessIdentity{PID: 999}, 999,
		prober, NoopProvider{},
	)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !AllPassed(results) {
		t.Fatalf("expected all checks to pass, got %+v", results)
	}
}

func TestRunChain_SkipsVerifyIdentity(t *testing.T) {
	prober := fakeProber{1: {Identity: model.ProcessIdentity{PID: 1}}}
	results := RunChain(
		[]model.PreCheck{model.CheckVerifyIdentity, model.CheckNotProtected},
		model.ProcessIdentity{PID: 1}, "", model.ProcessIdentity{}, 0,
		prober, NoopProvider{},
	)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (VerifyIdentity is not this package's job)", len(results))
	}
	if results[0].Check != model.CheckNotProtected {
		t.Fatalf("got check %v, want CheckNotProtected", results[0].Check)
	}
}

func TestRunChain_ProcessGoneFailsEveryRequestedCheck(t *testing.T) {
	results := RunChain(
		[]model.PreCheck{model.CheckNotProtected, model.CheckSupervisor},
		model.ProcessIdentity{PID: 404}, "", model.ProcessIdentity{}, 0,
		fakeProber{}, NoopProvider{},
	)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if AllPassed(results) {
		t.Fatalf("expected failures when the process can no longer be found")
	}
}

func TestRunChain_PassesParentCommToSupervisorCheck(t *testing.T) {
	prober := fakeProber{
		1: {Identity: model.ProcessIdentity{PID: 1}, PPID: 2},
		2: {Identity: model.ProcessIdentity{PID: 2}, Comm: "supervisord"},
	}
	var captured Input
	spy := spyProvider{onSupervisor: func(in Input) model.PreCheckResult {
		captured = in
		return model.PreCheckResult{Check: model.CheckSupervisor, Passed: true}
	}}
	RunChain([]model.PreCheck{model.CheckSupervisor}, model.ProcessIdentity{PID: 1}, "", model.ProcessIdentity{}, 0, prober, spy)
	if captured.ParentComm != "supervisord" {
		t.Fatalf("ParentComm = %q, want supervisord", captured.ParentComm)
	}
}

func TestRunChainsConcurrently_CoversEveryCandidate(t *testing.T) {
	prober := fakeProber{
		1: {Identity: model.ProcessIdentity{PID: 1}},
		2: {Identity: model.ProcessIdentity{PID: 2}},
	}
	candidates := []Candidate{
		{Identity: model.ProcessIdentity{PID: 1}, Checks: []model.PreCheck{model.CheckNotProtected}},
		{Identity: model.ProcessIdentity{PID: 2}, Checks: []model.PreCheck{model.CheckNotProtected}},
	}
	out, err := RunChainsConcurrently(context.Background(), candidates, model.ProcessIdentity{}, 0, prober, NoopProvider{}, 2)
	if err != nil {
		t.Fatalf("RunChainsConcurrently: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d result sets, want 2", len(out))
	}
	for _, pid := range []uint32{1, 2} {
		if !AllPassed(out[pid]) {
			t.Fatalf("pid %d: expected pass, got %+v", pid, out[pid])
		}
	}
}

// spyProvider wraps NoopProvider, overriding CheckSupervisor to capture its
// Input for assertions.
type spyProvider struct {
	NoopProvider
	onSupervisor func(Input) model.PreCheckResult
}

func (s spyProvider) CheckSupervisor(in Input) model.PreCheckResult {
	return s.onSupervisor(in)
}
