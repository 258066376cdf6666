package precheck

import (
	"testing"
	"time"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func newTestLiveProvider(prober Prober) *LiveProvider {
	p := NewLiveProvider(model.Guardrails{}, model.DataLossGates{}, prober)
	p.sleep = func(time.Duration) {} // no real sleeping in tests
	return p
}

func TestCheckDataLossGate_BlocksOnDeletedCwd(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	p.gates.BlockOnDeletedCwd = true
	result := p.CheckDataLossGate(Input{Observation: model.ProcessObservation{Cwd: "/home/alice/work (deleted)"}})
	if result.Passed {
		t.Fatalf("expected block on deleted cwd")
	}
}

func TestCheckDataLossGate_BlocksOnTooManyWriteFDs(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	p.gates.BlockIfOpenWriteFDs = true
	p.gates.MaxOpenWriteFDs = 1
	obs := model.ProcessObservation{FDs: []model.FDInfo{
		{FD: 3, AccessMode: 1}, // write
		{FD: 4, AccessMode: 2}, // read-write
		{FD: 5, AccessMode: 0}, // read-only, doesn't count
	}}
	result := p.CheckDataLossGate(Input{Observation: obs})
	if result.Passed {
		t.Fatalf("expected block: 2 write fds exceeds max of 1")
	}
}

func TestCheckDataLossGate_PassesUnderWriteFDLimit(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	p.gates.BlockIfOpenWriteFDs = true
	p.gates.MaxOpenWriteFDs = 5
	obs := model.ProcessObservation{FDs: []model.FDInfo{{FD: 3, AccessMode: 1}}}
	result := p.CheckDataLossGate(Input{Observation: obs})
	if !result.Passed {
		t.Fatalf("expected pass under the fd limit, got %+v", result)
	}
}

func TestCheckDataLossGate_RecentIODetectedViaResample(t *testing.T) {
	pid := uint32(7)
	prober := fakeProber{
		pid: {Identity: model.ProcessIdentity{PID: pid}, IOCounters: model.IOCounters{WriteBytes: 500}},
	}
	p := newTestLiveProvider(prober)
	p.gates.RecentIOWindowMS = 50

	obs := model.ProcessObservation{Identity: model.ProcessIdentity{PID: pid}, IOCounters: model.IOCounters{WriteBytes: 100}}
	result := p.CheckDataLossGate(Input{Observation: obs})
	if result.Passed {
		t.Fatalf("expected block: write bytes advanced from 100 to 500 between samples")
	}
}

func TestCheckDataLossGate_NoRecentIOWhenCountersUnchanged(t *testing.T) {
	pid := uint32(7)
	prober := fakeProber{
		pid: {Identity: model.ProcessIdentity{PID: pid}, IOCounters: model.IOCounters{WriteBytes: 100}},
	}
	p := newTestLiveProvider(prober)
	p.gates.RecentIOWindowMS = 50

	obs := model.ProcessObservation{Identity: model.ProcessIdentity{PID: pid}, IOCounters: model.IOCounters{WriteBytes: 100}}
	result := p.CheckDataLossGate(Input{Observation: obs})
	if !result.Passed {
		t.Fatalf("expected pass when io counters did not advance, got %+v", result)
	}
}

func TestCheckDataLossGate_SkipsIOProbeWhenWindowUnconfigured(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	obs := model.ProcessObservation{Identity: model.ProcessIdentity{PID: 7}}
	result := p.CheckDataLossGate(Input{Observation: obs})
	if !result.Passed {
		t.Fatalf("expected pass when RecentIOWindowMS is unset")
	}
}

func TestCheckProcessState_BlocksZombie(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	result := p.CheckProcessState(Input{Observation: model.ProcessObservation{State: 'Z'}})
	if result.Passed {
		t.Fatalf("expected zombie state to block")
	}
}

func TestCheckProcessState_BlocksUninterruptibleSleep(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	result := p.CheckProcessState(Input{Observation: model.ProcessObservation{State: 'D'}})
	if result.Passed {
		t.Fatalf("expected D state to block")
	}
}

func TestCheckProcessState_PassesUnreadableState(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	result := p.CheckProcessState(Input{Observation: model.ProcessObservation{State: 0}})
	if !result.Passed {
		t.Fatalf("expected unreadable (zero) state to pass")
	}
}

func TestCheckProcessState_PassesRunning(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	result := p.CheckProcessState(Input{Observation: model.ProcessObservation{State: 'R'}})
	if !result.Passed {
		t.Fatalf("expected running state to pass")
	}
}

func TestCheckSupervisor_PassesWithRemedyNote(t *testing.T) {
	p := newTestLiveProvider(fakeProber{})
	result := p.CheckSupervisor(Input{Observation: model.ProcessObservation{
		CgroupLines: []string{"1:name=systemd:/system.slice/nginx.service"},
	}})
	if !result.Passed || result.Reason == "" {
		t.Fatalf("expected pass with a populated remedy reason, got %+v", result)
	}
}
