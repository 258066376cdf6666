package decision

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decision.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_LoadAlphaInvesting_DefaultsToW0WhenUnset(t *testing.T) {
	s := openTestStore(t)
	state, err := s.LoadAlphaInvesting(DefaultScope, 1.0)
	if err != nil {
		t.Fatalf("LoadAlphaInvesting: %v", err)
	}
	if state.Wealth != 1.0 {
		t.Fatalf("wealth = %v, want 1.0", state.Wealth)
	}
}

func TestStore_SaveAndLoadAlphaInvesting_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	state := AlphaInvestingState{Wealth: 0.42, AlphaSpent: 0.1, AlphaEarned: 0.05}
	if err := s.SaveAlphaInvesting(DefaultScope, state); err != nil {
		t.Fatalf("SaveAlphaInvesting: %v", err)
	}
	got, err := s.LoadAlphaInvesting(DefaultScope, 1.0)
	if err != nil {
		t.Fatalf("LoadAlphaInvesting: %v", err)
	}
	if math.Abs(got.Wealth-0.42) > 1e-9 {
		t.Fatalf("wealth = %v, want 0.42", got.Wealth)
	}
}

func TestStore_SaveAndLoadRobotCounters_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveRobotCounters(DefaultScope, 3, 256.5); err != nil {
		t.Fatalf("SaveRobotCounters: %v", err)
	}
	snap, err := s.LoadRobotCounters(DefaultScope)
	if err != nil {
		t.Fatalf("LoadRobotCounters: %v", err)
	}
	if snap.KillCount != 3 {
		t.Fatalf("kill count = %d, want 3", snap.KillCount)
	}
	if math.Abs(snap.TotalBlastMB-256.5) > 1e-9 {
		t.Fatalf("total blast = %v, want 256.5", snap.TotalBlastMB)
	}
}

func TestStore_RestoreConstraintChecker_SeedsFromPersistedCounters(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveRobotCounters(DefaultScope, 2, 50); err != nil {
		t.Fatalf("SaveRobotCounters: %v", err)
	}
	rc := MergeRobotMode(basePolicy(), CLIOverrides{})
	checker, err := s.RestoreConstraintChecker(DefaultScope, rc)
	if err != nil {
		t.Fatalf("RestoreConstraintChecker: %v", err)
	}
	kills, blast := checker.Snapshot()
	if kills != 2 {
		t.Fatalf("restored kill count = %d, want 2", kills)
	}
	if math.Abs(blast-50) > 1e-9 {
		t.Fatalf("restored blast = %v, want 50", blast)
	}

	reason := checker.Check(CandidateEnvelope{Posterior: 0.99, Action: model.ActionKill})
	if reason != BlockKillBudgetExhausted {
		t.Fatalf("reason = %v, want BlockKillBudgetExhausted (restored kills=2 reaches max=%d)", reason, rc.MaxKills)
	}
}
