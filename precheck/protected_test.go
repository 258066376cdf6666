package precheck

import (
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func TestProtectedMatcher_PID(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedPIDs: []uint32{42}})
	blocked, reason := m.Matches(model.ProcessObservation{Identity: model.ProcessIdentity{PID: 42}}, "")
	if !blocked || reason == "" {
		t.Fatalf("expected pid 42 to be protected")
	}
}

func TestProtectedMatcher_PPID(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedPPIDs: []uint32{1}})
	blocked, _ := m.Matches(model.ProcessObservation{PPID: 1}, "")
	if !blocked {
		t.Fatalf("expected ppid 1 to be protected")
	}
}

func TestProtectedMatcher_UserCaseInsensitive(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedUsers: []string{"Root"}})
	blocked, _ := m.Matches(model.ProcessObservation{User: "root"}, "")
	if !blocked {
		t.Fatalf("expected case-insensitive user match")
	}
}

func TestProtectedMatcher_Category(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedCategories: []string{"database"}})
	blocked, _ := m.Matches(model.ProcessObservation{}, "database")
	if !blocked {
		t.Fatalf("expected category match")
	}
}

func TestProtectedMatcher_CommandPattern(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedPatterns: []string{`postgres`}})
	blocked, reason := m.Matches(model.ProcessObservation{Comm: "postgres"}, "")
	if !blocked || reason == "" {
		t.Fatalf("expected comm pattern match")
	}
}

func TestProtectedMatcher_CmdlinePattern(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedPatterns: []string{`--data-dir=/var/lib/pg`}})
	blocked, _ := m.Matches(model.ProcessObservation{Cmdline: "postgres --data-dir=/var/lib/pg"}, "")
	if !blocked {
		t.Fatalf("expected cmdline pattern match")
	}
}

func TestProtectedMatcher_MalformedPatternIsDropped(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedPatterns: []string{"(unterminated"}})
	if len(m.patterns) != 0 {
		t.Fatalf("expected malformed regex to be dropped, got %d compiled patterns", len(m.patterns))
	}
}

func TestProtectedMatcher_NoMatch(t *testing.T) {
	m := NewProtectedMatcher(model.Guardrails{ProtectedUsers: []string{"root"}})
	blocked, _ := m.Matches(model.ProcessObservation{User: "alice", Comm: "bash"}, "shell")
	if blocked {
		t.Fatalf("expected no match for unrelated process")
	}
}
