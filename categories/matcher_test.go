package categories

import (
	"strings"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func TestCategorize_Scenario(t *testing.T) {
	m := NewMatcher("/home/user", nil)
	out := m.Categorize("jest --watch --coverage", "/home/user/projects/app")

	if out.CmdCategory != model.CmdTest {
		t.Fatalf("cmd_category = %s, want test", out.CmdCategory)
	}
	if out.CwdCategory != model.CwdProject {
		t.Fatalf("cwd_category = %s, want project", out.CwdCategory)
	}
	if out.CmdShort != "jest (test)" {
		t.Fatalf("cmd_short = %q, want %q", out.CmdShort, "jest (test)")
	}
	if len(out.CmdSignature) != 20 || !strings.HasPrefix(out.CmdSignature, "cmd:") {
		t.Fatalf("cmd_signature = %q, want len 20 with cmd: prefix", out.CmdSignature)
	}
}

func TestCmdSignature_FlagOrderInvariant(t *testing.T) {
	m := NewMatcher("", nil)
	a := m.Categorize("jest --watch --coverage", "")
	b := m.Categorize("jest --coverage --watch", "")
	if a.CmdSignature != b.CmdSignature {
		t.Fatalf("signatures differ across flag order: %q vs %q", a.CmdSignature, b.CmdSignature)
	}
}

func TestCmdSignature_FlagValueInvariant(t *testing.T) {
	m := NewMatcher("", nil)
	a := m.Categorize("rsync --timeout=1000 src dst", "")
	b := m.Categorize("rsync --timeout=5000 src dst", "")
	if a.CmdSignature != b.CmdSignature {
		t.Fatalf("signatures differ across flag values: %q vs %q", a.CmdSignature, b.CmdSignature)
	}
}

func TestCategorize_EmptyCommand(t *testing.T) {
	m := NewMatcher("", nil)
	out := m.Categorize("", "")
	if out.CmdCategory != model.CmdUnknown {
		t.Fatalf("cmd_category = %s, want unknown", out.CmdCategory)
	}
	hash := strings.TrimPrefix(out.CmdSignature, "cmd:")
	if len(hash) != 16 {
		t.Fatalf("hash length = %d, want 16", len(hash))
	}
}

func TestCategorize_RoundTripOnShort(t *testing.T) {
	m := NewMatcher("", nil)
	first := m.Categorize("pytest -k smoke", "")
	again := m.MatchCommand(first.CmdShort)
	if again != first.CmdCategory {
		t.Fatalf("re-categorising cmd_short changed category: %s vs %s", again, first.CmdCategory)
	}
}

func TestMatchCwd_Fallback(t *testing.T) {
	m := NewMatcher("/home/user", nil)
	if got := m.MatchCwd("/home/user/docs"); got != model.CwdHome {
		t.Fatalf("cwd = %s, want home", got)
	}
	if got := m.MatchCwd("/tmp/foo"); got != model.CwdTemp {
		t.Fatalf("cwd = %s, want temp", got)
	}
}
