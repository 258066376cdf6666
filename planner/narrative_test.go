package planner

import (
	"strings"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func TestBuildNarrative_MatchesTemplateOnFiredEvidence(t *testing.T) {
	text := BuildNarrative(model.ClassAbandoned, model.ActionKill, 0.95, []string{"cpu_busy", "orphan"})
	if !strings.Contains(text, "no living parent") {
		t.Fatalf("got %q, want the cpu_busy+orphan template to fire", text)
	}
}

func TestBuildNarrative_FallsBackWhenNoTemplateMatches(t *testing.T) {
	text := BuildNarrative(model.ClassUseful, model.ActionKeep, 0.8, nil)
	if !strings.Contains(text, "useful") || !strings.Contains(text, "0.80") {
		t.Fatalf("got %q, want a posterior-based fallback sentence", text)
	}
}

func TestBuildNarrative_IncludesActionVerb(t *testing.T) {
	text := BuildNarrative(model.ClassZombie, model.ActionRestart, 0.7, []string{"io_active"})
	if !strings.HasPrefix(text, "restart:") {
		t.Fatalf("got %q, want it prefixed with the action verb", text)
	}
}

func TestTopEvidence_SortsAndLimits(t *testing.T) {
	got := topEvidence([]string{"network", "cpu_busy", "orphan", "tty"}, 2)
	if got != "cpu_busy, network" {
		t.Fatalf("got %q, want the first two sorted ids", got)
	}
}

func TestTopEvidence_EmptyInput(t *testing.T) {
	if got := topEvidence(nil, 3); got != "no evidence fired" {
		t.Fatalf("got %q", got)
	}
}
