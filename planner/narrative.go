package planner

import (
	"fmt"
	"sort"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// narrativeRule maps a set of fired evidence IDs to a human-readable
// sentence explaining the dominant signal behind a decision. Checked in
// order; first match wins, same as the teacher's narrative template table.
type narrativeRule struct {
	ids      []string
	minMatch int // 0 = all ids must fire
	text     string
}

var narrativeTemplates = []narrativeRule{
	{ids: []string{"cpu_busy", "orphan"}, text: "actively consuming CPU with no living parent to reclaim it"},
	{ids: []string{"orphan"}, text: "orphaned and reparented to init"},
	{ids: []string{"intent.tty.fg", "intent.shell.login"}, minMatch: 1, text: "attached to an active, interactively-driven session"},
	{ids: []string{"intent.ssh.client"}, text: "part of a live SSH session"},
	{ids: []string{"intent.repo.cwd"}, text: "running inside a version-controlled project directory"},
	{ids: []string{"io_active"}, text: "actively reading or writing data"},
	{ids: []string{"network"}, text: "holding open network connections"},
}

// BuildNarrative produces a short explanation sentence for one decision,
// naming the dominant fired evidence and the chosen action. Grounded on
// ftahirops-xtop/engine/narrative.go's ordered-template-then-fallback shape,
// retargeted from kernel pressure signals to this domain's evidence IDs.
func BuildNarrative(class model.Class, action model.Action, posterior float64, firedEvidence []string) string {
	fired := make(map[string]bool, len(firedEvidence))
	for _, id := range firedEvidence {
		fired[id] = true
	}

	reason := matchNarrativeTemplate(fired)
	if reason == "" {
		reason = fmt.Sprintf("classified %s with posterior %.2f", class.String(), posterior)
	}

	return fmt.Sprintf("%s: %s (%s)", action.String(), reason, topEvidence(firedEvidence, 3))
}

func matchNarrativeTemplate(fired map[string]bool) string {
	for _, rule := range narrativeTemplates {
		need := rule.minMatch
		if need == 0 {
			need = len(rule.ids)
		}
		matched := 0
		for _, id := range rule.ids {
			if fired[id] {
				matched++
			}
		}
		if matched >= need {
			return rule.text
		}
	}
	return ""
}

// topEvidence returns a stable, sorted, comma-joined summary of up to n
// fired evidence IDs, for the parenthetical in BuildNarrative's output.
func topEvidence(ids []string, n int) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	if len(sorted) == 0 {
		return "no evidence fired"
	}
	out := sorted[0]
	for _, id := range sorted[1:] {
		out += ", " + id
	}
	return out
}
