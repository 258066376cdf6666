package precheck

import (
	"strings"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// maxSessionWalkDepth bounds the ancestor walk analyzeSessionSafety performs
// when looking for an interactive-shell or sshd ancestor.
const maxSessionWalkDepth = 20

var muxServerComms = map[string]bool{"tmux": true, "tmux: server": true, "screen": true}

var interactiveShellComms = map[string]bool{
	"bash": true, "sh": true, "zsh": true, "fish": true, "dash": true,
	"tcsh": true, "csh": true, "ksh": true, "ash": true,
}

// analyzeSessionSafety blocks a candidate whose termination would plausibly
// sever an active interactive session rather than a stray background job:
// the candidate is in the same POSIX session as the triage process itself,
// it shares session lineage with an interactively-attached ancestor, or it
// is itself the multiplexer server process that would take every attached
// pane down with it.
func analyzeSessionSafety(in Input, prober Prober) model.PreCheckResult {
	check := model.CheckSessionSafety
	obs := in.Observation

	if in.SelfSID != 0 && obs.SID == in.SelfSID {
		return model.PreCheckResult{Check: check, Passed: false, Reason: "candidate shares the triage process's own session"}
	}

	if muxServerComms[strings.ToLower(obs.Comm)] && obs.IsSessionLeader() {
		return model.PreCheckResult{Check: check, Passed: false, Reason: "candidate is a terminal multiplexer server"}
	}

	if obs.IsSessionLeader() && obs.HasControllingTTY() && obs.IsForeground() {
		if walked := walkForInteractiveLineage(obs, prober); walked {
			return model.PreCheckResult{Check: check, Passed: false, Reason: "candidate is an active foreground session leader with interactive ancestry"}
		}
	}

	return model.PreCheckResult{Check: check, Passed: true}
}

// walkForInteractiveLineage climbs obs's ancestor chain looking for an
// interactive shell or an sshd process, either of which indicates a real
// human is attached to this lineage rather than it being an orphaned batch
// job that merely inherited a session id.
func walkForInteractiveLineage(obs model.ProcessObservation, prober Prober) bool {
	if prober == nil {
		return false
	}
	pid := obs.PPID
	for depth := 0; depth < maxSessionWalkDepth && pid != 0; depth++ {
		ancestor, ok := prober.Reprobe(pid)
		if !ok {
			return false
		}
		comm := strings.ToLower(ancestor.Comm)
		if interactiveShellComms[comm] || comm == "sshd" {
			return true
		}
		if ancestor.PPID == pid {
			return false
		}
		pid = ancestor.PPID
	}
	return false
}
