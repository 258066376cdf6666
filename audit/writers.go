package audit

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// LogScan records that a candidate was observed this tick.
func (w *Writer) LogScan(identity model.ProcessIdentity, rssBytes uint64, detail map[string]any) error {
	return w.writeEntry(model.AuditEntry{
		Kind:    model.AuditScan,
		PID:     identity.PID,
		StartID: identity.StartID,
		Message: fmt.Sprintf("observed pid %d (%s resident)", identity.PID, humanize.Bytes(rssBytes)),
		Detail:  detail,
	})
}

// LogRecommend records the decision layer's chosen action and posterior for
// a candidate, before any pre-checks or execution.
func (w *Writer) LogRecommend(identity model.ProcessIdentity, class model.Class, action model.Action, posterior float64, narrative string) error {
	c := class
	a := action
	p := posterior
	return w.writeEntry(model.AuditEntry{
		Kind:      model.AuditRecommend,
		PID:       identity.PID,
		StartID:   identity.StartID,
		Message:   narrative,
		Class:     &c,
		Action:    &a,
		Posterior: &p,
	})
}

// LogAction records that an action was actually carried out (or blocked),
// along with the pre-check results that gated it.
func (w *Writer) LogAction(identity model.ProcessIdentity, action model.Action, applied bool, preChecks []model.PreCheckResult, detail map[string]any) error {
	a := action
	status := "applied"
	if !applied {
		status = "blocked"
	}
	return w.writeEntry(model.AuditEntry{
		Kind:      model.AuditAction,
		PID:       identity.PID,
		StartID:   identity.StartID,
		Message:   fmt.Sprintf("%s %s", status, action.String()),
		Action:    &a,
		PreChecks: preChecks,
		Detail:    detail,
	})
}

// LogPolicyCheck records a robot-mode constraint decision for a candidate.
func (w *Writer) LogPolicyCheck(identity model.ProcessIdentity, reason string, blocked bool) error {
	status := "allowed"
	if blocked {
		status = "blocked"
	}
	return w.writeEntry(model.AuditEntry{
		Kind:    model.AuditPolicyCheck,
		PID:     identity.PID,
		StartID: identity.StartID,
		Message: fmt.Sprintf("policy check %s: %s", status, reason),
		Detail:  map[string]any{"blocked": blocked, "reason": reason},
	})
}

// LogError records an operational error unrelated to any single candidate
// decision (probe failure, I/O error, etc).
func (w *Writer) LogError(context string, err error) error {
	return w.writeEntry(model.AuditEntry{
		Kind:    model.AuditError,
		Message: fmt.Sprintf("%s: %v", context, err),
		Detail:  map[string]any{"context": context},
	})
}

// WriteCheckpoint is the public specialised-writer name for Checkpoint,
// matching the other Log* method naming.
func (w *Writer) WriteCheckpoint(reason string) (model.Checkpoint, error) {
	return w.Checkpoint(reason)
}
