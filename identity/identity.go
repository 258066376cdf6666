// Package identity implements the VerifyIdentity pre-check (§4.5): before
// any plan step touches a PID, confirm the live process at that PID is
// still the one the decision layer reasoned about, not a different process
// that reused the number in the window between scan and execution.
package identity

import "github.com/joyshmitz/process-triage-sub001/model"

// Prober re-resolves a single, already-known PID to its current
// observation. It mirrors precheck.Prober's contract exactly; the two are
// kept as separate interfaces rather than one shared type so precheck does
// not need to import this package (and vice versa) just for a method set.
type Prober interface {
	Reprobe(pid uint32) (model.ProcessObservation, bool)
}

// Verify re-probes identity.PID and compares its live start-id against the
// one recorded at scan time. A process that has exited, or whose PID has
// been reused by something with a different start-id, fails the check.
func Verify(target model.ProcessIdentity, prober Prober) model.PreCheckResult {
	obs, ok := prober.Reprobe(target.PID)
	if !ok {
		return model.PreCheckResult{
			Check: model.CheckVerifyIdentity, Passed: false,
			Reason: "process no longer present at check time",
		}
	}
	if obs.Identity.StartID != target.StartID {
		return model.PreCheckResult{
			Check: model.CheckVerifyIdentity, Passed: false,
			Reason: "pid was reused by a different process since it was scanned",
		}
	}
	return model.PreCheckResult{Check: model.CheckVerifyIdentity, Passed: true}
}
