// Package planner turns one decided action into a staged execution graph
// (§4.6): each step names its target, the concrete operation, the
// pre-checks it must clear, a confidence tier, and a routing tag describing
// how the effective target diverges from the original one (a kill aimed at
// a zombie routes to its parent or supervisor instead, since signalling a
// zombie itself is a no-op). Within one PID, steps run in ascending stage
// order; across PIDs, same-numbered stages may run in parallel.
package planner

import (
	"github.com/joyshmitz/process-triage-sub001/model"
	"github.com/joyshmitz/process-triage-sub001/precheck"
)

// Step is one node in a candidate's staged execution graph.
type Step struct {
	Stage          int
	Target         model.ProcessIdentity
	OriginalTarget model.ProcessIdentity
	Operation      model.Action
	PreChecks      []model.PreCheck
	Confidence     model.ConfidenceTier
	Routing        model.RoutingTag
	Blocked        bool
	BlockReason    string
}

// Plan is the ordered step list for one candidate, plus the explanation
// generated for it.
type Plan struct {
	Candidate model.ProcessIdentity
	Steps     []Step
	Narrative string
}

// basePreChecksFor returns the pre-check list every operation runs, in
// addition to identity verification (owned by the identity package, not
// requested here).
func basePreChecksFor(op model.Action) []model.PreCheck {
	switch op {
	case model.ActionKeep:
		return nil
	case model.ActionPause, model.ActionThrottle:
		return []model.PreCheck{model.CheckNotProtected, model.CheckSessionSafety}
	default: // restart, kill
		return []model.PreCheck{
			model.CheckNotProtected, model.CheckDataLossGate,
			model.CheckSupervisor, model.CheckSessionSafety, model.CheckVerifyProcessState,
		}
	}
}

// confidenceTier buckets a posterior/confidence pair the same way the
// decision layer reasons about low-confidence candidates: anything below
// lowThreshold is Low, below veryLowThreshold is VeryLow.
func confidenceTier(confidenceLevel, lowThreshold, veryLowThreshold float64) model.ConfidenceTier {
	switch {
	case confidenceLevel < veryLowThreshold:
		return model.ConfidenceVeryLow
	case confidenceLevel < lowThreshold:
		return model.ConfidenceLow
	default:
		return model.ConfidenceNormal
	}
}

// BuildPlan lays out the staged execution graph for one decided action
// against one candidate observation. supervisorParentComm is the comm of
// the candidate's parent process (used for supervisor routing); it may be
// empty if unknown.
func BuildPlan(candidate model.ProcessIdentity, obs model.ProcessObservation, action model.Action, confidenceLevel, lowThreshold, veryLowThreshold float64, supervisorParentComm string) Plan {
	tier := confidenceTier(confidenceLevel, lowThreshold, veryLowThreshold)

	if action == model.ActionKeep {
		return Plan{Candidate: candidate, Steps: []Step{{
			Stage: 0, Target: candidate, OriginalTarget: candidate,
			Operation: model.ActionKeep, Confidence: tier, Routing: model.RouteDirect,
		}}}
	}

	// A D-state process can't be safely signalled (it won't respond until
	// the kernel releases it); downgrade any destructive action against one
	// to an investigate-only step rather than queuing a signal that may
	// block indefinitely or never land.
	if obs.State == 'D' && action.IsRisky() {
		return Plan{Candidate: candidate, Steps: []Step{{
			Stage: 0, Target: candidate, OriginalTarget: candidate,
			Operation: model.ActionKeep, PreChecks: []model.PreCheck{model.CheckVerifyProcessState},
			Confidence: model.ConfidenceVeryLow, Routing: model.RouteDStateLowConfidence,
		}}}
	}

	if obs.State == 'Z' && action.IsRisky() {
		return buildZombiePlan(candidate, obs, action, tier, supervisorParentComm)
	}

	return Plan{Candidate: candidate, Steps: []Step{{
		Stage: 0, Target: candidate, OriginalTarget: candidate,
		Operation: action, PreChecks: basePreChecksFor(action), Confidence: tier, Routing: model.RouteDirect,
	}}}
}

// buildZombiePlan routes a destructive action away from the zombie itself
// (signalling a zombie is a kernel no-op; it is already dead and waiting on
// its parent to reap it) toward whichever party can actually resolve it: a
// supervisor that will notice and reap/restart, the parent process directly,
// or — if neither is identifiable — an investigate-only step that changes
// nothing but flags the zombie for operator attention.
func buildZombiePlan(candidate model.ProcessIdentity, obs model.ProcessObservation, action model.Action, tier model.ConfidenceTier, parentComm string) Plan {
	info := precheck.DetectSupervisor(obs.CgroupLines, parentComm)
	parent := model.ProcessIdentity{PID: obs.PPID}

	switch {
	case info.Managed:
		return Plan{Candidate: candidate, Steps: []Step{{
			Stage: 0, Target: parent, OriginalTarget: candidate,
			Operation: model.ActionRestart,
			PreChecks: []model.PreCheck{model.CheckSupervisor},
			Confidence: tier, Routing: model.RouteZombieToSupervisor,
		}}}
	case obs.PPID != 0 && obs.PPID != 1:
		return Plan{Candidate: candidate, Steps: []Step{{
			Stage: 0, Target: parent, OriginalTarget: candidate,
			Operation: model.ActionRestart,
			PreChecks: []model.PreCheck{model.CheckNotProtected, model.CheckSessionSafety},
			Confidence: tier, Routing: model.RouteZombieToParent,
		}}}
	default:
		return Plan{Candidate: candidate, Steps: []Step{{
			Stage: 0, Target: candidate, OriginalTarget: candidate,
			Operation: model.ActionKeep, Confidence: tier, Routing: model.RouteZombieInvestigateOnly,
		}}}
	}
}

// ByStage groups a batch of plans' steps by stage number, for a scheduler
// that wants to run every same-numbered step across different PIDs in
// parallel before advancing to the next stage.
func ByStage(plans []Plan) map[int][]Step {
	out := make(map[int][]Step)
	for _, p := range plans {
		for _, s := range p.Steps {
			out[s.Stage] = append(out[s.Stage], s)
		}
	}
	return out
}
