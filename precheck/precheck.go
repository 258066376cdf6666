// Package precheck implements the ordered safety-gate chain (§4.5) that runs
// immediately before an executor carries out a planned action. Every check
// reads live process state at check time rather than the scan-time
// observation the decision layer reasoned over, so a process that changed
// shape between scan and execution (TOCTOU) is re-evaluated against what it
// actually looks like now.
//
// CheckVerifyIdentity is not implemented here: start-id/PID-reuse identity
// verification belongs to the identity package, which already owns the
// probe-and-compare logic this chain would otherwise duplicate.
package precheck

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// Prober re-resolves a single, already-known PID to its current observation.
// It never enumerates the process table; like userintent.AncestorProvider,
// it only answers "what does this one PID look like right now".
type Prober interface {
	Reprobe(pid uint32) (model.ProcessObservation, bool)
}

// Input bundles everything a pre-check needs beyond the live observation:
// the command category classification (computed upstream by the categories
// matcher, since precheck has no business reclassifying commands) and the
// identity of the triage process itself, used by the session-safety check
// to avoid treating the triage tool's own session as a foreign one.
type Input struct {
	Observation model.ProcessObservation
	ParentComm  string
	Category    string
	SelfPID     uint32
	SelfSID     uint32
}

// Provider runs the individual safety gates against a live Input. Every
// method returns exactly one PreCheckResult for the PreCheck it implements.
type Provider interface {
	CheckNotProtected(in Input) model.PreCheckResult
	CheckDataLossGate(in Input) model.PreCheckResult
	CheckSupervisor(in Input) model.PreCheckResult
	CheckSessionSafety(in Input) model.PreCheckResult
	CheckProcessState(in Input) model.PreCheckResult
}

// chainOrder is the fixed evaluation order for a requested check list;
// callers may request a subset but the chain always evaluates in this order.
var chainOrder = []model.PreCheck{
	model.CheckNotProtected,
	model.CheckDataLossGate,
	model.CheckSupervisor,
	model.CheckSessionSafety,
	model.CheckVerifyProcessState,
}

func dispatch(p Provider, check model.PreCheck, in Input) (model.PreCheckResult, bool) {
	switch check {
	case model.CheckNotProtected:
		return p.CheckNotProtected(in), true
	case model.CheckDataLossGate:
		return p.CheckDataLossGate(in), true
	case model.CheckSupervisor:
		return p.CheckSupervisor(in), true
	case model.CheckSessionSafety:
		return p.CheckSessionSafety(in), true
	case model.CheckVerifyProcessState:
		return p.CheckProcessState(in), true
	default:
		return model.PreCheckResult{}, false
	}
}

// RunChain re-probes pid fresh, then runs every check in requested (but
// chain-ordered) sequence against the fresh observation. If the process has
// already exited by the time of the re-probe, every requested check is
// reported as failed rather than silently skipped, since the executor must
// not proceed against a target it can no longer see.
func RunChain(requested []model.PreCheck, identity model.ProcessIdentity, category string, self model.ProcessIdentity, selfSID uint32, prober Prober, provider Provider) []model.PreCheckResult {
	want := make(map[model.PreCheck]bool, len(requested))
	for _, c := range requested {
		want[c] = true
	}

	obs, ok := prober.Reprobe(identity.PID)
	var parentComm string
	if ok {
		if parent, found := prober.Reprobe(obs.PPID); found {
			parentComm = parent.Comm
		}
	}

	results := make([]model.PreCheckResult, 0, len(chainOrder))
	for _, check := range chainOrder {
		if !want[check] {
			continue
		}
		if !ok {
			results = append(results, model.PreCheckResult{
				Check:  check,
				Passed: false,
				Reason: "process no longer present at check time",
			})
			continue
		}
		in := Input{Observation: obs, ParentComm: parentComm, Category: category, SelfPID: self.PID, SelfSID: selfSID}
		result, known := dispatch(provider, check, in)
		if !known {
			continue
		}
		results = append(results, result)
	}
	return results
}

// AllPassed reports whether every result in the chain passed.
func AllPassed(results []model.PreCheckResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// candidate is one queued pre-check chain run, for RunChainsConcurrently.
type Candidate struct {
	Identity model.ProcessIdentity
	Checks   []model.PreCheck
	Category string
}

// RunChainsConcurrently runs RunChain for every candidate, bounded by
// maxConcurrency and cancellable via ctx: a single candidate's checks still
// run sequentially (order matters for the reported chain), but independent
// candidates' chains overlap.
func RunChainsConcurrently(ctx context.Context, candidates []Candidate, self model.ProcessIdentity, selfSID uint32, prober Prober, provider Provider, maxConcurrency int) (map[uint32][]model.PreCheckResult, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	out := make(map[uint32][]model.PreCheckResult, len(candidates))
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results := RunChain(cand.Checks, cand.Identity, cand.Category, self, selfSID, prober, provider)
			mu.Lock()
			out[cand.Identity.PID] = results
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// NoopProvider passes every check unconditionally. Use it in tests that
// don't exercise safety-gate logic, or as a fallback when no live provider
// is available (e.g. a dry-run mode).
type NoopProvider struct{}

func (NoopProvider) CheckNotProtected(Input) model.PreCheckResult {
	return model.PreCheckResult{Check: model.CheckNotProtected, Passed: true}
}

func (NoopProvider) CheckDataLossGate(Input) model.PreCheckResult {
	return model.PreCheckResult{Check: model.CheckDataLossGate, Passed: true}
}

func (NoopProvider) CheckSupervisor(Input) model.PreCheckResult {
	return model.PreCheckResult{Check: model.CheckSupervisor, Passed: true}
}

func (NoopProvider) CheckSessionSafety(Input) model.PreCheckResult {
	return model.PreCheckResult{Check: model.CheckSessionSafety, Passed: true}
}

func (NoopProvider) CheckProcessState(Input) model.PreCheckResult {
	return model.PreCheckResult{Check: model.CheckVerifyProcessState, Passed: true}
}
