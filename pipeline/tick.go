// Package pipeline wires every other package into the single per-scan
// operation the rest of the tool drives: categorise each observed process,
// accumulate evidence into a posterior, select a batch of candidates under
// multiple-testing control, minimise expected loss, gate the result through
// robot-mode constraints and the live pre-check chain, and finally plan and
// (if nothing blocked it) execute the chosen action — logging every stage
// to the audit trail and the metrics registry along the way.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joyshmitz/process-triage-sub001/audit"
	"github.com/joyshmitz/process-triage-sub001/categories"
	"github.com/joyshmitz/process-triage-sub001/config"
	"github.com/joyshmitz/process-triage-sub001/decision"
	"github.com/joyshmitz/process-triage-sub001/identity"
	"github.com/joyshmitz/process-triage-sub001/inference"
	"github.com/joyshmitz/process-triage-sub001/model"
	"github.com/joyshmitz/process-triage-sub001/patterns"
	"github.com/joyshmitz/process-triage-sub001/planner"
	"github.com/joyshmitz/process-triage-sub001/precheck"
	"github.com/joyshmitz/process-triage-sub001/userintent"
)

// Prober re-resolves a single PID to its current observation. It satisfies
// both precheck.Prober and identity.Prober without importing either — all
// three packages describe the same one-PID-at-a-time contract.
type Prober interface {
	Reprobe(pid uint32) (model.ProcessObservation, bool)
}

// Deps bundles every already-constructed collaborator a tick needs. Nothing
// here is built by pipeline itself: construction (opening the pattern
// library, the audit writer, the decision store, etc) is cmd/triage's job,
// so pipeline stays unit-testable with fakes.
type Deps struct {
	Matcher        *categories.Matcher
	Patterns       *patterns.Library
	Policy         model.Policy
	Constraints    *decision.ConstraintChecker
	Alpha          *decision.AlphaInvestingState
	IntentProvider userintent.AncestorProvider
	IntentConfig   userintent.Config
	Prober         Prober
	PreCheck       precheck.Provider
	Executor       *planner.Executor
	Audit          *audit.Writer
	Metrics        *config.Metrics
	Logger         *zap.Logger
	Self           model.ProcessIdentity
	SelfSID        uint32
	LoadSignals    []decision.LoadSignal
	// MaxConcurrency bounds precheck.RunChainsConcurrently for a future
	// batch-level caller. Tick itself finalizes candidates sequentially,
	// since each candidate's steps must pre-check and execute in lockstep
	// (a later step's identity check depends on the previous step having
	// run), so this field is currently unread here. See DESIGN.md.
	MaxConcurrency int
}

// confidenceThresholds derives planner.BuildPlan's confidence-tier
// boundaries from the policy's robot-mode floor, since the spec names no
// separate confidence-tier thresholds: MinConfidenceLevel is already the
// policy's own "below this, don't automate" line, and half of it is treated
// as the very-low floor.
func confidenceThresholds(policy model.Policy) (low, veryLow float64) {
	low = policy.RobotMode.MinConfidenceLevel
	if low <= 0 {
		low = 0.5
	}
	return low, low / 2
}

// Candidate is one per-observation evaluation result for a completed tick.
type Candidate struct {
	Identity     model.ProcessIdentity
	Observation  model.ProcessObservation
	Category     model.CategorizationOutput
	Posterior    map[model.Class]float64
	Class        model.Class
	SignatureHit bool
	SignatureName string
	FDRConsidered bool
	FDRSelected  bool
	Action       model.Action
	ExpectedLoss float64
	BlockReason  decision.BlockReason
	PreChecks    []model.PreCheckResult
	Plan         planner.Plan
	Executed     []planner.ExecutionResult
}

// BatchResult is everything one Tick call produced.
type BatchResult struct {
	Candidates []Candidate
	Rejections decision.RejectionSet
}

// pValueForPosterior derives a one-sided p-value against the null
// hypothesis "this process is useful" from the posterior mass on the two
// abnormal classes: the spec names BH/BY/alpha-investing as the batch
// selector but never states how a Bayesian posterior becomes the p-value
// those procedures expect, so this treats 1 - P(abandoned or zombie) as
// that probability (small when the posterior is confidently abnormal).
func pValueForPosterior(posterior map[model.Class]float64) float64 {
	p := 1 - (posterior[model.ClassAbandoned] + posterior[model.ClassZombie])
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

func needsFDR(class model.Class) bool {
	return class == model.ClassAbandoned || class == model.ClassZombie
}

// Tick runs one full scan-to-action cycle over observations.
func Tick(ctx context.Context, observations []model.ProcessObservation, deps Deps) (BatchResult, error) {
	start := time.Now()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	candidates := make([]Candidate, 0, len(observations))
	for _, obs := range observations {
		cand := evaluate(obs, deps)
		candidates = append(candidates, cand)
		if deps.Audit != nil {
			_ = deps.Audit.LogScan(cand.Identity, obs.RSSBytes, map[string]any{
				"cmd_category": cand.Category.CmdCategory.String(),
				"cwd_category": cand.Category.CwdCategory.String(),
			})
		}
		if deps.Metrics != nil {
			deps.Metrics.CandidatesObserved.Inc()
		}
	}

	rejections := selectBatch(candidates, deps)
	for i := range candidates {
		c := &candidates[i]
		if !c.FDRConsidered {
			c.FDRSelected = true
			continue
		}
		c.FDRSelected = rejections.Rejected(c.Identity.StartID)
		if !c.FDRSelected {
			if deps.Metrics != nil {
				deps.Metrics.FDRRejectionsTotal.Inc()
			}
			c.Action = model.ActionKeep
		}
	}

	for i := range candidates {
		finalize(ctx, &candidates[i], deps, logger)
	}

	if deps.Metrics != nil {
		deps.Metrics.ScansTotal.Inc()
		deps.Metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}

	return BatchResult{Candidates: candidates, Rejections: rejections}, nil
}

// evaluate runs categorisation and Bayesian inference for one observation,
// choosing a pre-FDR action via loss minimisation.
func evaluate(obs model.ProcessObservation, deps Deps) Candidate {
	identityOf := obs.Identity

	var category model.CategorizationOutput
	if deps.Matcher != nil {
		category = deps.Matcher.Categorize(obs.Cmdline, obs.Cwd)
	}

	ledger := inference.NewLedger(deps.Policy.Priors)
	for feature, observed := range coreBernoulliFeatures(obs) {
		ledger.AddBernoulli(feature, observed, deps.Policy.Priors)
	}
	ledger.AddRuntime(obs.RuntimeSeconds(), deps.Policy.Priors)
	ledger.AddCommandCategory(category.CmdCategory, deps.Policy.Priors)
	ledger.AddCwdCategory(category.CwdCategory, deps.Policy.Priors)

	intent := userintent.Collect(obs, deps.IntentProvider, deps.IntentConfig)
	userintent.FoldIntoLedger(intent, ledger, deps.Policy.Priors)

	sigHit, sigName, sigConfident := false, "", false
	if match, ok := matchSignature(deps.Patterns, obs, ""); ok {
		sigHit, sigName = true, match.pattern.Signature.Name
		for classKey, delta := range match.pattern.Signature.PriorsDelta.ClassDeltas {
			ledger.AddClassShift(classFromString(classKey), delta)
		}
		sigConfident = match.pattern.Signature.Confidence >= deps.Policy.SignatureFastPath.ConfidenceThreshold
	}

	posterior := ledger.Posterior()
	class, _ := ledger.MostLikely()

	load := decision.CombinedLoad(deps.LoadSignals, deps.Policy.LoadAware.Weights)
	action, expLoss := decision.MinimizeLoss(posterior, deps.Policy.LossMatrix, load, deps.Policy.LoadAware.Multipliers)

	return Candidate{
		Identity:      identityOf,
		Observation:   obs,
		Category:      category,
		Posterior:     posterior,
		Class:         class,
		SignatureHit:  sigHit,
		SignatureName: sigName,
		FDRConsidered: needsFDR(class) && !sigConfident,
		Action:        action,
		ExpectedLoss:  expLoss,
	}
}

func classFromString(s string) model.Class {
	for _, c := range model.AllClasses() {
		if c.String() == s {
			return c
		}
	}
	return model.ClassUseful
}

// selectBatch runs the configured FDR method over every candidate whose
// top class needs multiple-testing control, per §4.4.
func selectBatch(candidates []Candidate, deps Deps) decision.RejectionSet {
	var batch []decision.Candidate
	for _, c := range candidates {
		if !c.FDRConsidered {
			continue
		}
		batch = append(batch, decision.Candidate{ID: c.Identity.StartID, PValue: pValueForPosterior(c.Posterior)})
	}
	if len(batch) == 0 {
		return decision.RejectionSet{RejectedIDs: map[string]bool{}}
	}

	switch deps.Policy.FDRControl.Method {
	case model.FDRBenjaminiHochberg:
		return decision.BenjaminiHochberg(batch, deps.Policy.FDRControl.Alpha)
	case model.FDRBenjaminiYekutieli:
		return decision.BenjaminiYekutieli(batch, deps.Policy.FDRControl.Alpha)
	case model.FDRAlphaInvesting:
		out := decision.RejectionSet{RejectedIDs: map[string]bool{}}
		if deps.Alpha == nil {
			return out
		}
		for _, c := range batch {
			rejected, err := decision.TestAlphaInvesting(deps.Alpha, c.PValue, deps.Policy.FDRControl.AlphaInvesting)
			if err == nil && rejected {
				out.RejectedIDs[c.ID] = true
			}
		}
		return out
	default: // FDRNone: every candidate passes straight through.
		out := decision.RejectionSet{RejectedIDs: make(map[string]bool, len(batch))}
		for _, c := range batch {
			out.RejectedIDs[c.ID] = true
		}
		return out
	}
}

// finalize runs robot-mode constraints, the live pre-check chain, planning
// and (if nothing blocked) execution for one candidate, writing the audit
// trail and metrics as it goes.
func finalize(ctx context.Context, c *Candidate, deps Deps, logger *zap.Logger) {
	blastMB := float64(c.Observation.RSSBytes) / (1024 * 1024)
	confidenceLevel := c.Posterior[c.Class]

	var parentComm string
	if deps.Prober != nil {
		if parent, ok := deps.Prober.Reprobe(c.Observation.PPID); ok {
			parentComm = parent.Comm
		}
	}
	supervised := precheck.DetectSupervisor(c.Observation.CgroupLines, parentComm).Managed

	if deps.Constraints != nil {
		envelope := decision.CandidateEnvelope{
			Posterior:         confidenceLevel,
			ConfidenceLevel:   confidenceLevel,
			BlastRadiusMB:     blastMB,
			Category:          c.Category.CmdCategory.String(),
			IsSupervised:      supervised,
			HasSignatureMatch: c.SignatureHit,
			Action:            c.Action,
		}
		c.BlockReason = deps.Constraints.Check(envelope)
		if deps.Audit != nil {
			_ = deps.Audit.LogPolicyCheck(c.Identity, c.BlockReason.String(), c.BlockReason != decision.BlockNone)
		}
		if c.BlockReason != decision.BlockNone {
			c.Action = model.ActionKeep
			logger.Debug("candidate blocked by policy constraint",
				zap.Uint32("pid", c.Identity.PID),
				zap.String("class", c.Class.String()),
				zap.String("block_reason", c.BlockReason.String()),
			)
		}
	}

	low, veryLow := confidenceThresholds(deps.Policy)
	c.Plan = planner.BuildPlan(c.Identity, c.Observation, c.Action, confidenceLevel, low, veryLow, parentComm)

	firedEvidence := firedEvidenceIDs(c)
	narrative := planner.BuildNarrative(c.Class, c.Action, confidenceLevel, firedEvidence)
	c.Plan.Narrative = narrative
	if deps.Audit != nil {
		_ = deps.Audit.LogRecommend(c.Identity, c.Class, c.Action, confidenceLevel, narrative)
	}
	if deps.Metrics != nil {
		deps.Metrics.DecisionsTotal.WithLabelValues(c.Class.String(), c.Action.String()).Inc()
	}

	if c.BlockReason != decision.BlockNone || deps.Prober == nil {
		return
	}

	for _, step := range c.Plan.Steps {
		select {
		case <-ctx.Done():
			return
		default:
		}

		results := []model.PreCheckResult{identity.Verify(c.Identity, deps.Prober)}
		if deps.PreCheck != nil {
			results = append(results, precheck.RunChain(step.PreChecks, step.Target, c.Category.CmdCategory.String(), deps.Self, deps.SelfSID, deps.Prober, deps.PreCheck)...)
		}
		c.PreChecks = append(c.PreChecks, results...)

		passed := precheck.AllPassed(results)
		if !passed && deps.Metrics != nil {
			for _, r := range results {
				if !r.Passed {
					deps.Metrics.PreCheckBlocksTotal.WithLabelValues(r.Check.String()).Inc()
				}
			}
		}

		if !passed {
			logger.Warn("pre-check failed, skipping step",
				zap.Uint32("pid", c.Identity.PID),
				zap.String("operation", step.Operation.String()),
			)
			if deps.Audit != nil {
				_ = deps.Audit.LogAction(step.Target, step.Operation, false, results, nil)
			}
			if deps.Metrics != nil {
				deps.Metrics.ActionsBlockedTotal.WithLabelValues(step.Operation.String()).Inc()
			}
			continue
		}

		if deps.Executor == nil {
			continue
		}
		result := deps.Executor.Run(step)
		c.Executed = append(c.Executed, result)
		if result.Error != "" {
			logger.Warn("step execution failed",
				zap.Uint32("pid", c.Identity.PID),
				zap.String("operation", step.Operation.String()),
				zap.String("error", result.Error),
			)
		}
		if deps.Audit != nil {
			_ = deps.Audit.LogAction(step.Target, step.Operation, result.Applied, results, map[string]any{"error": result.Error})
		}
		if deps.Metrics != nil {
			if result.Applied {
				deps.Metrics.ActionsAppliedTotal.WithLabelValues(step.Operation.String()).Inc()
			} else {
				deps.Metrics.ActionsBlockedTotal.WithLabelValues(step.Operation.String()).Inc()
			}
		}
		if deps.Constraints != nil && result.Applied {
			deps.Constraints.RecordAction(blastMB, step.Operation.IsKill())
		}
		if deps.Patterns != nil && c.SignatureHit {
			deps.Patterns.RecordMatch(c.SignatureName, result.Applied, time.Now().Unix())
		}
	}
}

// firedEvidenceIDs collects a short human-readable list of which signals
// fired for a candidate, for the narrative generator.
func firedEvidenceIDs(c *Candidate) []string {
	var ids []string
	for feature, observed := range coreBernoulliFeatures(c.Observation) {
		if observed {
			ids = append(ids, feature.String())
		}
	}
	if c.SignatureHit {
		ids = append(ids, "signature:"+c.SignatureName)
	}
	return ids
}
