package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/joyshmitz/process-triage-sub001/audit"
	"github.com/joyshmitz/process-triage-sub001/categories"
	"github.com/joyshmitz/process-triage-sub001/config"
	"github.com/joyshmitz/process-triage-sub001/decision"
	"github.com/joyshmitz/process-triage-sub001/model"
	"github.com/joyshmitz/process-triage-sub001/patterns"
	"github.com/joyshmitz/process-triage-sub001/pipeline"
	"github.com/joyshmitz/process-triage-sub001/planner"
	"github.com/joyshmitz/process-triage-sub001/precheck"
	"github.com/joyshmitz/process-triage-sub001/userintent"
)

// buildDeps constructs every collaborator pipeline.Tick needs: the pattern
// library, the decision store (alpha-investing wealth and robot-mode kill
// counters, persisted across runs per §4.4/§4.5), the audit writer, the
// Prometheus metrics, and the live /proc prober. Construction lives here
// rather than in pipeline itself so pipeline stays unit-testable with
// fakes, mirroring how ftahirops-xtop/cmd/root.go wires its engine/ui/
// metrics collaborators in Run rather than inside the engine package.
func buildDeps(core config.CoreConfig, policy model.Policy, cfg Config, logger *zap.Logger) (pipeline.Deps, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("cleanup error", zap.Error(err))
			}
		}
	}
	fail := func(err error) (pipeline.Deps, func(), error) {
		cleanup()
		return pipeline.Deps{}, func() {}, err
	}

	lib, err := patterns.Open(core.PatternDir, logger)
	if err != nil {
		return fail(fmt.Errorf("open pattern library: %w", err))
	}
	closers = append(closers, lib.Close)

	store, err := decision.OpenStore(core.StorePath)
	if err != nil {
		return fail(fmt.Errorf("open decision store: %w", err))
	}
	closers = append(closers, store.Close)

	constraints, err := store.RestoreConstraintChecker(storeScope, decision.MergeRobotMode(policy.RobotMode, decision.CLIOverrides{}))
	if err != nil {
		return fail(fmt.Errorf("restore robot-mode constraints: %w", err))
	}

	var alpha *decision.AlphaInvestingState
	if policy.FDRControl.Method == model.FDRAlphaInvesting {
		state, err := store.LoadAlphaInvesting(storeScope, policy.FDRControl.AlphaInvesting.W0)
		if err != nil {
			return fail(fmt.Errorf("load alpha-investing state: %w", err))
		}
		alpha = &state
	}

	writer, err := audit.Open(core.AuditDir, core.AuditMaxSizeBytes)
	if err != nil {
		return fail(fmt.Errorf("open audit log: %w", err))
	}
	closers = append(closers, writer.Close)

	metrics := config.NewMetrics()

	// In -dry-run, finalize still builds plans, runs pre-checks, and logs
	// every decision, but a nil Executor short-circuits before any action
	// is actually carried out (see pipeline.finalize).
	var executor *planner.Executor
	if !cfg.DryRun {
		executor = planner.NewExecutor(logger, nil)
	}

	self, selfSID := selfIdentity()
	prober := procProber{}

	deps := pipeline.Deps{
		Matcher:        categories.NewMatcher(cfg.HomeDir, logger),
		Patterns:       lib,
		Policy:         policy,
		Constraints:    constraints,
		Alpha:          alpha,
		IntentProvider: prober,
		IntentConfig:   userintent.DefaultConfig(),
		Prober:         prober,
		PreCheck:       precheck.NewLiveProvider(policy.Guardrails, policy.DataLossGates, prober),
		Executor:       executor,
		Audit:          writer,
		Metrics:        metrics,
		Logger:         logger,
		Self:           self,
		SelfSID:        selfSID,
	}

	return deps, cleanup, nil
}
