package decision

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// BlockReason names why a robot-mode constraint blocked a candidate.
type BlockReason int

const (
	BlockNone BlockReason = iota
	BlockRobotModeDisabled
	BlockRequireHumanForSupervised
	BlockPosteriorTooLow
	BlockBlastRadiusTooHigh
	BlockTotalBlastRadiusTooHigh
	BlockKillBudgetExhausted
	BlockCategoryExcluded
	BlockCategoryNotAllowed
	BlockUnknownSignature
)

func (b BlockReason) String() string {
	switch b {
	case BlockRobotModeDisabled:
		return "robot_mode_disabled"
	case BlockRequireHumanForSupervised:
		return "require_human_for_supervised"
	case BlockPosteriorTooLow:
		return "posterior_too_low"
	case BlockBlastRadiusTooHigh:
		return "blast_radius_too_high"
	case BlockTotalBlastRadiusTooHigh:
		return "total_blast_radius_too_high"
	case BlockKillBudgetExhausted:
		return "kill_budget_exhausted"
	case BlockCategoryExcluded:
		return "category_excluded"
	case BlockCategoryNotAllowed:
		return "category_not_allowed"
	case BlockUnknownSignature:
		return "unknown_signature"
	default:
		return "none"
	}
}

// ValueSource records whether an effective constraint value came from the
// loaded policy or was tightened by a CLI override, for the diagnostic
// summary.
type ValueSource int

const (
	SourcePolicy ValueSource = iota
	SourceCLI
)

func (s ValueSource) String() string {
	if s == SourceCLI {
		return "cli"
	}
	return "policy"
}

// CLIOverrides are optional command-line tightenings of the policy's robot
// mode. Every field is a pointer so "not provided" is distinguishable from
// "provided as zero".
type CLIOverrides struct {
	MaxBlastRadiusMB          *float64
	MaxKills                  *int
	RequireKnownSignature     *bool
	RequirePolicySnapshot     *bool
	RequireHumanForSupervised *bool
}

// RuntimeRobotConstraints is the merged, effective robot-mode envelope for
// one run, after CLI overrides have been applied with more-restrictive-wins
// semantics.
type RuntimeRobotConstraints struct {
	Enabled                   bool
	MinPosterior              float64
	MinConfidenceLevel        float64
	MaxBlastRadiusMB          float64
	MaxBlastRadiusSource      ValueSource
	MaxTotalBlastRadiusMB     *float64
	MaxKills                  int
	MaxKillsSource            ValueSource
	AllowCategories           map[string]bool
	ExcludeCategories         map[string]bool
	RequireKnownSignature     bool
	RequireKnownSignatureSrc  ValueSource
	RequirePolicySnapshot     bool
	RequirePolicySnapshotSrc  ValueSource
	RequireHumanForSupervised bool
	RequireHumanForSupervisedSrc ValueSource
}

func lowerSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[strings.ToLower(s)] = true
	}
	return out
}

// MergeRobotMode merges a policy's RobotMode with optional CLI overrides.
// Every override is more-restrictive-wins: the minimum of the two
// numeric limits, and the logical OR of the two boolean require-flags.
func MergeRobotMode(policy model.RobotMode, cli CLIOverrides) RuntimeRobotConstraints {
	out := RuntimeRobotConstraints{
		Enabled:                   policy.Enabled,
		MinPosterior:              policy.MinPosterior,
		MinConfidenceLevel:        policy.MinConfidenceLevel,
		MaxBlastRadiusMB:          policy.MaxBlastRadiusMB,
		MaxBlastRadiusSource:      SourcePolicy,
		MaxTotalBlastRadiusMB:     policy.MaxTotalBlastRadiusMB,
		MaxKills:                  policy.MaxKills,
		MaxKillsSource:            SourcePolicy,
		AllowCategories:           lowerSet(policy.AllowCategories),
		ExcludeCategories:         lowerSet(policy.ExcludeCategories),
		RequireKnownSignature:     policy.RequireKnownSignature,
		RequireKnownSignatureSrc:  SourcePolicy,
		RequirePolicySnapshot:     policy.RequirePolicySnapshot,
		RequirePolicySnapshotSrc:  SourcePolicy,
		RequireHumanForSupervised: policy.RequireHumanForSupervised,
		RequireHumanForSupervisedSrc: SourcePolicy,
	}

	if cli.MaxBlastRadiusMB != nil && *cli.MaxBlastRadiusMB < out.MaxBlastRadiusMB {
		out.MaxBlastRadiusMB = *cli.MaxBlastRadiusMB
		out.MaxBlastRadiusSource = SourceCLI
	}
	if cli.MaxKills != nil && *cli.MaxKills < out.MaxKills {
		out.MaxKills = *cli.MaxKills
		out.MaxKillsSource = SourceCLI
	}
	if cli.RequireKnownSignature != nil && *cli.RequireKnownSignature && !out.RequireKnownSignature {
		out.RequireKnownSignature = true
		out.RequireKnownSignatureSrc = SourceCLI
	}
	if cli.RequirePolicySnapshot != nil && *cli.RequirePolicySnapshot && !out.RequirePolicySnapshot {
		out.RequirePolicySnapshot = true
		out.RequirePolicySnapshotSrc = SourceCLI
	}
	if cli.RequireHumanForSupervised != nil && *cli.RequireHumanForSupervised && !out.RequireHumanForSupervised {
		out.RequireHumanForSupervised = true
		out.RequireHumanForSupervisedSrc = SourceCLI
	}
	return out
}

// CandidateEnvelope is what ConstraintChecker.Check needs to know about one
// candidate action to evaluate robot-mode constraints.
type CandidateEnvelope struct {
	Posterior        float64
	ConfidenceLevel  float64
	BlastRadiusMB    float64
	Category         string
	IsSupervised     bool
	HasSignatureMatch bool
	Action           model.Action
}

// ConstraintChecker is the stateful, per-run robot-mode gate: it tracks
// kills and accumulated blast radius atomically across the run's
// candidates and evaluates each one against RuntimeRobotConstraints.
type ConstraintChecker struct {
	constraints RuntimeRobotConstraints

	killCount    atomic.Int64
	mu           sync.Mutex
	totalBlastMB float64
}

// NewConstraintChecker constructs a checker for one run's constraints.
func NewConstraintChecker(constraints RuntimeRobotConstraints) *ConstraintChecker {
	return &ConstraintChecker{constraints: constraints}
}

// Reset zeroes the kill counter and accumulated blast radius, for reuse
// across runs without reallocating the checker.
func (c *ConstraintChecker) Reset() {
	c.killCount.Store(0)
	c.mu.Lock()
	c.totalBlastMB = 0
	c.mu.Unlock()
}

// RecordAction advances the kill counter (if isKill) and the accumulated
// blast radius; call this after a candidate clears Check and its action is
// actually executed.
func (c *ConstraintChecker) RecordAction(blastRadiusMB float64, isKill bool) {
	if isKill {
		c.killCount.Add(1)
	}
	c.mu.Lock()
	c.totalBlastMB += blastRadiusMB
	c.mu.Unlock()
}

// Check evaluates one candidate against the merged constraints, returning
// BlockNone if it clears every gate.
func (c *ConstraintChecker) Check(cand CandidateEnvelope) BlockReason {
	rc := c.constraints
	if !rc.Enabled {
		return BlockRobotModeDisabled
	}
	if cand.IsSupervised && rc.RequireHumanForSupervised {
		return BlockRequireHumanForSupervised
	}
	if cand.Posterior < rc.MinPosterior {
		return BlockPosteriorTooLow
	}
	if cand.BlastRadiusMB > rc.MaxBlastRadiusMB {
		return BlockBlastRadiusTooHigh
	}
	if rc.MaxTotalBlastRadiusMB != nil {
		c.mu.Lock()
		projected := c.totalBlastMB + cand.BlastRadiusMB
		c.mu.Unlock()
		if projected > *rc.MaxTotalBlastRadiusMB {
			return BlockTotalBlastRadiusTooHigh
		}
	}
	if cand.Action.IsKill() && int(c.killCount.Load()) >= rc.MaxKills {
		return BlockKillBudgetExhausted
	}
	cat := strings.ToLower(cand.Category)
	if rc.ExcludeCategories[cat] {
		return BlockCategoryExcluded
	}
	if len(rc.AllowCategories) > 0 && !rc.AllowCategories[cat] {
		return BlockCategoryNotAllowed
	}
	if rc.RequireKnownSignature && !cand.HasSignatureMatch {
		return BlockUnknownSignature
	}
	return BlockNone
}
