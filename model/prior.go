package model

import "math"

// BetaParams is a Beta(alpha, beta) distribution's natural parameters, used
// for every Bernoulli feature (CPU-busy, orphan, TTY, network, I/O-active).
type BetaParams struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// MinBetaParam is the floor every Beta parameter must stay at or above after
// any scaling operation (merge, baseline normalisation).
const MinBetaParam = 0.01

// Clamped returns a copy with Alpha/Beta floored at MinBetaParam.
func (b BetaParams) Clamped() BetaParams {
	if b.Alpha < MinBetaParam {
		b.Alpha = MinBetaParam
	}
	if b.Beta < MinBetaParam {
		b.Beta = MinBetaParam
	}
	return b
}

// Mean returns the Beta distribution's mean, alpha/(alpha+beta).
func (b BetaParams) Mean() float64 {
	total := b.Alpha + b.Beta
	if total <= 0 {
		return 0.5
	}
	return b.Alpha / total
}

// Valid reports whether both parameters are finite and at least MinBetaParam.
func (b BetaParams) Valid() bool {
	return isFinitePositive(b.Alpha) && isFinitePositive(b.Beta) &&
		b.Alpha >= MinBetaParam && b.Beta >= MinBetaParam
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// GammaParams is a Gamma(shape, rate) distribution's parameters, used for
// runtime and hazard-rate evidence.
type GammaParams struct {
	Shape float64 `json:"shape"`
	Rate  float64 `json:"rate"`
}

// Mean returns shape/rate, or 0 if rate is non-positive.
func (g GammaParams) Mean() float64 {
	if g.Rate <= 0 {
		return 0
	}
	return g.Shape / g.Rate
}

func (g GammaParams) Valid() bool {
	return isFinitePositive(g.Shape) && isFinitePositive(g.Rate) && g.Shape > 0 && g.Rate > 0
}

// BernoulliFeature names the Beta-distributed binary signals tracked per class.
type BernoulliFeature int

const (
	FeatureCPUBusy BernoulliFeature = iota
	FeatureOrphan
	FeatureTTY
	FeatureNetwork
	FeatureIOActive
	// FeatureIntentTTYForeground through FeatureIntentRepoCwd are the
	// user-intent context features (tty foreground ownership, terminal
	// multiplexer membership, SSH client ancestry, login-shell ancestry,
	// and "cwd inside a VCS repo"), fed in by the userintent collector
	// under evidence IDs intent.tty.fg / intent.mux.member /
	// intent.ssh.client / intent.shell.login / intent.repo.cwd.
	FeatureIntentTTYForeground
	FeatureIntentMuxMember
	FeatureIntentSSHClient
	FeatureIntentShellLogin
	FeatureIntentRepoCwd
)

var bernoulliFeatureOrder = [...]BernoulliFeature{
	FeatureCPUBusy, FeatureOrphan, FeatureTTY, FeatureNetwork, FeatureIOActive,
	FeatureIntentTTYForeground, FeatureIntentMuxMember, FeatureIntentSSHClient,
	FeatureIntentShellLogin, FeatureIntentRepoCwd,
}

// NumBernoulliFeatures is the number of Beta-distributed binary features.
const NumBernoulliFeatures = len(bernoulliFeatureOrder)

// AllBernoulliFeatures returns every Bernoulli feature in stable order.
func AllBernoulliFeatures() []BernoulliFeature {
	out := make([]BernoulliFeature, len(bernoulliFeatureOrder))
	copy(out, bernoulliFeatureOrder[:])
	return out
}

func (f BernoulliFeature) String() string {
	switch f {
	case FeatureCPUBusy:
		return "cpu_busy"
	case FeatureOrphan:
		return "orphan"
	case FeatureTTY:
		return "tty"
	case FeatureNetwork:
		return "network"
	case FeatureIOActive:
		return "io_active"
	case FeatureIntentTTYForeground:
		return "intent.tty.fg"
	case FeatureIntentMuxMember:
		return "intent.mux.member"
	case FeatureIntentSSHClient:
		return "intent.ssh.client"
	case FeatureIntentShellLogin:
		return "intent.shell.login"
	case FeatureIntentRepoCwd:
		return "intent.repo.cwd"
	default:
		return "unknown"
	}
}

// ClassPriorParameters holds every prior distribution for a single class.
type ClassPriorParameters struct {
	PriorProbability float64                          `json:"prior_probability"`
	Beta             map[string]BetaParams            `json:"beta"` // keyed by BernoulliFeature.String()
	Runtime          GammaParams                       `json:"runtime"`
	Hazard           GammaParams                       `json:"hazard"`
	CommandCounts    [NumCommandCategories]float64     `json:"command_counts"`
	CwdCounts        [NumCwdCategories]float64          `json:"cwd_counts"`
}

// BetaFor returns the Beta parameters for a feature, or a flat (1,1) prior
// if the class has no entry for it yet.
func (p ClassPriorParameters) BetaFor(f BernoulliFeature) BetaParams {
	if p.Beta == nil {
		return BetaParams{Alpha: 1, Beta: 1}
	}
	if bp, ok := p.Beta[f.String()]; ok {
		return bp
	}
	return BetaParams{Alpha: 1, Beta: 1}
}

// PriorParameters holds the per-class prior parameter sets for all classes.
// A valid set of PriorProbability values sums to 1 within the tolerance the
// caller specifies (policy load: 1e-6; bundle import: 1e-2, per spec §3/§4.8).
type PriorParameters struct {
	Classes map[string]ClassPriorParameters `json:"classes"` // keyed by Class.String()
}

// ClassPrior returns the prior parameters for a class, or a zero value.
func (p PriorParameters) ClassPrior(c Class) ClassPriorParameters {
	if p.Classes == nil {
		return ClassPriorParameters{}
	}
	return p.Classes[c.String()]
}

// SumProbabilities returns the sum of the four classes' prior probabilities.
func (p PriorParameters) SumProbabilities() float64 {
	var sum float64
	for _, c := range AllClasses() {
		sum += p.ClassPrior(c).PriorProbability
	}
	return sum
}

// ValidSum reports whether probabilities sum to 1 within tol.
func (p PriorParameters) ValidSum(tol float64) bool {
	return math.Abs(p.SumProbabilities()-1.0) <= tol
}
