package inference

import (
	"fmt"
	"math"
)

// ReferenceClass identifies what baseline a KL comparison is made against.
type ReferenceClass int

const (
	ReferenceGlobal ReferenceClass = iota
	ReferenceCategory
	ReferenceSignature
	ReferenceHistorical
)

func (r ReferenceClass) String() string {
	switch r {
	case ReferenceGlobal:
		return "global"
	case ReferenceCategory:
		return "category"
	case ReferenceSignature:
		return "signature"
	case ReferenceHistorical:
		return "historical"
	default:
		return "unknown"
	}
}

// DeviationType names what kind of signal is being analyzed, for the
// human-readable description only; the analyzer itself is signal-agnostic.
type DeviationType int

const (
	DeviationCPUUsage DeviationType = iota
	DeviationMemoryUsage
	DeviationIOPattern
	DeviationNetworkActivity
	DeviationTiming
	DeviationGeneral
)

func (d DeviationType) String() string {
	switch d {
	case DeviationCPUUsage:
		return "CPU usage"
	case DeviationMemoryUsage:
		return "memory usage"
	case DeviationIOPattern:
		return "I/O pattern"
	case DeviationNetworkActivity:
		return "network activity"
	case DeviationTiming:
		return "timing"
	default:
		return "general"
	}
}

// AbnormalitySeverity ranks how unusual an observation is. Ordered from
// least to most severe so comparisons (">") work directly.
type AbnormalitySeverity int

const (
	SeverityNormal AbnormalitySeverity = iota
	SeverityMild
	SeverityModerate
	SeveritySevere
	SeverityCritical
)

func (s AbnormalitySeverity) String() string {
	switch s {
	case SeverityNormal:
		return "normal"
	case SeverityMild:
		return "mild"
	case SeverityModerate:
		return "moderate"
	case SeveritySevere:
		return "severe"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SeverityFromKL buckets a KL divergence value (nats) into a severity:
// normal < 0.1 < mild < 0.3 < moderate < 0.7 < severe < 1.5 < critical.
func SeverityFromKL(kl float64) AbnormalitySeverity {
	switch {
	case kl < 0.1:
		return SeverityNormal
	case kl < 0.3:
		return SeverityMild
	case kl < 0.7:
		return SeverityModerate
	case kl < 1.5:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// SeverityFromTailBound buckets a large-deviation tail probability bound
// into a severity (lower probability = more severe).
func SeverityFromTailBound(p float64) AbnormalitySeverity {
	switch {
	case p > 0.1:
		return SeverityNormal
	case p > 0.01:
		return SeverityMild
	case p > 0.001:
		return SeverityModerate
	case p > 0.0001:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// ReportedSeverity resolves the two independent severity ladders into the
// single top-level field KLResult reports: whichever of the two ranks more
// severe. The reference implementation computes both and never reconciles
// them into one field; this is the documented resolution (DESIGN.md).
func ReportedSeverity(fromKL, fromTailBound AbnormalitySeverity) AbnormalitySeverity {
	if fromTailBound > fromKL {
		return fromTailBound
	}
	return fromKL
}

// DeviationDirection is which way the observed rate differs from the
// reference rate.
type DeviationDirection int

const (
	DeviationHigher DeviationDirection = iota
	DeviationLower
	DeviationMatch
)

func (d DeviationDirection) String() string {
	switch d {
	case DeviationHigher:
		return "higher"
	case DeviationLower:
		return "lower"
	default:
		return "match"
	}
}

// KLConfig parametrises the streaming Bernoulli KL surprisal analyzer.
type KLConfig struct {
	MinSamples            int
	Smoothing             float64 // Jeffreys prior alpha, default 0.5
	AbnormalityThreshold   float64 // nats, default 0.5
	NEffFactor            float64 // default 1.0
	MinProb               float64 // default 1e-10
}

// DefaultKLConfig returns the exact defaults from the reference
// implementation: min_samples=10, smoothing=0.5 (Jeffreys), abnormality
// threshold 0.5 nats, n_eff_factor=1.0, min_prob=1e-10.
func DefaultKLConfig() KLConfig {
	return KLConfig{
		MinSamples:          10,
		Smoothing:            0.5,
		AbnormalityThreshold: 0.5,
		NEffFactor:            1.0,
		MinProb:               1e-10,
	}
}

// ErrInsufficientData is returned by Analyze before MinSamples observations
// have been recorded.
type ErrInsufficientData struct {
	Needed, Have int
}

func (e *ErrInsufficientData) Error() string {
	return fmt.Sprintf("kl: insufficient data: need %d, have %d", e.Needed, e.Have)
}

// ErrInvalidReferenceProbability is returned when a reference rate is
// outside (0, 1).
type ErrInvalidReferenceProbability struct{ Value float64 }

func (e *ErrInvalidReferenceProbability) Error() string {
	return fmt.Sprintf("kl: invalid reference probability: %v (must be in (0,1))", e.Value)
}

// KLEvidence is the ledger-facing summary of one KL analysis.
type KLEvidence struct {
	KLDivergence     float64
	KLDivergenceBits float64
	DeviationType    DeviationType
	Severity         AbnormalitySeverity
	ReferenceClass   ReferenceClass
	ObservedRate     float64
	ReferenceRate    float64
	NEff             float64
	Description      string
}

// KLResult is the full output of analyzing accumulated observations
// against a reference rate.
type KLResult struct {
	KLDivergence        float64
	KLDivergenceBits     float64
	SurprisalBits        float64
	RateBound            float64
	LogRateBound         float64
	ObservedRate         float64
	ReferenceRate        float64
	Direction            DeviationDirection
	N                    int
	NEff                 float64
	IsAbnormal           bool
	SeverityFromKL       AbnormalitySeverity
	SeverityFromTailBound AbnormalitySeverity
	Severity             AbnormalitySeverity // reported severity; see ReportedSeverity
	Evidence             KLEvidence
}

// KLAnalyzer is a streaming Bernoulli (observed-vs-reference) surprisal
// tracker: weighted successes and total weight accumulate across updates,
// and Analyze computes KL divergence, the large-deviation tail bound, and
// surprisal in bits against a caller-supplied reference rate (§4.3).
type KLAnalyzer struct {
	config KLConfig

	n           int
	totalWeight float64
	weightedK   float64
}

// NewKLAnalyzer constructs an analyzer with the given config.
func NewKLAnalyzer(config KLConfig) *KLAnalyzer {
	return &KLAnalyzer{config: config}
}

// Reset clears all accumulated observations.
func (a *KLAnalyzer) Reset() {
	a.n = 0
	a.totalWeight = 0
	a.weightedK = 0
}

// UpdateBernoulli records an unweighted binary observation.
func (a *KLAnalyzer) UpdateBernoulli(occurred bool) {
	a.UpdateWeighted(occurred, 1.0)
}

// UpdateWeighted records a weighted binary observation; negative weights
// are floored at zero.
func (a *KLAnalyzer) UpdateWeighted(occurred bool, weight float64) {
	if weight < 0 {
		weight = 0
	}
	a.n++
	a.totalWeight += weight
	if occurred {
		a.weightedK += weight
	}
}

// Len returns the number of observations recorded.
func (a *KLAnalyzer) Len() int { return a.n }

func (a *KLAnalyzer) smoothedRate() float64 {
	alpha := a.config.Smoothing
	return (a.weightedK + alpha) / (a.totalWeight + 2*alpha)
}

func (a *KLAnalyzer) effectiveN() float64 {
	return a.totalWeight * a.config.NEffFactor
}

// KLDivergenceBernoulli computes D_KL(p || q) for Bernoulli distributions,
// clamping p to [min_prob, 1-min_prob] and rejecting q outside (0, 1).
func (a *KLAnalyzer) KLDivergenceBernoulli(p, q float64) (float64, error) {
	if q <= 0 || q >= 1 {
		return 0, &ErrInvalidReferenceProbability{Value: q}
	}
	minP := a.config.MinProb
	p = clampF(p, minP, 1-minP)

	var term1, term2 float64
	if p > minP {
		term1 = p * math.Log(p/q)
	}
	if (1 - p) > minP {
		term2 = (1 - p) * math.Log((1-p)/(1-q))
	}
	kl := term1 + term2
	if math.IsNaN(kl) || math.IsInf(kl, 0) {
		return 0, fmt.Errorf("kl: non-finite result for p=%v q=%v", p, q)
	}
	if kl < 0 {
		kl = 0
	}
	return kl, nil
}

func (a *KLAnalyzer) rateFunctionBound(kl, nEff float64) (bound, logBound float64) {
	logBound = -nEff * kl
	bound = math.Min(math.Exp(logBound), 1.0)
	return bound, logBound
}

func (a *KLAnalyzer) surprisalBits(kl, nEff float64) float64 {
	return (nEff * kl) / math.Ln2
}

// Analyze runs the full KL surprisal pipeline against referenceRate,
// requiring at least MinSamples observations and a reference rate strictly
// inside (0, 1).
func (a *KLAnalyzer) Analyze(referenceRate float64) (KLResult, error) {
	if a.n < a.config.MinSamples {
		return KLResult{}, &ErrInsufficientData{Needed: a.config.MinSamples, Have: a.n}
	}
	if referenceRate <= 0 || referenceRate >= 1 {
		return KLResult{}, &ErrInvalidReferenceProbability{Value: referenceRate}
	}

	observedRate := a.smoothedRate()
	nEff := a.effectiveN()

	kl, err := a.KLDivergenceBernoulli(observedRate, referenceRate)
	if err != nil {
		return KLResult{}, err
	}
	klBits := kl / math.Ln2

	rateBound, logRateBound := a.rateFunctionBound(kl, nEff)
	surprisal := a.surprisalBits(kl, nEff)

	direction := DeviationMatch
	switch {
	case math.Abs(observedRate-referenceRate) < 0.01:
		direction = DeviationMatch
	case observedRate > referenceRate:
		direction = DeviationHigher
	default:
		direction = DeviationLower
	}

	isAbnormal := kl > a.config.AbnormalityThreshold
	sevKL := SeverityFromKL(kl)
	sevTail := SeverityFromTailBound(rateBound)
	reported := ReportedSeverity(sevKL, sevTail)

	description := fmt.Sprintf(
		"observed rate %.2f%% vs reference %.2f%% (%s by %.1fpp); KL=%.3f nats (%.2f bits); tail bound=%.2e",
		observedRate*100, referenceRate*100, direction, math.Abs(observedRate-referenceRate)*100, kl, klBits, rateBound,
	)

	evidence := KLEvidence{
		KLDivergence:     kl,
		KLDivergenceBits: klBits,
		DeviationType:    DeviationGeneral,
		Severity:         reported,
		ReferenceClass:   ReferenceGlobal,
		ObservedRate:     observedRate,
		ReferenceRate:    referenceRate,
		NEff:             nEff,
		Description:      description,
	}

	return KLResult{
		KLDivergence:          kl,
		KLDivergenceBits:      klBits,
		SurprisalBits:         surprisal,
		RateBound:             rateBound,
		LogRateBound:          logRateBound,
		ObservedRate:          observedRate,
		ReferenceRate:         referenceRate,
		Direction:             direction,
		N:                     a.n,
		NEff:                  nEff,
		IsAbnormal:            isAbnormal,
		SeverityFromKL:        sevKL,
		SeverityFromTailBound: sevTail,
		Severity:              reported,
		Evidence:              evidence,
	}, nil
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
