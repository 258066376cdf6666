package inference

import (
	"fmt"
	"math"

	"github.com/joyshmitz/process-triage-sub001/mathx"
)

// TestStatistic identifies a posterior-predictive-check test statistic.
type TestStatistic int

const (
	StatMean TestStatistic = iota
	StatVariance
	StatRunLengths
	StatChangePoints
	StatMaximum
	StatMinimum
	StatAutocorrelation
	StatSkewness
)

func (s TestStatistic) String() string {
	switch s {
	case StatMean:
		return "mean"
	case StatVariance:
		return "variance"
	case StatRunLengths:
		return "run_lengths"
	case StatChangePoints:
		return "change_points"
	case StatMaximum:
		return "maximum"
	case StatMinimum:
		return "minimum"
	case StatAutocorrelation:
		return "autocorrelation"
	case StatSkewness:
		return "skewness"
	default:
		return "unknown"
	}
}

// PPCFallbackAction is the corrective action recommended when a check fails.
type PPCFallbackAction int

const (
	FallbackNone PPCFallbackAction = iota
	FallbackWidenPriors
	FallbackUseRobustLayers
	FallbackReduceLearningRate
)

func (f PPCFallbackAction) String() string {
	switch f {
	case FallbackWidenPriors:
		return "widen_priors"
	case FallbackUseRobustLayers:
		return "use_robust_layers"
	case FallbackReduceLearningRate:
		return "reduce_learning_rate"
	default:
		return "none"
	}
}

// PPCConfig parametrises a posterior predictive checker.
type PPCConfig struct {
	NSamples               int
	AlphaThreshold          float64
	MinObservations         int
	Statistics              []TestStatistic
	TwoSided                bool
	FailureConfidencePenalty float64
}

// DefaultPPCConfig mirrors the reference defaults: 1000 samples, alpha
// threshold 0.05, minimum 10 observations, the four default statistics
// (mean/variance/run-lengths/change-points), two-sided p-values, and a
// 0.1 confidence penalty per failed check.
func DefaultPPCConfig() PPCConfig {
	return PPCConfig{
		NSamples:                1000,
		AlphaThreshold:          0.05,
		MinObservations:         10,
		Statistics:              []TestStatistic{StatMean, StatVariance, StatRunLengths, StatChangePoints},
		TwoSided:                true,
		FailureConfidencePenalty: 0.1,
	}
}

// StatisticCheck is the result of one test statistic's PPC comparison.
type StatisticCheck struct {
	Statistic     TestStatistic
	ObservedValue float64
	ExpectedValue float64
	PValue        float64
	Passed        bool
}

// PPCResult is the outcome of running every configured check.
type PPCResult struct {
	Passed               bool
	NObservations        int
	NSamples             int
	Checks               []StatisticCheck
	FailedChecks         []StatisticCheck
	ActionTaken          PPCFallbackAction
	ConfidenceAdjustment float64
	Summary              string
}

// PPCEvidence is the ledger-facing summary of a PPCResult.
type PPCEvidence struct {
	Passed            bool
	FailedCount       int
	FailedStatistics  []string
	MinPValue         float64
	ConfidencePenalty float64
	FallbackAction    string
}

// ToEvidence converts a PPCResult into its ledger-facing summary.
func (r PPCResult) ToEvidence() PPCEvidence {
	failedNames := make([]string, 0, len(r.FailedChecks))
	for _, c := range r.FailedChecks {
		failedNames = append(failedNames, c.Statistic.String())
	}
	minP := 1.0
	for _, c := range r.Checks {
		if c.PValue < minP {
			minP = c.PValue
		}
	}
	penalty := 0.0
	if !r.Passed {
		penalty = math.Abs(r.ConfidenceAdjustment)
	}
	return PPCEvidence{
		Passed:            r.Passed,
		FailedCount:       len(r.FailedChecks),
		FailedStatistics:  failedNames,
		MinPValue:         minP,
		ConfidencePenalty: penalty,
		FallbackAction:    r.ActionTaken.String(),
	}
}

// ErrPPCInsufficientData is returned when fewer than MinObservations values
// are supplied.
type ErrPPCInsufficientData struct{ Needed, Have int }

func (e *ErrPPCInsufficientData) Error() string {
	return fmt.Sprintf("ppc: insufficient observations: need %d, have %d", e.Needed, e.Have)
}

// ErrPPCInvalidParameters is returned when the posterior parameters passed
// to a Check* method are out of domain.
type ErrPPCInvalidParameters struct{ Message string }

func (e *ErrPPCInvalidParameters) Error() string { return "ppc: invalid parameters: " + e.Message }

// PPCChecker runs posterior predictive checks against Beta, Gamma, or
// Normal posterior predictive distributions.
type PPCChecker struct {
	config PPCConfig
}

// NewPPCChecker constructs a checker with the given configuration.
func NewPPCChecker(config PPCConfig) *PPCChecker {
	return &PPCChecker{config: config}
}

// CheckBeta compares observations (e.g. CPU or memory fraction) against a
// Beta(posteriorAlpha, posteriorBeta) posterior predictive.
func (c *PPCChecker) CheckBeta(observations []float64, posteriorAlpha, posteriorBeta float64) (PPCResult, error) {
	if len(observations) < c.config.MinObservations {
		return PPCResult{}, &ErrPPCInsufficientData{Needed: c.config.MinObservations, Have: len(observations)}
	}
	if posteriorAlpha <= 0 || posteriorBeta <= 0 {
		return PPCResult{}, &ErrPPCInvalidParameters{Message: fmt.Sprintf("beta parameters must be positive: alpha=%v beta=%v", posteriorAlpha, posteriorBeta)}
	}
	samples := c.sampleBetaPredictive(posteriorAlpha, posteriorBeta, len(observations), c.config.NSamples)
	return c.runChecks(observations, samples), nil
}

// CheckGamma compares observations (waiting times, durations, rates)
// against a Gamma(posteriorShape, posteriorRate) posterior predictive.
func (c *PPCChecker) CheckGamma(observations []float64, posteriorShape, posteriorRate float64) (PPCResult, error) {
	if len(observations) < c.config.MinObservations {
		return PPCResult{}, &ErrPPCInsufficientData{Needed: c.config.MinObservations, Have: len(observations)}
	}
	if posteriorShape <= 0 || posteriorRate <= 0 {
		return PPCResult{}, &ErrPPCInvalidParameters{Message: fmt.Sprintf("gamma parameters must be positive: shape=%v rate=%v", posteriorShape, posteriorRate)}
	}
	samples := c.sampleGammaPredictive(posteriorShape, posteriorRate, len(observations), c.config.NSamples)
	return c.runChecks(observations, samples), nil
}

// CheckNormal compares observations (log-transformed metrics, residuals)
// against a Normal(posteriorMean, posteriorVar) posterior predictive.
func (c *PPCChecker) CheckNormal(observations []float64, posteriorMean, posteriorVar float64) (PPCResult, error) {
	if len(observations) < c.config.MinObservations {
		return PPCResult{}, &ErrPPCInsufficientData{Needed: c.config.MinObservations, Have: len(observations)}
	}
	if posteriorVar <= 0 {
		return PPCResult{}, &ErrPPCInvalidParameters{Message: fmt.Sprintf("normal variance must be positive: var=%v", posteriorVar)}
	}
	samples := c.sampleNormalPredictive(posteriorMean, posteriorVar, len(observations), c.config.NSamples)
	return c.runChecks(observations, samples), nil
}

func (c *PPCChecker) runChecks(observations []float64, ppSamples [][]float64) PPCResult {
	checks := make([]StatisticCheck, 0, len(c.config.Statistics))
	var failedChecks []StatisticCheck

	for _, stat := range c.config.Statistics {
		observed := c.computeStatistic(observations, stat)
		simulated := make([]float64, len(ppSamples))
		for i, sample := range ppSamples {
			simulated[i] = c.computeStatistic(sample, stat)
		}

		pValue := c.computePValue(observed, simulated)
		expected := mean(simulated)
		passed := pValue >= c.config.AlphaThreshold

		check := StatisticCheck{
			Statistic:     stat,
			ObservedValue: observed,
			ExpectedValue: expected,
			PValue:        pValue,
			Passed:        passed,
		}
		if !passed {
			failedChecks = append(failedChecks, check)
		}
		checks = append(checks, check)
	}

	passed := len(failedChecks) == 0
	action := c.determineFallback(failedChecks)
	confidenceAdjustment := 0.0
	if !passed {
		confidenceAdjustment = -c.config.FailureConfidencePenalty * float64(len(failedChecks))
	}

	summary := "All PPC checks passed"
	if !passed {
		names := make([]string, len(failedChecks))
		for i, fc := range failedChecks {
			names[i] = fc.Statistic.String()
		}
		summary = fmt.Sprintf("PPC failed on %s: action=%s", joinNames(names), action)
	}

	return PPCResult{
		Passed:               passed,
		NObservations:        len(observations),
		NSamples:             len(ppSamples),
		Checks:               checks,
		FailedChecks:         failedChecks,
		ActionTaken:          action,
		ConfidenceAdjustment: confidenceAdjustment,
		Summary:              summary,
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func (c *PPCChecker) computeStatistic(data []float64, stat TestStatistic) float64 {
	if len(data) == 0 {
		return 0
	}
	switch stat {
	case StatMean:
		return mean(data)
	case StatVariance:
		return variance(data)
	case StatRunLengths:
		return c.maxRunLength(data)
	case StatChangePoints:
		return c.countChangePoints(data)
	case StatMaximum:
		return maxOf(data)
	case StatMinimum:
		return minOf(data)
	case StatAutocorrelation:
		return c.autocorrelationLag1(data)
	case StatSkewness:
		return c.skewness(data)
	default:
		return 0
	}
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	m := mean(data)
	var sumSq float64
	for _, v := range data {
		sumSq += (v - m) * (v - m)
	}
	return sumSq / float64(len(data)-1)
}

func maxOf(data []float64) float64 {
	out := math.Inf(-1)
	for _, v := range data {
		if v > out {
			out = v
		}
	}
	return out
}

func minOf(data []float64) float64 {
	out := math.Inf(1)
	for _, v := range data {
		if v < out {
			out = v
		}
	}
	return out
}

func (c *PPCChecker) maxRunLength(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := mean(data)
	maxRun, currentRun := 0, 0
	var aboveMean *bool

	for _, x := range data {
		currentAbove := x > m
		switch {
		case aboveMean == nil:
			aboveMean = &currentAbove
			currentRun = 1
		case *aboveMean == currentAbove:
			currentRun++
		default:
			if currentRun > maxRun {
				maxRun = currentRun
			}
			currentRun = 1
			aboveMean = &currentAbove
		}
	}
	if currentRun > maxRun {
		maxRun = currentRun
	}
	return float64(maxRun)
}

func (c *PPCChecker) countChangePoints(data []float64) float64 {
	n := len(data)
	if n < 4 {
		return 0
	}
	m := mean(data)
	var varSum float64
	for _, v := range data {
		varSum += (v - m) * (v - m)
	}
	stdDev := math.Sqrt(varSum / float64(n))
	if stdDev < 1e-10 {
		return 0
	}

	window := 3
	if n/3 < window {
		window = n / 3
	}
	threshold := 2.0 * stdDev
	changePoints := 0

	for i := window; i < n-window; i++ {
		leftMean := mean(data[i-window : i])
		rightMean := mean(data[i : i+window])
		if math.Abs(rightMean-leftMean) > threshold {
			changePoints++
		}
	}
	return float64(changePoints)
}

func (c *PPCChecker) autocorrelationLag1(data []float64) float64 {
	if len(data) < 3 {
		return 0
	}
	m := mean(data)
	var varSum float64
	for _, v := range data {
		varSum += (v - m) * (v - m)
	}
	if varSum < 1e-10 {
		return 0
	}
	var cov float64
	for i := 0; i+1 < len(data); i++ {
		cov += (data[i] - m) * (data[i+1] - m)
	}
	return cov / varSum
}

func (c *PPCChecker) skewness(data []float64) float64 {
	n := float64(len(data))
	if n < 3 {
		return 0
	}
	m := mean(data)
	var varSum float64
	for _, v := range data {
		varSum += (v - m) * (v - m)
	}
	v := varSum / n
	if v < 1e-10 {
		return 0
	}
	stdDev := math.Sqrt(v)
	var m3 float64
	for _, x := range data {
		z := (x - m) / stdDev
		m3 += z * z * z
	}
	return m3 / n
}

// computePValue computes P(T(sim) >= T(obs)), or the two-sided equivalent,
// with the usual +1/+1 add-one smoothing so the p-value is never exactly 0.
func (c *PPCChecker) computePValue(observed float64, simulated []float64) float64 {
	n := float64(len(simulated))
	if n == 0 {
		return 1.0
	}
	if c.config.TwoSided {
		simMean := mean(simulated)
		obsDist := math.Abs(observed - simMean)
		count := 0
		for _, x := range simulated {
			if math.Abs(x-simMean) >= obsDist {
				count++
			}
		}
		return (float64(count) + 1.0) / (n + 1.0)
	}
	count := 0
	for _, x := range simulated {
		if x >= observed {
			count++
		}
	}
	return (float64(count) + 1.0) / (n + 1.0)
}

func (c *PPCChecker) determineFallback(failedChecks []StatisticCheck) PPCFallbackAction {
	if len(failedChecks) == 0 {
		return FallbackNone
	}
	failed := make(map[TestStatistic]bool, len(failedChecks))
	for _, fc := range failedChecks {
		failed[fc.Statistic] = true
	}

	if failed[StatVariance] || failed[StatSkewness] {
		return FallbackWidenPriors
	}
	if failed[StatMaximum] || failed[StatMinimum] {
		return FallbackUseRobustLayers
	}
	if failed[StatAutocorrelation] || failed[StatRunLengths] {
		return FallbackReduceLearningRate
	}
	if failed[StatChangePoints] {
		return FallbackWidenPriors
	}
	return FallbackWidenPriors
}

func (c *PPCChecker) sampleBetaPredictive(alpha, beta float64, nObs, nSamples int) [][]float64 {
	samples := make([][]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		sample := make([]float64, nObs)
		for j := 0; j < nObs; j++ {
			u := mathx.QuasiRandom(i*nObs + j)
			sample[j] = mathx.BetaQuantile(u, alpha, beta)
		}
		samples[i] = sample
	}
	return samples
}

func (c *PPCChecker) sampleGammaPredictive(shape, rate float64, nObs, nSamples int) [][]float64 {
	samples := make([][]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		sample := make([]float64, nObs)
		for j := 0; j < nObs; j++ {
			u := mathx.QuasiRandom(i*nObs + j)
			sample[j] = mathx.GammaQuantile(u, shape, rate)
		}
		samples[i] = sample
	}
	return samples
}

func (c *PPCChecker) sampleNormalPredictive(mean, variance float64, nObs, nSamples int) [][]float64 {
	stdDev := math.Sqrt(variance)
	samples := make([][]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		sample := make([]float64, nObs)
		for j := 0; j < nObs; j++ {
			u := mathx.QuasiRandom(i*nObs + j)
			z := mathx.NormalQuantile(u)
			sample[j] = mean + stdDev*z
		}
		samples[i] = sample
	}
	return samples
}
