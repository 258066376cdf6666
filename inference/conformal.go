package inference

import (
	"fmt"
	"math"
	"sort"
)

// ConformalConfig parametrises split/Mondrian conformal predictors.
type ConformalConfig struct {
	Alpha         float64
	MaxWindowSize int
	MinSamples    int
	Blocked       bool
	BlockSize     int
	Mondrian      bool
}

// DefaultConformalConfig is 95% coverage: alpha=0.05, 1000-sample window,
// 10-sample minimum, no blocking, no Mondrian stratification.
func DefaultConformalConfig() ConformalConfig {
	return ConformalConfig{
		Alpha:         0.05,
		MaxWindowSize: 1000,
		MinSamples:    10,
	}
}

// Coverage90Config is a 90%-coverage preset.
func Coverage90Config() ConformalConfig {
	c := DefaultConformalConfig()
	c.Alpha = 0.10
	return c
}

// Coverage99Config is a 99%-coverage preset, requiring more calibration data.
func Coverage99Config() ConformalConfig {
	c := DefaultConformalConfig()
	c.Alpha = 0.01
	c.MinSamples = 30
	return c
}

// ErrInvalidAlpha is returned when alpha is outside (0, 1).
type ErrInvalidAlpha struct{ Alpha float64 }

func (e *ErrInvalidAlpha) Error() string {
	return fmt.Sprintf("conformal: invalid alpha %v, must be in (0,1)", e.Alpha)
}

// ConformalInterval is a regression conformal prediction interval.
type ConformalInterval struct {
	Prediction   float64
	Lower        float64
	Upper        float64
	Quantile     float64
	Coverage     float64
	NCalibration int
	Valid        bool
}

// Width returns Upper-Lower.
func (i ConformalInterval) Width() float64 { return i.Upper - i.Lower }

// ConformalPredictionSet is a classification conformal prediction set.
type ConformalPredictionSet struct {
	Classes      []string
	PValues      []ClassPValue
	MostLikely   string
	Coverage     float64
	NCalibration int
	Valid        bool
}

// ClassPValue pairs a class label with its conformal p-value.
type ClassPValue struct {
	Class  string
	PValue float64
}

// ConformalEvidence is the ledger-facing summary of either predictor kind.
type ConformalEvidence struct {
	EvidenceType  string
	Coverage      float64
	IntervalWidth *float64
	SetSize       *int
	Threshold     float64
	NCalibration  int
}

// EvidenceFromInterval builds ledger evidence from a regression interval.
func EvidenceFromInterval(i ConformalInterval) ConformalEvidence {
	width := i.Width()
	return ConformalEvidence{
		EvidenceType:  "regression",
		Coverage:      i.Coverage,
		IntervalWidth: &width,
		Threshold:     i.Quantile,
		NCalibration:  i.NCalibration,
	}
}

// EvidenceFromPredictionSet builds ledger evidence from a classification set.
func EvidenceFromPredictionSet(p ConformalPredictionSet) ConformalEvidence {
	size := len(p.Classes)
	return ConformalEvidence{
		EvidenceType: "classification",
		Coverage:     p.Coverage,
		SetSize:      &size,
		Threshold:    1.0 - p.Coverage,
		NCalibration: p.NCalibration,
	}
}

// conformalQuantileIndex returns the zero-based index of the
// ceil((n+1)(1-alpha))-th smallest score among n sorted scores, clamped to
// [0, n-1].
func conformalQuantileIndex(n int, alpha float64) int {
	idx := int(math.Ceil(float64(n+1) * (1 - alpha)))
	idx--
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

// ConformalRegressor is a split conformal regressor over absolute residual
// scores: calibrate with (prediction, actual) pairs, then predict an
// interval with finite-sample marginal coverage 1-alpha.
type ConformalRegressor struct {
	config ConformalConfig
	scores []float64
}

// NewConformalRegressor constructs a regressor with the given config.
func NewConformalRegressor(config ConformalConfig) *ConformalRegressor {
	return &ConformalRegressor{config: config}
}

// Calibrate adds one (prediction, actual) pair, trimming to MaxWindowSize.
func (r *ConformalRegressor) Calibrate(prediction, actual float64) {
	r.scores = append(r.scores, math.Abs(actual-prediction))
	if r.config.MaxWindowSize > 0 && len(r.scores) > r.config.MaxWindowSize {
		r.scores = r.scores[1:]
	}
}

// CalibrateBatch calibrates on parallel prediction/actual slices.
func (r *ConformalRegressor) CalibrateBatch(predictions, actuals []float64) {
	n := len(predictions)
	if len(actuals) < n {
		n = len(actuals)
	}
	for i := 0; i < n; i++ {
		r.Calibrate(predictions[i], actuals[i])
	}
}

// NSamples returns the number of calibration scores held.
func (r *ConformalRegressor) NSamples() int { return len(r.scores) }

// ConformalQuantile returns the conformal quantile, or false if fewer than
// MinSamples calibration points have been recorded.
func (r *ConformalRegressor) ConformalQuantile() (float64, bool) {
	if len(r.scores) < r.config.MinSamples {
		return 0, false
	}
	sorted := append([]float64(nil), r.scores...)
	sort.Float64s(sorted)
	idx := conformalQuantileIndex(len(sorted), r.config.Alpha)
	return sorted[idx], true
}

// Predict returns the conformal interval around prediction.
func (r *ConformalRegressor) Predict(prediction float64) ConformalInterval {
	valid := len(r.scores) >= r.config.MinSamples
	quantile, ok := r.ConformalQuantile()
	if !ok {
		quantile = math.Inf(1)
	}
	return ConformalInterval{
		Prediction:   prediction,
		Lower:        prediction - quantile,
		Upper:        prediction + quantile,
		Quantile:     quantile,
		Coverage:     1 - r.config.Alpha,
		NCalibration: len(r.scores),
		Valid:        valid,
	}
}

// Reset clears all calibration scores.
func (r *ConformalRegressor) Reset() { r.scores = nil }

// EmpiricalCoverage reports the fraction of (prediction, actual) pairs
// that fall within the current conformal quantile.
func (r *ConformalRegressor) EmpiricalCoverage(predictions, actuals []float64) float64 {
	if len(predictions) == 0 {
		return 0
	}
	quantile, ok := r.ConformalQuantile()
	if !ok {
		return 0
	}
	n := len(predictions)
	if len(actuals) < n {
		n = len(actuals)
	}
	covered := 0
	for i := 0; i < n; i++ {
		if math.Abs(actuals[i]-predictions[i]) <= quantile {
			covered++
		}
	}
	return float64(covered) / float64(len(predictions))
}

// ConformalClassifier is a (optionally Mondrian/label-conditional)
// classification conformal predictor over nonconformity scores 1-P(true).
type ConformalClassifier struct {
	config      ConformalConfig
	classScores map[string][]float64
	allScores   []float64
	classes     []string
}

// NewConformalClassifier constructs a classifier with the given config.
func NewConformalClassifier(config ConformalConfig) *ConformalClassifier {
	return &ConformalClassifier{
		config:      config,
		classScores: make(map[string][]float64),
	}
}

// Calibrate adds one calibration point: the true class label and the
// predicted probability for every class.
func (c *ConformalClassifier) Calibrate(trueClass string, classProbs []ClassPValue) {
	trueProb := 0.0
	for _, cp := range classProbs {
		if cp.Class == trueClass {
			trueProb = cp.PValue
			break
		}
	}
	score := 1.0 - trueProb

	if !containsString(c.classes, trueClass) {
		c.classes = append(c.classes, trueClass)
	}
	c.allScores = append(c.allScores, score)
	c.classScores[trueClass] = append(c.classScores[trueClass], score)

	if c.config.MaxWindowSize > 0 && len(c.allScores) > c.config.MaxWindowSize {
		c.allScores = c.allScores[1:]
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// NSamples returns the number of calibration scores held.
func (c *ConformalClassifier) NSamples() int { return len(c.allScores) }

// Classes returns every class label seen during calibration.
func (c *ConformalClassifier) Classes() []string { return c.classes }

func (c *ConformalClassifier) pValue(class string, score float64) float64 {
	var scores []float64
	if c.config.Mondrian {
		s, ok := c.classScores[class]
		if !ok {
			return 1.0
		}
		scores = s
	} else {
		scores = c.allScores
	}
	if len(scores) == 0 {
		return 1.0
	}
	count := 0
	for _, s := range scores {
		if s >= score {
			count++
		}
	}
	return float64(1+count) / float64(len(scores)+1)
}

// Predict returns the conformal prediction set: classes whose p-value
// exceeds alpha, accompanied by every class's p-value and the most likely
// (highest predicted-probability) class.
func (c *ConformalClassifier) Predict(classProbs []ClassPValue) ConformalPredictionSet {
	valid := len(c.allScores) >= c.config.MinSamples

	pValues := make([]ClassPValue, len(classProbs))
	for i, cp := range classProbs {
		score := 1.0 - cp.PValue
		pValues[i] = ClassPValue{Class: cp.Class, PValue: c.pValue(cp.Class, score)}
	}
	sort.SliceStable(pValues, func(i, j int) bool { return pValues[i].PValue > pValues[j].PValue })

	var predictionSet []string
	for _, pv := range pValues {
		if pv.PValue > c.config.Alpha {
			predictionSet = append(predictionSet, pv.Class)
		}
	}

	mostLikely := ""
	bestProb := math.Inf(-1)
	for _, cp := range classProbs {
		if cp.PValue > bestProb {
			bestProb = cp.PValue
			mostLikely = cp.Class
		}
	}

	return ConformalPredictionSet{
		Classes:      predictionSet,
		PValues:      pValues,
		MostLikely:   mostLikely,
		Coverage:     1 - c.config.Alpha,
		NCalibration: len(c.allScores),
		Valid:        valid,
	}
}

// Reset clears all calibration scores.
func (c *ConformalClassifier) Reset() {
	c.allScores = nil
	c.classScores = make(map[string][]float64)
}

// AdaptiveConformalRegressor wraps ConformalRegressor with an online-
// adjusted alpha: after every feedback point, alpha moves toward the rate
// that would have produced the target empirical coverage over a trailing
// error window, clamped to [0.01, 0.5].
type AdaptiveConformalRegressor struct {
	inner          *ConformalRegressor
	targetCoverage float64
	adaptiveAlpha  float64
	learningRate   float64
	recentErrors   []bool
	errorWindow    int
}

// NewAdaptiveConformalRegressor constructs an adaptive regressor; the
// trailing error window defaults to 100 points, matching the reference
// implementation.
func NewAdaptiveConformalRegressor(config ConformalConfig, learningRate float64) *AdaptiveConformalRegressor {
	return &AdaptiveConformalRegressor{
		inner:          NewConformalRegressor(config),
		targetCoverage: 1 - config.Alpha,
		adaptiveAlpha:  config.Alpha,
		learningRate:   learningRate,
		errorWindow:    100,
	}
}

// CalibrateWithFeedback records whether the previous prediction would have
// covered actual, adapts alpha from the trailing error rate, then adds the
// calibration point.
func (a *AdaptiveConformalRegressor) CalibrateWithFeedback(prediction, actual float64) {
	if a.inner.NSamples() >= a.inner.config.MinSamples {
		interval := a.inner.Predict(prediction)
		covered := actual >= interval.Lower && actual <= interval.Upper

		a.recentErrors = append(a.recentErrors, !covered)
		if len(a.recentErrors) > a.errorWindow {
			a.recentErrors = a.recentErrors[1:]
		}

		empiricalErrorRate := errorRate(a.recentErrors)
		targetErrorRate := 1 - a.targetCoverage
		adjustment := a.learningRate * (empiricalErrorRate - targetErrorRate)
		a.adaptiveAlpha = clampF(a.adaptiveAlpha+adjustment, 0.01, 0.5)
	}
	a.inner.Calibrate(prediction, actual)
}

func errorRate(errors []bool) float64 {
	if len(errors) == 0 {
		return 0
	}
	count := 0
	for _, e := range errors {
		if e {
			count++
		}
	}
	return float64(count) / float64(len(errors))
}

// Predict returns the interval using the current adaptive alpha.
func (a *AdaptiveConformalRegressor) Predict(prediction float64) ConformalInterval {
	n := a.inner.NSamples()
	if n < a.inner.config.MinSamples {
		return ConformalInterval{
			Prediction:   prediction,
			Lower:        math.Inf(-1),
			Upper:        math.Inf(1),
			Quantile:     math.Inf(1),
			Coverage:     1 - a.adaptiveAlpha,
			NCalibration: n,
			Valid:        false,
		}
	}

	sorted := append([]float64(nil), a.inner.scores...)
	sort.Float64s(sorted)
	idx := conformalQuantileIndex(len(sorted), a.adaptiveAlpha)
	quantile := sorted[idx]

	return ConformalInterval{
		Prediction:   prediction,
		Lower:        prediction - quantile,
		Upper:        prediction + quantile,
		Quantile:     quantile,
		Coverage:     1 - a.adaptiveAlpha,
		NCalibration: n,
		Valid:        true,
	}
}

// AdaptiveAlpha returns the current online-adjusted alpha.
func (a *AdaptiveConformalRegressor) AdaptiveAlpha() float64 { return a.adaptiveAlpha }

// EmpiricalCoverage returns 1 minus the trailing error rate, or the target
// coverage if no feedback has been recorded yet.
func (a *AdaptiveConformalRegressor) EmpiricalCoverage() float64 {
	if len(a.recentErrors) == 0 {
		return a.targetCoverage
	}
	return 1 - errorRate(a.recentErrors)
}
