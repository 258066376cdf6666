package inference

import (
	"fmt"
	"math"
)

// Regime is a process-behaviour mode in the IMM regime-switching filter
// bank. Index 0-3 are the four standard regimes; anything else is a custom
// numeric regime.
type Regime int

const (
	RegimeIdle Regime = iota
	RegimeActive
	RegimeElevated
	RegimeStuck
)

// RegimeCustom constructs a custom regime from an index >= 4.
func RegimeCustom(idx int) Regime { return Regime(idx) }

func (r Regime) String() string {
	switch r {
	case RegimeIdle:
		return "idle"
	case RegimeActive:
		return "active"
	case RegimeElevated:
		return "elevated"
	case RegimeStuck:
		return "stuck"
	default:
		return "custom"
	}
}

// ImmConfig parametrises one IMM filter bank: a Markov transition matrix
// over modes, per-mode process noise and state-transition coefficients, a
// shared measurement noise, and the smoothing/threshold knobs controlling
// mode-probability updates and regime-change detection.
type ImmConfig struct {
	NumModes              int
	TransitionMatrix      [][]float64
	InitialModeProbs      []float64
	ProcessNoise          []float64
	MeasurementNoise      float64
	StateTransition       []float64
	RegimeChangeThreshold float64
	MinModeProbability    float64
	ProbabilitySmoothing  float64
}

// TwoRegimeDefault is the idle/active configuration with the exact
// constants from the reference implementation (no behavioural invention —
// spec.md leaves regime count and constants unspecified beyond the
// algorithm).
func TwoRegimeDefault() ImmConfig {
	return ImmConfig{
		NumModes: 2,
		TransitionMatrix: [][]float64{
			{0.95, 0.05},
			{0.10, 0.90},
		},
		InitialModeProbs:      []float64{0.7, 0.3},
		ProcessNoise:          []float64{0.01, 0.1},
		MeasurementNoise:      0.1,
		StateTransition:       []float64{0.95, 0.98},
		RegimeChangeThreshold: 0.3,
		MinModeProbability:    0.01,
		ProbabilitySmoothing:  0.1,
	}
}

// ThreeRegimeDefault is the idle/active/stuck configuration.
func ThreeRegimeDefault() ImmConfig {
	return ImmConfig{
		NumModes: 3,
		TransitionMatrix: [][]float64{
			{0.90, 0.08, 0.02},
			{0.05, 0.90, 0.05},
			{0.02, 0.08, 0.90},
		},
		InitialModeProbs:      []float64{0.5, 0.45, 0.05},
		ProcessNoise:          []float64{0.01, 0.1, 0.001},
		MeasurementNoise:      0.1,
		StateTransition:       []float64{0.95, 0.98, 0.999},
		RegimeChangeThreshold: 0.25,
		MinModeProbability:    0.01,
		ProbabilitySmoothing:  0.1,
	}
}

// FourRegimeDefault is the idle/active/elevated/stuck configuration.
func FourRegimeDefault() ImmConfig {
	return ImmConfig{
		NumModes: 4,
		TransitionMatrix: [][]float64{
			{0.85, 0.10, 0.04, 0.01},
			{0.08, 0.82, 0.08, 0.02},
			{0.02, 0.10, 0.83, 0.05},
			{0.01, 0.04, 0.05, 0.90},
		},
		InitialModeProbs:      []float64{0.4, 0.4, 0.15, 0.05},
		ProcessNoise:          []float64{0.01, 0.1, 0.5, 0.001},
		MeasurementNoise:      0.1,
		StateTransition:       []float64{0.95, 0.98, 0.99, 0.999},
		RegimeChangeThreshold: 0.2,
		MinModeProbability:    0.01,
		ProbabilitySmoothing:  0.1,
	}
}

// Validate checks dimensional consistency and that transition-matrix rows
// and initial mode probabilities each sum to 1 within 1e-6.
func (c ImmConfig) Validate() error {
	if c.NumModes == 0 {
		return fmt.Errorf("imm: num_modes must be > 0")
	}
	if len(c.TransitionMatrix) != c.NumModes {
		return fmt.Errorf("imm: transition matrix has %d rows, want %d", len(c.TransitionMatrix), c.NumModes)
	}
	for i, row := range c.TransitionMatrix {
		if len(row) != c.NumModes {
			return fmt.Errorf("imm: transition matrix row %d has %d cols, want %d", i, len(row), c.NumModes)
		}
		var sum float64
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-1.0) > 1e-6 {
			return fmt.Errorf("imm: transition matrix row %d sums to %v, want 1.0", i, sum)
		}
	}
	if len(c.InitialModeProbs) != c.NumModes {
		return fmt.Errorf("imm: initial mode probs has %d entries, want %d", len(c.InitialModeProbs), c.NumModes)
	}
	var probSum float64
	for _, v := range c.InitialModeProbs {
		probSum += v
	}
	if math.Abs(probSum-1.0) > 1e-6 {
		return fmt.Errorf("imm: initial mode probs sum to %v, want 1.0", probSum)
	}
	if len(c.ProcessNoise) != c.NumModes {
		return fmt.Errorf("imm: process noise has %d entries, want %d", len(c.ProcessNoise), c.NumModes)
	}
	if len(c.StateTransition) != c.NumModes {
		return fmt.Errorf("imm: state transition has %d entries, want %d", len(c.StateTransition), c.NumModes)
	}
	if c.MeasurementNoise <= 0 {
		return fmt.Errorf("imm: measurement_noise must be > 0")
	}
	return nil
}

// modeFilterState is one mode's scalar Kalman filter state.
type modeFilterState struct {
	state         float64
	covariance    float64
	innovation    float64
	innovationCov float64
	likelihood    float64
}

// ImmUpdateResult is returned from a single Update call.
type ImmUpdateResult struct {
	ModeProbabilities     []float64
	MostLikelyRegime      Regime
	MaxModeProbability    float64
	CombinedState         float64
	CombinedCovariance    float64
	ModeStates            []float64
	ModeLikelihoods       []float64
	RegimeChangeDetected  bool
	ProbabilityShift      float64
	PreviousRegime        *Regime
	Observation           float64
	Innovation            float64
}

// ImmAnalyzer maintains the filter bank state and processes a stream of
// scalar observations, accumulating regime-sequence history for later
// summarisation (§4.3).
type ImmAnalyzer struct {
	config ImmConfig

	modeStates     []modeFilterState
	modeProbs      []float64
	prevModeProbs  []float64
	combinedState  float64
	combinedCov    float64
	numObservations int

	probAccumulator      []float64
	innovationAccumulator float64
	regimeChangePoints    []int
	regimeSequence        []Regime
}

// NewImmAnalyzer validates config and constructs an analyzer with the
// filter bank initialised at initialState.
func NewImmAnalyzer(config ImmConfig, initialState float64) (*ImmAnalyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	modeStates := make([]modeFilterState, config.NumModes)
	for i := range modeStates {
		modeStates[i] = modeFilterState{state: initialState, covariance: 1.0, innovationCov: 1.0, likelihood: 1.0}
	}
	return &ImmAnalyzer{
		config:          config,
		modeStates:      modeStates,
		modeProbs:       append([]float64{}, config.InitialModeProbs...),
		prevModeProbs:   append([]float64{}, config.InitialModeProbs...),
		combinedState:   initialState,
		combinedCov:     1.0,
		probAccumulator: make([]float64, config.NumModes),
	}, nil
}

func mostLikelyMode(probs []float64) int {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best
}

// Update runs one mixing/filter/mode-probability/combination cycle for a
// single scalar observation, per the IMM algorithm in §4.3.
func (a *ImmAnalyzer) Update(observation float64) ImmUpdateResult {
	n := a.config.NumModes
	a.prevModeProbs = append([]float64{}, a.modeProbs...)
	prevMostLikely := mostLikelyMode(a.modeProbs)

	// Step 1: mixing.
	mixedStates := make([]float64, n)
	mixedCovs := make([]float64, n)
	for j := 0; j < n; j++ {
		mixingProbs := make([]float64, n)
		var cBar float64
		for i := 0; i < n; i++ {
			cBar += a.config.TransitionMatrix[i][j] * a.modeProbs[i]
		}
		if cBar > 1e-10 {
			for i := 0; i < n; i++ {
				mixingProbs[i] = a.config.TransitionMatrix[i][j] * a.modeProbs[i] / cBar
			}
		} else {
			for i := range mixingProbs {
				mixingProbs[i] = 1.0 / float64(n)
			}
		}

		var xMixed float64
		for i := 0; i < n; i++ {
			xMixed += mixingProbs[i] * a.modeStates[i].state
		}
		var pMixed float64
		for i := 0; i < n; i++ {
			diff := a.modeStates[i].state - xMixed
			pMixed += mixingProbs[i] * (a.modeStates[i].covariance + diff*diff)
		}
		mixedStates[j] = xMixed
		mixedCovs[j] = pMixed
	}

	// Step 2: per-mode Kalman filtering.
	modeLikelihoods := make([]float64, n)
	for j := 0; j < n; j++ {
		coef := a.config.StateTransition[j]
		q := a.config.ProcessNoise[j]
		r := a.config.MeasurementNoise

		xPred := coef * mixedStates[j]
		pPred := coef*coef*mixedCovs[j] + q

		innovation := observation - xPred
		s := pPred + r
		k := pPred / s

		xUpd := xPred + k*innovation
		pUpd := (1 - k) * pPred

		likelihood := math.Exp(-0.5 * (innovation*innovation/s + math.Log(s) + math.Log(2*math.Pi)))

		a.modeStates[j] = modeFilterState{
			state: xUpd, covariance: pUpd, innovation: innovation, innovationCov: s, likelihood: likelihood,
		}
		modeLikelihoods[j] = likelihood
	}

	// Step 3: mode probability update.
	newProbs := make([]float64, n)
	var totalLikelihood float64
	for j := 0; j < n; j++ {
		var cJ float64
		for i := 0; i < n; i++ {
			cJ += a.config.TransitionMatrix[i][j] * a.modeProbs[i]
		}
		newProbs[j] = modeLikelihoods[j] * cJ
		totalLikelihood += newProbs[j]
	}
	if totalLikelihood > 1e-300 {
		for j := range newProbs {
			newProbs[j] /= totalLikelihood
		}
	} else {
		for j := range newProbs {
			newProbs[j] = 1.0 / float64(n)
		}
	}

	if a.config.ProbabilitySmoothing > 0 {
		alpha := a.config.ProbabilitySmoothing
		for j := 0; j < n; j++ {
			newProbs[j] = alpha*a.prevModeProbs[j] + (1-alpha)*newProbs[j]
		}
		var sum float64
		for _, p := range newProbs {
			sum += p
		}
		for j := range newProbs {
			newProbs[j] /= sum
		}
	}

	minP := a.config.MinModeProbability
	needsRenorm := false
	for j := range newProbs {
		if newProbs[j] < minP {
			newProbs[j] = minP
			needsRenorm = true
		}
	}
	if needsRenorm {
		var sum float64
		for _, p := range newProbs {
			sum += p
		}
		for j := range newProbs {
			newProbs[j] /= sum
		}
	}
	a.modeProbs = newProbs

	// Step 4: combination.
	var combinedState float64
	for j := 0; j < n; j++ {
		combinedState += newProbs[j] * a.modeStates[j].state
	}
	var combinedCov float64
	for j := 0; j < n; j++ {
		diff := a.modeStates[j].state - combinedState
		combinedCov += newProbs[j] * (a.modeStates[j].covariance + diff*diff)
	}
	a.combinedState = combinedState
	a.combinedCov = combinedCov
	a.numObservations++

	currentMostLikely := mostLikelyMode(a.modeProbs)
	var maxShift float64
	for j := 0; j < n; j++ {
		shift := math.Abs(a.modeProbs[j] - a.prevModeProbs[j])
		if shift > maxShift {
			maxShift = shift
		}
	}
	regimeChanged := currentMostLikely != prevMostLikely || maxShift > a.config.RegimeChangeThreshold

	var previousRegime *Regime
	if currentMostLikely != prevMostLikely {
		a.regimeChangePoints = append(a.regimeChangePoints, a.numObservations)
		prev := Regime(prevMostLikely)
		previousRegime = &prev
	}

	for j, p := range newProbs {
		a.probAccumulator[j] += p
	}
	innovation := observation - combinedState
	a.innovationAccumulator += math.Abs(innovation)
	a.regimeSequence = append(a.regimeSequence, Regime(currentMostLikely))

	modeStatesOut := make([]float64, n)
	for j, ms := range a.modeStates {
		modeStatesOut[j] = ms.state
	}

	return ImmUpdateResult{
		ModeProbabilities:    append([]float64{}, newProbs...),
		MostLikelyRegime:     Regime(currentMostLikely),
		MaxModeProbability:   a.modeProbs[currentMostLikely],
		CombinedState:        combinedState,
		CombinedCovariance:   combinedCov,
		ModeStates:           modeStatesOut,
		ModeLikelihoods:      modeLikelihoods,
		RegimeChangeDetected: regimeChanged,
		ProbabilityShift:     maxShift,
		PreviousRegime:       previousRegime,
		Observation:          observation,
		Innovation:           innovation,
	}
}

// ImmSummary aggregates statistics across every observation processed so
// far.
type ImmSummary struct {
	FinalModeProbabilities   []float64
	MostLikelyRegime         Regime
	AverageModeProbabilities []float64
	NumRegimeChanges         int
	RegimeChangePoints       []int
	RegimeSequence           []Regime
	FinalState               float64
	FinalCovariance          float64
	NumObservations          int
	AvgInnovationMagnitude   float64
	RegimeStability          float64
}

// ErrNoObservations is returned by Summarize before any Update call.
var ErrNoObservations = fmt.Errorf("imm: no observations processed yet")

// Summarize computes regime stability (combining change rate with
// normalised Shannon entropy of the final mode distribution) and returns
// the full run summary.
func (a *ImmAnalyzer) Summarize() (ImmSummary, error) {
	if a.numObservations == 0 {
		return ImmSummary{}, ErrNoObservations
	}
	n := float64(a.numObservations)

	avgProbs := make([]float64, len(a.probAccumulator))
	for i, acc := range a.probAccumulator {
		avgProbs[i] = acc / n
	}

	changeRate := float64(len(a.regimeChangePoints)) / n
	var entropy float64
	for _, p := range a.modeProbs {
		if p > 1e-10 {
			entropy -= p * math.Log(p)
		}
	}
	maxEntropy := math.Log(float64(a.config.NumModes))
	concentration := 1.0 - math.Min(entropy/maxEntropy, 1.0)
	stability := (1.0-math.Min(changeRate, 1.0))*0.5 + concentration*0.5

	return ImmSummary{
		FinalModeProbabilities:   append([]float64{}, a.modeProbs...),
		MostLikelyRegime:         Regime(mostLikelyMode(a.modeProbs)),
		AverageModeProbabilities: avgProbs,
		NumRegimeChanges:         len(a.regimeChangePoints),
		RegimeChangePoints:       append([]int{}, a.regimeChangePoints...),
		RegimeSequence:           append([]Regime{}, a.regimeSequence...),
		FinalState:               a.combinedState,
		FinalCovariance:          a.combinedCov,
		NumObservations:          a.numObservations,
		AvgInnovationMagnitude:   a.innovationAccumulator / n,
		RegimeStability:          stability,
	}, nil
}

// RegimeLogBF returns a log-Bayes-factor term suitable for evidence
// combination: a regime-type prior (idle favours innocence, stuck strongly
// suggests a problem) plus an instability penalty, scaled by the
// confidence in the current mode split.
func RegimeLogBF(regime Regime, stability float64, modeProbs []float64) float64 {
	sorted := append([]float64{}, modeProbs...)
	sortDesc(sorted)
	logBF := 10.0
	if len(sorted) >= 2 && sorted[1] > 1e-10 {
		logBF = math.Log(sorted[0] / sorted[1])
	}

	var regimeFactor float64
	switch regime {
	case RegimeIdle:
		regimeFactor = -1.0
	case RegimeActive:
		regimeFactor = 0.0
	case RegimeElevated:
		regimeFactor = 1.0
	case RegimeStuck:
		regimeFactor = 2.0
	default:
		regimeFactor = 0.0
	}
	instabilityFactor := (1 - stability) * 0.5
	return logBF + regimeFactor + instabilityFactor
}

func sortDesc(s []float64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] > s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
