// Package decision implements the expected-loss minimiser, FDR batch
// selection, robot-mode runtime constraints, and their small persisted
// state, per §4.4.
package decision

import (
	"math"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// LoadSignal is one named input to the combined system-load score (e.g.
// "cpu", "memory", "kill_rate").
type LoadSignal struct {
	Name  string
	Value float64
}

// CombinedLoad computes the weighted, threshold-normalised combined load
// score in [0,1]: each signal contributes `weight * min(value/threshold, 1)`,
// normalised by the sum of weights. Signals without a configured weight or
// threshold are ignored.
func CombinedLoad(signals []LoadSignal, weights model.LoadAwareWeights) float64 {
	var weightedSum, totalWeight float64
	for _, s := range signals {
		w, hasWeight := weights.Weights[s.Name]
		thr, hasThreshold := weights.Thresholds[s.Name]
		if !hasWeight || !hasThreshold || thr <= 0 || w <= 0 {
			continue
		}
		ratio := s.Value / thr
		if ratio > 1 {
			ratio = 1
		}
		if ratio < 0 {
			ratio = 0
		}
		weightedSum += w * ratio
		totalWeight += w
	}
	if totalWeight <= 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// actionMultiplier linearly interpolates between 1.0 (no load) and the
// action-class's configured ceiling/floor at load=1, per §4.4: keep uses
// keep_max, kill/restart use risky_max, pause/throttle use reversible_min.
func actionMultiplier(action model.Action, load float64, mult model.LoadMultipliers) float64 {
	if load < 0 {
		load = 0
	}
	if load > 1 {
		load = 1
	}
	switch {
	case action == model.ActionKeep:
		return 1 + (mult.KeepMax-1)*load
	case action.IsRisky():
		return 1 + (mult.RiskyMax-1)*load
	case action.IsReversible():
		return 1 - (1-mult.ReversibleMin)*load
	default:
		return 1.0
	}
}

// ExpectedLoss computes Σ_c posterior[c] * lossMatrix.Loss(action, c) with
// the load-aware multiplier applied.
func ExpectedLoss(action model.Action, posterior map[model.Class]float64, lossMatrix model.LossMatrix, load float64, mult model.LoadMultipliers) float64 {
	var total float64
	for _, c := range model.AllClasses() {
		total += posterior[c] * lossMatrix.Loss(action, c)
	}
	return total * actionMultiplier(action, load, mult)
}

// MinimizeLoss picks the action with minimum expected loss; ties break
// toward the less-destructive action using model.AllActions' canonical
// tie-break order (keep < pause < throttle < restart < kill).
func MinimizeLoss(posterior map[model.Class]float64, lossMatrix model.LossMatrix, load float64, mult model.LoadMultipliers) (model.Action, float64) {
	best := model.ActionKeep
	bestLoss := math.Inf(1)
	for _, a := range model.AllActions() {
		loss := ExpectedLoss(a, posterior, lossMatrix, load, mult)
		if loss < bestLoss-1e-12 {
			bestLoss = loss
			best = a
		}
	}
	return best, bestLoss
}
