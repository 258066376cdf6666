package decision

import (
	"math"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func uniformPosterior() map[model.Class]float64 {
	return map[model.Class]float64{
		model.ClassUseful:    0.25,
		model.ClassUsefulBad: 0.25,
		model.ClassAbandoned: 0.25,
		model.ClassZombie:    0.25,
	}
}

func flatMultipliers() model.LoadMultipliers {
	return model.LoadMultipliers{KeepMax: 2, RiskyMax: 2, ReversibleMin: 0.5}
}

func TestCombinedLoad_IgnoresUnweightedSignals(t *testing.T) {
	weights := model.LoadAwareWeights{
		Weights:    map[string]float64{"cpu": 1.0},
		Thresholds: map[string]float64{"cpu": 100},
	}
	signals := []LoadSignal{{Name: "cpu", Value: 50}, {Name: "unrelated", Value: 999}}
	got := CombinedLoad(signals, weights)
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("combined load = %v, want 0.5", got)
	}
}

func TestCombinedLoad_ClampsAboveThreshold(t *testing.T) {
	weights := model.LoadAwareWeights{
		Weights:    map[string]float64{"cpu": 1.0},
		Thresholds: map[string]float64{"cpu": 100},
	}
	signals := []LoadSignal{{Name: "cpu", Value: 500}}
	got := CombinedLoad(signals, weights)
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("combined load = %v, want clamped to 1.0", got)
	}
}

func TestCombinedLoad_NoConfiguredSignalsIsZero(t *testing.T) {
	weights := model.LoadAwareWeights{}
	got := CombinedLoad([]LoadSignal{{Name: "cpu", Value: 50}}, weights)
	if got != 0 {
		t.Fatalf("combined load = %v, want 0", got)
	}
}

func TestActionMultiplier_KeepGrowsWithLoad(t *testing.T) {
	mult := flatMultipliers()
	atZero := actionMultiplier(model.ActionKeep, 0, mult)
	atOne := actionMultiplier(model.ActionKeep, 1, mult)
	if atZero != 1.0 {
		t.Fatalf("keep multiplier at load 0 = %v, want 1.0", atZero)
	}
	if atOne != mult.KeepMax {
		t.Fatalf("keep multiplier at load 1 = %v, want %v", atOne, mult.KeepMax)
	}
}

func TestActionMultiplier_ReversibleShrinksWithLoad(t *testing.T) {
	mult := flatMultipliers()
	atOne := actionMultiplier(model.ActionPause, 1, mult)
	if math.Abs(atOne-mult.ReversibleMin) > 1e-9 {
		t.Fatalf("pause multiplier at load 1 = %v, want %v", atOne, mult.ReversibleMin)
	}
}

func TestMinimizeLoss_PicksZeroLossAction(t *testing.T) {
	posterior := map[model.Class]float64{
		model.ClassUseful:    1.0,
		model.ClassUsefulBad: 0,
		model.ClassAbandoned: 0,
		model.ClassZombie:    0,
	}
	lossMatrix := model.LossMatrix{Rows: map[string]map[string]float64{
		model.ClassUseful.String(): {
			model.ActionKeep.String():     0,
			model.ActionPause.String():    1,
			model.ActionThrottle.String(): 2,
			model.ActionRestart.String():  5,
			model.ActionKill.String():     10,
		},
	}}
	action, loss := MinimizeLoss(posterior, lossMatrix, 0, flatMultipliers())
	if action != model.ActionKeep {
		t.Fatalf("chosen action = %v, want keep", action)
	}
	if loss != 0 {
		t.Fatalf("loss = %v, want 0", loss)
	}
}

func TestMinimizeLoss_TiesBreakTowardLeastDestructive(t *testing.T) {
	posterior := uniformPosterior()
	// An all-zero loss matrix ties every action at 0; keep must win.
	lossMatrix := model.LossMatrix{}
	action, _ := MinimizeLoss(posterior, lossMatrix, 0, flatMultipliers())
	if action != model.ActionKeep {
		t.Fatalf("tie-break action = %v, want keep", action)
	}
}
