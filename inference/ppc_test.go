package inference

import (
	"errors"
	"testing"
)

func steadyData(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestPPCChecker_InsufficientData(t *testing.T) {
	c := NewPPCChecker(DefaultPPCConfig())
	_, err := c.CheckBeta([]float64{0.1, 0.2}, 2, 8)
	var insufficient *ErrPPCInsufficientData
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrPPCInsufficientData, got %v", err)
	}
}

func TestPPCChecker_InvalidParameters(t *testing.T) {
	c := NewPPCChecker(DefaultPPCConfig())
	obs := steadyData(20, 0.2)
	if _, err := c.CheckBeta(obs, 0, 8); err == nil {
		t.Fatal("expected error for non-positive alpha")
	}
	if _, err := c.CheckGamma(obs, 2, -1); err == nil {
		t.Fatal("expected error for non-positive rate")
	}
	if _, err := c.CheckNormal(obs, 0, 0); err == nil {
		t.Fatal("expected error for non-positive variance")
	}
}

func TestPPCChecker_WellSpecifiedBetaPasses(t *testing.T) {
	cfg := DefaultPPCConfig()
	cfg.NSamples = 200
	c := NewPPCChecker(cfg)

	obs := make([]float64, 30)
	for i := range obs {
		obs[i] = 0.2
	}
	res, err := c.CheckBeta(obs, 2, 8)
	if err != nil {
		t.Fatalf("CheckBeta: %v", err)
	}
	if res.NObservations != 30 {
		t.Fatalf("NObservations = %d, want 30", res.NObservations)
	}
	if len(res.Checks) != len(cfg.Statistics) {
		t.Fatalf("len(Checks) = %d, want %d", len(res.Checks), len(cfg.Statistics))
	}
}

func TestDetermineFallback_VarianceFailurePrefersWidenPriors(t *testing.T) {
	c := NewPPCChecker(DefaultPPCConfig())
	failed := []StatisticCheck{{Statistic: StatVariance}}
	if got := c.determineFallback(failed); got != FallbackWidenPriors {
		t.Fatalf("got %v, want widen_priors", got)
	}
}

func TestDetermineFallback_NoFailuresIsNone(t *testing.T) {
	c := NewPPCChecker(DefaultPPCConfig())
	if got := c.determineFallback(nil); got != FallbackNone {
		t.Fatalf("got %v, want none", got)
	}
}

func TestMaxRunLength_ConstantDataHasNoRunsAboveMean(t *testing.T) {
	c := NewPPCChecker(DefaultPPCConfig())
	data := steadyData(10, 1.0)
	if got := c.maxRunLength(data); got != 10 {
		t.Fatalf("got %v, want 10 (whole series is one run)", got)
	}
}

func TestComputePValue_IdenticalDistributionsNearOne(t *testing.T) {
	c := NewPPCChecker(DefaultPPCConfig())
	sim := steadyData(100, 0.5)
	p := c.computePValue(0.5, sim)
	if p < 0.9 {
		t.Fatalf("expected high p-value for matching distributions, got %v", p)
	}
}

func TestPPCEvidence_PenaltyZeroWhenPassed(t *testing.T) {
	res := PPCResult{Passed: true, ConfidenceAdjustment: 0}
	ev := res.ToEvidence()
	if ev.ConfidencePenalty != 0 {
		t.Fatalf("expected zero penalty, got %v", ev.ConfidencePenalty)
	}
}
