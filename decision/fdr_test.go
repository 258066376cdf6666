package decision

import (
	"math"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func TestBenjaminiHochberg_RejectsObviouslySignificant(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", PValue: 0.001},
		{ID: "b", PValue: 0.01},
		{ID: "c", PValue: 0.5},
		{ID: "d", PValue: 0.9},
	}
	out := BenjaminiHochberg(candidates, 0.05)
	if !out.Rejected("a") || !out.Rejected("b") {
		t.Fatalf("expected a and b rejected, got %+v", out.RejectedIDs)
	}
	if out.Rejected("d") {
		t.Fatalf("expected d not rejected")
	}
}

func TestBenjaminiHochberg_EmptyInput(t *testing.T) {
	out := BenjaminiHochberg(nil, 0.05)
	if len(out.RejectedIDs) != 0 {
		t.Fatalf("expected no rejections for empty input")
	}
}

func TestBenjaminiYekutieli_StricterThanBH(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", PValue: 0.01},
		{ID: "b", PValue: 0.04},
		{ID: "c", PValue: 0.2},
	}
	bh := BenjaminiHochberg(candidates, 0.05)
	by := BenjaminiYekutieli(candidates, 0.05)
	if len(by.RejectedIDs) > len(bh.RejectedIDs) {
		t.Fatalf("BY rejected more than BH: BY=%d BH=%d", len(by.RejectedIDs), len(bh.RejectedIDs))
	}
}

func TestHarmonicNumber_KnownValues(t *testing.T) {
	if math.Abs(harmonicNumber(1)-1.0) > 1e-9 {
		t.Fatalf("H_1 = %v, want 1.0", harmonicNumber(1))
	}
	want := 1 + 0.5 + 1.0/3.0
	if math.Abs(harmonicNumber(3)-want) > 1e-9 {
		t.Fatalf("H_3 = %v, want %v", harmonicNumber(3), want)
	}
}

func TestTestAlphaInvesting_RejectsBelowSpendAndUpdatesWealth(t *testing.T) {
	state := NewAlphaInvestingState(1.0)
	params := model.AlphaInvestingParams{AlphaSpend: 0.05, AlphaEarn: 0.1}

	rejected, err := TestAlphaInvesting(&state, 0.01, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rejected {
		t.Fatalf("expected rejection for p=0.01 <= spend=0.05")
	}
	wantWealth := 1.0 - 0.05 + 0.1
	if math.Abs(state.Wealth-wantWealth) > 1e-9 {
		t.Fatalf("wealth = %v, want %v", state.Wealth, wantWealth)
	}
}

func TestTestAlphaInvesting_NoRejectionDoesNotEarn(t *testing.T) {
	state := NewAlphaInvestingState(1.0)
	params := model.AlphaInvestingParams{AlphaSpend: 0.05, AlphaEarn: 0.1}

	rejected, err := TestAlphaInvesting(&state, 0.5, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected {
		t.Fatalf("expected no rejection for p=0.5 > spend=0.05")
	}
	wantWealth := 1.0 - 0.05
	if math.Abs(state.Wealth-wantWealth) > 1e-9 {
		t.Fatalf("wealth = %v, want %v", state.Wealth, wantWealth)
	}
}

func TestTestAlphaInvesting_ExhaustedWealthRefusesTest(t *testing.T) {
	state := NewAlphaInvestingState(0.01)
	params := model.AlphaInvestingParams{AlphaSpend: 0.05, AlphaEarn: 0.1}

	_, err := TestAlphaInvesting(&state, 0.001, params)
	if err == nil {
		t.Fatalf("expected ErrAlphaExhausted")
	}
	if _, ok := err.(*ErrAlphaExhausted); !ok {
		t.Fatalf("expected *ErrAlphaExhausted, got %T", err)
	}
}
