package decision

import (
	"sort"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// Candidate is one p-value to be tested by a batch FDR procedure, carrying
// enough identity to report back which candidates were rejected.
type Candidate struct {
	ID     string
	PValue float64
}

// RejectionSet is the subset of candidate IDs a batch FDR procedure
// rejected (i.e. flagged for action), plus the effective p-value cutoff:
// the largest p-value that was rejected (zero when none was).
type RejectionSet struct {
	RejectedIDs map[string]bool
	Threshold   float64
}

// Rejected reports whether id was rejected by this batch.
func (r RejectionSet) Rejected(id string) bool { return r.RejectedIDs[id] }

// BenjaminiHochberg controls the false discovery rate at level alpha:
// sort ascending, reject the largest prefix with p_(i) <= i*alpha/m.
func BenjaminiHochberg(candidates []Candidate, alpha float64) RejectionSet {
	return stepUpProcedure(candidates, alpha, 1.0)
}

// harmonicNumber returns H_m = sum_{k=1}^{m} 1/k.
func harmonicNumber(m int) float64 {
	var h float64
	for k := 1; k <= m; k++ {
		h += 1.0 / float64(k)
	}
	return h
}

// BenjaminiYekutieli controls the false discovery rate under arbitrary
// dependence: identical to Benjamini-Hochberg but with alpha divided by
// the m-th harmonic number H_m.
func BenjaminiYekutieli(candidates []Candidate, alpha float64) RejectionSet {
	m := len(candidates)
	if m == 0 {
		return RejectionSet{RejectedIDs: map[string]bool{}}
	}
	return stepUpProcedure(candidates, alpha, harmonicNumber(m))
}

func stepUpProcedure(candidates []Candidate, alpha, denomFactor float64) RejectionSet {
	m := len(candidates)
	out := RejectionSet{RejectedIDs: make(map[string]bool, m)}
	if m == 0 {
		return out
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PValue < sorted[j].PValue })

	largestK := -1
	for i, c := range sorted {
		rank := i + 1
		threshold := (float64(rank) / float64(m)) * (alpha / denomFactor)
		if c.PValue <= threshold {
			largestK = i
		}
	}
	if largestK < 0 {
		return out
	}
	cutoff := sorted[largestK].PValue
	out.Threshold = cutoff
	for _, c := range sorted[:largestK+1] {
		out.RejectedIDs[c.ID] = true
	}
	return out
}

// AlphaInvestingState is the persisted wealth/spend/earn state for the
// online alpha-investing FDR procedure (§4.4). It is the caller's
// responsibility to persist this between runs (see decision/store).
type AlphaInvestingState struct {
	Wealth      float64 `json:"wealth"`
	AlphaSpent  float64 `json:"alpha_spent"`
	AlphaEarned float64 `json:"alpha_earned"`
}

// NewAlphaInvestingState seeds wealth at w0.
func NewAlphaInvestingState(w0 float64) AlphaInvestingState {
	return AlphaInvestingState{Wealth: w0}
}

// ErrAlphaExhausted is returned when a test's required spend exceeds the
// currently available wealth; the candidate must not be tested.
type ErrAlphaExhausted struct{ Spend, Wealth float64 }

func (e *ErrAlphaExhausted) Error() string {
	return "decision: alpha-investing wealth exhausted for this spend"
}

// TestAlphaInvesting tests one candidate p-value at the configured spend
// level, updating state in place. Returns whether the candidate was
// rejected, or an error if the wealth available is insufficient to spend.
func TestAlphaInvesting(state *AlphaInvestingState, pValue float64, params model.AlphaInvestingParams) (rejected bool, err error) {
	if params.AlphaSpend > state.Wealth {
		return false, &ErrAlphaExhausted{Spend: params.AlphaSpend, Wealth: state.Wealth}
	}
	rejected = pValue <= params.AlphaSpend
	state.AlphaSpent += params.AlphaSpend
	earned := 0.0
	if rejected {
		earned = params.AlphaEarn
		state.AlphaEarned += earned
	}
	state.Wealth = state.Wealth - params.AlphaSpend + earned
	return rejected, nil
}
