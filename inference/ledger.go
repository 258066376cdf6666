package inference

import (
	"math"

	"github.com/joyshmitz/process-triage-sub001/mathx"
	"github.com/joyshmitz/process-triage-sub001/model"
)

// minLikelihoodProb is the floor/ceiling every per-class Bernoulli
// probability is clamped to before taking a log, matching the KL
// analyzer's MinProb guard.
const minLikelihoodProb = 1e-10

// Ledger accumulates a log-Bayes-factor vector over the four classes for a
// single candidate, starting from the log-prior (§4.3). Every Add* method
// adds `log p(obs | class)` for each class. The spec additionally
// subtracts a `log p(obs | reference)` term per feature; that term is
// identical across every class for a fixed observation, so under the
// final softmax it is a constant shift and does not change the resulting
// posterior (softmax is shift-invariant) — it is therefore omitted here
// rather than tracked as dead arithmetic. See DESIGN.md.
type Ledger struct {
	logBF map[model.Class]float64
}

// NewLedger starts a ledger at the log of each class's prior probability.
// Non-positive priors are floored at minLikelihoodProb to keep the log
// finite.
func NewLedger(priors model.PriorParameters) *Ledger {
	l := &Ledger{logBF: make(map[model.Class]float64, model.NumClasses)}
	for _, c := range model.AllClasses() {
		p := priors.ClassPrior(c).PriorProbability
		if p <= 0 {
			p = minLikelihoodProb
		}
		l.logBF[c] = math.Log(p)
	}
	return l
}

// AddBernoulli folds in one binary feature observation (CPU-busy, orphan,
// TTY, network, I/O-active), using each class's Beta posterior mean as its
// estimated Bernoulli rate.
func (l *Ledger) AddBernoulli(feature model.BernoulliFeature, observed bool, priors model.PriorParameters) {
	for _, c := range model.AllClasses() {
		p := priors.ClassPrior(c).BetaFor(feature).Mean()
		p = clampF(p, minLikelihoodProb, 1-minLikelihoodProb)
		if observed {
			l.logBF[c] += math.Log(p)
		} else {
			l.logBF[c] += math.Log(1 - p)
		}
	}
}

// gammaLogPDF is the log-density of Gamma(shape, rate) at x (x > 0).
func gammaLogPDF(x, shape, rate float64) float64 {
	if x <= 0 || shape <= 0 || rate <= 0 {
		return math.Log(minLikelihoodProb)
	}
	return shape*math.Log(rate) - mathx.LogGamma(shape) + (shape-1)*math.Log(x) - rate*x
}

// AddRuntime folds in the process's age (seconds) as Gamma-distributed
// evidence.
func (l *Ledger) AddRuntime(ageSeconds float64, priors model.PriorParameters) {
	for _, c := range model.AllClasses() {
		g := priors.ClassPrior(c).Runtime
		l.logBF[c] += gammaLogPDF(ageSeconds, g.Shape, g.Rate)
	}
}

// AddHazard folds in a hazard-rate observation (e.g. hang duration) as
// Gamma-distributed evidence.
func (l *Ledger) AddHazard(value float64, priors model.PriorParameters) {
	for _, c := range model.AllClasses() {
		g := priors.ClassPrior(c).Hazard
		l.logBF[c] += gammaLogPDF(value, g.Shape, g.Rate)
	}
}

// dirichletCategoricalLogProb returns the Laplace/Dirichlet(1,...,1)-
// smoothed log-probability of observing category idx given a class's raw
// counts vector.
func dirichletCategoricalLogProb(counts []float64, idx int) float64 {
	if idx < 0 || idx >= len(counts) {
		return math.Log(minLikelihoodProb)
	}
	var total float64
	for _, v := range counts {
		total += v
	}
	k := float64(len(counts))
	p := (counts[idx] + 1) / (total + k)
	return math.Log(p)
}

// AddCommandCategory folds in the observed command category as
// Dirichlet-categorical evidence.
func (l *Ledger) AddCommandCategory(cat model.CommandCategory, priors model.PriorParameters) {
	for _, c := range model.AllClasses() {
		counts := priors.ClassPrior(c).CommandCounts
		l.logBF[c] += dirichletCategoricalLogProb(counts[:], cat.Index())
	}
}

// AddCwdCategory folds in the observed working-directory category as
// Dirichlet-categorical evidence.
func (l *Ledger) AddCwdCategory(cat model.CwdCategory, priors model.PriorParameters) {
	for _, c := range model.AllClasses() {
		counts := priors.ClassPrior(c).CwdCounts
		l.logBF[c] += dirichletCategoricalLogProb(counts[:], cat.Index())
	}
}

// KLSurprisalWeight scales how strongly an abnormal KL-surprisal result
// shifts mass toward the two classes it is diagnostic of.
const KLSurprisalWeight = 1.0

// AddKLSurprisal folds in a KL-surprisal result: the nats of divergence
// push evidence toward ClassAbandoned and ClassZombie (an idle/hung
// process that deviates further from its reference behaviour profile is
// more likely abandoned or stuck) and half that amount away from each of
// ClassUseful and ClassUsefulBad. A result exactly at its reference rate
// has zero divergence and shifts nothing.
func (l *Ledger) AddKLSurprisal(res KLResult) {
	shift := KLSurprisalWeight * res.KLDivergence
	if res.Direction == DeviationLower {
		shift = -shift
	}
	l.logBF[model.ClassAbandoned] += shift
	l.logBF[model.ClassZombie] += shift
	l.logBF[model.ClassUseful] -= shift / 2
	l.logBF[model.ClassUsefulBad] -= shift / 2
}

// AddRegime folds in an IMM regime-switching log-Bayes-factor: the stuck
// and elevated regimes bias toward the two abnormal classes, idle biases
// toward ClassAbandoned alone (a quiescent process is more likely simply
// finished than actively dangerous).
func (l *Ledger) AddRegime(regime Regime, bf float64) {
	switch regime {
	case RegimeStuck:
		l.logBF[model.ClassZombie] += bf
		l.logBF[model.ClassAbandoned] += bf * 0.5
	case RegimeElevated:
		l.logBF[model.ClassUsefulBad] += bf
		l.logBF[model.ClassAbandoned] += bf * 0.25
	case RegimeIdle:
		l.logBF[model.ClassAbandoned] += bf
	case RegimeActive:
		l.logBF[model.ClassUseful] += bf
	}
}

// AddClassShift applies a flat additive nudge to a single class's
// log-Bayes-factor, used to fold in a matched pattern's PriorsDelta (§3):
// unlike the Add* evidence methods, a pattern match isn't evidence drawn
// from a fitted distribution, just a fixed nudge the pattern author chose.
func (l *Ledger) AddClassShift(class model.Class, shift float64) {
	l.logBF[class] += shift
}

// ApplyPPCPenalty widens the posterior toward the prior when a posterior
// predictive check fails: every non-prior log-Bayes-factor accumulated so
// far is scaled down uniformly by (1 - penalty), capped at penalty=1.
func (l *Ledger) ApplyPPCPenalty(priors model.PriorParameters, penalty float64) {
	if penalty <= 0 {
		return
	}
	if penalty > 1 {
		penalty = 1
	}
	for _, c := range model.AllClasses() {
		p := priors.ClassPrior(c).PriorProbability
		if p <= 0 {
			p = minLikelihoodProb
		}
		logPrior := math.Log(p)
		l.logBF[c] = logPrior + (l.logBF[c]-logPrior)*(1-penalty)
	}
}

// Posterior computes softmax(log-Bayes-factor vector) across all classes.
func (l *Ledger) Posterior() map[model.Class]float64 {
	maxLogBF := math.Inf(-1)
	for _, c := range model.AllClasses() {
		if l.logBF[c] > maxLogBF {
			maxLogBF = l.logBF[c]
		}
	}
	var sum float64
	exps := make(map[model.Class]float64, model.NumClasses)
	for _, c := range model.AllClasses() {
		e := math.Exp(l.logBF[c] - maxLogBF)
		exps[c] = e
		sum += e
	}
	out := make(map[model.Class]float64, model.NumClasses)
	for _, c := range model.AllClasses() {
		out[c] = exps[c] / sum
	}
	return out
}

// LogBayesFactors returns a copy of the raw accumulated vector (pre-softmax),
// useful for audit-log detail fields.
func (l *Ledger) LogBayesFactors() map[model.Class]float64 {
	out := make(map[model.Class]float64, len(l.logBF))
	for c, v := range l.logBF {
		out[c] = v
	}
	return out
}

// MostLikely returns the class with the highest posterior probability and
// its probability.
func (l *Ledger) MostLikely() (model.Class, float64) {
	posterior := l.Posterior()
	best := model.ClassUseful
	bestP := -1.0
	for _, c := range model.AllClasses() {
		if posterior[c] > bestP {
			bestP = posterior[c]
			best = c
		}
	}
	return best, bestP
}
