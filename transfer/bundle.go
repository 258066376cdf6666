// Package transfer implements the fleet-learning bundle export/import
// described in spec §4.8: a portable snapshot of learned patterns and class
// priors, guarded by schema version compatibility, a checksum over its
// canonical JSON encoding, and a weighted Beta-parameter merge that lets an
// importing deployment absorb another system's evidence without discarding
// its own. Grounded on model/transfer.go's already-implemented merge
// primitives (MergeBeta, MergeWeight, BaselineScale) and on
// patterns/library.go's JSON persistence shape for the pattern side of a
// bundle.
package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// ErrMajorVersionMismatch is returned by Validate when a bundle's schema
// major version does not match this build's.
var ErrMajorVersionMismatch = errors.New("transfer: incompatible schema major version")

// ErrChecksumMismatch is returned by Validate when the bundle's stored
// checksum does not match its recomputed canonical-JSON checksum.
var ErrChecksumMismatch = errors.New("transfer: checksum mismatch")

// ErrPriorSumInvalid is returned by Validate when class prior probabilities
// drift from 1 by more than the reject tolerance.
var ErrPriorSumInvalid = errors.New("transfer: class prior probabilities do not sum to 1")

// Tolerances from spec §4.8: warn at 1e-6 drift, reject at 1e-2 drift.
const (
	priorSumWarnTolerance   = 1e-6
	priorSumRejectTolerance = 1e-2
)

// ExportInput is the material an embedding caller gathers to build a
// bundle: the local system's current priors, the pattern/stats pairs worth
// sharing, and a baseline observation rate for the importer to normalise
// against.
type ExportInput struct {
	SourceSystem   string
	Priors         model.PriorParameters
	Patterns       []model.TransferPatternEntry
	Baseline       float64
	ExportedAtUnix int64
}

// Export builds a TransferBundle and stamps its checksum last, over the
// canonical JSON encoding with the checksum field blanked.
func Export(in ExportInput) (model.TransferBundle, error) {
	bundle := model.TransferBundle{
		SchemaMajor:    model.TransferSchemaMajor,
		SchemaMinor:    model.TransferSchemaMinor,
		SourceSystem:   in.SourceSystem,
		ExportedAtUnix: in.ExportedAtUnix,
		Patterns:       in.Patterns,
		Priors:         in.Priors,
		Baseline:       in.Baseline,
	}
	sum, err := canonicalChecksum(bundle)
	if err != nil {
		return model.TransferBundle{}, fmt.Errorf("transfer: compute checksum: %w", err)
	}
	bundle.Checksum = sum
	return bundle, nil
}

// canonicalChecksum returns the SHA-256 hex digest of bundle's JSON
// encoding with Checksum cleared. encoding/json's alphabetical map-key
// ordering (Priors.Classes, ClassPriorParameters.Beta) makes this
// deterministic without a bespoke canonicaliser.
func canonicalChecksum(bundle model.TransferBundle) (string, error) {
	bundle.Checksum = ""
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Validation carries non-fatal warnings surfaced by Validate: a newer
// minor schema version, or prior-sum drift below the reject threshold.
type Validation struct {
	Warnings []string
}

// Validate checks schema compatibility, checksum integrity, and class
// prior-sum validity, in that order, per spec §4.8. A major version
// mismatch, checksum mismatch, or prior sum outside 1±0.01 is a rejection
// (non-nil error); a newer minor version or a sum within 0.01 but outside
// 1e-6 is recorded as a warning and the bundle is still usable.
func Validate(bundle model.TransferBundle) (Validation, error) {
	var v Validation

	if !bundle.CompatibleMajor() {
		return v, fmt.Errorf("%w: bundle major %d, local major %d", ErrMajorVersionMismatch, bundle.SchemaMajor, model.TransferSchemaMajor)
	}
	if bundle.SchemaMinor > model.TransferSchemaMinor {
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"bundle schema %d.%d is newer than this build's %d.%d; unrecognised fields are ignored",
			bundle.SchemaMajor, bundle.SchemaMinor, model.TransferSchemaMajor, model.TransferSchemaMinor))
	}

	want, err := canonicalChecksum(bundle)
	if err != nil {
		return v, fmt.Errorf("transfer: recompute checksum: %w", err)
	}
	if want != bundle.Checksum {
		return v, fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, want, bundle.Checksum)
	}

	sum := bundle.Priors.SumProbabilities()
	if !bundle.Priors.ValidSum(priorSumRejectTolerance) {
		return v, fmt.Errorf("%w: sum=%.6f", ErrPriorSumInvalid, sum)
	}
	if !bundle.Priors.ValidSum(priorSumWarnTolerance) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("class priors drifted from 1.0 (sum=%.9f)", sum))
	}

	return v, nil
}

// priorMergeWeight derives the single bundle-level weight applied to every
// class's prior probability and Beta parameters during MergePriors, from
// the two systems' baselines (their mean observation rate doubles as a
// proxy for how much evidence backs each side's priors). Falls back to an
// even split when neither baseline is known.
func priorMergeWeight(sourceBaseline, targetBaseline float64) float64 {
	if sourceBaseline <= 0 && targetBaseline <= 0 {
		return 0.5
	}
	return model.MergeWeight(round(sourceBaseline), round(targetBaseline))
}

func round(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Round(v))
}

// scaleBeta multiplies both Beta parameters by scale, flooring at
// model.MinBetaParam, per the baseline-normalisation step of §4.8.
func scaleBeta(b model.BetaParams, scale float64) model.BetaParams {
	return model.BetaParams{Alpha: b.Alpha * scale, Beta: b.Beta * scale}.Clamped()
}

// MergePriors computes the weighted merge of an imported bundle's class
// priors against the local system's, per spec §4.8: the incoming Beta
// parameters are first scaled by the baseline-normalisation factor, then
// combined with the existing parameters using a single bundle-level
// weight, and finally the resulting prior probabilities are renormalised
// to sum to 1. Callers should run Validate first; MergePriors does not
// re-check checksum or schema compatibility.
func MergePriors(bundle model.TransferBundle, local model.PriorParameters, localBaseline float64) model.PriorParameters {
	scale := model.BaselineScale(bundle.Baseline, localBaseline)
	weight := priorMergeWeight(bundle.Baseline, localBaseline)

	merged := model.PriorParameters{Classes: map[string]model.ClassPriorParameters{}}
	var probSum float64

	for _, c := range model.AllClasses() {
		incoming := bundle.Priors.ClassPrior(c)
		existing := local.ClassPrior(c)

		mc := model.ClassPriorParameters{
			Beta:          map[string]model.BetaParams{},
			Runtime:       existing.Runtime,
			Hazard:        existing.Hazard,
			CommandCounts: existing.CommandCounts,
			CwdCounts:     existing.CwdCounts,
		}
		for _, f := range model.AllBernoulliFeatures() {
			incomingBeta := scaleBeta(incoming.BetaFor(f), scale)
			mc.Beta[f.String()] = model.MergeBeta(incomingBeta, existing.BetaFor(f), weight)
		}
		mc.PriorProbability = weight*incoming.PriorProbability + (1-weight)*existing.PriorProbability
		probSum += mc.PriorProbability
		merged.Classes[c.String()] = mc
	}

	if probSum > 0 {
		for name, mc := range merged.Classes {
			mc.PriorProbability /= probSum
			merged.Classes[name] = mc
		}
	}
	return merged
}
