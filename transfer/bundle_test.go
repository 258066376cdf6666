package transfer

import (
	"errors"
	"math"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func flatPriors() model.PriorParameters {
	p := model.PriorParameters{Classes: map[string]model.ClassPriorParameters{}}
	for _, c := range model.AllClasses() {
		p.Classes[c.String()] = model.ClassPriorParameters{PriorProbability: 0.25}
	}
	return p
}

func TestExport_RoundTripsChecksum(t *testing.T) {
	bundle, err := Export(ExportInput{
		SourceSystem:   "fleet-a",
		Priors:         flatPriors(),
		Baseline:       12.5,
		ExportedAtUnix: 1000,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if bundle.Checksum == "" {
		t.Fatal("expected a populated checksum")
	}
	if v, err := Validate(bundle); err != nil {
		t.Fatalf("Validate on a freshly exported bundle: %v (warnings=%v)", err, v.Warnings)
	}
}

func TestValidate_RejectsMajorVersionMismatch(t *testing.T) {
	bundle, _ := Export(ExportInput{Priors: flatPriors()})
	bundle.SchemaMajor = model.TransferSchemaMajor + 1
	sum, _ := canonicalChecksum(bundle)
	bundle.Checksum = sum

	if _, err := Validate(bundle); !errors.Is(err, ErrMajorVersionMismatch) {
		t.Fatalf("expected ErrMajorVersionMismatch, got %v", err)
	}
}

func TestValidate_WarnsOnNewerMinorVersion(t *testing.T) {
	bundle, _ := Export(ExportInput{Priors: flatPriors()})
	bundle.SchemaMinor = model.TransferSchemaMinor + 1
	sum, _ := canonicalChecksum(bundle)
	bundle.Checksum = sum

	v, err := Validate(bundle)
	if err != nil {
		t.Fatalf("newer minor should not reject: %v", err)
	}
	if len(v.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", v.Warnings)
	}
}

func TestValidate_RejectsChecksumMismatch(t *testing.T) {
	bundle, _ := Export(ExportInput{Priors: flatPriors()})
	bundle.SourceSystem = "tampered-after-checksum"

	if _, err := Validate(bundle); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestValidate_RejectsPriorSumFarFromOne(t *testing.T) {
	priors := flatPriors()
	cp := priors.Classes[model.ClassAbandoned.String()]
	cp.PriorProbability += 0.5 // sum now 1.5, well outside 1±0.01
	priors.Classes[model.ClassAbandoned.String()] = cp

	bundle, _ := Export(ExportInput{Priors: priors})
	if _, err := Validate(bundle); !errors.Is(err, ErrPriorSumInvalid) {
		t.Fatalf("expected ErrPriorSumInvalid, got %v", err)
	}
}

func TestValidate_WarnsOnSmallPriorDrift(t *testing.T) {
	priors := flatPriors()
	cp := priors.Classes[model.ClassAbandoned.String()]
	cp.PriorProbability += 0.0005 // within 0.01 reject bound, outside 1e-6 warn bound
	priors.Classes[model.ClassAbandoned.String()] = cp

	bundle, _ := Export(ExportInput{Priors: priors})
	v, err := Validate(bundle)
	if err != nil {
		t.Fatalf("small drift should not reject: %v", err)
	}
	if len(v.Warnings) != 1 {
		t.Fatalf("expected a drift warning, got %v", v.Warnings)
	}
}

func TestMergeBeta_WorkedExample(t *testing.T) {
	// Spec §8 scenario 5: (10,10) and (2,8) with weights (1,3) -> (4.0, 8.5).
	// alpha = 0.25*10 + 0.75*2 = 4.0; beta = 0.25*10 + 0.75*8 = 8.5.
	weight := model.MergeWeight(1, 3) // incoming=1 "share", existing=3 "share" -> 0.25 incoming
	got := model.MergeBeta(model.BetaParams{Alpha: 10, Beta: 10}, model.BetaParams{Alpha: 2, Beta: 8}, weight)
	if math.Abs(got.Alpha-4.0) > 1e-9 || math.Abs(got.Beta-8.5) > 1e-9 {
		t.Fatalf("got (%v,%v), want (4.0,8.5)", got.Alpha, got.Beta)
	}
}

func TestBaselineScale_WorkedExample(t *testing.T) {
	// Spec §8 scenario 6: source=1, target=1_000_000 -> clamp to 10x.
	scale := model.BaselineScale(1, 1_000_000)
	if scale != 10.0 {
		t.Fatalf("scale = %v, want 10.0", scale)
	}
	b := scaleBeta(model.BetaParams{Alpha: 1, Beta: 1}, scale)
	if b.Alpha != 10 || b.Beta != 10 {
		t.Fatalf("scaled beta = %+v, want (10,10)", b)
	}
	// A further 10x call against the same source/target is a no-op beyond the clamp.
	if model.BaselineScale(1, 1_000_000) != 10.0 {
		t.Fatal("expected repeated clamp to stay at 10.0")
	}
}

func TestMergePriors_RenormalisesToOne(t *testing.T) {
	incoming := flatPriors()
	local := flatPriors()
	bundle, _ := Export(ExportInput{Priors: incoming, Baseline: 100})

	merged := MergePriors(bundle, local, 100)

	var sum float64
	for _, c := range model.AllClasses() {
		sum += merged.ClassPrior(c).PriorProbability
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("merged prior sum = %v, want 1.0", sum)
	}
}

func TestMergePriors_EqualBaselinesAverageBetaParams(t *testing.T) {
	incoming := flatPriors()
	cp := incoming.Classes[model.ClassUseful.String()]
	cp.Beta = map[string]model.BetaParams{model.FeatureCPUBusy.String(): {Alpha: 10, Beta: 2}}
	incoming.Classes[model.ClassUseful.String()] = cp

	local := flatPriors()
	cp2 := local.Classes[model.ClassUseful.String()]
	cp2.Beta = map[string]model.BetaParams{model.FeatureCPUBusy.String(): {Alpha: 2, Beta: 10}}
	local.Classes[model.ClassUseful.String()] = cp2

	bundle, _ := Export(ExportInput{Priors: incoming, Baseline: 50})
	merged := MergePriors(bundle, local, 50) // equal baselines -> weight 0.5

	got := merged.ClassPrior(model.ClassUseful).BetaFor(model.FeatureCPUBusy)
	if math.Abs(got.Alpha-6) > 1e-9 || math.Abs(got.Beta-6) > 1e-9 {
		t.Fatalf("got (%v,%v), want (6,6) from an even split", got.Alpha, got.Beta)
	}
}

func TestMergePriors_ZeroBaselinesSkipScaling(t *testing.T) {
	incoming := flatPriors()
	local := flatPriors()
	bundle, _ := Export(ExportInput{Priors: incoming, Baseline: 0})

	// Should not panic and should still produce a valid, normalised result.
	merged := MergePriors(bundle, local, 0)
	if !merged.ValidSum(1e-9) {
		t.Fatalf("sum = %v, want ~1.0", merged.SumProbabilities())
	}
}
