package patterns

import (
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	dir := t.TempDir()
	lib, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func TestAddCustom_RejectsDuplicateName(t *testing.T) {
	lib := newTestLibrary(t)
	sig := model.Signature{Name: "jest-watch", Category: model.CmdTest, Confidence: 0.9}
	if err := lib.AddCustom(sig); err != nil {
		t.Fatalf("first AddCustom: %v", err)
	}
	if err := lib.AddCustom(sig); err == nil {
		t.Fatal("expected ErrNameExists on duplicate add")
	}
}

func TestRemovePattern_RejectsBuiltin(t *testing.T) {
	lib := newTestLibrary(t)
	lib.builtin["core-shell"] = model.PersistedPattern{
		Signature: model.Signature{Name: "core-shell"},
		Source:    model.SourceBuiltin,
		Lifecycle: model.LifecycleStable,
	}
	if err := lib.RemovePattern("core-shell"); err == nil {
		t.Fatal("expected ErrBuiltinImmutable")
	}
}

func TestDisableEnable_RestoresActiveListing(t *testing.T) {
	lib := newTestLibrary(t)
	sig := model.Signature{Name: "vite-dev", Category: model.CmdDevServer, Priority: 5}
	if err := lib.AddCustom(sig); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}
	before := len(lib.ActivePatterns())

	lib.Disable("vite-dev")
	if got := len(lib.ActivePatterns()); got != before-1 {
		t.Fatalf("after disable: got %d active, want %d", got, before-1)
	}

	lib.Enable("vite-dev")
	if got := len(lib.ActivePatterns()); got != before {
		t.Fatalf("after enable: got %d active, want %d", got, before)
	}
}

func TestUpdateLifecycles_OneStepPerSweep(t *testing.T) {
	lib := newTestLibrary(t)
	sig := model.Signature{Name: "heavy-matcher", Category: model.CmdBuild}
	if err := lib.AddCustom(sig); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}

	for i := 0; i < 11; i++ {
		lib.RecordMatch("heavy-matcher", true, int64(i+1))
	}

	lib.UpdateLifecycles()
	p, _, _ := lib.lookupLocked("heavy-matcher")
	if p.Lifecycle != model.LifecycleLearning {
		t.Fatalf("after first sweep: lifecycle = %s, want learning", p.Lifecycle)
	}

	lib.UpdateLifecycles()
	p, _, _ = lib.lookupLocked("heavy-matcher")
	if p.Lifecycle != model.LifecycleStable {
		t.Fatalf("after second sweep: lifecycle = %s, want stable", p.Lifecycle)
	}
}

func TestImport_KeepExistingIsNoOp(t *testing.T) {
	lib := newTestLibrary(t)
	sig := model.Signature{Name: "jest-ci", Category: model.CmdTest, Confidence: 0.5}
	if err := lib.AddCustom(sig); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}

	incoming := model.SignatureSchema{
		SchemaVersion: 1,
		Patterns: []model.PersistedPattern{
			{Signature: model.Signature{Name: "jest-ci", Category: model.CmdTest, Confidence: 0.99}},
		},
	}
	report := lib.Import(incoming, ResolveKeepExisting)
	if report.Skipped != 1 || report.Updated != 0 {
		t.Fatalf("report = %+v, want 1 skipped 0 updated", report)
	}
	p, _, _ := lib.lookupLocked("jest-ci")
	if p.Signature.Confidence != 0.5 {
		t.Fatalf("confidence changed on keep_existing import: %v", p.Signature.Confidence)
	}
}

func TestSave_ClearsDirtyFlag(t *testing.T) {
	lib := newTestLibrary(t)
	if err := lib.AddCustom(model.Signature{Name: "p1"}); err != nil {
		t.Fatalf("AddCustom: %v", err)
	}
	if !lib.Dirty() {
		t.Fatal("expected dirty after AddCustom")
	}
	if err := lib.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if lib.Dirty() {
		t.Fatal("expected clean after Save")
	}
}
