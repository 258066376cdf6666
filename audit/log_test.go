package audit

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

func openTestWriter(t *testing.T, maxSizeBytes int64) *Writer {
	t.Helper()
	dir := t.TempDir()
	w, err := Open(dir, maxSizeBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestOpen_FreshLogSeedsAtGenesis(t *testing.T) {
	w := openTestWriter(t, 0)
	lastHash, count := w.State()
	if lastHash != model.GenesisHash || count != 0 {
		t.Fatalf("got (%q, %d), want (%q, 0)", lastHash, count, model.GenesisHash)
	}
}

func TestLogScan_ChainsFromGenesis(t *testing.T) {
	w := openTestWriter(t, 0)
	if err := w.LogScan(model.ProcessIdentity{PID: 1}, 1024, nil); err != nil {
		t.Fatalf("LogScan: %v", err)
	}
	entries, err := ReadEntries(w.path)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].PrevHash != model.GenesisHash {
		t.Fatalf("prev_hash = %q, want genesis", entries[0].PrevHash)
	}
	if entries[0].EntryHash == "" {
		t.Fatalf("expected a populated entry_hash")
	}
}

func TestWriteEntry_ChainsConsecutiveEntries(t *testing.T) {
	w := openTestWriter(t, 0)
	if err := w.LogScan(model.ProcessIdentity{PID: 1}, 0, nil); err != nil {
		t.Fatalf("LogScan: %v", err)
	}
	if err := w.LogScan(model.ProcessIdentity{PID: 2}, 0, nil); err != nil {
		t.Fatalf("LogScan: %v", err)
	}
	entries, _ := ReadEntries(w.path)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].PrevHash != entries[0].EntryHash {
		t.Fatalf("entry 1 prev_hash = %q, want entry 0's entry_hash %q", entries[1].PrevHash, entries[0].EntryHash)
	}
	if entries[0].SeqNum != 0 || entries[1].SeqNum != 1 {
		t.Fatalf("seq nums = %d, %d, want 0, 1", entries[0].SeqNum, entries[1].SeqNum)
	}
}

func TestVerifyChain_DetectsTamperedEntry(t *testing.T) {
	w := openTestWriter(t, 0)
	_ = w.LogScan(model.ProcessIdentity{PID: 1}, 0, nil)
	_ = w.LogScan(model.ProcessIdentity{PID: 2}, 0, nil)
	entries, _ := ReadEntries(w.path)

	if brokenAt, err := VerifyChain(entries, model.GenesisHash); brokenAt != -1 || err != nil {
		t.Fatalf("expected a clean chain, got brokenAt=%d err=%v", brokenAt, err)
	}

	entries[0].Message = "tampered"
	if brokenAt, err := VerifyChain(entries, model.GenesisHash); brokenAt != 0 || err == nil {
		t.Fatalf("expected tampering detected at index 0, got brokenAt=%d err=%v", brokenAt, err)
	}
}

func TestRecover_ReloadsChainStateFromExistingFile(t *testing.T) {
	dir := t.TempDir()
	w1, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = w1.LogScan(model.ProcessIdentity{PID: 1}, 0, nil)
	_ = w1.LogScan(model.ProcessIdentity{PID: 2}, 0, nil)
	lastHash, count := w1.State()
	_ = w1.Close()

	w2, err := Open(dir, 0)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer w2.Close()

	recoveredHash, recoveredCount := w2.State()
	if recoveredHash != lastHash || recoveredCount != count {
		t.Fatalf("recovered (%q, %d), want (%q, %d)", recoveredHash, recoveredCount, lastHash, count)
	}
}

func TestRotation_TriggersAtSizeThresholdAndResetsChain(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, 200) // small threshold to force rotation quickly
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	for i := 0; i < 20; i++ {
		if err := w.LogScan(model.ProcessIdentity{PID: uint32(i)}, 0, nil); err != nil {
			t.Fatalf("LogScan iteration %d: %v", i, err)
		}
	}

	lastHash, count := w.State()
	if count >= 20 {
		t.Fatalf("expected rotation to have reset entry count, got %d", count)
	}
	if !strings.HasPrefix(lastHash, "rotated:") {
		t.Fatalf("last_hash = %q, want a rotated:<filename> sentinel", lastHash)
	}

	matches, globErr := filepath.Glob(filepath.Join(dir, "audit.*.jsonl"))
	if globErr != nil {
		t.Fatalf("glob: %v", globErr)
	}
	if len(matches) == 0 {
		t.Fatalf("expected at least one rotated file on disk")
	}
}

func TestCheckpoint_RecordsEntryCountAndStateHash(t *testing.T) {
	w := openTestWriter(t, 0)
	_ = w.LogScan(model.ProcessIdentity{PID: 1}, 0, nil)
	_ = w.LogScan(model.ProcessIdentity{PID: 2}, 0, nil)

	cp, err := w.Checkpoint("periodic")
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if cp.UpToSeqNum != 2 {
		t.Fatalf("up_to_seq_num = %d, want 2 (checkpoint seeded before its own entry was appended)", cp.UpToSeqNum)
	}
	if cp.StateHash == "" {
		t.Fatalf("expected a populated state hash")
	}

	entries, _ := ReadEntries(w.path)
	last := entries[len(entries)-1]
	if last.Kind != model.AuditCheckpoint {
		t.Fatalf("last entry kind = %v, want checkpoint", last.Kind)
	}
	if last.Detail["reason"] != "periodic" {
		t.Fatalf("checkpoint detail reason = %v, want periodic", last.Detail["reason"])
	}
}

func TestLogAction_RecordsBlockedStatus(t *testing.T) {
	w := openTestWriter(t, 0)
	if err := w.LogAction(model.ProcessIdentity{PID: 1}, model.ActionKill, false, nil, map[string]any{"why": "posterior too low"}); err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	entries, _ := ReadEntries(w.path)
	if entries[0].Message != "blocked kill" {
		t.Fatalf("message = %q, want %q", entries[0].Message, "blocked kill")
	}
}

func TestLogError_RecordsContext(t *testing.T) {
	w := openTestWriter(t, 0)
	if err := w.LogError("probe failed", errSentinel{"disk unreadable"}); err != nil {
		t.Fatalf("LogError: %v", err)
	}
	entries, _ := ReadEntries(w.path)
	if entries[0].Kind != model.AuditError {
		t.Fatalf("kind = %v, want error", entries[0].Kind)
	}
}

type errSentinel struct{ msg string }

func (e errSentinel) Error() string { return e.msg }
