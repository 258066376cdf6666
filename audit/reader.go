package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// ReadEntries reads every entry from a JSONL audit file in order, skipping
// malformed lines rather than failing the whole read.
func ReadEntries(path string) ([]model.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []model.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScanLineLen)
	for scanner.Scan() {
		var e model.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// VerifyChain re-hashes every entry in order and confirms each one's
// PrevHash matches the previous entry's recomputed EntryHash (or
// model.GenesisHash / a "rotated:" sentinel for the first entry), and that
// the stored EntryHash matches what recomputing it yields. Returns the
// index of the first broken entry, or -1 if the whole chain verifies.
func VerifyChain(entries []model.AuditEntry, expectedFirstPrevHash string) (brokenAt int, err error) {
	prev := expectedFirstPrevHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return i, fmt.Errorf("entry %d: prev_hash %q does not match expected %q", i, e.PrevHash, prev)
		}
		want, hashErr := hashEntry(e)
		if hashErr != nil {
			return i, hashErr
		}
		if want != e.EntryHash {
			return i, fmt.Errorf("entry %d: stored entry_hash %q does not match recomputed %q", i, e.EntryHash, want)
		}
		prev = e.EntryHash
	}
	return -1, nil
}
