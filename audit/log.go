// Package audit implements the append-only, hash-chained JSONL log (§4.7):
// every entry's hash is computed over its own canonical JSON (with the hash
// field itself cleared) and chained from the previous entry's hash, so the
// file can be independently verified end to end. Grounded on
// ftahirops-xtop/engine/eventlog.go's JSONL writer/reader shape
// (os.OpenFile append-create, bufio.Scanner with a bounded line buffer),
// extended with the hash chain, rotation, and checkpointing this log adds.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/joyshmitz/process-triage-sub001/model"
)

const (
	logFileName    = "audit.jsonl"
	maxScanLineLen = 4 * 1024 * 1024
	// SchemaVersion is stamped on every entry this writer produces.
	SchemaVersion = 1
)

// Writer appends hash-chained entries to the audit log, rotating the file
// once it crosses a configured size threshold.
type Writer struct {
	mu sync.Mutex

	dir          string
	path         string
	f            *os.File
	maxSizeBytes int64

	lastHash    string
	entryCount  uint64
	seq         uint64
	entryHashes []string // hashes of entries written since the last rotation
}

// Open resolves dir, creating it if needed, and recovers chain state from
// an existing audit.jsonl (if any) by streaming it end to end. A fresh log
// seeds at (model.GenesisHash, 0).
func Open(dir string, maxSizeBytes int64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}
	path := filepath.Join(dir, logFileName)

	w := &Writer{
		dir: dir, path: path, maxSizeBytes: maxSizeBytes,
		lastHash: model.GenesisHash,
	}

	if err := w.recover(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	w.f = f
	return w, nil
}

// recover streams an existing audit.jsonl (if present) to reconstruct
// (lastHash, entryCount, seq, entryHashes) rather than trusting anything
// cached elsewhere.
func (w *Writer) recover() error {
	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit: recover: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScanLineLen)
	for scanner.Scan() {
		var entry model.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines rather than fail recovery outright
		}
		w.lastHash = entry.EntryHash
		w.entryCount++
		w.seq = entry.SeqNum + 1
		w.entryHashes = append(w.entryHashes, entry.EntryHash)
	}
	return scanner.Err()
}

// hashEntry computes the entry's hash over its canonical JSON encoding with
// EntryHash cleared. encoding/json sorts map keys alphabetically, so the
// Detail field's encoding is already deterministic without extra work.
func hashEntry(entry model.AuditEntry) (string, error) {
	entry.EntryHash = ""
	data, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// writeEntry stamps schema/seq/chain fields, hashes, appends, flushes, and
// rotates if the file has grown past maxSizeBytes.
func (w *Writer) writeEntry(entry model.AuditEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry.SchemaVersion = SchemaVersion
	entry.SeqNum = w.seq
	if entry.TimestampUnix == 0 {
		entry.TimestampUnix = time.Now().Unix()
	}
	entry.PrevHash = w.lastHash

	hash, err := hashEntry(entry)
	if err != nil {
		return fmt.Errorf("audit: hash entry: %w", err)
	}
	entry.EntryHash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("audit: flush entry: %w", err)
	}

	w.lastHash = hash
	w.entryCount++
	w.seq++
	w.entryHashes = append(w.entryHashes, hash)

	return w.rotateIfNeeded()
}

// rotateIfNeeded renames the active log once it crosses maxSizeBytes and
// starts a fresh one, chaining the new segment from a "rotated:<filename>"
// sentinel rather than the old segment's last hash (the old segment is
// independently verifiable on its own).
func (w *Writer) rotateIfNeeded() error {
	if w.maxSizeBytes <= 0 {
		return nil
	}
	info, err := w.f.Stat()
	if err != nil {
		return fmt.Errorf("audit: stat log: %w", err)
	}
	if info.Size() < w.maxSizeBytes {
		return nil
	}

	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("audit: flush before rotation: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("audit: close before rotation: %w", err)
	}

	target, err := w.freeRotatedName()
	if err != nil {
		return err
	}
	if err := os.Rename(w.path, target); err != nil {
		return fmt.Errorf("audit: rename log: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: reopen log after rotation: %w", err)
	}
	w.f = f
	w.lastHash = "rotated:" + filepath.Base(target)
	w.entryCount = 0
	w.entryHashes = nil
	return nil
}

// freeRotatedName finds the first unused audit.<timestamp>[-<n>].jsonl path.
func (w *Writer) freeRotatedName() (string, error) {
	stamp := time.Now().Format("20060102-150405.000000")
	stamp = stringsReplaceDot(stamp)
	base := fmt.Sprintf("audit.%s.jsonl", stamp)
	candidate := filepath.Join(w.dir, base)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}
	for n := 1; ; n++ {
		base = fmt.Sprintf("audit.%s-%d.jsonl", stamp, n)
		candidate = filepath.Join(w.dir, base)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

// stringsReplaceDot turns time.Format's fractional-second dot into a dash so
// the rotated filename has no extra '.' before the .jsonl extension.
func stringsReplaceDot(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out[i] = '-'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

// Checkpoint records {entry_count, state_hash, reason}: state_hash is the
// SHA-256 of every entry hash written to the current segment, concatenated
// in file order.
func (w *Writer) Checkpoint(reason string) (model.Checkpoint, error) {
	w.mu.Lock()
	concatenated := ""
	for _, h := range w.entryHashes {
		concatenated += h
	}
	sum := sha256.Sum256([]byte(concatenated))
	stateHash := hex.EncodeToString(sum[:])
	segmentEntryCount := w.entryCount
	cp := model.Checkpoint{
		UpToSeqNum:    w.seq,
		StateHash:     stateHash,
		TimestampUnix: time.Now().Unix(),
	}
	w.mu.Unlock()

	err := w.writeEntry(model.AuditEntry{
		Kind:    model.AuditCheckpoint,
		Message: fmt.Sprintf("checkpoint at %s entries, reason=%s", humanize.Comma(int64(segmentEntryCount)), reason),
		Detail: map[string]any{
			"entry_count": segmentEntryCount,
			"state_hash":  cp.StateHash,
			"reason":      reason,
		},
	})
	return cp, err
}

// Drop flushes the writer but does not rotate or close the file.
func (w *Writer) Drop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}

// State returns the writer's current chain position, mainly for tests and
// diagnostics.
func (w *Writer) State() (lastHash string, entryCount uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastHash, w.entryCount
}
