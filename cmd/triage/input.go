package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// scanReader decodes one scan's worth of probe output at a time. Each call
// to Next reads a single JSON-encoded batch (a JSON array of
// model.ProcessObservation, §6 "Probe -> core input") from one line of the
// underlying stream — newline-delimited so a long-running probe can emit
// one line per tick without framing ambiguity.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(r io.Reader) *scanReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &scanReader{scanner: scanner}
}

// Next returns the next scan batch, or io.EOF once the stream is exhausted.
// Blank lines are skipped so a probe can pad its output freely.
func (s *scanReader) Next() ([]model.ProcessObservation, error) {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var batch []model.ProcessObservation
		if err := json.Unmarshal(line, &batch); err != nil {
			return nil, fmt.Errorf("triage: decode scan batch: %w", err)
		}
		return batch, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("triage: read scan batch: %w", err)
	}
	return nil, io.EOF
}
