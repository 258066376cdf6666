package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// fakeProcDir builds a minimal /proc/<pid>-shaped directory holding only a
// stat file (the one readStat reads), so the stat parsing logic can be
// exercised without a real /proc.
func fakeProcDir(t *testing.T, stat string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644); err != nil {
		t.Fatalf("write stat: %v", err)
	}
	return dir
}

func TestReadStat_ParsesCommAndFields(t *testing.T) {
	// pid comm state ppid pgrp session tty_nr tpgid flags minflt cminflt
	// majflt cmajflt utime stime cutime cstime priority nice num_threads
	// itrealvalue starttime ...
	stat := "123 (bash) S 10 123 123 0 -1 0 0 0 0 0 50 25 0 0 20 0 1 0 4000 0 0\n"
	dir := fakeProcDir(t, stat)

	var obs model.ProcessObservation
	startTicks, err := readStat(dir, &obs)
	if err != nil {
		t.Fatalf("readStat: %v", err)
	}
	if obs.Comm != "bash" {
		t.Fatalf("expected comm=bash, got %q", obs.Comm)
	}
	if obs.PPID != 10 {
		t.Fatalf("expected ppid=10, got %d", obs.PPID)
	}
	if obs.CPUTicks != 75 {
		t.Fatalf("expected cpu_ticks=75 (utime+stime), got %d", obs.CPUTicks)
	}
	if startTicks != 4000 {
		t.Fatalf("expected starttime=4000, got %d", startTicks)
	}
}

func TestReadStat_HandlesCommWithParens(t *testing.T) {
	stat := "123 (my (weird) proc) S 10 123 123 0 -1 0 0 0 0 0 0 0 0 0 20 0 1 0 100 0 0\n"
	dir := fakeProcDir(t, stat)

	var obs model.ProcessObservation
	if _, err := readStat(dir, &obs); err != nil {
		t.Fatalf("readStat: %v", err)
	}
	if obs.Comm != "my (weird) proc" {
		t.Fatalf("expected comm to preserve inner parens, got %q", obs.Comm)
	}
}

func TestReadStat_ErrorsOnTruncatedStat(t *testing.T) {
	dir := fakeProcDir(t, "123 (bash) S 10\n")
	var obs model.ProcessObservation
	if _, err := readStat(dir, &obs); err == nil {
		t.Fatal("expected an error for a too-short stat line")
	}
}
