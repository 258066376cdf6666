package model

// ProcessIdentity is the stable key a process candidate is tracked under.
// A pid reused after exit is a new entity: all decisions are keyed on
// StartID, never on PID alone.
type ProcessIdentity struct {
	PID     uint32 `json:"pid"`
	StartID string `json:"start_id"`
}

// FDInfo describes a single open file descriptor as reported by the probe.
type FDInfo struct {
	FD         int    `json:"fd"`
	AccessMode int    `json:"access_mode"` // 0=O_RDONLY 1=O_WRONLY 2=O_RDWR (matches open(2) low bits)
	Target     string `json:"target"`
}

// IOCounters is the cumulative I/O counters for a process, as read from the
// platform equivalent of /proc/[pid]/io.
type IOCounters struct {
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
	RChar      uint64 `json:"rchar"`
	WChar      uint64 `json:"wchar"`
}

// ProcessObservation is one process's worth of data for a single scan tick,
// as produced by the platform probe (enumeration is the probe's job, not the
// core's — see spec §1 Non-goals).
type ProcessObservation struct {
	Identity ProcessIdentity `json:"identity"`

	PPID    uint32 `json:"ppid"`
	Comm    string `json:"comm"`
	Cmdline string `json:"cmdline"`
	User    string `json:"user"`
	UID     uint32 `json:"uid"`
	Cwd     string `json:"cwd"`
	State   byte   `json:"state"` // 'R','S','D','Z','T', ...
	TTYNr   int32  `json:"tty_nr"`
	PGrp    uint32 `json:"pgrp"`
	SID     uint32 `json:"sid"`
	TPGID   int32  `json:"tpgid"`

	RSSBytes uint64 `json:"rss_bytes"`
	CPUTicks uint64 `json:"cpu_ticks"`

	FDs        []FDInfo   `json:"fds,omitempty"`
	IOCounters IOCounters `json:"io_counters"`

	EnvironSnapshot map[string]string `json:"environ_snapshot,omitempty"`
	CgroupLines     []string          `json:"cgroup_lines,omitempty"`

	// StartedAt/observed-at fields are carried for runtime/hazard Gamma
	// evidence; the probe supplies process start time in unix seconds.
	StartUnixSec int64 `json:"start_unix_sec"`
	ObservedUnix int64 `json:"observed_unix_sec"`
}

// HasControllingTTY reports whether the observation indicates a controlling
// terminal is attached (tty_nr != 0).
func (o ProcessObservation) HasControllingTTY() bool {
	return o.TTYNr != 0
}

// IsSessionLeader reports whether this process is its own session leader.
func (o ProcessObservation) IsSessionLeader() bool {
	return o.SID == o.Identity.PID
}

// IsForeground reports whether this process's group is the foreground
// process group of its controlling terminal.
func (o ProcessObservation) IsForeground() bool {
	return o.TPGID >= 0 && uint32(o.TPGID) == o.PGrp
}

// RuntimeSeconds returns the process age at observation time.
func (o ProcessObservation) RuntimeSeconds() float64 {
	if o.ObservedUnix <= o.StartUnixSec {
		return 0
	}
	return float64(o.ObservedUnix - o.StartUnixSec)
}
