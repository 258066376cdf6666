package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joyshmitz/process-triage-sub001/model"
	"github.com/joyshmitz/process-triage-sub001/util"
)

// procProber re-resolves a single already-known PID against live /proc
// state. It implements pipeline.Prober, precheck.Prober, identity.Prober,
// and userintent.AncestorProvider (all the same one-method shape), but it
// never walks /proc itself to discover PIDs: enumeration is the platform
// probe's job, upstream of this binary, per the core's own non-goals.
// Grounded on ftahirops-xtop/collector/process.go's readProcess/readProcStat/
// readProcStatus/readProcIO/readProcCgroup helpers, narrowed from "collect
// every process" to "re-read one already-known pid".
type procProber struct{}

func (procProber) Reprobe(pid uint32) (model.ProcessObservation, bool) {
	obs, err := readProcessObservation(pid)
	if err != nil {
		return model.ProcessObservation{}, false
	}
	return obs, true
}

func (procProber) Observation(pid uint32) (model.ProcessObservation, bool) {
	return procProber{}.Reprobe(pid)
}

func readProcessObservation(pid uint32) (model.ProcessObservation, error) {
	dir := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(dir); err != nil {
		return model.ProcessObservation{}, err
	}

	obs := model.ProcessObservation{
		Identity:     model.ProcessIdentity{PID: pid},
		ObservedUnix: time.Now().Unix(),
	}

	startTicks, err := readStat(dir, &obs)
	if err != nil {
		return model.ProcessObservation{}, err
	}
	readStatus(dir, &obs)
	readCmdline(dir, &obs)
	readCwd(dir, &obs)
	readFDs(dir, &obs)
	readIO(dir, &obs)
	readCgroup(dir, &obs)

	obs.Identity.StartID = fmt.Sprintf("%d:%d", pid, startTicks)
	return obs, nil
}

// readStat parses /proc/<pid>/stat and returns the kernel's starttime
// field (ticks since boot), the piece of process identity the StartID
// above is built from: the combination of pid and starttime is what the
// kernel itself uses to distinguish a live process from a reused pid.
func readStat(dir string, obs *model.ProcessObservation) (uint64, error) {
	content, err := util.ReadFileString(filepath.Join(dir, "stat"))
	if err != nil {
		return 0, err
	}
	openIdx := strings.Index(content, "(")
	closeIdx := strings.LastIndex(content, ")")
	if openIdx < 0 || closeIdx < openIdx {
		return 0, fmt.Errorf("triage: malformed /proc/%d/stat", obs.Identity.PID)
	}
	obs.Comm = content[openIdx+1 : closeIdx]
	rest := strings.Fields(content[closeIdx+2:])
	if len(rest) < 20 {
		return 0, fmt.Errorf("triage: /proc/%d/stat too short", obs.Identity.PID)
	}

	obs.State = rest[0][0]
	obs.PPID = uint32(util.ParseInt(rest[1]))
	obs.PGrp = uint32(util.ParseInt(rest[2]))
	obs.SID = uint32(util.ParseInt(rest[3]))
	obs.TTYNr = int32(util.ParseInt(rest[4]))
	obs.TPGID = int32(util.ParseInt(rest[5]))
	utime := util.ParseUint64(rest[11])
	stime := util.ParseUint64(rest[12])
	obs.CPUTicks = utime + stime

	startTicks := util.ParseUint64(rest[19])
	if bootUnix := bootTimeUnix(); bootUnix > 0 {
		obs.StartUnixSec = bootUnix + int64(startTicks/linuxClockTicksPerSecond)
	}
	return startTicks, nil
}

// linuxClockTicksPerSecond mirrors pipeline.linuxClockTicksPerSecond; kept
// separate since cmd/triage must not depend on pipeline internals.
const linuxClockTicksPerSecond = 100.0

func bootTimeUnix() int64 {
	kv, err := util.ParseKeyValueFile("/proc/stat")
	if err != nil {
		return 0
	}
	return int64(util.ParseUint64(kv["btime"]))
}

func readStatus(dir string, obs *model.ProcessObservation) {
	kv, err := util.ParseKeyValueFile(filepath.Join(dir, "status"))
	if err != nil {
		return
	}
	if uidLine, ok := kv["Uid"]; ok {
		fields := strings.Fields(uidLine)
		if len(fields) > 0 {
			obs.UID = uint32(util.ParseUint64(fields[0]))
		}
	}
	rssKB := strings.Fields(kv["VmRSS"])
	if len(rssKB) > 0 {
		obs.RSSBytes = util.ParseUint64(rssKB[0]) * 1024
	}
	if u, err := userFromUID(obs.UID); err == nil {
		obs.User = u
	}
}

func userFromUID(uid uint32) (string, error) {
	data, err := util.ReadFileString("/etc/passwd")
	if err != nil {
		return "", err
	}
	want := strconv.FormatUint(uint64(uid), 10)
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Split(line, ":")
		if len(fields) > 2 && fields[2] == want {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("uid %d not found", uid)
}

func readCmdline(dir string, obs *model.ProcessObservation) {
	data, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return
	}
	obs.Cmdline = strings.TrimRight(strings.ReplaceAll(string(data), "\x00", " "), " ")
}

func readCwd(dir string, obs *model.ProcessObservation) {
	if target, err := os.Readlink(filepath.Join(dir, "cwd")); err == nil {
		obs.Cwd = target
	}
}

func readFDs(dir string, obs *model.ProcessObservation) {
	fdDir := filepath.Join(dir, "fd")
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		fdNum := util.ParseInt(e.Name())
		target, err := os.Readlink(filepath.Join(fdDir, e.Name()))
		if err != nil {
			continue
		}
		obs.FDs = append(obs.FDs, model.FDInfo{FD: fdNum, Target: target})
	}
}

func readIO(dir string, obs *model.ProcessObservation) {
	kv, err := util.ParseKeyValueFile(filepath.Join(dir, "io"))
	if err != nil {
		return
	}
	obs.IOCounters = model.IOCounters{
		ReadBytes:  util.ParseUint64(kv["read_bytes"]),
		WriteBytes: util.ParseUint64(kv["write_bytes"]),
		RChar:      util.ParseUint64(kv["rchar"]),
		WChar:      util.ParseUint64(kv["wchar"]),
	}
}

func readCgroup(dir string, obs *model.ProcessObservation) {
	lines, err := util.ReadFileLines(filepath.Join(dir, "cgroup"))
	if err != nil {
		return
	}
	obs.CgroupLines = lines
}

// selfIdentity reports the triage process's own identity and session id,
// used by precheck.RunChain's session-safety check to recognise its own
// session rather than treating it as a foreign one.
func selfIdentity() (model.ProcessIdentity, uint32) {
	pid := uint32(os.Getpid())
	obs, err := readProcessObservation(pid)
	sid, _ := syscall.Getsid(os.Getpid())
	if err != nil {
		return model.ProcessIdentity{PID: pid}, uint32(sid)
	}
	return obs.Identity, uint32(sid)
}
