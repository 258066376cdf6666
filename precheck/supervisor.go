package precheck

import "strings"

// RemedyAction is the recommended way to stop a supervisor-managed process
// without fighting its supervisor (which would otherwise just restart it).
type RemedyAction int

const (
	RemedyKillDirect RemedyAction = iota
	RemedyServiceRestart
	RemedyServiceStop
)

func (r RemedyAction) String() string {
	switch r {
	case RemedyServiceRestart:
		return "restart_via_supervisor"
	case RemedyServiceStop:
		return "stop_via_supervisor"
	default:
		return "kill_direct"
	}
}

// SupervisorInfo describes whether a process is managed by an external
// supervisor (systemd unit or a process-level daemon like supervisord,
// containerd-shim, runsv) and, if so, the safe remedy for it.
type SupervisorInfo struct {
	Managed bool
	Unit    string
	Remedy  RemedyAction
}

var parentSupervisorComms = map[string]bool{
	"supervisord":      true,
	"containerd-shim":  true,
	"runsv":            true,
	"s6-supervise":     true,
	"monit":            true,
}

// extractCgroupUnit pulls the last path segment out of the first cgroup
// line naming a .service or .scope unit. A line naming only a .slice is not
// a unit on its own (slices group units, they are not themselves managed
// processes) and is skipped.
func extractCgroupUnit(cgroupLines []string) string {
	for _, line := range cgroupLines {
		path := line
		if idx := strings.LastIndex(line, ":"); idx >= 0 {
			path = line[idx+1:]
		}
		segs := strings.Split(path, "/")
		last := segs[len(segs)-1]
		if strings.HasSuffix(last, ".service") || strings.HasSuffix(last, ".scope") {
			return last
		}
	}
	return ""
}

// DetectSupervisor classifies a process's supervision state from its cgroup
// membership and its parent's command name. Exported so the planner can
// consult it directly when routing a kill through a supervisor-aware path,
// without re-running the full pre-check chain.
func DetectSupervisor(cgroupLines []string, parentComm string) SupervisorInfo {
	if unit := extractCgroupUnit(cgroupLines); unit != "" {
		info := SupervisorInfo{Managed: true, Unit: unit}
		switch {
		case strings.HasSuffix(unit, ".service"):
			info.Remedy = RemedyServiceRestart
		case strings.HasSuffix(unit, ".scope"):
			info.Remedy = RemedyServiceStop
		default:
			info.Remedy = RemedyKillDirect
		}
		return info
	}
	if parentSupervisorComms[strings.ToLower(parentComm)] {
		return SupervisorInfo{Managed: true, Unit: parentComm, Remedy: RemedyKillDirect}
	}
	return SupervisorInfo{}
}
