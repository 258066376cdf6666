package pipeline

import (
	"regexp"
	"strings"

	"github.com/joyshmitz/process-triage-sub001/model"
	"github.com/joyshmitz/process-triage-sub001/patterns"
)

// linuxClockTicksPerSecond is the USER_HZ value process CPU-tick counters
// are reported against on every Linux platform this tool targets (it is not
// actually configurable in practice despite sysconf(_SC_CLK_TCK) formally
// allowing it).
const linuxClockTicksPerSecond = 100.0

// cpuBusyFraction is the minimum lifetime CPU-time fraction for the
// cpu_busy Bernoulli feature to read true. A single observation carries no
// history to diff CPUTicks against a previous tick, so busy-ness is
// approximated from the process's cumulative CPU time divided by its
// wall-clock age rather than an instantaneous rate; this is a deliberate
// simplification documented in DESIGN.md.
const cpuBusyFraction = 0.05

// coreBernoulliFeatures derives the five core evidence signals (§4.3) from
// one raw observation. Each derivation is a documented simplification where
// ProcessObservation doesn't carry the ideal signal directly:
//
//   - tty: obs.HasControllingTTY()
//   - orphan: reparented to init (PPID == 1)
//   - io_active: any cumulative read/write bytes recorded
//   - cpu_busy: lifetime CPU-time fraction at or above cpuBusyFraction
//   - network: any open fd whose resolved target looks like a socket
func coreBernoulliFeatures(obs model.ProcessObservation) map[model.BernoulliFeature]bool {
	age := obs.RuntimeSeconds()
	busy := false
	if age > 0 {
		cpuSeconds := float64(obs.CPUTicks) / linuxClockTicksPerSecond
		busy = (cpuSeconds / age) >= cpuBusyFraction
	}

	return map[model.BernoulliFeature]bool{
		model.FeatureCPUBusy: busy,
		model.FeatureOrphan:  obs.PPID == 1,
		model.FeatureTTY:     obs.HasControllingTTY(),
		model.FeatureNetwork: hasOpenSocket(obs),
		model.FeatureIOActive: obs.IOCounters.ReadBytes > 0 ||
			obs.IOCounters.WriteBytes > 0 ||
			obs.IOCounters.RChar > 0 ||
			obs.IOCounters.WChar > 0,
	}
}

// hasOpenSocket reports whether any of the process's open file descriptors
// resolves to a socket, the usual /proc/<pid>/fd readlink target shape
// ("socket:[12345]") for every platform this probe runs against.
func hasOpenSocket(obs model.ProcessObservation) bool {
	for _, fd := range obs.FDs {
		if strings.HasPrefix(fd.Target, "socket:") {
			return true
		}
	}
	return false
}

// signatureMatch is one matched pattern against a live observation, paired
// with its owning library entry for stats recording.
type signatureMatch struct {
	pattern model.PersistedPattern
}

// matchSignature finds the highest-priority active pattern whose
// process/parent/cmdline regexes all match obs (parent matching is skipped
// when a pattern supplies no parent patterns). Patterns are already
// priority-sorted by Library.ActivePatterns.
func matchSignature(lib *patterns.Library, obs model.ProcessObservation, parentComm string) (signatureMatch, bool) {
	if lib == nil {
		return signatureMatch{}, false
	}
	for _, p := range lib.ActivePatterns() {
		sig := p.Signature
		if !anyMatches(sig.ProcessPatterns, obs.Comm) {
			continue
		}
		if len(sig.ParentPatterns) > 0 && !anyMatches(sig.ParentPatterns, parentComm) {
			continue
		}
		if len(sig.CmdlinePatterns) > 0 && !anyMatches(sig.CmdlinePatterns, obs.Cmdline) {
			continue
		}
		return signatureMatch{pattern: p}, true
	}
	return signatureMatch{}, false
}

func anyMatches(exprs []string, subject string) bool {
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}
