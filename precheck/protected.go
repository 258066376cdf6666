package precheck

import (
	"fmt"
	"os/user"
	"regexp"
	"strings"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// ProtectedMatcher compiles a Guardrails set into fast lookup structures and
// answers "is this process on the protected list" without a caller needing
// to re-walk the policy's raw string slices on every check.
type ProtectedMatcher struct {
	guardrails model.Guardrails
	patterns   []*regexp.Regexp
	users      map[string]bool
	groups     map[string]bool
	categories map[string]bool
	pids       map[uint32]bool
	ppids      map[uint32]bool
}

// NewProtectedMatcher compiles guardrails' regex patterns once. Malformed
// patterns are dropped silently rather than failing construction, matching
// the categories matcher's tolerance of operator-authored regex mistakes.
func NewProtectedMatcher(guardrails model.Guardrails) *ProtectedMatcher {
	m := &ProtectedMatcher{
		guardrails: guardrails,
		users:      lowerSetFrom(guardrails.ProtectedUsers),
		groups:     lowerSetFrom(guardrails.ProtectedGroups),
		categories: lowerSetFrom(guardrails.ProtectedCategories),
		pids:       make(map[uint32]bool, len(guardrails.ProtectedPIDs)),
		ppids:      make(map[uint32]bool, len(guardrails.ProtectedPPIDs)),
	}
	for _, pat := range guardrails.ProtectedPatterns {
		if re, err := regexp.Compile("(?i)" + pat); err == nil {
			m.patterns = append(m.patterns, re)
		}
	}
	for _, pid := range guardrails.ProtectedPIDs {
		m.pids[pid] = true
	}
	for _, ppid := range guardrails.ProtectedPPIDs {
		m.ppids[ppid] = true
	}
	return m
}

func lowerSetFrom(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[strings.ToLower(v)] = true
	}
	return out
}

// Matches reports whether obs is protected, along with the reason string to
// surface in the PreCheckResult.
func (m *ProtectedMatcher) Matches(obs model.ProcessObservation, category string) (bool, string) {
	if m.pids[obs.Identity.PID] {
		return true, fmt.Sprintf("pid %d is on the protected pid list", obs.Identity.PID)
	}
	if m.ppids[obs.PPID] {
		return true, fmt.Sprintf("parent pid %d is on the protected ppid list", obs.PPID)
	}
	if m.users[strings.ToLower(obs.User)] {
		return true, fmt.Sprintf("user %q is protected", obs.User)
	}
	if category != "" && m.categories[strings.ToLower(category)] {
		return true, fmt.Sprintf("category %q is protected", category)
	}
	for _, re := range m.patterns {
		if re.MatchString(obs.Comm) || re.MatchString(obs.Cmdline) {
			return true, fmt.Sprintf("comm/cmdline matches protected pattern %q", re.String())
		}
	}
	if len(m.groups) > 0 && userInProtectedGroup(obs.UID, m.groups) {
		return true, fmt.Sprintf("uid %d belongs to a protected group", obs.UID)
	}
	return false, ""
}

// userInProtectedGroup resolves uid's group membership via os/user. There is
// no third-party library in this module's dependency set for NSS group
// lookups, so this is one of the few places that stays on the standard
// library rather than an ecosystem package.
func userInProtectedGroup(uid uint32, protected map[string]bool) bool {
	u, err := user.LookupId(fmt.Sprintf("%d", uid))
	if err != nil {
		return false
	}
	gids, err := u.GroupIds()
	if err != nil {
		return false
	}
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err != nil {
			continue
		}
		if protected[strings.ToLower(g.Name)] {
			return true
		}
	}
	return false
}
