package model

// Lifecycle is the state of a pattern/signature in its adoption lifecycle.
type Lifecycle int

const (
	LifecycleNew Lifecycle = iota
	LifecycleLearning
	LifecycleStable
	LifecycleDeprecated
	LifecycleRemoved
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleNew:
		return "new"
	case LifecycleLearning:
		return "learning"
	case LifecycleStable:
		return "stable"
	case LifecycleDeprecated:
		return "deprecated"
	case LifecycleRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

func (l Lifecycle) MarshalJSON() ([]byte, error) { return []byte(`"` + l.String() + `"`), nil }

func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	s := trimQuotes(string(data))
	for _, cand := range []Lifecycle{LifecycleNew, LifecycleLearning, LifecycleStable, LifecycleDeprecated, LifecycleRemoved} {
		if cand.String() == s {
			*l = cand
			return nil
		}
	}
	*l = LifecycleNew
	return nil
}

// CanTransitionTo implements the lifecycle state machine from spec §3:
// forward new -> learning -> stable; any active state -> deprecated;
// deprecated -> removed; deprecated -> {new, learning, stable} (reactivation);
// same-state transitions are idempotent; everything else is rejected.
func (l Lifecycle) CanTransitionTo(to Lifecycle) bool {
	if l == to {
		return true
	}
	switch l {
	case LifecycleNew:
		return to == LifecycleLearning || to == LifecycleDeprecated
	case LifecycleLearning:
		return to == LifecycleStable || to == LifecycleDeprecated
	case LifecycleStable:
		return to == LifecycleDeprecated
	case LifecycleDeprecated:
		return to == LifecycleRemoved || to == LifecycleNew || to == LifecycleLearning || to == LifecycleStable
	case LifecycleRemoved:
		return false
	default:
		return false
	}
}

// IsActive reports whether a pattern in this lifecycle state contributes to
// active matching (i.e. is neither deprecated nor removed — §3 invariant e
// only forbids `removed`, but the active-pattern filter in §4.2 additionally
// excludes `deprecated` since it is no longer meant to fire).
func (l Lifecycle) IsActive() bool {
	return l == LifecycleNew || l == LifecycleLearning || l == LifecycleStable
}

// PatternSource identifies where a pattern/signature originated.
type PatternSource int

const (
	SourceBuiltin PatternSource = iota
	SourceLearned
	SourceCustom
	SourceCommunity
	SourceImported
)

func (s PatternSource) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceLearned:
		return "learned"
	case SourceCustom:
		return "custom"
	case SourceCommunity:
		return "community"
	case SourceImported:
		return "imported"
	default:
		return "unknown"
	}
}

func (s PatternSource) MarshalJSON() ([]byte, error) { return []byte(`"` + s.String() + `"`), nil }

func (s *PatternSource) UnmarshalJSON(data []byte) error {
	str := trimQuotes(string(data))
	for _, cand := range []PatternSource{SourceBuiltin, SourceLearned, SourceCustom, SourceCommunity, SourceImported} {
		if cand.String() == str {
			*s = cand
			return nil
		}
	}
	*s = SourceCustom
	return nil
}

// Immutable reports whether this source may never be mutated at runtime.
// Only builtin patterns are immutable; the rest live in separately rotated
// files (§3).
func (s PatternSource) Immutable() bool { return s == SourceBuiltin }

// PriorsDelta is an optional nudge to class priors applied when a pattern
// matches a candidate.
type PriorsDelta struct {
	ClassDeltas map[string]float64 `json:"class_deltas,omitempty"` // keyed by Class.String()
}

// Signature is a named regex bundle matching process names, parents and
// command lines against a category with a confidence weight.
type Signature struct {
	Name            string          `json:"name"`
	ProcessPatterns []string        `json:"process_patterns"`
	ParentPatterns  []string        `json:"parent_patterns,omitempty"`
	CmdlinePatterns []string        `json:"cmdline_patterns,omitempty"`
	Category        CommandCategory `json:"category"`
	Confidence      float64         `json:"confidence"` // in [0,1]
	PriorsDelta     PriorsDelta     `json:"priors_delta,omitempty"`
	Expectations    []string        `json:"expectations,omitempty"`
	Priority        int             `json:"priority"` // lower = earlier match
}

// PatternStats holds per-pattern match/accept/reject bookkeeping.
type PatternStats struct {
	MatchCount        int       `json:"match_count"`
	AcceptCount       int       `json:"accept_count"`
	RejectCount       int       `json:"reject_count"`
	FirstSeenUnix     int64     `json:"first_seen_unix"`
	LastMatchUnix     int64     `json:"last_match_unix"`
	ConfidenceHistory []float64 `json:"confidence_history,omitempty"`
}

// MaxConfidenceHistory bounds the size of the confidence-history snapshot.
const MaxConfidenceHistory = 50

// Total returns accept+reject, the denominator for Laplace smoothing.
func (s PatternStats) Total() int { return s.AcceptCount + s.RejectCount }

// Confidence computes the Laplace-smoothed acceptance rate:
// (accept + 1) / (total + 2).
func (s PatternStats) Confidence() float64 {
	return (float64(s.AcceptCount) + 1) / (float64(s.Total()) + 2)
}

// SuggestedLifecycle recomputes the lifecycle suggestion from stats per §3:
// confidence >= 0.8 and matches >= 10 -> stable; confidence >= 0.5 -> learning;
// else -> new. This is a suggestion only — the caller must still consult
// Lifecycle.CanTransitionTo before applying it.
func (s PatternStats) SuggestedLifecycle() Lifecycle {
	conf := s.Confidence()
	switch {
	case conf >= 0.8 && s.MatchCount >= 10:
		return LifecycleStable
	case conf >= 0.5:
		return LifecycleLearning
	default:
		return LifecycleNew
	}
}

// PersistedPattern is the on-disk representation of a pattern: its
// signature plus lifecycle/provenance metadata.
type PersistedPattern struct {
	Signature    Signature     `json:"signature"`
	Source       PatternSource `json:"source"`
	Lifecycle    Lifecycle     `json:"lifecycle"`
	Version      int           `json:"version"`
	CreatedAt    *int64        `json:"created_at,omitempty"`
	UpdatedAt    *int64        `json:"updated_at,omitempty"`

	Description  string `json:"description,omitempty"`
	Author       string `json:"author,omitempty"`
	ExportedAt   *int64 `json:"exported_at,omitempty"`
	SourceSystem string `json:"source_system,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
}

// SignatureSchema is the root document persisted to each pattern file.
type SignatureSchema struct {
	SchemaVersion int                `json:"schema_version"`
	Patterns      []PersistedPattern `json:"patterns"`
}
