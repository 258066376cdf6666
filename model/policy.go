package model

// PolicySchemaVersion must match exactly between a loaded policy file and the
// engine's expectation; any mismatch is a hard error (§6).
const PolicySchemaVersion = "1.0.0"

// LossMatrix holds the loss of taking each action under each true class.
// Every entry must be >= 0 and finite (§3).
type LossMatrix struct {
	// Rows keyed by Class.String(), columns keyed by Action.String().
	Rows map[string]map[string]float64 `json:"rows"`
}

// Loss returns L[action][class], defaulting to 0 if unset.
func (m LossMatrix) Loss(action Action, class Class) float64 {
	if m.Rows == nil {
		return 0
	}
	row, ok := m.Rows[class.String()]
	if !ok {
		return 0
	}
	return row[action.String()]
}

// Guardrails are the static, operator-configured blast-radius limits.
type Guardrails struct {
	ProtectedPatterns     []string `json:"protected_patterns,omitempty"`
	ProtectedUsers        []string `json:"protected_users,omitempty"`
	ProtectedGroups       []string `json:"protected_groups,omitempty"`
	ProtectedCategories   []string `json:"protected_categories,omitempty"`
	ProtectedPIDs         []uint32 `json:"protected_pids,omitempty"`
	ProtectedPPIDs        []uint32 `json:"protected_ppids,omitempty"`
	MaxKillsPerRun        int      `json:"max_kills_per_run"`
	MaxKillsPerHour       int      `json:"max_kills_per_hour"`
	MaxKillsPerDay        int      `json:"max_kills_per_day"`
	MinProcessAgeSeconds  float64  `json:"min_process_age_seconds"`
	RequireConfirmation   bool     `json:"require_confirmation"`
}

// RobotMode is the runtime confidence-bounded automation envelope.
type RobotMode struct {
	Enabled                     bool     `json:"enabled"`
	MinPosterior                float64  `json:"min_posterior"`                 // [0,1]
	MinConfidenceLevel          float64  `json:"min_confidence_level"`          // [0,1]
	MaxBlastRadiusMB            float64  `json:"max_blast_radius_mb"`           // >= 0
	MaxTotalBlastRadiusMB       *float64 `json:"max_total_blast_radius_mb,omitempty"`
	MaxKills                    int      `json:"max_kills"`
	AllowCategories             []string `json:"allow_categories,omitempty"`
	ExcludeCategories           []string `json:"exclude_categories,omitempty"`
	RequireKnownSignature       bool     `json:"require_known_signature"`
	RequirePolicySnapshot       bool     `json:"require_policy_snapshot"`
	RequireHumanForSupervised   bool     `json:"require_human_for_supervised"`
}

// SignatureFastPath is the decision shortcut threshold for highly confident
// pattern matches.
type SignatureFastPath struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"` // [0,1]
}

// FDRMethod is the multiple-testing control method used by the decision layer.
type FDRMethod int

const (
	FDRNone FDRMethod = iota
	FDRBenjaminiHochberg
	FDRBenjaminiYekutieli
	FDRAlphaInvesting
)

func (m FDRMethod) String() string {
	switch m {
	case FDRBenjaminiHochberg:
		return "BH"
	case FDRBenjaminiYekutieli:
		return "BY"
	case FDRAlphaInvesting:
		return "alpha-investing"
	default:
		return "none"
	}
}

func (m FDRMethod) MarshalJSON() ([]byte, error) { return []byte(`"` + m.String() + `"`), nil }

func (m *FDRMethod) UnmarshalJSON(data []byte) error {
	s := trimQuotes(string(data))
	switch s {
	case "BH":
		*m = FDRBenjaminiHochberg
	case "BY":
		*m = FDRBenjaminiYekutieli
	case "alpha-investing":
		*m = FDRAlphaInvesting
	default:
		*m = FDRNone
	}
	return nil
}

// AlphaInvestingParams parametrises the online alpha-investing FDR scheme.
type AlphaInvestingParams struct {
	W0      float64 `json:"w0"`
	AlphaSpend float64 `json:"alpha_spend"`
	AlphaEarn  float64 `json:"alpha_earn"`
}

// FDRControl configures multiple-testing control across a candidate batch.
type FDRControl struct {
	Method         FDRMethod            `json:"method"`
	Alpha          float64              `json:"alpha"` // [0,1]
	AlphaInvesting AlphaInvestingParams `json:"alpha_investing,omitempty"`
}

// DataLossGates configures the data-loss pre-check thresholds.
type DataLossGates struct {
	BlockIfOpenWriteFDs bool          `json:"block_if_open_write_fds"`
	MaxOpenWriteFDs     int           `json:"max_open_write_fds"`
	RecentIOWindowMS    int           `json:"recent_io_window_ms"`
	BlockOnDeletedCwd   bool          `json:"block_on_deleted_cwd"`
	BlockOnLockedFiles  bool          `json:"block_on_locked_files"`
}

// LoadAwareWeights are the per-signal weights contributing to the combined
// load score (must sum to > 0).
type LoadAwareWeights struct {
	Weights    map[string]float64 `json:"weights"`    // signal name -> weight
	Thresholds map[string]float64 `json:"thresholds"` // signal name -> threshold (> 0)
}

// LoadMultipliers scale loss-matrix entries by current system load (§4.4).
type LoadMultipliers struct {
	KeepMax       float64 `json:"keep_max"`       // >= 1
	RiskyMax      float64 `json:"risky_max"`      // >= 1
	ReversibleMin float64 `json:"reversible_min"` // in (0,1]
}

// LoadAwareDecision bundles the weights and multipliers for load-aware loss
// scaling.
type LoadAwareDecision struct {
	Weights     LoadAwareWeights `json:"weights"`
	Multipliers LoadMultipliers  `json:"multipliers"`
}

// Policy is the full, validated decision configuration for one run.
type Policy struct {
	SchemaVersion     string             `json:"schema_version"`
	LossMatrix        LossMatrix         `json:"loss_matrix"`
	Guardrails        Guardrails         `json:"guardrails"`
	RobotMode         RobotMode          `json:"robot_mode"`
	SignatureFastPath SignatureFastPath  `json:"signature_fast_path"`
	FDRControl        FDRControl         `json:"fdr_control"`
	DataLossGates     DataLossGates      `json:"data_loss_gates"`
	LoadAware         LoadAwareDecision  `json:"load_aware"`
	Priors            PriorParameters    `json:"priors"`
}
