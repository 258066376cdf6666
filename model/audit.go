package model

// AuditEntryKind discriminates the shape of AuditEntry.Detail.
type AuditEntryKind int

const (
	AuditScan AuditEntryKind = iota
	AuditRecommend
	AuditAction
	AuditPolicyCheck
	AuditError
	AuditCheckpoint
)

func (k AuditEntryKind) String() string {
	switch k {
	case AuditScan:
		return "scan"
	case AuditRecommend:
		return "recommend"
	case AuditAction:
		return "action"
	case AuditPolicyCheck:
		return "policy_check"
	case AuditError:
		return "error"
	case AuditCheckpoint:
		return "checkpoint"
	default:
		return "unknown"
	}
}

func (k AuditEntryKind) MarshalJSON() ([]byte, error) { return []byte(`"` + k.String() + `"`), nil }

// AuditEntry is one hash-chained record in the append-only audit log (§4.7).
// EntryHash is computed over the canonical JSON encoding of the entry with
// EntryHash itself cleared, then chained via PrevHash.
type AuditEntry struct {
	SchemaVersion int            `json:"schema_version"`
	SeqNum        uint64         `json:"seq_num"`
	TimestampUnix int64          `json:"timestamp_unix"`
	Kind          AuditEntryKind `json:"kind"`

	PID      uint32 `json:"pid,omitempty"`
	StartID  string `json:"start_id,omitempty"`
	Message  string `json:"message,omitempty"`

	Class      *Class      `json:"class,omitempty"`
	Action     *Action     `json:"action,omitempty"`
	Posterior  *float64    `json:"posterior,omitempty"`
	PreChecks  []PreCheckResult `json:"pre_checks,omitempty"`

	Detail map[string]any `json:"detail,omitempty"`

	PrevHash  string `json:"prev_hash"`
	EntryHash string `json:"entry_hash"`
}

// GenesisHash is the fixed sentinel used as PrevHash for the first entry in
// a fresh audit log.
const GenesisHash = "genesis"

// Checkpoint summarises the chain state at a point in time: StateHash is the
// SHA-256 of the concatenation of every entry hash up to and including
// UpToSeqNum.
type Checkpoint struct {
	UpToSeqNum uint64 `json:"up_to_seq_num"`
	StateHash  string `json:"state_hash"`
	TimestampUnix int64 `json:"timestamp_unix"`
}
