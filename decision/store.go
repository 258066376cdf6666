// Package decision persistence — store.go
//
// BoltDB-backed persistence for the small pieces of decision-layer state
// that must survive across runs: alpha-investing wealth and robot-mode
// kill/blast-radius counters. Every other PT persistence surface (patterns,
// audit log, transfer bundles) has a spec-fixed file format and lives
// elsewhere; this state is deliberately kept in its own KV store since
// nothing in the spec names a format for it.
//
// Schema (BoltDB bucket layout):
//
//	/alpha_investing
//	    key:   run scope name (e.g. "default")
//	    value: JSON-encoded AlphaInvestingState
//
//	/robot_counters
//	    key:   run scope name
//	    value: JSON-encoded RobotCounterSnapshot
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
package decision

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// StoreSchemaVersion is the current decision-store schema version.
	StoreSchemaVersion = "1"

	bucketAlphaInvesting = "alpha_investing"
	bucketRobotCounters  = "robot_counters"
	bucketMeta           = "meta"

	metaSchemaVersionKey = "schema_version"

	// DefaultScope is the store key used when the caller has no
	// multi-policy/multi-host scoping requirement.
	DefaultScope = "default"
)

// RobotCounterSnapshot is the persisted form of a ConstraintChecker's
// accumulated state between runs.
type RobotCounterSnapshot struct {
	KillCount    int64     `json:"kill_count"`
	TotalBlastMB float64   `json:"total_blast_mb"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store wraps a BoltDB instance with typed accessors for decision-layer
// state.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the BoltDB database at path, initialising
// buckets and verifying the schema version.
func OpenStore(path string) (*Store, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	s := &Store{db: bdb}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketAlphaInvesting, bucketRobotCounters, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte(metaSchemaVersionKey)) == nil {
			if err := meta.Put([]byte(metaSchemaVersionKey), []byte(StoreSchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("decision store initialisation failed: %w", err)
	}

	if err := s.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) checkSchemaVersion() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte(metaSchemaVersionKey))
		if string(v) != StoreSchemaVersion {
			return fmt.Errorf("decision store schema mismatch: database has %q, engine requires %q",
				string(v), StoreSchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAlphaInvesting persists wealth state under scope.
func (s *Store) SaveAlphaInvesting(scope string, state AlphaInvestingState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("SaveAlphaInvesting marshal: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAlphaInvesting))
		return b.Put([]byte(scope), data)
	})
}

// LoadAlphaInvesting retrieves wealth state for scope, seeded at w0 if none
// was previously persisted.
func (s *Store) LoadAlphaInvesting(scope string, w0 float64) (AlphaInvestingState, error) {
	state := NewAlphaInvestingState(w0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAlphaInvesting))
		v := b.Get([]byte(scope))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &state)
	})
	if err != nil {
		return AlphaInvestingState{}, fmt.Errorf("LoadAlphaInvesting: %w", err)
	}
	return state, nil
}

// SaveRobotCounters persists a ConstraintChecker's accumulated kill count
// and blast radius under scope.
func (s *Store) SaveRobotCounters(scope string, killCount int64, totalBlastMB float64) error {
	snap := RobotCounterSnapshot{KillCount: killCount, TotalBlastMB: totalBlastMB, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("SaveRobotCounters marshal: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRobotCounters))
		return b.Put([]byte(scope), data)
	})
}

// LoadRobotCounters retrieves a previously persisted counter snapshot for
// scope. Returns the zero snapshot if none exists.
func (s *Store) LoadRobotCounters(scope string) (RobotCounterSnapshot, error) {
	var snap RobotCounterSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRobotCounters))
		v := b.Get([]byte(scope))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &snap)
	})
	if err != nil {
		return RobotCounterSnapshot{}, fmt.Errorf("LoadRobotCounters: %w", err)
	}
	return snap, nil
}

// RestoreConstraintChecker builds a ConstraintChecker for constraints and
// seeds its counters from whatever was last persisted under scope.
func (s *Store) RestoreConstraintChecker(scope string, constraints RuntimeRobotConstraints) (*ConstraintChecker, error) {
	snap, err := s.LoadRobotCounters(scope)
	if err != nil {
		return nil, err
	}
	checker := NewConstraintChecker(constraints)
	checker.killCount.Store(snap.KillCount)
	checker.totalBlastMB = snap.TotalBlastMB
	return checker, nil
}

// Snapshot returns the current kill count and accumulated blast radius for
// persisting via SaveRobotCounters.
func (c *ConstraintChecker) Snapshot() (killCount int64, totalBlastMB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killCount.Load(), c.totalBlastMB
}
