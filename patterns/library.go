// Package patterns implements the pattern/signature library: four-file JSON
// persistence, the lifecycle state machine, match statistics, and
// import/export with conflict resolution (§4.2).
package patterns

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/joyshmitz/process-triage-sub001/model"
)

const (
	builtinFile = "built_in.json"
	learnedFile = "learned.json"
	customFile  = "custom.json"
	disabledFile = "disabled.json"
	statsFile   = "pattern_stats.json"

	currentSchemaVersion = 1
)

// ErrNameExists is returned by AddCustom when a pattern with that name
// already exists in any source.
var ErrNameExists = fmt.Errorf("pattern name already exists")

// ErrNotFound is returned when an operation targets a name with no pattern.
var ErrNotFound = fmt.Errorf("pattern not found")

// ErrBuiltinImmutable is returned by RemovePattern when it targets a
// built-in pattern.
var ErrBuiltinImmutable = fmt.Errorf("built-in patterns are immutable")

// ErrIllegalTransition is returned when a lifecycle transition is rejected
// by the state machine.
var ErrIllegalTransition = fmt.Errorf("illegal lifecycle transition")

// disabledSet is the on-disk shape of disabled.json: a flat name list.
type disabledSet struct {
	SchemaVersion int      `json:"schema_version"`
	Names         []string `json:"names"`
}

// statsDoc is the on-disk shape of pattern_stats.json: stats keyed by
// pattern name.
type statsDoc struct {
	SchemaVersion int                           `json:"schema_version"`
	Stats         map[string]model.PatternStats `json:"stats"`
}

// ImportResolution is the conflict-resolution strategy applied per pattern
// name during Import.
type ImportResolution int

const (
	ResolveKeepExisting ImportResolution = iota
	ResolveReplaceWithImported
	ResolveKeepHigherConfidence
	ResolveMerge
)

// ImportReport summarises the outcome of an Import call.
type ImportReport struct {
	Imported int
	Updated  int
	Skipped  int
	Conflicts []string
}

// Library is the in-memory, lazily-persisted pattern library. One Library
// owns the four pattern files plus the sibling stats file for one config
// directory; it is intended to be owned by a single reader for the
// duration of a scan (§5).
type Library struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex

	builtin  map[string]model.PersistedPattern // immutable, read at construction
	learned  map[string]model.PersistedPattern
	custom   map[string]model.PersistedPattern
	disabled map[string]struct{}
	stats    map[string]model.PatternStats

	dirty bool

	watcher      *fsnotify.Watcher
	reloadNeeded bool
}

// Open loads all four pattern files (and the stats sibling) from dir,
// treating a missing learned/custom/disabled/stats file as empty rather
// than an error. built_in.json missing is also tolerated (a fresh install
// with no shipped signatures yet).
func Open(dir string, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lib := &Library{
		dir:      dir,
		logger:   logger,
		builtin:  map[string]model.PersistedPattern{},
		learned:  map[string]model.PersistedPattern{},
		custom:   map[string]model.PersistedPattern{},
		disabled: map[string]struct{}{},
		stats:    map[string]model.PatternStats{},
	}

	if err := loadPatternFile(filepath.Join(dir, builtinFile), lib.builtin); err != nil {
		return nil, fmt.Errorf("loading %s: %w", builtinFile, err)
	}
	if err := loadPatternFile(filepath.Join(dir, learnedFile), lib.learned); err != nil {
		return nil, fmt.Errorf("loading %s: %w", learnedFile, err)
	}
	if err := loadPatternFile(filepath.Join(dir, customFile), lib.custom); err != nil {
		return nil, fmt.Errorf("loading %s: %w", customFile, err)
	}

	var ds disabledSet
	if err := loadJSONIfExists(filepath.Join(dir, disabledFile), &ds); err != nil {
		return nil, fmt.Errorf("loading %s: %w", disabledFile, err)
	}
	for _, n := range ds.Names {
		lib.disabled[n] = struct{}{}
	}

	var sd statsDoc
	if err := loadJSONIfExists(filepath.Join(dir, statsFile), &sd); err != nil {
		return nil, fmt.Errorf("loading %s: %w", statsFile, err)
	}
	if sd.Stats != nil {
		lib.stats = sd.Stats
	}

	lib.watchForEdits()
	return lib, nil
}

func loadPatternFile(path string, into map[string]model.PersistedPattern) error {
	var doc model.SignatureSchema
	if err := loadJSONIfExists(path, &doc); err != nil {
		return err
	}
	for _, p := range doc.Patterns {
		into[p.Signature.Name] = p
	}
	return nil
}

func loadJSONIfExists(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// watchForEdits arms an fsnotify watch on the mutable pattern files so that
// an operator hand-editing custom.json on disk is picked up on the next
// scan boundary rather than silently ignored until process restart.
// Watch failures are logged and otherwise non-fatal — reload-on-edit is a
// convenience, not a correctness requirement.
func (l *Library) watchForEdits() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("pattern file watch unavailable", zap.Error(err))
		return
	}
	for _, f := range []string{learnedFile, customFile, disabledFile} {
		if err := w.Add(filepath.Join(l.dir, f)); err != nil {
			l.logger.Debug("pattern file watch add failed", zap.String("file", f), zap.Error(err))
		}
	}
	l.watcher = w
	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				l.mu.Lock()
				l.reloadNeeded = true
				l.mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
}

// Close releases the fsnotify watch, if any.
func (l *Library) Close() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// ReloadNeeded reports whether an external edit was observed since the last
// scan boundary; the caller should call Reload() before the next scan.
func (l *Library) ReloadNeeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloadNeeded
}

// Reload re-opens the mutable files from disk, discarding any unsaved
// in-memory changes, and clears the reload-needed flag.
func (l *Library) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh, err := Open(l.dir, l.logger)
	if err != nil {
		return err
	}
	l.learned = fresh.learned
	l.custom = fresh.custom
	l.disabled = fresh.disabled
	l.stats = fresh.stats
	l.reloadNeeded = false
	l.dirty = false
	_ = fresh.Close()
	return nil
}

// ActivePatterns returns the sorted (by ascending priority) concatenation
// of the two mutable sources (learned, custom) plus built-in, minus disabled names,
// filtered to lifecycle-active states (§4.2).
func (l *Library) ActivePatterns() []model.PersistedPattern {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.PersistedPattern
	for _, src := range []map[string]model.PersistedPattern{l.builtin, l.learned, l.custom} {
		for name, p := range src {
			if _, disabled := l.disabled[name]; disabled {
				continue
			}
			if !p.Lifecycle.IsActive() {
				continue
			}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Signature.Priority < out[j].Signature.Priority
	})
	return out
}

// lookup finds a pattern by name across the three pattern sources
// (built-in, learned, custom), returning its source map reference.
func (l *Library) lookupLocked(name string) (model.PersistedPattern, model.PatternSource, bool) {
	if p, ok := l.builtin[name]; ok {
		return p, model.SourceBuiltin, true
	}
	if p, ok := l.learned[name]; ok {
		return p, model.SourceLearned, true
	}
	if p, ok := l.custom[name]; ok {
		return p, model.SourceCustom, true
	}
	return model.PersistedPattern{}, 0, false
}

// AddCustom inserts a new custom pattern; fails if any existing pattern
// (any source) already has that name.
func (l *Library) AddCustom(sig model.Signature) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, _, ok := l.lookupLocked(sig.Name); ok {
		return fmt.Errorf("%w: %s", ErrNameExists, sig.Name)
	}
	l.custom[sig.Name] = model.PersistedPattern{
		Signature: sig,
		Source:    model.SourceCustom,
		Lifecycle: model.LifecycleNew,
		Version:   1,
	}
	l.dirty = true
	return nil
}

// AddLearned upserts into the learned file, bumping UpdatedAt.
func (l *Library) AddLearned(sig model.Signature, nowUnix int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.learned[sig.Name]
	p := model.PersistedPattern{
		Signature: sig,
		Source:    model.SourceLearned,
		Lifecycle: model.LifecycleNew,
		Version:   1,
	}
	if ok {
		p = existing
		p.Signature = sig
	}
	p.UpdatedAt = &nowUnix
	if p.CreatedAt == nil {
		p.CreatedAt = &nowUnix
	}
	l.learned[sig.Name] = p
	l.dirty = true
}

// RemovePattern removes a learned or custom pattern by name; rejects
// built-in names.
func (l *Library) RemovePattern(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.builtin[name]; ok {
		return fmt.Errorf("%w: %s", ErrBuiltinImmutable, name)
	}
	if _, ok := l.learned[name]; ok {
		delete(l.learned, name)
		l.dirty = true
		return nil
	}
	if _, ok := l.custom[name]; ok {
		delete(l.custom, name)
		l.dirty = true
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Disable marks a pattern name disabled. Disabling a built-in name is
// permitted — disabled is a separate overlay, not a mutation of the
// immutable source.
func (l *Library) Disable(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled[name] = struct{}{}
	l.dirty = true
}

// Enable clears a disabled overlay entry.
func (l *Library) Enable(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.disabled, name)
	l.dirty = true
}

// RecordMatch updates match/accept/reject stats and the bounded confidence
// history, but does not itself change lifecycle — that happens on the next
// UpdateLifecycles sweep.
func (l *Library) RecordMatch(name string, accepted bool, nowUnix int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stats[name]
	st.MatchCount++
	if accepted {
		st.AcceptCount++
	} else {
		st.RejectCount++
	}
	if st.FirstSeenUnix == 0 {
		st.FirstSeenUnix = nowUnix
	}
	st.LastMatchUnix = nowUnix
	st.ConfidenceHistory = append(st.ConfidenceHistory, st.Confidence())
	if len(st.ConfidenceHistory) > model.MaxConfidenceHistory {
		st.ConfidenceHistory = st.ConfidenceHistory[len(st.ConfidenceHistory)-model.MaxConfidenceHistory:]
	}
	l.stats[name] = st
	l.dirty = true
}

// UpdateLifecycles sweeps every mutable pattern and applies at most one
// lifecycle step toward its stats-suggested state, per the state machine in
// CanTransitionTo. A suggestion that would require skipping a state (e.g.
// new -> stable) is applied one step at a time: new -> learning now,
// learning -> stable on a later sweep.
func (l *Library) UpdateLifecycles() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, src := range []map[string]model.PersistedPattern{l.learned, l.custom} {
		for name, p := range src {
			st, ok := l.stats[name]
			if !ok {
				continue
			}
			suggested := st.SuggestedLifecycle()
			next := nextStep(p.Lifecycle, suggested)
			if next != p.Lifecycle && p.Lifecycle.CanTransitionTo(next) {
				p.Lifecycle = next
				src[name] = p
				l.dirty = true
			}
		}
	}
}

// nextStep returns the single lifecycle step that moves from current
// toward target along the forward chain new -> learning -> stable,
// never skipping a state in one sweep.
func nextStep(current, target model.Lifecycle) model.Lifecycle {
	order := []model.Lifecycle{model.LifecycleNew, model.LifecycleLearning, model.LifecycleStable}
	curIdx, tgtIdx := -1, -1
	for i, s := range order {
		if s == current {
			curIdx = i
		}
		if s == target {
			tgtIdx = i
		}
	}
	if curIdx < 0 || tgtIdx <= curIdx {
		return current
	}
	return order[curIdx+1]
}

// Import merges an incoming SignatureSchema into the learned source using
// the chosen conflict-resolution strategy per name, returning counts and a
// list of names that had a conflict.
func (l *Library) Import(doc model.SignatureSchema, resolution ImportResolution) ImportReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	var report ImportReport
	for _, incoming := range doc.Patterns {
		name := incoming.Signature.Name
		existing, _, exists := l.lookupLocked(name)
		if !exists {
			l.learned[name] = incoming
			report.Imported++
			continue
		}

		report.Conflicts = append(report.Conflicts, name)
		switch resolution {
		case ResolveKeepExisting:
			report.Skipped++
		case ResolveReplaceWithImported:
			l.learned[name] = incoming
			delete(l.custom, name)
			report.Updated++
		case ResolveKeepHigherConfidence:
			if incoming.Signature.Confidence > existing.Signature.Confidence {
				l.learned[name] = incoming
				report.Updated++
			} else {
				report.Skipped++
			}
		case ResolveMerge:
			merged := existing
			if incoming.Signature.Confidence > existing.Signature.Confidence {
				merged.Signature = incoming.Signature
			}
			incomingStats := l.stats[name]
			l.stats[name] = model.PatternStats{
				MatchCount:  incomingStats.MatchCount,
				AcceptCount: incomingStats.AcceptCount,
				RejectCount: incomingStats.RejectCount,
			}
			l.learned[name] = merged
			report.Updated++
		}
		l.dirty = true
	}
	return report
}

// MergeStats pools an incoming pattern's match/accept/reject counts into
// the library's in-memory stats for name, rather than letting one side
// overwrite the other: the match, accept and reject counters are summed, FirstSeenUnix keeps
// the earlier non-zero timestamp, LastMatchUnix keeps the later one, and
// the confidence histories are concatenated and re-bounded. Used by fleet
// transfer-bundle import, where the same pattern name may carry separate
// acceptance history on each side worth combining (§4.8).
func (l *Library) MergeStats(name string, incoming model.PatternStats) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.stats[name]
	merged := model.PatternStats{
		MatchCount:    existing.MatchCount + incoming.MatchCount,
		AcceptCount:   existing.AcceptCount + incoming.AcceptCount,
		RejectCount:   existing.RejectCount + incoming.RejectCount,
		FirstSeenUnix: earliestNonZero(existing.FirstSeenUnix, incoming.FirstSeenUnix),
		LastMatchUnix: existing.LastMatchUnix,
	}
	if incoming.LastMatchUnix > merged.LastMatchUnix {
		merged.LastMatchUnix = incoming.LastMatchUnix
	}
	merged.ConfidenceHistory = append(append([]float64{}, existing.ConfidenceHistory...), incoming.ConfidenceHistory...)
	if len(merged.ConfidenceHistory) > model.MaxConfidenceHistory {
		merged.ConfidenceHistory = merged.ConfidenceHistory[len(merged.ConfidenceHistory)-model.MaxConfidenceHistory:]
	}
	l.stats[name] = merged
	l.dirty = true
}

func earliestNonZero(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case b < a:
		return b
	default:
		return a
	}
}

// StatsFor returns the recorded stats for a pattern name, or a zero value
// if none are recorded yet.
func (l *Library) StatsFor(name string) model.PatternStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats[name]
}

// Dirty reports whether there are unsaved in-memory changes.
func (l *Library) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Save writes learned.json, custom.json, disabled.json and
// pattern_stats.json to disk if the library is dirty. built_in.json is
// never written by the library — it is refreshed only by the installer.
func (l *Library) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}

	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return fmt.Errorf("creating pattern dir: %w", err)
	}

	if err := writePatternFile(filepath.Join(l.dir, learnedFile), l.learned); err != nil {
		return err
	}
	if err := writePatternFile(filepath.Join(l.dir, customFile), l.custom); err != nil {
		return err
	}

	names := make([]string, 0, len(l.disabled))
	for n := range l.disabled {
		names = append(names, n)
	}
	sort.Strings(names)
	if err := writeJSON(filepath.Join(l.dir, disabledFile), disabledSet{SchemaVersion: currentSchemaVersion, Names: names}); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(l.dir, statsFile), statsDoc{SchemaVersion: currentSchemaVersion, Stats: l.stats}); err != nil {
		return err
	}

	l.dirty = false
	return nil
}

func writePatternFile(path string, src map[string]model.PersistedPattern) error {
	doc := model.SignatureSchema{SchemaVersion: currentSchemaVersion}
	names := make([]string, 0, len(src))
	for n := range src {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		doc.Patterns = append(doc.Patterns, src[n])
	}
	return writeJSON(path, doc)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
