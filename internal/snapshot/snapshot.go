// Package snapshot implements the timestamp-keyed correlation table: grouping
// samples from many sources into per-timestamp Snapshots, detecting
// completeness against a changing connection set, and evicting stale or
// superseded entries. Every exported type here is owned exclusively by the
// aggregator worker goroutine; none of it is safe for concurrent use.
package snapshot

import (
	"sort"

	"github.com/epicsorbit/orbitagg/internal/sample"
)

// Axis indexes the three measurements tracked per BPM.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisTMIT
	NumAxes = 3
)

// ConnChecker reports whether the source at (bpmIndex, axis) is currently
// connected, used by MarkComplete to decide whether a missing cell still
// blocks completeness.
type ConnChecker func(bpmIndex int, axis Axis) bool

// Snapshot is a partial or complete orbit at one timestamp: one cell per
// (bpmIndex, axis), each either empty or holding exactly one sample.Value.
type Snapshot struct {
	TS       sample.Timestamp
	Complete bool

	cells   [][NumAxes]sample.Value
	present [][NumAxes]bool
}

func newSnapshot(ts sample.Timestamp, numBPMs int) *Snapshot {
	return &Snapshot{
		TS:      ts,
		cells:   make([][NumAxes]sample.Value, numBPMs),
		present: make([][NumAxes]bool, numBPMs),
	}
}

// Cell returns the sample at (bpmIndex, axis) and whether it is present.
func (s *Snapshot) Cell(bpmIndex int, axis Axis) (sample.Value, bool) {
	return s.cells[bpmIndex][axis], s.present[bpmIndex][axis]
}

func (s *Snapshot) setCell(bpmIndex int, axis Axis, v sample.Value) {
	s.cells[bpmIndex][axis] = v
	s.present[bpmIndex][axis] = true
}

// NumBPMs returns the snapshot's fixed BPM dimension.
func (s *Snapshot) NumBPMs() int {
	return len(s.cells)
}

// Table is the ordered, timestamp-keyed correlation map. Go has no builtin
// ordered map; a sorted key slice alongside the lookup map reproduces the
// ascending-key iteration the aggregator's correlation logic depends on.
type Table struct {
	numBPMs int
	byKey   map[int64]*Snapshot
	keys    []int64 // kept sorted ascending

	// oldestPublished is the monotonic watermark: keys at or below this are
	// never (re)created or ingested into.
	oldestPublished int64
}

// NewTable constructs an empty correlation table sized for numBPMs.
func NewTable(numBPMs int) *Table {
	return &Table{
		numBPMs: numBPMs,
		byKey:   make(map[int64]*Snapshot),
	}
}

// OldestPublished returns the monotonic publication watermark.
func (t *Table) OldestPublished() int64 {
	return t.oldestPublished
}

// Len reports the number of live (unpublished) snapshots.
func (t *Table) Len() int {
	return len(t.keys)
}

func (t *Table) insertKey(key int64) {
	i := sort.Search(len(t.keys), func(i int) bool { return t.keys[i] >= key })
	t.keys = append(t.keys, 0)
	copy(t.keys[i+1:], t.keys[i:])
	t.keys[i] = key
}

func (t *Table) removeKeyAt(i int) {
	copy(t.keys[i:], t.keys[i+1:])
	t.keys = t.keys[:len(t.keys)-1]
}

// Ingest slots one sample into the table at (bpmIndex, axis), creating the
// snapshot for its timestamp key if needed. Samples at or before the
// publication watermark, and duplicate cells, are silently discarded (the
// first writer for a given key/cell wins). Returns true if the sample was
// accepted.
func (t *Table) Ingest(bpmIndex int, axis Axis, v sample.Value) bool {
	key := v.TS.Key64()
	if key <= t.oldestPublished {
		return false
	}

	snap, ok := t.byKey[key]
	if !ok {
		snap = newSnapshot(v.TS, t.numBPMs)
		t.byKey[key] = snap
		t.insertKey(key)
	}

	if snap.present[bpmIndex][axis] {
		// duplicate cell for this key: first writer wins.
		return false
	}
	snap.setCell(bpmIndex, axis, v)
	return true
}

// MarkComplete ages out snapshots older than maxAgeKey (relative to nowKey)
// and recomputes the Complete flag of every survivor, iterating newest to
// oldest. The scan has no early stop: age-out has already removed every
// entry past the threshold, so it is bounded by the live, non-aged entries.
//
// Completeness is computed exclusively here: Ingest never resets Complete on
// an existing snapshot.
func (t *Table) MarkComplete(nowKey int64, maxAgeKey int64, connected ConnChecker) (agedOut int) {
	// age out
	cutoff := 0
	for cutoff < len(t.keys) && nowKey-t.keys[cutoff] >= maxAgeKey {
		delete(t.byKey, t.keys[cutoff])
		cutoff++
	}
	if cutoff > 0 {
		t.keys = t.keys[cutoff:]
	}

	for i := len(t.keys) - 1; i >= 0; i-- {
		snap := t.byKey[t.keys[i]]
		snap.Complete = snapshotComplete(snap, connected)
	}

	return cutoff
}

func snapshotComplete(snap *Snapshot, connected ConnChecker) bool {
	for i := 0; i < snap.NumBPMs(); i++ {
		for j := Axis(0); j < NumAxes; j++ {
			if snap.present[i][j] {
				continue
			}
			if connected(i, j) {
				return false
			}
		}
	}
	return true
}

// Harvest collects every complete snapshot in the table (oldest to newest
// key order), erasing each from the table and advancing the publication
// watermark to the maximum key harvested. Only the newest harvested
// snapshot is returned for publication: other complete snapshots found in
// the same pass are discarded without publication, bounding downstream
// publish rate. Incomplete snapshots (stragglers) are left in place,
// regardless of their position relative to harvested entries. After
// harvesting, the table is trimmed to softCap entries (oldest dropped
// first) if it still exceeds that size.
func (t *Table) Harvest(softCap int) (newest *Snapshot, ok bool) {
	kept := t.keys[:0]
	for _, key := range t.keys {
		snap := t.byKey[key]
		if !snap.Complete {
			kept = append(kept, key)
			continue
		}
		if key <= t.oldestPublished {
			panic("snapshot: harvest: key did not advance past oldestPublished")
		}
		t.oldestPublished = key
		newest, ok = snap, true
		delete(t.byKey, key)
	}
	t.keys = kept

	for len(t.keys) > softCap {
		delete(t.byKey, t.keys[0])
		t.keys = t.keys[1:]
	}

	return newest, ok
}
