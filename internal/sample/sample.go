// Package sample defines the scalar measurement value exchanged between the
// subscription transport, sources and the snapshot table.
package sample

// Severity mirrors the small severity scale carried by channel-access style
// monitors: 0 (NO_ALARM) through 3 (INVALID-adjacent), with 4 reserved as the
// sentinel meaning "no valid sample this snapshot" (see InvalidSentinel and
// the publish package's carry-forward policy).
type Severity uint16

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalidAlarm
	// SeverityInvalid is the sentinel severity for disconnect markers and
	// carried-forward publish cells. Never produced by a real monitor update
	// below this value.
	SeverityInvalid Severity = 4
)

// Timestamp is a monotonic (seconds, nanoseconds) pair, matching the
// epicsTimeStamp convention the original source is built on.
type Timestamp struct {
	Seconds int32
	Nanos   int32
}

// Key64 packs the timestamp into a single 64-bit value that compares
// correctly for any Nanos < 1e9: (seconds << 32) | nanos.
func (t Timestamp) Key64() int64 {
	return int64(uint64(uint32(t.Seconds))<<32 | uint64(uint32(t.Nanos)))
}

// After reports whether t represents a strictly later instant than o.
func (t Timestamp) After(o Timestamp) bool {
	return t.Key64() > o.Key64()
}

// Value is one immutable measurement delivered by a monitor callback. The
// zero Value is not a valid "no sample" marker on its own; callers track
// occupancy separately (see snapshot.Snapshot), since Count==0 with a zero
// Buffer is a legitimate (if unusual) delivery.
type Value struct {
	TS       Timestamp
	Severity Severity
	Status   uint16
	Count    uint32
	// Buffer holds the scalar payload (BPMs publish single-element arrays).
	// Shared rather than copied on move between Source and Snapshot, mirroring
	// the original's ref-counted shared_vector.
	Buffer []float64
}

// Invalid reports whether the value is a disconnect sentinel or otherwise
// carries no usable measurement.
func (v Value) Invalid() bool {
	return v.Severity == SeverityInvalid
}

// Scalar returns the first element of Buffer, or 0 if empty/invalid.
func (v Value) Scalar() float64 {
	if v.Invalid() || len(v.Buffer) == 0 {
		return 0
	}
	return v.Buffer[0]
}

// InvalidSentinel builds the sentinel value pushed by Source.OnDisconnect:
// severity INVALID, current wall-clock timestamp, no buffer.
func InvalidSentinel(ts Timestamp) Value {
	return Value{TS: ts, Severity: SeverityInvalid}
}
