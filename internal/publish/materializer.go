// Package publish implements the carry-forward publication policy: an
// aggregator.Receiver that renders each completed snapshot into a
// transport.StructuredValue, substituting the last known good value (and
// forcing severity to "invalid") for any cell that has no valid sample this
// round.
package publish

import (
	"context"

	"github.com/epicsorbit/orbitagg/internal/sample"
	"github.com/epicsorbit/orbitagg/internal/snapshot"
	"github.com/epicsorbit/orbitagg/internal/transport"
)

const descriptor = "LCLS Orbit Data"

var labels = []string{"Device Name", "Z", "X", "Y", "TMIT"}

// Materializer owns the "last good" per-cell vectors, one per axis, and
// implements aggregator.Receiver. It is not safe for concurrent use by
// multiple goroutines beyond the single aggregator worker that calls
// SetCompletedSnapshot, plus SetNames/SetZs called once at registration.
type Materializer struct {
	pub  transport.Publisher
	name string

	names []string
	zs    []float64

	initialized bool
	lastX       []float64
	lastY       []float64
	lastTMIT    []float64
}

// New constructs a Materializer that publishes to pub under the given
// output PV name.
func New(pub transport.Publisher, outputName string) *Materializer {
	return &Materializer{pub: pub, name: outputName}
}

// SetNames implements aggregator.Receiver.
func (m *Materializer) SetNames(names []string) {
	m.names = append([]string(nil), names...)
}

// SetZs implements aggregator.Receiver.
func (m *Materializer) SetZs(zs []float64) {
	m.zs = append([]float64(nil), zs...)
}

// SetCompletedSnapshot implements aggregator.Receiver, applying the
// carry-forward-on-invalid policy and publishing the result.
func (m *Materializer) SetCompletedSnapshot(snap *snapshot.Snapshot) {
	n := snap.NumBPMs()

	if !m.initialized {
		m.lastX = make([]float64, n)
		m.lastY = make([]float64, n)
		m.lastTMIT = make([]float64, n)
		m.initialized = true
	}

	xVal, xSev, xStat := m.materialize(snap, snapshot.AxisX, m.lastX)
	yVal, ySev, yStat := m.materialize(snap, snapshot.AxisY, m.lastY)
	tVal, tSev, tStat := m.materialize(snap, snapshot.AxisTMIT, m.lastTMIT)

	value := transport.StructuredValue{
		Labels:           labels,
		DeviceName:       append([]string(nil), m.names...),
		Z:                append([]float64(nil), m.zs...),
		XVal:             xVal,
		XSeverity:        xSev,
		XStatus:          xStat,
		YVal:             yVal,
		YSeverity:        ySev,
		YStatus:          yStat,
		TMITVal:          tVal,
		TMITSeverity:     tSev,
		TMITStatus:       tStat,
		Descriptor:       descriptor,
		SecondsPastEpoch: snap.TS.Seconds,
		Nanoseconds:      snap.TS.Nanos,
	}

	// publish is best-effort from the aggregator's perspective: a transport
	// error here does not block or retry within the worker loop.
	_ = m.pub.Publish(context.Background(), m.name, value)
}

// materialize fills val/severity/status for one axis across all BPMs,
// carrying forward the last good value (mutating last in place) whenever a
// cell is absent or itself carries SeverityInvalid.
func (m *Materializer) materialize(snap *snapshot.Snapshot, axis snapshot.Axis, last []float64) (val []float64, severity, status []uint16) {
	n := snap.NumBPMs()
	val = make([]float64, n)
	severity = make([]uint16, n)
	status = make([]uint16, n)

	for i := 0; i < n; i++ {
		v, present := snap.Cell(i, axis)
		if present && v.Severity != sample.SeverityInvalid {
			val[i] = v.Scalar()
			severity[i] = uint16(v.Severity)
			status[i] = v.Status
			last[i] = val[i]
			continue
		}
		val[i] = last[i]
		severity[i] = uint16(sample.SeverityInvalid)
	}

	return val, severity, status
}
