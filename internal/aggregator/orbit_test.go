package aggregator

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicsorbit/orbitagg/internal/sample"
	"github.com/epicsorbit/orbitagg/internal/snapshot"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Info(string, map[string]any) {}

func (l *recordingLogger) hasWarn(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warns {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

type recordingReceiver struct {
	mu    sync.Mutex
	names []string
	zs    []float64
	snaps []*snapshot.Snapshot
}

func (r *recordingReceiver) SetNames(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = names
}

func (r *recordingReceiver) SetZs(zs []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zs = zs
}

func (r *recordingReceiver) SetCompletedSnapshot(snap *snapshot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recordingReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recordingReceiver) snapshotsCopy() []*snapshot.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*snapshot.Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func newTestOrbit(names []string, zs []float64) *Orbit {
	cfg := DefaultConfig()
	cfg.FlushPeriod = time.Millisecond
	cfg.MaxEventAge = 200 * time.Millisecond
	return New(names, zs, cfg)
}

// wallSeconds returns the current wall-clock second. Test timestamps are
// offset from it because the worker ages snapshots out against wall-clock
// time, so epoch-relative stamps would be evicted before they complete.
func wallSeconds() int32 { return int32(time.Now().Unix()) }

func pushAxes(o *Orbit, bpm int, ts sample.Timestamp) {
	for j := snapshot.Axis(0); j < snapshot.NumAxes; j++ {
		o.Source(bpm, j).OnConnect()
	}
	for j := snapshot.Axis(0); j < snapshot.NumAxes; j++ {
		o.Source(bpm, j).Push(sample.Value{TS: ts, Buffer: []float64{1}})
	}
}

func waitForCount(t *testing.T, rr *recordingReceiver, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rr.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d published snapshots, got %d", n, rr.count())
}

func TestOrbit_HappyPathPublishesCompleteSnapshot(t *testing.T) {
	names := []string{"BPMS:LTUH:0"}
	o := newTestOrbit(names, []float64{0})
	defer o.Close()

	rr := &recordingReceiver{}
	o.AddReceiver(rr)
	assert.Equal(t, names, rr.names)

	base := wallSeconds()
	pushAxes(o, 0, sample.Timestamp{Seconds: base + 1})

	waitForCount(t, rr, 1)
	assert.Equal(t, base+1, rr.snaps[0].TS.Seconds)
}

func TestOrbit_DisconnectSatisfiesMissingCell(t *testing.T) {
	names := []string{"BPMS:LTUH:0"}
	o := newTestOrbit(names, []float64{0})
	defer o.Close()

	rr := &recordingReceiver{}
	o.AddReceiver(rr)

	for j := snapshot.Axis(0); j < snapshot.NumAxes; j++ {
		o.Source(0, j).OnConnect()
	}
	o.Source(0, snapshot.AxisTMIT).OnDisconnect()
	base := wallSeconds()
	for _, j := range []snapshot.Axis{snapshot.AxisX, snapshot.AxisY} {
		o.Source(0, j).Push(sample.Value{TS: sample.Timestamp{Seconds: base + 1}, Buffer: []float64{1}})
	}

	waitForCount(t, rr, 1)
}

func TestOrbit_RemoveReceiverStopsDelivery(t *testing.T) {
	names := []string{"BPMS:LTUH:0"}
	o := newTestOrbit(names, []float64{0})
	defer o.Close()

	rr := &recordingReceiver{}
	o.AddReceiver(rr)
	o.RemoveReceiver(rr)

	pushAxes(o, 0, sample.Timestamp{Seconds: wallSeconds() + 1})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rr.count())
}

func TestOrbit_CloseIsIdempotentAndStopsWorker(t *testing.T) {
	names := []string{"BPMS:LTUH:0"}
	o := newTestOrbit(names, []float64{0})
	o.Close()
	require.NotPanics(t, func() { o.Close() })
}

// TestOrbit_OverflowRecoveryKeepsPublishingMonotonically floods a single
// source's axis with far more samples than its queue can hold, faster than
// the worker can drain them. The source must drop the oldest entries and log
// an overflow warning rather than blocking or crashing the worker, and
// publication must resume and stay monotonic once the flood subsides.
func TestOrbit_OverflowRecoveryKeepsPublishingMonotonically(t *testing.T) {
	names := []string{"BPMS:LTUH:0"}
	cfg := DefaultConfig()
	cfg.FlushPeriod = time.Millisecond
	cfg.MaxEventAge = 200 * time.Millisecond
	logger := &recordingLogger{}
	cfg.Logger = logger
	o := New(names, []float64{0}, cfg)
	defer o.Close()

	rr := &recordingReceiver{}
	o.AddReceiver(rr)

	for j := snapshot.Axis(0); j < snapshot.NumAxes; j++ {
		o.Source(0, j).OnConnect()
	}

	const n = 10000
	base := wallSeconds()
	for i := 0; i < n; i++ {
		ts := sample.Timestamp{Seconds: base + int32(i+1)}
		o.Source(0, snapshot.AxisX).Push(sample.Value{TS: ts, Buffer: []float64{1}})
	}

	require.Eventually(t, func() bool { return logger.hasWarn("overflow") }, 2*time.Second, time.Millisecond)

	for i := 0; i < n; i++ {
		ts := sample.Timestamp{Seconds: base + int32(i+1)}
		o.Source(0, snapshot.AxisY).Push(sample.Value{TS: ts, Buffer: []float64{1}})
		o.Source(0, snapshot.AxisTMIT).Push(sample.Value{TS: ts, Buffer: []float64{1}})
	}

	waitForCount(t, rr, 1)

	var last int32 = -1
	for _, snap := range rr.snapshotsCopy() {
		assert.Greater(t, snap.TS.Seconds, last)
		last = snap.TS.Seconds
	}
}

// TestOrbit_MultipleReceiversSeeRegistrationWindows registers R1 before the
// first publish, R2 after the first but before the second, and removes R1
// after the second but before the third: R1 must see publishes 1 and 2 and
// nothing after removal, R2 must see 2 and 3.
func TestOrbit_MultipleReceiversSeeRegistrationWindows(t *testing.T) {
	names := []string{"BPMS:LTUH:0"}
	o := newTestOrbit(names, []float64{0})
	defer o.Close()

	r1 := &recordingReceiver{}
	o.AddReceiver(r1)

	base := wallSeconds()
	pushAxes(o, 0, sample.Timestamp{Seconds: base + 1})
	waitForCount(t, r1, 1)

	r2 := &recordingReceiver{}
	o.AddReceiver(r2)

	pushAxes(o, 0, sample.Timestamp{Seconds: base + 2})
	waitForCount(t, r1, 2)
	waitForCount(t, r2, 1)

	o.RemoveReceiver(r1)

	pushAxes(o, 0, sample.Timestamp{Seconds: base + 3})
	waitForCount(t, r2, 2)
	time.Sleep(50 * time.Millisecond)

	r1Snaps := r1.snapshotsCopy()
	r2Snaps := r2.snapshotsCopy()

	require.Len(t, r1Snaps, 2)
	assert.Equal(t, base+1, r1Snaps[0].TS.Seconds)
	assert.Equal(t, base+2, r1Snaps[1].TS.Seconds)

	require.Len(t, r2Snaps, 2)
	assert.Equal(t, base+2, r2Snaps[0].TS.Seconds)
	assert.Equal(t, base+3, r2Snaps[1].TS.Seconds)
}
