package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epicsorbit/orbitagg/internal/sample"
	"github.com/epicsorbit/orbitagg/internal/snapshot"
	"github.com/epicsorbit/orbitagg/internal/transport/memory"
)

func buildSnapshot(t *testing.T, numBPMs int, ts sample.Timestamp) *snapshot.Snapshot {
	t.Helper()
	tbl := snapshot.NewTable(numBPMs)
	for j := snapshot.Axis(0); j < snapshot.NumAxes; j++ {
		ok := tbl.Ingest(0, j, sample.Value{TS: ts, Buffer: []float64{float64(j) + 1}})
		require.True(t, ok)
	}
	tbl.MarkComplete(ts.Key64(), sample.Timestamp{Seconds: 1000}.Key64(), func(int, snapshot.Axis) bool { return true })
	newest, ok := tbl.Harvest(10)
	require.True(t, ok)
	return newest
}

func TestMaterializer_PublishesFreshValues(t *testing.T) {
	pub := memory.New()
	m := New(pub, "ORBIT")
	m.SetNames([]string{"BPMS:LTUH:0"})
	m.SetZs([]float64{0})

	snap := buildSnapshot(t, 1, sample.Timestamp{Seconds: 1})
	m.SetCompletedSnapshot(snap)

	v, ok := pub.Latest()
	require.True(t, ok)
	assert.Equal(t, []float64{1}, v.XVal)
	assert.Equal(t, []float64{2}, v.YVal)
	assert.Equal(t, []float64{3}, v.TMITVal)
	assert.Equal(t, uint16(sample.SeverityNone), v.XSeverity[0])
}

func TestMaterializer_CarriesForwardOnMissingCell(t *testing.T) {
	pub := memory.New()
	m := New(pub, "ORBIT")
	m.SetNames([]string{"BPMS:LTUH:0"})
	m.SetZs([]float64{0})

	first := buildSnapshot(t, 1, sample.Timestamp{Seconds: 1})
	m.SetCompletedSnapshot(first)

	// second snapshot: only X present; Y and TMIT missing but disconnected
	// (so still complete).
	tbl := snapshot.NewTable(1)
	tbl.Ingest(0, snapshot.AxisX, sample.Value{TS: sample.Timestamp{Seconds: 2}, Buffer: []float64{99}})
	tbl.MarkComplete(sample.Timestamp{Seconds: 2}.Key64(), sample.Timestamp{Seconds: 1000}.Key64(), func(bpm int, axis snapshot.Axis) bool {
		return axis == snapshot.AxisX
	})
	second, ok := tbl.Harvest(10)
	require.True(t, ok)

	m.SetCompletedSnapshot(second)

	v, ok := pub.Latest()
	require.True(t, ok)
	assert.Equal(t, []float64{99}, v.XVal)
	assert.Equal(t, uint16(sample.SeverityNone), v.XSeverity[0])

	// Y and TMIT carried forward from the first snapshot, marked invalid.
	assert.Equal(t, []float64{2}, v.YVal)
	assert.Equal(t, uint16(sample.SeverityInvalid), v.YSeverity[0])
	assert.Equal(t, []float64{3}, v.TMITVal)
	assert.Equal(t, uint16(sample.SeverityInvalid), v.TMITSeverity[0])
}
