package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	names []string
	zs    []float64
}

func (s stubLoader) Fetch(ctx context.Context, modelPV string) ([]string, []float64, error) {
	return s.names, s.zs, nil
}

func TestLoad_FiltersToBPMPrefix(t *testing.T) {
	loader := stubLoader{
		names: []string{"BPMS:LTUH:0", "QUAD:LTUH:0", "BPMS:LTUH:1"},
		zs:    []float64{0, 1, 2},
	}

	lat, err := Load(context.Background(), loader, "MODEL")
	require.NoError(t, err)
	assert.Equal(t, []string{"BPMS:LTUH:0", "BPMS:LTUH:1"}, lat.Names)
	assert.Equal(t, []float64{0, 2}, lat.Zs)
}
