// Package bootstrap resolves the BPM lattice (names and longitudinal
// positions) used to construct an aggregator.Orbit, either from a live
// model PV descriptor or from the synthetic fake lattice.
package bootstrap

import (
	"context"
	"strings"

	"github.com/epicsorbit/orbitagg/internal/transport"
)

// devicePrefix filters the descriptor table down to BPM rows, matching the
// "BPMS" device-name prefix check the upstream model table encodes.
const devicePrefix = "BPMS"

// Lattice describes the fixed BPM ordering an Orbit is constructed with.
type Lattice struct {
	Names []string
	Zs    []float64
}

// Load fetches the full descriptor table from loader and filters it down to
// BPM rows (device name prefixed with "BPMS"), preserving table order.
func Load(ctx context.Context, loader transport.DescriptorLoader, modelPV string) (Lattice, error) {
	names, zs, err := loader.Fetch(ctx, modelPV)
	if err != nil {
		return Lattice{}, err
	}

	var lat Lattice
	for i, name := range names {
		if !strings.HasPrefix(name, devicePrefix) {
			continue
		}
		lat.Names = append(lat.Names, name)
		lat.Zs = append(lat.Zs, zs[i])
	}
	return lat, nil
}
