// Package fake provides an in-process Subscriber and DescriptorLoader that
// synthesize a fixed BPM lattice and a periodic stream of plausible-looking
// samples, for the --fake CLI mode and for local development without a
// control-system network to connect to.
package fake

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/epicsorbit/orbitagg/internal/sample"
	"github.com/epicsorbit/orbitagg/internal/transport"
)

// NumBPMs is the default lattice size, matching the original --fake mode.
const NumBPMs = 101

// NamePrefix is prepended to each BPM's index to form its channel name.
const NamePrefix = "BPMS:LTUH:"

// Descriptor satisfies transport.DescriptorLoader with a synthetic
// BPMS:LTUH:0..N-1 lattice, z positions equal to index, ignoring modelPV.
type Descriptor struct {
	// Count is the number of BPMs to synthesize. Defaults to NumBPMs (101)
	// if zero.
	Count int
}

// Fetch implements transport.DescriptorLoader.
func (d Descriptor) Fetch(ctx context.Context, modelPV string) ([]string, []float64, error) {
	n := d.Count
	if n <= 0 {
		n = NumBPMs
	}
	names := make([]string, n)
	zs := make([]float64, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("%s%d", NamePrefix, i)
		zs[i] = float64(i)
	}
	return names, zs, nil
}

// Generator is a Subscriber that, for any channel name it is asked to
// subscribe to, spins up a goroutine producing a steady cadence of
// connect/sample events until the subscription is released.
type Generator struct {
	// Period is the interval between samples on each subscribed channel.
	// Defaults to 10ms.
	Period time.Duration
	// Seed, if non-zero, seeds every channel's phase generator with the same
	// value (used by tests). If zero, each channel's seed is derived from a
	// hash of its name.
	Seed int64

	now func() time.Time
}

// NewGenerator constructs a Generator with default pacing.
func NewGenerator() *Generator {
	return &Generator{Period: 10 * time.Millisecond, now: time.Now}
}

// Subscribe implements transport.Subscriber, starting one goroutine per
// channel that fires OnConnect, then OnSample at Period cadence, until the
// returned Handle is unsubscribed.
func (g *Generator) Subscribe(ctx context.Context, name string, cb transport.Callback) (transport.Handle, error) {
	period := g.Period
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	now := g.now
	if now == nil {
		now = time.Now
	}

	h := &handle{stop: make(chan struct{})}
	h.wg.Add(1)

	seed := g.Seed
	if seed == 0 {
		seed = int64(hashName(name))
	}
	rng := rand.New(rand.NewSource(seed))

	go func() {
		defer h.wg.Done()

		if cb.OnConnect != nil {
			cb.OnConnect()
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		phase := rng.Float64() * 2 * math.Pi
		for {
			select {
			case <-h.stop:
				if cb.OnDisconnect != nil {
					cb.OnDisconnect()
				}
				return
			case <-ctx.Done():
				if cb.OnDisconnect != nil {
					cb.OnDisconnect()
				}
				return
			case <-ticker.C:
				if cb.OnSample != nil {
					t := now()
					cb.OnSample(sample.Value{
						TS: sample.Timestamp{
							Seconds: int32(t.Unix()),
							Nanos:   int32(t.Nanosecond()),
						},
						Severity: sample.SeverityNone,
						Status:   0,
						Count:    1,
						Buffer:   []float64{math.Sin(phase+float64(t.UnixNano())/1e9) * 0.1},
					})
				}
			}
		}
	}()

	return h, nil
}

type handle struct {
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Unsubscribe implements transport.Handle.
func (h *handle) Unsubscribe() error {
	h.once.Do(func() { close(h.stop) })
	h.wg.Wait()
	return nil
}

func hashName(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
