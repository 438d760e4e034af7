// Package aggregator implements Orbit, the single-worker correlation engine
// that drains Sources, assembles Snapshots, and publishes completed orbits to
// Receivers in strict monotonic order.
package aggregator

import (
	"sync"
	"time"

	"github.com/epicsorbit/orbitagg/internal/sample"
	"github.com/epicsorbit/orbitagg/internal/snapshot"
	"github.com/epicsorbit/orbitagg/internal/source"
)

// softCap bounds the live snapshot table regardless of MaxPending.
const softCap = 10

// Orbit is the timestamp-keyed event aggregator. One instance owns a fixed
// grid of Sources (one per BPM per axis), a SnapshotTable, and a receiver
// registry, and runs exactly one worker goroutine for their lifetime.
type Orbit struct {
	cfg Config

	names []string
	zs    []float64

	// sources[i][j]: i indexes BPM, j indexes axis (X, Y, TMIT).
	sources [][snapshot.NumAxes]*source.Source

	table *snapshot.Table
	reg   *registry

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	closed sync.Once

	shadow []Receiver // worker-goroutine-local, refreshed from reg
	now    func() time.Time
}

// New constructs an Orbit for the given BPM names and longitudinal
// positions (names[i]/zs[i] describe sources[i]), spawns the worker, and
// returns immediately — construction never blocks on connection
// establishment.
func New(names []string, zs []float64, cfg Config) *Orbit {
	cfg = cfg.withDefaults()

	o := &Orbit{
		cfg:    cfg,
		names:  append([]string(nil), names...),
		zs:     append([]float64(nil), zs...),
		table:  snapshot.NewTable(len(names)),
		reg:    newRegistry(),
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}

	o.sources = make([][snapshot.NumAxes]*source.Source, len(names))
	axisSuffix := [snapshot.NumAxes]string{"X", "Y", "TMIT"}
	for i, name := range names {
		for j := 0; j < snapshot.NumAxes; j++ {
			srcName := name + ":" + axisSuffix[j]
			o.sources[i][j] = source.New(srcName, o.wake, func(n string, dropped int) {
				cfg.Metrics.SourceOverflow(n, dropped)
				cfg.Logger.Warn("source overflow", map[string]any{"source": n, "dropped": dropped})
			})
			o.sources[i][j].SetSteadyStateLimit(cfg.SourceQueueLimit)
		}
	}

	go o.run()

	return o
}

// Source returns the FIFO for BPM i, axis j, for use by the transport layer
// wiring subscription callbacks. Panics on out-of-range indices.
func (o *Orbit) Source(bpmIndex int, axis snapshot.Axis) *source.Source {
	return o.sources[bpmIndex][axis]
}

// NumBPMs returns the fixed BPM count.
func (o *Orbit) NumBPMs() int { return len(o.names) }

// wake signals the worker's wakeup event. It is handed to each Source as a
// closure (a "wake token"), rather than a back-pointer to Orbit, to avoid a
// reference cycle between Source and its owning aggregator.
func (o *Orbit) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// Connected reports whether every Source is currently connected.
func (o *Orbit) Connected() bool {
	for i := range o.sources {
		for j := 0; j < snapshot.NumAxes; j++ {
			if !o.sources[i][j].Connected() {
				return false
			}
		}
	}
	return true
}

// WaitForConnection polls every 10ms until every Source reports connected or
// timeout elapses. Never panics; returns false on timeout.
func (o *Orbit) WaitForConnection(timeout time.Duration) bool {
	deadline := o.now().Add(timeout)
	for {
		if o.Connected() {
			return true
		}
		if o.now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// AddReceiver registers recv and marks the registry changed so the worker
// picks it up on its next pass, then synchronously delivers the fixed name/z
// vectors.
func (o *Orbit) AddReceiver(recv Receiver) {
	o.reg.add(recv)
	recv.SetNames(append([]string(nil), o.names...))
	recv.SetZs(append([]float64(nil), o.zs...))
}

// RemoveReceiver unregisters recv. A removed receiver is guaranteed not to
// receive any delivery that starts after RemoveReceiver returns, since the
// worker only ever iterates a shadow copied under the registry mutex.
func (o *Orbit) RemoveReceiver(recv Receiver) {
	o.reg.remove(recv)
}

// Close closes every Source, wakes the worker, and waits for it to exit.
// Idempotent.
func (o *Orbit) Close() {
	o.closed.Do(func() {
		close(o.stopCh)
		for i := range o.sources {
			for j := 0; j < snapshot.NumAxes; j++ {
				o.sources[i][j].Close()
			}
		}
		o.wake()
		<-o.doneCh
	})
}

func (o *Orbit) run() {
	defer close(o.doneCh)

	for {
		select {
		case <-o.stopCh:
			return
		default:
		}

		now := o.now()
		nowKey := sample.Timestamp{Seconds: int32(now.Unix()), Nanos: int32(now.Nanosecond())}.Key64()

		overloaded := o.drain()
		if overloaded {
			for i := range o.sources {
				for j := 0; j < snapshot.NumAxes; j++ {
					o.sources[i][j].Clear(4)
				}
			}
			o.cfg.Logger.Warn("snapshot table overload, truncating source queues", nil)
		}

		for i := range o.sources {
			for j := 0; j < snapshot.NumAxes; j++ {
				src := o.sources[i][j]
				o.cfg.Metrics.QueueDepth(src.Name, src.Len())
			}
		}

		agedOut := o.table.MarkComplete(nowKey, o.cfg.ageKey(), o.connChecker)
		if agedOut > 0 {
			o.cfg.Metrics.SnapshotsAgedOut(agedOut)
		}

		if shadow, changed := o.reg.shadowIfChanged(); changed {
			o.shadow = shadow
		}

		o.cfg.Metrics.SnapshotTableSize(o.table.Len())

		newest, published := o.table.Harvest(softCap)

		if published {
			start := o.now()
			for _, recv := range o.shadow {
				o.deliver(recv, newest)
			}
			o.cfg.Metrics.SnapshotsPublished()
			o.cfg.Metrics.PublishDuration(o.now().Sub(start))
			time.Sleep(o.cfg.FlushPeriod)
			continue
		}

		if !overloaded {
			// no work was found this tick: block until a push or disconnect
			// wakes us. No timeout: a fully idle table waits for activity
			// rather than polling.
			select {
			case <-o.stopCh:
				return
			case <-o.wakeCh:
			}
		}
	}
}

// deliver calls recv.SetCompletedSnapshot, recovering and logging any panic
// so one misbehaving receiver cannot take down the worker goroutine or stall
// delivery to the remaining receivers.
func (o *Orbit) deliver(recv Receiver, snap *snapshot.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			o.cfg.Logger.Warn("receiver panicked, skipping", map[string]any{"panic": r})
		}
	}()
	recv.SetCompletedSnapshot(snap)
}

// drain repeatedly scans every source, ingesting whatever is poppable, until
// either a full scan pops nothing or the snapshot table reaches MaxPending.
// Returns true if the loop stopped because of the table cap (overload).
func (o *Orbit) drain() (overloaded bool) {
	maxPending := o.cfg.maxPending()

	for {
		if o.table.Len() >= maxPending {
			return true
		}

		nothingPopped := true
		for i := range o.sources {
			for j := 0; j < snapshot.NumAxes; j++ {
				src := o.sources[i][j]
				if !src.Connected() {
					continue
				}
				if i != 0 && !src.Ready() {
					continue
				}

				v, ok := src.Pop()
				if !ok {
					src.SetReady(false)
					continue
				}
				src.SetReady(true)
				nothingPopped = false
				o.table.Ingest(i, snapshot.Axis(j), v)
			}
		}

		if nothingPopped {
			return false
		}
	}
}

func (o *Orbit) connChecker(bpmIndex int, axis snapshot.Axis) bool {
	return o.sources[bpmIndex][axis].Connected()
}
