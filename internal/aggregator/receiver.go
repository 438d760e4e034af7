package aggregator

import (
	"sync"

	"github.com/epicsorbit/orbitagg/internal/snapshot"
)

// Receiver is the pluggable observer capability set a downstream component
// implements to receive orbit updates. Implementations are called outside
// the aggregator's internal locks and must not block for long, since the
// worker loop is single-threaded and a slow receiver paces every other
// receiver's delivery.
type Receiver interface {
	// SetNames is called once, synchronously, from AddReceiver, with the
	// aggregator's fixed BPM name vector.
	SetNames(names []string)
	// SetZs is called once, synchronously, from AddReceiver, with the
	// aggregator's fixed BPM longitudinal position vector.
	SetZs(zs []float64)
	// SetCompletedSnapshot is called from the worker loop for every
	// published snapshot, in strict monotonic key order.
	SetCompletedSnapshot(snap *snapshot.Snapshot)
}

// registry tracks the receiver set with copy-on-write shadowing: writers
// (AddReceiver/RemoveReceiver) take the registry mutex; the worker loop
// copies the live set into a shadow slice under the same mutex only when
// it has changed, then iterates the shadow without holding any lock.
type registry struct {
	mu      sync.Mutex
	set     map[Receiver]struct{}
	changed bool
}

func newRegistry() *registry {
	return &registry{set: make(map[Receiver]struct{})}
}

func (r *registry) add(recv Receiver) {
	r.mu.Lock()
	r.set[recv] = struct{}{}
	r.changed = true
	r.mu.Unlock()
}

func (r *registry) remove(recv Receiver) {
	r.mu.Lock()
	delete(r.set, recv)
	r.changed = true
	r.mu.Unlock()
}

// shadowIfChanged returns a fresh slice snapshot of the receiver set, and
// true, only if the set has changed since the last call; otherwise returns
// nil, false and the caller should keep using its existing shadow.
func (r *registry) shadowIfChanged() ([]Receiver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.changed {
		return nil, false
	}
	shadow := make([]Receiver, 0, len(r.set))
	for recv := range r.set {
		shadow = append(shadow, recv)
	}
	r.changed = false
	return shadow, true
}
