package aggregator

import "time"

// EventLogger is the minimal structured-logging capability the worker needs.
// internal/logging's logger satisfies this, but aggregator depends only on
// the small interface rather than a concrete logger type.
type EventLogger interface {
	Warn(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
}

// MetricsSink is the minimal observability capability the worker reports to.
// internal/metrics's recorder satisfies this.
type MetricsSink interface {
	SourceOverflow(name string, dropped int)
	QueueDepth(name string, depth int)
	SnapshotTableSize(size int)
	SnapshotsPublished()
	SnapshotsAgedOut(n int)
	PublishDuration(d time.Duration)
}

type noopLogger struct{}

func (noopLogger) Warn(string, map[string]any) {}
func (noopLogger) Info(string, map[string]any) {}

type noopMetrics struct{}

func (noopMetrics) SourceOverflow(string, int)    {}
func (noopMetrics) QueueDepth(string, int)        {}
func (noopMetrics) SnapshotTableSize(int)         {}
func (noopMetrics) SnapshotsPublished()           {}
func (noopMetrics) SnapshotsAgedOut(int)          {}
func (noopMetrics) PublishDuration(time.Duration) {}

// Config carries the worker's tunable knobs.
type Config struct {
	// MaxEventAge is how long a partial snapshot survives before being
	// evicted without publication. Default 1s.
	MaxEventAge time.Duration
	// FlushPeriod is the pacing sleep after each delivered publish, and also
	// the unit used (as a raw number, matching the original implementation)
	// to derive MaxPending from MaxEventRate. Default 4ms.
	FlushPeriod time.Duration
	// MaxEventRate informs the pending-snapshot cap: clamp(MaxEventRate *
	// FlushPeriod.Milliseconds(), 10, 1000). Default 20.
	MaxEventRate float64
	// SourceQueueLimit overrides each Source's steady-state queue capacity.
	// Default 4 (source.SteadyStateLimit).
	SourceQueueLimit int

	Logger  EventLogger
	Metrics MetricsSink
}

// DefaultConfig returns the worker's knob defaults.
func DefaultConfig() Config {
	return Config{
		MaxEventAge:      time.Second,
		FlushPeriod:      4 * time.Millisecond,
		MaxEventRate:     20,
		SourceQueueLimit: 4,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxEventAge <= 0 {
		c.MaxEventAge = time.Second
	}
	if c.FlushPeriod <= 0 {
		c.FlushPeriod = 4 * time.Millisecond
	}
	if c.MaxEventRate <= 0 {
		c.MaxEventRate = 20
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

// maxPending computes clamp(MaxEventRate * FlushPeriod(ms), 10, 1000),
// matching orbit.cpp:process_dequeue's maxEvents calculation verbatim
// (rate times milliseconds, not a dimensionally "clean" rate*seconds, since
// that is what the original source actually computes).
func (c Config) maxPending() int {
	v := c.MaxEventRate * float64(c.FlushPeriod.Milliseconds())
	if v < 10 {
		v = 10
	}
	if v > 1000 {
		v = 1000
	}
	return int(v)
}

// ageKey converts MaxEventAge into the key64 units used by snapshot.Table:
// (whole seconds << 32) | nanoseconds of the fractional remainder.
func (c Config) ageKey() int64 {
	secs := int64(c.MaxEventAge / time.Second)
	nanos := int64(c.MaxEventAge % time.Second)
	return secs<<32 | nanos
}
