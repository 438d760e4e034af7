// Package config defines the runtime configuration surface for cmd/orbitd
// and wires it to command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/epicsorbit/orbitagg/internal/aggregator"
)

// Config holds every tunable knob cmd/orbitd exposes as a flag.
type Config struct {
	Fake         bool
	FakeBPMCount int

	ModelPV    string
	EdefSuffix string
	OutputPV   string

	MaxEventAge      time.Duration
	FlushPeriod      time.Duration
	MaxEventRate     float64
	SourceQueueLimit int

	ConnectTimeout time.Duration

	LogLevel    string
	MetricsAddr string
}

// Defaults returns the knob defaults, mirroring aggregator.DefaultConfig
// for the fields they share.
func Defaults() Config {
	agg := aggregator.DefaultConfig()
	return Config{
		FakeBPMCount:     101,
		MaxEventAge:      agg.MaxEventAge,
		FlushPeriod:      agg.FlushPeriod,
		MaxEventRate:     agg.MaxEventRate,
		SourceQueueLimit: agg.SourceQueueLimit,
		ConnectTimeout:   10 * time.Second,
		LogLevel:         "info",
		MetricsAddr:      ":9300",
	}
}

// RegisterFlags binds cfg's fields to fs, following Defaults for each flag's
// default value.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	d := Defaults()

	fs.BoolVar(&cfg.Fake, "fake", false, "run against a synthetic BPM lattice instead of connecting to the control system")
	fs.IntVar(&cfg.FakeBPMCount, "fake-bpm-count", d.FakeBPMCount, "number of BPMs in the synthetic lattice, when --fake is set")
	fs.DurationVar(&cfg.MaxEventAge, "max-event-age", d.MaxEventAge, "maximum age of a partial snapshot before it is evicted unpublished")
	fs.DurationVar(&cfg.FlushPeriod, "flush-period", d.FlushPeriod, "pacing delay after each published snapshot")
	fs.Float64Var(&cfg.MaxEventRate, "max-event-rate", d.MaxEventRate, "event-rate knob used to derive the pending-snapshot cap")
	fs.IntVar(&cfg.SourceQueueLimit, "source-queue-limit", d.SourceQueueLimit, "steady-state queue capacity per source")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", d.ConnectTimeout, "time allowed for all sources to report connected before giving up")
	fs.StringVar(&cfg.LogLevel, "log-level", d.LogLevel, "minimum log level: debug, info, warn, error")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", d.MetricsAddr, "address the Prometheus metrics server listens on")
}

// Validate checks that the timing and rate knobs are positive and that the
// PV arguments required by the selected mode are set. RegisterFlags itself
// performs no validation.
func (c Config) Validate() error {
	if c.MaxEventAge <= 0 {
		return fmt.Errorf("config: max-event-age must be positive")
	}
	if c.FlushPeriod <= 0 {
		return fmt.Errorf("config: flush-period must be positive")
	}
	if c.MaxEventRate <= 0 {
		return fmt.Errorf("config: max-event-rate must be positive")
	}
	if !c.Fake {
		if c.ModelPV == "" || c.OutputPV == "" {
			return fmt.Errorf("config: model PV and output PV are required unless --fake is set")
		}
	} else if c.OutputPV == "" {
		return fmt.Errorf("config: output PV is required")
	}
	return nil
}

// AggregatorConfig projects the shared knobs into an aggregator.Config,
// leaving Logger/Metrics for the caller to fill in.
func (c Config) AggregatorConfig() aggregator.Config {
	return aggregator.Config{
		MaxEventAge:      c.MaxEventAge,
		FlushPeriod:      c.FlushPeriod,
		MaxEventRate:     c.MaxEventRate,
		SourceQueueLimit: c.SourceQueueLimit,
	}
}
