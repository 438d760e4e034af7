// Package transport defines the boundary interfaces between the aggregator
// core and the external subscription/publication systems. Real
// channel-access/PVAccess transports are out of scope for this repository;
// transport/fake and transport/memory provide in-process implementations
// used by the --fake CLI mode and by tests.
package transport

import (
	"context"

	"github.com/epicsorbit/orbitagg/internal/sample"
)

// Callback groups the connection-state and delivery hooks a Subscribe call
// wires up for one channel.
type Callback struct {
	OnConnect    func()
	OnDisconnect func()
	OnSample     func(sample.Value)
}

// Handle represents one active subscription.
type Handle interface {
	// Unsubscribe releases the subscription. No further callbacks fire after
	// it returns.
	Unsubscribe() error
}

// Subscriber is the inbound sample-source transport: one monitor per named
// channel, promoted to a scalar-with-metadata delivery.
type Subscriber interface {
	Subscribe(ctx context.Context, name string, cb Callback) (Handle, error)
}

// StructuredValue is the outbound tabular value published for each completed
// orbit.
type StructuredValue struct {
	Labels     []string
	DeviceName []string
	Z          []float64

	XVal, YVal, TMITVal                []float64
	XSeverity, YSeverity, TMITSeverity []uint16
	XStatus, YStatus, TMITStatus       []uint16

	Descriptor string

	SecondsPastEpoch int32
	Nanoseconds      int32
}

// Publisher is the outbound publication transport.
type Publisher interface {
	Publish(ctx context.Context, name string, value StructuredValue) error
}

// DescriptorLoader performs the one-shot bootstrap fetch of device names and
// longitudinal positions from an upstream descriptor table.
type DescriptorLoader interface {
	Fetch(ctx context.Context, modelPV string) (deviceNames []string, s []float64, err error)
}
