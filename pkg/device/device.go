// Package device defines the boundary between the chassis manager and the
// per-node forwarding device drivers.
package device

import (
	"context"

	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

// PortStatusListener receives port operational status changes from a driver.
// Implementations must be safe to call from the driver's own goroutines.
type PortStatusListener interface {
	OnPortStatusChanged(nodeID uint64, portID uint32, state types.PortState)
}

// PortStatusListenerFunc adapts a function to PortStatusListener.
type PortStatusListenerFunc func(nodeID uint64, portID uint32, state types.PortState)

func (f PortStatusListenerFunc) OnPortStatusChanged(nodeID uint64, portID uint32, state types.PortState) {
	f(nodeID, portID, state)
}

// Driver programs and reports on the dataplane of a single node. Drivers are
// owned by the caller that builds the chassis manager and must outlive it.
type Driver interface {
	// RegisterPortStatusListener starts delivering status changes of the
	// node's ports to l, tagged with nodeID. Only one listener is held.
	// The listener is never called from within this method.
	RegisterPortStatusListener(nodeID uint64, l PortStatusListener) error
	// UnregisterPortStatusListener stops delivery. It is a no-op when nothing
	// is registered. It may wait for a listener call in progress, so callers
	// must not hold locks the listener takes.
	UnregisterPortStatusListener() error
	// PortCounters reads the live counters of a port from the device.
	PortCounters(ctx context.Context, portID uint32) (*types.PortCounters, error)
}
