package chassis

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/cybercoder/ik8s-chassis/pkg/config"
	"github.com/cybercoder/ik8s-chassis/pkg/phal"
	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

// DataKind selects the piece of port data a DataRequest asks for.
type DataKind int

const (
	DataOperStatus DataKind = iota + 1
	DataAdminStatus
	DataPortSpeed
	DataNegotiatedPortSpeed
	DataMacAddress
	DataMTU
	DataAutonegStatus
	DataFecStatus
	DataLoopbackStatus
	DataPortCounters
	DataFrontPanelPortInfo
)

type DataRequest struct {
	Kind   DataKind
	NodeID uint64
	PortID uint32
}

// DataResponse carries the answer to a DataRequest. Only the fields matching
// Kind are set.
type DataResponse struct {
	Kind DataKind

	OperStatus      types.PortState
	TimeLastChanged time.Time

	AdminStatus types.AdminState
	SpeedBps    uint64
	MacAddress  string
	MTU         int32
	Autoneg     types.TriState
	FecMode     types.FecMode
	Loopback    types.LoopbackMode

	Counters   *types.PortCounters
	FrontPanel *phal.FrontPanelPortInfo
}

// GetPortState returns the live state of a port.
func (m *Manager) GetPortState(nodeID uint64, portID uint32) (types.PortState, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	st, _, err := m.lookupLocked(nodeID, portID)
	if err != nil {
		return types.PortStateUnknown, err
	}
	return st.state, nil
}

// GetPortCounters reads the counters of a port from its device driver. The
// chassis lock is held shared for the round trip.
func (m *Manager) GetPortCounters(ctx context.Context, nodeID uint64, portID uint32) (*types.PortCounters, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if _, _, err := m.lookupLocked(nodeID, portID); err != nil {
		return nil, err
	}
	return m.portCountersLocked(ctx, nodeID, portID)
}

// GetPortData answers a single port data request.
func (m *Manager) GetPortData(ctx context.Context, req DataRequest) (*DataResponse, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	st, cfg, err := m.lookupLocked(req.NodeID, req.PortID)
	if err != nil {
		return nil, err
	}

	resp := &DataResponse{Kind: req.Kind}
	switch req.Kind {
	case DataOperStatus:
		resp.OperStatus = st.state
		resp.TimeLastChanged = st.lastChanged
	case DataAdminStatus:
		resp.AdminStatus = cfg.ConfigParams.AdminState
	case DataPortSpeed:
		resp.SpeedBps = cfg.SpeedBps
	case DataNegotiatedPortSpeed:
		if st.state == types.PortStateUp {
			resp.SpeedBps = cfg.SpeedBps
		}
	case DataMacAddress:
		resp.MacAddress = cfg.ConfigParams.MacAddress
	case DataMTU:
		resp.MTU = cfg.ConfigParams.MTU
	case DataAutonegStatus:
		resp.Autoneg = cfg.ConfigParams.Autoneg
	case DataFecStatus:
		resp.FecMode = cfg.ConfigParams.FecMode
	case DataLoopbackStatus:
		resp.Loopback = cfg.ConfigParams.LoopbackMode
	case DataPortCounters:
		if resp.Counters, err = m.portCountersLocked(ctx, req.NodeID, req.PortID); err != nil {
			return nil, err
		}
	case DataFrontPanelPortInfo:
		if resp.FrontPanel, err = m.frontPanelLocked(ctx, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NotSupportedf("port data request kind %d", req.Kind)
	}
	return resp, nil
}

// lookupLocked resolves a port, failing with ErrUnavailable before the first
// successful push and with NotFound for unregistered ports.
func (m *Manager) lookupLocked(nodeID uint64, portID uint32) (*portStatus, config.SingletonPort, error) {
	if !m.initialized {
		return nil, config.SingletonPort{}, unavailablef("chassis manager not initialized")
	}
	return m.store.lookup(types.PortKey{NodeID: nodeID, PortID: portID})
}

func (m *Manager) portCountersLocked(ctx context.Context, nodeID uint64, portID uint32) (*types.PortCounters, error) {
	d, ok := m.bindings.driver(nodeID)
	if !ok {
		return nil, errors.NotFoundf("driver for node %d", nodeID)
	}
	counters, err := d.PortCounters(ctx, portID)
	if err != nil {
		return nil, errors.WithType(
			errors.Annotatef(err, "reading counters of node %d port %d", nodeID, portID),
			ErrUnavailable)
	}
	return counters, nil
}

func (m *Manager) frontPanelLocked(ctx context.Context, port config.SingletonPort) (*phal.FrontPanelPortInfo, error) {
	info, err := m.phal.FrontPanelPortInfo(ctx, port.Slot, port.Port)
	if err != nil {
		return nil, errors.WithType(
			errors.Annotatef(err, "reading front panel info of slot %d port %d", port.Slot, port.Port),
			ErrUnavailable)
	}
	return info, nil
}
