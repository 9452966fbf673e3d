package chassis

import (
	"sync"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/cybercoder/ik8s-chassis/pkg/event"
	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

// eventSlot holds at most one event sink. Its lock is independent from the
// chassis lock.
type eventSlot struct {
	mu     sync.RWMutex
	writer event.Writer
}

// RegisterEventNotifyWriter makes w the event sink, replacing any previous one.
func (m *Manager) RegisterEventNotifyWriter(w event.Writer) error {
	if w == nil {
		return errors.NotValidf("nil event writer")
	}
	m.events.mu.Lock()
	defer m.events.mu.Unlock()
	m.events.writer = w
	return nil
}

// UnregisterEventNotifyWriter clears the event sink. Clearing an empty slot
// is not an error.
func (m *Manager) UnregisterEventNotifyWriter() error {
	m.events.mu.Lock()
	defer m.events.mu.Unlock()
	m.events.writer = nil
	return nil
}

// SendPortOperStateGnmiEvent forwards a port oper-state change to the current
// sink. Without a sink the event is discarded.
func (m *Manager) SendPortOperStateGnmiEvent(nodeID uint64, portID uint32, state types.PortState) {
	m.events.mu.RLock()
	defer m.events.mu.RUnlock()

	if m.events.writer == nil {
		m.metrics.portEvents.WithLabelValues(eventNoSink).Inc()
		return
	}
	e := event.NewPortOperStateEvent(nodeID, portID, state, m.clock.Now())
	if err := m.events.writer.Write(e); err != nil {
		m.metrics.portEvents.WithLabelValues(eventWriteFailed).Inc()
		m.log.WithError(err).WithFields(logrus.Fields{
			"node": nodeID,
			"port": portID,
		}).Warn("writing port oper-state event")
		return
	}
	m.metrics.portEvents.WithLabelValues(eventForwarded).Inc()
}

// PortStatusChangeCb is the entry point for device driver notifications. It
// records state as the new live state of (nodeID, portID), then forwards the
// change to the event sink. Notifications for ports the manager does not
// track, e.g. ports removed by a later push, are dropped without error.
func PortStatusChangeCb(m *Manager, nodeID uint64, portID uint32, state types.PortState) error {
	if m == nil {
		return errors.NotValidf("nil chassis manager")
	}
	key := types.PortKey{NodeID: nodeID, PortID: portID}

	m.lock.Lock()
	err := m.store.setState(key, state, m.clock.Now())
	m.lock.Unlock()

	if err != nil {
		m.metrics.portEvents.WithLabelValues(eventUnknownPort).Inc()
		m.log.WithFields(logrus.Fields{
			"node":  nodeID,
			"port":  portID,
			"state": state.String(),
		}).Debug("dropping status change of untracked port")
		return nil
	}
	m.SendPortOperStateGnmiEvent(nodeID, portID, state)
	return nil
}

// portStatusListener is what the manager registers with each driver.
type portStatusListener struct {
	m *Manager
}

func (l *portStatusListener) OnPortStatusChanged(nodeID uint64, portID uint32, state types.PortState) {
	_ = PortStatusChangeCb(l.m, nodeID, portID, state)
}
