// Package chassis owns the in-memory model of the switch: the committed
// chassis config, the live state of every singleton port and the bindings
// between logical nodes and their device drivers.
//
// Two locks are used and never nested. The chassis lock guards the port
// tables, the committed config and the initialized flag: config pushes hold
// it exclusively for their whole duration, verifications and queries hold it
// shared, and driver callbacks hold it exclusively only while updating a
// port's live state. The event lock guards the single event sink slot.
// Drivers are unregistered only after the chassis lock is released, since
// unregistration may wait for a callback that is waiting for that lock.
package chassis

import (
	"fmt"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/cybercoder/ik8s-chassis/pkg/config"
	"github.com/cybercoder/ik8s-chassis/pkg/device"
	"github.com/cybercoder/ik8s-chassis/pkg/phal"
)

// Manager is the chassis manager. Create it with CreateInstance and do not
// copy it: drivers hold a reference to it once it is initialized.
type Manager struct {
	phal     phal.Interface
	bindings *bindingTable

	lock        *sync.RWMutex
	initialized bool
	store       *portStore
	config      *config.ChassisConfig
	listening   []uint64

	events eventSlot

	log     *logrus.Entry
	clock   clock.Clock
	metrics *metrics
}

type options struct {
	log        *logrus.Entry
	clock      clock.Clock
	registerer prometheus.Registerer
	lock       *sync.RWMutex
}

// Option customises a Manager.
type Option func(*options)

// WithLogger sets the logger the manager derives its entries from.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

// WithClock sets the clock used for oper-status and event timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRegisterer registers the manager metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithChassisLock makes the manager use a chassis lock shared with other
// components instead of a private one.
func WithChassisLock(l *sync.RWMutex) Option {
	return func(o *options) { o.lock = l }
}

// CreateInstance builds the chassis manager. Both the PHAL and the drivers are
// borrowed and must outlive the manager; the node to driver map is copied and
// fixed for the manager's lifetime. The manager stays uninitialized until the
// first successful PushChassisConfig.
func CreateInstance(p phal.Interface, nodeIDToDriver map[uint64]device.Driver, opts ...Option) (*Manager, error) {
	if p == nil {
		return nil, errors.NotValidf("nil PHAL")
	}
	bindings, err := newBindingTable(nodeIDToDriver)
	if err != nil {
		return nil, errors.Trace(err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}
	if o.lock == nil {
		o.lock = &sync.RWMutex{}
	}

	return &Manager{
		phal:     p,
		bindings: bindings,
		lock:     o.lock,
		store:    newPortStore(),
		log:      o.log.WithField("component", "chassis-manager"),
		clock:    o.clock,
		metrics:  newMetrics(o.registerer),
	}, nil
}

// VerifyChassisConfig checks cfg without changing any state and returns a
// *config.ValidationError listing every violation found.
func (m *Manager) VerifyChassisConfig(cfg *config.ChassisConfig) error {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if err := config.AsError(m.verifyLocked(cfg)); err != nil {
		m.metrics.configVerifies.WithLabelValues(resultInvalid).Inc()
		return err
	}
	m.metrics.configVerifies.WithLabelValues(resultOK).Inc()
	return nil
}

// PushChassisConfig validates and commits cfg. Either the whole config is
// committed or no state changes. The first successful push registers a port
// status listener with every bound driver.
func (m *Manager) PushChassisConfig(cfg *config.ChassisConfig) error {
	var rollback []uint64
	m.lock.Lock()
	defer func() {
		m.lock.Unlock()
		// Drivers may wait for in-flight callbacks, which need the chassis lock.
		if err := m.unregisterListeners(rollback); err != nil {
			m.log.WithError(err).Warn("rolling back port status listeners")
		}
	}()

	if err := config.AsError(m.verifyLocked(cfg)); err != nil {
		m.metrics.configPushes.WithLabelValues(resultInvalid).Inc()
		return err
	}

	cfg = cfg.Clone()
	next := m.store.withConfig(cfg, m.clock.Now())
	removed := m.store.removedFrom(next)

	if !m.initialized {
		registered, err := m.registerEventWritersLocked()
		if err != nil {
			rollback = registered
			m.metrics.configPushes.WithLabelValues(resultFailed).Inc()
			return err
		}
		m.initialized = true
	}

	// Removed ports are dropped silently. Callbacks are registered per node,
	// so a stale callback for one of them is discarded by the adapter.
	for _, key := range removed {
		m.log.WithField("port", key.String()).Debug("port removed from chassis config")
	}
	m.store = next
	m.config = cfg
	m.metrics.ports.Set(float64(next.portCount()))
	m.metrics.configPushes.WithLabelValues(resultOK).Inc()
	m.log.WithFields(logrus.Fields{
		"nodes":   len(cfg.Nodes),
		"ports":   len(cfg.SingletonPorts),
		"removed": len(removed),
	}).Info("chassis config committed")
	return nil
}

// ChassisConfig returns a copy of the last committed config, or nil before
// the first successful push.
func (m *Manager) ChassisConfig() *config.ChassisConfig {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.config.Clone()
}

// Shutdown unregisters the driver listeners, forgets all ports and releases
// the event sink. It may be called more than once, and on a manager that was
// never initialized.
func (m *Manager) Shutdown() error {
	m.lock.Lock()
	listening := m.listening
	m.listening = nil
	m.initialized = false
	m.store = newPortStore()
	m.config = nil
	m.metrics.ports.Set(0)
	m.lock.Unlock()

	// Callbacks still in flight find the manager uninitialized and are dropped.
	err := m.unregisterListeners(listening)
	if uerr := m.UnregisterEventNotifyWriter(); uerr != nil {
		err = multierr.Append(err, uerr)
	}
	return err
}

// registerEventWritersLocked hooks the manager into every bound driver. On
// failure it returns the nodes registered so far; the caller unregisters them
// once the chassis lock is released.
func (m *Manager) registerEventWritersLocked() ([]uint64, error) {
	l := &portStatusListener{m: m}
	var done []uint64
	for _, nodeID := range m.bindings.nodeIDs() {
		d, _ := m.bindings.driver(nodeID)
		if err := d.RegisterPortStatusListener(nodeID, l); err != nil {
			return done, errors.WithType(
				errors.Annotatef(err, "registering port status listener for node %d", nodeID),
				ErrInternal)
		}
		done = append(done, nodeID)
		m.log.WithField("node", nodeID).Debug("port status listener registered")
	}
	m.listening = done
	return done, nil
}

// unregisterListeners removes the manager's listener from the drivers of
// nodeIDs. It must be called without the chassis lock held.
func (m *Manager) unregisterListeners(nodeIDs []uint64) error {
	var err error
	for _, nodeID := range nodeIDs {
		d, _ := m.bindings.driver(nodeID)
		if uerr := d.UnregisterPortStatusListener(); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("node %d: %w", nodeID, uerr))
		}
	}
	if err != nil {
		return errors.WithType(errors.Annotate(err, "unregistering port status listeners"), ErrInternal)
	}
	return nil
}
