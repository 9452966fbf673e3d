package chassis

import (
	"time"

	"github.com/juju/errors"

	"github.com/cybercoder/ik8s-chassis/pkg/config"
	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

type portStatus struct {
	state       types.PortState
	lastChanged time.Time
}

// portStore holds the live state and committed config of every singleton
// port, keyed by node id then port id. Both tables always carry the same
// keys. It has no locking of its own; the manager guards it with the chassis
// lock.
type portStore struct {
	states  map[uint64]map[uint32]*portStatus
	configs map[uint64]map[uint32]config.SingletonPort
}

func newPortStore() *portStore {
	return &portStore{
		states:  make(map[uint64]map[uint32]*portStatus),
		configs: make(map[uint64]map[uint32]config.SingletonPort),
	}
}

// lookup returns the state and config of a port, failing with NotFound when
// either half is missing.
func (s *portStore) lookup(key types.PortKey) (*portStatus, config.SingletonPort, error) {
	st, ok := s.states[key.NodeID][key.PortID]
	if !ok {
		return nil, config.SingletonPort{}, errors.NotFoundf("state of %s", key)
	}
	cfg, ok := s.configs[key.NodeID][key.PortID]
	if !ok {
		return nil, config.SingletonPort{}, errors.NotFoundf("config of %s", key)
	}
	return st, cfg, nil
}

// setState records a new live state. The change timestamp only moves when
// the state actually differs.
func (s *portStore) setState(key types.PortKey, state types.PortState, now time.Time) error {
	st, _, err := s.lookup(key)
	if err != nil {
		return err
	}
	if st.state != state {
		st.state = state
		st.lastChanged = now
	}
	return nil
}

// withConfig builds the store that results from committing cfg on top of s.
// Ports new to cfg start Unknown, retained ports keep their live state and
// take the new config, ports absent from cfg are dropped. s is not modified.
func (s *portStore) withConfig(cfg *config.ChassisConfig, now time.Time) *portStore {
	next := newPortStore()
	for nodeID, ports := range cfg.PortsByNode() {
		states := make(map[uint32]*portStatus, len(ports))
		configs := make(map[uint32]config.SingletonPort, len(ports))
		for portID, p := range ports {
			if old, ok := s.states[nodeID][portID]; ok {
				cp := *old
				states[portID] = &cp
			} else {
				states[portID] = &portStatus{state: types.PortStateUnknown, lastChanged: now}
			}
			configs[portID] = p
		}
		next.states[nodeID] = states
		next.configs[nodeID] = configs
	}
	return next
}

// removedFrom lists the ports of s that are absent from next.
func (s *portStore) removedFrom(next *portStore) []types.PortKey {
	var out []types.PortKey
	for nodeID, ports := range s.configs {
		for portID := range ports {
			if _, ok := next.configs[nodeID][portID]; !ok {
				out = append(out, types.PortKey{NodeID: nodeID, PortID: portID})
			}
		}
	}
	return out
}

func (s *portStore) portCount() int {
	n := 0
	for _, ports := range s.configs {
		n += len(ports)
	}
	return n
}
