package chassis

import (
	"sort"

	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/cybercoder/ik8s-chassis/pkg/device"
)

// bindingTable maps node ids to their device drivers. It is filled once at
// construction and never changes, so reads need no lock. The drivers are
// borrowed.
type bindingTable struct {
	drivers map[uint64]device.Driver
	order   []uint64
}

func newBindingTable(drivers map[uint64]device.Driver) (*bindingTable, error) {
	if len(drivers) == 0 {
		return nil, errors.NotValidf("empty node to driver map")
	}
	t := &bindingTable{drivers: make(map[uint64]device.Driver, len(drivers))}
	for nodeID, d := range drivers {
		if nodeID == 0 {
			return nil, errors.NotValidf("node id 0")
		}
		if d == nil {
			return nil, errors.NotValidf("nil driver for node %d", nodeID)
		}
		t.drivers[nodeID] = d
	}
	t.order = lo.Keys(t.drivers)
	sort.Slice(t.order, func(i, j int) bool { return t.order[i] < t.order[j] })
	return t, nil
}

func (t *bindingTable) driver(nodeID uint64) (device.Driver, bool) {
	d, ok := t.drivers[nodeID]
	return d, ok
}

// nodeIDs returns the bound node ids in ascending order.
func (t *bindingTable) nodeIDs() []uint64 {
	return t.order
}
