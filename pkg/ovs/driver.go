package ovs

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/ovn-kubernetes/libovsdb/cache"
	"github.com/ovn-kubernetes/libovsdb/model"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"github.com/cybercoder/ik8s-chassis/pkg/device"
	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

const pendingBuffer = 256

// monitorCache is the part of the OVSDB client the driver reads. *Client
// implements it.
type monitorCache interface {
	Connected() bool
	AddEventHandler(h cache.EventHandler)
	bridgeInterfaceRows(ctx context.Context, bridgeName string) ([]Interface, error)
	interfaceOnBridge(ctx context.Context, bridgeName, ifaceUUID string) (*Interface, error)
	interfaceByOFPort(ctx context.Context, bridgeName string, ofport int) (*Interface, error)
}

// Driver backs one chassis node with one OVS bridge. Port ids are the
// OpenFlow port numbers of the bridge's interfaces.
type Driver struct {
	client *Client
	db     monitorCache
	bridge string
	log    *logrus.Entry

	mu           sync.Mutex
	nodeID       uint64
	listener     device.PortStatusListener
	handlerAdded bool
	tomb         *tomb.Tomb
	pending      chan string
	last         map[uint32]types.PortState
}

var _ device.Driver = (*Driver)(nil)

func NewDriver(c *Client, bridge string, log *logrus.Entry) *Driver {
	return &Driver{
		client: c,
		db:     c,
		bridge: bridge,
		log:    log.WithFields(logrus.Fields{"driver": "ovs", "bridge": bridge}),
	}
}

// RegisterPortStatusListener starts a worker that first reports every
// interface already on the bridge, then follows cache updates.
func (d *Driver) RegisterPortStatusListener(nodeID uint64, l device.PortStatusListener) error {
	if l == nil {
		return errors.NotValidf("nil port status listener")
	}
	if !d.db.Connected() {
		return errors.Errorf("OVSDB not connected")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nodeID = nodeID
	d.listener = l
	// The monitor cache has no way to drop a handler, so it is added once
	// and feeds whichever worker is running.
	if !d.handlerAdded {
		d.db.AddEventHandler(&cache.EventHandlerFuncs{
			AddFunc:    d.onInterfaceAdd,
			UpdateFunc: d.onInterfaceUpdate,
		})
		d.handlerAdded = true
	}
	if d.tomb != nil && d.tomb.Alive() {
		return nil
	}

	t := &tomb.Tomb{}
	pending := make(chan string, pendingBuffer)
	d.tomb = t
	d.pending = pending
	d.last = make(map[uint32]types.PortState)
	t.Go(func() error { return d.run(t, pending) })
	d.log.WithField("node", nodeID).Info("port status listener registered")
	return nil
}

func (d *Driver) UnregisterPortStatusListener() error {
	d.mu.Lock()
	t := d.tomb
	d.tomb = nil
	d.pending = nil
	d.listener = nil
	d.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Kill(nil)
	return errors.Trace(t.Wait())
}

func (d *Driver) PortCounters(ctx context.Context, portID uint32) (*types.PortCounters, error) {
	if !d.db.Connected() {
		return nil, errors.Errorf("OVSDB not connected")
	}
	iface, err := d.db.interfaceByOFPort(ctx, d.bridge, int(portID))
	if err != nil {
		return nil, err
	}
	return CountersFromStatistics(iface.Statistics), nil
}

// EnsurePort creates the interface of a chassis port on the driver's bridge
// unless it already exists.
func (d *Driver) EnsurePort(ctx context.Context, portName string, portID uint32, mac string) error {
	return d.client.EnsurePort(ctx, d.bridge, portName, portID, mac)
}

// run reports the interfaces present when it starts, then every interface
// queued by the cache handlers. Each report reads the current cache row, so
// an older snapshot never overrides a newer update.
func (d *Driver) run(t *tomb.Tomb, pending <-chan string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ifaces, err := d.db.bridgeInterfaceRows(ctx, d.bridge)
	if err != nil {
		d.log.WithError(err).Warn("listing existing interfaces")
	}
	for _, iface := range ifaces {
		d.refresh(ctx, iface.UUID)
	}
	for {
		select {
		case <-t.Dying():
			return nil
		case id := <-pending:
			d.refresh(ctx, id)
		}
	}
}

func (d *Driver) refresh(ctx context.Context, ifaceUUID string) {
	iface, err := d.db.interfaceOnBridge(ctx, d.bridge, ifaceUUID)
	if err != nil {
		return
	}
	portID, ok := PortIDOf(iface)
	if !ok {
		return
	}
	state := PortStateOf(iface)
	if state == types.PortStateUnknown {
		return
	}

	d.mu.Lock()
	l, nodeID := d.listener, d.nodeID
	prev, seen := d.last[portID]
	d.last[portID] = state
	d.mu.Unlock()

	if l == nil || (seen && prev == state) {
		return
	}
	d.log.WithFields(logrus.Fields{
		"port":  portID,
		"iface": iface.Name,
		"state": state.String(),
	}).Debug("link state changed")
	l.OnPortStatusChanged(nodeID, portID, state)
}

func (d *Driver) enqueue(ifaceUUID string) {
	d.mu.Lock()
	t, pending := d.tomb, d.pending
	d.mu.Unlock()
	if t == nil {
		return
	}
	select {
	case pending <- ifaceUUID:
	case <-t.Dying():
	}
}

func (d *Driver) onInterfaceAdd(table string, m model.Model) {
	iface, ok := m.(*Interface)
	if table != OvsInterfaceTable || !ok {
		return
	}
	d.enqueue(iface.UUID)
}

func (d *Driver) onInterfaceUpdate(table string, old, new model.Model) {
	if table != OvsInterfaceTable {
		return
	}
	prev, ok := old.(*Interface)
	if !ok {
		return
	}
	next, ok := new.(*Interface)
	if !ok {
		return
	}
	// Statistics refreshes dominate updates; only state or ofport changes matter.
	prevID, _ := PortIDOf(prev)
	nextID, _ := PortIDOf(next)
	if PortStateOf(prev) != PortStateOf(next) || prevID != nextID {
		d.enqueue(next.UUID)
	}
}

// PortStateOf derives the operational state of an interface from its admin
// and link state columns.
func PortStateOf(iface *Interface) types.PortState {
	if iface.AdminState != nil && *iface.AdminState == "down" {
		return types.PortStateDown
	}
	if iface.LinkState == nil {
		return types.PortStateUnknown
	}
	switch *iface.LinkState {
	case "up":
		return types.PortStateUp
	case "down":
		return types.PortStateDown
	default:
		return types.PortStateUnknown
	}
}

// PortIDOf returns the chassis port id of an interface: its assigned ofport.
func PortIDOf(iface *Interface) (uint32, bool) {
	if iface.OFPort == nil || *iface.OFPort <= 0 {
		return 0, false
	}
	return uint32(*iface.OFPort), true
}

// CountersFromStatistics maps the Interface statistics column onto port
// counters. Unicast counts exclude multicast and broadcast when the datapath
// reports them.
func CountersFromStatistics(stats map[string]int) *types.PortCounters {
	get := func(key string) uint64 {
		if v := stats[key]; v > 0 {
			return uint64(v)
		}
		return 0
	}
	unicast := func(total, mcast, bcast uint64) uint64 {
		if mcast+bcast > total {
			return 0
		}
		return total - mcast - bcast
	}
	c := &types.PortCounters{
		InOctets:         get("rx_bytes"),
		OutOctets:        get("tx_bytes"),
		InMulticastPkts:  get("rx_multicast_packets"),
		OutMulticastPkts: get("tx_multicast_packets"),
		InBroadcastPkts:  get("rx_broadcast_packets"),
		OutBroadcastPkts: get("tx_broadcast_packets"),
		InDiscards:       get("rx_dropped"),
		OutDiscards:      get("tx_dropped"),
		InErrors:         get("rx_errors"),
		OutErrors:        get("tx_errors"),
		InFcsErrors:      get("rx_crc_err"),
	}
	c.InUnicastPkts = unicast(get("rx_packets"), c.InMulticastPkts, c.InBroadcastPkts)
	c.OutUnicastPkts = unicast(get("tx_packets"), c.OutMulticastPkts, c.OutBroadcastPkts)
	return c
}
