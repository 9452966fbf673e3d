// Package netdev backs a chassis node with plain kernel network interfaces,
// optionally inside a network namespace, e.g. the veth ends of a software
// switch.
package netdev

import (
	"context"
	"net"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"

	"github.com/cybercoder/ik8s-chassis/pkg/device"
	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

const updateBuffer = 64

// Driver maps chassis port ids to interface names and watches their link
// state over rtnetlink.
type Driver struct {
	netnsPath string
	ports     map[uint32]string
	byName    map[string]uint32
	log       *logrus.Entry
	subscribe func(ch chan<- netlink.LinkUpdate, done <-chan struct{}, opts netlink.LinkSubscribeOptions) error

	mu       sync.Mutex
	nodeID   uint64
	listener device.PortStatusListener
	last     map[uint32]types.PortState
	tomb     *tomb.Tomb
}

var _ device.Driver = (*Driver)(nil)

// NewDriver builds a driver for the interfaces in ports. An empty netnsPath
// means the current network namespace.
func NewDriver(netnsPath string, ports map[uint32]string, log *logrus.Entry) (*Driver, error) {
	if len(ports) == 0 {
		return nil, errors.NotValidf("empty port map")
	}
	byName := lo.Invert(ports)
	if len(byName) != len(ports) {
		return nil, errors.NotValidf("port map with repeated interface names")
	}
	return &Driver{
		netnsPath: netnsPath,
		ports:     lo.Assign(ports),
		byName:    byName,
		log:       log.WithFields(logrus.Fields{"driver": "netdev", "netns": netnsPath}),
		subscribe: netlink.LinkSubscribeWithOptions,
		last:      make(map[uint32]types.PortState),
	}, nil
}

// openNamespace returns the namespace handle of the driver; netns.None()
// when it works in the current namespace. Callers close open handles.
func (d *Driver) openNamespace() (netns.NsHandle, error) {
	if d.netnsPath == "" {
		return netns.None(), nil
	}
	ns, err := netns.GetFromPath(d.netnsPath)
	if err != nil {
		return netns.None(), errors.Annotatef(err, "opening netns %s", d.netnsPath)
	}
	return ns, nil
}

func closeNamespace(ns netns.NsHandle) {
	if ns.IsOpen() {
		_ = ns.Close()
	}
}

func (d *Driver) RegisterPortStatusListener(nodeID uint64, l device.PortStatusListener) error {
	if l == nil {
		return errors.NotValidf("nil port status listener")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nodeID = nodeID
	d.listener = l
	if d.tomb != nil {
		if d.tomb.Alive() {
			return nil
		}
		// The watcher stopped on its own; subscribe again.
		d.log.WithError(d.tomb.Err()).Warn("link watcher died, resubscribing")
		d.tomb = nil
		d.last = make(map[uint32]types.PortState)
	}

	ns, err := d.openNamespace()
	if err != nil {
		return err
	}
	updates := make(chan netlink.LinkUpdate, updateBuffer)
	done := make(chan struct{})
	opts := netlink.LinkSubscribeOptions{
		ListExisting: true,
		ErrorCallback: func(err error) {
			d.log.WithError(err).Warn("link subscription error")
		},
	}
	if ns.IsOpen() {
		opts.Namespace = &ns
	}
	if err := d.subscribe(updates, done, opts); err != nil {
		closeNamespace(ns)
		d.listener = nil
		return errors.Annotate(err, "subscribing to link updates")
	}

	t := &tomb.Tomb{}
	t.Go(func() error {
		defer closeNamespace(ns)
		return d.watch(t, updates, done)
	})
	d.tomb = t
	d.log.WithField("node", nodeID).Info("port status listener registered")
	return nil
}

func (d *Driver) UnregisterPortStatusListener() error {
	d.mu.Lock()
	t := d.tomb
	d.tomb = nil
	d.listener = nil
	d.last = make(map[uint32]types.PortState)
	d.mu.Unlock()

	if t == nil {
		return nil
	}
	t.Kill(nil)
	return errors.Trace(t.Wait())
}

func (d *Driver) watch(t *tomb.Tomb, updates <-chan netlink.LinkUpdate, done chan struct{}) error {
	defer close(done)
	for {
		select {
		case <-t.Dying():
			return nil
		case u, ok := <-updates:
			if !ok {
				return errors.New("link subscription closed")
			}
			d.handleUpdate(u)
		}
	}
}

func (d *Driver) handleUpdate(u netlink.LinkUpdate) {
	if u.Link == nil {
		return
	}
	attrs := u.Link.Attrs()
	portID, ok := d.byName[attrs.Name]
	if !ok {
		return
	}
	state := PortStateFromLink(attrs, u.Header.Type == unix.RTM_DELLINK)

	d.mu.Lock()
	l, nodeID := d.listener, d.nodeID
	prev, seen := d.last[portID]
	d.last[portID] = state
	d.mu.Unlock()

	// rtnetlink repeats link messages for unrelated attribute changes.
	if l == nil || (seen && prev == state) {
		return
	}
	d.log.WithFields(logrus.Fields{
		"port":  portID,
		"iface": attrs.Name,
		"state": state.String(),
	}).Debug("link state changed")
	l.OnPortStatusChanged(nodeID, portID, state)
}

// PortStateFromLink derives a port state from link attributes. A deleted or
// administratively down link is Down.
func PortStateFromLink(attrs *netlink.LinkAttrs, deleted bool) types.PortState {
	if deleted || attrs.Flags&net.FlagUp == 0 {
		return types.PortStateDown
	}
	switch attrs.OperState {
	case netlink.OperUp:
		return types.PortStateUp
	case netlink.OperDown, netlink.OperLowerLayerDown, netlink.OperNotPresent, netlink.OperDormant:
		return types.PortStateDown
	default:
		// Virtual links without carrier reporting stay OperUnknown while up.
		if attrs.RawFlags&unix.IFF_RUNNING != 0 {
			return types.PortStateUp
		}
		return types.PortStateUnknown
	}
}

func (d *Driver) withHandle(fn func(h *netlink.Handle) error) error {
	ns, err := d.openNamespace()
	if err != nil {
		return err
	}
	defer closeNamespace(ns)
	h, err := netlink.NewHandleAt(ns)
	if err != nil {
		return errors.Annotate(err, "opening netlink handle")
	}
	defer h.Close()
	return fn(h)
}

func (d *Driver) PortCounters(ctx context.Context, portID uint32) (*types.PortCounters, error) {
	name, ok := d.ports[portID]
	if !ok {
		return nil, errors.NotFoundf("port %d", portID)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	var counters *types.PortCounters
	err := d.withHandle(func(h *netlink.Handle) error {
		link, err := h.LinkByName(name)
		if err != nil {
			return errors.Annotatef(err, "looking up link %s", name)
		}
		stats := link.Attrs().Statistics
		if stats == nil {
			return errors.Errorf("link %s reports no statistics", name)
		}
		counters = CountersFromStatistics(stats)
		return nil
	})
	return counters, err
}

// CountersFromStatistics maps kernel link statistics onto port counters.
func CountersFromStatistics(s *netlink.LinkStatistics) *types.PortCounters {
	c := &types.PortCounters{
		InOctets:        s.RxBytes,
		OutOctets:       s.TxBytes,
		InMulticastPkts: s.Multicast,
		InDiscards:      s.RxDropped,
		OutDiscards:     s.TxDropped,
		InErrors:        s.RxErrors,
		OutErrors:       s.TxErrors,
		InFcsErrors:     s.RxCrcErrors,
		OutUnicastPkts:  s.TxPackets,
	}
	if s.RxPackets > s.Multicast {
		c.InUnicastPkts = s.RxPackets - s.Multicast
	}
	return c
}

// MissingInterfaces lists the configured interface names that do not exist
// in the driver's namespace.
func (d *Driver) MissingInterfaces() ([]string, error) {
	var missing []string
	err := d.withHandle(func(h *netlink.Handle) error {
		links, err := h.LinkList()
		if err != nil {
			return errors.Annotate(err, "listing links")
		}
		present := lo.Map(links, func(l netlink.Link, _ int) string { return l.Attrs().Name })
		missing = lo.Filter(lo.Values(d.ports), func(name string, _ int) bool {
			return !lo.Contains(present, name)
		})
		sort.Strings(missing)
		return nil
	})
	return missing, err
}
