package ovs

import (
	"context"

	"github.com/juju/errors"
	"github.com/ovn-kubernetes/libovsdb/cache"
	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

type Client struct {
	ovsClient client.Client
	log       *logrus.Entry
}

// CreateOVSclient connects to the Open_vSwitch database at endpoint and
// monitors the tables the driver reads, so lookups are served from the cache.
func CreateOVSclient(ctx context.Context, endpoint string, log *logrus.Entry) (*Client, error) {
	log = log.WithField("ovsdb", endpoint)
	dbModel, err := model.NewClientDBModel("Open_vSwitch", map[string]model.Model{
		OvsBridgeTable:    &Bridge{},
		OvsPortTable:      &Port{},
		OvsInterfaceTable: &Interface{},
	})
	if err != nil {
		return nil, errors.Annotate(err, "creating Open_vSwitch DB model")
	}

	ovsClient, err := client.NewOVSDBClient(
		dbModel,
		client.WithEndpoint(endpoint),
	)
	if err != nil {
		return nil, errors.Annotate(err, "creating OVS client")
	}

	if err := ovsClient.Connect(ctx); err != nil {
		return nil, errors.Annotate(err, "connecting to OVSDB")
	}
	if _, err := ovsClient.MonitorAll(ctx); err != nil {
		ovsClient.Disconnect()
		return nil, errors.Annotate(err, "monitoring OVSDB")
	}
	log.Info("connected to OVSDB")
	return &Client{ovsClient: ovsClient, log: log}, nil
}

func (c *Client) Connected() bool {
	return c.ovsClient.Connected()
}

func (c *Client) Close() {
	c.ovsClient.Disconnect()
}

// bridgeInterfaces returns the UUIDs of every interface attached to the
// named bridge, read from the monitor cache.
func (c *Client) bridgeInterfaces(ctx context.Context, bridgeName string) (map[string]struct{}, error) {
	bridge := &Bridge{Name: bridgeName}
	if err := c.ovsClient.Get(ctx, bridge); err != nil {
		return nil, errors.Annotatef(err, "getting bridge %q", bridgeName)
	}
	onBridge := make(map[string]struct{}, len(bridge.Ports))
	for _, p := range bridge.Ports {
		onBridge[p] = struct{}{}
	}

	var ports []Port
	err := c.ovsClient.WhereCache(func(p *Port) bool {
		_, ok := onBridge[p.UUID]
		return ok
	}).List(ctx, &ports)
	if err != nil {
		return nil, errors.Annotatef(err, "listing ports of bridge %q", bridgeName)
	}

	out := make(map[string]struct{})
	for _, p := range ports {
		for _, iface := range p.Interfaces {
			out[iface] = struct{}{}
		}
	}
	return out, nil
}

// AddEventHandler subscribes h to changes of the monitored tables.
func (c *Client) AddEventHandler(h cache.EventHandler) {
	c.ovsClient.Cache().AddEventHandler(h)
}

// bridgeInterfaceRows lists the cached interface rows of the named bridge.
func (c *Client) bridgeInterfaceRows(ctx context.Context, bridgeName string) ([]Interface, error) {
	members, err := c.bridgeInterfaces(ctx, bridgeName)
	if err != nil {
		return nil, err
	}
	var ifaces []Interface
	err = c.ovsClient.WhereCache(func(i *Interface) bool {
		_, ok := members[i.UUID]
		return ok
	}).List(ctx, &ifaces)
	if err != nil {
		return nil, errors.Annotatef(err, "listing interfaces of bridge %q", bridgeName)
	}
	return ifaces, nil
}

// interfaceOnBridge returns the cached row of an interface if it belongs to
// the named bridge.
func (c *Client) interfaceOnBridge(ctx context.Context, bridgeName, ifaceUUID string) (*Interface, error) {
	members, err := c.bridgeInterfaces(ctx, bridgeName)
	if err != nil {
		return nil, err
	}
	if _, ok := members[ifaceUUID]; !ok {
		return nil, errors.NotFoundf("interface %s on bridge %q", ifaceUUID, bridgeName)
	}
	iface := &Interface{UUID: ifaceUUID}
	if err := c.ovsClient.Get(ctx, iface); err != nil {
		return nil, errors.Annotatef(err, "getting interface %s", ifaceUUID)
	}
	return iface, nil
}

// interfaceByOFPort finds the interface of the bridge whose OpenFlow port
// number is ofport.
func (c *Client) interfaceByOFPort(ctx context.Context, bridgeName string, ofport int) (*Interface, error) {
	ifaces, err := c.bridgeInterfaceRows(ctx, bridgeName)
	if err != nil {
		return nil, err
	}
	iface, ok := lo.Find(ifaces, func(i Interface) bool {
		return i.OFPort != nil && *i.OFPort == ofport
	})
	if !ok {
		return nil, errors.NotFoundf("interface with ofport %d on bridge %q", ofport, bridgeName)
	}
	return &iface, nil
}
