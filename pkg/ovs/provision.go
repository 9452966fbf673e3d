package ovs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/model"
	"github.com/ovn-kubernetes/libovsdb/ovsdb"
	"github.com/sirupsen/logrus"
)

// PortIDKey is the external_ids key carrying the chassis port id of an
// interface created by EnsurePort.
const PortIDKey = "chassis-port-id"

// namedUUID returns a fresh OVSDB named-uuid for rows inserted in one
// transaction.
func namedUUID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "_")
}

// EnsurePort makes sure an interface called portName exists on the bridge,
// requesting portID as its OpenFlow port number so that link state changes
// map back to the chassis port. An existing interface is left untouched.
func (c *Client) EnsurePort(ctx context.Context, bridgeName, portName string, portID uint32, mac string) error {
	existing := &Interface{Name: portName}
	err := c.ovsClient.Get(ctx, existing)
	if err == nil {
		c.log.WithField("port", portName).Debug("interface already present")
		return nil
	}
	if !errors.Is(err, client.ErrNotFound) {
		return errors.Annotatef(err, "looking up interface %q", portName)
	}

	bridge := &Bridge{Name: bridgeName}
	if err := c.ovsClient.Get(ctx, bridge); err != nil {
		return errors.Annotatef(err, "getting bridge %q", bridgeName)
	}

	ofport := int(portID)
	iface := &Interface{
		UUID:          namedUUID("iface"),
		Name:          portName,
		Type:          "internal",
		OFPortRequest: &ofport,
		ExternalIDs: map[string]string{
			"iface-id": portName,
			PortIDKey:  strconv.FormatUint(uint64(portID), 10),
		},
	}
	if mac != "" {
		iface.MAC = &mac
	}
	port := &Port{
		UUID:       namedUUID("port"),
		Name:       portName,
		Interfaces: []string{iface.UUID},
	}

	ifaceOps, err := c.ovsClient.Create(iface)
	if err != nil {
		return errors.Annotate(err, "preparing interface insert")
	}
	portOps, err := c.ovsClient.Create(port)
	if err != nil {
		return errors.Annotate(err, "preparing port insert")
	}
	mutateOps, err := c.ovsClient.Where(bridge).Mutate(bridge, model.Mutation{
		Field:   &bridge.Ports,
		Mutator: ovsdb.MutateOperationInsert,
		Value:   []string{port.UUID},
	})
	if err != nil {
		return errors.Annotate(err, "preparing bridge mutation")
	}

	ops := append(ifaceOps, append(portOps, mutateOps...)...)
	reply, err := c.ovsClient.Transact(ctx, ops...)
	if err != nil {
		return errors.Annotate(err, "OVSDB transaction failed")
	}
	if _, err := ovsdb.CheckOperationResults(reply, ops); err != nil {
		return errors.Annotatef(err, "adding port %q to bridge %q", portName, bridgeName)
	}

	c.log.WithFields(logrus.Fields{
		"bridge": bridgeName,
		"port":   portName,
		"ofport": ofport,
	}).Info("created port")
	return nil
}

// PortName is the default OVS port name for a chassis port without a
// configured name.
func PortName(nodeID uint64, portID uint32) string {
	return fmt.Sprintf("n%dp%d", nodeID, portID)
}
