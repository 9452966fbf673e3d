package config

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybercoder/ik8s-chassis/pkg/types"
)

const sampleConfig = `
description: two node lab chassis
chassis:
  platform: ovs
  name: lab-1
nodes:
  - id: 1
    name: sw1
    slot: 1
  - id: 2
    name: sw2
    slot: 1
    index: 1
singleton_ports:
  - id: 100
    name: eth100
    node: 1
    slot: 1
    port: 1
    speed_bps: 100000000000
    config_params:
      admin_state: enabled
      mtu: 9000
      autoneg: "true"
      fec_mode: auto
  - id: 101
    node: 1
    slot: 1
    port: 2
    speed_bps: 25000000000
  - id: 100
    node: 2
    slot: 1
    port: 3
    speed_bps: 10000000000
    config_params:
      admin_state: disabled
      mac_address: "00:11:22:33:44:55"
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "lab-1", cfg.Chassis.Name)
	assert.Equal(t, []uint64{1, 2}, cfg.NodeIDs())
	require.Len(t, cfg.SingletonPorts, 3)

	p := cfg.SingletonPorts[0]
	assert.Equal(t, types.PortKey{NodeID: 1, PortID: 100}, p.Key())
	assert.Equal(t, types.Speed100G, p.SpeedBps)
	assert.Equal(t, types.AdminStateEnabled, p.ConfigParams.AdminState)
	assert.Equal(t, types.TriStateTrue, p.ConfigParams.Autoneg)
	assert.Equal(t, int32(9000), p.ConfigParams.MTU)

	assert.NoError(t, cfg.Validate())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("nodes: []\nbogus: 1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestParseEmptyDocument(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"nodes":[{"id":7}],"singleton_ports":[{"id":1,"node":7,"slot":1,"port":1,"speed_bps":40000000000}]}`))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(7), cfg.SingletonPorts[0].Node)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	data, err := Marshal(cfg)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestViolationsAreAggregated(t *testing.T) {
	cfg := &ChassisConfig{
		Nodes: []Node{{ID: 1}, {ID: 1}},
		SingletonPorts: []SingletonPort{
			{ID: 1, Node: 1, Slot: 1, Port: 1, SpeedBps: 12345},
			{ID: 1, Node: 1, Slot: 1, Port: 2, SpeedBps: types.Speed10G},
			{ID: 0, Node: 9, Slot: 0, Port: 3, SpeedBps: types.Speed10G,
				ConfigParams: PortConfigParams{MTU: 20000, AdminState: "sideways", MacAddress: "nope"}},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotValid))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	has := func(nodeID uint64, portID uint32, field string) bool {
		for _, v := range verr.Violations {
			if v.NodeID == nodeID && v.PortID == portID && v.Field == field {
				return true
			}
		}
		return false
	}
	assert.True(t, has(1, 0, "nodes.id"), "duplicate node")
	assert.True(t, has(1, 1, "speed_bps"), "bad speed")
	assert.True(t, has(1, 1, "id"), "duplicate port id")
	assert.True(t, has(9, 0, "id"), "missing port id")
	assert.True(t, has(9, 0, "node"), "unlisted node")
	assert.True(t, has(9, 0, "slot"), "slot below range")
	assert.True(t, has(9, 0, "config_params.mtu"), "mtu above range")
	assert.True(t, has(9, 0, "config_params.admin_state"), "bad admin state")
	assert.True(t, has(9, 0, "config_params.mac_address"), "bad mac")
}

func TestDuplicateLocationAndName(t *testing.T) {
	cfg := &ChassisConfig{
		Nodes: []Node{{ID: 1}, {ID: 2}},
		SingletonPorts: []SingletonPort{
			{ID: 1, Name: "a", Node: 1, Slot: 1, Port: 1, SpeedBps: types.Speed10G},
			{ID: 1, Name: "a", Node: 2, Slot: 1, Port: 1, SpeedBps: types.Speed10G},
		},
	}
	vs := cfg.Violations()
	require.Len(t, vs, 2)
	SortViolations(vs)
	assert.Contains(t, vs[0].Message, "slot 1 port 1 channel 0 already used by node 1 port 1")
	assert.Equal(t, "name", vs[1].Field)
}

func TestSamePortIDOnDifferentNodesIsFine(t *testing.T) {
	cfg := &ChassisConfig{
		Nodes: []Node{{ID: 1}, {ID: 2}},
		SingletonPorts: []SingletonPort{
			{ID: 5, Node: 1, Slot: 1, Port: 1, SpeedBps: types.Speed10G},
			{ID: 5, Node: 2, Slot: 1, Port: 2, SpeedBps: types.Speed10G},
		},
	}
	assert.Empty(t, cfg.Violations())
}

func TestCloneIsDeep(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	clone := cfg.Clone()
	clone.SingletonPorts[0].SpeedBps = types.Speed1G
	clone.Nodes[0].Name = "changed"
	assert.Equal(t, types.Speed100G, cfg.SingletonPorts[0].SpeedBps)
	assert.Equal(t, "sw1", cfg.Nodes[0].Name)
}

func TestPortsByNode(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	byNode := cfg.PortsByNode()
	assert.Len(t, byNode[1], 2)
	assert.Len(t, byNode[2], 1)
	assert.Equal(t, types.AdminStateDisabled, byNode[2][100].ConfigParams.AdminState)
}

func TestParseDaemon(t *testing.T) {
	cfg, err := ParseDaemon([]byte(`
metrics_addr: ":9100"
nodes:
  - id: 1
    driver: ovs
    ovs:
      bridge: br-int
  - id: 2
    driver: netdev
    netdev:
      netns: /var/run/netns/sw2
      ports:
        1: veth1
        2: veth2
`))
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, DefaultOVSEndpoint, cfg.Nodes[0].OVS.Endpoint)
	assert.Equal(t, "veth2", cfg.Nodes[1].Netdev.Ports[2])
}

func TestParseDaemonRejectsMissingDriverSection(t *testing.T) {
	_, err := ParseDaemon([]byte(`
nodes:
  - id: 1
    driver: ovs
  - id: 1
    driver: carrier-pigeon
`))
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 3)
}
