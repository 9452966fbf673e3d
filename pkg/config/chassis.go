package config

import "github.com/cybercoder/ik8s-chassis/pkg/types"

// ChassisConfig is the declarative description of the whole switch: its
// logical nodes and the singleton ports that live on them. A ChassisConfig
// handed to the chassis manager must not be mutated while the call is in
// progress.
type ChassisConfig struct {
	Description    string          `yaml:"description,omitempty" json:"description,omitempty"`
	Chassis        Chassis         `yaml:"chassis" json:"chassis"`
	Nodes          []Node          `yaml:"nodes" json:"nodes"`
	SingletonPorts []SingletonPort `yaml:"singleton_ports" json:"singleton_ports"`
}

type Chassis struct {
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,max=64"`
}

// Node is a logical switching unit, bound 1:1 to a device driver.
type Node struct {
	ID    uint64 `yaml:"id" json:"id" validate:"required"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,max=64"`
	Slot  int32  `yaml:"slot" json:"slot" validate:"gte=0"`
	Index int32  `yaml:"index" json:"index" validate:"gte=0"`
}

// SingletonPort is a front panel port (or channel of a breakout port) on a node.
type SingletonPort struct {
	ID           uint32           `yaml:"id" json:"id" validate:"required"`
	Name         string           `yaml:"name,omitempty" json:"name,omitempty" validate:"omitempty,max=64"`
	Node         uint64           `yaml:"node" json:"node" validate:"required"`
	Slot         int32            `yaml:"slot" json:"slot" validate:"gte=1"`
	Port         int32            `yaml:"port" json:"port" validate:"gte=1"`
	Channel      int32            `yaml:"channel" json:"channel" validate:"gte=0,lte=8"`
	SpeedBps     uint64           `yaml:"speed_bps" json:"speed_bps" validate:"oneof=1000000000 10000000000 25000000000 40000000000 50000000000 100000000000 200000000000 400000000000"`
	ConfigParams PortConfigParams `yaml:"config_params" json:"config_params"`
}

type PortConfigParams struct {
	AdminState   types.AdminState   `yaml:"admin_state,omitempty" json:"admin_state,omitempty" validate:"omitempty,oneof=enabled disabled diag"`
	MTU          int32              `yaml:"mtu,omitempty" json:"mtu,omitempty" validate:"omitempty,min=64,max=9216"`
	Autoneg      types.TriState     `yaml:"autoneg,omitempty" json:"autoneg,omitempty" validate:"omitempty,oneof=true false"`
	FecMode      types.FecMode      `yaml:"fec_mode,omitempty" json:"fec_mode,omitempty" validate:"omitempty,oneof=on off auto"`
	LoopbackMode types.LoopbackMode `yaml:"loopback_mode,omitempty" json:"loopback_mode,omitempty" validate:"omitempty,oneof=none mac phy"`
	MacAddress   string             `yaml:"mac_address,omitempty" json:"mac_address,omitempty" validate:"omitempty,mac"`
}

// Key returns the chassis-wide key of the port.
func (p SingletonPort) Key() types.PortKey {
	return types.PortKey{NodeID: p.Node, PortID: p.ID}
}

// Clone returns a deep copy of the config.
func (c *ChassisConfig) Clone() *ChassisConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.Nodes = append([]Node(nil), c.Nodes...)
	out.SingletonPorts = append([]SingletonPort(nil), c.SingletonPorts...)
	return &out
}

// NodeIDs returns the ids of the listed nodes in document order.
func (c *ChassisConfig) NodeIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// PortsByNode groups the singleton ports by node id, then port id.
func (c *ChassisConfig) PortsByNode() map[uint64]map[uint32]SingletonPort {
	out := make(map[uint64]map[uint32]SingletonPort)
	for _, n := range c.Nodes {
		out[n.ID] = make(map[uint32]SingletonPort)
	}
	for _, p := range c.SingletonPorts {
		ports, ok := out[p.Node]
		if !ok {
			ports = make(map[uint32]SingletonPort)
			out[p.Node] = ports
		}
		ports[p.ID] = p
	}
	return out
}
