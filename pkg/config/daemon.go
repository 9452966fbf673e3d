package config

import (
	"os"

	"github.com/juju/errors"
)

// Driver kinds a node can be bound to.
const (
	DriverOVS    = "ovs"
	DriverNetdev = "netdev"
)

const DefaultOVSEndpoint = "unix:/var/run/openvswitch/db.sock"

// DaemonConfig is the chassisd bootstrap file: which device driver backs
// each node, and where the process exposes its metrics.
type DaemonConfig struct {
	MetricsAddr string        `yaml:"metrics_addr,omitempty"`
	Nodes       []NodeBinding `yaml:"nodes" validate:"required,min=1,dive"`
}

type NodeBinding struct {
	ID     uint64              `yaml:"id" validate:"required"`
	Driver string              `yaml:"driver" validate:"oneof=ovs netdev"`
	OVS    *OVSDriverConfig    `yaml:"ovs,omitempty" validate:"required_if=Driver ovs"`
	Netdev *NetdevDriverConfig `yaml:"netdev,omitempty" validate:"required_if=Driver netdev"`
}

type OVSDriverConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`         // e.g. "unix:/var/run/openvswitch/db.sock"
	Bridge   string `yaml:"bridge" validate:"required"` // e.g. "br-int"
}

type NetdevDriverConfig struct {
	Netns string            `yaml:"netns,omitempty"` // e.g. "/var/run/netns/sw1"
	Ports map[uint32]string `yaml:"ports" validate:"required,min=1"`
}

// ParseDaemon decodes and validates a daemon config, filling defaults.
func ParseDaemon(data []byte) (*DaemonConfig, error) {
	cfg := &DaemonConfig{}
	if err := decodeStrict(data, cfg); err != nil {
		return nil, errors.Annotate(err, "parsing daemon config")
	}
	for i := range cfg.Nodes {
		if ovs := cfg.Nodes[i].OVS; ovs != nil && ovs.Endpoint == "" {
			ovs.Endpoint = DefaultOVSEndpoint
		}
	}
	vs := fieldViolations(cfg, 0, 0)
	ids := make(map[uint64]bool)
	for _, n := range cfg.Nodes {
		if ids[n.ID] {
			vs = append(vs, Violation{NodeID: n.ID, Field: "nodes.id", Message: "duplicate node binding"})
		}
		ids[n.ID] = true
	}
	if err := AsError(vs); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDaemonFile reads and parses the daemon config at path.
func LoadDaemonFile(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading daemon config %q", path)
	}
	return ParseDaemon(data)
}
