package ovs

const OvsBridgeTable = "Bridge"

// Bridge is the subset of the Open_vSwitch Bridge table a node driver needs.
type Bridge struct {
	UUID  string   `ovsdb:"_uuid"`
	Name  string   `ovsdb:"name"`
	Ports []string `ovsdb:"ports"`
}
