package ovs

const OvsInterfaceTable = "Interface"

// Interface is the subset of the Open_vSwitch Interface table the driver
// reads. Optional columns are pointers.
type Interface struct {
	UUID          string            `ovsdb:"_uuid"`
	Name          string            `ovsdb:"name"`
	Type          string            `ovsdb:"type"` // "internal", "system", "dpdk", etc.
	OFPort        *int              `ovsdb:"ofport"`
	OFPortRequest *int              `ovsdb:"ofport_request"`
	AdminState    *string           `ovsdb:"admin_state"`
	LinkState     *string           `ovsdb:"link_state"`
	MTURequest    *int              `ovsdb:"mtu_request"`
	MAC           *string           `ovsdb:"mac"`
	MACInUse      *string           `ovsdb:"mac_in_use"`
	Statistics    map[string]int    `ovsdb:"statistics"`
	ExternalIDs   map[string]string `ovsdb:"external_ids"`
}
