package types

import "fmt"

// PortState is the operational state of a singleton port as last reported by
// the device driver.
type PortState int

const (
	PortStateUnknown PortState = iota
	PortStateUp
	PortStateDown
	PortStateFailed
)

func (s PortState) String() string {
	switch s {
	case PortStateUp:
		return "UP"
	case PortStateDown:
		return "DOWN"
	case PortStateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// AdminState is the configured administrative state of a port.
type AdminState string

const (
	AdminStateUnknown  AdminState = ""
	AdminStateEnabled  AdminState = "enabled"
	AdminStateDisabled AdminState = "disabled"
	AdminStateDiag     AdminState = "diag"
)

type TriState string

const (
	TriStateUnknown TriState = ""
	TriStateTrue    TriState = "true"
	TriStateFalse   TriState = "false"
)

type FecMode string

const (
	FecModeUnknown FecMode = ""
	FecModeOn      FecMode = "on"
	FecModeOff     FecMode = "off"
	FecModeAuto    FecMode = "auto"
)

type LoopbackMode string

const (
	LoopbackModeUnknown LoopbackMode = ""
	LoopbackModeNone    LoopbackMode = "none"
	LoopbackModeMAC     LoopbackMode = "mac"
	LoopbackModePHY     LoopbackMode = "phy"
)

// Port speeds in bits per second.
const (
	Speed1G   uint64 = 1_000_000_000
	Speed10G  uint64 = 10_000_000_000
	Speed25G  uint64 = 25_000_000_000
	Speed40G  uint64 = 40_000_000_000
	Speed50G  uint64 = 50_000_000_000
	Speed100G uint64 = 100_000_000_000
	Speed200G uint64 = 200_000_000_000
	Speed400G uint64 = 400_000_000_000
)

// PortCounters are the packet/byte counters of a single port as read from the
// device driver.
type PortCounters struct {
	InOctets         uint64 `json:"in_octets"`
	OutOctets        uint64 `json:"out_octets"`
	InUnicastPkts    uint64 `json:"in_unicast_pkts"`
	OutUnicastPkts   uint64 `json:"out_unicast_pkts"`
	InMulticastPkts  uint64 `json:"in_multicast_pkts"`
	OutMulticastPkts uint64 `json:"out_multicast_pkts"`
	InBroadcastPkts  uint64 `json:"in_broadcast_pkts"`
	OutBroadcastPkts uint64 `json:"out_broadcast_pkts"`
	InDiscards       uint64 `json:"in_discards"`
	OutDiscards      uint64 `json:"out_discards"`
	InErrors         uint64 `json:"in_errors"`
	OutErrors        uint64 `json:"out_errors"`
	InFcsErrors      uint64 `json:"in_fcs_errors"`
}

// PortKey uniquely addresses a singleton port across the chassis.
type PortKey struct {
	NodeID uint64
	PortID uint32
}

func (k PortKey) String() string {
	return fmt.Sprintf("node %d port %d", k.NodeID, k.PortID)
}
