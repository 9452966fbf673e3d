// Package phal is the physical hardware abstraction boundary: transceiver and
// front panel data that lives outside the forwarding devices.
package phal

import (
	"context"
	"sync"

	"github.com/juju/errors"
)

type MediaType string

const (
	MediaTypeUnknown MediaType = "unknown"
	MediaTypeSFP     MediaType = "sfp"
	MediaTypeQSFP    MediaType = "qsfp"
	MediaTypeQSFP28  MediaType = "qsfp28"
	MediaTypeVirtual MediaType = "virtual"
)

type HardwareState string

const (
	HardwareStateUnknown HardwareState = "unknown"
	HardwareStateEmpty   HardwareState = "empty"
	HardwareStatePresent HardwareState = "present"
	HardwareStateReady   HardwareState = "ready"
)

// FrontPanelPortInfo describes what is plugged into a front panel port.
type FrontPanelPortInfo struct {
	MediaType    MediaType
	HWState      HardwareState
	VendorName   string
	PartNumber   string
	SerialNumber string
}

// Interface is the subset of the PHAL used by the chassis manager.
type Interface interface {
	FrontPanelPortInfo(ctx context.Context, slot, port int32) (*FrontPanelPortInfo, error)
}

type location struct{ slot, port int32 }

// Sim is a PHAL for software switches. Every port reports a virtual medium
// unless overridden with Set.
type Sim struct {
	mu    sync.RWMutex
	ports map[location]FrontPanelPortInfo
}

func NewSim() *Sim {
	return &Sim{ports: make(map[location]FrontPanelPortInfo)}
}

// Set overrides the info reported for (slot, port).
func (s *Sim) Set(slot, port int32, info FrontPanelPortInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports[location{slot, port}] = info
}

func (s *Sim) FrontPanelPortInfo(_ context.Context, slot, port int32) (*FrontPanelPortInfo, error) {
	if slot <= 0 || port <= 0 {
		return nil, errors.NotValidf("slot %d port %d", slot, port)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.ports[location{slot, port}]; ok {
		return &info, nil
	}
	return &FrontPanelPortInfo{
		MediaType:  MediaTypeVirtual,
		HWState:    HardwareStateReady,
		VendorName: "virtual",
	}, nil
}
