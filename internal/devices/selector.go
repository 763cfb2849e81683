package devices

import (
	"context"
	"fmt"
	"strings"
)

// StaticSelector serves a fixed device list, optionally narrowed to explicitly
// requested device IDs. It implements the Selector contract for discovery
// backends that enumerate devices up front.
type StaticSelector struct {
	devices      []TargetDevice
	requestedIDs []string
	requestedAll bool
}

func NewStaticSelector(devices []TargetDevice, requestedIDs []string, requestedAll bool) *StaticSelector {
	return &StaticSelector{
		devices:      devices,
		requestedIDs: requestedIDs,
		requestedAll: requestedAll,
	}
}

func (s *StaticSelector) ResolveTargetDevices(_ context.Context) ([]TargetDevice, error) {
	if s.requestedAll || len(s.requestedIDs) == 0 {
		return s.devices, nil
	}

	var resolved []TargetDevice
	for _, id := range s.requestedIDs {
		dev, found := s.findDevice(id)
		if !found {
			return nil, fmt.Errorf("no attached device matches '%s'", id)
		}
		resolved = append(resolved, dev)
	}
	return resolved, nil
}

func (s *StaticSelector) HasRequestedAllDevices() bool {
	return s.requestedAll
}

// Device IDs may be abbreviated; a unique prefix is enough.
func (s *StaticSelector) findDevice(id string) (TargetDevice, bool) {
	var match TargetDevice
	matches := 0
	for _, dev := range s.devices {
		if dev.ID() == id {
			return dev, true
		}
		if strings.HasPrefix(dev.ID(), id) {
			match = dev
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	return nil, false
}

var _ Selector = (*StaticSelector)(nil)
