// SPDX-License-Identifier: MIT

package device

import (
	"fmt"
	"sort"
)

// SelectionStrategy picks the device to capture from when several are
// present.
type SelectionStrategy interface {
	// Select returns the chosen device. It must return ErrUnavailable
	// (wrapped or bare) when the list is empty.
	Select(devices []Device) (Device, error)
	// Name identifies the strategy in logs and status output.
	Name() string
}

type preferKind struct {
	name string
	kind Kind
}

func (s *preferKind) Name() string { return s.name }

func (s *preferKind) Select(devices []Device) (Device, error) {
	if len(devices) == 0 {
		return Device{}, ErrUnavailable
	}
	sorted := append([]Device(nil), devices...)
	sort.SliceStable(sorted, func(i, j int) bool {
		// Preferred kind first, then stable path order.
		if (sorted[i].Kind == s.kind) != (sorted[j].Kind == s.kind) {
			return sorted[i].Kind == s.kind
		}
		return sorted[i].Path < sorted[j].Path
	})
	return sorted[0], nil
}

// PreferExternal selects an external camera when one is attached and
// falls back to any integrated device.
func PreferExternal() SelectionStrategy {
	return &preferKind{name: "prefer-external", kind: KindExternal}
}

// PreferIntegrated selects the built-in camera first.
func PreferIntegrated() SelectionStrategy {
	return &preferKind{name: "prefer-integrated", kind: KindIntegrated}
}

// StrategyFromName maps a configuration value to a strategy.
func StrategyFromName(name string) (SelectionStrategy, error) {
	switch name {
	case "prefer-external", "":
		return PreferExternal(), nil
	case "prefer-integrated":
		return PreferIntegrated(), nil
	default:
		return nil, fmt.Errorf("unknown device strategy %q", name)
	}
}
