// SPDX-License-Identifier: MIT

// Package events carries the internal pub/sub used to decouple input
// monitors (permission, pressure, motion, hotplug) from the session
// controller, and the controller from its downstream consumers
// (journal, mirror, webhooks).
package events

import (
	"context"
	"time"
)

// Message is an opaque event payload. Consumers type-switch on the
// concrete payload structs below.
type Message interface{}

// Subscriber is a single subscription on one topic.
type Subscriber interface {
	// C returns a read-only message channel.
	C() <-chan Message
	// Close unsubscribes and closes the channel.
	Close() error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Topics. One payload type per topic, except motion which carries
// activity edges and idle timeouts.
const (
	TopicPermission  = "permission"
	TopicPressure    = "pressure"
	TopicVisibility  = "visibility"
	TopicOrientation = "orientation"
	TopicMotion      = "motion"
	TopicDevice      = "device"
	TopicState       = "state"
	TopicPhoto       = "photo"
)

// PermissionChange is published on TopicPermission when the observed
// device access state changes. Edges only, never steady-state repeats.
type PermissionChange struct {
	From string
	To   string
}

// PressureChange is published on TopicPressure when the memory
// pressure level crosses into a new band.
type PressureChange struct {
	Level string
}

// VisibilityChange is published on TopicVisibility when a client
// acquires or releases the capture pipeline, or a lifecycle signal
// arrives.
type VisibilityChange struct {
	Foreground bool
	Source     string
}

// OrientationChange is published on TopicOrientation when the derived
// device orientation settles on a new value.
type OrientationChange struct {
	Orientation string
}

// MotionActivity is published on TopicMotion when motion returns after
// an idle episode. Steady motion publishes nothing.
type MotionActivity struct {
	At time.Time
}

// IdleTimeout is published on TopicMotion when no motion has been seen
// for the configured idle window. One event per idle episode.
type IdleTimeout struct {
	IdleFor time.Duration
}

// DeviceChange operations.
const (
	DeviceAdded   = "add"
	DeviceRemoved = "remove"
)

// DeviceChange is published on TopicDevice when a capture device
// appears or disappears.
type DeviceChange struct {
	Op   string
	Path string
}

// StateChange is published on TopicState after every lifecycle
// transition the controller commits.
type StateChange struct {
	From      string
	To        string
	Reason    string
	SessionID string
}

// PhotoSaved is published on TopicPhoto after a still capture has been
// written to disk.
type PhotoSaved struct {
	Name      string
	Bytes     int64
	SessionID string
}
