package device

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Store holds the platform-side view of a single device: availability,
// which capabilities are present and their last known values.
//
// Capabilities keep their values while the device is unavailable. Removing
// a capability discards its value; re-adding it starts without one.
//
// Listeners are invoked synchronously after each mutation, outside the lock,
// in registration order. They must not block.
//
// All public methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	deviceID  string
	name      string
	available bool
	reason    string
	order     []string
	values    map[string]any
	present   map[string]bool
	updatedAt time.Time

	listenersMu sync.RWMutex
	listeners   []func(Change)

	logger Logger
}

// NewStore creates a store for deviceID with the given capabilities present.
// The device starts unavailable.
func NewStore(deviceID, name string, capabilities []string) *Store {
	s := &Store{
		deviceID:  deviceID,
		name:      name,
		reason:    "not initialised",
		values:    make(map[string]any),
		present:   make(map[string]bool, len(capabilities)),
		updatedAt: time.Now().UTC(),
		logger:    noopLogger{},
	}
	for _, id := range capabilities {
		if id == "" || s.present[id] {
			continue
		}
		s.present[id] = true
		s.order = append(s.order, id)
	}
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// OnChange registers a listener for every subsequent mutation.
func (s *Store) OnChange(fn func(Change)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// DeviceID returns the identifier of the device this store describes.
func (s *Store) DeviceID() string {
	return s.deviceID
}

// SetName updates the display name.
func (s *Store) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// SetAvailable marks the device reachable.
func (s *Store) SetAvailable() error {
	s.mu.Lock()
	if s.available {
		s.mu.Unlock()
		return nil
	}
	s.available = true
	s.reason = ""
	change := s.changeLocked(ChangeAvailability, "", true)
	s.mu.Unlock()

	s.logger.Info("device available", "device_id", s.deviceID)
	s.notify(change)
	return nil
}

// SetUnavailable marks the device unreachable with a human-readable reason.
func (s *Store) SetUnavailable(reason string) error {
	s.mu.Lock()
	if !s.available && s.reason == reason {
		s.mu.Unlock()
		return nil
	}
	s.available = false
	s.reason = reason
	change := s.changeLocked(ChangeAvailability, "", false)
	s.mu.Unlock()

	s.logger.Info("device unavailable", "device_id", s.deviceID, "reason", reason)
	s.notify(change)
	return nil
}

// SetCapabilityValue records a value for a present capability.
// Returns ErrCapabilityNotFound if the capability is absent.
func (s *Store) SetCapabilityValue(id string, value any) error {
	if id == "" {
		return ErrInvalidCapability
	}

	s.mu.Lock()
	if !s.present[id] {
		s.mu.Unlock()
		return fmt.Errorf("setting %q: %w", id, ErrCapabilityNotFound)
	}
	s.values[id] = value
	change := s.changeLocked(ChangeValue, id, value)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// AddCapability makes a capability present. Adding a present capability is a no-op.
func (s *Store) AddCapability(id string) error {
	if id == "" {
		return ErrInvalidCapability
	}

	s.mu.Lock()
	if s.present[id] {
		s.mu.Unlock()
		return nil
	}
	s.present[id] = true
	s.order = append(s.order, id)
	change := s.changeLocked(ChangeCapabilityAdded, id, nil)
	s.mu.Unlock()

	s.logger.Debug("capability added", "device_id", s.deviceID, "capability", id)
	s.notify(change)
	return nil
}

// RemoveCapability makes a capability absent and discards its value.
// Removing an absent capability is a no-op.
func (s *Store) RemoveCapability(id string) error {
	if id == "" {
		return ErrInvalidCapability
	}

	s.mu.Lock()
	if !s.present[id] {
		s.mu.Unlock()
		return nil
	}
	delete(s.present, id)
	delete(s.values, id)
	s.order = slices.DeleteFunc(s.order, func(c string) bool { return c == id })
	change := s.changeLocked(ChangeCapabilityRemoved, id, nil)
	s.mu.Unlock()

	s.logger.Debug("capability removed", "device_id", s.deviceID, "capability", id)
	s.notify(change)
	return nil
}

// HasCapability reports whether a capability is present.
func (s *Store) HasCapability(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present[id]
}

// CapabilityValue returns the last value of a capability.
// ok is false when the capability is absent or has no value yet.
func (s *Store) CapabilityValue(id string) (value any, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present[id] {
		return nil, false
	}
	value, ok = s.values[id]
	return value, ok
}

// IsAvailable reports the current availability.
func (s *Store) IsAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.available
}

// Snapshot returns a copy of the current device view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	state := make(State, len(s.values))
	for id, v := range s.values {
		state[id] = v
	}
	return Snapshot{
		DeviceID:     s.deviceID,
		Name:         s.name,
		Available:    s.available,
		Reason:       s.reason,
		Capabilities: slices.Clone(s.order),
		State:        state,
		UpdatedAt:    s.updatedAt,
	}
}

// changeLocked stamps the update time and builds the change event.
// Caller must hold s.mu.
func (s *Store) changeLocked(kind ChangeKind, id string, value any) Change {
	s.updatedAt = time.Now().UTC()
	return Change{
		Kind:       kind,
		Capability: id,
		Value:      value,
		Snapshot:   s.snapshotLocked(),
	}
}

func (s *Store) notify(change Change) {
	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}
