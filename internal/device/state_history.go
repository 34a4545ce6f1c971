package device

import (
	"context"
	"time"
)

// State history source values.
const (
	// StateHistorySourceSession marks snapshots caused by translated unit parameters.
	StateHistorySourceSession = "session"
	// StateHistorySourceCommand marks snapshots caused by a capability write.
	StateHistorySourceCommand = "command"
	// StateHistorySourceMQTT is the default for snapshots of unknown origin.
	StateHistorySourceMQTT = "mqtt"
)

// StateHistoryEntry is one recorded capability snapshot.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves capability snapshots.
//
// It provides a local record of what the unit reported even when the
// time-series database is disabled or unreachable.
type StateHistoryRepository interface {
	// RecordStateChange stores a snapshot for deviceID.
	RecordStateChange(ctx context.Context, deviceID string, state State, source string) error

	// GetHistory returns up to limit entries, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns how many went.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
