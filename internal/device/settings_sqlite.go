package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteSettingsRepository implements SettingsRepository using SQLite.
//
// Each setting is one row in device_settings keyed by (device_id, key).
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository creates a new SQLite-backed settings repository.
func NewSQLiteSettingsRepository(db *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

// Get returns the stored settings for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//
// Returns:
//   - *Settings: The stored hostname and name
//   - error: ErrSettingsNotFound if nothing is stored, otherwise a query error
func (r *SQLiteSettingsRepository) Get(ctx context.Context, deviceID string) (*Settings, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM device_settings WHERE device_id = ?",
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	s := &Settings{DeviceID: deviceID}
	found := false
	for rows.Next() {
		var key, value, updatedAt string
		if err := rows.Scan(&key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning settings: %w", err)
		}
		found = true

		switch key {
		case SettingHostname:
			s.Hostname = value
		case SettingName:
			s.Name = value
		}

		ts, err := parseHistoryTimestamp(updatedAt)
		if err != nil {
			return nil, err
		}
		if ts.After(s.UpdatedAt) {
			s.UpdatedAt = ts
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	if !found {
		return nil, ErrSettingsNotFound
	}
	return s, nil
}

// Save upserts every settings key in a single transaction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - s: Settings to store; DeviceID selects the rows
//
// Returns:
//   - error: nil on success; on failure no key is changed
func (r *SQLiteSettingsRepository) Save(ctx context.Context, s *Settings) error {
	if err := ValidateSettings(s); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	values := map[string]string{
		SettingHostname: s.Hostname,
		SettingName:     s.Name,
	}
	for key, value := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO device_settings (device_id, key, value, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (device_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			s.DeviceID, key, value, now,
		)
		if err != nil {
			return fmt.Errorf("saving setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

// Delete removes all settings rows for a device.
func (r *SQLiteSettingsRepository) Delete(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrDeviceIDRequired
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM device_settings WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	return nil
}
