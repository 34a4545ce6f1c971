package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecordStateChange(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	state := State{"fan_mode": "manual", "measure_humidity": 48, "onoff.boost": false}
	if err := repo.RecordStateChange(ctx, "unit-1", state, StateHistorySourceSession); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, "unit-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.Source != StateHistorySourceSession {
		t.Errorf("Source = %q, want %q", entry.Source, StateHistorySourceSession)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
	if mode, _ := entry.State["fan_mode"].(string); mode != "manual" {
		t.Errorf("State[fan_mode] = %v, want manual", entry.State["fan_mode"])
	}
	// JSON numbers come back as float64.
	if rh, _ := entry.State["measure_humidity"].(float64); rh != 48 {
		t.Errorf("State[measure_humidity] = %v, want 48", entry.State["measure_humidity"])
	}
}

func TestRecordStateChange_Defaults(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, "", State{}, ""); !errors.Is(err, ErrDeviceIDRequired) {
		t.Errorf("RecordStateChange(empty id) error = %v, want ErrDeviceIDRequired", err)
	}

	if err := repo.RecordStateChange(ctx, "unit-1", nil, ""); err != nil {
		t.Fatalf("RecordStateChange(nil state) error = %v", err)
	}
	entries, err := repo.GetHistory(ctx, "unit-1", 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Source != StateHistorySourceMQTT {
		t.Errorf("entries = %+v, want one entry with default source", entries)
	}
}

func TestGetHistory(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertStateHistoryRow(t, db, "unit-1", `{"onoff.boost":false}`, StateHistorySourceCommand, now.Add(-2*time.Hour))
	insertStateHistoryRow(t, db, "unit-1", `{"onoff.boost":true}`, StateHistorySourceSession, now.Add(-1*time.Hour))
	insertStateHistoryRow(t, db, "unit-1", `{"onoff.boost":true}`, StateHistorySourceCommand, now)
	insertStateHistoryRow(t, db, "unit-2", `{"onoff.boost":true}`, StateHistorySourceSession, now)

	entries, err := repo.GetHistory(ctx, "unit-1", 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
	if !entries[0].CreatedAt.Equal(now) {
		t.Errorf("entry[0] CreatedAt = %s, want %s", entries[0].CreatedAt, now)
	}
	if !entries[1].CreatedAt.Equal(now.Add(-1 * time.Hour)) {
		t.Errorf("entry[1] CreatedAt = %s, want %s", entries[1].CreatedAt, now.Add(-1*time.Hour))
	}
	for _, e := range entries {
		if e.DeviceID != "unit-1" {
			t.Errorf("entry for %q leaked into unit-1 history", e.DeviceID)
		}
	}
}

func TestPruneHistory(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertStateHistoryRow(t, db, "unit-1", `{"onoff.bypass":true}`, StateHistorySourceSession, now.Add(-40*24*time.Hour))
	insertStateHistoryRow(t, db, "unit-1", `{"onoff.bypass":false}`, StateHistorySourceSession, now.Add(-12*time.Hour))

	deleted, err := repo.PruneHistory(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	entries, err := repo.GetHistory(ctx, "unit-1", 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries length = %d, want 1", len(entries))
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) expected error")
	}
}
