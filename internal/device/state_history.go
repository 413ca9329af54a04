package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// StateEntry is one recorded state transition for a device.
type StateEntry struct {
	ID         int64
	DeviceID   string
	State      string
	Volume     float64
	Muted      bool
	Source     string
	RecordedAt time.Time
}

// StateHistory records device state transitions for later inspection.
type StateHistory interface {
	// Record inserts a new state history entry.
	Record(ctx context.Context, entry StateEntry) error

	// Recent returns recent entries for a device, newest first.
	// Limit defaults to 50 and is capped at 200.
	Recent(ctx context.Context, deviceID string, limit int) ([]StateEntry, error)
}

// SQLiteStateHistory implements StateHistory using SQLite.
type SQLiteStateHistory struct {
	db *sql.DB
}

// NewSQLiteStateHistory creates a new SQLite state history store.
func NewSQLiteStateHistory(db *sql.DB) *SQLiteStateHistory {
	return &SQLiteStateHistory{db: db}
}

// Record inserts a new state history entry.
func (h *SQLiteStateHistory) Record(ctx context.Context, entry StateEntry) error {
	if entry.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO state_history (device_id, state, volume, muted, source, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.DeviceID,
		entry.State,
		entry.Volume,
		boolToInt(entry.Muted),
		entry.Source,
		entry.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// Recent returns recent entries for a device, newest first.
func (h *SQLiteStateHistory) Recent(ctx context.Context, deviceID string, limit int) ([]StateEntry, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, device_id, state, volume, muted, source, recorded_at
		FROM state_history
		WHERE device_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateEntry, 0, limit)
	for rows.Next() {
		var entry StateEntry
		var muted int
		var recordedAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.State,
			&entry.Volume, &muted, &entry.Source, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		entry.Muted = muted != 0
		entry.RecordedAt, err = time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}
