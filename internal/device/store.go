package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hwaldner/avrbridge/internal/avr"
)

// Record is a persisted device row: the session configuration plus
// bookkeeping timestamps.
type Record struct {
	avr.DeviceConfig

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for device persistence.
// The abstraction keeps the Registry testable without a database.
type Store interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, rec *Record) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// GenerateID returns a new unique device identifier.
func GenerateID() string {
	return uuid.New().String()
}

// Validate checks a device configuration before persisting it.
func Validate(cfg avr.DeviceConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidDevice)
	}
	if cfg.VolumeStep < 0 || cfg.VolumeStep > 100 {
		return fmt.Errorf("%w: volume step must be between 0 and 100", ErrInvalidDevice)
	}
	return nil
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection with the
// devices table migrated.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const deviceColumns = `id, name, address, always_active, volume_step,
	mac_wired, mac_wireless, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return rec, nil
}

// List retrieves all devices ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// Create inserts a new device.
func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (
			id, name, address, always_active, volume_step,
			mac_wired, mac_wireless, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.Address,
		boolToInt(rec.AlwaysActive),
		rec.VolumeStep,
		rec.MACWired,
		rec.MACWireless,
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device.
func (s *SQLiteStore) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE devices SET
			name = ?, address = ?, always_active = ?, volume_step = ?,
			mac_wired = ?, mac_wireless = ?, updated_at = ?
		WHERE id = ?`,
		rec.Name,
		rec.Address,
		boolToInt(rec.AlwaysActive),
		rec.VolumeStep,
		rec.MACWired,
		rec.MACWireless,
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var alwaysActive int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Address,
		&alwaysActive,
		&rec.VolumeStep,
		&rec.MACWired,
		&rec.MACWireless,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.AlwaysActive = alwaysActive != 0

	var parseErr error
	rec.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	rec.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &rec, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
