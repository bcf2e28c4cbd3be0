package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteRegistry implements Registry using SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry creates a registry backed by the given database and
// ensures the schema exists.
func NewSQLiteRegistry(db *sql.DB) (*SQLiteRegistry, error) {
	r := &SQLiteRegistry{db: db}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("registry: migrate schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRegistry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		ref TEXT PRIMARY KEY,
		serial TEXT NOT NULL UNIQUE,
		remote_id INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		type_name TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '',
		attention TEXT NOT NULL DEFAULT '',
		commands TEXT NOT NULL DEFAULT '[]',
		status_values TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_devices_serial ON devices(serial);
	`
	_, err := r.db.Exec(schema)
	return err
}

// FindBySerial retrieves the ref for a device by hardware serial.
func (r *SQLiteRegistry) FindBySerial(ctx context.Context, serial string) (string, error) {
	if serial == "" {
		return "", ErrInvalidSerial
	}

	var ref string
	err := r.db.QueryRowContext(ctx,
		"SELECT ref FROM devices WHERE serial = ?", serial).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry: find by serial: %w", err)
	}
	return ref, nil
}

// CreateDevice registers a new device and returns its generated ref.
func (r *SQLiteRegistry) CreateDevice(ctx context.Context, serial string, meta DeviceMetadata) (string, error) {
	if serial == "" {
		return "", ErrInvalidSerial
	}

	// Check for duplicates first so callers get ErrExists rather than a
	// driver-specific constraint error.
	if _, err := r.FindBySerial(ctx, serial); err == nil {
		return "", ErrExists
	} else if err != ErrNotFound {
		return "", err
	}

	commandsJSON, err := json.Marshal(meta.Commands)
	if err != nil {
		return "", fmt.Errorf("registry: marshal commands: %w", err)
	}
	statusJSON, err := json.Marshal(meta.StatusValues)
	if err != nil {
		return "", fmt.Errorf("registry: marshal status values: %w", err)
	}

	ref := uuid.New().String()
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (ref, serial, remote_id, name, type_name, value,
			attention, commands, status_values, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '', '', ?, ?, ?, ?)`,
		ref, serial, meta.RemoteID, meta.Name, meta.TypeName,
		string(commandsJSON), string(statusJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("registry: create device: %w", err)
	}
	return ref, nil
}

// Get retrieves a device by ref.
func (r *SQLiteRegistry) Get(ctx context.Context, ref string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT ref, serial, remote_id, name, type_name, value, attention,
			commands, status_values, created_at, updated_at
		FROM devices WHERE ref = ?`, ref)
	return scanDevice(row)
}

// List retrieves all registered devices ordered by serial.
func (r *SQLiteRegistry) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ref, serial, remote_id, name, type_name, value, attention,
			commands, status_values, created_at, updated_at
		FROM devices ORDER BY serial`)
	if err != nil {
		return nil, fmt.Errorf("registry: list devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *dev)
	}
	return devices, rows.Err()
}

// GetValue returns the current status value for a device.
func (r *SQLiteRegistry) GetValue(ctx context.Context, ref string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM devices WHERE ref = ?", ref).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry: get value: %w", err)
	}
	return value, nil
}

// SetValue updates the status value for a device.
func (r *SQLiteRegistry) SetValue(ctx context.Context, ref string, value string) error {
	return r.update(ctx, ref,
		"UPDATE devices SET value = ?, updated_at = ? WHERE ref = ?",
		value, time.Now().UTC(), ref)
}

// SetRemoteID records the vendor's current numeric id for a device.
func (r *SQLiteRegistry) SetRemoteID(ctx context.Context, ref string, remoteID int64) error {
	return r.update(ctx, ref,
		"UPDATE devices SET remote_id = ?, updated_at = ? WHERE ref = ?",
		remoteID, time.Now().UTC(), ref)
}

// SetAttention flags a device as needing attention.
func (r *SQLiteRegistry) SetAttention(ctx context.Context, ref string, message string) error {
	return r.update(ctx, ref,
		"UPDATE devices SET attention = ?, updated_at = ? WHERE ref = ?",
		message, time.Now().UTC(), ref)
}

// ClearAttention removes the attention flag from a device.
func (r *SQLiteRegistry) ClearAttention(ctx context.Context, ref string) error {
	return r.update(ctx, ref,
		"UPDATE devices SET attention = '', updated_at = ? WHERE ref = ?",
		time.Now().UTC(), ref)
}

// update runs an UPDATE and maps "no rows affected" to ErrNotFound.
func (r *SQLiteRegistry) update(ctx context.Context, ref, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("registry: update device %s: %w", ref, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: update device %s: %w", ref, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row scanner) (*Device, error) {
	var dev Device
	var commandsJSON, statusJSON string

	err := row.Scan(&dev.Ref, &dev.Serial, &dev.RemoteID, &dev.Name,
		&dev.TypeName, &dev.Value, &dev.Attention,
		&commandsJSON, &statusJSON, &dev.CreatedAt, &dev.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: scan device: %w", err)
	}

	if err := json.Unmarshal([]byte(commandsJSON), &dev.Commands); err != nil {
		return nil, fmt.Errorf("registry: unmarshal commands: %w", err)
	}
	if err := json.Unmarshal([]byte(statusJSON), &dev.StatusValues); err != nil {
		return nil, fmt.Errorf("registry: unmarshal status values: %w", err)
	}
	return &dev, nil
}
