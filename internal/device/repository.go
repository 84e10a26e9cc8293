package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Get retrieves a device by scope and ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, key Key) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByScope retrieves all devices in a scope.
	ListByScope(ctx context.Context, scopeID string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same key already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies the descriptive fields of an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// UpdateConnection replaces the connection record of a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateConnection(ctx context.Context, key Key, conn Connection) error

	// Delete removes a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, key Key) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with migrations applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `
		SELECT scope_id, id, display_name, dialect, model, firmware_version,
			connection_id, connection_status, client_ip, connection_protocol, last_event_on,
			created_at, updated_at
		FROM devices`

// Get retrieves a device by scope and ID.
func (r *SQLiteRepository) Get(ctx context.Context, key Key) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectDevice+` WHERE scope_id = ? AND id = ?`, key.ScopeID, key.ID)
	device, err := scanDeviceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device %s: %w", key, err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDevice+` ORDER BY scope_id, id`)
}

// ListByScope retrieves all devices in a scope.
func (r *SQLiteRepository) ListByScope(ctx context.Context, scopeID string) ([]Device, error) {
	return r.queryDevices(ctx, selectDevice+` WHERE scope_id = ? ORDER BY id`, scopeID)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	conn := connectionColumns(device.Connection)

	query := `
		INSERT INTO devices (
			scope_id, id, display_name, dialect, model, firmware_version,
			connection_id, connection_status, client_ip, connection_protocol, last_event_on,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.ScopeID,
		device.ID,
		device.DisplayName,
		nullableString(device.Dialect),
		nullableString(device.Model),
		nullableString(device.FirmwareVersion),
		conn.id, conn.status, conn.clientIP, conn.protocol, conn.lastEventOn,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies the descriptive fields of an existing device. The
// connection record is left untouched; use UpdateConnection for that.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			display_name = ?, dialect = ?, model = ?, firmware_version = ?, updated_at = ?
		WHERE scope_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.DisplayName,
		nullableString(device.Dialect),
		nullableString(device.Model),
		nullableString(device.FirmwareVersion),
		device.UpdatedAt.Format(time.RFC3339),
		device.ScopeID,
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireOneRow(result)
}

// UpdateConnection replaces the connection record of a device.
func (r *SQLiteRepository) UpdateConnection(ctx context.Context, key Key, c Connection) error {
	conn := connectionColumns(&c)

	query := `
		UPDATE devices SET
			connection_id = ?, connection_status = ?, client_ip = ?,
			connection_protocol = ?, last_event_on = ?, updated_at = ?
		WHERE scope_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, query,
		conn.id, conn.status, conn.clientIP, conn.protocol, conn.lastEventOn,
		time.Now().UTC().Format(time.RFC3339),
		key.ScopeID,
		key.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device connection: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes a device.
func (r *SQLiteRepository) Delete(ctx context.Context, key Key) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM devices WHERE scope_id = ? AND id = ?", key.ScopeID, key.ID)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireOneRow(result)
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

func requireOneRow(result sql.Result) error {
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

// scanDeviceRow scans a row or rows result into a Device.
func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var d Device
	var dialect, model, firmwareVersion sql.NullString
	var connID, connStatus, clientIP, connProtocol, lastEventOn sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ScopeID,
		&d.ID,
		&d.DisplayName,
		&dialect,
		&model,
		&firmwareVersion,
		&connID,
		&connStatus,
		&clientIP,
		&connProtocol,
		&lastEventOn,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Dialect = dialect.String
	d.Model = model.String
	d.FirmwareVersion = firmwareVersion.String

	// A NULL status means the device has never connected.
	if connStatus.Valid {
		d.Connection = &Connection{
			ID:       connID.String,
			Status:   ConnectionStatus(connStatus.String),
			ClientIP: clientIP.String,
			Protocol: connProtocol.String,
		}
		if lastEventOn.Valid {
			t, err := time.Parse(time.RFC3339Nano, lastEventOn.String)
			if err == nil {
				d.Connection.LastEventOn = t
			}
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

type connectionRow struct {
	id, status, clientIP, protocol, lastEventOn sql.NullString
}

func connectionColumns(c *Connection) connectionRow {
	if c == nil {
		return connectionRow{}
	}
	row := connectionRow{
		id:       nullableString(c.ID),
		status:   nullableString(string(c.Status)),
		clientIP: nullableString(c.ClientIP),
		protocol: nullableString(c.Protocol),
	}
	if !c.LastEventOn.IsZero() {
		row.lastEventOn = nullableString(c.LastEventOn.UTC().Format(time.RFC3339Nano))
	}
	return row
}

// nullableString maps empty strings to NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueConstraintError checks if an error is a SQLite primary key or
// unique constraint violation.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
