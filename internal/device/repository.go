package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// CodePrefix starts every generated device code.
const CodePrefix = "DVC"

// Repository defines the interface for device persistence operations.
type Repository interface {
	// GetByCode retrieves a device by its public code.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByCode(ctx context.Context, code string) (*Device, error)

	// GetByID retrieves a device by its internal identifier.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List returns one page of devices matching filter.
	List(ctx context.Context, filter Filter) (*Page[Device], error)

	// Create assigns the ID, code and URL and inserts the device with its members.
	Create(ctx context.Context, device *Device) error

	// Update replaces the mutable fields and the member set of a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// UpdateStatus sets only the status.
	UpdateStatus(ctx context.Context, code string, status Status) error

	// Delete removes a device by code. Monitorings of the device go with it.
	Delete(ctx context.Context, code string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db        *sql.DB
	publicURL string
}

// NewSQLiteRepository creates a new SQLite-backed repository. publicURL
// prefixes the command URL stored with each new device.
func NewSQLiteRepository(db *sql.DB, publicURL string) *SQLiteRepository {
	return &SQLiteRepository{db: db, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// CommandURL returns the URL a device's commands are sent to.
func (r *SQLiteRepository) CommandURL(code string) string {
	return r.publicURL + "/devices/command/" + code
}

const deviceColumns = `d.id, d.code, d.name, d.description, d.industry_type, d.manufacturer,
	d.url, d.status, d.commands, d.created_by, d.created_at, d.updated_at,
	COALESCE((SELECT GROUP_CONCAT(m.user_id, ',') FROM device_members m WHERE m.device_id = d.id), '')`

// GetByCode retrieves a device by its public code.
func (r *SQLiteRepository) GetByCode(ctx context.Context, code string) (*Device, error) {
	return r.getOne(ctx, "d.code = ?", code)
}

// GetByID retrieves a device by its internal identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return r.getOne(ctx, "d.id = ?", id)
}

func (r *SQLiteRepository) getOne(ctx context.Context, where string, arg any) (*Device, error) {
	query := "SELECT " + deviceColumns + " FROM devices d WHERE " + where //nolint:gosec // fixed predicates

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return device, nil
}

var sortColumns = map[string]string{
	SortByCode:      "d.code",
	SortByName:      "d.name",
	SortByStatus:    "d.status",
	SortByCreatedAt: "d.created_at",
}

// List returns one page of devices matching filter.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*Page[Device], error) {
	where, args := buildFilter(filter)
	pageNo, pageSize := NormalisePaging(filter.PageNo, filter.PageSize)

	var total int64
	countQuery := "SELECT COUNT(*) FROM devices d" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[SortByCode]
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := "SELECT " + deviceColumns + " FROM devices d" + where +
		" ORDER BY " + column + " " + direction + ", d.code ASC LIMIT ? OFFSET ?"

	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, pageNo*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return NewPage(devices, pageNo, pageSize, total), nil
}

func buildFilter(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "d.status = ?")
		args = append(args, string(f.Status))
	}
	if f.IndustryType != "" {
		clauses = append(clauses, "d.industry_type = ?")
		args = append(args, f.IndustryType)
	}
	if f.Name != "" {
		clauses = append(clauses, `d.name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Name))
	}
	if f.Description != "" {
		clauses = append(clauses, `d.description LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Description))
	}
	if f.Code != "" {
		clauses = append(clauses, `d.code LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Code))
	}
	if f.Scope != nil {
		clauses = append(clauses, `(d.created_by = ? OR EXISTS (
			SELECT 1 FROM device_members m WHERE m.device_id = d.id AND m.user_id = ?))`)
		args = append(args, f.Scope.UserID, f.Scope.UserID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Create assigns the ID, code and URL and inserts the device with its members.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	commandsJSON, err := marshalCommands(device.Commands)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	if device.ID == "" {
		device.ID = "dev-" + uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	code, err := nextCode(ctx, tx)
	if err != nil {
		return err
	}
	device.Code = code
	device.URL = r.CommandURL(code)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (
			id, code, name, description, industry_type, manufacturer,
			url, status, commands, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID,
		device.Code,
		device.Name,
		device.Description,
		device.IndustryType,
		device.Manufacturer,
		device.URL,
		string(device.Status),
		commandsJSON,
		device.CreatedBy,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	if err := replaceMembers(ctx, tx, device.ID, device.Members); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device: %w", err)
	}
	return nil
}

// nextCode returns the code after the highest one in use.
func nextCode(ctx context.Context, tx *sql.Tx) (string, error) {
	var last string
	err := tx.QueryRowContext(ctx,
		`SELECT code FROM devices ORDER BY LENGTH(code) DESC, code DESC LIMIT 1`,
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reading last device code: %w", err)
	}

	n := 0
	if last != "" {
		n, err = strconv.Atoi(strings.TrimPrefix(last, CodePrefix))
		if err != nil {
			return "", fmt.Errorf("parsing device code %q: %w", last, err)
		}
	}
	return fmt.Sprintf("%s%05d", CodePrefix, n+1), nil
}

// Update replaces the mutable fields and the member set of a device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	commandsJSON, err := marshalCommands(device.Commands)
	if err != nil {
		return err
	}
	device.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
		UPDATE devices SET
			name = ?, description = ?, industry_type = ?, manufacturer = ?,
			status = ?, commands = ?, updated_at = ?
		WHERE id = ?`,
		device.Name,
		device.Description,
		device.IndustryType,
		device.Manufacturer,
		string(device.Status),
		commandsJSON,
		device.UpdatedAt.Format(time.RFC3339),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	if err := replaceMembers(ctx, tx, device.ID, device.Members); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device: %w", err)
	}
	return nil
}

// UpdateStatus sets only the status.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, code string, status Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, updated_at = ? WHERE code = ?`,
		string(status),
		time.Now().UTC().Format(time.RFC3339),
		code,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireRow(result)
}

// Delete removes a device by code.
func (r *SQLiteRepository) Delete(ctx context.Context, code string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE code = ?", code)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

func replaceMembers(ctx context.Context, tx *sql.Tx, deviceID string, members []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM device_members WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("clearing device members: %w", err)
	}
	for _, userID := range members {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO device_members (device_id, user_id) VALUES (?, ?)",
			deviceID, userID,
		); err != nil {
			return fmt.Errorf("adding device member: %w", err)
		}
	}
	return nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func marshalCommands(commands []CommandDescription) (string, error) {
	if commands == nil {
		commands = []CommandDescription{}
	}
	data, err := json.Marshal(commands)
	if err != nil {
		return "", fmt.Errorf("marshalling commands: %w", err)
	}
	return string(data), nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var status, commandsJSON, members string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Code,
		&d.Name,
		&d.Description,
		&d.IndustryType,
		&d.Manufacturer,
		&d.URL,
		&status,
		&commandsJSON,
		&d.CreatedBy,
		&createdAt,
		&updatedAt,
		&members,
	)
	if err != nil {
		return nil, err
	}

	d.Status = Status(status)
	if err := json.Unmarshal([]byte(commandsJSON), &d.Commands); err != nil {
		return nil, fmt.Errorf("unmarshalling commands: %w", err)
	}
	if d.Commands == nil {
		d.Commands = []CommandDescription{}
	}
	d.Members = orderMembers(d.CreatedBy, members)

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by this package
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by this package
	return &d, nil
}

// orderMembers splits a GROUP_CONCAT list and puts the creator first.
func orderMembers(createdBy, concatenated string) []string {
	members := []string{createdBy}
	if concatenated == "" {
		return members
	}
	for _, id := range strings.Split(concatenated, ",") {
		if id != "" && id != createdBy {
			members = append(members, id)
		}
	}
	return members
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func likePattern(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s) + "%"
}
