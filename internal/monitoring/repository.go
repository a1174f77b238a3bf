package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
)

// CodePrefix starts every generated monitoring code.
const CodePrefix = "MT"

// Repository defines the interface for monitoring persistence.
type Repository interface {
	// GetByCode returns ErrMonitoringNotFound for unknown codes.
	GetByCode(ctx context.Context, code string) (*Monitoring, error)

	List(ctx context.Context, filter Filter) (*device.Page[Monitoring], error)

	// CreateBatch inserts all records in one transaction, assigning
	// sequential codes.
	CreateBatch(ctx context.Context, records []*Monitoring) error

	// Update stores description, status and device of a record.
	Update(ctx context.Context, m *Monitoring) error

	Delete(ctx context.Context, code string) error

	// DeleteMany removes every code or none of them.
	DeleteMany(ctx context.Context, codes []string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const monitoringColumns = `m.id, m.code, m.description, m.device_id, d.code, d.name,
	m.status, m.created_by, m.created_at, m.updated_at,
	COALESCE((SELECT GROUP_CONCAT(mm.user_id, ',') FROM monitoring_members mm WHERE mm.monitoring_id = m.id), '')`

const monitoringFrom = ` FROM monitorings m JOIN devices d ON d.id = m.device_id`

// GetByCode retrieves a record by code.
func (r *SQLiteRepository) GetByCode(ctx context.Context, code string) (*Monitoring, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+monitoringColumns+monitoringFrom+" WHERE m.code = ?", code)
	m, err := scanMonitoring(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMonitoringNotFound
		}
		return nil, fmt.Errorf("querying monitoring: %w", err)
	}
	return m, nil
}

var sortColumns = map[string]string{
	SortByCode:      "m.code",
	SortByStatus:    "m.status",
	SortByDevice:    "d.code",
	SortByCreatedAt: "m.created_at",
	SortByUpdatedAt: "m.updated_at",
}

// List returns one page of records matching filter.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*device.Page[Monitoring], error) {
	where, args := buildFilter(filter)
	pageNo, pageSize := device.NormalisePaging(filter.PageNo, filter.PageSize)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+monitoringFrom+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting monitorings: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[SortByCode]
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := "SELECT " + monitoringColumns + monitoringFrom + where +
		" ORDER BY " + column + " " + direction + ", m.code ASC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, pageNo*pageSize)...)
	if err != nil {
		return nil, fmt.Errorf("querying monitorings: %w", err)
	}
	defer rows.Close()

	var records []Monitoring
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning monitoring: %w", err)
		}
		records = append(records, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating monitorings: %w", err)
	}

	return device.NewPage(records, pageNo, pageSize, total), nil
}

func buildFilter(f Filter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "m.status = ?")
		args = append(args, string(f.Status))
	}
	if f.DeviceCode != "" {
		clauses = append(clauses, "d.code = ?")
		args = append(args, f.DeviceCode)
	}
	if f.Code != "" {
		clauses = append(clauses, `m.code LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Code))
	}
	if f.DeviceName != "" {
		clauses = append(clauses, `d.name LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.DeviceName))
	}
	if !f.CreatedFrom.IsZero() {
		clauses = append(clauses, "m.created_at >= ?")
		args = append(args, f.CreatedFrom.UTC().Format(time.RFC3339))
	}
	if !f.CreatedTo.IsZero() {
		clauses = append(clauses, "m.created_at <= ?")
		args = append(args, f.CreatedTo.UTC().Format(time.RFC3339))
	}
	if f.Scope != nil {
		clauses = append(clauses, `(m.created_by = ? OR EXISTS (
			SELECT 1 FROM monitoring_members mm WHERE mm.monitoring_id = m.id AND mm.user_id = ?))`)
		args = append(args, f.Scope.UserID, f.Scope.UserID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// CreateBatch inserts all records in one transaction.
func (r *SQLiteRepository) CreateBatch(ctx context.Context, records []*Monitoring) error {
	if len(records) == 0 {
		return ErrEmptyBatch
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	next, err := lastCodeNumber(ctx, tx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, m := range records {
		next++
		m.Code = fmt.Sprintf("%s%04d", CodePrefix, next)
		if m.ID == "" {
			m.ID = "mon-" + uuid.NewString()
		}
		m.CreatedAt = now
		m.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO monitorings (id, code, description, device_id, status, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Code, m.Description, m.DeviceID, string(m.Status), m.CreatedBy,
			m.CreatedAt.Format(time.RFC3339), m.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting monitoring: %w", err)
		}
		if err := replaceMembers(ctx, tx, m.ID, m.Members); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing monitorings: %w", err)
	}
	return nil
}

func lastCodeNumber(ctx context.Context, tx *sql.Tx) (int, error) {
	var last string
	err := tx.QueryRowContext(ctx,
		`SELECT code FROM monitorings ORDER BY LENGTH(code) DESC, code DESC LIMIT 1`,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading last monitoring code: %w", err)
	}

	n, err := strconv.Atoi(strings.TrimPrefix(last, CodePrefix))
	if err != nil {
		return 0, fmt.Errorf("parsing monitoring code %q: %w", last, err)
	}
	return n, nil
}

// Update stores description, status and device of a record.
func (r *SQLiteRepository) Update(ctx context.Context, m *Monitoring) error {
	m.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE monitorings SET description = ?, status = ?, device_id = ?, updated_at = ?
		WHERE code = ?`,
		m.Description, string(m.Status), m.DeviceID, m.UpdatedAt.Format(time.RFC3339), m.Code,
	)
	if err != nil {
		return fmt.Errorf("updating monitoring: %w", err)
	}
	return requireRows(result, 1)
}

// Delete removes a record by code.
func (r *SQLiteRepository) Delete(ctx context.Context, code string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM monitorings WHERE code = ?", code)
	if err != nil {
		return fmt.Errorf("deleting monitoring: %w", err)
	}
	return requireRows(result, 1)
}

// DeleteMany removes every code or none of them.
func (r *SQLiteRepository) DeleteMany(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return ErrEmptyBatch
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, code := range codes {
		result, err := tx.ExecContext(ctx, "DELETE FROM monitorings WHERE code = ?", code)
		if err != nil {
			return fmt.Errorf("deleting monitoring %s: %w", code, err)
		}
		if err := requireRows(result, 1); err != nil {
			return fmt.Errorf("%w: %s", err, code)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

func replaceMembers(ctx context.Context, tx *sql.Tx, monitoringID string, members []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM monitoring_members WHERE monitoring_id = ?", monitoringID); err != nil {
		return fmt.Errorf("clearing monitoring members: %w", err)
	}
	for _, userID := range members {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO monitoring_members (monitoring_id, user_id) VALUES (?, ?)",
			monitoringID, userID,
		); err != nil {
			return fmt.Errorf("adding monitoring member: %w", err)
		}
	}
	return nil
}

func requireRows(result sql.Result, want int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n < want {
		return ErrMonitoringNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitoring(scanner rowScanner) (*Monitoring, error) {
	var m Monitoring
	var status, members, createdAt, updatedAt string

	err := scanner.Scan(
		&m.ID,
		&m.Code,
		&m.Description,
		&m.DeviceID,
		&m.DeviceCode,
		&m.DeviceName,
		&status,
		&m.CreatedBy,
		&createdAt,
		&updatedAt,
		&members,
	)
	if err != nil {
		return nil, err
	}

	m.Status = device.Status(status)
	m.Members = []string{m.CreatedBy}
	for _, id := range strings.Split(members, ",") {
		if id != "" && id != m.CreatedBy {
			m.Members = append(m.Members, id)
		}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by this package
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by this package
	return &m, nil
}

func likePattern(s string) string {
	return "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s) + "%"
}
