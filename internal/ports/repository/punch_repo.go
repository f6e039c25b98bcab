package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"punchclock.service/internal/core/model"
	"punchclock.service/internal/core/punch"
)

//go:embed schema.sql
var schema string

var ErrNotFound = errors.New("not found")

// PunchRepository is the concrete implementation for a PostgreSQL database.
type PunchRepository struct {
	DB *sql.DB
}

// NewPunchRepository create new instance
func NewPunchRepository(db *sql.DB) *PunchRepository {
	return &PunchRepository{DB: db}
}

var _ Repository = (*PunchRepository)(nil)

// Migrate creates missing tables.
func (r *PunchRepository) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

const employeeColumns = `e.id, e.display_name, e.email, e.active, e.wage_type, e.hourly_rate, e.monthly_salary`

func scanEmployee(row interface{ Scan(...any) error }, e *model.Employee) error {
	var hourly, monthly decimal.NullDecimal
	if err := row.Scan(&e.ID, &e.DisplayName, &e.Email, &e.Active, &e.WageType, &hourly, &monthly); err != nil {
		return err
	}
	e.HourlyRate = hourly.Decimal
	e.MonthlySalary = monthly.Decimal
	return nil
}

// FindCredential looks up a card binding by scheme and normalized key.
func (r *PunchRepository) FindCredential(ctx context.Context, scheme model.CredentialScheme, cardKey string) (model.CardCredential, model.Employee, error) {
	query := `SELECT c.id, c.employee_id, c.scheme, c.card_key, c.active, ` + employeeColumns + `
              FROM card_credentials c
              JOIN employees e ON e.id = c.employee_id
              WHERE c.scheme = $1 AND c.card_key = $2`

	var (
		cred            model.CardCredential
		emp             model.Employee
		hourly, monthly decimal.NullDecimal
	)
	err := r.DB.QueryRowContext(ctx, query, scheme, cardKey).Scan(
		&cred.ID, &cred.EmployeeID, &cred.Scheme, &cred.CardKey, &cred.Active,
		&emp.ID, &emp.DisplayName, &emp.Email, &emp.Active, &emp.WageType, &hourly, &monthly,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CardCredential{}, model.Employee{}, model.ErrUnknownCredential
	}
	if err != nil {
		return model.CardCredential{}, model.Employee{}, classify(err)
	}
	emp.HourlyRate = hourly.Decimal
	emp.MonthlySalary = monthly.Decimal
	return cred, emp, nil
}

// GetEmployee fetches one employee.
func (r *PunchRepository) GetEmployee(ctx context.Context, id string) (model.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees e WHERE e.id = $1`

	var emp model.Employee
	err := scanEmployee(r.DB.QueryRowContext(ctx, query, id), &emp)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Employee{}, fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	return emp, classify(err)
}

// ListActiveEmployees returns active employees ordered by id.
func (r *PunchRepository) ListActiveEmployees(ctx context.Context) ([]model.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees e WHERE e.active ORDER BY e.id`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.Employee
	for rows.Next() {
		var emp model.Employee
		if err := scanEmployee(rows, &emp); err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, classify(rows.Err())
}

const punchColumns = `id, employee_id, punch_kind, punched_at, credential, scheme, device_id, device_origin, fingerprint, recorded_at`

func scanPunch(row interface{ Scan(...any) error }, ev *model.PunchEvent) error {
	err := row.Scan(&ev.ID, &ev.EmployeeID, &ev.Kind, &ev.Timestamp, &ev.Credential, &ev.Scheme,
		&ev.Device.DeviceID, &ev.Device.Origin, &ev.Fingerprint, &ev.RecordedAt)
	ev.Timestamp = ev.Timestamp.UTC()
	ev.RecordedAt = ev.RecordedAt.UTC()
	return err
}

// ListPunches returns committed punches in [from, to).
func (r *PunchRepository) ListPunches(ctx context.Context, employeeID string, from, to time.Time) ([]model.PunchEvent, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	query := `SELECT ` + punchColumns + `
              FROM punch_events
              WHERE employee_id = $1 AND punched_at >= $2 AND punched_at < $3
              ORDER BY punched_at, recorded_at`

	rows, err := r.DB.QueryContext(ctx, query, employeeID, from, to)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []model.PunchEvent
	for rows.Next() {
		var ev model.PunchEvent
		if err := scanPunch(rows, &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, classify(rows.Err())
}

// WithEmployee runs fn in a transaction holding the employee's advisory
// lock, so every API replica serializes punches for the same employee.
func (r *PunchRepository) WithEmployee(ctx context.Context, employeeID string, fn func(tx punch.Tx) error) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("app.employeeId", employeeID))

	sqlTx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, employeeID); err != nil {
		return classify(err)
	}
	if err := fn(&punchTx{tx: sqlTx, employeeID: employeeID}); err != nil {
		return err
	}
	return classify(sqlTx.Commit())
}

type punchTx struct {
	tx         *sql.Tx
	employeeID string
}

func (t *punchTx) LastPunch(ctx context.Context) (*model.PunchEvent, error) {
	query := `SELECT ` + punchColumns + `
              FROM punch_events
              WHERE employee_id = $1
              ORDER BY punched_at DESC, recorded_at DESC
              LIMIT 1`

	var ev model.PunchEvent
	err := scanPunch(t.tx.QueryRowContext(ctx, query, t.employeeID), &ev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &ev, nil
}

func (t *punchTx) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM punch_events WHERE fingerprint = $1)`, fingerprint).Scan(&exists)
	return exists, classify(err)
}

func (t *punchTx) InsertPunch(ctx context.Context, ev model.PunchEvent) error {
	query := `INSERT INTO punch_events (` + punchColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := t.tx.ExecContext(ctx, query,
		ev.ID, ev.EmployeeID, ev.Kind, ev.Timestamp, ev.Credential, ev.Scheme,
		ev.Device.DeviceID, ev.Device.Origin, ev.Fingerprint, ev.RecordedAt)
	return classify(err)
}

// GetExport returns the export record, or a zero record with an empty
// status when none exists.
func (r *PunchRepository) GetExport(ctx context.Context, employeeID, period string) (model.PayrollExport, error) {
	query := `SELECT employee_id, period, status, retry_count, updated_at
              FROM payroll_exports WHERE employee_id = $1 AND period = $2`

	ex := model.PayrollExport{EmployeeID: employeeID, Period: period}
	err := r.DB.QueryRowContext(ctx, query, employeeID, period).Scan(&ex.EmployeeID, &ex.Period, &ex.Status, &ex.RetryCount, &ex.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ex, nil
	}
	return ex, classify(err)
}

// SaveExport upserts the status, retry count and exported result.
func (r *PunchRepository) SaveExport(ctx context.Context, ex model.PayrollExport) error {
	query := `INSERT INTO payroll_exports (employee_id, period, status, retry_count, result, updated_at)
              VALUES ($1, $2, $3, $4, $5, now())
              ON CONFLICT (employee_id, period) DO UPDATE
              SET status = EXCLUDED.status,
                  retry_count = EXCLUDED.retry_count,
                  result = COALESCE(EXCLUDED.result, payroll_exports.result),
                  updated_at = now()`

	var result any
	if len(ex.Result) > 0 {
		result = string(ex.Result)
	}
	_, err := r.DB.ExecContext(ctx, query, ex.EmployeeID, ex.Period, ex.Status, ex.RetryCount, result)
	return classify(err)
}

// GetNotification returns the notification record, or a zero record with
// an empty status when none exists.
func (r *PunchRepository) GetNotification(ctx context.Context, eventID string) (model.Notification, error) {
	query := `SELECT event_id, employee_id, status, retry_count, updated_at FROM notifications WHERE event_id = $1`

	n := model.Notification{EventID: eventID}
	err := r.DB.QueryRowContext(ctx, query, eventID).Scan(&n.EventID, &n.EmployeeID, &n.Status, &n.RetryCount, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return n, nil
	}
	return n, classify(err)
}

// SaveNotification upserts the email status for a closing punch.
func (r *PunchRepository) SaveNotification(ctx context.Context, n model.Notification) error {
	query := `INSERT INTO notifications (event_id, employee_id, status, retry_count, updated_at)
              VALUES ($1, $2, $3, $4, now())
              ON CONFLICT (event_id) DO UPDATE
              SET status = EXCLUDED.status, retry_count = EXCLUDED.retry_count, updated_at = now()`

	_, err := r.DB.ExecContext(ctx, query, n.EventID, n.EmployeeID, n.Status, n.RetryCount)
	return classify(err)
}
