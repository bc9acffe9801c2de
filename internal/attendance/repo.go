package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Record is one (employee, day) attendance row. CheckOut stays nil until the
// second scan of the day.
type Record struct {
	EmployeeID string     `json:"employee_id"`
	Day        string     `json:"day"`
	CheckIn    time.Time  `json:"check_in"`
	CheckOut   *time.Time `json:"check_out,omitempty"`
}

// ReportRow is a record joined with the employee profile for reporting.
type ReportRow struct {
	EmployeeID string     `json:"employee_id"`
	FullName   string     `json:"full_name"`
	Program    string     `json:"program"`
	Day        string     `json:"day"`
	CheckIn    time.Time  `json:"check_in"`
	CheckOut   *time.Time `json:"check_out,omitempty"`
}

// Repository persists the daily attendance log in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// DayLayout is the calendar-date key format.
const DayLayout = "2006-01-02"

// UpsertScan records a scan for (employee, day) in a single atomic statement:
// the first scan of the day sets check_in, every later scan only moves
// check_out. Safe under concurrent scans for the same employee.
func (r *Repository) UpsertScan(ctx context.Context, employeeID, day string, at time.Time) (Record, error) {
	rec := Record{EmployeeID: employeeID, Day: day}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_log (employee_id, day, check_in)
		VALUES ($1, $2::date, $3)
		ON CONFLICT (employee_id, day) DO UPDATE SET check_out = EXCLUDED.check_in
		RETURNING check_in, check_out
	`, employeeID, day, at)
	if err := row.Scan(&rec.CheckIn, &rec.CheckOut); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the record for (employee, day), nil when the employee has not
// been seen that day.
func (r *Repository) Get(ctx context.Context, employeeID, day string) (*Record, error) {
	rec := Record{EmployeeID: employeeID, Day: day}
	row := r.db.QueryRowContext(ctx, `
		SELECT check_in, check_out FROM attendance_log
		WHERE employee_id = $1 AND day = $2::date
	`, employeeID, day)
	if err := row.Scan(&rec.CheckIn, &rec.CheckOut); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListReport returns the joined attendance report, newest day first, then
// latest check-in first.
func (r *Repository) ListReport(ctx context.Context, limit, offset int) ([]ReportRow, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.employee_id, e.full_name, e.program,
		       to_char(a.day, 'YYYY-MM-DD'), a.check_in, a.check_out
		FROM attendance_log a
		JOIN employees e ON e.employee_id = a.employee_id
		ORDER BY a.day DESC, a.check_in DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.EmployeeID, &row.FullName, &row.Program, &row.Day, &row.CheckIn, &row.CheckOut); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
