package employee

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"faceattend/internal/apperrors"
	"faceattend/internal/facematch"
)

// Employee represents a registered employee.
type Employee struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	FullName   string    `json:"full_name"`
	Program    string    `json:"program"`
	PhotoPath  string    `json:"photo_path"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Repository persists employees in Postgres. The embedding column doubles as
// the face match index via pgvector.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const uniqueViolation = "23505"

// Create inserts a new employee with its reference embedding. Duplicate
// identifiers surface as apperrors.ErrConflict.
func (r *Repository) Create(ctx context.Context, emp *Employee, embedding []float32) error {
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO employees (id, employee_id, full_name, program, photo_path, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, emp.ID, emp.EmployeeID, emp.FullName, emp.Program, emp.PhotoPath, pgvector.NewVector(embedding))
	if err := row.Scan(&emp.CreatedAt, &emp.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.Conflict("employee %s already registered", emp.EmployeeID)
		}
		return err
	}
	return nil
}

// Exists reports whether an employee identifier is taken.
func (r *Repository) Exists(ctx context.Context, employeeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM employees WHERE employee_id = $1)`, employeeID,
	).Scan(&exists)
	return exists, err
}

// Get returns a single employee by identifier, nil when absent.
func (r *Repository) Get(ctx context.Context, employeeID string) (*Employee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, employee_id, full_name, program, photo_path, created_at, updated_at
		FROM employees WHERE employee_id = $1
	`, employeeID)
	var e Employee
	if err := row.Scan(&e.ID, &e.EmployeeID, &e.FullName, &e.Program, &e.PhotoPath, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// List returns all employees ordered by identifier.
func (r *Repository) List(ctx context.Context) ([]Employee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, employee_id, full_name, program, photo_path, created_at, updated_at
		FROM employees
		ORDER BY employee_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.FullName, &e.Program, &e.PhotoPath, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// ListIDs returns all employee identifiers; used by the reconcile pass.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT employee_id FROM employees ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMissingEmbeddings returns identifiers whose stored vector is NULL,
// typically after a reference photo was replaced.
func (r *Repository) ListMissingEmbeddings(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT employee_id FROM employees WHERE embedding IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateEmbedding replaces the stored embedding.
func (r *Repository) UpdateEmbedding(ctx context.Context, employeeID string, embedding []float32) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE employees SET embedding = $2, updated_at = NOW() WHERE employee_id = $1
	`, employeeID, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("employee %s", employeeID)
	}
	return nil
}

// ClearEmbedding marks the embedding stale so the worker recomputes it.
func (r *Repository) ClearEmbedding(ctx context.Context, employeeID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE employees SET embedding = NULL, updated_at = NOW() WHERE employee_id = $1
	`, employeeID)
	return err
}

// Nearest resolves the closest enrolled embedding by cosine distance.
// Rows with a NULL vector are invisible to matching until re-embedded.
func (r *Repository) Nearest(ctx context.Context, embedding []float32) (*facematch.Candidate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT employee_id, embedding <=> $1 AS distance
		FROM employees
		WHERE embedding IS NOT NULL
		ORDER BY distance
		LIMIT 1
	`, pgvector.NewVector(embedding))
	var c facematch.Candidate
	if err := row.Scan(&c.EmployeeID, &c.Distance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
