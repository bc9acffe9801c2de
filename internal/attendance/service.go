package attendance

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"faceattend/internal/apperrors"
	"faceattend/internal/employee"
	"faceattend/internal/faceclient"
	"faceattend/internal/facematch"
)

// Embedder computes a face embedding for raw image bytes.
type Embedder interface {
	Embed(ctx context.Context, image []byte) (*faceclient.EmbedResult, error)
}

// EmployeeStore resolves matched identifiers to profiles.
type EmployeeStore interface {
	Get(ctx context.Context, employeeID string) (*employee.Employee, error)
}

// LogStore is the daily attendance log.
type LogStore interface {
	UpsertScan(ctx context.Context, employeeID, day string, at time.Time) (Record, error)
}

// Refresher replaces an employee's reference photo with a scan snapshot.
// A nil Refresher leaves reference photos immutable after registration.
type Refresher interface {
	Refresh(ctx context.Context, employeeID string, image []byte) error
}

// ScanResult is the profile plus today's record returned for a recognized
// scan.
type ScanResult struct {
	Employee employee.Employee `json:"employee"`
	Record   Record            `json:"record"`
	Distance float64           `json:"distance"`
}

// Service runs the per-scan pipeline: embed, match, identify, upsert.
type Service struct {
	embedder  Embedder
	index     facematch.Index
	employees EmployeeStore
	logs      LogStore
	refresher Refresher

	threshold   float64
	embedBudget time.Duration
	loc         *time.Location
	log         zerolog.Logger
	now         func() time.Time
}

// NewService creates a scan service. threshold is the maximum cosine distance
// accepted as a match.
func NewService(embedder Embedder, index facematch.Index, employees EmployeeStore, logs LogStore, refresher Refresher, threshold float64, embedBudget time.Duration, loc *time.Location, log zerolog.Logger) *Service {
	if threshold <= 0 {
		threshold = 0.35
	}
	if embedBudget <= 0 {
		embedBudget = 20 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		embedder:    embedder,
		index:       index,
		employees:   employees,
		logs:        logs,
		refresher:   refresher,
		threshold:   threshold,
		embedBudget: embedBudget,
		loc:         loc,
		log:         log,
		now:         time.Now,
	}
}

// Scan identifies the snapshot and records the check-in or check-out.
// Validation and detection failures leave no durable state behind.
func (s *Service) Scan(ctx context.Context, image []byte) (*ScanResult, error) {
	if len(image) == 0 {
		return nil, apperrors.Invalid("image required")
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedBudget)
	defer cancel()
	result, err := s.embedder.Embed(embedCtx, image)
	if err != nil {
		return nil, err
	}

	cand, err := s.index.Nearest(ctx, result.Embedding)
	if err != nil {
		return nil, err
	}
	if cand == nil || cand.Distance > s.threshold {
		return nil, apperrors.ErrNotRecognized
	}

	emp, err := s.employees.Get(ctx, cand.EmployeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		// The index knows an identifier the store does not: the
		// directory/store invariant is broken. Reconcile repairs it.
		s.log.Warn().Str("employee_id", cand.EmployeeID).Msg("match resolved to missing employee row")
		return nil, apperrors.NotFound("matched employee %s has no record", cand.EmployeeID)
	}

	if s.refresher != nil {
		// Photo refresh and log upsert are separate writes; a crash between
		// them is an accepted inconsistency, repaired by the reconcile pass.
		if err := s.refresher.Refresh(ctx, emp.EmployeeID, image); err != nil {
			s.log.Warn().Err(err).Str("employee_id", emp.EmployeeID).Msg("reference photo refresh failed")
		}
	}

	now := s.now().In(s.loc)
	rec, err := s.logs.UpsertScan(ctx, emp.EmployeeID, now.Format(DayLayout), now)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("employee_id", emp.EmployeeID).
		Float64("distance", cand.Distance).
		Bool("checkout", rec.CheckOut != nil).
		Msg("scan recorded")

	return &ScanResult{Employee: *emp, Record: rec, Distance: cand.Distance}, nil
}
