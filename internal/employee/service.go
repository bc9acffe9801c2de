package employee

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"faceattend/internal/apperrors"
	"faceattend/internal/faceclient"
)

// Store is the subset of the repository the registration service needs.
type Store interface {
	Create(ctx context.Context, emp *Employee, embedding []float32) error
	Exists(ctx context.Context, employeeID string) (bool, error)
	Get(ctx context.Context, employeeID string) (*Employee, error)
	List(ctx context.Context) ([]Employee, error)
}

// Embedder computes a face embedding for raw image bytes.
type Embedder interface {
	Embed(ctx context.Context, image []byte) (*faceclient.EmbedResult, error)
}

// PhotoStore writes and rolls back reference photos.
type PhotoStore interface {
	Write(employeeID string, image []byte) (string, error)
	Remove(employeeID string) error
}

// Service handles employee registration: photo write, embedding, row insert,
// and compensation of partial writes.
type Service struct {
	store       Store
	embedder    Embedder
	photos      PhotoStore
	embedBudget time.Duration
	log         zerolog.Logger
}

// NewService creates a registration service.
func NewService(store Store, embedder Embedder, photos PhotoStore, embedBudget time.Duration, log zerolog.Logger) *Service {
	if embedBudget <= 0 {
		embedBudget = 20 * time.Second
	}
	return &Service{store: store, embedder: embedder, photos: photos, embedBudget: embedBudget, log: log}
}

// RegisterInput is the validated registration request.
type RegisterInput struct {
	EmployeeID string
	FullName   string
	Program    string
	Image      []byte
}

// Register enrolls a new employee. The reference photo lands on disk first so
// the match index can resolve the identifier by filename; any later failure
// removes it again, keeping directory and store consistent.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Employee, error) {
	if in.EmployeeID == "" {
		return nil, apperrors.Invalid("employee_id required")
	}
	if in.FullName == "" {
		return nil, apperrors.Invalid("full_name required")
	}
	if len(in.Image) == 0 {
		return nil, apperrors.Invalid("photo required")
	}

	// Reject duplicates before touching the directory; writing <id>.jpg for
	// a taken identifier would clobber the existing reference photo.
	if taken, err := s.store.Exists(ctx, in.EmployeeID); err != nil {
		return nil, err
	} else if taken {
		return nil, apperrors.Conflict("employee %s already registered", in.EmployeeID)
	}

	photoPath, err := s.photos.Write(in.EmployeeID, in.Image)
	if err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedBudget)
	defer cancel()
	result, err := s.embedder.Embed(embedCtx, in.Image)
	if err != nil {
		s.rollbackPhoto(in.EmployeeID)
		return nil, err
	}

	emp := &Employee{
		EmployeeID: in.EmployeeID,
		FullName:   in.FullName,
		Program:    in.Program,
		PhotoPath:  photoPath,
	}
	if err := s.store.Create(ctx, emp, result.Embedding); err != nil {
		s.rollbackPhoto(in.EmployeeID)
		return nil, err
	}

	s.log.Info().
		Str("employee_id", emp.EmployeeID).
		Int("embedding_dim", len(result.Embedding)).
		Float64("detection_score", result.Score).
		Msg("employee registered")
	return emp, nil
}

func (s *Service) rollbackPhoto(employeeID string) {
	if err := s.photos.Remove(employeeID); err != nil {
		s.log.Error().Err(err).Str("employee_id", employeeID).Msg("orphan photo cleanup failed")
	}
}

// Get returns an employee profile.
func (s *Service) Get(ctx context.Context, employeeID string) (*Employee, error) {
	emp, err := s.store.Get(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, apperrors.NotFound("employee %s", employeeID)
	}
	return emp, nil
}

// List returns all enrolled employees.
func (s *Service) List(ctx context.Context) ([]Employee, error) {
	return s.store.List(ctx)
}
