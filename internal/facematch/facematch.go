package facematch

import "context"

// Candidate is the closest enrolled face for a query embedding.
type Candidate struct {
	EmployeeID string
	Distance   float64
}

// Index resolves a query embedding to the nearest enrolled employee.
// Implementations return (nil, nil) when the gallery is empty.
type Index interface {
	Nearest(ctx context.Context, embedding []float32) (*Candidate, error)
}
