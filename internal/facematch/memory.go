package facematch

import (
	"context"
	"sync"
)

// Memory is an in-memory gallery backed by linear cosine scan. It serves
// tests and small deployments; production matching goes through the pgvector
// index on the employee store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]float32
}

// NewMemory creates an empty gallery.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]float32)}
}

// Put enrolls or replaces an employee's embedding.
func (m *Memory) Put(employeeID string, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	m.entries[employeeID] = vec
}

// Remove drops an employee from the gallery.
func (m *Memory) Remove(employeeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, employeeID)
}

// Nearest returns the closest enrolled employee by cosine distance, or nil
// when the gallery is empty.
func (m *Memory) Nearest(_ context.Context, embedding []float32) (*Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Candidate
	for id, vec := range m.entries {
		d := CosineDistance(embedding, vec)
		if best == nil || d < best.Distance {
			best = &Candidate{EmployeeID: id, Distance: d}
		}
	}
	return best, nil
}
