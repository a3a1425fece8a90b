package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Algorithm names one engine.
type Algorithm string

const (
	AlgorithmPreview       Algorithm = "preview"
	AlgorithmKMeans        Algorithm = "kmeans"
	AlgorithmNaiveBayes    Algorithm = "naive_bayes"
	AlgorithmDecisionTree  Algorithm = "decision_tree"
	AlgorithmTreePredict   Algorithm = "decision_tree_predict"
	AlgorithmReduct        Algorithm = "reduct"
	AlgorithmApproximation Algorithm = "approximation"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the metadata of one engine invocation. Datasets and models are
// never stored.
type Run struct {
	ID         string          `json:"id"`
	Algorithm  Algorithm       `json:"algorithm"`
	FileName   string          `json:"file_name,omitempty"`
	Params     json.RawMessage `json:"params"`
	Rows       int             `json:"rows"`
	Columns    int             `json:"columns"`
	Status     RunStatus       `json:"status"`
	ErrorCode  string          `json:"error_code,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	ClientIP   string          `json:"client_ip,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RunStore persists run metadata.
type RunStore interface {
	Record(ctx context.Context, run Run) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
	// Purge deletes runs created before cutoff and reports how many.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryRunStore keeps the most recent runs in a ring buffer.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []Run
	next int
	full bool
}

// NewMemoryRunStore holds at most capacity runs; older runs are overwritten.
func NewMemoryRunStore(capacity int) *MemoryRunStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryRunStore{runs: make([]Run, capacity)}
}

func (m *MemoryRunStore) Record(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[m.next] = run
	m.next = (m.next + 1) % len(m.runs)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *MemoryRunStore) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = len(m.runs)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Run, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.runs)) % len(m.runs)
		out = append(out, m.runs[idx])
	}
	return out, nil
}

func (m *MemoryRunStore) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = len(m.runs)
	}
	// Oldest first, keeping survivors in order.
	kept := make([]Run, 0, n)
	start := 0
	if m.full {
		start = m.next
	}
	for i := 0; i < n; i++ {
		run := m.runs[(start+i)%len(m.runs)]
		if !run.CreatedAt.Before(cutoff) {
			kept = append(kept, run)
		}
	}

	purged := int64(n - len(kept))
	clear(m.runs)
	copy(m.runs, kept)
	m.next = len(kept) % len(m.runs)
	m.full = len(kept) == len(m.runs)
	return purged, nil
}
