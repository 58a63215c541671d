package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openpatch/autopatch-core/internal/patch"
)

// MemoryRepository is an in-memory Repository for tests and dry runs
// where no database file is wanted.
type MemoryRepository struct {
	mu       sync.Mutex
	attempts []Attempt
	byID     map[string]int
}

// NewMemoryRepository creates an empty in-memory attempt repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]int)}
}

// Record implements Repository.
func (r *MemoryRepository) Record(_ context.Context, attempt *Attempt) error {
	if attempt.ID == "" {
		attempt.ID = NewAttemptID()
	}
	if attempt.FinishedAt.IsZero() {
		attempt.FinishedAt = time.Now().UTC()
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = attempt.FinishedAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[attempt.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, attempt.ID)
	}
	r.byID[attempt.ID] = len(r.attempts)
	r.attempts = append(r.attempts, *attempt)
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	attempt := r.attempts[idx]
	return &attempt, nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	r.mu.Lock()
	var matched []Attempt
	for _, a := range r.attempts {
		if filter.UnitID != "" && a.UnitID != filter.UnitID {
			continue
		}
		if filter.TargetID != "" && a.TargetID != filter.TargetID {
			continue
		}
		if filter.WellID != "" && a.WellID != filter.WellID {
			continue
		}
		if filter.Outcome != "" && a.Outcome != filter.Outcome {
			continue
		}
		matched = append(matched, a)
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].FinishedAt.After(matched[j].FinishedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		matched = nil
	} else {
		matched = matched[filter.Offset:]
	}
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	if matched == nil {
		matched = []Attempt{}
	}

	return &ListResult{
		Attempts: matched,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// Summary implements Repository.
func (r *MemoryRepository) Summary(_ context.Context) (map[patch.Outcome]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := make(map[patch.Outcome]int)
	for _, a := range r.attempts {
		summary[a.Outcome]++
	}
	return summary, nil
}
