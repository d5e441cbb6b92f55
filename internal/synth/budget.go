package synth

import (
	"errors"
	"sync"
)

// ErrBudgetExhausted is returned once the model call budget is spent.
var ErrBudgetExhausted = errors.New("llm call budget exhausted")

// Budget caps the number of model calls made by a run.
type Budget struct {
	mu   sync.Mutex
	max  int
	used int
}

// NewBudget allows max calls; max <= 0 means unlimited.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Take reserves one call.
func (b *Budget) Take() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && b.used >= b.max {
		return ErrBudgetExhausted
	}
	b.used++
	return nil
}

// Used returns the number of calls made so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Max returns the configured limit.
func (b *Budget) Max() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max
}

// SetMax replaces the limit; max <= 0 means unlimited.
func (b *Budget) SetMax(max int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.max = max
}
