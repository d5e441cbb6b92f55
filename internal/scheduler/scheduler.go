// Package scheduler hands out workflows so that accepted records stay
// balanced across patterns.
package scheduler

import (
	"errors"
	"log"
	"slices"

	"github.com/jordanhubbard/mmgen/internal/workflow"
)

// ErrPoolsExhausted is returned by Next once every pattern pool is removed.
var ErrPoolsExhausted = errors.New("all workflow pools exhausted")

type pool struct {
	workflows []workflow.Pair
	cursor    int
}

// Scheduler selects the pattern with the fewest accepted records, breaking
// ties by pattern order, and cycles through that pattern's workflows.
type Scheduler struct {
	order  []string
	pools  map[string]*pool
	counts map[string]int
	cycle  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCycle controls whether a pool restarts from the beginning once every
// workflow in it has been handed out. It defaults to true.
func WithCycle(cycle bool) Option {
	return func(s *Scheduler) { s.cycle = cycle }
}

// WithCounts seeds accepted counts, typically from a resumed checkpoint.
// Unknown patterns are ignored.
func WithCounts(counts map[string]int) Option {
	return func(s *Scheduler) {
		for p, n := range counts {
			if _, ok := s.counts[p]; ok {
				s.counts[p] = n
			}
		}
	}
}

// New creates a scheduler over the given patterns in priority order.
func New(order []string, pools map[string][]workflow.Pair, opts ...Option) *Scheduler {
	s := &Scheduler{
		order:  slices.Clone(order),
		pools:  make(map[string]*pool, len(order)),
		counts: make(map[string]int, len(order)),
		cycle:  true,
	}
	for _, p := range order {
		s.pools[p] = &pool{workflows: pools[p]}
		s.counts[p] = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next workflow and its pattern. Patterns whose pools are
// empty are dropped permanently.
func (s *Scheduler) Next() (workflow.Pair, string, error) {
	for len(s.order) > 0 {
		pattern := s.lowest()
		q := s.pools[pattern]
		if len(q.workflows) == 0 || (!s.cycle && q.cursor >= len(q.workflows)) {
			log.Printf("[Scheduler] No workflows left for pattern %s", pattern)
			s.remove(pattern)
			continue
		}
		w := q.workflows[q.cursor%len(q.workflows)]
		q.cursor++
		return w, pattern, nil
	}
	return workflow.Pair{}, "", ErrPoolsExhausted
}

// Accept records one accepted record for pattern.
func (s *Scheduler) Accept(pattern string) {
	if _, ok := s.counts[pattern]; ok {
		s.counts[pattern]++
	}
}

// Counts returns a copy of the accepted counts per pattern, including
// patterns whose pools were removed.
func (s *Scheduler) Counts() map[string]int {
	out := make(map[string]int, len(s.counts))
	for p, n := range s.counts {
		out[p] = n
	}
	return out
}

// Active returns the patterns still eligible for selection, in order.
func (s *Scheduler) Active() []string {
	return slices.Clone(s.order)
}

func (s *Scheduler) lowest() string {
	best := s.order[0]
	for _, p := range s.order[1:] {
		if s.counts[p] < s.counts[best] {
			best = p
		}
	}
	return best
}

func (s *Scheduler) remove(pattern string) {
	s.order = slices.DeleteFunc(s.order, func(p string) bool { return p == pattern })
}
