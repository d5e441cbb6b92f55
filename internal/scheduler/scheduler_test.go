package scheduler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/mmgen/internal/workflow"
)

var order = []string{"modify>modify", "modify>inspect", "inspect>modify", "inspect>inspect"}

func makePool(pattern string, n int) []workflow.Pair {
	pairs := make([]workflow.Pair, n)
	for i := range pairs {
		pairs[i] = workflow.Pair{fmt.Sprintf("%s-a%d", pattern, i), fmt.Sprintf("%s-b%d", pattern, i)}
	}
	return pairs
}

func TestNext_TiesBrokenByOrder(t *testing.T) {
	pools := map[string][]workflow.Pair{}
	for _, p := range order {
		pools[p] = makePool(p, 2)
	}
	s := New(order, pools)

	for _, want := range order {
		_, pattern, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, want, pattern)
		s.Accept(pattern)
	}
}

func TestNext_PicksLowestCount(t *testing.T) {
	pools := map[string][]workflow.Pair{}
	for _, p := range order {
		pools[p] = makePool(p, 1)
	}
	s := New(order, pools, WithCounts(map[string]int{
		"modify>modify":   3,
		"modify>inspect":  1,
		"inspect>modify":  0,
		"inspect>inspect": 2,
	}))

	_, pattern, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "inspect>modify", pattern)
}

func TestNext_CyclesPool(t *testing.T) {
	s := New([]string{"p"}, map[string][]workflow.Pair{"p": makePool("p", 2)})

	var got []workflow.Pair
	for i := 0; i < 5; i++ {
		w, _, err := s.Next()
		require.NoError(t, err)
		got = append(got, w)
	}
	assert.Equal(t, got[0], got[2])
	assert.Equal(t, got[1], got[3])
	assert.Equal(t, got[0], got[4])
}

func TestNext_NoCycleExhausts(t *testing.T) {
	s := New([]string{"a", "b"}, map[string][]workflow.Pair{
		"a": makePool("a", 2),
		"b": makePool("b", 1),
	}, WithCycle(false))

	seen := 0
	for {
		_, _, err := s.Next()
		if errors.Is(err, ErrPoolsExhausted) {
			break
		}
		require.NoError(t, err)
		seen++
	}
	assert.Equal(t, 3, seen)
	assert.Empty(t, s.Active())
}

func TestNext_EmptyPoolRemoved(t *testing.T) {
	s := New(order, map[string][]workflow.Pair{
		"modify>inspect": makePool("modify>inspect", 1),
	})

	_, pattern, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "modify>inspect", pattern)
	assert.Equal(t, []string{"modify>inspect"}, s.Active())

	// Removed patterns keep their counts
	counts := s.Counts()
	assert.Len(t, counts, 4)
}

func TestNext_AllEmpty(t *testing.T) {
	s := New(order, nil)
	_, _, err := s.Next()
	assert.ErrorIs(t, err, ErrPoolsExhausted)
}

func TestAccept_UnknownPatternIgnored(t *testing.T) {
	s := New(order, nil)
	s.Accept("nope")
	_, ok := s.Counts()["nope"]
	assert.False(t, ok)
}

func TestCounts_IsCopy(t *testing.T) {
	s := New(order, nil)
	c := s.Counts()
	c["modify>modify"] = 99
	assert.Equal(t, 0, s.Counts()["modify>modify"])
}

// With every pool non-empty and every handed out workflow accepted, counts
// never drift more than one apart.
func TestScheduler_BalanceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted counts stay within one", prop.ForAll(
		func(sizes []int, steps int) bool {
			names := make([]string, len(sizes))
			pools := make(map[string][]workflow.Pair, len(sizes))
			for i, n := range sizes {
				names[i] = fmt.Sprintf("p%d", i)
				pools[names[i]] = makePool(names[i], n)
			}
			s := New(names, pools)
			for i := 0; i < steps; i++ {
				_, pattern, err := s.Next()
				if err != nil {
					return false
				}
				s.Accept(pattern)
			}
			lo, hi := steps, 0
			for _, n := range s.Counts() {
				lo = min(lo, n)
				hi = max(hi, n)
			}
			return hi-lo <= 1
		},
		gen.SliceOfN(4, gen.IntRange(1, 20)),
		gen.IntRange(0, 300),
	))

	properties.TestingRun(t)
}
