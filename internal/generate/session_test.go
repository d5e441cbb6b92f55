package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/mmgen/internal/dataset"
	"github.com/jordanhubbard/mmgen/internal/dedup"
	"github.com/jordanhubbard/mmgen/internal/events"
	"github.com/jordanhubbard/mmgen/internal/registry"
	"github.com/jordanhubbard/mmgen/internal/synth"
	"github.com/jordanhubbard/mmgen/internal/workflow"
	"github.com/jordanhubbard/mmgen/pkg/config"
)

var emfTools = []registry.Tool{
	{Name: "create_object"},
	{Name: "update_feature"},
	{Name: "inspect_instance"},
	{Name: "list_features"},
	{Name: "get_session_info"},
}

// fakeSynth returns a fresh instruction per call, spending the shared budget.
type fakeSynth struct {
	budget    *synth.Budget
	calls     int
	same      bool
	failEvery int
	cancel    context.CancelFunc
	cancelAt  int
}

func (f *fakeSynth) next() (string, error) {
	if err := f.budget.Take(); err != nil {
		return "", err
	}
	f.calls++
	if f.cancel != nil && f.calls == f.cancelAt {
		f.cancel()
	}
	if f.failEvery > 0 && f.calls%f.failEvery == 0 {
		return "", errors.New("model unavailable")
	}
	if f.same {
		return "Always the same instruction", nil
	}
	return fmt.Sprintf("Instruction number %d", f.calls), nil
}

func (f *fakeSynth) Multi(_ context.Context, pair workflow.Pair, _ string) (dataset.Record, error) {
	text, err := f.next()
	if err != nil {
		return dataset.Record{}, err
	}
	return dataset.Record{
		Instruction: text,
		RelevantAPIs: []dataset.API{
			{APIName: pair[0], Arguments: "s1, Class"},
			{APIName: pair[1], Arguments: "s1, Class, 1"},
		},
	}, nil
}

func (f *fakeSynth) Single(_ context.Context, tool string) (dataset.Record, error) {
	text, err := f.next()
	if err != nil {
		return dataset.Record{}, err
	}
	return dataset.Record{
		Instruction:  text + " on " + tool,
		RelevantAPIs: []dataset.API{{APIName: tool, Arguments: "s1"}},
	}, nil
}

func testConfig(t *testing.T, target int) config.GenerationConfig {
	dir := t.TempDir()
	return config.GenerationConfig{
		Target:        target,
		OutputFile:    filepath.Join(dir, "dataset.json"),
		RemainderFile: filepath.Join(dir, "remainder.json"),
		SaveEvery:     10,
		CyclePools:    true,
		Seed:          42,
	}
}

func newTestSession(cfg config.GenerationConfig, recipe *workflow.Recipe, fs *fakeSynth, rec *events.Recorder) (*Session, *bytes.Buffer) {
	var out bytes.Buffer
	s := NewSession(cfg, recipe, emfTools, Deps{
		Synth:  fs,
		Budget: fs.budget,
		Events: rec,
		Out:    &out,
	})
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return s, &out
}

func TestRunMulti_BalancedPatterns(t *testing.T) {
	cfg := testConfig(t, 8)
	fs := &fakeSynth{budget: synth.NewBudget(0)}
	rec := &events.Recorder{}
	s, out := newTestSession(cfg, workflow.EMFRecipe(), fs, rec)

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopTargetReached, res.StopReason)
	assert.Equal(t, 8, res.Generated)
	assert.Equal(t, 0, res.Shortfall)
	assert.Equal(t, map[string]int{
		"modify>modify": 2, "modify>inspect": 2, "inspect>modify": 2, "inspect>inspect": 2,
	}, res.Counts)

	saved, err := dataset.ReadFile(cfg.RemainderFile)
	require.NoError(t, err)
	require.Len(t, saved, 8)
	for _, r := range saved {
		assert.NotEmpty(t, r.Pattern)
		assert.NotEqual(t, "get_session_info", r.RelevantAPIs[0].APIName)
	}

	assert.Contains(t, out.String(), "1/8 (12.5%) [modify>modify] - Instruction number 1...")
	assert.Contains(t, out.String(), "Remainder saved: 8")

	types := rec.Types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.TypeRunStarted, types[0])
	assert.Equal(t, events.TypeRunFinished, types[len(types)-1])
}

func TestRunMulti_TargetAlreadySatisfied(t *testing.T) {
	cfg := testConfig(t, 2)
	require.NoError(t, dataset.WriteFile(cfg.OutputFile, []dataset.Record{
		{Instruction: "a", RelevantAPIs: []dataset.API{{APIName: "create_object", Arguments: "x"}}},
		{Instruction: "b", RelevantAPIs: []dataset.API{{APIName: "create_object", Arguments: "x"}}},
	}))
	fs := &fakeSynth{budget: synth.NewBudget(0)}
	s, out := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopAlreadySatisfied, res.StopReason)
	assert.Equal(t, 0, fs.calls)
	assert.Contains(t, out.String(), "Target already satisfied.")
}

func TestRunMulti_ResumesFromRemainder(t *testing.T) {
	cfg := testConfig(t, 10)
	require.NoError(t, dataset.WriteFile(cfg.OutputFile, []dataset.Record{
		{Instruction: "done 1", RelevantAPIs: []dataset.API{{APIName: "create_object", Arguments: "x"}}},
		{Instruction: "done 2", RelevantAPIs: []dataset.API{{APIName: "create_object", Arguments: "x"}}},
	}))
	var prior []dataset.Record
	for i := 0; i < 4; i++ {
		prior = append(prior, dataset.Record{
			Instruction:  fmt.Sprintf("prior %d", i),
			RelevantAPIs: []dataset.API{{APIName: "create_object", Arguments: "x"}},
			Pattern:      "modify>modify",
		})
	}
	require.NoError(t, dataset.WriteFile(cfg.RemainderFile, prior))

	fs := &fakeSynth{budget: synth.NewBudget(0)}
	s, _ := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Finalized)
	assert.Equal(t, 8, res.Generated)
	assert.Equal(t, 10, res.Total())
	assert.Equal(t, 4, fs.calls)
	// the four new records fill the three empty patterns first
	assert.Equal(t, 4, res.Counts["modify>modify"])
	for _, p := range []string{"modify>inspect", "inspect>modify", "inspect>inspect"} {
		assert.GreaterOrEqual(t, res.Counts[p], 1, p)
	}
}

func TestRunMulti_DuplicatesExhaustBudget(t *testing.T) {
	cfg := testConfig(t, 5)
	fs := &fakeSynth{budget: synth.NewBudget(0), same: true}
	s, out := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopBudget, res.StopReason)
	assert.Equal(t, 1, res.Generated)
	assert.Equal(t, 4, res.Shortfall)
	assert.Equal(t, 10, fs.calls)
	assert.Contains(t, out.String(), "Shortfall: 4 (llm call budget exhausted)")
	assert.Contains(t, out.String(), "duplicate: 9")
}

func TestRunMulti_ErrorsAreSkipped(t *testing.T) {
	cfg := testConfig(t, 4)
	cfg.LLMMaxCalls = 100
	fs := &fakeSynth{budget: synth.NewBudget(0), failEvery: 2}
	s, _ := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopTargetReached, res.StopReason)
	assert.Equal(t, 4, res.Generated)
	assert.Equal(t, 100, fs.budget.Max())
}

func TestRunMulti_NoCyclingExhaustsPools(t *testing.T) {
	cfg := testConfig(t, 50)
	cfg.CyclePools = false
	fs := &fakeSynth{budget: synth.NewBudget(0)}
	s, _ := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopPools, res.StopReason)
	// 2 + 4 + 4 + 2 distinct workflows
	assert.Equal(t, 12, res.Generated)
	assert.Equal(t, 38, res.Shortfall)
}

func TestRunMulti_CancelFlushesCheckpoint(t *testing.T) {
	cfg := testConfig(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fs := &fakeSynth{budget: synth.NewBudget(0), cancel: cancel, cancelAt: 3}
	s, _ := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunMulti(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopInterrupted, res.StopReason)

	saved, err := dataset.ReadFile(cfg.RemainderFile)
	require.NoError(t, err)
	assert.Len(t, saved, res.Generated)
	assert.Equal(t, 3, res.Generated)
}

func TestRunMulti_SharedIndexRejects(t *testing.T) {
	cfg := testConfig(t, 2)
	idx := dedup.NewMemory()
	require.NoError(t, idx.Add(context.Background(), "Instruction number 1"))

	var out bytes.Buffer
	fs := &fakeSynth{budget: synth.NewBudget(0)}
	s := NewSession(cfg, workflow.EMFRecipe(), emfTools, Deps{Synth: fs, Budget: fs.budget, Index: idx, Out: &out})
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Generated)
	assert.Equal(t, 3, fs.calls)
	assert.True(t, idx.Contains("Instruction number 3"))
	assert.Equal(t, 3, idx.Len())
}

func TestRunMulti_IndexWaitsForSavedCheckpoint(t *testing.T) {
	cfg := testConfig(t, 2)
	blocker := filepath.Join(filepath.Dir(cfg.RemainderFile), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	cfg.RemainderFile = filepath.Join(blocker, "remainder.json")
	idx := dedup.NewMemory()

	var out bytes.Buffer
	fs := &fakeSynth{budget: synth.NewBudget(0)}
	s := NewSession(cfg, workflow.EMFRecipe(), emfTools, Deps{Synth: fs, Budget: fs.budget, Index: idx, Out: &out})
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	res, err := s.RunMulti(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Generated)
	assert.Equal(t, 0, idx.Len())
	assert.False(t, idx.Contains("Instruction number 1"))
}

func TestRunMulti_InterruptedRunIndexesFlushedRecords(t *testing.T) {
	cfg := testConfig(t, 10)
	cfg.SaveEvery = 2
	idx := dedup.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	fs := &fakeSynth{budget: synth.NewBudget(0), cancel: cancel, cancelAt: 3}
	s := NewSession(cfg, workflow.EMFRecipe(), emfTools, Deps{Synth: fs, Budget: fs.budget, Index: idx, Out: &out})
	s.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	res, err := s.RunMulti(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopInterrupted, res.StopReason)

	saved, err := dataset.ReadFile(cfg.RemainderFile)
	require.NoError(t, err)
	require.Len(t, saved, 3)
	assert.Equal(t, 3, idx.Len())
	for _, r := range saved {
		assert.True(t, idx.Contains(r.Instruction), r.Instruction)
	}
}

func TestRunSingle_DividesTarget(t *testing.T) {
	cfg := testConfig(t, 9)
	fs := &fakeSynth{budget: synth.NewBudget(0)}
	s, out := newTestSession(cfg, workflow.EMFRecipe(), fs, &events.Recorder{})

	res, err := s.RunSingle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopTargetReached, res.StopReason)
	assert.Equal(t, 9, res.Generated)
	// get_session_info is excluded by the recipe, leaving four tools
	assert.Len(t, res.Counts, 4)
	assert.NotContains(t, res.Counts, "get_session_info")
	for tool, n := range res.Counts {
		assert.True(t, n == 2 || n == 3, "%s got %d", tool, n)
	}
	assert.Contains(t, out.String(), "Generating 2 per tool + 1 extra = 9 total")

	saved, err := dataset.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Len(t, saved, 9)
}

func TestQuotas(t *testing.T) {
	quotas, order := Quotas([]string{"a", "b", "c"}, 7, workflow.NewRand(1))
	require.Len(t, order, 3)
	assert.Equal(t, 3, quotas[order[0]])
	assert.Equal(t, 2, quotas[order[1]])
	assert.Equal(t, 2, quotas[order[2]])

	empty, _ := Quotas(nil, 5, nil)
	assert.Empty(t, empty)
}

func TestProgressTracker_Summary(t *testing.T) {
	var buf bytes.Buffer
	pt := NewProgressTracker(&buf, 4)
	pt.Attempt()
	pt.Accepted(1, "apply>get", strings.Repeat("x", 80))
	pt.Reject(dataset.ReasonDuplicate)
	pt.Error()

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "1/4 (25.0%) [apply>get] - "))
	assert.Contains(t, line, strings.Repeat("x", 60)+"...")
	assert.NotContains(t, line, strings.Repeat("x", 61))

	summary := pt.Summary(&Result{Target: 4, Generated: 1, Shortfall: 3, StopReason: StopPools}, []string{"apply>get", "get>get"})
	assert.Contains(t, summary, "Generated 1/4 (25.0%)")
	assert.Contains(t, summary, "1 rejected (duplicate: 1)")
	assert.Contains(t, summary, "1 errors")
	assert.Contains(t, summary, "Shortfall: 3 (all workflow pools exhausted)")
	assert.Contains(t, pt.Distribution([]string{"apply>get", "get>get"}), "apply>get=1, get>get=0")
}
