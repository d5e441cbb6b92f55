// Package generate drives resumable dataset generation runs: it schedules
// workflows, asks the synthesizer for candidates, filters them and keeps the
// checkpoint current.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jordanhubbard/mmgen/internal/dataset"
	"github.com/jordanhubbard/mmgen/internal/dedup"
	"github.com/jordanhubbard/mmgen/internal/events"
	"github.com/jordanhubbard/mmgen/internal/metrics"
	"github.com/jordanhubbard/mmgen/internal/registry"
	"github.com/jordanhubbard/mmgen/internal/scheduler"
	"github.com/jordanhubbard/mmgen/internal/synth"
	"github.com/jordanhubbard/mmgen/internal/telemetry"
	"github.com/jordanhubbard/mmgen/internal/workflow"
	"github.com/jordanhubbard/mmgen/pkg/config"
)

// Reasons a run stops.
const (
	StopTargetReached    = "target reached"
	StopAlreadySatisfied = "target already satisfied"
	StopBudget           = "llm call budget exhausted"
	StopPools            = "all workflow pools exhausted"
	StopNoWorkflows      = "no workflows built"
	StopNoTools          = "no usable tools"
	StopToolAttempts     = "attempts exhausted for some tools"
	StopInterrupted      = "interrupted"
)

// Synthesizer produces candidate records. *synth.Synthesizer implements it.
type Synthesizer interface {
	Multi(ctx context.Context, pair workflow.Pair, pattern string) (dataset.Record, error)
	Single(ctx context.Context, tool string) (dataset.Record, error)
}

// Deps are the collaborators of a Session. Only Synth is required.
type Deps struct {
	Synth  Synthesizer
	Budget *synth.Budget
	Index  dedup.Index
	Events events.Publisher
	Out    io.Writer
	Rand   *rand.Rand
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Target     int
	Finalized  int // records already in the output file
	Generated  int // records in the run's checkpoint
	Counts     map[string]int
	LLMCalls   int
	Shortfall  int
	StopReason string
}

// Total returns finalized plus generated records.
func (r *Result) Total() int { return r.Finalized + r.Generated }

// Session owns the state of one generation run.
type Session struct {
	cfg    config.GenerationConfig
	recipe *workflow.Recipe
	tools  []registry.Tool
	deps   Deps
	runID  string
	m      *metrics.Metrics
	sleep  func(ctx context.Context, d time.Duration) error

	// accepted instructions not yet in a saved checkpoint, kept out of the
	// shared index until the save succeeds
	unindexed []string
}

// NewSession prepares a run of recipe over the discovered tools.
func NewSession(cfg config.GenerationConfig, recipe *workflow.Recipe, tools []registry.Tool, deps Deps) *Session {
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Rand == nil {
		deps.Rand = workflow.NewRand(cfg.Seed)
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 10
	}
	return &Session{
		cfg:    cfg,
		recipe: recipe,
		tools:  tools,
		deps:   deps,
		runID:  uuid.New().String(),
		m:      metrics.NewMetrics(),
		sleep:  sleepContext,
	}
}

// RunID identifies this run in events and exports.
func (s *Session) RunID() string { return s.runID }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) toolNames() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name)
	}
	return names
}

// limitBudget applies the configured call limit, defaulting to twice the
// number of records still needed.
func (s *Session) limitBudget(needed int) {
	if s.deps.Budget == nil {
		return
	}
	if s.cfg.LLMMaxCalls > 0 {
		s.deps.Budget.SetMax(s.cfg.LLMMaxCalls)
	} else {
		s.deps.Budget.SetMax(2 * needed)
	}
}

func (s *Session) llmCalls() int {
	if s.deps.Budget == nil {
		return 0
	}
	return s.deps.Budget.Used()
}

func (s *Session) publish(ctx context.Context, ev events.Event) {
	ev.RunID = s.runID
	ev.Recipe = s.recipe.Name
	ev.Target = s.cfg.Target
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := s.deps.Events.Publish(ctx, ev); err != nil {
		log.Printf("[Generate] Warning: failed to publish %s event: %v", ev.Type, err)
	}
}

func (s *Session) seen(finalized dataset.Set, cp *dataset.Checkpoint) []dataset.Seen {
	seen := []dataset.Seen{finalized, cp}
	if s.deps.Index != nil {
		seen = append(seen, s.deps.Index)
	}
	return seen
}

// save writes the checkpoint and, once it is on disk, publishes the newly
// saved instructions to the shared index.
func (s *Session) save(ctx context.Context, cp *dataset.Checkpoint) error {
	err := cp.Save()
	s.m.RecordCheckpoint(err)
	if err != nil {
		log.Printf("[Generate] Error saving checkpoint %s: %v", cp.Path(), err)
		return err
	}
	s.indexSaved(context.WithoutCancel(ctx))
	return nil
}

func (s *Session) indexSaved(ctx context.Context) {
	if s.deps.Index == nil {
		s.unindexed = nil
		return
	}
	for i, instruction := range s.unindexed {
		if err := s.deps.Index.Add(ctx, instruction); err != nil {
			log.Printf("[Generate] Warning: %v", err)
			s.unindexed = s.unindexed[i:]
			return
		}
	}
	s.unindexed = s.unindexed[:0]
}

// accept runs the filter on one candidate and appends it when it passes.
func (s *Session) accept(ctx context.Context, rec dataset.Record, seen []dataset.Seen, cp *dataset.Checkpoint, pt *ProgressTracker) (dataset.Record, bool) {
	kept, rejected := dataset.Filter([]dataset.Record{rec}, seen...)
	for _, r := range rejected {
		pt.Reject(r.Reason)
		s.m.RecordsRejected.WithLabelValues(s.recipe.Name, r.Reason).Inc()
		s.m.Candidates.WithLabelValues(s.recipe.Name, "rejected").Inc()
		s.publish(ctx, events.Event{
			Type:        events.TypeRecordRejected,
			Pattern:     rec.Pattern,
			Instruction: rec.Instruction,
			Data:        map[string]string{"reason": r.Reason},
		})
	}
	if len(kept) == 0 {
		return dataset.Record{}, false
	}
	r := kept[0]
	cp.Append(r)
	if s.deps.Index != nil {
		s.unindexed = append(s.unindexed, r.Instruction)
	}
	s.m.Candidates.WithLabelValues(s.recipe.Name, "accepted").Inc()
	return r, true
}

// RunMulti generates two-step workflow instructions until the output file
// and the remainder checkpoint together hold the target.
func (s *Session) RunMulti(ctx context.Context) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "generate.multi",
		attribute.String("recipe", s.recipe.Name),
		attribute.Int("target", s.cfg.Target),
		attribute.String("run_id", s.runID))
	defer func() { telemetry.EndSpan(span, err) }()

	out := s.deps.Out
	target := s.cfg.Target
	res = &Result{RunID: s.runID, Target: target, Counts: map[string]int{}}
	s.m.Target.WithLabelValues(s.recipe.Name).Set(float64(target))

	fmt.Fprintf(out, "Generating %d multi-tool instructions (2-step) with recipe %s...\n", target, s.recipe.Name)
	finalized, err := dataset.ReadFile(s.cfg.OutputFile)
	if err != nil {
		log.Printf("[Generate] Warning: could not load finalized output %s: %v", s.cfg.OutputFile, err)
		finalized = nil
	}
	res.Finalized = len(finalized)
	if len(finalized) > 0 {
		fmt.Fprintf(out, "Resuming from %d existing multi-tool instructions\n", len(finalized))
	}
	if len(finalized) >= target {
		fmt.Fprintln(out, "Target already satisfied.")
		res.StopReason = StopAlreadySatisfied
		return res, nil
	}

	needed := target - len(finalized)
	fmt.Fprintf(out, "Generating remainder: %d instructions to reach %d\n", needed, target)
	s.limitBudget(needed)

	cp := dataset.OpenCheckpoint(s.cfg.RemainderFile)
	existing := dataset.CountBy(cp.Records(), dataset.ByPattern)
	if cp.Len() > 0 {
		fmt.Fprintf(out, "Loaded %d existing remainder instructions from %s\n", cp.Len(), cp.Path())
	}

	names := s.recipe.Usable(s.toolNames())
	fmt.Fprintf(out, "Discovered %d tools usable for workflows:\n", len(names))
	for _, n := range names {
		fmt.Fprintf(out, "- %s\n", n)
	}

	pools := workflow.Pools(s.recipe, names, s.deps.Rand)
	labels := s.recipe.Labels()
	total := 0
	fmt.Fprintln(out, "\nWorkflow Breakdown:")
	for _, l := range labels {
		fmt.Fprintf(out, "  %-16s %d\n", l+":", len(pools[l]))
		total += len(pools[l])
	}
	fmt.Fprintf(out, "  Total: %d candidate two-step workflows\n", total)

	pt := NewProgressTracker(out, target)
	pt.Seed(existing)
	res.Generated = cp.Len()

	if total == 0 {
		fmt.Fprintln(out, "No workflows built. Exiting.")
		res.StopReason = StopNoWorkflows
		s.finish(ctx, res, pt, labels)
		return res, nil
	}

	sched := scheduler.New(labels, pools,
		scheduler.WithCycle(s.cfg.CyclePools),
		scheduler.WithCounts(existing))
	fmt.Fprintf(out, "Existing pattern distribution: %s\n\n", pt.Distribution(labels))

	s.publish(ctx, events.Event{Type: events.TypeRunStarted, Generated: len(finalized) + cp.Len()})
	seen := s.seen(dataset.NewSet(finalized), cp)

	for cp.Len() < needed {
		if ctx.Err() != nil {
			res.StopReason = StopInterrupted
			break
		}
		pair, pattern, err := sched.Next()
		if errors.Is(err, scheduler.ErrPoolsExhausted) {
			res.StopReason = StopPools
			break
		}

		pt.Attempt()
		rec, err := s.deps.Synth.Multi(ctx, pair, pattern)
		if err != nil {
			if errors.Is(err, synth.ErrBudgetExhausted) {
				fmt.Fprintf(out, "Reached max LLM calls (%d)\n", s.llmCalls())
				res.StopReason = StopBudget
				break
			}
			if ctx.Err() != nil {
				res.StopReason = StopInterrupted
				break
			}
			pt.Error()
			log.Printf("[Generate] Error processing workflow %s -> %s: %v", pair[0], pair[1], err)
			if s.sleep(ctx, s.cfg.ErrorBackoff) != nil {
				res.StopReason = StopInterrupted
				break
			}
			continue
		}
		rec.Pattern = pattern

		if r, ok := s.accept(ctx, rec, seen, cp, pt); ok {
			sched.Accept(pattern)
			s.m.RecordsAccepted.WithLabelValues(s.recipe.Name, pattern).Inc()
			n := len(finalized) + cp.Len()
			pt.Accepted(n, pattern, r.Instruction)
			s.publish(ctx, events.Event{
				Type:        events.TypeRecordAccepted,
				Pattern:     pattern,
				Instruction: r.Instruction,
				Generated:   n,
			})
			if n%s.cfg.SaveEvery == 0 {
				if s.save(ctx, cp) == nil {
					fmt.Fprintf(out, "\nRemainder saved: %d -> %s\n", cp.Len(), cp.Path())
					s.publish(ctx, events.Event{Type: events.TypeCheckpoint, Generated: n})
				}
				fmt.Fprintf(out, "  Pattern dist: %s\n", pt.Distribution(labels))
			}
		}

		if s.sleep(ctx, s.cfg.Pause) != nil {
			res.StopReason = StopInterrupted
			break
		}
	}

	if cp.Len() >= needed {
		res.StopReason = StopTargetReached
	}
	res.Generated = cp.Len()
	if err := s.save(ctx, cp); err == nil {
		fmt.Fprintf(out, "\nRemainder saved: %d -> %s\n", cp.Len(), cp.Path())
	}
	s.finish(ctx, res, pt, labels)
	return res, nil
}

// RunSingle generates single-tool instructions with the target divided evenly
// across the usable tools. Records are saved to the output file after each
// acceptance.
func (s *Session) RunSingle(ctx context.Context) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "generate.single",
		attribute.String("recipe", s.recipe.Name),
		attribute.Int("target", s.cfg.Target),
		attribute.String("run_id", s.runID))
	defer func() { telemetry.EndSpan(span, err) }()

	out := s.deps.Out
	target := s.cfg.Target
	res = &Result{RunID: s.runID, Target: target, Counts: map[string]int{}}
	s.m.Target.WithLabelValues(s.recipe.Name).Set(float64(target))

	fmt.Fprintf(out, "Generating %d single-tool instructions with recipe %s...\n", target, s.recipe.Name)
	cp := dataset.OpenCheckpoint(s.cfg.OutputFile)
	existing := dataset.CountBy(cp.Records(), dataset.ByTool)

	names := s.recipe.Usable(s.toolNames())
	fmt.Fprintf(out, "\nFound %d tools:\n", len(names))
	for _, n := range names {
		fmt.Fprintf(out, "  - %s\n", n)
	}
	pt := NewProgressTracker(out, target)
	pt.Seed(existing)
	res.Generated = cp.Len()

	if len(names) == 0 {
		res.StopReason = StopNoTools
		s.finish(ctx, res, pt, names)
		return res, nil
	}
	if cp.Len() >= target {
		fmt.Fprintln(out, "Target already satisfied.")
		res.StopReason = StopAlreadySatisfied
		s.finish(ctx, res, pt, names)
		return res, nil
	}
	s.limitBudget(target - cp.Len())

	quotas, order := Quotas(names, target, s.deps.Rand)
	per := target / len(names)
	fmt.Fprintf(out, "\nGenerating %d per tool + %d extra = %d total\n\n", per, target%len(names), target)
	s.publish(ctx, events.Event{Type: events.TypeRunStarted, Generated: cp.Len()})
	seen := s.seen(dataset.Set{}, cp)

	short := false
loop:
	for _, tool := range order {
		quota := quotas[tool]
		for attempts := 0; existing[tool] < quota; attempts++ {
			if attempts >= 2*quota {
				short = true
				log.Printf("[Generate] Giving up on %s after %d attempts", tool, attempts)
				break
			}
			if ctx.Err() != nil {
				res.StopReason = StopInterrupted
				break loop
			}

			pt.Attempt()
			rec, err := s.deps.Synth.Single(ctx, tool)
			if err != nil {
				if errors.Is(err, synth.ErrBudgetExhausted) {
					fmt.Fprintf(out, "Reached max LLM calls (%d)\n", s.llmCalls())
					res.StopReason = StopBudget
					break loop
				}
				if ctx.Err() != nil {
					res.StopReason = StopInterrupted
					break loop
				}
				pt.Error()
				log.Printf("[Generate] Error on %s: %v", tool, err)
				if s.sleep(ctx, s.cfg.ErrorBackoff) != nil {
					res.StopReason = StopInterrupted
					break loop
				}
				continue
			}

			if r, ok := s.accept(ctx, rec, seen, cp, pt); ok {
				existing[tool]++
				s.m.RecordsAccepted.WithLabelValues(s.recipe.Name, tool).Inc()
				pt.AcceptedTool(cp.Len(), tool, r.Instruction)
				s.publish(ctx, events.Event{
					Type:        events.TypeRecordAccepted,
					Instruction: r.Instruction,
					Generated:   cp.Len(),
					Data:        map[string]string{"tool": tool},
				})
				_ = s.save(ctx, cp)
			}

			if s.sleep(ctx, s.cfg.Pause) != nil {
				res.StopReason = StopInterrupted
				break loop
			}
		}
	}

	res.Generated = cp.Len()
	if res.StopReason == "" {
		if cp.Len() >= target {
			res.StopReason = StopTargetReached
		} else if short {
			res.StopReason = StopToolAttempts
		}
	}
	_ = s.save(ctx, cp)
	fmt.Fprintf(out, "Output: %s\n", cp.Path())
	s.finish(ctx, res, pt, names)
	return res, nil
}

// Quotas divides target across tools. The tools are shuffled and the first
// target%len(tools) of that order receive one extra record.
func Quotas(tools []string, target int, rng *rand.Rand) (map[string]int, []string) {
	order := append([]string(nil), tools...)
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	quotas := make(map[string]int, len(order))
	if len(order) == 0 {
		return quotas, order
	}
	per, extra := target/len(order), target%len(order)
	for i, t := range order {
		quotas[t] = per
		if i < extra {
			quotas[t]++
		}
	}
	return quotas, order
}

func (s *Session) finish(ctx context.Context, res *Result, pt *ProgressTracker, order []string) {
	// the run may have been cancelled; the final event still goes out
	ctx = context.WithoutCancel(ctx)
	res.Counts = pt.Counts()
	res.LLMCalls = s.llmCalls()
	if short := res.Target - res.Total(); short > 0 {
		res.Shortfall = short
	}
	fmt.Fprintln(s.deps.Out)
	fmt.Fprint(s.deps.Out, pt.Summary(res, order))
	log.Printf("[Generate] Run %s finished: %d/%d (%s)", s.runID, res.Total(), res.Target, res.StopReason)
	s.publish(ctx, events.Event{
		Type:      events.TypeRunFinished,
		Generated: res.Total(),
		Data:      map[string]string{"stop_reason": res.StopReason},
	})
}
