package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/mmgen/internal/dedup"
	"github.com/jordanhubbard/mmgen/internal/events"
	"github.com/jordanhubbard/mmgen/internal/generate"
	"github.com/jordanhubbard/mmgen/internal/provider"
	"github.com/jordanhubbard/mmgen/internal/registry"
	"github.com/jordanhubbard/mmgen/internal/seeds"
	"github.com/jordanhubbard/mmgen/internal/synth"
	"github.com/jordanhubbard/mmgen/internal/workflow"
	"github.com/jordanhubbard/mmgen/pkg/config"
)

type generateFlags struct {
	recipe    string
	server    string
	target    int
	output    string
	remainder string
	maxCalls  int
	saveEvery int
	seed      int64
	noCycle   bool
	seedsFile string
	watch     bool
	template  bool
}

func newGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate instruction datasets",
	}
	cmd.AddCommand(newGenerateModeCommand(false))
	cmd.AddCommand(newGenerateModeCommand(true))
	return cmd
}

func newGenerateModeCommand(single bool) *cobra.Command {
	var f generateFlags
	use, short, example := "multi", "Generate balanced two-step workflow instructions",
		`  mmgen generate multi --recipe emf --target 250
  mmgen generate multi --recipe atl --target 100 --output outputs/atl.json --max-calls 300`
	if single {
		use, short, example = "single", "Generate single-tool instructions spread evenly across tools",
			`  mmgen generate single --recipe emf --target 120 --output outputs/emf_single.json`
	}

	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: example,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, &cfg.Generation)
			return runGenerate(cmd, f, single)
		},
	}
	cmd.Flags().StringVarP(&f.recipe, "recipe", "r", "", "Recipe preset (emf, atl) or recipe YAML file")
	cmd.Flags().StringVar(&f.server, "server", "", "Override the tool server named by the recipe")
	cmd.Flags().IntVarP(&f.target, "target", "n", 0, "Total number of records wanted")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output dataset file")
	cmd.Flags().StringVar(&f.remainder, "remainder", "", "Checkpoint file for records generated in this run")
	cmd.Flags().IntVar(&f.maxCalls, "max-calls", 0, "Maximum LLM calls (default twice the records needed)")
	cmd.Flags().IntVar(&f.saveEvery, "save-every", 0, "Save the checkpoint every N accepted records")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed (0 seeds from the clock)")
	cmd.Flags().BoolVar(&f.noCycle, "no-cycle", false, "Drop a pattern once its pair pool is used up instead of reshuffling")
	cmd.Flags().StringVar(&f.seedsFile, "seeds", "", "Seed exemplar YAML file (default the built-in bank for the recipe)")
	cmd.Flags().BoolVar(&f.watch, "watch-seeds", false, "Reload the seeds file when it changes")
	if !single {
		cmd.Flags().BoolVar(&f.template, "template-fallback", false, "Fill arguments from tool templates when the model reply is not JSON")
	}
	return cmd
}

// apply overrides config values with the flags the user set.
func (f generateFlags) apply(cmd *cobra.Command, g *config.GenerationConfig) {
	flags := cmd.Flags()
	if flags.Changed("recipe") {
		g.Recipe = f.recipe
	}
	if flags.Changed("target") {
		g.Target = f.target
	}
	if flags.Changed("output") {
		g.OutputFile = f.output
	}
	if flags.Changed("remainder") {
		g.RemainderFile = f.remainder
	}
	if flags.Changed("max-calls") {
		g.LLMMaxCalls = f.maxCalls
	}
	if flags.Changed("save-every") {
		g.SaveEvery = f.saveEvery
	}
	if flags.Changed("seed") {
		g.Seed = f.seed
	}
	if flags.Changed("no-cycle") {
		g.CyclePools = !f.noCycle
	}
	if flags.Changed("seeds") {
		g.SeedsFile = f.seedsFile
	}
	if flags.Changed("watch-seeds") {
		g.WatchSeeds = f.watch
	}
	if flags.Changed("template-fallback") {
		g.TemplateFallback = f.template
	}
}

func runGenerate(cmd *cobra.Command, f generateFlags, single bool) error {
	ctx := cmd.Context()
	g := cfg.Generation
	if g.Target <= 0 {
		return fmt.Errorf("target must be positive, got %d", g.Target)
	}

	recipe, err := workflow.Resolve(g.Recipe)
	if err != nil {
		return err
	}
	if f.server != "" {
		recipe.Server = f.server
	}

	tools, err := discoverTools(ctx, recipe.Server)
	if err != nil {
		return err
	}

	store, err := seedStore(ctx, recipe, g)
	if err != nil {
		return err
	}

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	rng := workflow.NewRand(g.Seed)
	budget := synth.NewBudget(g.LLMMaxCalls)
	opts := []synth.Option{
		synth.WithRand(rng),
		synth.WithTemplateFallback(single || g.TemplateFallback),
	}
	if recipe.Domain != "" {
		opts = append(opts, synth.WithDomain(recipe.Domain))
	}
	workflowType := recipe.WorkflowType
	if single {
		workflowType = strings.Replace(workflowType, "multi", "single", 1)
	}
	if workflowType != "" {
		opts = append(opts, synth.WithWorkflowType(workflowType))
	}
	syn := synth.New(llm, store, budget, tools, opts...)

	idx, err := dedup.New(ctx, cfg.Dedup)
	if err != nil {
		return err
	}
	defer idx.Close()

	pub, err := events.New(cfg.Events)
	if err != nil {
		log.Printf("[Main] Warning: event publishing disabled: %v", err)
		pub = events.Nop{}
	}
	defer pub.Close()

	sess := generate.NewSession(g, recipe, tools, generate.Deps{
		Synth:  syn,
		Budget: budget,
		Index:  idx,
		Events: pub,
		Out:    cmd.OutOrStdout(),
		Rand:   rng,
	})
	log.Printf("[Main] Run %s: recipe=%s server=%s tools=%d target=%d", sess.RunID(), recipe.Name, recipe.Server, len(tools), g.Target)

	var res *generate.Result
	if single {
		res, err = sess.RunSingle(ctx)
	} else {
		res, err = sess.RunMulti(ctx)
	}
	if err != nil {
		return err
	}
	if res.Shortfall > 0 {
		log.Printf("[Main] Warning: run %s finished %d short of target (%s)", res.RunID, res.Shortfall, res.StopReason)
	}
	return nil
}

// discoverTools populates the registry from the configured servers and
// returns the tools of server.
func discoverTools(ctx context.Context, server string) ([]registry.Tool, error) {
	sources, err := registry.SourcesFromConfig(cfg.Servers)
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	reg.Populate(ctx, sources)
	tools, err := reg.Require(server)
	if err != nil {
		return nil, fmt.Errorf("tool discovery failed: %w", err)
	}
	return tools, nil
}

func seedStore(ctx context.Context, recipe *workflow.Recipe, g config.GenerationConfig) (*seeds.Store, error) {
	if g.SeedsFile != "" {
		bank, err := seeds.LoadFile(g.SeedsFile)
		if err != nil {
			return nil, err
		}
		store := seeds.NewStore(bank, g.SeedsFile)
		if g.WatchSeeds {
			go func() {
				if err := store.Watch(ctx); err != nil {
					log.Printf("[Main] Warning: seeds watcher stopped: %v", err)
				}
			}()
		}
		return store, nil
	}
	bank, err := seeds.Builtin(recipe.Name)
	if err != nil {
		log.Printf("[Main] Warning: %v, prompts will carry no exemplars", err)
		return nil, nil
	}
	return seeds.NewStore(bank, ""), nil
}
