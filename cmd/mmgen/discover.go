package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/mmgen/internal/registry"
	"github.com/jordanhubbard/mmgen/internal/workflow"
)

func newDiscoverCommand() *cobra.Command {
	var (
		recipeName string
		asJSON     bool
		preview    int
	)
	cmd := &cobra.Command{
		Use:   "discover [SERVER...]",
		Short: "List the tools each configured server exposes",
		Example: `  mmgen discover
  mmgen discover emf_server --recipe emf
  mmgen discover emf_server --recipe emf --workflows 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := registry.SourcesFromConfig(cfg.Servers)
			if err != nil {
				return err
			}
			reg := registry.New()
			reg.Populate(cmd.Context(), sources)

			servers := args
			if len(servers) == 0 {
				servers = reg.Servers()
			}
			if len(servers) == 0 {
				return fmt.Errorf("no servers configured")
			}

			var recipe *workflow.Recipe
			if recipeName != "" {
				if recipe, err = workflow.Resolve(recipeName); err != nil {
					return err
				}
			}
			if preview > 0 && recipe == nil {
				return fmt.Errorf("--workflows needs --recipe")
			}

			out := cmd.OutOrStdout()
			if asJSON {
				listing := make(map[string][]registry.Tool, len(servers))
				for _, s := range servers {
					listing[s] = reg.ToolsByServer(s)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(listing)
			}

			missing := 0
			for _, s := range servers {
				tools := reg.ToolsByServer(s)
				fmt.Fprintf(out, "%s: %d tools\n", s, len(tools))
				if len(tools) == 0 {
					missing++
					continue
				}
				if recipe == nil {
					for _, t := range tools {
						fmt.Fprintf(out, "  %-40s %s\n", t.Name, t.Description)
					}
					continue
				}
				groups := recipe.Classifier().ClassifyAll(recipe.Usable(reg.Names(s)))
				for _, cat := range sortedCategories(groups) {
					fmt.Fprintf(out, "  %s (%d): %s\n", cat, len(groups[cat]), strings.Join(groups[cat], ", "))
				}
				if preview > 0 {
					printWorkflows(out, recipe, reg.Names(s), preview)
				}
			}
			if missing == len(servers) {
				return fmt.Errorf("tool discovery failed: %w", registry.ErrNoTools)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&recipeName, "recipe", "r", "", "Group tools by the categories of this recipe")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	cmd.Flags().IntVar(&preview, "workflows", 0, "Also print the first N workflows the recipe builds (shuffled with generation.seed)")
	return cmd
}

func printWorkflows(out io.Writer, recipe *workflow.Recipe, names []string, n int) {
	all := workflow.Build(recipe, names, workflow.NewRand(cfg.Generation.Seed))
	fmt.Fprintf(out, "  workflows (%d total):\n", len(all))
	for _, p := range all[:min(n, len(all))] {
		fmt.Fprintf(out, "    %s -> %s\n", p[0], p[1])
	}
}

func sortedCategories(groups map[workflow.Category][]string) []workflow.Category {
	return slices.Sorted(maps.Keys(groups))
}
