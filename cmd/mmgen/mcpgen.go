package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jordanhubbard/mmgen/internal/api"
	"github.com/jordanhubbard/mmgen/internal/mcpgen"
	"github.com/jordanhubbard/mmgen/internal/provider"
	"github.com/jordanhubbard/mmgen/internal/telemetry"
)

type artifactFlags struct {
	name       string
	backendURL string
	port       int
	output     string
	table      string
}

func (f *artifactFlags) register(cmd *cobra.Command, defaultOutput string) {
	cmd.Flags().StringVar(&f.name, "name", "", "MCP server name (default mcpgen.server_name)")
	cmd.Flags().StringVar(&f.backendURL, "backend-url", "", "Backend base URL (default mcpgen.backend_url, then the document)")
	cmd.Flags().IntVar(&f.port, "port", 0, "HTTP port of the generated server (default mcpgen.port)")
	cmd.Flags().StringVarP(&f.output, "output", "o", defaultOutput, "Generated server file")
	cmd.Flags().StringVar(&f.table, "table", "", "Also write the tool table as JSON to this file")
}

// artifact fills unset flags from config; docURL is the backend found in
// the source document, if any.
func (f *artifactFlags) artifact(docURL string) mcpgen.Artifact {
	a := mcpgen.Artifact{ServerName: f.name, BackendURL: f.backendURL, Port: f.port}
	if a.ServerName == "" {
		a.ServerName = cfg.MCPGen.ServerName
	}
	if a.BackendURL == "" {
		a.BackendURL = cfg.MCPGen.BackendURL
	}
	if a.BackendURL == "" {
		a.BackendURL = docURL
		if docURL != "" {
			log.Printf("[MCPGen] Using backend_url %s from the source document", docURL)
		}
	}
	if a.BackendURL == "" {
		a.BackendURL = mcpgen.DefaultBackendURL
	}
	if a.Port == 0 {
		a.Port = cfg.MCPGen.Port
	}
	return a
}

func (f *artifactFlags) write(cmd *cobra.Command, a mcpgen.Artifact, specs []mcpgen.ToolSpec) error {
	if err := mcpgen.WriteArtifact(f.output, a); err != nil {
		return err
	}
	if f.table != "" {
		if err := mcpgen.WriteTable(f.table, specs); err != nil {
			return fmt.Errorf("failed to write tool table: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated %d tools\nServer written to: %s\n", len(specs), f.output)
	return nil
}

func newMCPGenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcpgen",
		Short: "Generate MCP wrapper servers",
	}
	cmd.AddCommand(newMCPGenOpenAPICommand())
	cmd.AddCommand(newMCPGenTransformationsCommand())
	return cmd
}

func newMCPGenOpenAPICommand() *cobra.Command {
	var f artifactFlags
	cmd := &cobra.Command{
		Use:     "openapi SPEC",
		Short:   "Generate one tool per route of an OpenAPI document",
		Args:    cobra.ExactArgs(1),
		Example: `  mmgen mcpgen openapi openapi.yaml -o generated_mcp_servers/atl_openapi_server.py`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := mcpgen.LoadOpenAPI(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generating tools for %d paths...\n", len(doc.Paths))
			specs := doc.Tools()
			a := f.artifact(doc.BackendURL())
			a.Tools = specs
			return f.write(cmd, a, specs)
		},
	}
	f.register(cmd, "generated_mcp_servers/openapi_server.py")
	return cmd
}

func newMCPGenTransformationsCommand() *cobra.Command {
	var (
		f      artifactFlags
		from   string
		server string
		useLLM bool
	)
	cmd := &cobra.Command{
		Use:   "transformations",
		Short: "Generate apply and list tools for a list of ATL transformations",
		Example: `  mmgen mcpgen transformations --from transformations.yaml
  mmgen mcpgen transformations --server atl_server --llm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := loadTransformations(cmd.Context(), from, server)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				return fmt.Errorf("no transformations found")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d transformations\n", len(list))

			a := f.artifact("")
			var llm provider.Completer
			if useLLM {
				if llm, err = provider.New(cfg.LLM); err != nil {
					log.Printf("[MCPGen] Warning: LLM unavailable, using template: %v", err)
					llm = nil
				}
			}
			block, err := mcpgen.ToolsBlock(cmd.Context(), llm, list, a.BackendURL)
			if err != nil {
				return err
			}
			a.ToolsBlock = block
			return f.write(cmd, a, mcpgen.TransformationTools(list))
		},
	}
	f.register(cmd, "generated_mcp_servers/atl_generated_server.py")
	cmd.Flags().StringVar(&from, "from", "", "YAML or JSON file listing transformations")
	cmd.Flags().StringVar(&server, "server", "", "Recover transformations from the tools of this configured server")
	cmd.Flags().BoolVar(&useLLM, "llm", false, "Have the model write the tools block (template fallback on failure)")
	return cmd
}

func loadTransformations(ctx context.Context, from, server string) ([]mcpgen.Transformation, error) {
	switch {
	case from != "":
		return mcpgen.LoadTransformations(from)
	case server != "":
		tools, err := discoverTools(ctx, server)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(tools))
		for i, t := range tools {
			names[i] = t.Name
		}
		return mcpgen.TransformationsFromTools(names), nil
	default:
		return nil, fmt.Errorf("one of --from or --server is required")
	}
}

func newServeCommand() *cobra.Command {
	var (
		table, openapi, transformations string
		backendURL, httpAddr            string
		useCurl                         bool
		rateLimit                       float64
		noStdio                         bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a tool table as an MCP stdio server with an HTTP tool listing",
		Example: `  mmgen serve --openapi openapi.yaml
  mmgen serve --transformations transformations.yaml --backend-url http://localhost:8080 --curl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, docURL, err := loadToolTable(table, openapi, transformations)
			if err != nil {
				return err
			}
			if backendURL == "" {
				backendURL = cfg.MCPGen.BackendURL
			}
			if backendURL == "" {
				backendURL = docURL
			}
			if !cmd.Flags().Changed("curl") {
				useCurl = cfg.MCPGen.UseCurl
			}
			if !cmd.Flags().Changed("rate-limit") {
				rateLimit = cfg.MCPGen.RateLimit
			}
			if httpAddr == "" {
				httpAddr = fmt.Sprintf(":%d", cfg.MCPGen.Port)
			}

			opts := []mcpgen.DispatcherOption{mcpgen.WithRateLimit(rateLimit)}
			if useCurl {
				opts = append(opts, mcpgen.WithCurl("curl"))
			}
			d := mcpgen.NewDispatcher(backendURL, opts...)
			tb := mcpgen.NewToolbox(specs, d)
			log.Printf("[MCPGen] Serving %d tools against %s", len(tb.Tools()), d.BaseURL())

			return serveToolbox(cmd.Context(), tb, httpAddr, noStdio)
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Tool table JSON written by mcpgen --table")
	cmd.Flags().StringVar(&openapi, "openapi", "", "OpenAPI document to build the table from")
	cmd.Flags().StringVar(&transformations, "transformations", "", "Transformation list to build the table from")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "Backend base URL")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address for /tools (default :mcpgen.port, \"off\" disables)")
	cmd.Flags().BoolVar(&useCurl, "curl", false, "Call the backend through curl instead of natively")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "Maximum backend calls per second (0 = unlimited)")
	cmd.Flags().BoolVar(&noStdio, "no-stdio", false, "Serve HTTP only")
	cmd.MarkFlagsMutuallyExclusive("table", "openapi", "transformations")
	cmd.MarkFlagsOneRequired("table", "openapi", "transformations")
	return cmd
}

func loadToolTable(table, openapi, transformations string) ([]mcpgen.ToolSpec, string, error) {
	switch {
	case table != "":
		specs, err := mcpgen.LoadTable(table)
		return specs, "", err
	case openapi != "":
		doc, err := mcpgen.LoadOpenAPI(openapi)
		if err != nil {
			return nil, "", err
		}
		return doc.Tools(), doc.BackendURL(), nil
	default:
		list, err := mcpgen.LoadTransformations(transformations)
		if err != nil {
			return nil, "", err
		}
		return mcpgen.TransformationTools(list), "", nil
	}
}

func serveToolbox(ctx context.Context, tb *mcpgen.Toolbox, httpAddr string, noStdio bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	if httpAddr != "off" {
		srv := &http.Server{
			Addr:              httpAddr,
			Handler:           otelhttp.NewHandler(api.NewServer(tb, logs).SetupRoutes(), "mmgen-serve-http"),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
		go func() {
			log.Printf("[API] Tool listing on %s/tools", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http listener: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	if noStdio {
		if httpAddr == "off" {
			return fmt.Errorf("nothing to serve: stdio and http both disabled")
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		}
	}

	s := mcpgen.NewMCPServer(cfg.MCPGen.ServerName, telemetry.Version, tb)
	go func() { errCh <- mcpgen.ServeStdio(s) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
