// Package registry discovers the tools exposed by each configured server.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/jordanhubbard/mmgen/internal/metrics"
)

var (
	// ErrNoTools is returned when a server has no discovered tools.
	ErrNoTools = errors.New("no tools discovered")
	// ErrToolNotFound is returned when a tool name is not registered.
	ErrToolNotFound = errors.New("tool not found")
)

// Tool describes one callable tool.
type Tool struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required,omitempty"`
}

// Source yields the tools of one server.
type Source interface {
	Server() string
	Discover(ctx context.Context) ([]Tool, error)
}

// Registry maps server names to their tools.
type Registry struct {
	mu            sync.RWMutex
	toolsByServer map[string][]Tool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{toolsByServer: make(map[string][]Tool)}
}

// Register replaces the tools known for server.
func (r *Registry) Register(server string, tools []Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolsByServer[server] = append([]Tool(nil), tools...)
}

// ToolsByServer returns the tools of server in discovery order.
func (r *Registry) ToolsByServer(server string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.toolsByServer[server]...)
}

// Names returns the tool names of server in discovery order.
func (r *Registry) Names(server string) []string {
	tools := r.ToolsByServer(server)
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}

// Tool looks up a single tool.
func (r *Registry) Tool(server, name string) (Tool, error) {
	for _, t := range r.ToolsByServer(server) {
		if t.Name == name {
			return t, nil
		}
	}
	return Tool{}, fmt.Errorf("%s on %s: %w", name, server, ErrToolNotFound)
}

// Servers returns the registered server names, sorted.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.toolsByServer))
	for s := range r.toolsByServer {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Populate runs every source once. A failing source is logged and skipped.
func (r *Registry) Populate(ctx context.Context, sources []Source) {
	m := metrics.NewMetrics()
	for _, src := range sources {
		tools, err := src.Discover(ctx)
		if err != nil {
			log.Printf("[Registry] Warning: discovery failed for %s: %v", src.Server(), err)
			continue
		}
		r.Register(src.Server(), tools)
		m.ToolsDiscovered.WithLabelValues(src.Server()).Set(float64(len(tools)))
		log.Printf("[Registry] Discovered %d tools on %s", len(tools), src.Server())
	}
}

// Require returns the tools of server, failing when none were discovered.
func (r *Registry) Require(server string) ([]Tool, error) {
	tools := r.ToolsByServer(server)
	if len(tools) == 0 {
		return nil, fmt.Errorf("server %s: %w", server, ErrNoTools)
	}
	return tools, nil
}
