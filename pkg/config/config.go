package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "MMGEN_CONFIG"

// DefaultOpenAIModel is used when neither the config file nor OPENAI_MODEL names a model.
const DefaultOpenAIModel = "gpt-5-nano-2025-08-07"

// Config represents the main configuration for mmgen.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Servers    []ServerConfig   `yaml:"servers"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Export     ExportConfig     `yaml:"export"`
	MCPGen     MCPGenConfig     `yaml:"mcpgen"`
}

// LLMConfig configures the language model used to synthesize instructions
type LLMConfig struct {
	Type        string        `yaml:"type"` // openai, local, anthropic, ollama
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// GenerationConfig controls a dataset generation run
type GenerationConfig struct {
	Recipe           string        `yaml:"recipe"` // "emf", "atl" or a path to a recipe YAML file
	Target           int           `yaml:"target"`
	OutputFile       string        `yaml:"output_file"`
	RemainderFile    string        `yaml:"remainder_file"`
	SaveEvery        int           `yaml:"save_every"`
	LLMMaxCalls      int           `yaml:"llm_max_calls"` // 0 = twice the remainder needed
	Pause            time.Duration `yaml:"pause"`
	ErrorBackoff     time.Duration `yaml:"error_backoff"`
	Seed             int64         `yaml:"seed"` // 0 = time seeded
	CyclePools       bool          `yaml:"cycle_pools"`
	TemplateFallback bool          `yaml:"template_fallback"`
	SeedsFile        string        `yaml:"seeds_file"`
	WatchSeeds       bool          `yaml:"watch_seeds"`
}

// ServerConfig describes one tool server the megamodel registry discovers
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // stdio, http, static
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`
	Tools     []StaticTool      `yaml:"tools"`
}

// StaticTool is a tool descriptor declared directly in the config file
type StaticTool struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Required    []string `yaml:"required,omitempty"`
}

// DedupConfig selects the shared instruction index
type DedupConfig struct {
	Backend  string `yaml:"backend"` // "memory" or "redis"
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
}

// EventsConfig configures record event publishing over NATS
type EventsConfig struct {
	NatsURL       string        `yaml:"nats_url"` // empty disables publishing
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// MetricsConfig configures the Prometheus listener
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty disables the listener
}

// TelemetryConfig configures OpenTelemetry tracing
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty disables the exporter
	ServiceName  string `yaml:"service_name"`
}

// ExportConfig configures dataset export to PostgreSQL
type ExportConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// MCPGenConfig configures generated MCP wrapper servers
type MCPGenConfig struct {
	ServerName string  `yaml:"server_name"`
	BackendURL string  `yaml:"backend_url"` // empty = derive from the OpenAPI document
	Port       int     `yaml:"port"`
	UseCurl    bool    `yaml:"use_curl"`
	RateLimit  float64 `yaml:"rate_limit"` // backend requests per second when serving, 0 = unlimited
}

// LoadConfigFromFile loads configuration from a YAML file at the specified path.
// Values missing from the file keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${OPENAI_API_KEY}) before parsing YAML
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ApplyEnv()

	return cfg, nil
}

// Load reads the config at path, falling back to MMGEN_CONFIG and then to defaults
// when no file is named.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		cfg := DefaultConfig()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return LoadConfigFromFile(path)
}

// ApplyEnv fills credentials and model names that were left empty from the
// conventional provider environment variables.
func (c *Config) ApplyEnv() {
	switch c.LLM.Type {
	case "anthropic":
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if c.LLM.Model == "" {
			c.LLM.Model = os.Getenv("ANTHROPIC_MODEL")
		}
	default:
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if c.LLM.Model == "" {
			c.LLM.Model = os.Getenv("OPENAI_MODEL")
		}
		if c.LLM.Model == "" && c.LLM.Type == "openai" {
			c.LLM.Model = DefaultOpenAIModel
		}
	}
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
}

// Server returns the configured server with the given name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Type:        "openai",
			Endpoint:    "https://api.openai.com/v1",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Generation: GenerationConfig{
			Recipe:        "emf",
			Target:        250,
			OutputFile:    "outputs/emf_multi_250_dataset.json",
			RemainderFile: "outputs/emf_multi_250_remainder.json",
			SaveEvery:     10,
			Pause:         400 * time.Millisecond,
			ErrorBackoff:  1500 * time.Millisecond,
			CyclePools:    true,
		},
		Dedup: DedupConfig{
			Backend: "memory",
			Key:     "mmgen:instructions",
		},
		Events: EventsConfig{
			SubjectPrefix: "mmgen",
			Timeout:       10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mmgen",
		},
		Export: ExportConfig{
			Table: "dataset_records",
		},
		MCPGen: MCPGenConfig{
			ServerName: "atl_openapi",
			Port:       8081,
		},
	}
}
