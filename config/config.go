package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LLMProviderConfig configures one named LLM capability provider
// (spec §4.4 "llm" tool).
type LLMProviderConfig struct {
	Type        string  `yaml:"type"` // "echo" (deterministic test double), "http"
	Model       string  `yaml:"model"`
	Host        string  `yaml:"host"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SetDefaults fills LLM provider defaults.
func (c *LLMProviderConfig) SetDefaults(defaultModel string) {
	if c.Type == "" {
		c.Type = "echo"
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
}

// Validate validates an LLMProviderConfig.
func (c *LLMProviderConfig) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("type is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2]")
	}
	return nil
}

// ToolQuotaConfig configures the Tool Broker's per-(tenant,tool) token
// bucket (spec §4.4, §4.9).
type ToolQuotaConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SetDefaults fills ToolQuotaConfig defaults.
func (c *ToolQuotaConfig) SetDefaults() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond * 2)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
}

// Config is the single entry point for process configuration: global
// tunables, registered LLM/tool providers, and (for local/test
// deployments) an inline seed of domains and agents. In a production
// deployment, domains and agents instead come from the external config
// store (spec §1); configstore.NewMemoryStoreFromConfig adapts this struct
// to that interface for local development and tests.
type Config struct {
	Global GlobalSettings `yaml:"global"`

	LLMs        map[string]LLMProviderConfig `yaml:"llms,omitempty"`
	ToolQuotas  map[string]ToolQuotaConfig   `yaml:"tool_quotas,omitempty"`

	// Domains/Agents are keyed "tenant_id/id" for inline (dev/test) seeding.
	Domains map[string]DomainConfig    `yaml:"domains,omitempty"`
	Agents  map[string]AgentDefinition `yaml:"agents,omitempty"`
}

// SetDefaults applies defaults across the whole configuration tree.
func (c *Config) SetDefaults() {
	c.Global.SetDefaults()
	for name, llm := range c.LLMs {
		llm.SetDefaults(c.Global.DefaultModelID)
		c.LLMs[name] = llm
	}
	for name, q := range c.ToolQuotas {
		q.SetDefaults()
		c.ToolQuotas[name] = q
	}
	for id, a := range c.Agents {
		a.SetDefaults()
		c.Agents[id] = a
	}
}

// Validate validates the whole configuration tree.
func (c *Config) Validate() error {
	if err := c.Global.Validate(); err != nil {
		return fmt.Errorf("global settings: %w", err)
	}
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}
	for id, d := range c.Domains {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("domain %q: %w", id, err)
		}
	}
	for id, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", id, err)
		}
	}
	return nil
}

// LoadConfig reads and parses a YAML configuration file, applying
// environment overlays (see env.go) and defaults, then validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	ApplyEnvOverlay(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
