package llm

import (
	"fmt"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/registry"
	"github.com/arcflow/orchestrator/tool"
)

// Registry holds named "llm" tool.Provider instances: register-by-name
// over a generic base registry, plus a config-driven constructor.
type Registry struct {
	*registry.BaseRegistry[tool.Provider]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[tool.Provider]()}
}

// CreateFromConfig builds and registers a provider named name from cfg.
// cfg.Type selects the concrete implementation: "echo" (deterministic test
// double) or "http" (OpenAI-compatible chat completions endpoint).
func (r *Registry) CreateFromConfig(name string, cfg config.LLMProviderConfig) (tool.Provider, error) {
	var p tool.Provider
	switch cfg.Type {
	case "echo", "":
		p = NewEchoProvider(name, "")
	case "http":
		p = NewHTTPProvider(name, cfg)
	default:
		return nil, fmt.Errorf("llm: unsupported provider type %q", cfg.Type)
	}
	if err := r.Register(name, p); err != nil {
		return nil, fmt.Errorf("llm: register %q: %w", name, err)
	}
	return p, nil
}
