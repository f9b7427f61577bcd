package configstore

import (
	"context"
	"sync"

	"github.com/arcflow/orchestrator/config"
)

// MemoryStore is an in-memory Store, useful for tests and for bootstrapping
// a single-process deployment from an inline config.Config.
type MemoryStore struct {
	mu      sync.RWMutex
	domains map[string]config.DomainConfig    // key: tenantID + "/" + domainID
	agents  map[string]config.AgentDefinition // key: tenantID + "/" + agentID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		domains: make(map[string]config.DomainConfig),
		agents:  make(map[string]config.AgentDefinition),
	}
}

// NewMemoryStoreFromConfig seeds a MemoryStore from an inline config.Config
// (config.Config.Domains/Agents, keyed "tenant_id/id").
func NewMemoryStoreFromConfig(cfg *config.Config) *MemoryStore {
	s := NewMemoryStore()
	for _, d := range cfg.Domains {
		s.PutDomain(d)
	}
	for _, a := range cfg.Agents {
		s.PutAgent(a)
	}
	return s
}

func key(tenantID, id string) string { return tenantID + "/" + id }

// PutDomain upserts a domain definition.
func (s *MemoryStore) PutDomain(d config.DomainConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[key(d.TenantID, d.DomainID)] = d
}

// PutAgent upserts an agent definition.
func (s *MemoryStore) PutAgent(a config.AgentDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[key(a.TenantID, a.AgentID)] = a
}

// GetDomain implements Store.
func (s *MemoryStore) GetDomain(_ context.Context, tenantID, domainID string) (*config.DomainConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.domains[key(tenantID, domainID)]
	if !ok {
		return nil, nil
	}
	out := d
	return &out, nil
}

// GetAgents implements Store.
func (s *MemoryStore) GetAgents(_ context.Context, tenantID string, agentIDs []string) (map[string]config.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]config.AgentDefinition, len(agentIDs))
	for _, id := range agentIDs {
		if a, ok := s.agents[key(tenantID, id)]; ok {
			out[id] = a
		}
	}
	return out, nil
}
