// Package configstore defines the narrow, read-only interface the core uses
// to resolve agent and domain definitions (spec §1 "configuration store",
// §6 "Config Store interface"), plus two adapters: an in-memory store for
// tests/local development and a Postgres-backed store for a real
// deployment. System-tenant fallback is NOT implemented here — per spec
// §4.1 that belongs to the Playbook Loader, so this interface always does
// exact-tenant lookups.
package configstore

import (
	"context"

	"github.com/arcflow/orchestrator/config"
)

// Store is the read-only interface the core requires of its configuration
// collaborator (spec §6).
type Store interface {
	// GetDomain returns the domain config for (tenantID, domainID), or nil
	// (with a nil error) if absent.
	GetDomain(ctx context.Context, tenantID, domainID string) (*config.DomainConfig, error)

	// GetAgents resolves a batch of agent ids scoped to tenantID. Missing
	// ids are simply absent from the returned map; this is not an error.
	GetAgents(ctx context.Context, tenantID string, agentIDs []string) (map[string]config.AgentDefinition, error)
}
