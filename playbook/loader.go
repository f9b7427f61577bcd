// Package playbook implements the Playbook Loader (spec §4.1): resolving a
// (tenant_id, domain_id, job_type) triple into a ResolvedPlaybook with every
// agent definition it needs already materialised, so the DAG Scheduler
// never has to perform I/O mid-execution.
package playbook

import (
	"context"
	"fmt"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/configstore"
	"github.com/arcflow/orchestrator/orcherr"
)

// ResolvedPlaybook is everything the DAG Scheduler needs to execute a
// playbook without further I/O (spec §4.1 step 5).
type ResolvedPlaybook struct {
	Agents map[string]config.AgentDefinition // agent_id -> definition
	Edges  []config.PlaybookEdge
	Nodes  []string
}

// Loader resolves playbooks against a configstore.Store.
type Loader struct {
	Store configstore.Store
}

// NewLoader builds a Loader over store.
func NewLoader(store configstore.Store) *Loader {
	return &Loader{Store: store}
}

// Load implements spec §4.1's five-step resolution.
func (l *Loader) Load(ctx context.Context, tenantID, domainID string, jobType config.JobType) (*ResolvedPlaybook, error) {
	domain, err := l.loadDomain(ctx, tenantID, domainID)
	if err != nil {
		return nil, err
	}

	pb, err := domain.PlaybookFor(jobType)
	if err != nil {
		return nil, orcherr.New(orcherr.BadEnvelope, "playbook", "Load", err.Error(), err)
	}

	if pb.Disabled() {
		return nil, orcherr.New(orcherr.PlaybookDisabled, "playbook", "Load",
			fmt.Sprintf("domain %s has no %s playbook", domainID, jobType), nil)
	}

	agents, err := l.loadAgents(ctx, tenantID, pb.Nodes)
	if err != nil {
		return nil, err
	}

	return &ResolvedPlaybook{Agents: agents, Edges: pb.Edges, Nodes: pb.Nodes}, nil
}

// loadDomain implements step 1: tenant lookup, then system-tenant fallback.
func (l *Loader) loadDomain(ctx context.Context, tenantID, domainID string) (*config.DomainConfig, error) {
	d, err := l.Store.GetDomain(ctx, tenantID, domainID)
	if err != nil {
		return nil, orcherr.New(orcherr.StoreUnavailable, "playbook", "loadDomain", "config store read failed", err)
	}
	if d != nil {
		return d, nil
	}

	if tenantID != config.SystemTenant {
		d, err = l.Store.GetDomain(ctx, config.SystemTenant, domainID)
		if err != nil {
			return nil, orcherr.New(orcherr.StoreUnavailable, "playbook", "loadDomain", "config store read failed", err)
		}
		if d != nil {
			return d, nil
		}
	}

	return nil, orcherr.New(orcherr.DomainNotFound, "playbook", "loadDomain",
		fmt.Sprintf("domain %q not found for tenant %q or system", domainID, tenantID), nil)
}

// loadAgents implements step 4: batch-load by tenant, then fall back to the
// system tenant for any ids still missing.
func (l *Loader) loadAgents(ctx context.Context, tenantID string, agentIDs []string) (map[string]config.AgentDefinition, error) {
	found, err := l.Store.GetAgents(ctx, tenantID, agentIDs)
	if err != nil {
		return nil, orcherr.New(orcherr.StoreUnavailable, "playbook", "loadAgents", "config store read failed", err)
	}

	missing := missingIDs(agentIDs, found)
	if len(missing) > 0 && tenantID != config.SystemTenant {
		systemFound, err := l.Store.GetAgents(ctx, config.SystemTenant, missing)
		if err != nil {
			return nil, orcherr.New(orcherr.StoreUnavailable, "playbook", "loadAgents", "config store read failed", err)
		}
		for id, a := range systemFound {
			found[id] = a
		}
		missing = missingIDs(agentIDs, found)
	}

	if len(missing) > 0 {
		return nil, orcherr.New(orcherr.AgentMissing, "playbook", "loadAgents",
			fmt.Sprintf("agent ids not found: %v", missing), nil)
	}
	return found, nil
}

func missingIDs(want []string, have map[string]config.AgentDefinition) []string {
	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
