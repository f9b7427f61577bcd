package configstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcflow/orchestrator/config"
)

// PostgresStore implements Store on top of an externally-owned
// *pgxpool.Pool. The caller creates and closes the pool; PostgresStore only
// runs queries against it, following the common pgx-adapter convention of
// constructor-injected pools.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the domains/agents tables. Safe to call repeatedly.
func (s *PostgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS domains (
			tenant_id TEXT NOT NULL,
			domain_id TEXT NOT NULL,
			body JSONB NOT NULL,
			PRIMARY KEY (tenant_id, domain_id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_definitions (
			tenant_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			body JSONB NOT NULL,
			PRIMARY KEY (tenant_id, agent_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("configstore: init: %w", err)
		}
	}
	return nil
}

// PutDomain upserts a domain definition.
func (s *PostgresStore) PutDomain(ctx context.Context, d config.DomainConfig) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("configstore: marshal domain: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO domains (tenant_id, domain_id, body) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, domain_id) DO UPDATE SET body = EXCLUDED.body
	`, d.TenantID, d.DomainID, body)
	if err != nil {
		return fmt.Errorf("configstore: put domain: %w", err)
	}
	return nil
}

// PutAgent upserts an agent definition. is_builtin rows are immutable per
// spec §3 and this call rejects overwriting one.
func (s *PostgresStore) PutAgent(ctx context.Context, a config.AgentDefinition) error {
	var existingBuiltin bool
	err := s.pool.QueryRow(ctx, `
		SELECT (body->>'is_builtin')::boolean FROM agent_definitions
		WHERE tenant_id = $1 AND agent_id = $2
	`, a.TenantID, a.AgentID).Scan(&existingBuiltin)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("configstore: check existing agent: %w", err)
	}
	if existingBuiltin {
		return fmt.Errorf("configstore: agent %s/%s is builtin and immutable", a.TenantID, a.AgentID)
	}

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("configstore: marshal agent: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_definitions (tenant_id, agent_id, version, body) VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, agent_id) DO UPDATE SET body = EXCLUDED.body, version = EXCLUDED.version
	`, a.TenantID, a.AgentID, a.Version, body)
	if err != nil {
		return fmt.Errorf("configstore: put agent: %w", err)
	}
	return nil
}

// GetDomain implements Store.
func (s *PostgresStore) GetDomain(ctx context.Context, tenantID, domainID string) (*config.DomainConfig, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM domains WHERE tenant_id = $1 AND domain_id = $2
	`, tenantID, domainID).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configstore: get domain: %w", err)
	}

	var d config.DomainConfig
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("configstore: unmarshal domain: %w", err)
	}
	return &d, nil
}

// GetAgents implements Store.
func (s *PostgresStore) GetAgents(ctx context.Context, tenantID string, agentIDs []string) (map[string]config.AgentDefinition, error) {
	out := make(map[string]config.AgentDefinition, len(agentIDs))
	if len(agentIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT agent_id, body FROM agent_definitions
		WHERE tenant_id = $1 AND agent_id = ANY($2)
	`, tenantID, agentIDs)
	if err != nil {
		return nil, fmt.Errorf("configstore: get agents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("configstore: scan agent: %w", err)
		}
		var a config.AgentDefinition
		if err := json.Unmarshal(body, &a); err != nil {
			return nil, fmt.Errorf("configstore: unmarshal agent %s: %w", id, err)
		}
		out[id] = a
	}
	return out, rows.Err()
}
