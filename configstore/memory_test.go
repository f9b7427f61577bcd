package configstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/configstore"
)

func TestMemoryStore_GetDomain_MissReturnsNilNotError(t *testing.T) {
	s := configstore.NewMemoryStore()
	d, err := s.GetDomain(context.Background(), "acme", "civic_complaints")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestMemoryStore_PutAndGetDomain(t *testing.T) {
	s := configstore.NewMemoryStore()
	s.PutDomain(config.DomainConfig{TenantID: "acme", DomainID: "civic_complaints", DomainName: "Civic Complaints"})

	d, err := s.GetDomain(context.Background(), "acme", "civic_complaints")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "Civic Complaints", d.DomainName)

	// A different tenant does not see it.
	d2, err := s.GetDomain(context.Background(), "other", "civic_complaints")
	require.NoError(t, err)
	require.Nil(t, d2)
}

func TestMemoryStore_GetAgents_BatchWithMisses(t *testing.T) {
	s := configstore.NewMemoryStore()
	s.PutAgent(config.AgentDefinition{TenantID: "acme", AgentID: "geo", AgentClass: config.AgentClassIngestion})

	got, err := s.GetAgents(context.Background(), "acme", []string{"geo", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got, "geo")
}
