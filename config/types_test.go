package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/config"
)

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	edges := []config.PlaybookEdge{{From: "a", To: "b"}, {From: "b", To: "c"}, {From: "c", To: "a"}}

	_, err := config.TopologicalOrder(nodes, edges)
	require.Error(t, err)
}

func TestTopologicalOrder_OrdersParentsBeforeChildren(t *testing.T) {
	nodes := []string{"priority", "severity"}
	edges := []config.PlaybookEdge{{From: "severity", To: "priority"}}

	order, err := config.TopologicalOrder(nodes, edges)
	require.NoError(t, err)

	var severityIdx, priorityIdx int
	for i, n := range order {
		switch n {
		case "severity":
			severityIdx = i
		case "priority":
			priorityIdx = i
		}
	}
	require.Less(t, severityIdx, priorityIdx)
}

func TestPlaybookConfig_Validate(t *testing.T) {
	t.Run("empty is valid (disabled)", func(t *testing.T) {
		p := config.PlaybookConfig{}
		require.True(t, p.Disabled())
		require.NoError(t, p.Validate())
	})

	t.Run("edge referencing unknown node fails", func(t *testing.T) {
		p := config.PlaybookConfig{
			Nodes: []string{"a"},
			Edges: []config.PlaybookEdge{{From: "a", To: "ghost"}},
		}
		require.Error(t, p.Validate())
	})

	t.Run("isolated root passes, cycle fails", func(t *testing.T) {
		p := config.PlaybookConfig{
			Nodes: []string{"a", "b", "c"},
			Edges: []config.PlaybookEdge{{From: "a", To: "b"}},
		}
		// c has no parent and is itself a root, so it's trivially reachable
		// from itself. In an acyclic graph every node is reachable from some
		// root, so the failing case below is a cycle.
		require.NoError(t, p.Validate())

		p2 := config.PlaybookConfig{
			Nodes: []string{"a", "b"},
			Edges: []config.PlaybookEdge{{From: "a", To: "b"}, {From: "b", To: "a"}},
		}
		require.Error(t, p2.Validate(), "cyclic graph must fail")
	})

	t.Run("valid DAG passes", func(t *testing.T) {
		p := config.PlaybookConfig{
			Nodes: []string{"severity", "priority"},
			Edges: []config.PlaybookEdge{{From: "severity", To: "priority"}},
		}
		require.NoError(t, p.Validate())
	})
}

func TestAgentDefinition_Validate(t *testing.T) {
	a := config.AgentDefinition{
		AgentID:    "geo",
		TenantID:   "t1",
		AgentClass: config.AgentClassIngestion,
	}
	a.SetDefaults()
	require.NoError(t, a.Validate())
	require.Equal(t, 1.0, a.Weight)
	require.Contains(t, a.OutputSchema, config.ConfidenceKey)

	bad := a
	bad.AgentClass = "nonsense"
	require.Error(t, bad.Validate())

	bad2 := a
	bad2.Weight = -1
	require.Error(t, bad2.Validate())
}

func TestGlobalSettings_Defaults(t *testing.T) {
	var g config.GlobalSettings
	g.SetDefaults()
	require.Equal(t, 4, g.MaxParallelAgents)
	require.Equal(t, 3, g.AgentRetries)
	require.NoError(t, g.Validate())
}
