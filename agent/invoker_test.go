package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/agent"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/llm"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/retry"
	"github.com/arcflow/orchestrator/tool"
)

func echoDef() config.AgentDefinition {
	return config.AgentDefinition{
		AgentID:      "classify",
		TenantID:     "acme",
		AgentName:    "Classifier",
		AgentClass:   config.AgentClassIngestion,
		SystemPrompt: "Classify the input.",
		Tools:        []string{"llm"},
		OutputSchema: map[string]config.FieldType{
			"label":      config.FieldTypeString,
			"confidence": config.FieldTypeNumber,
		},
	}
}

type singleToolBroker struct{ provider tool.Provider }

func (b *singleToolBroker) Invoke(ctx context.Context, tenantID, toolName string, req tool.Request) (tool.Response, error) {
	return b.provider.Invoke(ctx, req)
}

func TestInvoker_EchoRoundTrip(t *testing.T) {
	broker := &singleToolBroker{provider: llm.NewEchoProvider("llm", "label")}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{
		JobInput: config.JobInput{Text: "pothole on 5th ave"},
	})
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
	require.Equal(t, "pothole on 5th ave", result.Output["label"])
	require.Equal(t, 1.0, result.Output["confidence"])
}

type staticProvider struct{ text string }

func (p *staticProvider) Name() string { return "llm" }
func (p *staticProvider) Invoke(_ context.Context, _ tool.Request) (tool.Response, error) {
	return tool.Response{Text: p.text}, nil
}

func TestInvoker_StrictJSONParse(t *testing.T) {
	broker := &singleToolBroker{provider: &staticProvider{text: `{"label": "x", "confidence": 0.8}`}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
	require.Equal(t, "x", result.Output["label"])
	require.Equal(t, 0.8, result.Output["confidence"])
}

func TestInvoker_BracketedSubstringFallback(t *testing.T) {
	broker := &singleToolBroker{provider: &staticProvider{
		text: `Sure, here is the result: {"label": "x", "confidence": 0.7} Hope that helps!`,
	}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
	require.Equal(t, "x", result.Output["label"])
}

func TestInvoker_UnparseableYieldsParseFailed(t *testing.T) {
	broker := &singleToolBroker{provider: &staticProvider{text: "not json at all"}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.Equal(t, "parse_failed", result.Status)
	require.Empty(t, result.Output)
}

func TestInvoker_MissingConfidenceDefaultsToHalf(t *testing.T) {
	broker := &singleToolBroker{provider: &staticProvider{text: `{"label": "x"}`}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.Equal(t, 0.5, result.Output["confidence"])
}

func TestInvoker_ConfidenceClampedAndCoercedFromString(t *testing.T) {
	broker := &singleToolBroker{provider: &staticProvider{text: `{"label": "x", "confidence": "1.5"}`}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Output["confidence"])
}

func TestInvoker_UnknownKeysDropped(t *testing.T) {
	broker := &singleToolBroker{provider: &staticProvider{text: `{"label": "x", "confidence": 0.9, "extra": "nope"}`}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.NotContains(t, result.Output, "extra")
}

type alwaysFailsProvider struct{}

func (p *alwaysFailsProvider) Name() string { return "llm" }
func (p *alwaysFailsProvider) Invoke(_ context.Context, _ tool.Request) (tool.Response, error) {
	return tool.Response{}, orcherr.New(orcherr.ToolUnavailable, "llm", "Invoke", "down", nil)
}

func TestInvoker_NonStrictFailureReturnsFailedStatusNoError(t *testing.T) {
	broker := &singleToolBroker{provider: &alwaysFailsProvider{}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	result, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{})
	require.NoError(t, err)
	require.Equal(t, "failed", result.Status)
}

func TestInvoker_StrictFailureReturnsAgentFailedError(t *testing.T) {
	def := echoDef()
	def.Strict = true
	broker := &singleToolBroker{provider: &alwaysFailsProvider{}}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	_, err := inv.Invoke(context.Background(), "acme", def, agent.Input{})
	require.True(t, orcherr.Is(err, orcherr.AgentFailed))
}

func TestInvoker_PromptIncludesSortedParentOutputKeys(t *testing.T) {
	var seen string
	broker := promptCapturingBroker{capture: &seen}
	inv := agent.NewInvoker(broker, retry.DefaultPolicy())

	_, err := inv.Invoke(context.Background(), "acme", echoDef(), agent.Input{
		JobInput: config.JobInput{Text: "t"},
		ParentOutputs: map[string]map[string]any{
			"b_agent": {"x": 1},
			"a_agent": {"y": 2},
		},
	})
	require.NoError(t, err)
	require.Less(t, indexOf(seen, "a_agent"), indexOf(seen, "b_agent"))
}

type promptCapturingBroker struct{ capture *string }

func (b promptCapturingBroker) Invoke(_ context.Context, _, _ string, req tool.Request) (tool.Response, error) {
	*b.capture = req.Text
	return tool.Response{Text: `{"label":"x","confidence":0.9}`}, nil
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
