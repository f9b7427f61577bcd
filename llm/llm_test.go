package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/llm"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/tool"
)

func TestEchoProvider_EchoesRequestTextUnderField(t *testing.T) {
	p := llm.NewEchoProvider("echo", "label")
	resp, err := p.Invoke(context.Background(), tool.Request{Text: "pothole on 5th ave"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &out))
	require.Equal(t, "pothole on 5th ave", out["label"])
	require.Equal(t, 1.0, out["confidence"])
}

func TestEchoProvider_PrefersEchoTextParamOverRequestText(t *testing.T) {
	p := llm.NewEchoProvider("echo", "")
	resp, err := p.Invoke(context.Background(), tool.Request{
		Text:   "full rendered prompt with system instructions",
		Params: map[string]any{"echo_text": "pothole on 5th ave"},
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &out))
	require.Equal(t, "pothole on 5th ave", out["label"])
}

func TestHTTPProvider_InvokeReturnsCompletionText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"label\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	p := llm.NewHTTPProvider("test", config.LLMProviderConfig{Type: "http", Model: "m", Host: srv.URL, MaxTokens: 64})
	resp, err := p.Invoke(context.Background(), tool.Request{Text: "prompt"})
	require.NoError(t, err)
	require.Equal(t, `{"label":"x"}`, resp.Text)
}

func TestHTTPProvider_5xxIsToolBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := llm.NewHTTPProvider("test", config.LLMProviderConfig{Host: srv.URL})
	_, err := p.Invoke(context.Background(), tool.Request{Text: "prompt"})
	require.True(t, orcherr.Is(err, orcherr.ToolBusy))
}

func TestRegistry_CreateFromConfig(t *testing.T) {
	r := llm.NewRegistry()
	p, err := r.CreateFromConfig("default", config.LLMProviderConfig{Type: "echo"})
	require.NoError(t, err)
	require.Equal(t, "default", p.Name())

	got, ok := r.Get("default")
	require.True(t, ok)
	require.Same(t, p, got)
}
