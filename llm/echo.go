package llm

import (
	"context"
	"encoding/json"

	"github.com/arcflow/orchestrator/tool"
)

// EchoProvider is the deterministic test double spec §8 calls for: "for
// tests, use a deterministic echo tool". It replies with a JSON object
// holding the request's raw text under Field (default "label") plus
// confidence=1.0, so an agent whose output_schema declares {label, confidence}
// and whose job input text is T round-trips to ingestion_data.label == T.
//
// The Agent Invoker may populate req.Params["echo_text"] with the bare job
// input text (as opposed to the full rendered prompt in req.Text); when
// present EchoProvider echoes that instead of req.Text.
type EchoProvider struct {
	name  string
	Field string
}

var _ tool.Provider = (*EchoProvider)(nil)

// NewEchoProvider builds an EchoProvider named name, echoing into Field
// (defaults to "label" if empty).
func NewEchoProvider(name, field string) *EchoProvider {
	if field == "" {
		field = "label"
	}
	return &EchoProvider{name: name, Field: field}
}

func (p *EchoProvider) Name() string { return p.name }

func (p *EchoProvider) Invoke(_ context.Context, req tool.Request) (tool.Response, error) {
	text := req.Text
	if hint, ok := req.Params["echo_text"].(string); ok && hint != "" {
		text = hint
	}

	body, err := json.Marshal(map[string]any{
		p.Field:      text,
		"confidence": 1.0,
	})
	if err != nil {
		return tool.Response{}, err
	}
	return tool.Response{Text: string(body)}, nil
}
