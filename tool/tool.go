// Package tool defines the uniform capability-provider interface behind
// which the Tool Broker hides concrete LLM, geocoder, classifier, and
// custom providers (spec §4.4 "Tool Broker", §9 "Tools are behind a
// capability interface").
package tool

import "context"

// Request is what the Agent Invoker passes to a tool. Text carries the
// rendered prompt (for llm) or raw input text (for geocoder/classifier);
// Params carries request-level parameters such as temperature/max_tokens.
type Request struct {
	Text   string
	Params map[string]any
}

// Response is a tool's raw reply before Agent Invoker parsing/validation.
// Text is the provider's text-in/text-out payload (the LLM's completion,
// or a JSON-encoded structured reply for geocoder/classifier).
type Response struct {
	Text string
}

// Provider is a concrete capability behind a tool name (spec §4.4).
type Provider interface {
	Invoke(ctx context.Context, req Request) (Response, error)
	Name() string
}
