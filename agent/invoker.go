// Package agent implements the Agent Invoker (spec §4.3): deterministic
// prompt assembly, a single call through the Tool Broker, and the robust
// JSON parsing/validation pipeline that turns a raw tool reply into a
// schema-conforming output map.
//
// Dynamic dispatch of agents is data, not subclassing (spec §9): an
// AgentDefinition is a record, and Invoke is a single function over it,
// keeping declarative agent data separate from the uniform execution path
// that drives it.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/retry"
	"github.com/arcflow/orchestrator/tool"
)

// Input is the per-node input bundle the DAG Scheduler assembles (spec §4.2
// "Each node's input bundle").
type Input struct {
	JobInput      config.JobInput
	ParentOutputs map[string]map[string]any // agent_id -> output
}

// Result is the outcome of invoking a single agent (spec §4.3 "Output").
type Result struct {
	AgentID  string
	Output   map[string]any
	Status   string // "completed" | "failed" | "parse_failed"
	Attempts int
	Duration time.Duration
}

const defaultLLMConfidence = 0.5

// Broker is the subset of tool.Broker the Agent Invoker depends on.
type Broker interface {
	Invoke(ctx context.Context, tenantID, toolName string, req tool.Request) (tool.Response, error)
}

// Invoker executes a single agent through a Tool Broker.
type Invoker struct {
	Broker      Broker
	RetryPolicy retry.Policy
}

// NewInvoker builds an Invoker bound to broker with the given retry policy.
func NewInvoker(broker Broker, policy retry.Policy) *Invoker {
	return &Invoker{Broker: broker, RetryPolicy: policy}
}

// Invoke runs def against in, returning a Result. It never returns a
// non-nil error for a tool/parse failure — those are represented as
// Result.Status. The only errors it returns are AgentFailed for a strict
// agent abort (the caller, the DAG Scheduler, applies the strict-vs-soft
// failure policy) and AgentMissing for an agent that declares no tools.
func (inv *Invoker) Invoke(ctx context.Context, tenantID string, def config.AgentDefinition, in Input) (Result, error) {
	start := time.Now()
	prompt, echoText := assemblePrompt(def, in)

	if len(def.Tools) == 0 {
		return Result{AgentID: def.AgentID, Status: "failed", Duration: time.Since(start)},
			orcherr.New(orcherr.AgentMissing, "agent", "Invoke", "agent "+def.AgentID+" declares no tools", nil)
	}
	toolName := def.Tools[0]

	var resp tool.Response
	attempts := 0
	err := inv.RetryPolicy.Do(ctx, func() error {
		attempts++
		r, err := inv.Broker.Invoke(ctx, tenantID, toolName, tool.Request{
			Text:   prompt,
			Params: map[string]any{"echo_text": echoText},
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	duration := time.Since(start)
	if err != nil {
		if def.Strict {
			return Result{AgentID: def.AgentID, Status: "failed", Attempts: attempts, Duration: duration},
				orcherr.New(orcherr.AgentFailed, "agent", "Invoke", "strict agent "+def.AgentID+" failed", err)
		}
		return Result{AgentID: def.AgentID, Status: "failed", Attempts: attempts, Duration: duration}, nil
	}

	output, status := parseAndValidate(resp.Text, def.OutputSchema)
	return Result{AgentID: def.AgentID, Output: output, Status: status, Attempts: attempts, Duration: duration}, nil
}

// assemblePrompt builds the deterministic prompt string of spec §4.3 and
// returns alongside it the bare job input text, for EchoProvider's benefit.
func assemblePrompt(def config.AgentDefinition, in Input) (prompt string, echoText string) {
	var b strings.Builder

	b.WriteString(def.SystemPrompt)
	b.WriteString("\n\n")

	echoText = jobInputText(in.JobInput)
	b.WriteString("## Input\n")
	b.WriteString(renderJobInput(in.JobInput))
	b.WriteString("\n\n")

	if len(in.ParentOutputs) > 0 {
		b.WriteString("## Parent outputs\n")
		b.WriteString(renderParentOutputs(in.ParentOutputs))
		b.WriteString("\n\n")
	}

	b.WriteString("## Output schema\n")
	b.WriteString(renderOutputSchema(def.OutputSchema))
	b.WriteString("\nRespond with JSON conforming to the schema above. No prose.\n")

	return b.String(), echoText
}

func jobInputText(in config.JobInput) string {
	if in.Text != "" {
		return in.Text
	}
	return in.Question
}

func renderJobInput(in config.JobInput) string {
	raw, _ := json.Marshal(sortedJobInput(in))
	return string(raw)
}

// sortedJobInput re-expresses JobInput as a map so json.Marshal's natural
// key-sort (Go sorts map[string]any keys alphabetically) gives a stable,
// replayable serialisation (spec §4.3 "sorted lexicographically").
func sortedJobInput(in config.JobInput) map[string]any {
	m := map[string]any{}
	if in.Text != "" {
		m["text"] = in.Text
	}
	if in.Question != "" {
		m["question"] = in.Question
	}
	if in.RecordID != "" {
		m["record_id"] = in.RecordID
	}
	if len(in.Filters) > 0 {
		m["filters"] = in.Filters
	}
	if len(in.ImageRefs) > 0 {
		m["image_refs"] = in.ImageRefs
	}
	if len(in.ClarificationAnswers) > 0 {
		m["clarification_answers"] = in.ClarificationAnswers
	}
	return m
}

func renderParentOutputs(parents map[string]map[string]any) string {
	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ordered := make(map[string]any, len(ids))
	for _, id := range ids {
		ordered[id] = parents[id]
	}
	raw, _ := json.Marshal(ordered)
	return string(raw)
}

func renderOutputSchema(schema map[string]config.FieldType) string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %q", k, schema[k])
	}
	b.WriteString("}")
	return b.String()
}

// parseAndValidate implements spec §4.3's Parsing and Validation rules.
func parseAndValidate(raw string, schema map[string]config.FieldType) (map[string]any, string) {
	parsed, ok := tryParseJSON(raw)
	if !ok {
		return map[string]any{}, "parse_failed"
	}
	return validate(parsed, schema), "completed"
}

// tryParseJSON implements the three-step robustness chain of spec §4.3.
func tryParseJSON(raw string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		return m, true
	}

	if sub, ok := longestBracketedSubstring(raw); ok {
		if err := json.Unmarshal([]byte(sub), &m); err == nil {
			return m, true
		}
	}
	return nil, false
}

// longestBracketedSubstring returns the longest substring of s bounded by a
// '{' and its matching closing '}' at the same nesting depth.
func longestBracketedSubstring(s string) (string, bool) {
	best := ""
	depth := 0
	start := -1
	for i, r := range s {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidate := s[start : i+1]
					if len(candidate) > len(best) {
						best = candidate
					}
				}
			}
		}
	}
	return best, best != ""
}

// validate applies spec §4.3's Validation rules: drop unknown keys, fill
// missing keys with type-appropriate zero values, coerce numeric strings,
// and clamp confidence into [0,1] (defaulting to defaultLLMConfidence).
func validate(parsed map[string]any, schema map[string]config.FieldType) map[string]any {
	out := make(map[string]any, len(schema))
	for key, ft := range schema {
		v, present := parsed[key]
		if !present {
			out[key] = ft.ZeroValue()
			continue
		}
		out[key] = coerce(v, ft)
	}

	conf, ok := out[config.ConfidenceKey].(float64)
	if !ok {
		if s, isStr := out[config.ConfidenceKey].(string); isStr {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				conf = f
				ok = true
			}
		}
	}
	if !ok {
		conf = defaultLLMConfidence
	}
	out[config.ConfidenceKey] = clamp01(conf)

	return out
}

func coerce(v any, ft config.FieldType) any {
	switch ft {
	case config.FieldTypeNumber:
		switch t := v.(type) {
		case float64:
			return t
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f
			}
			return 0.0
		default:
			return 0.0
		}
	case config.FieldTypeString:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case config.FieldTypeBool:
		if b, ok := v.(bool); ok {
			return b
		}
		return false
	case config.FieldTypeArray:
		if a, ok := v.([]any); ok {
			return a
		}
		return []any{}
	case config.FieldTypeObject:
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	default:
		return v
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
