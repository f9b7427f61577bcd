// Package confidence implements the Confidence Aggregator (spec §4.5):
// turning a set of per-agent results into an overall job disposition.
package confidence

import (
	"sort"

	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/scheduler"
)

// Disposition is the aggregator's verdict for a job.
type Disposition string

const (
	Complete              Disposition = "complete"
	AwaitingClarification Disposition = "awaiting_clarification"
)

// AgentView is the subset of per-agent state the aggregator needs: the
// resolved confidence and the schema keys the agent declared, so
// clarification_fields can be derived per spec §4.5.
type AgentView struct {
	AgentID      string
	Confidence   float64
	Status       string // "completed" | "failed" | "parse_failed" | "cancelled"
	Weight       float64
	IsIngestion  bool
	OutputSchema map[string]config.FieldType
}

// Result is the aggregator's output (spec §4.5).
type Result struct {
	JobConfidence       float64
	Disposition         Disposition
	NeedsReview         bool
	LowConfidence       bool
	ClarificationFields []string
}

// Thresholds configures the Complete/Clarify boundaries (spec §4.5). The
// Orchestrator passes one process-wide value; there is no per-domain or
// per-playbook override.
type Thresholds struct {
	Complete float64 // default 0.9
	Clarify  float64 // default 0.6
}

// DefaultThresholds matches spec §6's global defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Complete: 0.9, Clarify: 0.6}
}

// Aggregate computes job disposition for jobType given agents (spec §4.5).
func Aggregate(agents []AgentView, jobType config.JobType, th Thresholds) Result {
	jobConfidence := weightedMean(agents)

	switch {
	case jobConfidence >= th.Complete:
		return Result{JobConfidence: jobConfidence, Disposition: Complete}
	case jobConfidence >= th.Clarify:
		return Result{JobConfidence: jobConfidence, Disposition: Complete, NeedsReview: true}
	case jobType == config.JobTypeIngest && hasIngestionAgent(agents):
		return Result{
			JobConfidence:       jobConfidence,
			Disposition:         AwaitingClarification,
			ClarificationFields: clarificationFields(agents, th.Clarify),
		}
	default:
		return Result{JobConfidence: jobConfidence, Disposition: Complete, LowConfidence: true}
	}
}

// FromExecutionResults adapts scheduler.AgentExecutionResult + the resolved
// agent definitions into AgentViews (agent_confidence = result.confidence if
// completed else 0, spec §4.5).
func FromExecutionResults(results []scheduler.AgentExecutionResult, agents map[string]config.AgentDefinition, jobType config.JobType) []AgentView {
	views := make([]AgentView, 0, len(results))
	for _, r := range results {
		def := agents[r.AgentID]
		weight := def.Weight
		if weight == 0 {
			weight = 1.0
		}

		conf := 0.0
		if r.Status == "completed" {
			if c, ok := r.Output[config.ConfidenceKey].(float64); ok {
				conf = c
			}
		}

		views = append(views, AgentView{
			AgentID:      r.AgentID,
			Confidence:   conf,
			Status:       r.Status,
			Weight:       weight,
			IsIngestion:  def.AgentClass == config.AgentClassIngestion,
			OutputSchema: def.OutputSchema,
		})
	}
	return views
}

func weightedMean(agents []AgentView) float64 {
	if len(agents) == 0 {
		return 0
	}
	var sumWeighted, sumWeights float64
	for _, a := range agents {
		sumWeighted += a.Confidence * a.Weight
		sumWeights += a.Weight
	}
	if sumWeights == 0 {
		return 0
	}
	return sumWeighted / sumWeights
}

func hasIngestionAgent(agents []AgentView) bool {
	for _, a := range agents {
		if a.IsIngestion {
			return true
		}
	}
	return false
}

// clarificationFields is the union of output_schema keys whose per-agent
// confidence was below clarify, sorted for determinism (spec §4.5).
func clarificationFields(agents []AgentView, clarifyThreshold float64) []string {
	set := map[string]bool{}
	for _, a := range agents {
		if a.Confidence >= clarifyThreshold {
			continue
		}
		for key := range a.OutputSchema {
			if key == config.ConfidenceKey {
				continue
			}
			set[key] = true
		}
	}
	fields := make([]string, 0, len(set))
	for k := range set {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
