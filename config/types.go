// Package config defines the data model for domains, playbooks, agent
// definitions and job envelopes (spec §3, §6), plus the process-wide
// settings that parameterize the orchestrator (spec §6's configuration
// table).
package config

import (
	"fmt"
	"time"
)

// SystemTenant is the reserved tenant holding built-in, read-only agents and
// domains visible to every tenant (spec §3 "Tenant").
const SystemTenant = "system"

// AgentClass partitions agents by the playbook they belong to.
type AgentClass string

const (
	AgentClassIngestion  AgentClass = "ingestion"
	AgentClassQuery      AgentClass = "query"
	AgentClassManagement AgentClass = "management"
)

func (c AgentClass) Valid() bool {
	switch c {
	case AgentClassIngestion, AgentClassQuery, AgentClassManagement:
		return true
	}
	return false
}

// JobType mirrors AgentClass at the envelope level; kept distinct because
// the envelope's wire vocabulary ("ingest") differs from the agent class
// vocabulary ("ingestion") in spec §3/§6.
type JobType string

const (
	JobTypeIngest     JobType = "ingest"
	JobTypeQuery      JobType = "query"
	JobTypeManagement JobType = "management"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeIngest, JobTypeQuery, JobTypeManagement:
		return true
	}
	return false
}

// AgentClassOf maps a job_type to the agent_class of the playbook it runs.
func (t JobType) AgentClassOf() AgentClass {
	switch t {
	case JobTypeIngest:
		return AgentClassIngestion
	case JobTypeQuery:
		return AgentClassQuery
	case JobTypeManagement:
		return AgentClassManagement
	default:
		return ""
	}
}

// FieldType is a declared type in an agent's output_schema.
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeArray  FieldType = "array"
	FieldTypeObject FieldType = "object"
	FieldTypeBool   FieldType = "bool"
)

// ZeroValue returns the type-appropriate zero value used when a declared
// output key is missing from a parsed agent response (spec §4.3 Validation).
func (t FieldType) ZeroValue() any {
	switch t {
	case FieldTypeString:
		return ""
	case FieldTypeNumber:
		return 0.0
	case FieldTypeArray:
		return []any{}
	case FieldTypeObject:
		return map[string]any{}
	case FieldTypeBool:
		return false
	default:
		return nil
	}
}

// ConfidenceKey is the required output_schema key every agent must declare.
const ConfidenceKey = "confidence"

// AgentDefinition is a read-only (during a job) description of one agent
// (spec §3 "Agent Definition").
type AgentDefinition struct {
	AgentID      string               `yaml:"agent_id" json:"agent_id" validate:"required"`
	TenantID     string               `yaml:"tenant_id" json:"tenant_id" validate:"required"`
	AgentName    string               `yaml:"agent_name" json:"agent_name" validate:"required"`
	AgentClass   AgentClass           `yaml:"agent_class" json:"agent_class" validate:"required"`
	SystemPrompt string               `yaml:"system_prompt" json:"system_prompt"`
	Tools        []string             `yaml:"tools" json:"tools"`
	OutputSchema map[string]FieldType `yaml:"output_schema" json:"output_schema"`
	Version      int                  `yaml:"version" json:"version"`
	IsBuiltin    bool                 `yaml:"is_builtin" json:"is_builtin"`
	// Strict marks an agent whose failure aborts the whole job (spec §4.2).
	Strict bool `yaml:"strict" json:"strict"`
	// Weight is the agent's contribution to the job-level weighted confidence
	// mean (spec §4.5, Open Question #2). Non-negative; defaults to 1.
	Weight float64 `yaml:"weight" json:"weight"`
}

const maxSystemPromptBytes = 2 * 1024 // 2 KB, spec §3
const maxOutputSchemaKeys = 5

// SetDefaults fills in spec-mandated defaults.
func (a *AgentDefinition) SetDefaults() {
	if a.Weight == 0 {
		a.Weight = 1.0
	}
	if a.OutputSchema == nil {
		a.OutputSchema = map[string]FieldType{}
	}
	if _, ok := a.OutputSchema[ConfidenceKey]; !ok {
		a.OutputSchema[ConfidenceKey] = FieldTypeNumber
	}
}

// Validate enforces the invariants of spec §3 "Agent Definition".
func (a *AgentDefinition) Validate() error {
	if a.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if a.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if !a.AgentClass.Valid() {
		return fmt.Errorf("agent_class %q is invalid", a.AgentClass)
	}
	if len(a.SystemPrompt) > maxSystemPromptBytes {
		return fmt.Errorf("system_prompt exceeds %d bytes", maxSystemPromptBytes)
	}
	if len(a.OutputSchema) > maxOutputSchemaKeys {
		return fmt.Errorf("output_schema has %d keys, max is %d", len(a.OutputSchema), maxOutputSchemaKeys)
	}
	if _, ok := a.OutputSchema[ConfidenceKey]; !ok {
		return fmt.Errorf("output_schema must declare %q", ConfidenceKey)
	}
	if a.Weight < 0 {
		return fmt.Errorf("weight must be non-negative")
	}
	return nil
}

// PlaybookEdge is a directed dependency (from_agent_id -> to_agent_id).
type PlaybookEdge struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// PlaybookConfig is the agent_execution_graph for one job_type within a
// domain (spec §3 "Domain Configuration").
type PlaybookConfig struct {
	Nodes []string       `yaml:"nodes" json:"nodes"`
	Edges []PlaybookEdge `yaml:"edges" json:"edges"`

	// ConfidenceComplete/ConfidenceClarify are parsed from the playbook
	// definition only: the Playbook Loader does not carry them into a
	// ResolvedPlaybook, and the Confidence Aggregator always uses the
	// process-wide thresholds from GlobalSettings.
	ConfidenceComplete float64 `yaml:"confidence_complete,omitempty" json:"confidence_complete,omitempty"`
	ConfidenceClarify  float64 `yaml:"confidence_clarify,omitempty" json:"confidence_clarify,omitempty"`
}

// Disabled reports whether the playbook has no nodes (spec §4.1 step 3).
func (p *PlaybookConfig) Disabled() bool {
	return len(p.Nodes) == 0
}

// Validate checks the acyclicity/reachability/endpoint invariants of
// spec §3. It does not resolve agent ids against a store; that is the
// Playbook Loader's job (spec §4.1, §9 "Cyclic playbook definitions").
func (p *PlaybookConfig) Validate() error {
	nodeSet := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if n == "" {
			return fmt.Errorf("playbook node id cannot be empty")
		}
		nodeSet[n] = true
	}
	for _, e := range p.Edges {
		if !nodeSet[e.From] || !nodeSet[e.To] {
			return fmt.Errorf("edge (%s -> %s) references a node not in the playbook", e.From, e.To)
		}
	}
	if _, err := TopologicalOrder(p.Nodes, p.Edges); err != nil {
		return err
	}
	if !p.Disabled() {
		if err := checkReachability(p.Nodes, p.Edges); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder performs Kahn's algorithm over the playbook graph,
// returning an error if a cycle is present (spec §9).
func TopologicalOrder(nodes []string, edges []PlaybookEdge) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	children := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, e := range edges {
		indegree[e.To]++
		children[e.From] = append(children[e.From], e.To)
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, child := range children[n] {
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("playbook graph contains a cycle")
	}
	return order, nil
}

// checkReachability ensures every node is reachable from some root (a node
// with indegree 0); spec §3 "each node is reachable".
func checkReachability(nodes []string, edges []PlaybookEdge) error {
	parents := make(map[string][]string, len(nodes))
	hasParent := make(map[string]bool, len(nodes))
	for _, e := range edges {
		parents[e.To] = append(parents[e.To], e.From)
		hasParent[e.To] = true
	}

	roots := make([]string, 0)
	for _, n := range nodes {
		if !hasParent[n] {
			roots = append(roots, n)
		}
	}
	if len(roots) == 0 {
		return fmt.Errorf("playbook graph has no root nodes")
	}

	reachable := make(map[string]bool, len(nodes))
	children := make(map[string][]string, len(nodes))
	for _, e := range edges {
		children[e.From] = append(children[e.From], e.To)
	}
	var visit func(string)
	visit = func(n string) {
		if reachable[n] {
			return
		}
		reachable[n] = true
		for _, c := range children[n] {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	for _, n := range nodes {
		if !reachable[n] {
			return fmt.Errorf("node %q is unreachable", n)
		}
	}
	return nil
}

// DomainConfig bundles a domain's three playbooks (spec §3).
type DomainConfig struct {
	DomainID   string   `yaml:"domain_id" json:"domain_id" validate:"required"`
	TenantID   string   `yaml:"tenant_id" json:"tenant_id" validate:"required"`
	DomainName string   `yaml:"domain_name" json:"domain_name"`
	Ingestion  Playbook `yaml:"ingestion" json:"ingestion"`
	Query      Playbook `yaml:"query" json:"query"`
	Management Playbook `yaml:"management" json:"management"`
}

// Playbook is an alias kept distinct from PlaybookConfig so that YAML/JSON
// field names read naturally at the DomainConfig call site.
type Playbook = PlaybookConfig

// PlaybookFor returns the playbook for the given job type.
func (d *DomainConfig) PlaybookFor(jt JobType) (*PlaybookConfig, error) {
	switch jt {
	case JobTypeIngest:
		return &d.Ingestion, nil
	case JobTypeQuery:
		return &d.Query, nil
	case JobTypeManagement:
		return &d.Management, nil
	default:
		return nil, fmt.Errorf("unknown job_type %q", jt)
	}
}

// Validate validates all three playbooks.
func (d *DomainConfig) Validate() error {
	if d.DomainID == "" {
		return fmt.Errorf("domain_id is required")
	}
	if d.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	for name, pb := range map[string]*PlaybookConfig{
		"ingestion":  &d.Ingestion,
		"query":      &d.Query,
		"management": &d.Management,
	} {
		if pb.Disabled() {
			continue
		}
		if err := pb.Validate(); err != nil {
			return fmt.Errorf("%s playbook: %w", name, err)
		}
	}
	return nil
}

// JobInput is the polymorphic payload of a JobEnvelope (spec §6).
type JobInput struct {
	Text                  string         `json:"text,omitempty"`
	Question              string         `json:"question,omitempty"`
	Filters               map[string]any `json:"filters,omitempty"`
	RecordID              string         `json:"record_id,omitempty"`
	ImageRefs             []string       `json:"image_refs,omitempty"`
	ClarificationAnswers  map[string]any `json:"clarification_answers,omitempty"`
}

// JobEnvelope is the immutable input record the core consumes (spec §3, §6).
type JobEnvelope struct {
	JobID           string   `json:"job_id" validate:"required"`
	TenantID        string   `json:"tenant_id" validate:"required"`
	UserID          string   `json:"user_id" validate:"required"`
	SessionID       string   `json:"session_id,omitempty"`
	RecordID        string   `json:"record_id,omitempty"`
	JobType         JobType  `json:"job_type" validate:"required,oneof=ingest query management"`
	DomainID        string   `json:"domain_id" validate:"required"`
	DeadlineEpochMs int64    `json:"deadline_epoch_ms,omitempty"`
	Input           JobInput `json:"input"`
}

// Deadline resolves the envelope's deadline against now + the default wall
// clock when DeadlineEpochMs is unset.
func (e *JobEnvelope) Deadline(defaultWallClock time.Duration, now time.Time) time.Time {
	if e.DeadlineEpochMs == 0 {
		return now.Add(defaultWallClock)
	}
	return time.UnixMilli(e.DeadlineEpochMs)
}

// GlobalSettings holds the process-wide tunables of spec §6's configuration
// table.
type GlobalSettings struct {
	BedrockRegion       string        `yaml:"bedrock_region"`
	DefaultModelID      string        `yaml:"default_model_id"`
	MaxParallelAgents   int           `yaml:"max_parallel_agents"`
	JobMaxWallClock     time.Duration `yaml:"job_max_wall_clock"`
	AgentRetries        int           `yaml:"agent_retries"`
	ConfidenceComplete  float64       `yaml:"confidence_complete"`
	ConfidenceClarify   float64       `yaml:"confidence_clarify"`
}

// SetDefaults fills in the defaults named throughout spec §4-§6.
func (g *GlobalSettings) SetDefaults() {
	if g.MaxParallelAgents <= 0 {
		g.MaxParallelAgents = 4
	}
	if g.JobMaxWallClock <= 0 {
		g.JobMaxWallClock = 10 * time.Minute
	}
	if g.AgentRetries <= 0 {
		g.AgentRetries = 3
	}
	if g.ConfidenceComplete <= 0 {
		g.ConfidenceComplete = 0.9
	}
	if g.ConfidenceClarify <= 0 {
		g.ConfidenceClarify = 0.6
	}
	if g.DefaultModelID == "" {
		g.DefaultModelID = "default"
	}
}

// Validate checks GlobalSettings invariants.
func (g *GlobalSettings) Validate() error {
	if g.MaxParallelAgents < 1 {
		return fmt.Errorf("max_parallel_agents must be >= 1")
	}
	if g.ConfidenceClarify < 0 || g.ConfidenceClarify > 1 {
		return fmt.Errorf("confidence_clarify must be in [0,1]")
	}
	if g.ConfidenceComplete < 0 || g.ConfidenceComplete > 1 {
		return fmt.Errorf("confidence_complete must be in [0,1]")
	}
	if g.ConfidenceClarify > g.ConfidenceComplete {
		return fmt.Errorf("confidence_clarify must be <= confidence_complete")
	}
	return nil
}
