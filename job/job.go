// Package job implements the Job Lifecycle Manager (spec §4.6): the state
// machine, the per-job record bundle, and the supervisor sweep that times
// out jobs stuck in running.
package job

import (
	"time"

	"github.com/arcflow/orchestrator/confidence"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/scheduler"
)

// Status is a state in the job lifecycle state machine (spec §4.6).
type Status string

const (
	StatusQueued                Status = "queued"
	StatusRunning                Status = "running"
	StatusAwaitingClarification Status = "awaiting_clarification"
	StatusComplete              Status = "complete"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// transitions is the adjacency list of the diagram in spec §4.6:
//
//	queued → running → complete
//	              ↘ awaiting_clarification → running → complete
//	              ↘ failed
//	              ↘ cancelled
var transitions = map[Status][]Status{
	StatusQueued:                {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:               {StatusComplete, StatusAwaitingClarification, StatusFailed, StatusCancelled},
	StatusAwaitingClarification: {StatusRunning, StatusFailed, StatusCancelled},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Clarification is the persisted bundle on a job awaiting clarification
// (spec §4.6 "persist the clarification bundle (questions, fields)").
type Clarification struct {
	Questions []string `json:"questions"`
	Fields    []string `json:"fields"`
}

// Job is the Job Lifecycle Manager's own record of one unit of work. It is
// distinct from recordstore.Record: the record store holds the domain
// document a job mutates, Job holds the job's own lifecycle state.
type Job struct {
	JobID     string
	TenantID  string
	UserID    string
	SessionID string
	JobType   config.JobType
	DomainID  string
	RecordID  string

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time

	Clarification *Clarification

	// Summary/ReferencesUsed hold a completed query job's answer bundle
	// (spec §4.6 "into the query job's summary + references_used"); there is
	// no separate query-job store, so the Job itself is that row.
	Summary        string
	ReferencesUsed []string

	ErrorKind    orcherr.Kind
	ErrorMessage string
}

// Result bundles everything a completed job run produced: the job's final
// lifecycle state, the per-agent executions the DAG Scheduler reported, the
// Confidence Aggregator's verdict, and (query jobs only) the answer bundle
// spec §4.6 says is merged into "the query job's summary + references_used"
// rather than into a record.
type Result struct {
	Job             *Job
	AgentResults    []scheduler.AgentExecutionResult
	Confidence      confidence.Result
	Summary         string
	ReferencesUsed  []string
}
