package job

import (
	"context"
	"fmt"
	"time"

	"github.com/arcflow/orchestrator/confidence"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/recordstore"
	"github.com/arcflow/orchestrator/scheduler"
	"github.com/arcflow/orchestrator/status"
)

// Manager is the Job Lifecycle Manager of spec §4.6: it owns job state
// (via States), mutates the record store on the transitions that call for
// it, and publishes status events strictly after each persisted transition
// (spec §4.7 "Emit happens after the corresponding persisted transition,
// never before").
type Manager struct {
	States    *StateMachine
	Records   recordstore.Store
	Publisher *status.Publisher

	// Metrics is nil by default; callers that want jobs-by-terminal-state
	// on the Prometheus surface assign it after NewManager.
	Metrics *status.Metrics
}

// NewManager builds a Manager over its collaborators.
func NewManager(states *StateMachine, records recordstore.Store, publisher *status.Publisher) *Manager {
	return &Manager{States: states, Records: records, Publisher: publisher}
}

// Start implements the queued -> running transition (spec §4.6), including
// the idempotence rules of spec §8: a re-delivered envelope for a job
// already in a terminal state is a no-op; a job awaiting clarification
// accepts exactly one follow-up carrying clarification_answers.
func (m *Manager) Start(ctx context.Context, env config.JobEnvelope) (*Job, error) {
	j, created := m.States.Create(&Job{
		JobID:     env.JobID,
		TenantID:  env.TenantID,
		UserID:    env.UserID,
		SessionID: env.SessionID,
		JobType:   env.JobType,
		DomainID:  env.DomainID,
		RecordID:  env.RecordID,
	})

	if !created {
		return m.resumeExisting(ctx, j, env)
	}

	if env.JobType == config.JobTypeIngest && j.RecordID == "" {
		recordID, err := m.Records.CreateRecord(ctx, env.TenantID, recordstore.Record{
			TenantID: env.TenantID,
			DomainID: env.DomainID,
			RawInput: env.Input.Text,
			Status:   "processing",
		})
		if err != nil {
			return j, orcherr.New(orcherr.StoreUnavailable, "job", "Start", "create record failed", err)
		}
		j.RecordID = recordID
	}

	if _, err := m.States.Transition(j.JobID, StatusRunning, "start"); err != nil {
		return j, err
	}
	m.Publisher.Publish(ctx, status.Event{
		JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
		EventType: status.EventJobStarted, Status: string(StatusRunning),
	})
	return j, nil
}

// resumeExisting handles re-delivery of an already-known job_id (spec §8
// "Idempotence").
func (m *Manager) resumeExisting(_ context.Context, j *Job, env config.JobEnvelope) (*Job, error) {
	if j.Status.Terminal() {
		return j, nil
	}
	if env.Input.ClarificationAnswers == nil {
		if j.Status != StatusAwaitingClarification {
			return j, nil // already in flight; duplicate delivery is a no-op
		}
		return j, orcherr.New(orcherr.InvalidTransition, "job", "Start",
			"job "+j.JobID+" is awaiting_clarification and requires clarification_answers", nil)
	}
	applied, err := m.States.Transition(j.JobID, StatusRunning, "clarification_resolved")
	if err != nil {
		return j, err
	}
	if !applied {
		return j, orcherr.New(orcherr.InvalidTransition, "job", "Start",
			"job "+j.JobID+" already consumed its clarification follow-up", nil)
	}
	return j, nil
}

// AgentStarted publishes agent_started (spec §4.6 "Per-agent: publish
// agent_started").
func (m *Manager) AgentStarted(ctx context.Context, j *Job, agentID string) {
	m.Publisher.Publish(ctx, status.Event{
		JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
		EventType: status.EventAgentStarted, AgentID: agentID, Status: "running",
	})
}

// AgentFinished publishes agent_completed or agent_failed with attempts and
// duration, depending on r.Status.
func (m *Manager) AgentFinished(ctx context.Context, j *Job, r scheduler.AgentExecutionResult) {
	evt := status.EventAgentCompleted
	if r.Status == "failed" || r.Status == "parse_failed" {
		evt = status.EventAgentFailed
	}
	m.Publisher.Publish(ctx, status.Event{
		JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
		EventType: evt, AgentID: r.AgentID, Status: r.Status,
		Metadata: map[string]any{
			"attempts":    r.Attempts,
			"duration_ms": r.EndedAt.Sub(r.StartedAt).Milliseconds(),
		},
	})
}

// CompleteIngest implements spec §4.6's running -> complete |
// awaiting_clarification branch for ingest jobs: merge ingestion_data into
// the record on completion, or park the clarification bundle without
// merging anything yet (spec §8 scenario 2: "no ingestion_data merged into
// a record yet").
func (m *Manager) CompleteIngest(ctx context.Context, j *Job, merged map[string]any, agg confidence.Result) error {
	if agg.Disposition == confidence.AwaitingClarification {
		if _, err := m.States.Transition(j.JobID, StatusAwaitingClarification, "disposition"); err != nil {
			return err
		}
		j.Clarification = &Clarification{
			Fields:    agg.ClarificationFields,
			Questions: clarificationQuestions(agg.ClarificationFields),
		}
		if j.RecordID != "" {
			if err := m.Records.MergeRecord(ctx, j.TenantID, j.RecordID, map[string]any{"status": "awaiting_clarification"}); err != nil {
				return orcherr.New(orcherr.StoreUnavailable, "job", "CompleteIngest", "merge record failed", err)
			}
		}
		m.Publisher.Publish(ctx, status.Event{
			JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
			EventType: status.EventClarificationRequired, Status: string(StatusAwaitingClarification),
			Metadata: map[string]any{"fields": agg.ClarificationFields},
		})
		return nil
	}

	if j.RecordID != "" {
		partial := map[string]any{"ingestion_data": merged, "status": "complete"}
		if err := m.Records.MergeRecord(ctx, j.TenantID, j.RecordID, partial); err != nil {
			return orcherr.New(orcherr.StoreUnavailable, "job", "CompleteIngest", "merge record failed", err)
		}
	}
	return m.complete(ctx, j)
}

// CompleteManagement implements spec §4.6's running -> complete branch for
// management jobs: merge into management_data with a history append.
func (m *Manager) CompleteManagement(ctx context.Context, j *Job, delta map[string]any) error {
	if j.RecordID == "" {
		return orcherr.New(orcherr.BadEnvelope, "job", "CompleteManagement", "management job has no record_id", nil)
	}
	managementData := make(map[string]any, len(delta)+1)
	for k, v := range delta {
		managementData[k] = v
	}
	managementData["history"] = []any{map[string]any{
		"job_id": j.JobID,
		"at":     time.Now().UTC().Format(time.RFC3339),
	}}
	partial := map[string]any{"management_data": managementData}
	if err := m.Records.MergeRecord(ctx, j.TenantID, j.RecordID, partial); err != nil {
		return orcherr.New(orcherr.StoreUnavailable, "job", "CompleteManagement", "merge record failed", err)
	}
	return m.complete(ctx, j)
}

// CompleteQuery implements spec §4.6's running -> complete branch for query
// jobs: the answer bundle lives on the Job itself (no record-store write).
func (m *Manager) CompleteQuery(ctx context.Context, j *Job, summary string, referencesUsed []string) error {
	j.Summary = summary
	j.ReferencesUsed = referencesUsed
	return m.complete(ctx, j)
}

func (m *Manager) complete(ctx context.Context, j *Job) error {
	if _, err := m.States.Transition(j.JobID, StatusComplete, "complete"); err != nil {
		return err
	}
	m.recordTerminal(j, StatusComplete)
	m.Publisher.Publish(ctx, status.Event{
		JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
		EventType: status.EventJobCompleted, Status: string(StatusComplete),
	})
	return nil
}

// recordTerminal increments JobsTerminal for a job reaching a terminal
// state, when a Metrics surface has been wired in.
func (m *Manager) recordTerminal(j *Job, st Status) {
	if m.Metrics == nil {
		return
	}
	m.Metrics.JobsTerminal.WithLabelValues(string(j.JobType), string(st)).Inc()
}

// Fail implements spec §4.6's -> failed branch: persist the error taxonomy
// value and a terse message, then publish job_failed.
func (m *Manager) Fail(ctx context.Context, j *Job, kind orcherr.Kind, message string) error {
	if _, err := m.States.Transition(j.JobID, StatusFailed, "fail"); err != nil {
		return err
	}
	j.ErrorKind = kind
	j.ErrorMessage = message
	m.recordTerminal(j, StatusFailed)
	m.Publisher.Publish(ctx, status.Event{
		JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
		EventType: status.EventJobFailed, Status: string(StatusFailed), Message: message,
		Metadata: map[string]any{"error_kind": string(kind)},
	})
	return nil
}

// Cancel moves a job to cancelled (spec §4.2 "Cancellation").
func (m *Manager) Cancel(ctx context.Context, j *Job) error {
	if _, err := m.States.Transition(j.JobID, StatusCancelled, "cancel"); err != nil {
		return err
	}
	m.recordTerminal(j, StatusCancelled)
	m.Publisher.Publish(ctx, status.Event{
		JobID: j.JobID, TenantID: j.TenantID, UserID: j.UserID, SessionID: j.SessionID,
		EventType: status.EventJobFailed, Status: string(StatusCancelled), Message: "cancelled",
	})
	return nil
}

func clarificationQuestions(fields []string) []string {
	qs := make([]string, len(fields))
	for i, f := range fields {
		qs[i] = fmt.Sprintf("Can you provide more detail about %q?", f)
	}
	return qs
}
