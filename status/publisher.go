// Package status implements the Status Publisher (spec §4.7): a narrow,
// emit-only, best-effort event stream ordered per job_id. The core only
// ever calls Publish after the corresponding persisted transition, never
// before (spec §4.7, §5 "Ordering guarantees").
package status

import (
	"context"
	"sync"
	"time"
)

// EventType enumerates the events spec §6 names.
type EventType string

const (
	EventJobStarted           EventType = "job_started"
	EventAgentStarted         EventType = "agent_started"
	EventAgentCompleted       EventType = "agent_completed"
	EventAgentFailed          EventType = "agent_failed"
	EventClarificationRequired EventType = "clarification_required"
	EventJobCompleted         EventType = "job_completed"
	EventJobFailed            EventType = "job_failed"
)

// Event is the StatusEvent payload of spec §6.
type Event struct {
	JobID     string         `json:"job_id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id,omitempty"`
	EventType EventType      `json:"event_type"`
	AgentID   string         `json:"agent_id,omitempty"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Transport is the injected, best-effort sink a Publisher writes to (spec
// §6 "Push Channel interface": publish(user_id, StatusEvent) -> ok |
// transient_error).
type Transport interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher serialises event emission per job_id (spec §5 "Per job_id, all
// published events are strictly ordered").
type Publisher struct {
	transport Transport
	onError   func(event Event, err error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex // job_id -> per-job ordering lock
}

// NewPublisher builds a Publisher over transport. onError, if non-nil, is
// called when a publish attempt fails; publish failures never propagate to
// the caller (spec §4.7 "failure to emit never fails the job").
func NewPublisher(transport Transport, onError func(event Event, err error)) *Publisher {
	return &Publisher{transport: transport, onError: onError, locks: make(map[string]*sync.Mutex)}
}

func (p *Publisher) lockFor(jobID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[jobID] = l
	}
	return l
}

// Publish emits event, serialized against any concurrent Publish for the
// same job_id. Errors are swallowed (logged via onError); the call never
// blocks the caller's job logic on a slow or failing transport beyond the
// single attempt.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	jobLock := p.lockFor(event.JobID)
	jobLock.Lock()
	defer jobLock.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.transport.Publish(ctx, event); err != nil && p.onError != nil {
		p.onError(event, err)
	}
}
