// Package orchestrator implements the Orchestrator Entry (spec §4.8): the
// single function that takes a validated JobEnvelope and drives it end to
// end through the Playbook Loader, the DAG Scheduler, the Confidence
// Aggregator and the Job Lifecycle Manager, while the Status Publisher
// streams events throughout.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arcflow/orchestrator/agent"
	"github.com/arcflow/orchestrator/confidence"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/job"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/playbook"
	"github.com/arcflow/orchestrator/recordstore"
	"github.com/arcflow/orchestrator/scheduler"
	"github.com/arcflow/orchestrator/status"
)

var validate = validator.New()

// Orchestrator wires the core's six internal components into the single
// per-job workflow of spec §4.8.
type Orchestrator struct {
	Loader     *playbook.Loader
	Scheduler  *scheduler.Scheduler
	Manager    *job.Manager
	Records    recordstore.Store
	Thresholds confidence.Thresholds

	// DefaultWallClock bounds a job whose envelope carries no
	// deadline_epoch_ms (spec §4.8 step 4 "own the job deadline").
	DefaultWallClock time.Duration

	// Metrics is nil by default; callers that want per-agent invocation
	// duration on the Prometheus surface assign it after New.
	Metrics *status.Metrics
}

// New builds an Orchestrator over its collaborators.
func New(loader *playbook.Loader, sched *scheduler.Scheduler, mgr *job.Manager, records recordstore.Store, th confidence.Thresholds, defaultWallClock time.Duration) *Orchestrator {
	if defaultWallClock <= 0 {
		defaultWallClock = 10 * time.Minute
	}
	return &Orchestrator{Loader: loader, Scheduler: sched, Manager: mgr, Records: records, Thresholds: th, DefaultWallClock: defaultWallClock}
}

// Run implements spec §4.8's numbered responsibilities for one JobEnvelope.
func (o *Orchestrator) Run(ctx context.Context, env config.JobEnvelope) (*job.Result, error) {
	if err := validate.Struct(env); err != nil {
		return nil, orcherr.New(orcherr.BadEnvelope, "orchestrator", "Run", err.Error(), err)
	}
	if !env.JobType.Valid() {
		return nil, orcherr.New(orcherr.BadEnvelope, "orchestrator", "Run", "unknown job_type "+string(env.JobType), nil)
	}

	deadline := env.Deadline(o.DefaultWallClock, time.Now())
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	j, err := o.Manager.Start(ctx, env)
	if err != nil {
		return nil, err
	}
	if j.Status.Terminal() {
		// Re-delivery of an already-terminal job (spec §8 "Idempotence"): no
		// workflow to run, just hand back the prior outcome.
		return &job.Result{Job: j}, nil
	}

	rp, err := o.Loader.Load(ctx, env.TenantID, env.DomainID, env.JobType)
	if err != nil {
		o.fail(ctx, j, err)
		return nil, err
	}

	jobInput, err := o.prepareInput(ctx, env)
	if err != nil {
		o.fail(ctx, j, err)
		return nil, err
	}

	results, runErr := o.runGraph(ctx, j, env.TenantID, rp, jobInput)
	if runErr != nil && orcherr.Is(runErr, orcherr.AgentFailed) {
		o.fail(ctx, j, runErr)
		return &job.Result{Job: j, AgentResults: results}, runErr
	}
	if ctx.Err() != nil {
		// Partial agent results are persisted for observability even though
		// the job itself fails (spec §5 "Cancellation & timeouts").
		timeoutErr := orcherr.New(orcherr.Timeout, "orchestrator", "Run", "job exceeded its deadline", ctx.Err())
		o.fail(context.WithoutCancel(ctx), j, timeoutErr)
		return &job.Result{Job: j, AgentResults: results}, timeoutErr
	}

	views := confidence.FromExecutionResults(results, rp.Agents, env.JobType)
	agg := confidence.Aggregate(views, env.JobType, o.Thresholds)

	merged := mergeOutputs(results)

	switch env.JobType {
	case config.JobTypeIngest:
		if err := o.Manager.CompleteIngest(ctx, j, merged, agg); err != nil {
			return nil, err
		}
	case config.JobTypeManagement:
		if err := o.Manager.CompleteManagement(ctx, j, merged); err != nil {
			return nil, err
		}
	case config.JobTypeQuery:
		summary, refs := summarize(results)
		if err := o.Manager.CompleteQuery(ctx, j, summary, refs); err != nil {
			return nil, err
		}
	}

	return &job.Result{
		Job: j, AgentResults: results, Confidence: agg,
		Summary: j.Summary, ReferencesUsed: j.ReferencesUsed,
	}, nil
}

// prepareInput implements the per-job_type input-bundle assembly of spec
// §4.8 step 3: query jobs get candidate-record summaries injected; ingest
// and management pass the envelope's input through unchanged.
func (o *Orchestrator) prepareInput(ctx context.Context, env config.JobEnvelope) (config.JobInput, error) {
	in := env.Input
	if env.JobType != config.JobTypeQuery {
		return in, nil
	}

	records, err := o.Records.QueryRecords(ctx, env.TenantID, env.DomainID, env.Input.Filters, 20)
	if err != nil {
		return in, orcherr.New(orcherr.StoreUnavailable, "orchestrator", "prepareInput", "query records failed", err)
	}

	summaries := make([]string, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, fmt.Sprintf("record %s: %v", r.RecordID, r.IngestionData))
	}
	if in.Filters == nil {
		in.Filters = map[string]any{}
	}
	in.Filters["_candidate_records"] = summaries
	return in, nil
}

// runGraph runs the DAG, publishing agent_started/agent_completed around
// each node via a thin Invoker decorator. It loads no record: management
// jobs run against the envelope's input only, without the target record.
func (o *Orchestrator) runGraph(ctx context.Context, j *job.Job, tenantID string, rp *playbook.ResolvedPlaybook, in config.JobInput) ([]scheduler.AgentExecutionResult, error) {
	sched := &scheduler.Scheduler{
		Invoker:           publishingInvoker{inner: o.Scheduler.Invoker, mgr: o.Manager, job: j, metrics: o.Metrics},
		MaxParallelAgents: o.Scheduler.MaxParallelAgents,
	}
	return sched.Run(ctx, tenantID, rp, in)
}

// publishingInvoker wraps the scheduler's Invoker to publish agent_started
// before and agent_completed/agent_failed after each node (spec §4.6
// "Per-agent: publish agent_started, then agent_completed").
type publishingInvoker struct {
	inner   scheduler.Invoker
	mgr     *job.Manager
	job     *job.Job
	metrics *status.Metrics
}

func (p publishingInvoker) Invoke(ctx context.Context, tenantID string, def config.AgentDefinition, in agent.Input) (agent.Result, error) {
	p.mgr.AgentStarted(ctx, p.job, def.AgentID)
	started := time.Now()
	r, err := p.inner.Invoke(ctx, tenantID, def, in)
	if p.metrics != nil {
		p.metrics.AgentDuration.WithLabelValues(def.AgentID, r.Status).Observe(r.Duration.Seconds())
	}
	p.mgr.AgentFinished(ctx, p.job, scheduler.AgentExecutionResult{
		AgentID: def.AgentID, Output: r.Output, Status: r.Status,
		Attempts: r.Attempts, StartedAt: started, EndedAt: started.Add(r.Duration),
	})
	return r, err
}

func (o *Orchestrator) fail(ctx context.Context, j *job.Job, err error) {
	kind, ok := orcherr.KindOf(err)
	if !ok {
		kind = orcherr.StoreUnavailable
	}
	_ = o.Manager.Fail(ctx, j, kind, safeMessage(err))
}

// safeMessage strips wrapped internals, keeping only the taxonomy-facing
// text (spec §4.6 "a terse, user-safe message").
func safeMessage(err error) string {
	kind, ok := orcherr.KindOf(err)
	if !ok {
		return "internal error"
	}
	return strings.ReplaceAll(string(kind), "_", " ")
}

// mergeOutputs nests each completed node's output under its own agent_id
// key, rather than flattening every output into one shared namespace (spec
// §8 scenario 1: ingestion_data.geo.location, .temporal.duration,
// .entity.category). Two agents that both declare the same field name
// (every agent's required "confidence" key, for a start) would otherwise
// silently clobber each other in a flat union.
func mergeOutputs(results []scheduler.AgentExecutionResult) map[string]any {
	merged := map[string]any{}
	for _, r := range results {
		if r.Status != "completed" {
			continue
		}
		merged[r.AgentID] = r.Output
	}
	return merged
}

// summarize builds the query job's answer bundle by scanning completed
// agents in node order for a "summary"/"answer" field and a "references"
// list (spec §3 "Job Result" references: [record_id]). The job's own
// summary/references_used are not namespaced per agent_id the way
// ingestion_data/management_data are, since the query result is the job's
// single answer, not a record a later management job will need to address
// by agent.
func summarize(results []scheduler.AgentExecutionResult) (summary string, references []string) {
	for _, r := range results {
		if r.Status != "completed" {
			continue
		}
		if s, ok := r.Output["summary"].(string); ok {
			summary = s
		} else if s, ok := r.Output["answer"].(string); ok {
			summary = s
		}
		if refs, ok := r.Output["references"].([]any); ok {
			for _, ref := range refs {
				if s, ok := ref.(string); ok {
					references = append(references, s)
				}
			}
		}
	}
	sort.Strings(references)
	return summary, references
}
