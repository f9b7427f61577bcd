package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcflow/orchestrator/agent"
	"github.com/arcflow/orchestrator/confidence"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/configstore"
	"github.com/arcflow/orchestrator/job"
	"github.com/arcflow/orchestrator/llm"
	"github.com/arcflow/orchestrator/logging"
	"github.com/arcflow/orchestrator/orchestrator"
	"github.com/arcflow/orchestrator/playbook"
	"github.com/arcflow/orchestrator/recordstore"
	"github.com/arcflow/orchestrator/retry"
	"github.com/arcflow/orchestrator/scheduler"
	"github.com/arcflow/orchestrator/status"
	"github.com/arcflow/orchestrator/tool"
)

// runtime bundles every collaborator a CLI command needs, built once from
// the loaded configuration (spec §4.8's Orchestrator Entry plus the Job
// Lifecycle Manager and state machine it depends on; the sweep command
// builds its Supervisor from these).
type runtime struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	states  *job.StateMachine
	manager *job.Manager
	records recordstore.Store
	pgPool  *pgxpool.Pool
	metrics *status.Metrics
}

// Metrics exposes the runtime's Prometheus registry for a host process that
// wants to serve /metrics itself; this CLI's one-shot commands don't (spec
// §1 places the HTTP edge out of scope), but the counters/histogram are
// live from the moment buildRuntime wires the broker/manager/orchestrator.
func (r *runtime) Metrics() *status.Metrics { return r.metrics }

func (r *runtime) Close() {
	if r.pgPool != nil {
		r.pgPool.Close()
	}
}

// buildRuntime loads configuration and wires every internal component
// (Tool Broker, Agent Invoker, Playbook Loader, DAG Scheduler, Confidence
// Aggregator, Job Lifecycle Manager, Status Publisher) into an
// Orchestrator, following spec §2's control-flow diagram.
func buildRuntime(ctx context.Context, postgresDSN, sqlitePath string) (*runtime, func(), error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, nil, fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	lvl, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}
	out, cleanup, logErr := logOutput()
	if logErr != nil {
		return nil, nil, logErr
	}
	logging.Init(lvl, out, logging.Format(logFormat))

	var configs configstore.Store
	var pgPool *pgxpool.Pool
	if postgresDSN != "" {
		pool, err := pgxpool.New(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres config store: %w", err)
		}
		pgStore := configstore.NewPostgresStore(pool)
		if err := pgStore.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init postgres config store: %w", err)
		}
		configs = pgStore
		pgPool = pool
	} else {
		configs = configstore.NewMemoryStoreFromConfig(cfg)
	}

	var records recordstore.Store
	if sqlitePath != "" {
		store, err := recordstore.NewSQLiteStore(sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite record store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("init sqlite record store: %w", err)
		}
		records = store
	} else {
		records = recordstore.NewMemoryStore()
	}

	metrics := status.NewMetrics()

	broker := tool.NewBroker(cfg.ToolQuotas)
	broker.Metrics = metrics
	registry := llm.NewRegistry()
	for name, llmCfg := range cfg.LLMs {
		provider, err := registry.CreateFromConfig(name, llmCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("build llm provider %q: %w", name, err)
		}
		broker.Register(name, provider)
	}
	if _, ok := cfg.LLMs["llm"]; !ok {
		broker.Register("llm", llm.NewEchoProvider("llm", ""))
	}
	broker.Register("geocoder", tool.NewGeocoderStub("geocoder"))
	broker.Register("classifier", tool.NewClassifierStub("classifier"))

	inv := agent.NewInvoker(broker, retryPolicyFromGlobal(cfg.Global))
	sched := scheduler.NewScheduler(inv, cfg.Global.MaxParallelAgents)
	loader := playbook.NewLoader(configs)

	states := job.NewStateMachine()
	publisher := status.NewPublisher(loggingTransport{}, func(e status.Event, err error) {
		logging.Get().Warn().Err(err).Str("job_id", e.JobID).Str("event_type", string(e.EventType)).Msg("status publish failed")
	})
	manager := job.NewManager(states, records, publisher)
	manager.Metrics = metrics

	th := confidence.Thresholds{Complete: cfg.Global.ConfidenceComplete, Clarify: cfg.Global.ConfidenceClarify}
	orch := orchestrator.New(loader, sched, manager, records, th, cfg.Global.JobMaxWallClock)
	orch.Metrics = metrics

	rt := &runtime{cfg: cfg, orch: orch, states: states, manager: manager, records: records, pgPool: pgPool, metrics: metrics}
	return rt, func() { rt.Close(); cleanup() }, nil
}

func retryPolicyFromGlobal(g config.GlobalSettings) retry.Policy {
	p := retry.DefaultPolicy()
	if g.AgentRetries > 0 {
		p.MaxAttempts = g.AgentRetries
	}
	return p
}

// loggingTransport is the default Status Publisher transport for the CLI:
// a push channel is an external collaborator out of this core's scope
// (spec §1), so the one-shot runner just logs every event structurally
// instead of fabricating a delivery mechanism nobody configured.
type loggingTransport struct{}

func (loggingTransport) Publish(_ context.Context, e status.Event) error {
	logging.Get().Info().
		Str("job_id", e.JobID).Str("event_type", string(e.EventType)).
		Str("agent_id", e.AgentID).Str("status", e.Status).
		Interface("metadata", e.Metadata).
		Msg("status event")
	return nil
}
