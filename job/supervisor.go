package job

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arcflow/orchestrator/orcherr"
)

// Supervisor periodically sweeps jobs stuck in running beyond
// job_max_wall_clock to failed with reason timeout (spec §4.6 "Recovery").
//
// A single-purpose periodic sweep doesn't need a scheduling library: it
// follows the same ticker/select loop shape used elsewhere for background
// pollers, rather than pulling in a cron dependency for one repeating task.
type Supervisor struct {
	States   *StateMachine
	Manager  *Manager
	MaxWallClock time.Duration // default 10 minutes, spec §4.6
	Interval     time.Duration // sweep cadence
}

// NewSupervisor builds a Supervisor with spec-default tunables.
func NewSupervisor(states *StateMachine, mgr *Manager, maxWallClock time.Duration) *Supervisor {
	if maxWallClock <= 0 {
		maxWallClock = 10 * time.Minute
	}
	return &Supervisor{States: states, Manager: mgr, MaxWallClock: maxWallClock, Interval: 30 * time.Second}
}

// Run blocks, sweeping every s.Interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep fails every job that has been running longer than MaxWallClock. It
// is exported so a one-shot CLI invocation (spec §4.8: "there is no
// long-running server in this core") can also run a single sweep pass
// directly instead of starting the ticker loop.
func (s *Supervisor) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.MaxWallClock)
	for _, j := range s.States.StuckSince(cutoff) {
		if err := s.Manager.Fail(ctx, j, orcherr.Timeout, "job exceeded job_max_wall_clock"); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("job_id", j.JobID).Msg("supervisor: failed to sweep stuck job")
		}
	}
}
