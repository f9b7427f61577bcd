package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/job"
	"github.com/arcflow/orchestrator/orcherr"
)

func TestStateMachine_CreateIsIdempotentByJobID(t *testing.T) {
	sm := job.NewStateMachine()

	j1, created1 := sm.Create(&job.Job{JobID: "j1"})
	j2, created2 := sm.Create(&job.Job{JobID: "j1"})

	require.True(t, created1)
	require.False(t, created2)
	require.Same(t, j1, j2)
	require.Equal(t, job.StatusQueued, j1.Status)
}

func TestStateMachine_LegalTransitionSucceeds(t *testing.T) {
	sm := job.NewStateMachine()
	sm.Create(&job.Job{JobID: "j1"})

	applied, err := sm.Transition("j1", job.StatusRunning, "start")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, job.StatusRunning, sm.Get("j1").Status)
}

func TestStateMachine_IllegalTransitionRejected(t *testing.T) {
	sm := job.NewStateMachine()
	sm.Create(&job.Job{JobID: "j1"})

	_, err := sm.Transition("j1", job.StatusComplete, "complete")
	require.True(t, orcherr.Is(err, orcherr.InvalidTransition))
}

func TestStateMachine_ReplayedTransitionIsNoOp(t *testing.T) {
	sm := job.NewStateMachine()
	sm.Create(&job.Job{JobID: "j1"})

	applied1, err1 := sm.Transition("j1", job.StatusRunning, "start")
	require.NoError(t, err1)
	require.True(t, applied1)

	applied2, err2 := sm.Transition("j1", job.StatusRunning, "start")
	require.NoError(t, err2)
	require.False(t, applied2)
	require.Equal(t, job.StatusRunning, sm.Get("j1").Status)
}

func TestStateMachine_StuckSinceFindsOnlyOldRunningJobs(t *testing.T) {
	sm := job.NewStateMachine()
	sm.Create(&job.Job{JobID: "old"})
	sm.Transition("old", job.StatusRunning, "start")
	sm.Create(&job.Job{JobID: "fresh"})
	sm.Transition("fresh", job.StatusRunning, "start")
	sm.Create(&job.Job{JobID: "queued-only"})

	sm.Get("old").UpdatedAt = time.Now().UTC().Add(-time.Hour)

	stuck := sm.StuckSince(time.Now().UTC().Add(-time.Minute))
	require.Len(t, stuck, 1)
	require.Equal(t, "old", stuck[0].JobID)
}
