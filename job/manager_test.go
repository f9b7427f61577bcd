package job_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/confidence"
	"github.com/arcflow/orchestrator/config"
	"github.com/arcflow/orchestrator/job"
	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/recordstore"
	"github.com/arcflow/orchestrator/status"
)

type capturingTransport struct {
	mu     sync.Mutex
	events []status.Event
}

func (t *capturingTransport) Publish(_ context.Context, e status.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

func (t *capturingTransport) types() []status.EventType {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []status.EventType
	for _, e := range t.events {
		out = append(out, e.EventType)
	}
	return out
}

func newManager() (*job.Manager, *capturingTransport, recordstore.Store) {
	tr := &capturingTransport{}
	records := recordstore.NewMemoryStore()
	mgr := job.NewManager(job.NewStateMachine(), records, status.NewPublisher(tr, nil))
	return mgr, tr, records
}

func ingestEnvelope(jobID string) config.JobEnvelope {
	return config.JobEnvelope{
		JobID: jobID, TenantID: "t1", UserID: "u1", JobType: config.JobTypeIngest,
		DomainID: "d1", Input: config.JobInput{Text: "a pothole on main street"},
	}
}

func TestManager_HappyPathIngestCompletes(t *testing.T) {
	mgr, tr, records := newManager()
	ctx := context.Background()

	j, err := mgr.Start(ctx, ingestEnvelope("j1"))
	require.NoError(t, err)
	require.Equal(t, job.StatusRunning, j.Status)
	require.NotEmpty(t, j.RecordID)

	agg := confidence.Result{Disposition: confidence.Complete, JobConfidence: 0.95}
	err = mgr.CompleteIngest(ctx, j, map[string]any{"label": "pothole"}, agg)
	require.NoError(t, err)
	require.Equal(t, job.StatusComplete, j.Status)

	rec, err := records.GetRecord(ctx, "t1", j.RecordID)
	require.NoError(t, err)
	require.Equal(t, "pothole", rec.IngestionData["label"])
	require.Equal(t, "complete", rec.Status)

	require.Contains(t, tr.types(), status.EventJobStarted)
	require.Contains(t, tr.types(), status.EventJobCompleted)
}

func TestManager_LowConfidenceIngestAwaitsClarificationWithoutMergingData(t *testing.T) {
	mgr, tr, records := newManager()
	ctx := context.Background()

	j, err := mgr.Start(ctx, ingestEnvelope("j2"))
	require.NoError(t, err)

	agg := confidence.Result{Disposition: confidence.AwaitingClarification, ClarificationFields: []string{"location"}}
	err = mgr.CompleteIngest(ctx, j, map[string]any{"label": "pothole"}, agg)
	require.NoError(t, err)
	require.Equal(t, job.StatusAwaitingClarification, j.Status)
	require.Equal(t, []string{"location"}, j.Clarification.Fields)

	rec, err := records.GetRecord(ctx, "t1", j.RecordID)
	require.NoError(t, err)
	require.Empty(t, rec.IngestionData)
	require.Equal(t, "awaiting_clarification", rec.Status)

	require.Contains(t, tr.types(), status.EventClarificationRequired)
}

func TestManager_ReDeliveredTerminalJobIsNoOp(t *testing.T) {
	mgr, _, _ := newManager()
	ctx := context.Background()

	j, err := mgr.Start(ctx, ingestEnvelope("j3"))
	require.NoError(t, err)
	require.NoError(t, mgr.CompleteIngest(ctx, j, map[string]any{"label": "x"}, confidence.Result{Disposition: confidence.Complete}))

	again, err := mgr.Start(ctx, ingestEnvelope("j3"))
	require.NoError(t, err)
	require.Equal(t, job.StatusComplete, again.Status)
}

func TestManager_ClarificationFollowUpAcceptedOnceThenRejected(t *testing.T) {
	mgr, _, _ := newManager()
	ctx := context.Background()

	env := ingestEnvelope("j4")
	j, err := mgr.Start(ctx, env)
	require.NoError(t, err)
	require.NoError(t, mgr.CompleteIngest(ctx, j, map[string]any{}, confidence.Result{Disposition: confidence.AwaitingClarification, ClarificationFields: []string{"location"}}))

	followUp := env
	followUp.Input.ClarificationAnswers = map[string]any{"location": "Main St"}

	resumed, err := mgr.Start(ctx, followUp)
	require.NoError(t, err)
	require.Equal(t, job.StatusRunning, resumed.Status)

	_, err = mgr.Start(ctx, followUp)
	require.True(t, orcherr.Is(err, orcherr.InvalidTransition))
}

func TestManager_FailTransitionsAndPublishesJobFailed(t *testing.T) {
	mgr, tr, _ := newManager()
	ctx := context.Background()

	j, err := mgr.Start(ctx, ingestEnvelope("j5"))
	require.NoError(t, err)

	err = mgr.Fail(ctx, j, orcherr.AgentFailed, "agent x failed")
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, j.Status)
	require.Equal(t, orcherr.AgentFailed, j.ErrorKind)
	require.Contains(t, tr.types(), status.EventJobFailed)
}

func TestManager_CompleteQueryStoresSummaryWithoutTouchingRecordStore(t *testing.T) {
	mgr, _, _ := newManager()
	ctx := context.Background()

	j, err := mgr.Start(ctx, config.JobEnvelope{
		JobID: "q1", TenantID: "t1", UserID: "u1", JobType: config.JobTypeQuery, DomainID: "d1",
		Input: config.JobInput{Question: "how many potholes near main st?"},
	})
	require.NoError(t, err)
	require.Empty(t, j.RecordID)

	err = mgr.CompleteQuery(ctx, j, "there are 3 open reports", []string{"rec-1", "rec-2"})
	require.NoError(t, err)
	require.Equal(t, job.StatusComplete, j.Status)
	require.Equal(t, "there are 3 open reports", j.Summary)
	require.Equal(t, []string{"rec-1", "rec-2"}, j.ReferencesUsed)
}

func TestManager_CompleteManagementAppendsHistory(t *testing.T) {
	mgr, _, records := newManager()
	ctx := context.Background()

	recordID, err := records.CreateRecord(ctx, "t1", recordstore.Record{TenantID: "t1", DomainID: "d1"})
	require.NoError(t, err)

	j, err := mgr.Start(ctx, config.JobEnvelope{
		JobID: "m1", TenantID: "t1", UserID: "u1", JobType: config.JobTypeManagement,
		DomainID: "d1", RecordID: recordID,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.CompleteManagement(ctx, j, map[string]any{"status": "closed"}))

	rec, err := records.GetRecord(ctx, "t1", recordID)
	require.NoError(t, err)
	require.Equal(t, "closed", rec.ManagementData["status"])
	history, ok := rec.ManagementData["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
}
