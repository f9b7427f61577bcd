package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/retry"
)

func TestCircuitBreaker_OpensAfterConsecutiveFatals(t *testing.T) {
	b := retry.NewCircuitBreaker(3, time.Hour)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFatal()
	}
	require.Equal(t, retry.Closed, b.State())

	require.NoError(t, b.Allow())
	b.RecordFatal()
	require.Equal(t, retry.Open, b.State())

	err := b.Allow()
	require.True(t, orcherr.Is(err, orcherr.ToolUnavailable))
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	b := retry.NewCircuitBreaker(3, time.Hour)
	b.RecordFatal()
	b.RecordFatal()
	b.RecordSuccess()
	b.RecordFatal()
	b.RecordFatal()
	require.Equal(t, retry.Closed, b.State())
}

func TestCircuitBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	b := retry.NewCircuitBreaker(1, 10*time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordFatal()
	require.Equal(t, retry.Open, b.State())

	require.Error(t, b.Allow())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, retry.HalfOpen, b.State())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := retry.NewCircuitBreaker(1, 10*time.Millisecond)
	b.RecordFatal()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordSuccess()
	require.Equal(t, retry.Closed, b.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := retry.NewCircuitBreaker(1, 10*time.Millisecond)
	b.RecordFatal()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.RecordFatal()
	require.Equal(t, retry.Open, b.State())
}
