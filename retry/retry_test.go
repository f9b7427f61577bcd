package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/orcherr"
	"github.com/arcflow/orchestrator/retry"
)

func TestPolicy_Do_SucceedsWithoutRetryOnFirstSuccess(t *testing.T) {
	calls := 0
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestPolicy_Do_RetriesRetriableThenSucceeds(t *testing.T) {
	calls := 0
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return orcherr.New(orcherr.ToolBusy, "broker", "Invoke", "busy", nil)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestPolicy_Do_StopsImmediatelyOnFatalError(t *testing.T) {
	calls := 0
	p := retry.DefaultPolicy()
	fatal := orcherr.New(orcherr.AgentFailed, "agent", "Run", "bad prompt", nil)
	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestPolicy_Do_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	busy := orcherr.New(orcherr.ToolBusy, "broker", "Invoke", "busy", nil)
	err := p.Do(context.Background(), func() error {
		calls++
		return busy
	})
	require.ErrorIs(t, err, busy)
	require.Equal(t, 3, calls)
}

func TestPolicy_Do_ContextCancelledAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := retry.DefaultPolicy()
	err := p.Do(ctx, func() error {
		t.Fatal("fn should not be called once context is done")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_Delay_GrowsExponentiallyAndCapsAtMaxDelay(t *testing.T) {
	p := retry.Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, JitterFactor: 0}
	require.Equal(t, 100*time.Millisecond, p.Delay(1))
	require.Equal(t, 200*time.Millisecond, p.Delay(2))
	require.Equal(t, 300*time.Millisecond, p.Delay(3)) // would be 400ms, capped
}

func TestDoWithResult_ReturnsValueOnSuccess(t *testing.T) {
	p := retry.DefaultPolicy()
	v, err := retry.DoWithResult(context.Background(), p, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestDoWithResult_FatalErrorReturnsZeroValue(t *testing.T) {
	p := retry.DefaultPolicy()
	fatal := errors.New("plain fatal")
	v, err := retry.DoWithResult(context.Background(), p, func() (int, error) {
		return 7, fatal
	})
	require.Error(t, err)
	require.Equal(t, 0, v)
}
