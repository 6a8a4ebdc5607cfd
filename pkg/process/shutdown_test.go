package process

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

func TestShutdownRunsHooksInReverse(t *testing.T) {
	sm := NewShutdownManager(time.Second, logger.Discard())

	var order []string
	for _, name := range []string{"runtime", "channel", "metrics"} {
		name := name
		sm.AddHook(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"metrics", "channel", "runtime"}, order)
	assert.Equal(t, "test", sm.Reason())

	select {
	case <-sm.Done():
	default:
		t.Fatal("Done() not closed after Shutdown")
	}

	// second call is a no-op
	require.NoError(t, sm.Shutdown(context.Background(), "again"))
	assert.Len(t, order, 3)
	assert.Equal(t, "test", sm.Reason())
}

func TestShutdownCollectsHookErrors(t *testing.T) {
	sm := NewShutdownManager(time.Second, logger.Discard())

	ran := false
	sm.AddHook("last", func(ctx context.Context) error {
		ran = true
		return nil
	})
	sm.AddHook("broken", func(ctx context.Context) error {
		return errors.New("boom")
	})

	err := sm.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInternal))
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, ran, "a failing hook must not stop the others")
}

func TestShutdownHookDeadline(t *testing.T) {
	sm := NewShutdownManager(20*time.Millisecond, logger.Discard())

	sm.AddHook("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	err := sm.Shutdown(context.Background(), "test")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForSignalContext(t *testing.T) {
	sm := NewShutdownManager(time.Second, logger.Discard())

	called := make(chan struct{})
	sm.AddHook("close", func(ctx context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.WaitForSignal(ctx))

	select {
	case <-called:
	default:
		t.Fatal("hook not run")
	}
	assert.Equal(t, context.Canceled.Error(), sm.Reason())
}
