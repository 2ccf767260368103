package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateCronExpression(t *testing.T) {
	assert.NoError(t, ValidateCronExpression("0 */15 * * * *"))
	assert.NoError(t, ValidateCronExpression("@every 1m"))
	assert.Error(t, ValidateCronExpression("*/15 * * * *"))
	assert.Error(t, ValidateCronExpression("not a schedule"))
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	m := NewScheduleManager(zap.NewNop(), DefaultScheduleManagerConfig())
	assert.Error(t, m.AddJob("audit", "bogus", func(context.Context) error { return nil }))
	assert.Empty(t, m.Jobs())
}

func TestScheduledJobRuns(t *testing.T) {
	m := NewScheduleManager(zap.NewNop(), DefaultScheduleManagerConfig())

	var runs atomic.Int32
	require.NoError(t, m.AddJob("audit", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))
}

func TestRunNowAndReplace(t *testing.T) {
	m := NewScheduleManager(zap.NewNop(), DefaultScheduleManagerConfig())

	var first, second atomic.Int32
	require.NoError(t, m.AddJob("audit", "0 0 0 1 1 *", func(context.Context) error { first.Add(1); return nil }))
	require.NoError(t, m.AddJob("audit", "0 0 0 1 1 *", func(context.Context) error { second.Add(1); return nil }))
	require.Len(t, m.Jobs(), 1)

	require.NoError(t, m.RunNow("audit"))
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())

	assert.Error(t, m.RunNow("missing"))

	m.RemoveJob("audit")
	assert.Empty(t, m.Jobs())
}

func TestFailingAndPanickingJobsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewScheduleManager(zap.New(core), DefaultScheduleManagerConfig())

	require.NoError(t, m.AddJob("failing", "0 0 0 1 1 *", func(context.Context) error { return errors.New("ledger offline") }))
	require.NoError(t, m.AddJob("panicking", "0 0 0 1 1 *", func(context.Context) error { panic("boom") }))

	require.NoError(t, m.RunNow("failing"))
	require.NoError(t, m.RunNow("panicking"))

	assert.Equal(t, 1, logs.FilterMessage("Scheduled job failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("panic").Len())
}
