package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"aiwriter/internal/metrics"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeDepth struct {
	n     int
	err   error
	calls atomic.Int32
}

func (f *fakeDepth) PendingUsageTasks() (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestMonitorDepth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &fakeDepth{n: 7}
	done := make(chan struct{})
	go func() {
		MonitorDepth(ctx, q, 5*time.Millisecond, zaptest.NewLogger(t))
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.UsageQueueDepth) == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MonitorDepth 未在 ctx 取消后退出")
	}
}

func TestMonitorDepth_ErrorKeepsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &fakeDepth{err: errors.New("redis down")}
	done := make(chan struct{})
	go func() {
		MonitorDepth(ctx, q, 5*time.Millisecond, zaptest.NewLogger(t))
		close(done)
	}()

	assert.Eventually(t, func() bool { return q.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestEnqueueRecordUsage_NilRecord(t *testing.T) {
	c := NewClient(asynq.RedisClientOpt{Addr: "localhost:0"})
	defer c.Close()

	err := c.EnqueueRecordUsage(context.Background(), nil)
	assert.Error(t, err)
}
