package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatcher_DrainsOnStop(t *testing.T) {
	tracker, db := newTestTracker(t)
	d := NewDispatcher(tracker, zaptest.NewLogger(t), 2, 64)
	d.Start()

	for i := 0; i < 20; i++ {
		assert.True(t, d.Enqueue(NewSuccessRecord("user-1", sampleRequest("p"), sampleResult(), time.Millisecond)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	var count int64
	require.NoError(t, db.Model(&UsageLog{}).Count(&count).Error)
	assert.Equal(t, int64(20), count)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	tracker, _ := newTestTracker(t)
	d := NewDispatcher(tracker, zaptest.NewLogger(t), 1, 1)

	// 未启动消费协程，缓冲为 1
	assert.True(t, d.Enqueue(&Record{RequestID: "a", Provider: "openai"}))
	assert.False(t, d.Enqueue(&Record{RequestID: "b", Provider: "openai"}))
	assert.False(t, d.Enqueue(nil))
}

func TestDispatcher_RejectsAfterStop(t *testing.T) {
	tracker, _ := newTestTracker(t)
	d := NewDispatcher(tracker, zaptest.NewLogger(t), 1, 4)
	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()))

	assert.False(t, d.Enqueue(&Record{RequestID: "late", Provider: "openai"}))
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	err     error
	recs    []*Record
	release chan struct{}
}

func (f *fakeEnqueuer) EnqueueRecordUsage(ctx context.Context, rec *Record) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

type collectSink struct {
	mu   sync.Mutex
	recs []*Record
}

func (s *collectSink) Enqueue(rec *Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return true
}

func (s *collectSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r.RequestID)
	}
	return out
}

func TestQueueRecorder(t *testing.T) {
	t.Run("入队成功", func(t *testing.T) {
		client := &fakeEnqueuer{}
		q := NewQueueRecorder(client, nil, zaptest.NewLogger(t), 1, 8)
		q.Start()

		assert.True(t, q.Enqueue(&Record{RequestID: "r1"}))
		require.NoError(t, q.Stop(context.Background()))
		require.Equal(t, 1, client.count())
		assert.Equal(t, "r1", client.recs[0].RequestID)
	})

	t.Run("入队失败交给 fallback", func(t *testing.T) {
		fallback := &collectSink{}
		q := NewQueueRecorder(&fakeEnqueuer{err: errors.New("redis down")}, fallback, zaptest.NewLogger(t), 1, 8)
		q.Start()

		assert.True(t, q.Enqueue(&Record{RequestID: "r2"}))
		require.NoError(t, q.Stop(context.Background()))
		assert.Equal(t, []string{"r2"}, fallback.ids())
	})

	t.Run("队列阻塞时不拖慢调用方", func(t *testing.T) {
		client := &fakeEnqueuer{release: make(chan struct{})}
		q := NewQueueRecorder(client, nil, zaptest.NewLogger(t), 1, 8)
		q.Start()

		start := time.Now()
		for i := 0; i < 5; i++ {
			assert.True(t, q.Enqueue(&Record{RequestID: "slow"}))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		close(client.release)
		require.NoError(t, q.Stop(context.Background()))
		assert.Equal(t, 5, client.count())
	})

	t.Run("缓冲已满交给 fallback", func(t *testing.T) {
		fallback := &collectSink{}
		// 未启动入队协程，缓冲为 1
		q := NewQueueRecorder(&fakeEnqueuer{}, fallback, zaptest.NewLogger(t), 1, 1)

		assert.True(t, q.Enqueue(&Record{RequestID: "buffered"}))
		assert.True(t, q.Enqueue(&Record{RequestID: "overflow"}))
		assert.Equal(t, []string{"overflow"}, fallback.ids())
	})

	t.Run("停止后无 fallback 时丢弃", func(t *testing.T) {
		q := NewQueueRecorder(&fakeEnqueuer{}, nil, zaptest.NewLogger(t), 1, 8)
		q.Start()
		require.NoError(t, q.Stop(context.Background()))
		require.NoError(t, q.Stop(context.Background()))

		assert.False(t, q.Enqueue(&Record{RequestID: "late"}))
		assert.False(t, q.Enqueue(nil))
	})
}
