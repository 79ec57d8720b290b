package usage

import (
	"context"
	"sync"
	"time"

	"aiwriter/internal/metrics"

	"go.uber.org/zap"
)

// RecordEnqueuer 任务队列客户端中与用量相关的部分
type RecordEnqueuer interface {
	EnqueueRecordUsage(ctx context.Context, rec *Record) error
}

const (
	enqueueTimeout      = 2 * time.Second
	defaultQueueBuffer  = 1024
	defaultQueueWorkers = 2
)

// QueueRecorder 把用量记录作为异步任务投递到任务队列，由 worker 消费写库
// Enqueue 只写本地缓冲，入队的网络往返由后台协程完成
type QueueRecorder struct {
	client   RecordEnqueuer
	fallback Sink
	logger   *zap.Logger
	workers  int

	mu      sync.RWMutex
	pending chan *Record
	closed  bool
	wg      sync.WaitGroup
	once    sync.Once
}

// NewQueueRecorder 创建任务队列投递器，fallback 可为 nil；buffer/workers 非正数时使用默认值
func NewQueueRecorder(client RecordEnqueuer, fallback Sink, logger *zap.Logger, workers, buffer int) *QueueRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultQueueWorkers
	}
	if buffer <= 0 {
		buffer = defaultQueueBuffer
	}
	return &QueueRecorder{
		client:   client,
		fallback: fallback,
		logger:   logger,
		workers:  workers,
		pending:  make(chan *Record, buffer),
	}
}

// Start 启动入队协程
func (q *QueueRecorder) Start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.run()
		}
	})
}

func (q *QueueRecorder) run() {
	defer q.wg.Done()
	for rec := range q.pending {
		q.forward(rec)
	}
}

func (q *QueueRecorder) forward(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	err := q.client.EnqueueRecordUsage(ctx, rec)
	if err == nil {
		metrics.UsageRecordsTotal.WithLabelValues("enqueued").Inc()
		return
	}
	q.logger.Warn("用量任务入队失败",
		zap.Error(err),
		zap.String("request_id", rec.RequestID),
		zap.Bool("has_fallback", q.fallback != nil),
	)
	q.handOff(rec)
}

func (q *QueueRecorder) handOff(rec *Record) bool {
	if q.fallback != nil {
		return q.fallback.Enqueue(rec)
	}
	metrics.UsageRecordsTotal.WithLabelValues("dropped").Inc()
	return false
}

// Enqueue 写入本地缓冲后立即返回；缓冲已满或已停止时直接交给 fallback
func (q *QueueRecorder) Enqueue(rec *Record) bool {
	if rec == nil {
		return false
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.closed {
		select {
		case q.pending <- rec:
			return true
		default:
		}
	}
	q.logger.Warn("用量任务缓冲不可用", zap.Bool("closed", q.closed), zap.String("request_id", rec.RequestID))
	return q.handOff(rec)
}

// Stop 停止接收新记录，等待缓冲中的记录入队或 ctx 结束
func (q *QueueRecorder) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.pending)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		q.logger.Warn("用量任务缓冲停止超时", zap.Int("pending", len(q.pending)))
		return ctx.Err()
	}
}
