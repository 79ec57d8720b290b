package usage

import (
	"context"
	"sync"
	"time"

	"aiwriter/internal/metrics"

	"go.uber.org/zap"
)

// Sink 用量记录投递口，Enqueue 不得阻塞调用方
type Sink interface {
	Enqueue(rec *Record) bool
}

// SinkFunc 函数适配器
type SinkFunc func(rec *Record) bool

// Enqueue 实现 Sink
func (f SinkFunc) Enqueue(rec *Record) bool {
	return f(rec)
}

const (
	defaultDispatchWorkers = 2
	defaultDispatchBuffer  = 1024
	persistTimeout         = 10 * time.Second
)

// Dispatcher 进程内用量队列：有界缓冲 + 固定数量的写入协程
type Dispatcher struct {
	tracker *Tracker
	logger  *zap.Logger
	workers int

	mu     sync.RWMutex
	queue  chan *Record
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDispatcher 创建进程内用量队列，workers/buffer 非正数时使用默认值
func NewDispatcher(tracker *Tracker, logger *zap.Logger, workers, buffer int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	if buffer <= 0 {
		buffer = defaultDispatchBuffer
	}
	return &Dispatcher{
		tracker: tracker,
		logger:  logger,
		workers: workers,
		queue:   make(chan *Record, buffer),
	}
}

// Start 启动写入协程
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
		d.logger.Info("用量写入队列已启动", zap.Int("workers", d.workers), zap.Int("buffer", cap(d.queue)))
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for rec := range d.queue {
		metrics.UsageQueueDepth.Set(float64(len(d.queue)))
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		d.tracker.RecordUsage(ctx, rec)
		cancel()
	}
}

// Enqueue 投递用量记录，队列已满或已关闭时丢弃并返回 false
func (d *Dispatcher) Enqueue(rec *Record) bool {
	if rec == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(rec, "closed")
		return false
	}

	select {
	case d.queue <- rec:
		metrics.UsageRecordsTotal.WithLabelValues("enqueued").Inc()
		metrics.UsageQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		d.drop(rec, "full")
		return false
	}
}

func (d *Dispatcher) drop(rec *Record, reason string) {
	metrics.UsageRecordsTotal.WithLabelValues("dropped").Inc()
	d.logger.Warn("丢弃用量记录",
		zap.String("reason", reason),
		zap.String("request_id", rec.RequestID),
		zap.String("user_id", rec.UserID),
		zap.String("provider", rec.Provider),
	)
}

// Stop 停止接收新记录，等待队列中的记录写完或 ctx 结束
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("用量写入队列已停止")
		return nil
	case <-ctx.Done():
		d.logger.Warn("用量写入队列停止超时", zap.Int("pending", len(d.queue)))
		return ctx.Err()
	}
}
