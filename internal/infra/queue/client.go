package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aiwriter/internal/metrics"
	"aiwriter/internal/usage"
	"aiwriter/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueRecordUsage(ctx context.Context, rec *usage.Record) error
	PendingUsageTasks() (int, error)
	Close() error
}

type asynqClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewClient 创建任务队列客户端
func NewClient(opt asynq.RedisConnOpt) Client {
	return &asynqClient{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// EnqueueRecordUsage 投递用量记录任务，以请求 ID 作为任务 ID 去重
func (c *asynqClient) EnqueueRecordUsage(ctx context.Context, rec *usage.Record) error {
	if rec == nil {
		return fmt.Errorf("usage record is nil")
	}
	payload, err := json.Marshal(tasks.RecordUsagePayload{Record: rec})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeRecordUsage, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue(tasks.QueueUsage),
		asynq.TaskID(rec.RequestID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// 同一请求已在队列中
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

// PendingUsageTasks 用量队列中等待处理的任务数
func (c *asynqClient) PendingUsageTasks() (int, error) {
	info, err := c.inspector.GetQueueInfo(tasks.QueueUsage)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return info.Pending + info.Retry, nil
}

func (c *asynqClient) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// DepthReporter 可查询积压长度的队列
type DepthReporter interface {
	PendingUsageTasks() (int, error)
}

// MonitorDepth 周期性上报用量队列积压，ctx 取消后退出
func MonitorDepth(ctx context.Context, q DepthReporter, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.PendingUsageTasks()
			if err != nil {
				logger.Debug("查询用量队列长度失败", zap.Error(err))
				continue
			}
			metrics.UsageQueueDepth.Set(float64(n))
		}
	}
}
