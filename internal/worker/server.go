package worker

import (
	"context"

	"aiwriter/internal/usage"
	"aiwriter/internal/worker/handlers"
	"aiwriter/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 后台任务消费者
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer 创建 Worker 服务器，消费用量记录任务
func NewServer(opt asynq.RedisConnOpt, concurrency int, tracker *usage.Tracker, logger *zap.Logger) *Server {
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			tasks.QueueUsage: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("任务执行失败",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err),
			)
		}),
		Logger: newAsynqLogger(logger),
	})

	return &Server{
		server: srv,
		mux:    NewServeMux(tracker, logger),
		logger: logger,
	}
}

// NewServeMux 注册任务处理器
func NewServeMux(tracker *usage.Tracker, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	usageHandler := handlers.NewUsageHandler(tracker, logger)
	mux.HandleFunc(tasks.TypeRecordUsage, usageHandler.HandleRecordUsage)
	return mux
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}

// asynqLogger 把 asynq 内部日志转到 zap
type asynqLogger struct {
	sugar *zap.SugaredLogger
}

func newAsynqLogger(l *zap.Logger) *asynqLogger {
	return &asynqLogger{sugar: l.Named("asynq").Sugar()}
}

func (l *asynqLogger) Debug(args ...any) { l.sugar.Debug(args...) }
func (l *asynqLogger) Info(args ...any)  { l.sugar.Info(args...) }
func (l *asynqLogger) Warn(args ...any)  { l.sugar.Warn(args...) }
func (l *asynqLogger) Error(args ...any) { l.sugar.Error(args...) }
func (l *asynqLogger) Fatal(args ...any) { l.sugar.Fatal(args...) }
