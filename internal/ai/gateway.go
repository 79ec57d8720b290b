package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/metrics"
	"aiwriter/internal/usage"
	"aiwriter/pkg/aiinterface"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultRequestTimeout 网关默认请求超时
	DefaultRequestTimeout = aiinterface.DefaultTimeoutMs * time.Millisecond
	// HealthCheckTimeout 单个提供方健康检查超时
	HealthCheckTimeout = 5 * time.Second
)

// Gateway AI 网关核心
type Gateway struct {
	registry *Registry
	sink     UsageSink
	logger   *zap.Logger
	tracer   trace.Tracer

	mu            sync.RWMutex
	timeout       time.Duration
	healthTimeout time.Duration
}

// NewGateway 创建网关，sink 为 nil 时不记录用量
func NewGateway(registry *Registry, sink UsageSink, logger *zap.Logger) *Gateway {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		registry:      registry,
		sink:          sink,
		logger:        logger,
		tracer:        otel.Tracer("aiwriter/internal/ai/gateway"),
		timeout:       DefaultRequestTimeout,
		healthTimeout: HealthCheckTimeout,
	}
}

// Registry 返回底层注册表
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// RegisterAdapter 注册适配器
func (g *Gateway) RegisterAdapter(adapter ModelAdapter, isDefault bool) error {
	if err := g.registry.Register(adapter, isDefault); err != nil {
		return err
	}
	g.logger.Info("注册 AI 适配器",
		zap.String("provider", adapter.Provider()),
		zap.String("model", adapter.Model()),
		zap.Bool("is_default", isDefault),
	)
	return nil
}

// SetRequestTimeout 设置网关默认超时，非正数忽略
func (g *Gateway) SetRequestTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	g.timeout = d
	g.mu.Unlock()
}

// RequestTimeout 当前网关默认超时
func (g *Gateway) RequestTimeout() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.timeout
}

// SetHealthTimeout 设置单个提供方健康检查超时，非正数忽略
func (g *Gateway) SetHealthTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	g.mu.Lock()
	g.healthTimeout = d
	g.mu.Unlock()
}

func (g *Gateway) healthCheckTimeout() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.healthTimeout
}

// GetRegisteredProviders 列出已注册适配器
func (g *Gateway) GetRegisteredProviders() []ProviderInfo {
	return g.registry.Providers()
}

// ResolveProvider 返回请求实际会命中的提供方，无可用适配器时原样返回请求中的 provider
func (g *Gateway) ResolveProvider(req *GenerateRequest) string {
	if req == nil {
		return ""
	}
	adapter, err := g.registry.Select(req.Provider, req.Model)
	if err != nil {
		return req.Provider
	}
	return adapter.Provider()
}

type callResult struct {
	result *GenerateResult
	err    error
}

// Generate 选择适配器并在超时内执行生成
// 超时后立即返回，同时取消传给适配器的 ctx；用量记录只投递不等待
func (g *Gateway) Generate(ctx context.Context, req *GenerateRequest, userID string) (*GenerateResponse, error) {
	if req == nil || req.Prompt == "" {
		return nil, aierr.NewInvalidRequest("prompt is required", nil)
	}

	ctx, span := g.tracer.Start(ctx, "Gateway.Generate",
		trace.WithAttributes(
			attribute.String("ai.request.provider", req.Provider),
			attribute.String("ai.request.model", req.Model),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	start := time.Now()

	adapter, err := g.registry.Select(req.Provider, req.Model)
	if err != nil {
		g.fail(span, userID, req, req.Provider, req.Model, err, time.Since(start))
		return nil, err
	}
	provider, model := adapter.Provider(), adapter.Model()
	span.SetAttributes(
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", model),
	)

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = g.RequestTimeout()
	}

	res, err := g.invoke(ctx, adapter, req, timeout)
	latency := time.Since(start)
	if err != nil {
		g.fail(span, userID, req, provider, model, err, latency)
		return nil, err
	}

	if res.Provider == "" {
		res.Provider = provider
	}
	if res.Model == "" {
		res.Model = model
	}
	if res.Usage.TotalTokens == 0 {
		res.Usage.TotalTokens = res.Usage.PromptTokens + res.Usage.CompletionTokens
	}
	res.Latency = latency

	metrics.RecordModelCall(res.Provider, res.Model, latency.Seconds(),
		res.Usage.PromptTokens, res.Usage.CompletionTokens, res.CostEstimate.Amount)
	g.enqueue(usage.NewSuccessRecord(userID, req, res, latency))

	span.SetAttributes(
		attribute.Int("ai.usage.total_tokens", res.Usage.TotalTokens),
		attribute.Float64("ai.cost.amount", res.CostEstimate.Amount),
	)
	span.SetStatus(codes.Ok, "")

	return &GenerateResponse{
		Output:       res.Output,
		Provider:     res.Provider,
		Model:        res.Model,
		Cached:       res.Cached,
		Usage:        res.Usage,
		Latency:      latency.Milliseconds(),
		CostEstimate: res.CostEstimate,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// invoke 在独立协程中调用适配器，与超时竞争，先到者决定结果
func (g *Gateway) invoke(ctx context.Context, adapter ModelAdapter, req *GenerateRequest, timeout time.Duration) (*GenerateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("adapter %s panicked: %v", adapter.Provider(), r)}
			}
		}()
		res, err := adapter.Generate(callCtx, req)
		done <- callResult{result: res, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err != nil && callCtx.Err() != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded):
			return nil, aierr.NewProviderTimeout(adapter.Provider(), timeout)
		case r.err != nil:
			return nil, r.err
		case r.result == nil:
			return nil, ErrEmptyResult
		}
		return r.result, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("AI 调用超时，放弃等待",
			zap.String("provider", adapter.Provider()),
			zap.String("model", adapter.Model()),
			zap.Duration("timeout", timeout),
		)
		return nil, aierr.NewProviderTimeout(adapter.Provider(), timeout)
	}
}

func (g *Gateway) fail(span trace.Span, userID string, req *GenerateRequest, provider, model string, err error, latency time.Duration) {
	code := aierr.UsageCode(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("ai.error.code", string(code)))

	metrics.RecordModelFailure(provider, model, string(code), latency.Seconds())
	g.logger.Warn("AI 生成失败",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.String("code", string(code)),
		zap.Duration("latency", latency),
		zap.Error(err),
	)
	g.enqueue(usage.NewFailureRecord(userID, req, provider, model, err, latency))
}

func (g *Gateway) enqueue(rec *usage.Record) {
	if g.sink == nil {
		return
	}
	g.sink.Enqueue(rec)
}

// Health 并发检查每个提供方（同一提供方只检查一次），不会返回错误
func (g *Gateway) Health(ctx context.Context) map[string]HealthStatus {
	ctx, span := g.tracer.Start(ctx, "Gateway.Health")
	defer span.End()

	adapters := g.registry.uniqueByProvider()
	results := make(map[string]HealthStatus, len(adapters))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, adapter := range adapters {
		wg.Add(1)
		go func(a ModelAdapter) {
			defer wg.Done()
			status := g.checkHealth(ctx, a)
			metrics.SetProviderHealth(a.Provider(), status.Healthy)

			mu.Lock()
			results[a.Provider()] = status
			mu.Unlock()
		}(adapter)
	}
	wg.Wait()

	span.SetAttributes(attribute.Int("ai.health.providers", len(results)))
	return results
}

func (g *Gateway) checkHealth(ctx context.Context, adapter ModelAdapter) HealthStatus {
	timeout := g.healthCheckTimeout()
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type healthResult struct {
		status *HealthStatus
		err    error
	}
	done := make(chan healthResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- healthResult{err: fmt.Errorf("health check panicked: %v", r)}
			}
		}()
		st, err := adapter.Health(checkCtx)
		done <- healthResult{status: st, err: err}
	}()

	select {
	case r := <-done:
		now := time.Now().UTC()
		switch {
		case r.err != nil:
			return HealthStatus{Healthy: false, LastChecked: now, Latency: time.Since(start).Milliseconds(), Message: r.err.Error()}
		case r.status == nil:
			return HealthStatus{Healthy: false, LastChecked: now, Message: "adapter returned no health status"}
		}
		st := *r.status
		if st.LastChecked.IsZero() {
			st.LastChecked = now
		}
		if st.Latency == 0 {
			st.Latency = time.Since(start).Milliseconds()
		}
		return st
	case <-checkCtx.Done():
		g.logger.Warn("健康检查超时", zap.String("provider", adapter.Provider()), zap.Duration("timeout", timeout))
		return HealthStatus{
			Healthy:     false,
			LastChecked: time.Now().UTC(),
			Message:     fmt.Sprintf("health check timeout after %dms", timeout.Milliseconds()),
		}
	}
}
