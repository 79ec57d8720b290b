package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	authHandlers "aiwriter/api/handlers/auth"
	gatewayHandlers "aiwriter/api/handlers/gateway"
	quotaHandlers "aiwriter/api/handlers/quota"
	usageHandlers "aiwriter/api/handlers/usage"
	"aiwriter/internal/ai"
	"aiwriter/internal/ai/openai"
	"aiwriter/internal/auth"
	"aiwriter/internal/config"
	"aiwriter/internal/infra"
	"aiwriter/internal/infra/queue"
	middlewarepkg "aiwriter/internal/middleware"
	"aiwriter/internal/quota"
	"aiwriter/internal/usage"
	"aiwriter/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const devJWTSecret = "default_jwt_secret_key_change_in_production"

// queueDepthInterval 用量队列积压采样间隔
const queueDepthInterval = 15 * time.Second

// AppContainer 应用依赖容器
type AppContainer struct {
	DB          *gorm.DB
	Config      *config.Config
	Logger      *zap.Logger
	RedisClient redis.UniversalClient

	JWTService     *auth.JWTService
	AdapterFactory ai.AdapterFactory
	Gateway        *ai.Gateway
	QuotaManager   *quota.Manager
	UsageTracker   *usage.Tracker
	Dispatcher     *usage.Dispatcher
	QueueClient    queue.Client
	QueueRecorder  *usage.QueueRecorder
	WorkerServer   *worker.Server
	RateLimiter    *middlewarepkg.RateLimiter

	stopMonitor context.CancelFunc
}

// Handlers 所有 HTTP Handler
type Handlers struct {
	Auth    *authHandlers.AuthHandler
	Gateway *gatewayHandlers.Handler
	Quota   *quotaHandlers.Handler
	Usage   *usageHandlers.Handler
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config, logger *zap.Logger) (*AppContainer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	container := &AppContainer{
		DB:             db,
		Config:         cfg,
		Logger:         logger,
		AdapterFactory: openai.NewFactory(),
	}

	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(db, quota.AutoMigrate, usage.AutoMigrate); err != nil {
			return nil, err
		}
	}

	if err := container.initRedis(cfg); err != nil {
		return nil, err
	}
	if err := container.initAuth(cfg); err != nil {
		return nil, err
	}
	container.initQuota(cfg)
	container.initUsage(cfg)
	container.initGateway(cfg)
	if err := container.initAdapters(cfg); err != nil {
		return nil, err
	}
	container.initRateLimiter(cfg)

	return container, nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	expose := c.Config.Server.ExposeErrorDetails
	return &Handlers{
		Auth:    authHandlers.NewAuthHandler(c.JWTService),
		Gateway: gatewayHandlers.NewHandler(c.Gateway, c.QuotaManager, expose),
		Quota:   quotaHandlers.NewHandler(c.QuotaManager, expose),
		Usage:   usageHandlers.NewHandler(c.UsageTracker, expose),
	}
}

func (c *AppContainer) initRedis(cfg *config.Config) error {
	required := cfg.RequiresRedis()
	if !required && !cfg.Redis.Enabled {
		c.Logger.Info("未启用 Redis，令牌黑名单不可用")
		return nil
	}

	rdb, err := infra.InitRedis(context.Background(), cfg.Redis)
	if err != nil {
		if required {
			return fmt.Errorf("配额存储或用量队列依赖 Redis: %w", err)
		}
		c.Logger.Warn("Redis 不可用，令牌黑名单不可用", zap.Error(err))
		return nil
	}
	c.RedisClient = rdb
	return nil
}

func (c *AppContainer) initAuth(cfg *config.Config) error {
	secret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if secret == "" {
		if strings.EqualFold(cfg.Server.Mode, "release") {
			return errors.New("auth.jwt_secret 未配置，生产环境禁止使用默认密钥")
		}
		secret = devJWTSecret
		c.Logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}
	c.JWTService = auth.NewJWTService(secret, cfg.Auth.Issuer, c.RedisClient)
	return nil
}

func (c *AppContainer) initQuota(cfg *config.Config) {
	var store quota.Store
	if cfg.Quota.Store == "redis" {
		store = quota.NewRedisStore(c.RedisClient)
	} else {
		store = quota.NewGormStore(c.DB)
	}
	c.QuotaManager = quota.NewManager(store, quota.Config{
		DefaultTier: cfg.Quota.DefaultTier,
		Tiers:       cfg.Quota.Tiers,
	}, c.Logger.Named("quota"))
	c.Logger.Info("配额管理器初始化", zap.String("store", cfg.Quota.Store), zap.String("default_tier", cfg.Quota.DefaultTier))
}

func (c *AppContainer) initUsage(cfg *config.Config) {
	c.UsageTracker = usage.NewTracker(usage.NewGormStore(c.DB), c.Logger.Named("usage"))
	c.UsageTracker.SetPromptExcerptLimit(cfg.Usage.PromptExcerptRunes)

	// 队列模式下仍保留进程内分发器，入队失败时兜底
	c.Dispatcher = usage.NewDispatcher(c.UsageTracker, c.Logger.Named("usage"), cfg.Usage.Workers, cfg.Usage.Buffer)
	c.Dispatcher.Start()

	if cfg.Usage.Mode != "queue" {
		return
	}
	opt := infra.AsynqRedisOpt(cfg.Redis)
	c.QueueClient = queue.NewClient(opt)
	c.QueueRecorder = usage.NewQueueRecorder(c.QueueClient, c.Dispatcher, c.Logger.Named("usage"), cfg.Usage.Workers, cfg.Usage.Buffer)
	c.QueueRecorder.Start()
	c.WorkerServer = worker.NewServer(opt, cfg.Usage.QueueConcurrency, c.UsageTracker, c.Logger.Named("worker"))

	ctx, cancel := context.WithCancel(context.Background())
	c.stopMonitor = cancel
	go queue.MonitorDepth(ctx, c.QueueClient, queueDepthInterval, c.Logger.Named("queue"))
}

// usageSink 当前模式下网关使用的用量投递口
func (c *AppContainer) usageSink() usage.Sink {
	if c.QueueRecorder != nil {
		return c.QueueRecorder
	}
	return c.Dispatcher
}

func (c *AppContainer) initGateway(cfg *config.Config) {
	c.Gateway = ai.NewGateway(ai.NewRegistry(), c.usageSink(), c.Logger.Named("gateway"))
	c.Gateway.SetRequestTimeout(cfg.Gateway.DefaultTimeout())
	c.Gateway.SetHealthTimeout(cfg.Gateway.HealthTimeout())
}

// initAdapters 按配置为每个模型注册适配器，未配置凭证时跳过
func (c *AppContainer) initAdapters(cfg *config.Config) error {
	oc := cfg.AI.OpenAI
	if oc.APIKey == "" && oc.Provider != openai.ProviderOllama {
		c.Logger.Warn("未配置 AI 凭证，网关暂无可用适配器", zap.String("provider", oc.Provider))
		return nil
	}

	// 默认模型最后注册，仅指定 provider 的请求命中它
	defaultIdx, hasDefault := 0, false
	for i, m := range oc.Models {
		if m.Default {
			defaultIdx, hasDefault = i, true
			break
		}
	}
	order := make([]int, 0, len(oc.Models))
	for i := range oc.Models {
		if i != defaultIdx {
			order = append(order, i)
		}
	}
	if len(oc.Models) > 0 {
		order = append(order, defaultIdx)
	}

	for _, i := range order {
		m := oc.Models[i]
		adapter, err := c.AdapterFactory.CreateAdapter(&ai.AdapterConfig{
			Provider:        oc.Provider,
			Model:           m.Name,
			APIKey:          oc.APIKey,
			BaseURL:         oc.BaseURL,
			OrgID:           oc.OrgID,
			MaxRetries:      oc.MaxRetries,
			InputCostPer1K:  m.InputCostPer1K,
			OutputCostPer1K: m.OutputCostPer1K,
			MaxTokens:       m.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("创建适配器 %s/%s 失败: %w", oc.Provider, m.Name, err)
		}
		isDefault := i == defaultIdx && (hasDefault || oc.Provider == cfg.Gateway.DefaultProvider)
		if err := c.Gateway.RegisterAdapter(adapter, isDefault); err != nil {
			return err
		}
	}
	return nil
}

func (c *AppContainer) initRateLimiter(cfg *config.Config) {
	rl := cfg.Gateway.RateLimit
	if !rl.Enabled() {
		return
	}
	limiterCfg := middlewarepkg.DefaultRateLimiterConfig()
	limiterCfg.RequestsPerSecond = rl.RequestsPerSecond
	limiterCfg.RequestsPerMinute = rl.RequestsPerMinute
	limiterCfg.BurstSize = rl.BurstSize
	c.RateLimiter = middlewarepkg.NewRateLimiter(limiterCfg)
}

// Close 按依赖逆序释放资源，ctx 限定用量记录的排空时间
func (c *AppContainer) Close(ctx context.Context) error {
	var errs []error
	if c.RateLimiter != nil {
		c.RateLimiter.Stop()
	}
	if c.stopMonitor != nil {
		c.stopMonitor()
	}
	if c.WorkerServer != nil {
		c.WorkerServer.Shutdown()
	}
	if c.QueueRecorder != nil {
		errs = append(errs, c.QueueRecorder.Stop(ctx))
	}
	if c.QueueClient != nil {
		errs = append(errs, c.QueueClient.Close())
	}
	if c.Dispatcher != nil {
		errs = append(errs, c.Dispatcher.Stop(ctx))
	}
	if c.RedisClient != nil {
		errs = append(errs, c.RedisClient.Close())
	}
	return errors.Join(errs...)
}
