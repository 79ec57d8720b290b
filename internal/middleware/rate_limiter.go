package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"aiwriter/internal/ai/aierr"

	"github.com/gin-gonic/gin"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerSecond int           // 每秒补充令牌数
	RequestsPerMinute int           // 每分钟请求上限，0 表示不限
	BurstSize         int           // 突发容量
	CleanupInterval   time.Duration // 清理间隔
	IdleTTL           time.Duration // 空闲多久后清除客户端状态
}

// DefaultRateLimiterConfig 默认配置
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 10,
		RequestsPerMinute: 300,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

// clientState 客户端状态
type clientState struct {
	tokens      float64
	lastUpdate  time.Time
	requests    int64
	minuteStart time.Time
}

// RateLimiter 按 key 的令牌桶限流器
// 用于挡住短时突发，与按天/按月的用户配额互不替代
type RateLimiter struct {
	config  RateLimiterConfig
	clients map[string]*clientState
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewRateLimiter 创建限流器并启动清理协程
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	cfg := *config
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = max(1, cfg.RequestsPerSecond)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}

	rl := &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientState),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanup()
	return rl
}

// Allow 检查是否允许请求，拒绝时返回建议的等待时间
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	state, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &clientState{
			tokens:      float64(rl.config.BurstSize - 1),
			lastUpdate:  now,
			requests:    1,
			minuteStart: now,
		}
		return true, 0
	}

	// 令牌桶：按经过时间补充
	elapsed := now.Sub(state.lastUpdate).Seconds()
	state.tokens = math.Min(float64(rl.config.BurstSize), state.tokens+elapsed*float64(rl.config.RequestsPerSecond))
	state.lastUpdate = now

	if now.Sub(state.minuteStart) >= time.Minute {
		state.requests = 0
		state.minuteStart = now
	}

	if rl.config.RequestsPerMinute > 0 && state.requests >= int64(rl.config.RequestsPerMinute) {
		return false, state.minuteStart.Add(time.Minute).Sub(now)
	}
	if state.tokens < 1 {
		wait := time.Second
		if rl.config.RequestsPerSecond > 0 {
			wait = time.Duration((1 - state.tokens) / float64(rl.config.RequestsPerSecond) * float64(time.Second))
		}
		return false, wait
	}

	state.tokens--
	state.requests++
	return true, 0
}

// cleanup 定期清理空闲客户端
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, state := range rl.clients {
		if now.Sub(state.lastUpdate) > rl.config.IdleTTL {
			delete(rl.clients, key)
		}
	}
}

// Stop 停止限流器
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// ActiveClients 当前跟踪的客户端数
func (rl *RateLimiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// RateLimitMiddleware 限流中间件，优先按用户 ID，其次按 IP
// 拒绝时按统一错误格式返回 RATE_LIMIT
func RateLimitMiddleware(limiter *RateLimiter, userIDKey string, exposeDetails bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(userIDKey)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		ok, wait := limiter.Allow(key)
		if !ok {
			retryAfter := time.Duration(math.Ceil(wait.Seconds())) * time.Second
			if retryAfter < time.Second {
				retryAfter = time.Second
			}
			status, body := aierr.FormatErrorResponse(aierr.NewRateLimitExceeded("gateway", retryAfter), exposeDetails)
			c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}
