package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"aiwriter/internal/quota"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Usage    UsageConfig    `mapstructure:"usage"`
	AI       AIConfig       `mapstructure:"ai"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	// ExposeErrorDetails 错误响应是否携带内部细节，生产环境应关闭
	ExposeErrorDetails bool `mapstructure:"expose_error_details"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	SlowThresholdMs int    `mapstructure:"slow_threshold_ms"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// Enabled 为 false 时仅在配额存储或用量队列需要时连接
	Enabled bool `mapstructure:"enabled"`

	// 连接模式: standalone(单节点), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MasterName       string   `mapstructure:"master_name"`
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`
	SentinelPassword string   `mapstructure:"sentinel_password"`

	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// Addr 单节点地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	DefaultTimeoutMs int             `mapstructure:"default_timeout_ms"`
	HealthTimeoutMs  int             `mapstructure:"health_timeout_ms"`
	DefaultProvider  string          `mapstructure:"default_provider"`
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
}

// DefaultTimeout 默认请求超时
func (c GatewayConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// HealthTimeout 健康检查超时
func (c GatewayConfig) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutMs) * time.Millisecond
}

// RateLimitConfig 生成接口的突发限流，0 表示关闭
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	BurstSize         int `mapstructure:"burst_size"`
}

// Enabled 是否启用限流
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// QuotaConfig 配额配置
type QuotaConfig struct {
	Store       string                `mapstructure:"store"` // database, redis
	DefaultTier string                `mapstructure:"default_tier"`
	Tiers       map[string]quota.Tier `mapstructure:"tiers"`
}

// UsageConfig 用量记录配置
type UsageConfig struct {
	Mode               string `mapstructure:"mode"` // inline, queue
	Workers            int    `mapstructure:"workers"`
	Buffer             int    `mapstructure:"buffer"`
	PromptExcerptRunes int    `mapstructure:"prompt_excerpt_runes"`
	QueueConcurrency   int    `mapstructure:"queue_concurrency"`
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 兼容提供方配置
type OpenAIConfig struct {
	Provider   string        `mapstructure:"provider"` // openai, deepseek, qwen, ollama
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	OrgID      string        `mapstructure:"org_id"`
	MaxRetries int           `mapstructure:"max_retries"`
	Models     []ModelConfig `mapstructure:"models"`
}

// ModelConfig 单个模型配置，单价为 0 时使用内置价格表
type ModelConfig struct {
	Name            string  `mapstructure:"name"`
	Default         bool    `mapstructure:"default"`
	InputCostPer1K  float64 `mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

var globalConfig *Config

// setDefaults 注册默认值，配置文件缺失的段落也能得到可用配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 60)
	v.SetDefault("server.write_timeout", 330)
	v.SetDefault("server.expose_error_details", false)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "aiwriter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "aiwriter.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.slow_threshold_ms", 200)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("gateway.default_timeout_ms", 30000)
	v.SetDefault("gateway.health_timeout_ms", 5000)

	v.SetDefault("quota.store", "database")
	v.SetDefault("quota.default_tier", quota.TierFree)

	v.SetDefault("usage.mode", "inline")
	v.SetDefault("usage.workers", 2)
	v.SetDefault("usage.buffer", 1024)
	v.SetDefault("usage.prompt_excerpt_runes", 2000)
	v.SetDefault("usage.queue_concurrency", 5)

	// 敏感项只来自环境变量，注册空默认值使 APP_* 覆盖生效
	v.SetDefault("database.password", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.password", "")
	v.SetDefault("ai.openai.api_key", "")
	v.SetDefault("ai.openai.base_url", "")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("ai.openai.provider", "openai")
	v.SetDefault("ai.openai.max_retries", 2)

	v.SetDefault("auth.issuer", "aiwriter")
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件：APP_DATABASE_HOST
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Default 返回仅包含默认值的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s (可选: postgres, sqlite)", c.Database.Driver)
	}
	switch c.Quota.Store {
	case "database", "redis":
	default:
		return fmt.Errorf("不支持的配额存储: %s (可选: database, redis)", c.Quota.Store)
	}
	switch c.Usage.Mode {
	case "inline", "queue":
	default:
		return fmt.Errorf("不支持的用量记录模式: %s (可选: inline, queue)", c.Usage.Mode)
	}
	if c.Gateway.DefaultTimeoutMs <= 0 {
		return fmt.Errorf("gateway.default_timeout_ms 必须大于 0")
	}
	return nil
}

// RequiresRedis 配额存储或用量队列依赖 Redis 时为 true
func (c *Config) RequiresRedis() bool {
	return c.Quota.Store == "redis" || c.Usage.Mode == "queue"
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
