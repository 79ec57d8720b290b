package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("读取文件并补全默认值", func(t *testing.T) {
		path := writeConfig(t, `
database:
  driver: sqlite
  path: test.db
quota:
  default_tier: pro
  tiers:
    pro:
      name: pro
      daily_requests: 20
      monthly_requests: 200
      monthly_spend: 2.5
ai:
  openai:
    models:
      - name: gpt-4o-mini
        default: true
        input_cost_per_1k: 0.001
`)
		cfg, err := Load("test", path)
		require.NoError(t, err)

		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "test.db", cfg.Database.GetDSN())
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Gateway.DefaultTimeout())
		assert.Equal(t, 5*time.Second, cfg.Gateway.HealthTimeout())
		assert.Equal(t, "inline", cfg.Usage.Mode)
		assert.Equal(t, 2000, cfg.Usage.PromptExcerptRunes)

		require.Contains(t, cfg.Quota.Tiers, "pro")
		assert.Equal(t, int64(20), cfg.Quota.Tiers["pro"].DailyRequests)
		assert.Equal(t, 2.5, cfg.Quota.Tiers["pro"].MonthlySpend)

		require.Len(t, cfg.AI.OpenAI.Models, 1)
		assert.True(t, cfg.AI.OpenAI.Models[0].Default)
		assert.Equal(t, 0.001, cfg.AI.OpenAI.Models[0].InputCostPer1K)
		assert.Same(t, cfg, Get())
	})

	t.Run("环境变量覆盖配置文件", func(t *testing.T) {
		t.Setenv("APP_SERVER_PORT", "9090")
		t.Setenv("APP_USAGE_MODE", "queue")
		path := writeConfig(t, "server:\n  port: 8081\n")

		cfg, err := Load("test", path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "queue", cfg.Usage.Mode)
	})

	t.Run("敏感项来自环境变量", func(t *testing.T) {
		t.Setenv("APP_AI_OPENAI_API_KEY", "sk-test")
		t.Setenv("APP_AUTH_JWT_SECRET", "s3cret")
		path := writeConfig(t, "server:\n  port: 8081\n")

		cfg, err := Load("test", path)
		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.AI.OpenAI.APIKey)
		assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	})

	t.Run("非法枚举值", func(t *testing.T) {
		path := writeConfig(t, "quota:\n  store: memcached\n")

		_, err := Load("test", path)
		assert.ErrorContains(t, err, "memcached")
	})

	t.Run("指定文件不存在", func(t *testing.T) {
		_, err := Load("test", filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("按环境名查找不到文件时使用默认值", func(t *testing.T) {
		cfg, err := Load("no-such-env", "")
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Database.Driver)
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "database", cfg.Quota.Store)
	assert.Equal(t, "free", cfg.Quota.DefaultTier)
	assert.Equal(t, 1024, cfg.Usage.Buffer)
	assert.False(t, cfg.Gateway.RateLimit.Enabled())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Contains(t, cfg.Database.GetDSN(), "dbname=aiwriter")
}

func TestRequiresRedis(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.RequiresRedis())
	assert.False(t, cfg.Redis.Enabled)

	cfg.Usage.Mode = "queue"
	assert.True(t, cfg.RequiresRedis())

	cfg = Default()
	cfg.Quota.Store = "redis"
	assert.True(t, cfg.RequiresRedis())
}
