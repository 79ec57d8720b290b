package infra

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"aiwriter/internal/config"
	"aiwriter/internal/logger"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormLogger "gorm.io/gorm/logger"
)

func TestInitDatabase_SQLite(t *testing.T) {
	cfg := config.Default().Database
	cfg.Driver = "sqlite"
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := InitDatabase(&cfg, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase() })

	assert.Same(t, db, GetDB())
	assert.NoError(t, HealthCheck(context.Background(), db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestInitDatabase_UnknownDriver(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "mysql"}

	_, err := InitDatabase(&cfg, false)
	assert.ErrorContains(t, err, "mysql")
}

func TestGormZapLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &GormZapLogger{
		ZapLogger:                 zap.New(core),
		LogLevel:                  gormLogger.Info,
		SlowThreshold:             100 * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}
	ctx := logger.WithRequestID(context.Background(), "req-9")
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), fc, nil)
	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	l.Trace(ctx, time.Now(), fc, errors.New("boom"))
	l.Trace(ctx, time.Now(), fc, gormLogger.ErrRecordNotFound)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
	assert.Equal(t, "req-9", entries[0].ContextMap()["request_id"])

	silent := l.LogMode(gormLogger.Silent)
	silent.Trace(ctx, time.Now(), fc, errors.New("ignored"))
	assert.Equal(t, 4, logs.Len())
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(config.RedisConfig{Mode: "sentinel"})
	assert.Error(t, err)

	_, err = NewRedisClient(config.RedisConfig{Mode: "cluster"})
	assert.Error(t, err)

	_, err = NewRedisClient(config.RedisConfig{Mode: "mesh"})
	assert.ErrorContains(t, err, "mesh")

	rdb, err := NewRedisClient(config.RedisConfig{Host: "localhost", Port: 6379})
	require.NoError(t, err)
	assert.NoError(t, rdb.Close())
}

func TestAsynqRedisOpt(t *testing.T) {
	opt := AsynqRedisOpt(config.RedisConfig{Host: "redis", Port: 6380, DB: 2})
	standalone, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "redis:6380", standalone.Addr)
	assert.Equal(t, 2, standalone.DB)

	opt = AsynqRedisOpt(config.RedisConfig{Mode: "cluster", ClusterAddrs: []string{"a:1", "b:2"}})
	cluster, ok := opt.(asynq.RedisClusterClientOpt)
	require.True(t, ok)
	assert.Equal(t, []string{"a:1", "b:2"}, cluster.Addrs)

	opt = AsynqRedisOpt(config.RedisConfig{Mode: "sentinel", MasterName: "mymaster"})
	failover, ok := opt.(asynq.RedisFailoverClientOpt)
	require.True(t, ok)
	assert.Equal(t, "mymaster", failover.MasterName)
}
