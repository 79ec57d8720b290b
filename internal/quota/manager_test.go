package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aiwriter/internal/ai/aierr"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// initTestDB 创建内存数据库用于测试
func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:quota_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	db := initTestDB(t)
	m := NewManager(NewGormStore(db), Config{DefaultTier: TierFree}, zaptest.NewLogger(t))
	m.now = func() time.Time { return testNow }
	return m, db
}

func setCounters(t *testing.T, db *gorm.DB, userID string, updates map[string]any) {
	t.Helper()
	require.NoError(t, db.Model(&UserQuota{}).Where("user_id = ?", userID).Updates(updates).Error)
}

func loadRow(t *testing.T, db *gorm.DB, userID string) UserQuota {
	t.Helper()
	var q UserQuota
	require.NoError(t, db.Where("user_id = ?", userID).First(&q).Error)
	return q
}

func TestManager_DefaultQuotaCreated(t *testing.T) {
	m, db := newTestManager(t)

	status, err := m.GetQuota(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, TierFree, status.Tier)
	assert.Equal(t, int64(1000), status.Daily.Limit)
	assert.Equal(t, int64(1000), status.Daily.Remaining)
	assert.Equal(t, int64(10000), status.Monthly.Requests.Limit)
	assert.Equal(t, 10.0, status.Monthly.Spend.Limit)
	assert.False(t, status.Daily.Exceeded)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), status.Daily.ResetAt)
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), status.Monthly.ResetAt)

	_, err = m.GetQuota(context.Background(), "user-1")
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&UserQuota{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManager_LazyReset(t *testing.T) {
	t.Run("日窗口到期", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{
			"daily_request_count":   7,
			"daily_reset_at":        testNow.Add(-time.Second),
			"monthly_request_count": 9,
		})

		status, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, status.Daily.Used)
		assert.True(t, status.Daily.ResetAt.After(testNow))
		assert.Equal(t, int64(9), status.Monthly.Requests.Used)
	})

	t.Run("月窗口到期", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{
			"daily_request_count":   3,
			"monthly_request_count": 9,
			"monthly_spend_amount":  4.5,
			"monthly_reset_at":      testNow,
		})

		status, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), status.Daily.Used)
		assert.Zero(t, status.Monthly.Requests.Used)
		assert.Zero(t, status.Monthly.Spend.Used)
		assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), status.Monthly.ResetAt)
	})

	t.Run("两个窗口同时到期", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{
			"daily_request_count":   3,
			"daily_reset_at":        testNow.AddDate(0, 0, -2),
			"monthly_request_count": 9,
			"monthly_reset_at":      testNow.AddDate(0, -1, 0),
		})

		status, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, status.Daily.Used)
		assert.Zero(t, status.Monthly.Requests.Used)
		assert.True(t, status.Daily.ResetAt.After(testNow))
		assert.True(t, status.Monthly.ResetAt.After(testNow))
	})

	t.Run("刚重置的窗口不会判定为超限", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{
			"daily_request_limit": 500,
			"daily_request_count": 500,
			"daily_reset_at":      testNow.Add(-time.Minute),
		})

		_, err = m.CheckQuota(ctx, "u1")
		assert.NoError(t, err)
	})
}

func TestGormStore_ResetIsConditional(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()
	_, err := m.GetQuota(ctx, "u1")
	require.NoError(t, err)
	setCounters(t, db, "u1", map[string]any{"daily_request_count": 5, "daily_reset_at": testNow.Add(-time.Second)})

	store := NewGormStore(db)
	next := NextDailyReset(testNow)

	ok, err := store.ResetDaily(ctx, "u1", testNow, next)
	require.NoError(t, err)
	assert.True(t, ok)

	// 并发读者看到同一个过期窗口，只会重置一次
	setCounters(t, db, "u1", map[string]any{"daily_request_count": 2})
	ok, err = store.ResetDaily(ctx, "u1", testNow, next)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), loadRow(t, db, "u1").DailyRequestCount)
}

func TestManager_IncrementQuota(t *testing.T) {
	t.Run("单次递增", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)

		m.IncrementQuota(ctx, "u1", 0.25)

		row := loadRow(t, db, "u1")
		assert.Equal(t, int64(1), row.DailyRequestCount)
		assert.Equal(t, int64(1), row.MonthlyRequestCount)
		assert.InDelta(t, 0.25, row.MonthlySpendAmount, 1e-9)
	})

	t.Run("并发递增不丢失", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)

		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.IncrementQuota(ctx, "u1", 0.5)
			}()
		}
		wg.Wait()

		row := loadRow(t, db, "u1")
		assert.Equal(t, int64(n), row.DailyRequestCount)
		assert.Equal(t, int64(n), row.MonthlyRequestCount)
		assert.InDelta(t, 0.5*n, row.MonthlySpendAmount, 1e-9)
	})

	t.Run("配额不存在时先创建", func(t *testing.T) {
		m, db := newTestManager(t)

		m.IncrementQuota(context.Background(), "new-user", 1)

		row := loadRow(t, db, "new-user")
		assert.Equal(t, int64(1), row.DailyRequestCount)
		assert.Equal(t, TierFree, row.Tier)
	})

	t.Run("负数花费按 0 处理", func(t *testing.T) {
		m, db := newTestManager(t)
		m.IncrementQuota(context.Background(), "u1", -3)

		row := loadRow(t, db, "u1")
		assert.Equal(t, int64(1), row.DailyRequestCount)
		assert.Zero(t, row.MonthlySpendAmount)
	})
}

type failingStore struct {
	mock.Mock
	Store
}

func (f *failingStore) Increment(ctx context.Context, userID string, cost float64) error {
	return f.Called(ctx, userID, cost).Error(0)
}

func TestManager_IncrementQuotaSwallowsErrors(t *testing.T) {
	store := &failingStore{}
	store.On("Increment", mock.Anything, "u1", 1.0).Return(errors.New("db down"))

	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(store, Config{}, zap.New(core))

	assert.NotPanics(t, func() { m.IncrementQuota(context.Background(), "u1", 1) })
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	store.AssertExpectations(t)
}

func TestManager_CheckQuota(t *testing.T) {
	t.Run("日请求达到上限", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		limit := int64(500)
		_, err := m.UpdateQuotaLimits(ctx, "u1", Limits{DailyRequests: &limit})
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{"daily_request_count": 500})

		status, err := m.CheckQuota(ctx, "u1")

		var qe *aierr.QuotaExceededError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, aierr.QuotaTypeDaily, qe.QuotaType)
		assert.Equal(t, 500.0, qe.Limit)
		assert.Equal(t, 500.0, qe.Used)
		assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), qe.ResetAt)
		require.NotNil(t, status)
		assert.Zero(t, status.Daily.Remaining)
	})

	t.Run("日请求优先于月请求", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{"daily_request_count": 1000, "monthly_request_count": 10000, "monthly_spend_amount": 10})

		_, err = m.CheckQuota(ctx, "u1")
		var qe *aierr.QuotaExceededError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, aierr.QuotaTypeDaily, qe.QuotaType)
	})

	t.Run("月请求优先于月花费", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{"monthly_request_count": 10000, "monthly_spend_amount": 10})

		_, err = m.CheckQuota(ctx, "u1")
		var qe *aierr.QuotaExceededError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, aierr.QuotaTypeMonthlyRequests, qe.QuotaType)
		assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), qe.ResetAt)
	})

	t.Run("月花费", func(t *testing.T) {
		m, db := newTestManager(t)
		ctx := context.Background()
		_, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		setCounters(t, db, "u1", map[string]any{"monthly_spend_amount": 12.5})

		status, err := m.CheckQuota(ctx, "u1")
		var qe *aierr.QuotaExceededError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, aierr.QuotaTypeMonthlySpend, qe.QuotaType)
		assert.Zero(t, status.Monthly.Spend.Remaining)

		var gw *aierr.GatewayError
		require.ErrorAs(t, err, &gw)
		assert.Equal(t, aierr.CodeQuotaExceeded, gw.Code)
	})

	t.Run("检查与递增之间存在竞争窗口", func(t *testing.T) {
		m, _ := newTestManager(t)
		ctx := context.Background()
		limit := int64(1)
		_, err := m.UpdateQuotaLimits(ctx, "u1", Limits{DailyRequests: &limit})
		require.NoError(t, err)

		// 两个请求都在递增前通过检查
		_, errA := m.CheckQuota(ctx, "u1")
		_, errB := m.CheckQuota(ctx, "u1")
		require.NoError(t, errA)
		require.NoError(t, errB)
		m.IncrementQuota(ctx, "u1", 0)
		m.IncrementQuota(ctx, "u1", 0)

		status, err := m.GetQuota(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), status.Daily.Used)
		assert.Zero(t, status.Daily.Remaining)
	})
}

func TestManager_AdminOperations(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()

	monthly := int64(42)
	status, err := m.UpdateQuotaLimits(ctx, "u1", Limits{MonthlyRequests: &monthly})
	require.NoError(t, err)
	assert.Equal(t, int64(42), status.Monthly.Requests.Limit)
	assert.Equal(t, int64(1000), status.Daily.Limit)

	setCounters(t, db, "u1", map[string]any{"daily_request_count": 10, "monthly_request_count": 20, "monthly_spend_amount": 3})
	status, err = m.ResetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, status.Daily.Used)
	assert.Zero(t, status.Monthly.Requests.Used)
	assert.Zero(t, status.Monthly.Spend.Used)

	m.IncrementQuota(ctx, "u1", 1)
	status, err = m.ApplyTier(ctx, "u1", TierPro)
	require.NoError(t, err)
	assert.Equal(t, TierPro, status.Tier)
	assert.Equal(t, int64(20000), status.Daily.Limit)
	assert.Equal(t, int64(500000), status.Monthly.Requests.Limit)
	assert.Equal(t, 200.0, status.Monthly.Spend.Limit)
	assert.Equal(t, int64(1), status.Daily.Used)

	_, err = m.ApplyTier(ctx, "u1", "platinum")
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = m.GetQuota(ctx, "")
	var gw *aierr.GatewayError
	require.ErrorAs(t, err, &gw)
	assert.Equal(t, aierr.CodeInvalidRequest, gw.Code)
}

func TestNewManager_TierFallback(t *testing.T) {
	m := NewManager(nil, Config{DefaultTier: "missing", Tiers: map[string]Tier{"x": {Name: "x", DailyRequests: 1}}}, nil)

	assert.Equal(t, TierFree, m.defaultTier)
	assert.Contains(t, m.Tiers(), "x")
	assert.Contains(t, m.Tiers(), TierFree)
}

func TestManager_TiersReturnsCopy(t *testing.T) {
	m := NewManager(nil, Config{}, nil)

	tiers := m.Tiers()
	tiers[TierFree] = Tier{Name: TierFree, DailyRequests: 1}
	delete(tiers, TierPro)
	tiers["hacked"] = Tier{Name: "hacked"}

	fresh := m.Tiers()
	assert.Equal(t, DefaultTiers()[TierFree], fresh[TierFree])
	assert.Contains(t, fresh, TierPro)
	assert.NotContains(t, fresh, "hacked")
}

func TestResetBoundaries(t *testing.T) {
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), NextDailyReset(testNow))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextDailyReset(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), NextMonthlyReset(time.Date(2026, 12, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), NextMonthlyReset(time.Date(2026, 10, 31, 23, 0, 0, 0, time.FixedZone("CST", 8*3600))))
}
