package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quota:user:"

// 哈希字段
const (
	fieldID                  = "id"
	fieldTier                = "tier"
	fieldDailyLimit          = "daily_request_limit"
	fieldDailyCount          = "daily_request_count"
	fieldDailyResetAt        = "daily_reset_at"
	fieldMonthlyRequestLimit = "monthly_request_limit"
	fieldMonthlyRequestCount = "monthly_request_count"
	fieldMonthlySpendLimit   = "monthly_spend_limit"
	fieldMonthlySpendAmount  = "monthly_spend_amount"
	fieldMonthlyResetAt      = "monthly_reset_at"
	fieldCreatedAt           = "created_at"
	fieldUpdatedAt           = "updated_at"
)

var (
	// 不存在时才写入
	createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

	// 条件重置：存储的重置时间 <= now 才生效
	// KEYS[1] key; ARGV[1] 重置时间字段; ARGV[2] now(ms); ARGV[3] next(ms); ARGV[4..] 需要清零的字段
	resetScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current or tonumber(current) > tonumber(ARGV[2]) then
  return 0
end
for i = 4, #ARGV do
  redis.call('HSET', KEYS[1], ARGV[i], 0)
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3], 'updated_at', ARGV[2])
return 1
`)

	// 原子递增，记录不存在时返回 0
	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'daily_request_count', 1)
redis.call('HINCRBY', KEYS[1], 'monthly_request_count', 1)
redis.call('HINCRBYFLOAT', KEYS[1], 'monthly_spend_amount', ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 1
`)

	// 仅更新已存在的记录
	updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)
)

// RedisStore 基于 Redis 哈希的配额存储，适合多实例共享计数
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore 创建 Redis 配额存储
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisKey(userID string) string {
	return redisKeyPrefix + userID
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*UserQuota, error) {
	values, err := s.client.HGetAll(ctx, redisKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("查询配额失败: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrQuotaNotFound
	}
	return decodeQuota(userID, values)
}

func (s *RedisStore) Create(ctx context.Context, q *UserQuota) (*UserQuota, error) {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	now := toMillis(s.now())
	args := []any{
		fieldID, q.ID,
		fieldTier, q.Tier,
		fieldDailyLimit, q.DailyRequestLimit,
		fieldDailyCount, q.DailyRequestCount,
		fieldDailyResetAt, toMillis(q.DailyResetAt),
		fieldMonthlyRequestLimit, q.MonthlyRequestLimit,
		fieldMonthlyRequestCount, q.MonthlyRequestCount,
		fieldMonthlySpendLimit, strconv.FormatFloat(q.MonthlySpendLimit, 'f', -1, 64),
		fieldMonthlySpendAmount, strconv.FormatFloat(q.MonthlySpendAmount, 'f', -1, 64),
		fieldMonthlyResetAt, toMillis(q.MonthlyResetAt),
		fieldCreatedAt, now,
		fieldUpdatedAt, now,
	}
	if err := createScript.Run(ctx, s.client, []string{redisKey(q.UserID)}, args...).Err(); err != nil {
		return nil, fmt.Errorf("创建配额失败: %w", err)
	}
	return s.Get(ctx, q.UserID)
}

func (s *RedisStore) ResetDaily(ctx context.Context, userID string, now, next time.Time) (bool, error) {
	return s.conditionalReset(ctx, userID, fieldDailyResetAt, now, next, fieldDailyCount)
}

func (s *RedisStore) ResetMonthly(ctx context.Context, userID string, now, next time.Time) (bool, error) {
	return s.conditionalReset(ctx, userID, fieldMonthlyResetAt, now, next, fieldMonthlyRequestCount, fieldMonthlySpendAmount)
}

func (s *RedisStore) conditionalReset(ctx context.Context, userID, resetField string, now, next time.Time, counters ...string) (bool, error) {
	args := []any{resetField, toMillis(now), toMillis(next)}
	for _, c := range counters {
		args = append(args, c)
	}
	n, err := resetScript.Run(ctx, s.client, []string{redisKey(userID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("重置配额失败: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Increment(ctx context.Context, userID string, cost float64) error {
	n, err := incrementScript.Run(ctx, s.client, []string{redisKey(userID)},
		strconv.FormatFloat(cost, 'f', -1, 64), toMillis(s.now())).Int()
	if err != nil {
		return fmt.Errorf("更新配额计数失败: %w", err)
	}
	if n == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

func (s *RedisStore) UpdateLimits(ctx context.Context, userID string, limits Limits) error {
	var args []any
	if limits.DailyRequests != nil {
		args = append(args, fieldDailyLimit, *limits.DailyRequests)
	}
	if limits.MonthlyRequests != nil {
		args = append(args, fieldMonthlyRequestLimit, *limits.MonthlyRequests)
	}
	if limits.MonthlySpend != nil {
		args = append(args, fieldMonthlySpendLimit, strconv.FormatFloat(*limits.MonthlySpend, 'f', -1, 64))
	}
	if len(args) == 0 {
		return nil
	}
	return s.update(ctx, userID, args...)
}

func (s *RedisStore) Reset(ctx context.Context, userID string, dailyNext, monthlyNext time.Time) error {
	return s.update(ctx, userID,
		fieldDailyCount, 0,
		fieldDailyResetAt, toMillis(dailyNext),
		fieldMonthlyRequestCount, 0,
		fieldMonthlySpendAmount, 0,
		fieldMonthlyResetAt, toMillis(monthlyNext),
	)
}

func (s *RedisStore) SetTier(ctx context.Context, userID string, tier Tier) error {
	return s.update(ctx, userID,
		fieldTier, tier.Name,
		fieldDailyLimit, tier.DailyRequests,
		fieldMonthlyRequestLimit, tier.MonthlyRequests,
		fieldMonthlySpendLimit, strconv.FormatFloat(tier.MonthlySpend, 'f', -1, 64),
	)
}

func (s *RedisStore) update(ctx context.Context, userID string, fields ...any) error {
	fields = append(fields, fieldUpdatedAt, toMillis(s.now()))
	n, err := updateScript.Run(ctx, s.client, []string{redisKey(userID)}, fields...).Int()
	if err != nil {
		return fmt.Errorf("更新配额失败: %w", err)
	}
	if n == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

func decodeQuota(userID string, values map[string]string) (*UserQuota, error) {
	var errs []error
	parseInt := func(field string) int64 {
		v, err := strconv.ParseInt(values[field], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return v
	}
	parseFloat := func(field string) float64 {
		v, err := strconv.ParseFloat(values[field], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return v
	}

	q := &UserQuota{
		ID:                  values[fieldID],
		UserID:              userID,
		Tier:                values[fieldTier],
		DailyRequestLimit:   parseInt(fieldDailyLimit),
		DailyRequestCount:   parseInt(fieldDailyCount),
		DailyResetAt:        fromMillis(parseInt(fieldDailyResetAt)),
		MonthlyRequestLimit: parseInt(fieldMonthlyRequestLimit),
		MonthlyRequestCount: parseInt(fieldMonthlyRequestCount),
		MonthlySpendLimit:   parseFloat(fieldMonthlySpendLimit),
		MonthlySpendAmount:  parseFloat(fieldMonthlySpendAmount),
		MonthlyResetAt:      fromMillis(parseInt(fieldMonthlyResetAt)),
		CreatedAt:           fromMillis(parseInt(fieldCreatedAt)),
		UpdatedAt:           fromMillis(parseInt(fieldUpdatedAt)),
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("配额数据损坏: %w", errors.Join(errs...))
	}
	return q, nil
}
