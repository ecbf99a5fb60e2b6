package cache

import (
	"context"
	"fmt"
	"time"
)

// RateLimitResult 频率限制判定结果
type RateLimitResult struct {
	Allowed    bool
	Attempts   int64
	RetryAfter time.Duration
}

func rateLimitKey(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", scope, subject)
}

func rateLimitBlockKey(scope, subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s:block", scope, subject)
}

// CheckRateLimit 滑动窗口计数限流
//
// Redis 未启用时直接放行，登录保护是尽力而为的防护层。
func CheckRateLimit(ctx context.Context, scope, subject string, window time.Duration, maxAttempts int, block time.Duration) (RateLimitResult, error) {
	if !Enabled() || maxAttempts <= 0 {
		return RateLimitResult{Allowed: true}, nil
	}

	blockKey := buildKey(rateLimitBlockKey(scope, subject))
	ttl, err := redisClient.TTL(ctx, blockKey).Result()
	if err == nil && ttl > 0 {
		return RateLimitResult{Allowed: false, RetryAfter: ttl}, nil
	}

	key := buildKey(rateLimitKey(scope, subject))
	attempts, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		return RateLimitResult{Allowed: true}, err
	}
	if attempts == 1 {
		_ = redisClient.Expire(ctx, key, window).Err()
	}
	if attempts > int64(maxAttempts) {
		if block > 0 {
			_ = redisClient.Set(ctx, blockKey, "1", block).Err()
		}
		retry := block
		if retry <= 0 {
			retry = window
		}
		return RateLimitResult{Allowed: false, Attempts: attempts, RetryAfter: retry}, nil
	}
	return RateLimitResult{Allowed: true, Attempts: attempts}, nil
}

// ResetRateLimit 成功后清除计数
func ResetRateLimit(ctx context.Context, scope, subject string) error {
	if !Enabled() {
		return nil
	}
	pipe := redisClient.Pipeline()
	pipe.Del(ctx, buildKey(rateLimitKey(scope, subject)))
	pipe.Del(ctx, buildKey(rateLimitBlockKey(scope, subject)))
	_, err := pipe.Exec(ctx)
	return err
}
