package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// 瞬时存储错误的有界重试。业务规则错误（冲突、未找到、唯一约束）
// 与取消/超时不重试，直接上抛。
var retryBackoff = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}

// Retryable 判断错误是否值得重试
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) || IsUniqueViolation(err) {
		return false
	}
	return true
}

// Retry 执行 fn，瞬时失败时按固定退避序列重试，重试次数受序列长度约束。
// onRetry 在每次重试前调用（指标计数），可为 nil。
func Retry(ctx context.Context, logger *zap.Logger, op string, fn func() error, onRetry func()) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !Retryable(err) || attempt >= len(retryBackoff) {
			return err
		}
		if onRetry != nil {
			onRetry()
		}
		if logger != nil {
			logger.Warn("transient storage error, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff[attempt]):
		}
	}
}
