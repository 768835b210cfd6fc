package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	activeSessionKey = "voltmap:session:active:%d" // user_id
	activeSessionTTL = 24 * time.Hour
)

// ActiveSessionIndex 活跃会话的 redis 旁路索引：user_id -> session_id。
// 纯粹是读路径加速，DB 永远是事实来源；索引缺失、陈旧、
// redis 整体不可用都只是回退到 DB 查询，不影响正确性。
type ActiveSessionIndex struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewActiveSessionIndex 创建索引。redisClient 为 nil 时所有操作为空操作。
func NewActiveSessionIndex(redisClient *redis.Client, logger *zap.Logger) *ActiveSessionIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActiveSessionIndex{redis: redisClient, logger: logger}
}

// Get 查询用户的活跃会话 ID
func (i *ActiveSessionIndex) Get(ctx context.Context, userID int64) (string, bool) {
	if i == nil || i.redis == nil {
		return "", false
	}
	val, err := i.redis.Get(ctx, fmt.Sprintf(activeSessionKey, userID)).Result()
	if err != nil {
		if err != redis.Nil {
			i.logger.Warn("active session index get failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return "", false
	}
	return val, val != ""
}

// Set 记录用户的活跃会话 ID，失败只记日志
func (i *ActiveSessionIndex) Set(ctx context.Context, userID int64, sessionID string) {
	if i == nil || i.redis == nil {
		return
	}
	if err := i.redis.Set(ctx, fmt.Sprintf(activeSessionKey, userID), sessionID, activeSessionTTL).Err(); err != nil {
		i.logger.Warn("active session index set failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Clear 清除用户的活跃会话索引
func (i *ActiveSessionIndex) Clear(ctx context.Context, userID int64) {
	if i == nil || i.redis == nil {
		return
	}
	if err := i.redis.Del(ctx, fmt.Sprintf(activeSessionKey, userID)).Err(); err != nil {
		i.logger.Warn("active session index clear failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
