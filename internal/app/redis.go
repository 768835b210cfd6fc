package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	redisstorage "github.com/voltmap/voltmap-server/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端。未启用时返回 nil，
// 依赖 redis 的组件（会话索引、事件队列）对 nil 客户端自动降级。
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}
