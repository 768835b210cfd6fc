package app

import (
	"context"

	"go.uber.org/zap"

	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/events"
	redisstorage "github.com/voltmap/voltmap-server/internal/storage/redis"
)

// NewEventQueue 创建通知事件队列并启动消费 Worker。
// 事件推送依赖 redis 与 webhook 配置，两者缺一则返回 nil（业务侧空操作）。
func NewEventQueue(ctx context.Context, cfg cfgpkg.EventsConfig, redisClient *redisstorage.Client, logger *zap.Logger) *events.EventQueue {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		logger.Info("event push is disabled")
		return nil
	}
	if redisClient == nil {
		logger.Warn("event push enabled but redis is disabled, events will be dropped")
		return nil
	}

	pusher := events.NewPusher(nil, cfg.APIKey, cfg.Secret)
	queue := events.NewEventQueue(redisClient.Client, pusher, cfg.WebhookURL, logger)
	queue.StartWorker(ctx, cfg.WorkerCount)
	return queue
}
