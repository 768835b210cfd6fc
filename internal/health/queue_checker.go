package health

import (
	"context"
	"fmt"
	"time"

	"github.com/voltmap/voltmap-server/internal/events"
)

// 事件积压阈值，超过视为降级
const queueBacklogThreshold = 1000

// QueueChecker 通知事件队列检查器。
// 死信或大量积压说明下游 webhook 异常，事件是尽力而为的旁路，
// 因此最多报告 Degraded。
type QueueChecker struct {
	queue *events.EventQueue
}

// NewQueueChecker 创建事件队列检查器
func NewQueueChecker(queue *events.EventQueue) *QueueChecker {
	return &QueueChecker{queue: queue}
}

// Name 返回检查器名称
func (c *QueueChecker) Name() string {
	return "event_queue"
}

// Check 执行健康检查
func (c *QueueChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	pending, err := c.queue.QueueLength(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("queue length failed: %v", err),
			Latency: time.Since(start),
		}
	}
	dead, err := c.queue.DLQLength(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("dlq length failed: %v", err),
			Latency: time.Since(start),
		}
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case dead > 0:
		status = StatusDegraded
		message = "dead letter queue not empty"
	case pending > queueBacklogThreshold:
		status = StatusDegraded
		message = "event backlog above threshold"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"pending": pending,
			"dead":    dead,
		},
		Latency: time.Since(start),
	}
}
