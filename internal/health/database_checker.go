package health

import (
	"context"
	"fmt"
	"time"

	"github.com/voltmap/voltmap-server/internal/storage"
)

// DatabaseChecker 核心存储健康检查器。
// 走 CoreRepo.Ping，gorm 与 pgx 两种驱动同样适用。
type DatabaseChecker struct {
	repo    storage.CoreRepo
	timeout time.Duration
}

// NewDatabaseChecker 创建数据库健康检查器
func NewDatabaseChecker(repo storage.CoreRepo) *DatabaseChecker {
	return &DatabaseChecker{repo: repo, timeout: 2 * time.Second}
}

// Name 返回检查器名称
func (c *DatabaseChecker) Name() string {
	return "database"
}

// Check 执行健康检查
func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.repo.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Latency: time.Since(start),
	}
}
