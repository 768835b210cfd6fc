package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/storage"
)

// 上下文键：内部用户ID（int64）
const userIDKey = "voltmap_user_id"

// Identity 调用方身份中间件。
// 认证由外部网关负责，本服务只消费其注入的 X-User-ID 主体标识，
// 并按需在 users 表建档，把内部用户ID写入请求上下文。
func Identity(repo storage.CoreRepo, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		external := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if external == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing X-User-ID header",
			})
			return
		}

		user, err := repo.EnsureUser(c.Request.Context(), external)
		if err != nil {
			logger.Error("identity: ensure user failed",
				zap.String("external_id", external),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal",
				"message": "identity resolution failed",
			})
			return
		}

		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

// UserID 取出当前请求的内部用户ID。
// 只在 Identity 中间件之后的处理器里调用，否则返回 false。
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
