package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/api/middleware"
	"github.com/voltmap/voltmap-server/internal/lifecycle"
	"github.com/voltmap/voltmap-server/internal/station"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/trust"
)

// Deps 路由依赖集合
type Deps struct {
	Repo       storage.CoreRepo
	Aggregator *station.Aggregator
	Ingestor   *station.Ingestor
	Trust      *trust.Engine
	Lifecycle  *lifecycle.Manager

	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	Logger    *zap.Logger
}

// RegisterRoutes 注册全部业务路由。
// /api 组统一挂认证、限流与身份中间件；swagger UI 不需要认证。
func RegisterRoutes(r *gin.Engine, d Deps) {
	if r == nil || d.Repo == nil {
		return
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	stationHandler := NewStationHandler(d.Aggregator, d.Ingestor, d.Trust, logger)
	sessionHandler := NewSessionHandler(d.Lifecycle, d.Aggregator, logger)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(d.RateLimit))
	if d.Auth.Enabled {
		api.Use(middleware.APIKeyAuth(d.Auth, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(d.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	api.Use(middleware.Identity(d.Repo, logger))

	// 站点
	api.GET("/stations", stationHandler.ListStations)
	api.POST("/stations", stationHandler.CreateStation)
	api.GET("/stations/:id", stationHandler.GetStation)
	api.GET("/stations/:id/verification-summary", stationHandler.GetVerificationSummary)
	api.POST("/stations/:id/verify", stationHandler.SubmitVote)
	api.POST("/stations/:id/report", stationHandler.SubmitReport)
	api.PATCH("/stations/:id/availability", stationHandler.SetAvailability)

	// 充电会话
	api.POST("/charging-sessions/start", sessionHandler.StartSession)
	api.POST("/charging-sessions/:id/end", sessionHandler.EndSession)
	api.GET("/charging-sessions/my-active", sessionHandler.GetMyActiveSession)

	logger.Info("api routes registered", zap.Int("endpoints", 10))
}
