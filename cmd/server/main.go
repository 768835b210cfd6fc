package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voltmap/voltmap-server/internal/api"
	"github.com/voltmap/voltmap-server/internal/api/middleware"
	"github.com/voltmap/voltmap-server/internal/app"
	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/health"
	"github.com/voltmap/voltmap-server/internal/httpserver"
	"github.com/voltmap/voltmap-server/internal/lifecycle"
	"github.com/voltmap/voltmap-server/internal/logging"
	"github.com/voltmap/voltmap-server/internal/metrics"
	"github.com/voltmap/voltmap-server/internal/station"
	"github.com/voltmap/voltmap-server/internal/trust"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	serverID := app.GenerateServerID()
	log.Info("starting voltmap-server",
		zap.String("server_id", serverID),
		zap.String("env", cfg.App.Env))

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	metricsHandler := metrics.Handler(reg)
	appMetrics := metrics.NewAppMetrics(reg)

	// 4) 存储层
	repo, cleanup, err := app.NewCoreRepo(rootCtx, cfg.Database, log)
	if err != nil {
		log.Fatal("database init error", zap.Error(err))
	}
	defer cleanup()

	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("redis init error", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// 5) 事件队列（redis 未启用时为 nil，业务侧空操作）
	eventQueue := app.NewEventQueue(rootCtx, cfg.Events, redisClient, log)

	// 6) 业务组件
	badges := trust.DefaultBadgeTable()
	if cfg.Trust.BadgeFile != "" {
		badges, err = trust.LoadBadgeTable(cfg.Trust.BadgeFile)
		if err != nil {
			log.Fatal("badge table load error", zap.Error(err))
		}
	}
	trustEngine := trust.NewEngine(repo, cfg.Trust, badges, appMetrics, log)

	var rawRedis *redis.Client
	if redisClient != nil {
		rawRedis = redisClient.Client
	}
	sessionIndex := lifecycle.NewActiveSessionIndex(rawRedis, log)
	sessionMgr := lifecycle.NewManager(repo, sessionIndex, eventQueue, appMetrics, log)

	aggregator := station.NewAggregator(repo, trustEngine, log)
	ingestor := station.NewIngestor(repo, eventQueue, appMetrics, log)

	// 7) 健康检查：DB 必选，redis 与事件队列按启用情况追加
	healthAgg := health.NewAggregator(health.NewDatabaseChecker(repo))
	if redisClient != nil {
		healthAgg.AddChecker(health.NewRedisChecker(redisClient))
	}
	if eventQueue != nil {
		healthAgg.AddChecker(health.NewQueueChecker(eventQueue))
	}
	readyFn := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return healthAgg.Ready(ctx)
	}

	// 8) HTTP 服务与路由
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, readyFn)
	health.RegisterHTTPRoutes(httpSrv.Engine(), healthAgg)

	api.RegisterRoutes(httpSrv.Engine(), api.Deps{
		Repo:       repo,
		Aggregator: aggregator,
		Ingestor:   ingestor,
		Trust:      trustEngine,
		Lifecycle:  sessionMgr,
		Auth: middleware.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			APIKeys: cfg.Auth.APIKeys,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:    cfg.RateLimit.Enabled,
			RatePerSec: cfg.RateLimit.RatePerSec,
			Burst:      cfg.RateLimit.Burst,
		},
		Logger: log,
	})

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// 信号处理，优雅关闭
	<-rootCtx.Done()
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
}
