package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/migrate"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/gormrepo"
	"github.com/voltmap/voltmap-server/internal/storage/models"
	pgstorage "github.com/voltmap/voltmap-server/internal/storage/pg"
)

// NewCoreRepo 按配置的驱动建立存储层。
// driver=gorm（默认）走 GORM + AutoMigrate；driver=pgx 走 pgx 连接池，
// 此时表结构由外部迁移负责。返回的 cleanup 在进程退出时调用。
func NewCoreRepo(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (storage.CoreRepo, func(), error) {
	switch cfg.Driver {
	case "", "gorm":
		db, err := InitGorm(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return gormrepo.New(db), cleanup, nil

	case "pgx":
		pool, err := pgstorage.NewPool(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, log)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoMigrate && cfg.MigrationsDir != "" {
			runner := migrate.Runner{Dir: cfg.MigrationsDir, Logger: log}
			if err := runner.Up(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pgstorage.NewRepo(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// InitGorm 建立 GORM 连接并按需执行迁移
func InitGorm(cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(
			&models.Station{},
			&models.User{},
			&models.VerificationVote{},
			&models.Report{},
			&models.ChargingSession{},
		); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		if err := applyCoreDDL(db); err != nil {
			return nil, err
		}
		if log != nil {
			log.Info("db migrations applied")
		}
	}
	return db, nil
}

// applyCoreDDL 执行 gorm tag 表达不了的 DDL。
// 部分唯一索引是单用户活跃会话不变量的数据库兜底：
// 并发 startSession 同时通过前置检查时，后提交者被该索引拦截。
func applyCoreDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_user_active ON charging_sessions (user_id) WHERE state = 'active';",
	}
	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
