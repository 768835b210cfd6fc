package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// ErrNotFound 统一的未找到错误，各实现负责把底层驱动错误映射到它。
var ErrNotFound = errors.New("record not found")

// IsUniqueViolation 判断错误是否为唯一约束冲突。
// PostgreSQL 返回 SQLSTATE 23505，SQLite（测试环境）返回文本错误。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type sqlState interface{ SQLState() string }
	var st sqlState
	if errors.As(err, &st) {
		return st.SQLState() == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// CoreRepo 面向核心业务的存储抽象。
// 约束：
// - 上层禁止直接写 SQL，统一通过本接口访问
// - 实现需提供事务封装 WithTx，保证核心路径原子性
// - 条件更新操作返回是否命中，由调用方将未命中映射为业务错误
type CoreRepo interface {
	// ---------- 健康 ----------
	// Ping 探测底层连接可用性，供就绪检查调用
	Ping(ctx context.Context) error

	// ---------- 事务 ----------
	// WithTx 在单个事务中执行 fn，嵌套调用复用当前事务。
	WithTx(ctx context.Context, fn func(repo CoreRepo) error) error

	// ---------- 站点 ----------
	CreateStation(ctx context.Context, station *models.Station) error
	GetStation(ctx context.Context, id int64) (*models.Station, error)
	// ListStations 分页列表；includeLowTrust=false 时过滤 low 信任站点（默认地图语义）
	ListStations(ctx context.Context, limit, offset int, includeLowTrust bool) ([]models.Station, error)
	// UpdateStationStatus 人工/报告驱动的状态翻转
	UpdateStationStatus(ctx context.Context, id int64, status string) error
	// UpdateStationTrustLevel 信任等级懒更新（读路径触发，尽力而为）
	UpdateStationTrustLevel(ctx context.Context, id int64, level string) error
	// SetAvailability 管理员直接校准可用数；n 超出 [0, charger_count] 时不命中
	SetAvailability(ctx context.Context, id int64, n int32) (bool, error)
	// DecrementAvailability 可用数减一；available_chargers=0 时不命中。
	// 条件 UPDATE 是会话开始路径的线性化点之一。
	DecrementAvailability(ctx context.Context, id int64) (bool, error)
	// IncrementAvailability 可用数加一，封顶 charger_count
	IncrementAvailability(ctx context.Context, id int64) error

	// ---------- 用户 ----------
	// EnsureUser 按外部主体标识建档，存在则直接返回
	EnsureUser(ctx context.Context, externalID string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)

	// ---------- 投票 ----------
	// AppendVote 追加一票，不覆盖同一投票人的历史投票
	AppendVote(ctx context.Context, vote *models.VerificationVote) error
	// ListVotesByStation 返回站点全部投票历史（按时间升序）
	ListVotesByStation(ctx context.Context, stationID int64) ([]models.VerificationVote, error)
	// CountWorkingVotesSince 统计 since 之后的 WORKING 票数（信任等级佐证）
	CountWorkingVotesSince(ctx context.Context, stationID int64, since time.Time) (int64, error)

	// ---------- 报告 ----------
	AppendReport(ctx context.Context, report *models.Report) error
	// CountReportsSince 统计 since 之后指定类别的报告数
	CountReportsSince(ctx context.Context, stationID int64, status string, since time.Time) (int64, error)
	ListReportsByStation(ctx context.Context, stationID int64, limit int) ([]models.Report, error)

	// ---------- 充电会话 ----------
	// CreateSession 插入新会话；单用户活跃会话唯一性由部分唯一索引兜底，
	// 并发冲突以唯一约束错误形式返回（IsUniqueViolation 判定）。
	CreateSession(ctx context.Context, session *models.ChargingSession) error
	GetSession(ctx context.Context, id string) (*models.ChargingSession, error)
	// GetActiveSessionByUser 无副作用查询，未找到返回 ErrNotFound
	GetActiveSessionByUser(ctx context.Context, userID int64) (*models.ChargingSession, error)
	// HasActiveSession 会话开始前的前置检查（事务内调用）
	HasActiveSession(ctx context.Context, userID int64) (bool, error)
	// CompleteSession 条件关单：UPDATE ... WHERE id=? AND state='active'。
	// 未命中说明会话不存在或已结束，由调用方区分，不得重复加回可用数。
	CompleteSession(ctx context.Context, id string, close models.SessionClose) (bool, error)
	// CountActiveSessions 当前活跃会话总数（指标用）
	CountActiveSessions(ctx context.Context) (int64, error)
}
