package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// Repository 基于 GORM 的 CoreRepo 实现。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回一个使用给定 *gorm.DB 的 CoreRepo 实例。
func New(db *gorm.DB) storage.CoreRepo {
	return &Repository{db: db}
}

// Ping 探测数据库连接。
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.CoreRepo) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// ---------- 站点 ----------

// CreateStation 创建站点，available_chargers 缺省等于 charger_count。
func (r *Repository) CreateStation(ctx context.Context, station *models.Station) error {
	return r.db.WithContext(ctx).Create(station).Error
}

// GetStation 按 ID 查询站点。
func (r *Repository) GetStation(ctx context.Context, id int64) (*models.Station, error) {
	var station models.Station
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&station).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	return &station, err
}

// ListStations 分页返回站点列表，按 id 升序。
func (r *Repository) ListStations(ctx context.Context, limit, offset int, includeLowTrust bool) ([]models.Station, error) {
	var stations []models.Station
	q := r.db.WithContext(ctx).Order("id ASC")
	if !includeLowTrust {
		q = q.Where("trust_level <> ?", "low")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&stations).Error; err != nil {
		return nil, err
	}
	return stations, nil
}

// UpdateStationStatus 更新站点运营状态。
func (r *Repository) UpdateStationStatus(ctx context.Context, id int64, status string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Station{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateStationTrustLevel 更新站点信任等级。
func (r *Repository) UpdateStationTrustLevel(ctx context.Context, id int64, level string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Station{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"trust_level": level,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetAvailability 校准可用数，越界（n > charger_count 或 n < 0）不命中。
func (r *Repository) SetAvailability(ctx context.Context, id int64, n int32) (bool, error) {
	if n < 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Station{}).
		Where("id = ? AND charger_count >= ?", id, n).
		Updates(map[string]interface{}{
			"available_chargers": n,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DecrementAvailability 条件减一，可用数为零时不命中。
func (r *Repository) DecrementAvailability(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Station{}).
		Where("id = ? AND available_chargers > 0", id).
		Updates(map[string]interface{}{
			"available_chargers": gorm.Expr("available_chargers - 1"),
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementAvailability 加一并封顶 charger_count。
func (r *Repository) IncrementAvailability(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Station{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"available_chargers": gorm.Expr("CASE WHEN available_chargers + 1 > charger_count THEN charger_count ELSE available_chargers + 1 END"),
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---------- 用户 ----------

// EnsureUser 若外部标识不存在则插入，存在则刷新 updated_at。
func (r *Repository) EnsureUser(ctx context.Context, externalID string) (*models.User, error) {
	record := &models.User{ExternalID: externalID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now()}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}

	var user models.User
	err = r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	return &user, err
}

// GetUser 按 ID 查询用户。
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	return &user, err
}

// ---------- 投票 ----------

// AppendVote 追加投票记录。
func (r *Repository) AppendVote(ctx context.Context, vote *models.VerificationVote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

// ListVotesByStation 返回站点全部投票，按创建时间升序。
func (r *Repository) ListVotesByStation(ctx context.Context, stationID int64) ([]models.VerificationVote, error) {
	var votes []models.VerificationVote
	err := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("created_at ASC, id ASC").
		Find(&votes).Error
	if err != nil {
		return nil, err
	}
	return votes, nil
}

// CountWorkingVotesSince 统计窗口内 WORKING 票数。
func (r *Repository) CountWorkingVotesSince(ctx context.Context, stationID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VerificationVote{}).
		Where("station_id = ? AND vote = ? AND created_at >= ?", stationID, "working", since).
		Count(&count).Error
	return count, err
}

// ---------- 报告 ----------

// AppendReport 追加报告记录。
func (r *Repository) AppendReport(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

// CountReportsSince 统计窗口内指定类别的报告数。
func (r *Repository) CountReportsSince(ctx context.Context, stationID int64, status string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("station_id = ? AND status = ? AND created_at >= ?", stationID, status, since).
		Count(&count).Error
	return count, err
}

// ListReportsByStation 返回站点最近的报告。
func (r *Repository) ListReportsByStation(ctx context.Context, stationID int64, limit int) ([]models.Report, error) {
	var reports []models.Report
	q := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

// ---------- 充电会话 ----------

// CreateSession 插入新会话。并发下的重复活跃会话由部分唯一索引拦截，
// 唯一约束错误原样上抛，由生命周期管理器映射为冲突。
func (r *Repository) CreateSession(ctx context.Context, session *models.ChargingSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetSession 按 ID 查询会话。
func (r *Repository) GetSession(ctx context.Context, id string) (*models.ChargingSession, error) {
	var session models.ChargingSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	return &session, err
}

// GetActiveSessionByUser 查询用户当前活跃会话。
func (r *Repository) GetActiveSessionByUser(ctx context.Context, userID int64) (*models.ChargingSession, error) {
	var session models.ChargingSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, "active").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	return &session, err
}

// HasActiveSession 判断用户是否已有活跃会话。
func (r *Repository) HasActiveSession(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChargingSession{}).
		Where("user_id = ? AND state = ?", userID, "active").
		Count(&count).Error
	return count > 0, err
}

// CompleteSession 条件关单，未命中（已结束或不存在）返回 false。
func (r *Repository) CompleteSession(ctx context.Context, id string, close models.SessionClose) (bool, error) {
	updates := map[string]interface{}{
		"state":            "ended",
		"end_time":         close.EndTime,
		"duration_minutes": close.DurationMinutes,
		"updated_at":       time.Now(),
	}
	if close.BatteryEndPercent != nil {
		updates["battery_end_percent"] = *close.BatteryEndPercent
	}
	if close.EnergyKwh != nil {
		updates["energy_kwh"] = *close.EnergyKwh
	}
	if close.ScreenshotPath != nil {
		updates["screenshot_path"] = *close.ScreenshotPath
	}

	res := r.db.WithContext(ctx).
		Model(&models.ChargingSession{}).
		Where("id = ? AND state = ?", id, "active").
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountActiveSessions 活跃会话总数。
func (r *Repository) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChargingSession{}).
		Where("state = ?", "active").
		Count(&count).Error
	return count, err
}
