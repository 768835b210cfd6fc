package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// querier 抽象 pgxpool.Pool 与 pgx.Tx 的公共查询能力
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository 基于 pgx 裸 SQL 的 CoreRepo 实现。
// 与 gormrepo 语义一致，生产环境默认选择由 database.driver 决定。
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepo 返回一个使用给定连接池的 CoreRepo 实例。
func NewRepo(pool *pgxpool.Pool) storage.CoreRepo {
	return &Repository{pool: pool}
}

func (r *Repository) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

// Ping 探测数据库连接。
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx 复用现有事务或开启新事务执行 fn。
func (r *Repository) WithTx(ctx context.Context, fn func(storage.CoreRepo) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	child := &Repository{pool: r.pool, tx: tx}
	if err := fn(child); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ---------- 站点 ----------

const stationColumns = `id, name, lat, lng, charger_type, charger_count, available_chargers, status, trust_level, created_at, updated_at`

func scanStation(row pgx.Row) (*models.Station, error) {
	var s models.Station
	err := row.Scan(&s.ID, &s.Name, &s.Lat, &s.Lng, &s.ChargerType,
		&s.ChargerCount, &s.AvailableChargers, &s.Status, &s.TrustLevel,
		&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateStation 插入站点并回填 ID。
func (r *Repository) CreateStation(ctx context.Context, station *models.Station) error {
	const q = `INSERT INTO stations (name, lat, lng, charger_type, charger_count, available_chargers, status, trust_level, created_at, updated_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
               RETURNING id, created_at, updated_at`
	return r.q().QueryRow(ctx, q, station.Name, station.Lat, station.Lng,
		station.ChargerType, station.ChargerCount, station.AvailableChargers,
		station.Status, station.TrustLevel).
		Scan(&station.ID, &station.CreatedAt, &station.UpdatedAt)
}

// GetStation 按 ID 查询站点。
func (r *Repository) GetStation(ctx context.Context, id int64) (*models.Station, error) {
	return scanStation(r.q().QueryRow(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id))
}

// ListStations 分页列表，默认过滤 low 信任站点。
func (r *Repository) ListStations(ctx context.Context, limit, offset int, includeLowTrust bool) ([]models.Station, error) {
	q := `SELECT ` + stationColumns + ` FROM stations`
	if !includeLowTrust {
		q += ` WHERE trust_level <> 'low'`
	}
	q += ` ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT $1`
		if offset > 0 {
			args = append(args, offset)
			q += ` OFFSET $2`
		}
	}

	rows, err := r.q().Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lng, &s.ChargerType,
			&s.ChargerCount, &s.AvailableChargers, &s.Status, &s.TrustLevel,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// UpdateStationStatus 更新运营状态。
func (r *Repository) UpdateStationStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.q().Exec(ctx,
		`UPDATE stations SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateStationTrustLevel 更新信任等级。
func (r *Repository) UpdateStationTrustLevel(ctx context.Context, id int64, level string) error {
	tag, err := r.q().Exec(ctx,
		`UPDATE stations SET trust_level = $2, updated_at = NOW() WHERE id = $1`, id, level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetAvailability 校准可用数，n 超过 charger_count 时不命中。
func (r *Repository) SetAvailability(ctx context.Context, id int64, n int32) (bool, error) {
	if n < 0 {
		return false, nil
	}
	tag, err := r.q().Exec(ctx,
		`UPDATE stations SET available_chargers = $2, updated_at = NOW()
         WHERE id = $1 AND charger_count >= $2`, id, n)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DecrementAvailability 条件减一，可用数为零时不命中。
func (r *Repository) DecrementAvailability(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q().Exec(ctx,
		`UPDATE stations SET available_chargers = available_chargers - 1, updated_at = NOW()
         WHERE id = $1 AND available_chargers > 0`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementAvailability 加一并封顶 charger_count。
func (r *Repository) IncrementAvailability(ctx context.Context, id int64) error {
	tag, err := r.q().Exec(ctx,
		`UPDATE stations SET available_chargers = LEAST(charger_count, available_chargers + 1), updated_at = NOW()
         WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ---------- 用户 ----------

// EnsureUser 按外部标识建档，存在则刷新 updated_at。
func (r *Repository) EnsureUser(ctx context.Context, externalID string) (*models.User, error) {
	const q = `INSERT INTO users (external_id, created_at, updated_at)
               VALUES ($1, NOW(), NOW())
               ON CONFLICT (external_id) DO UPDATE SET updated_at = NOW()
               RETURNING id, external_id, display_name, created_at, updated_at`
	var u models.User
	err := r.q().QueryRow(ctx, q, externalID).
		Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser 按 ID 查询用户。
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := r.q().QueryRow(ctx,
		`SELECT id, external_id, display_name, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ---------- 投票 ----------

// AppendVote 追加投票记录。
func (r *Repository) AppendVote(ctx context.Context, vote *models.VerificationVote) error {
	const q = `INSERT INTO verification_votes (station_id, voter_id, vote, created_at)
               VALUES ($1,$2,$3,$4) RETURNING id`
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now()
	}
	return r.q().QueryRow(ctx, q, vote.StationID, vote.VoterID, vote.Vote, vote.CreatedAt).
		Scan(&vote.ID)
}

// ListVotesByStation 返回站点全部投票，按时间升序。
func (r *Repository) ListVotesByStation(ctx context.Context, stationID int64) ([]models.VerificationVote, error) {
	rows, err := r.q().Query(ctx,
		`SELECT id, station_id, voter_id, vote, created_at
         FROM verification_votes WHERE station_id = $1
         ORDER BY created_at ASC, id ASC`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.VerificationVote
	for rows.Next() {
		var v models.VerificationVote
		if err := rows.Scan(&v.ID, &v.StationID, &v.VoterID, &v.Vote, &v.CreatedAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// CountWorkingVotesSince 统计窗口内 WORKING 票数。
func (r *Repository) CountWorkingVotesSince(ctx context.Context, stationID int64, since time.Time) (int64, error) {
	var count int64
	err := r.q().QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_votes
         WHERE station_id = $1 AND vote = 'working' AND created_at >= $2`,
		stationID, since).Scan(&count)
	return count, err
}

// ---------- 报告 ----------

// AppendReport 追加报告记录。
func (r *Repository) AppendReport(ctx context.Context, report *models.Report) error {
	const q = `INSERT INTO reports (station_id, reporter_id, status, note, created_at)
               VALUES ($1,$2,$3,$4,$5) RETURNING id`
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	return r.q().QueryRow(ctx, q, report.StationID, report.ReporterID,
		report.Status, report.Note, report.CreatedAt).Scan(&report.ID)
}

// CountReportsSince 统计窗口内指定类别的报告数。
func (r *Repository) CountReportsSince(ctx context.Context, stationID int64, status string, since time.Time) (int64, error) {
	var count int64
	err := r.q().QueryRow(ctx,
		`SELECT COUNT(*) FROM reports
         WHERE station_id = $1 AND status = $2 AND created_at >= $3`,
		stationID, status, since).Scan(&count)
	return count, err
}

// ListReportsByStation 返回站点最近的报告。
func (r *Repository) ListReportsByStation(ctx context.Context, stationID int64, limit int) ([]models.Report, error) {
	q := `SELECT id, station_id, reporter_id, status, note, created_at
          FROM reports WHERE station_id = $1 ORDER BY created_at DESC`
	args := []any{stationID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.q().Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var rep models.Report
		if err := rows.Scan(&rep.ID, &rep.StationID, &rep.ReporterID, &rep.Status, &rep.Note, &rep.CreatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// ---------- 充电会话 ----------

const sessionColumns = `id, user_id, station_id, state, start_time, end_time,
    battery_start_percent, battery_end_percent, energy_kwh, duration_minutes,
    is_auto_tracked, grid_voltage, max_power_kw, max_temp_c, screenshot_path,
    vehicle_ref, created_at, updated_at`

func scanSession(row pgx.Row) (*models.ChargingSession, error) {
	var s models.ChargingSession
	err := row.Scan(&s.ID, &s.UserID, &s.StationID, &s.State, &s.StartTime, &s.EndTime,
		&s.BatteryStartPercent, &s.BatteryEndPercent, &s.EnergyKwh, &s.DurationMinutes,
		&s.IsAutoTracked, &s.GridVoltage, &s.MaxPowerKw, &s.MaxTempC, &s.ScreenshotPath,
		&s.VehicleRef, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession 插入新会话。并发重复由部分唯一索引
// uq_sessions_user_active (user_id) WHERE state='active' 拦截。
func (r *Repository) CreateSession(ctx context.Context, session *models.ChargingSession) error {
	const q = `INSERT INTO charging_sessions
               (id, user_id, station_id, state, start_time,
                battery_start_percent, is_auto_tracked, grid_voltage, max_power_kw, max_temp_c,
                vehicle_ref, created_at, updated_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())`
	_, err := r.q().Exec(ctx, q, session.ID, session.UserID, session.StationID,
		session.State, session.StartTime, session.BatteryStartPercent,
		session.IsAutoTracked, session.GridVoltage, session.MaxPowerKw,
		session.MaxTempC, session.VehicleRef)
	return err
}

// GetSession 按 ID 查询会话。
func (r *Repository) GetSession(ctx context.Context, id string) (*models.ChargingSession, error) {
	return scanSession(r.q().QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM charging_sessions WHERE id = $1`, id))
}

// GetActiveSessionByUser 查询用户当前活跃会话。
func (r *Repository) GetActiveSessionByUser(ctx context.Context, userID int64) (*models.ChargingSession, error) {
	return scanSession(r.q().QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM charging_sessions
         WHERE user_id = $1 AND state = 'active'`, userID))
}

// HasActiveSession 判断用户是否已有活跃会话。
func (r *Repository) HasActiveSession(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.q().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM charging_sessions WHERE user_id = $1 AND state = 'active')`,
		userID).Scan(&exists)
	return exists, err
}

// CompleteSession 条件关单，state='active' 的 UPDATE 是幂等保障。
func (r *Repository) CompleteSession(ctx context.Context, id string, close models.SessionClose) (bool, error) {
	const q = `UPDATE charging_sessions
               SET state = 'ended',
                   end_time = $2,
                   duration_minutes = $3,
                   battery_end_percent = COALESCE($4, battery_end_percent),
                   energy_kwh = COALESCE($5, energy_kwh),
                   screenshot_path = COALESCE($6, screenshot_path),
                   updated_at = NOW()
               WHERE id = $1 AND state = 'active'`
	tag, err := r.q().Exec(ctx, q, id, close.EndTime, close.DurationMinutes,
		close.BatteryEndPercent, close.EnergyKwh, close.ScreenshotPath)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountActiveSessions 活跃会话总数。
func (r *Repository) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	err := r.q().QueryRow(ctx,
		`SELECT COUNT(*) FROM charging_sessions WHERE state = 'active'`).Scan(&count)
	return count, err
}
