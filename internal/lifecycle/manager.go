package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/events"
	"github.com/voltmap/voltmap-server/internal/metrics"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// 会话生命周期的业务错误。API 层负责映射到 HTTP 状态码。
var (
	// ErrSessionConflict 用户已有活跃会话
	ErrSessionConflict = errors.New("user already has an active charging session")
	// ErrNoChargerAvailable 站点无可用充电桩
	ErrNoChargerAvailable = errors.New("no charger available at station")
	// ErrSessionNotActive 会话已结束，结束操作不可重复
	ErrSessionNotActive = errors.New("charging session is not active")
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("charging session not found")
	// ErrNotSessionOwner 会话属于其他用户
	ErrNotSessionOwner = errors.New("charging session belongs to another user")
)

// StartParams 开始充电会话的参数
type StartParams struct {
	UserID              int64
	StationID           int64
	VehicleRef          *string
	BatteryStartPercent *int32

	// 自动检测创建的会话走同一状态机，附带原始遥测
	IsAutoTracked bool
	GridVoltage   *int32
	MaxPowerKw    *float64
	MaxTempC      *float64
}

// EndParams 结束充电会话的参数
type EndParams struct {
	SessionID         string
	UserID            int64
	BatteryEndPercent *int32
	EnergyKwh         *float64
	ScreenshotPath    *string
}

// Manager 充电会话生命周期管理器。
// 状态机（按用户）：无活跃会话 -> active -> ended，结束后不可重开。
// 两条硬性不变量：
// - 单用户同时至多一个活跃会话
// - 0 <= available_chargers <= charger_count，且开始/结束严格守恒
type Manager struct {
	repo    storage.CoreRepo
	index   *ActiveSessionIndex
	events  *events.EventQueue
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	// now 可注入，测试用
	now func() time.Time
}

// NewManager 创建生命周期管理器。index 与 queue 可为 nil（redis 关闭时）。
func NewManager(repo storage.CoreRepo, index *ActiveSessionIndex, queue *events.EventQueue, m *metrics.AppMetrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:    repo,
		index:   index,
		events:  queue,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// StartSession 开始充电会话。
// 前置检查与写入在同一事务内完成：活跃会话存在性检查、
// 可用数条件减一（available_chargers > 0 才命中）、会话插入。
// 并发竞争下先提交者赢，后者要么被存在性检查拦截，
// 要么被部分唯一索引拦截并映射为 ErrSessionConflict。
func (m *Manager) StartSession(ctx context.Context, p StartParams) (*models.ChargingSession, error) {
	session := &models.ChargingSession{
		ID:                  uuid.NewString(),
		UserID:              p.UserID,
		StationID:           p.StationID,
		State:               string(sessionActive),
		StartTime:           m.now(),
		BatteryStartPercent: p.BatteryStartPercent,
		IsAutoTracked:       p.IsAutoTracked,
		GridVoltage:         p.GridVoltage,
		MaxPowerKw:          p.MaxPowerKw,
		MaxTempC:            p.MaxTempC,
		VehicleRef:          p.VehicleRef,
	}

	err := m.repo.WithTx(ctx, func(tx storage.CoreRepo) error {
		// 站点存在性（缺失映射 storage.ErrNotFound）
		if _, err := tx.GetStation(ctx, p.StationID); err != nil {
			return err
		}

		active, err := tx.HasActiveSession(ctx, p.UserID)
		if err != nil {
			return err
		}
		if active {
			return ErrSessionConflict
		}

		ok, err := tx.DecrementAvailability(ctx, p.StationID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoChargerAvailable
		}

		if err := tx.CreateSession(ctx, session); err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrSessionConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		m.countStart(err)
		return nil, err
	}
	m.countStart(nil)

	m.index.Set(ctx, p.UserID, session.ID)
	m.refreshActiveGauge(ctx)
	m.emit(ctx, events.NewEvent(events.EventSessionStarted, p.StationID, (&events.SessionStartedData{
		SessionID:     session.ID,
		UserID:        p.UserID,
		StationID:     p.StationID,
		IsAutoTracked: p.IsAutoTracked,
		StartedAt:     session.StartTime.Unix(),
	}).ToMap()))

	m.logger.Info("charging session started",
		zap.String("session_id", session.ID),
		zap.Int64("user_id", p.UserID),
		zap.Int64("station_id", p.StationID),
		zap.Bool("auto_tracked", p.IsAutoTracked))
	return session, nil
}

// EndSession 结束充电会话。
// 条件关单 UPDATE ... WHERE state='active' 是线性化点：
// 未命中说明会话已结束（或不存在），绝不重复加回可用数。
func (m *Manager) EndSession(ctx context.Context, p EndParams) (*models.ChargingSession, error) {
	var ended *models.ChargingSession

	err := m.repo.WithTx(ctx, func(tx storage.CoreRepo) error {
		session, err := tx.GetSession(ctx, p.SessionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.UserID != p.UserID {
			return ErrNotSessionOwner
		}

		endTime := m.now()
		elapsed := endTime.Sub(session.StartTime)
		if elapsed < 0 {
			elapsed = 0
		}
		close := models.SessionClose{
			EndTime:           endTime,
			DurationMinutes:   int32(elapsed / time.Minute),
			BatteryEndPercent: p.BatteryEndPercent,
			EnergyKwh:         p.EnergyKwh,
			ScreenshotPath:    p.ScreenshotPath,
		}

		ok, err := tx.CompleteSession(ctx, p.SessionID, close)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSessionNotActive
		}

		if err := tx.IncrementAvailability(ctx, session.StationID); err != nil {
			return err
		}

		session.State = string(sessionEnded)
		session.EndTime = &close.EndTime
		session.DurationMinutes = &close.DurationMinutes
		if p.BatteryEndPercent != nil {
			session.BatteryEndPercent = p.BatteryEndPercent
		}
		if p.EnergyKwh != nil {
			session.EnergyKwh = p.EnergyKwh
		}
		if p.ScreenshotPath != nil {
			session.ScreenshotPath = p.ScreenshotPath
		}
		ended = session
		return nil
	})
	if err != nil {
		m.countEnd(err)
		return nil, err
	}
	m.countEnd(nil)

	m.index.Clear(ctx, p.UserID)
	m.refreshActiveGauge(ctx)
	m.emit(ctx, events.NewEvent(events.EventSessionEnded, ended.StationID, (&events.SessionEndedData{
		SessionID:       ended.ID,
		UserID:          ended.UserID,
		StationID:       ended.StationID,
		DurationMinutes: *ended.DurationMinutes,
		EnergyKwh:       ended.EnergyKwh,
		EndedAt:         ended.EndTime.Unix(),
	}).ToMap()))

	m.logger.Info("charging session ended",
		zap.String("session_id", ended.ID),
		zap.Int64("user_id", ended.UserID),
		zap.Int64("station_id", ended.StationID),
		zap.Int32("duration_minutes", *ended.DurationMinutes))
	return ended, nil
}

// GetActiveSession 查询用户当前活跃会话，无副作用。
// redis 索引命中时省掉一次全表条件查询；索引缺失或陈旧都回退 DB。
func (m *Manager) GetActiveSession(ctx context.Context, userID int64) (*models.ChargingSession, error) {
	if id, ok := m.index.Get(ctx, userID); ok {
		session, err := m.repo.GetSession(ctx, id)
		if err == nil && session.UserID == userID && session.State == string(sessionActive) {
			return session, nil
		}
		// 索引陈旧，清理后走 DB
		m.index.Clear(ctx, userID)
	}

	session, err := m.repo.GetActiveSessionByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	m.index.Set(ctx, userID, session.ID)
	return session, nil
}

// GetSession 按 ID 查询会话（属主校验由调用方按需执行）
func (m *Manager) GetSession(ctx context.Context, id string) (*models.ChargingSession, error) {
	session, err := m.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

const (
	sessionActive = "active"
	sessionEnded  = "ended"
)

func (m *Manager) countStart(err error) {
	if m.metrics == nil {
		return
	}
	switch {
	case err == nil:
		m.metrics.SessionStartTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrSessionConflict):
		m.metrics.SessionStartTotal.WithLabelValues("conflict").Inc()
	case errors.Is(err, ErrNoChargerAvailable):
		m.metrics.SessionStartTotal.WithLabelValues("no_charger").Inc()
	default:
		m.metrics.SessionStartTotal.WithLabelValues("error").Inc()
	}
}

func (m *Manager) countEnd(err error) {
	if m.metrics == nil {
		return
	}
	switch {
	case err == nil:
		m.metrics.SessionEndTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrSessionNotActive):
		m.metrics.SessionEndTotal.WithLabelValues("not_active").Inc()
	default:
		m.metrics.SessionEndTotal.WithLabelValues("error").Inc()
	}
}

func (m *Manager) refreshActiveGauge(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	if n, err := m.repo.CountActiveSessions(ctx); err == nil {
		m.metrics.ActiveSessionsGauge.Set(float64(n))
	}
}

func (m *Manager) emit(ctx context.Context, evt *events.StandardEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.Enqueue(ctx, evt); err != nil {
		m.logger.Warn("failed to enqueue event",
			zap.String("event_type", string(evt.EventType)),
			zap.Error(err))
		return
	}
	if m.metrics != nil {
		m.metrics.EventsEnqueuedTotal.WithLabelValues(string(evt.EventType)).Inc()
	}
}
