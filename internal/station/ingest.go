package station

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/events"
	"github.com/voltmap/voltmap-server/internal/metrics"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

var (
	// ErrInvalidVote 非法投票类别
	ErrInvalidVote = errors.New("invalid vote kind")
	// ErrInvalidReportStatus 非法报告类别
	ErrInvalidReportStatus = errors.New("invalid report status")
	// ErrInvalidStation 非法站点参数
	ErrInvalidStation = errors.New("invalid station parameters")
	// ErrAvailabilityOutOfRange 校准值超出 [0, charger_count]
	ErrAvailabilityOutOfRange = errors.New("available chargers out of range")
)

// Ingestor 社区信号写入口：投票、报告、可用数校准、建站。
// 投票与报告都是追加写日志，报告额外在同一事务内翻转站点运营状态。
type Ingestor struct {
	repo    storage.CoreRepo
	events  *events.EventQueue
	metrics *metrics.AppMetrics
	logger  *zap.Logger
}

// NewIngestor 创建写入口
func NewIngestor(repo storage.CoreRepo, queue *events.EventQueue, m *metrics.AppMetrics, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{repo: repo, events: queue, metrics: m, logger: logger}
}

// CreateStationParams 登记新站点的参数，可用数缺省等于桩数
type CreateStationParams struct {
	Name              string
	Lat               float64
	Lng               float64
	ChargerType       string
	ChargerCount      int32
	AvailableChargers *int32
}

// CreateStation 创建站点
func (g *Ingestor) CreateStation(ctx context.Context, p CreateStationParams) (*models.Station, error) {
	if p.Name == "" || p.ChargerType == "" || p.ChargerCount <= 0 {
		return nil, ErrInvalidStation
	}
	available := p.ChargerCount
	if p.AvailableChargers != nil {
		if *p.AvailableChargers < 0 || *p.AvailableChargers > p.ChargerCount {
			return nil, ErrAvailabilityOutOfRange
		}
		available = *p.AvailableChargers
	}
	st := &models.Station{
		Name:              p.Name,
		Lat:               p.Lat,
		Lng:               p.Lng,
		ChargerType:       p.ChargerType,
		ChargerCount:      p.ChargerCount,
		AvailableChargers: available,
		Status:            string(coremodel.StationStatusOperational),
		TrustLevel:        string(coremodel.TrustLevelNormal),
	}
	if err := g.repo.CreateStation(ctx, st); err != nil {
		return nil, err
	}
	g.logger.Info("station created",
		zap.Int64("station_id", st.ID),
		zap.String("name", st.Name),
		zap.Int32("charger_count", st.ChargerCount))
	return st, nil
}

// SubmitVote 追加一条校验投票。
// 历史投票不覆盖，聚合时按投票人取最近一票去重。
func (g *Ingestor) SubmitVote(ctx context.Context, stationID, voterID int64, kind coremodel.VoteKind) (*models.VerificationVote, error) {
	if !kind.Valid() {
		return nil, ErrInvalidVote
	}
	if _, err := g.repo.GetStation(ctx, stationID); err != nil {
		return nil, err
	}

	vote := &models.VerificationVote{
		StationID: stationID,
		VoterID:   voterID,
		Vote:      string(kind),
	}
	if err := g.repo.AppendVote(ctx, vote); err != nil {
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.VotesTotal.WithLabelValues(string(kind)).Inc()
	}
	g.emit(ctx, events.NewEvent(events.EventStationVerified, stationID, (&events.StationVerifiedData{
		VoterID: voterID,
		Vote:    string(kind),
		VotedAt: vote.CreatedAt.Unix(),
	}).ToMap()))

	g.logger.Info("verification vote recorded",
		zap.Int64("station_id", stationID),
		zap.Int64("voter_id", voterID),
		zap.String("vote", string(kind)))
	return vote, nil
}

// SubmitReport 追加报告并在同一事务内翻转站点运营状态。
// 报告不是参考意见：WORKING 报告恢复 operational，NOT_WORKING 报告转 offline。
func (g *Ingestor) SubmitReport(ctx context.Context, stationID, reporterID int64, status coremodel.ReportStatus, note *string) (*models.Report, error) {
	if !status.Valid() {
		return nil, ErrInvalidReportStatus
	}

	newState := coremodel.StationStatusOperational
	if status == coremodel.ReportNotWorking {
		newState = coremodel.StationStatusOffline
	}

	report := &models.Report{
		StationID:  stationID,
		ReporterID: reporterID,
		Status:     string(status),
		Note:       note,
	}
	err := g.repo.WithTx(ctx, func(tx storage.CoreRepo) error {
		if _, err := tx.GetStation(ctx, stationID); err != nil {
			return err
		}
		if err := tx.AppendReport(ctx, report); err != nil {
			return err
		}
		return tx.UpdateStationStatus(ctx, stationID, string(newState))
	})
	if err != nil {
		return nil, err
	}

	if g.metrics != nil {
		g.metrics.ReportsTotal.WithLabelValues(string(status)).Inc()
	}
	g.emit(ctx, events.NewEvent(events.EventStationReported, stationID, (&events.StationReportedData{
		ReporterID: reporterID,
		Status:     string(status),
		NewState:   string(newState),
		ReportedAt: report.CreatedAt.Unix(),
	}).ToMap()))

	g.logger.Info("station report recorded",
		zap.Int64("station_id", stationID),
		zap.Int64("reporter_id", reporterID),
		zap.String("status", string(status)),
		zap.String("new_state", string(newState)))
	return report, nil
}

// SetAvailability 管理员校准可用数，必须落在 [0, charger_count]
func (g *Ingestor) SetAvailability(ctx context.Context, stationID int64, n int32) error {
	ok, err := g.repo.SetAvailability(ctx, stationID, n)
	if err != nil {
		return err
	}
	if !ok {
		// 区分站点缺失与越界
		if _, err := g.repo.GetStation(ctx, stationID); err != nil {
			return err
		}
		return ErrAvailabilityOutOfRange
	}
	g.logger.Info("station availability calibrated",
		zap.Int64("station_id", stationID),
		zap.Int32("available_chargers", n))
	return nil
}

func (g *Ingestor) emit(ctx context.Context, evt *events.StandardEvent) {
	if g.events == nil {
		return
	}
	if err := g.events.Enqueue(ctx, evt); err != nil {
		g.logger.Warn("failed to enqueue event",
			zap.String("event_type", string(evt.EventType)),
			zap.Error(err))
		return
	}
	if g.metrics != nil {
		g.metrics.EventsEnqueuedTotal.WithLabelValues(string(evt.EventType)).Inc()
	}
}
