package station

import (
	"context"

	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
	"github.com/voltmap/voltmap-server/internal/trust"
)

// Aggregator 站点状态聚合器。
// 读取时把三路信号合成对外视图：人工运营状态、实时可用数、信任摘要。
// 人工 OFFLINE 对群体 WORKING 乐观信号有一票否决权。
type Aggregator struct {
	repo   storage.CoreRepo
	trust  *trust.Engine
	logger *zap.Logger
}

// NewAggregator 创建聚合器
func NewAggregator(repo storage.CoreRepo, engine *trust.Engine, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{repo: repo, trust: engine, logger: logger}
}

// View 返回单个站点的聚合视图。
// 信任摘要计算失败不阻塞读取，降级为未校验默认值。
func (a *Aggregator) View(ctx context.Context, stationID int64) (*coremodel.StationView, error) {
	st, err := a.repo.GetStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	return a.compose(ctx, st), nil
}

// List 返回站点列表的聚合视图。
// includeLowTrust=false 时隐藏 low 信任站点（默认地图语义）。
func (a *Aggregator) List(ctx context.Context, limit, offset int, includeLowTrust bool) ([]coremodel.StationView, error) {
	stations, err := a.repo.ListStations(ctx, limit, offset, includeLowTrust)
	if err != nil {
		return nil, err
	}
	views := make([]coremodel.StationView, 0, len(stations))
	for i := range stations {
		views = append(views, *a.compose(ctx, &stations[i]))
	}
	return views, nil
}

// Summary 返回站点的校验摘要（站点必须存在）
func (a *Aggregator) Summary(ctx context.Context, stationID int64) (coremodel.VerificationSummary, error) {
	if _, err := a.repo.GetStation(ctx, stationID); err != nil {
		return coremodel.VerificationSummary{}, err
	}
	return a.trust.Summarize(ctx, stationID)
}

func (a *Aggregator) compose(ctx context.Context, st *models.Station) *coremodel.StationView {
	summary, err := a.trust.Summarize(ctx, st.ID)
	if err != nil {
		// 摘要失败降级为未校验默认值，读路径不报错
		a.logger.Warn("verification summary unavailable",
			zap.Int64("station_id", st.ID),
			zap.Error(err))
		summary = coremodel.VerificationSummary{StationID: coremodel.StationID(st.ID)}
	}

	view := &coremodel.StationView{
		StationID:         coremodel.StationID(st.ID),
		Name:              st.Name,
		Lat:               st.Lat,
		Lng:               st.Lng,
		ChargerType:       st.ChargerType,
		ChargerCount:      st.ChargerCount,
		AvailableChargers: st.AvailableChargers,
		Status:            coremodel.StationStatus(st.Status),
		TrustLevel:        a.refreshTrustLevel(ctx, st),
		Verification:      summary,
	}

	// 人工 OFFLINE 权威于群体乐观投票：状态保持 offline，不展示正向徽标
	if view.Status != coremodel.StationStatusOffline {
		view.Badge = a.trust.Badge(summary)
	}
	return view
}

// refreshTrustLevel 读路径懒更新信任等级。
// 推导失败或持久化失败都只记日志，返回已存储的等级。
func (a *Aggregator) refreshTrustLevel(ctx context.Context, st *models.Station) coremodel.TrustLevel {
	stored := coremodel.TrustLevel(st.TrustLevel)
	level, err := a.trust.ComputeTrustLevel(ctx, st.ID)
	if err != nil {
		a.logger.Warn("trust level computation failed",
			zap.Int64("station_id", st.ID),
			zap.Error(err))
		return stored
	}
	if level != stored {
		if err := a.repo.UpdateStationTrustLevel(ctx, st.ID, string(level)); err != nil {
			a.logger.Warn("trust level persist failed",
				zap.Int64("station_id", st.ID),
				zap.String("level", string(level)),
				zap.Error(err))
		}
	}
	return level
}
