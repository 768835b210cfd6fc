package trust

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/metrics"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// Policy 信任引擎策略参数。全部阈值可配置，默认值见 config。
type Policy struct {
	// RecencyWindow 投票有效窗口 W
	RecencyWindow time.Duration
	// VerifiedMinVotes 达到 verified 的最小在窗票数 V1
	VerifiedMinVotes int
	// StrongMinVotes 达到 strong verified 的最小在窗票数 V2
	StrongMinVotes int
	// ReportHorizon 信任等级的长周期观察窗口 R
	ReportHorizon time.Duration
	// LowTrustFaultReports 观察窗口内降为 low 的故障报告阈值
	LowTrustFaultReports int64
	// TrustedMinConfirmations 升为 trusted 所需 WORKING 佐证数
	TrustedMinConfirmations int64
}

// PolicyFromConfig 从配置构造策略，非法值回退默认
func PolicyFromConfig(cfg cfgpkg.TrustConfig) Policy {
	p := Policy{
		RecencyWindow:           cfg.RecencyWindow,
		VerifiedMinVotes:        cfg.VerifiedMinVotes,
		StrongMinVotes:          cfg.StrongMinVotes,
		ReportHorizon:           time.Duration(cfg.ReportHorizonDays) * 24 * time.Hour,
		LowTrustFaultReports:    int64(cfg.LowTrustFaultReports),
		TrustedMinConfirmations: int64(cfg.TrustedMinConfirmations),
	}
	if p.RecencyWindow <= 0 {
		p.RecencyWindow = 24 * time.Hour
	}
	if p.VerifiedMinVotes <= 0 {
		p.VerifiedMinVotes = 2
	}
	if p.StrongMinVotes <= 0 {
		p.StrongMinVotes = 5
	}
	if p.ReportHorizon <= 0 {
		p.ReportHorizon = 30 * 24 * time.Hour
	}
	if p.LowTrustFaultReports <= 0 {
		p.LowTrustFaultReports = 3
	}
	if p.TrustedMinConfirmations <= 0 {
		p.TrustedMinConfirmations = 10
	}
	return p
}

// Engine 信任与校验引擎。
// 聚合本身是输入的纯函数，每次读取重算都是安全的；
// 可选的 TTL 缓存只是性能层，TTL 不超过投票有效窗口，不影响语义。
type Engine struct {
	repo    storage.CoreRepo
	policy  Policy
	badges  *BadgeTable
	cache   *gocache.Cache
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	// now 可注入，测试用
	now func() time.Time
}

// NewEngine 创建信任引擎。cacheTTL <= 0 时关闭缓存。
func NewEngine(repo storage.CoreRepo, cfg cfgpkg.TrustConfig, badges *BadgeTable, m *metrics.AppMetrics, logger *zap.Logger) *Engine {
	e := &Engine{
		repo:    repo,
		policy:  PolicyFromConfig(cfg),
		badges:  badges,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	if e.badges == nil {
		e.badges = DefaultBadgeTable()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	ttl := cfg.CacheTTL
	if ttl > e.policy.RecencyWindow {
		ttl = e.policy.RecencyWindow
	}
	if ttl > 0 {
		e.cache = gocache.New(ttl, 2*ttl)
	}
	return e
}

// Policy 返回引擎当前策略
func (e *Engine) Policy() Policy { return e.policy }

// Summarize 计算站点的校验摘要。
// 投票数据为空时返回未校验默认值而非错误；存储瞬时失败走有界重试。
func (e *Engine) Summarize(ctx context.Context, stationID int64) (coremodel.VerificationSummary, error) {
	key := strconv.FormatInt(stationID, 10)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if e.metrics != nil {
				e.metrics.SummarizeCacheTotal.WithLabelValues("hit").Inc()
			}
			return v.(coremodel.VerificationSummary), nil
		}
		if e.metrics != nil {
			e.metrics.SummarizeCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	start := time.Now()
	var votes []models.VerificationVote
	err := storage.Retry(ctx, e.logger, "trust.list_votes", func() error {
		var ferr error
		votes, ferr = e.repo.ListVotesByStation(ctx, stationID)
		return ferr
	}, e.onRetry())
	if err != nil {
		return unverified(stationID), err
	}

	summary := Aggregate(stationID, votes, e.now(), e.policy)
	if e.metrics != nil {
		e.metrics.SummarizeDuration.Observe(time.Since(start).Seconds())
	}
	if e.cache != nil {
		e.cache.Set(key, summary, gocache.DefaultExpiration)
	}
	return summary, nil
}

// Badge 返回摘要对应的展示徽标文案
func (e *Engine) Badge(summary coremodel.VerificationSummary) string {
	return e.badges.Label(summary)
}

// ComputeTrustLevel 基于长周期信号计算站点信任等级：
// 观察窗口 R 内的故障报告数对比 WORKING 佐证数。
func (e *Engine) ComputeTrustLevel(ctx context.Context, stationID int64) (coremodel.TrustLevel, error) {
	since := e.now().Add(-e.policy.ReportHorizon)

	var faults, confirmations int64
	err := storage.Retry(ctx, e.logger, "trust.report_counts", func() error {
		var ferr error
		faults, ferr = e.repo.CountReportsSince(ctx, stationID, string(coremodel.ReportNotWorking), since)
		if ferr != nil {
			return ferr
		}
		confirmations, ferr = e.repo.CountWorkingVotesSince(ctx, stationID, since)
		return ferr
	}, e.onRetry())
	if err != nil {
		return coremodel.TrustLevelNormal, err
	}
	return TrustLevelFor(faults, confirmations, e.policy), nil
}

func (e *Engine) onRetry() func() {
	if e.metrics == nil {
		return nil
	}
	return func() { e.metrics.StorageRetriesTotal.Inc() }
}

// Aggregate 对投票历史做纯聚合，无副作用，可被任意多个读者并发调用。
// 步骤：按投票人去重取最近一票，丢弃窗口 W 之外的票，
// 计数取最高者为 leading，平票按 WORKING > BUSY > NOT_WORKING 乐观偏置。
func Aggregate(stationID int64, votes []models.VerificationVote, now time.Time, p Policy) coremodel.VerificationSummary {
	summary := unverified(stationID)
	if len(votes) == 0 {
		return summary
	}

	// lastVerifiedAt 取全部历史中最近的 WORKING 票，窗口外也算，
	// 供 "confirmed Xh ago" 文案使用
	var lastWorking *time.Time
	for i := range votes {
		if votes[i].Vote == string(coremodel.VoteWorking) {
			t := votes[i].CreatedAt
			if lastWorking == nil || t.After(*lastWorking) {
				lastWorking = &t
			}
		}
	}
	summary.LastVerifiedAt = lastWorking

	// 同一投票人只算最近一票（输入按时间升序，后者覆盖前者）
	latest := make(map[int64]models.VerificationVote, len(votes))
	for _, v := range votes {
		prev, ok := latest[v.VoterID]
		if !ok || !v.CreatedAt.Before(prev.CreatedAt) {
			latest[v.VoterID] = v
		}
	}

	// 只有窗口内的票计入实时统计
	cutoff := now.Add(-p.RecencyWindow)
	counts := make(map[coremodel.VoteKind]int, 3)
	total := 0
	for _, v := range latest {
		if v.CreatedAt.Before(cutoff) {
			continue
		}
		counts[coremodel.VoteKind(v.Vote)]++
		total++
	}
	summary.TotalVotes = total
	if total == 0 {
		return summary
	}

	// 平票裁决顺序即遍历顺序，先到者赢
	tieBreak := []coremodel.VoteKind{coremodel.VoteWorking, coremodel.VoteBusy, coremodel.VoteNotWorking}
	leading := tieBreak[0]
	best := -1
	for _, k := range tieBreak {
		if counts[k] > best {
			best = counts[k]
			leading = k
		}
	}
	summary.Score = float64(counts[coremodel.VoteWorking]) / float64(total)
	summary.LeadingVote = leading
	summary.IsVerified = total >= p.VerifiedMinVotes
	summary.IsStrongVerified = total >= p.StrongMinVotes && leading == coremodel.VoteWorking
	return summary
}

// TrustLevelFor 由长周期信号推导信任等级。
// 故障报告达到阈值且 WORKING 佐证不足时降为 low；
// 佐证充分且近期无故障报告时升为 trusted。
func TrustLevelFor(faultReports, workingConfirmations int64, p Policy) coremodel.TrustLevel {
	if faultReports >= p.LowTrustFaultReports && workingConfirmations < faultReports {
		return coremodel.TrustLevelLow
	}
	if workingConfirmations >= p.TrustedMinConfirmations && faultReports == 0 {
		return coremodel.TrustLevelTrusted
	}
	return coremodel.TrustLevelNormal
}

func unverified(stationID int64) coremodel.VerificationSummary {
	return coremodel.VerificationSummary{
		StationID: coremodel.StationID(stationID),
	}
}
