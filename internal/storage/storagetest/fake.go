package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// FakeRepo 内存版 CoreRepo，单元测试用。
// 行为与真实实现对齐：条件更新返回是否命中，
// 重复活跃会话返回唯一约束文本错误（IsUniqueViolation 可判定）。
type FakeRepo struct {
	mu   sync.Mutex
	isTx bool

	nextStationID int64
	nextUserID    int64
	nextVoteID    int64
	nextReportID  int64

	Stations map[int64]*models.Station
	Users    map[int64]*models.User
	Votes    []models.VerificationVote
	Reports  []models.Report
	Sessions map[string]*models.ChargingSession

	// FailNext 为正时，接下来 FailNext 次调用返回 FailErr（重试路径测试）
	FailNext int
	FailErr  error
}

var _ storage.CoreRepo = (*FakeRepo)(nil)

// NewFakeRepo 创建空的内存仓库
func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		Stations: make(map[int64]*models.Station),
		Users:    make(map[int64]*models.User),
		Sessions: make(map[string]*models.ChargingSession),
	}
}

func (f *FakeRepo) lock() func() {
	if f.isTx {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *FakeRepo) failInjected() error {
	if f.FailNext > 0 {
		f.FailNext--
		if f.FailErr != nil {
			return f.FailErr
		}
		return errors.New("injected storage failure")
	}
	return nil
}

// Ping 始终成功
func (f *FakeRepo) Ping(ctx context.Context) error { return nil }

// WithTx 以全局互斥模拟事务，子仓库共享底层数据且不再加锁
func (f *FakeRepo) WithTx(ctx context.Context, fn func(storage.CoreRepo) error) error {
	if f.isTx {
		return fn(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	child := &FakeRepo{
		isTx:     true,
		Stations: f.Stations,
		Users:    f.Users,
		Sessions: f.Sessions,
	}
	child.Votes = f.Votes
	child.Reports = f.Reports
	child.nextStationID = f.nextStationID
	child.nextUserID = f.nextUserID
	child.nextVoteID = f.nextVoteID
	child.nextReportID = f.nextReportID
	err := fn(child)
	// 无真实回滚，测试断言不依赖失败路径的部分写
	f.Votes = child.Votes
	f.Reports = child.Reports
	f.nextStationID = child.nextStationID
	f.nextUserID = child.nextUserID
	f.nextVoteID = child.nextVoteID
	f.nextReportID = child.nextReportID
	return err
}

func (f *FakeRepo) CreateStation(ctx context.Context, station *models.Station) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	f.nextStationID++
	station.ID = f.nextStationID
	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now()
	}
	station.UpdatedAt = station.CreatedAt
	cp := *station
	f.Stations[station.ID] = &cp
	return nil
}

func (f *FakeRepo) GetStation(ctx context.Context, id int64) (*models.Station, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	s, ok := f.Stations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeRepo) ListStations(ctx context.Context, limit, offset int, includeLowTrust bool) ([]models.Station, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(f.Stations))
	for id := range f.Stations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []models.Station
	for _, id := range ids {
		s := f.Stations[id]
		if !includeLowTrust && s.TrustLevel == "low" {
			continue
		}
		out = append(out, *s)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRepo) UpdateStationStatus(ctx context.Context, id int64, status string) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	s, ok := f.Stations[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (f *FakeRepo) UpdateStationTrustLevel(ctx context.Context, id int64, level string) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	s, ok := f.Stations[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.TrustLevel = level
	s.UpdatedAt = time.Now()
	return nil
}

func (f *FakeRepo) SetAvailability(ctx context.Context, id int64, n int32) (bool, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return false, err
	}
	s, ok := f.Stations[id]
	if !ok || n < 0 || n > s.ChargerCount {
		return false, nil
	}
	s.AvailableChargers = n
	s.UpdatedAt = time.Now()
	return true, nil
}

func (f *FakeRepo) DecrementAvailability(ctx context.Context, id int64) (bool, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return false, err
	}
	s, ok := f.Stations[id]
	if !ok || s.AvailableChargers <= 0 {
		return false, nil
	}
	s.AvailableChargers--
	s.UpdatedAt = time.Now()
	return true, nil
}

func (f *FakeRepo) IncrementAvailability(ctx context.Context, id int64) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	s, ok := f.Stations[id]
	if !ok {
		return storage.ErrNotFound
	}
	if s.AvailableChargers < s.ChargerCount {
		s.AvailableChargers++
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (f *FakeRepo) EnsureUser(ctx context.Context, externalID string) (*models.User, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	for _, u := range f.Users {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	f.nextUserID++
	u := &models.User{ID: f.nextUserID, ExternalID: externalID, CreatedAt: time.Now()}
	f.Users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *FakeRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	u, ok := f.Users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *FakeRepo) AppendVote(ctx context.Context, vote *models.VerificationVote) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	f.nextVoteID++
	vote.ID = f.nextVoteID
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now()
	}
	f.Votes = append(f.Votes, *vote)
	return nil
}

func (f *FakeRepo) ListVotesByStation(ctx context.Context, stationID int64) ([]models.VerificationVote, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	var out []models.VerificationVote
	for _, v := range f.Votes {
		if v.StationID == stationID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *FakeRepo) CountWorkingVotesSince(ctx context.Context, stationID int64, since time.Time) (int64, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return 0, err
	}
	var n int64
	for _, v := range f.Votes {
		if v.StationID == stationID && v.Vote == "working" && !v.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *FakeRepo) AppendReport(ctx context.Context, report *models.Report) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	f.nextReportID++
	report.ID = f.nextReportID
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	f.Reports = append(f.Reports, *report)
	return nil
}

func (f *FakeRepo) CountReportsSince(ctx context.Context, stationID int64, status string, since time.Time) (int64, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range f.Reports {
		if r.StationID == stationID && r.Status == status && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *FakeRepo) ListReportsByStation(ctx context.Context, stationID int64, limit int) ([]models.Report, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	var out []models.Report
	for _, r := range f.Reports {
		if r.StationID == stationID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRepo) CreateSession(ctx context.Context, session *models.ChargingSession) error {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return err
	}
	for _, s := range f.Sessions {
		if s.UserID == session.UserID && s.State == "active" {
			// 模拟部分唯一索引 (user_id) WHERE state='active'
			return errors.New("UNIQUE constraint failed: charging_sessions.user_id")
		}
	}
	if session.State == "" {
		session.State = "active"
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	cp := *session
	f.Sessions[session.ID] = &cp
	return nil
}

func (f *FakeRepo) GetSession(ctx context.Context, id string) (*models.ChargingSession, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	s, ok := f.Sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *FakeRepo) GetActiveSessionByUser(ctx context.Context, userID int64) (*models.ChargingSession, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return nil, err
	}
	for _, s := range f.Sessions {
		if s.UserID == userID && s.State == "active" {
			cp := *s
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *FakeRepo) HasActiveSession(ctx context.Context, userID int64) (bool, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return false, err
	}
	for _, s := range f.Sessions {
		if s.UserID == userID && s.State == "active" {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeRepo) CompleteSession(ctx context.Context, id string, close models.SessionClose) (bool, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return false, err
	}
	s, ok := f.Sessions[id]
	if !ok || s.State != "active" {
		return false, nil
	}
	s.State = "ended"
	end := close.EndTime
	s.EndTime = &end
	dur := close.DurationMinutes
	s.DurationMinutes = &dur
	if close.BatteryEndPercent != nil {
		s.BatteryEndPercent = close.BatteryEndPercent
	}
	if close.EnergyKwh != nil {
		s.EnergyKwh = close.EnergyKwh
	}
	if close.ScreenshotPath != nil {
		s.ScreenshotPath = close.ScreenshotPath
	}
	s.UpdatedAt = time.Now()
	return true, nil
}

func (f *FakeRepo) CountActiveSessions(ctx context.Context) (int64, error) {
	defer f.lock()()
	if err := f.failInjected(); err != nil {
		return 0, err
	}
	var n int64
	for _, s := range f.Sessions {
		if s.State == "active" {
			n++
		}
	}
	return n, nil
}
