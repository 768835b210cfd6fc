package station

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
	"github.com/voltmap/voltmap-server/internal/storage/storagetest"
	"github.com/voltmap/voltmap-server/internal/trust"
)

func newTestAggregator(repo storage.CoreRepo) *Aggregator {
	engine := trust.NewEngine(repo, cfgpkg.TrustConfig{RecencyWindow: 24 * time.Hour}, nil, nil, nil)
	return NewAggregator(repo, engine, nil)
}

func seedStation(t *testing.T, repo *storagetest.FakeRepo, status string) int64 {
	t.Helper()
	s := &models.Station{
		Name:              "Hauptbahnhof Nord",
		Lat:               52.525,
		Lng:               13.369,
		ChargerType:       "ccs",
		ChargerCount:      4,
		AvailableChargers: 4,
		Status:            status,
		TrustLevel:        "normal",
	}
	require.NoError(t, repo.CreateStation(context.Background(), s))
	return s.ID
}

func addWorkingVotes(t *testing.T, repo *storagetest.FakeRepo, stationID int64, n int64) {
	t.Helper()
	for i := int64(1); i <= n; i++ {
		v := &models.VerificationVote{
			StationID: stationID,
			VoterID:   i,
			Vote:      "working",
			CreatedAt: time.Now().Add(-time.Hour),
		}
		require.NoError(t, repo.AppendVote(context.Background(), v))
	}
}

func TestViewComposesTrustSummary(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	a := newTestAggregator(repo)
	stationID := seedStation(t, repo, "operational")
	addWorkingVotes(t, repo, stationID, 5)

	view, err := a.View(context.Background(), stationID)
	require.NoError(t, err)

	assert.Equal(t, coremodel.StationStatusOperational, view.Status)
	assert.Equal(t, 5, view.Verification.TotalVotes)
	assert.True(t, view.Verification.IsStrongVerified)
	assert.Equal(t, "Community verified", view.Badge)
	assert.Equal(t, int32(4), view.AvailableChargers)
}

func TestViewOfflineOverridesCrowdOptimism(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	a := newTestAggregator(repo)
	stationID := seedStation(t, repo, "offline")
	addWorkingVotes(t, repo, stationID, 5)

	view, err := a.View(context.Background(), stationID)
	require.NoError(t, err)

	// 人工 OFFLINE 权威于群体 WORKING 信号
	assert.Equal(t, coremodel.StationStatusOffline, view.Status)
	assert.Empty(t, view.Badge)
	// 摘要本身仍然如实返回
	assert.True(t, view.Verification.IsStrongVerified)
}

func TestViewUnknownStation(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	a := newTestAggregator(repo)

	_, err := a.View(context.Background(), 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestViewLazyTrustLevelRefresh(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	a := newTestAggregator(repo)
	stationID := seedStation(t, repo, "operational")

	// 三条近期故障报告且无佐证 -> 降为 low 并回写
	for i := int64(1); i <= 3; i++ {
		r := &models.Report{StationID: stationID, ReporterID: i, Status: "not_working", CreatedAt: time.Now().Add(-time.Hour)}
		require.NoError(t, repo.AppendReport(context.Background(), r))
	}

	view, err := a.View(context.Background(), stationID)
	require.NoError(t, err)
	assert.Equal(t, coremodel.TrustLevelLow, view.TrustLevel)

	st, err := repo.GetStation(context.Background(), stationID)
	require.NoError(t, err)
	assert.Equal(t, "low", st.TrustLevel)
}

func TestListHidesLowTrustByDefault(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	a := newTestAggregator(repo)
	seedStation(t, repo, "operational")
	low := &models.Station{
		Name: "Sketchy Lot", ChargerType: "type2", ChargerCount: 1,
		AvailableChargers: 1, Status: "operational", TrustLevel: "low",
	}
	require.NoError(t, repo.CreateStation(context.Background(), low))

	views, err := a.List(context.Background(), 0, 0, false)
	require.NoError(t, err)
	assert.Len(t, views, 1)

	all, err := a.List(context.Background(), 0, 0, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSummaryRequiresStation(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	a := newTestAggregator(repo)

	_, err := a.Summary(context.Background(), 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stationID := seedStation(t, repo, "operational")
	s, err := a.Summary(context.Background(), stationID)
	require.NoError(t, err)
	assert.False(t, s.IsVerified)
	assert.Equal(t, 0, s.TotalVotes)
}
