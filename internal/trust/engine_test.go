package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/storage/models"
	"github.com/voltmap/voltmap-server/internal/storage/storagetest"
)

func testPolicy() Policy {
	return PolicyFromConfig(cfgpkg.TrustConfig{
		RecencyWindow:           24 * time.Hour,
		VerifiedMinVotes:        2,
		StrongMinVotes:          5,
		ReportHorizonDays:       30,
		LowTrustFaultReports:    3,
		TrustedMinConfirmations: 10,
	})
}

func vote(station, voter int64, kind coremodel.VoteKind, at time.Time) models.VerificationVote {
	return models.VerificationVote{StationID: station, VoterID: voter, Vote: string(kind), CreatedAt: at}
}

func TestAggregateEmptyVotes(t *testing.T) {
	s := Aggregate(1, nil, time.Now(), testPolicy())
	assert.Equal(t, coremodel.StationID(1), s.StationID)
	assert.Equal(t, 0, s.TotalVotes)
	assert.Empty(t, s.LeadingVote)
	assert.False(t, s.IsVerified)
	assert.False(t, s.IsStrongVerified)
	assert.Nil(t, s.LastVerifiedAt)
}

func TestAggregateDedupesByVoter(t *testing.T) {
	now := time.Now()
	votes := []models.VerificationVote{
		vote(1, 100, coremodel.VoteNotWorking, now.Add(-2*time.Hour)),
		vote(1, 100, coremodel.VoteWorking, now.Add(-1*time.Hour)),
	}
	s := Aggregate(1, votes, now, testPolicy())

	// 同一投票人只算一票，后者覆盖前者
	assert.Equal(t, 1, s.TotalVotes)
	assert.Equal(t, coremodel.VoteWorking, s.LeadingVote)
}

func TestAggregateRecencyWindow(t *testing.T) {
	now := time.Now()
	old := now.Add(-25 * time.Hour)
	votes := []models.VerificationVote{
		vote(1, 100, coremodel.VoteWorking, old),
		vote(1, 101, coremodel.VoteNotWorking, now.Add(-time.Hour)),
	}
	s := Aggregate(1, votes, now, testPolicy())

	// 窗口外的票不计入统计，但 WORKING 历史仍喂给 lastVerifiedAt
	assert.Equal(t, 1, s.TotalVotes)
	assert.Equal(t, coremodel.VoteNotWorking, s.LeadingVote)
	require.NotNil(t, s.LastVerifiedAt)
	assert.WithinDuration(t, old, *s.LastVerifiedAt, time.Second)
}

func TestAggregateTieBreakOptimistic(t *testing.T) {
	now := time.Now()
	votes := []models.VerificationVote{
		vote(1, 1, coremodel.VoteWorking, now.Add(-time.Hour)),
		vote(1, 2, coremodel.VoteWorking, now.Add(-time.Hour)),
		vote(1, 3, coremodel.VoteNotWorking, now.Add(-time.Hour)),
		vote(1, 4, coremodel.VoteNotWorking, now.Add(-time.Hour)),
	}
	s := Aggregate(1, votes, now, testPolicy())

	// 2:2 平票按 WORKING > BUSY > NOT_WORKING 裁决
	assert.Equal(t, coremodel.VoteWorking, s.LeadingVote)
	assert.Equal(t, 4, s.TotalVotes)
	assert.InDelta(t, 0.5, s.Score, 1e-9)
	assert.True(t, s.IsVerified)
	assert.False(t, s.IsStrongVerified)
}

func TestAggregateBusyBeatsNotWorkingOnTie(t *testing.T) {
	now := time.Now()
	votes := []models.VerificationVote{
		vote(1, 1, coremodel.VoteBusy, now.Add(-time.Hour)),
		vote(1, 2, coremodel.VoteNotWorking, now.Add(-time.Hour)),
	}
	s := Aggregate(1, votes, now, testPolicy())
	assert.Equal(t, coremodel.VoteBusy, s.LeadingVote)
}

func TestAggregateStrongVerification(t *testing.T) {
	now := time.Now()
	var votes []models.VerificationVote
	for i := int64(1); i <= 5; i++ {
		votes = append(votes, vote(1, i, coremodel.VoteWorking, now.Add(-time.Hour)))
	}
	s := Aggregate(1, votes, now, testPolicy())

	assert.Equal(t, 5, s.TotalVotes)
	assert.True(t, s.IsVerified)
	assert.True(t, s.IsStrongVerified)
	assert.InDelta(t, 1.0, s.Score, 1e-9)
}

func TestAggregateStrongRequiresWorkingLeading(t *testing.T) {
	now := time.Now()
	var votes []models.VerificationVote
	for i := int64(1); i <= 5; i++ {
		votes = append(votes, vote(1, i, coremodel.VoteBusy, now.Add(-time.Hour)))
	}
	s := Aggregate(1, votes, now, testPolicy())

	assert.True(t, s.IsVerified)
	assert.False(t, s.IsStrongVerified)
	assert.Equal(t, coremodel.VoteBusy, s.LeadingVote)
}

func TestAggregateBelowVerifiedThreshold(t *testing.T) {
	now := time.Now()
	votes := []models.VerificationVote{
		vote(1, 1, coremodel.VoteWorking, now.Add(-time.Hour)),
	}
	s := Aggregate(1, votes, now, testPolicy())

	assert.Equal(t, 1, s.TotalVotes)
	assert.Equal(t, coremodel.VoteWorking, s.LeadingVote)
	assert.False(t, s.IsVerified)
}

func TestTrustLevelFor(t *testing.T) {
	p := testPolicy()
	tests := []struct {
		name          string
		faults        int64
		confirmations int64
		want          coremodel.TrustLevel
	}{
		{"无信号", 0, 0, coremodel.TrustLevelNormal},
		{"故障报告达阈值且缺佐证", 3, 1, coremodel.TrustLevelLow},
		{"故障报告达阈值但佐证更多", 3, 5, coremodel.TrustLevelNormal},
		{"佐证充分无故障", 0, 10, coremodel.TrustLevelTrusted},
		{"佐证充分但有故障", 1, 12, coremodel.TrustLevelNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrustLevelFor(tt.faults, tt.confirmations, p))
		})
	}
}

func TestSummarizeFromStore(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	ctx := context.Background()
	now := time.Now()
	for i := int64(1); i <= 3; i++ {
		v := vote(7, i, coremodel.VoteWorking, now.Add(-time.Hour))
		require.NoError(t, repo.AppendVote(ctx, &v))
	}

	e := NewEngine(repo, cfgpkg.TrustConfig{RecencyWindow: 24 * time.Hour}, nil, nil, nil)
	s, err := e.Summarize(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalVotes)
	assert.True(t, s.IsVerified)
	assert.Equal(t, coremodel.VoteWorking, s.LeadingVote)
}

func TestSummarizeCachesWithinTTL(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	ctx := context.Background()
	now := time.Now()
	v := vote(7, 1, coremodel.VoteWorking, now.Add(-time.Hour))
	require.NoError(t, repo.AppendVote(ctx, &v))

	e := NewEngine(repo, cfgpkg.TrustConfig{RecencyWindow: 24 * time.Hour, CacheTTL: time.Minute}, nil, nil, nil)
	first, err := e.Summarize(ctx, 7)
	require.NoError(t, err)

	// 新票在 TTL 内不可见，缓存只是性能层
	v2 := vote(7, 2, coremodel.VoteWorking, now)
	require.NoError(t, repo.AppendVote(ctx, &v2))
	second, err := e.Summarize(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, first.TotalVotes, second.TotalVotes)
}

func TestSummarizeRetriesTransientFailure(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	ctx := context.Background()
	v := vote(7, 1, coremodel.VoteWorking, time.Now().Add(-time.Hour))
	require.NoError(t, repo.AppendVote(ctx, &v))
	repo.FailNext = 1

	e := NewEngine(repo, cfgpkg.TrustConfig{RecencyWindow: 24 * time.Hour}, nil, nil, nil)
	s, err := e.Summarize(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalVotes)
}

func TestComputeTrustLevel(t *testing.T) {
	repo := storagetest.NewFakeRepo()
	ctx := context.Background()
	now := time.Now()
	for i := int64(1); i <= 3; i++ {
		r := models.Report{StationID: 7, ReporterID: i, Status: "not_working", CreatedAt: now.Add(-time.Hour)}
		require.NoError(t, repo.AppendReport(ctx, &r))
	}

	e := NewEngine(repo, cfgpkg.TrustConfig{}, nil, nil, nil)
	level, err := e.ComputeTrustLevel(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, coremodel.TrustLevelLow, level)
}

func TestBadgeLabels(t *testing.T) {
	table := DefaultBadgeTable()
	tests := []struct {
		name    string
		summary coremodel.VerificationSummary
		want    string
	}{
		{"强校验", coremodel.VerificationSummary{IsVerified: true, IsStrongVerified: true, LeadingVote: coremodel.VoteWorking}, "Community verified"},
		{"普通校验", coremodel.VerificationSummary{IsVerified: true, LeadingVote: coremodel.VoteWorking}, "Recently confirmed working"},
		{"繁忙", coremodel.VerificationSummary{IsVerified: true, LeadingVote: coremodel.VoteBusy}, "Often busy"},
		{"故障", coremodel.VerificationSummary{IsVerified: true, LeadingVote: coremodel.VoteNotWorking}, "Reported not working"},
		{"未校验", coremodel.VerificationSummary{}, "Not yet verified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Label(tt.summary))
		})
	}
}
