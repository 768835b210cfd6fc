package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStationView(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 4)

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/api/stations/%d", id), "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(id), body["station_id"])
	assert.Equal(t, "operational", body["status"])
	assert.Equal(t, float64(4), body["available_chargers"])
}

func TestGetStationNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/stations/999", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStationInvalidID(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodGet, "/api/stations/abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentityRequired(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 4)

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/api/stations/%d", id), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyAndSummaryFlow(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 4)

	// 两个不同用户投 WORKING，达到 verified 阈值
	for _, user := range []string{"alice", "bob"} {
		w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/stations/%d/verify", id), user,
			map[string]any{"vote": "working"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(r, http.MethodGet, fmt.Sprintf("/api/stations/%d/verification-summary", id), "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(2), body["total_votes"])
	assert.Equal(t, "working", body["leading_vote"])
	assert.Equal(t, true, body["is_verified"])
	assert.Equal(t, false, body["is_strong_verified"])
	assert.Equal(t, float64(1), body["score"])
	assert.NotEmpty(t, body["label"])
	assert.NotNil(t, body["last_verified_at"])
}

func TestVerifyRejectsInvalidVote(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 4)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/stations/%d/verify", id), "alice",
		map[string]any{"vote": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportFlipsStatus(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 4)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/stations/%d/report", id), "alice",
		map[string]any{"status": "not_working", "note": "charger error 503"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/api/stations/%d", id), "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "offline", body["status"])
	// 人工下线时不展示正向徽标
	_, hasBadge := body["badge"]
	assert.False(t, hasBadge)
}

func TestSetAvailability(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 4)

	w := doJSON(r, http.MethodPatch, fmt.Sprintf("/api/stations/%d/availability", id), "admin",
		map[string]any{"available_chargers": 2})
	require.Equal(t, http.StatusOK, w.Code)

	// 超出 charger_count 必须 400
	w = doJSON(r, http.MethodPatch, fmt.Sprintf("/api/stations/%d/availability", id), "admin",
		map[string]any{"available_chargers": 9})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndListStations(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/stations", "admin", map[string]any{
		"name":          "Harbor East",
		"lat":           53.54,
		"lng":           9.99,
		"charger_type":  "ccs",
		"charger_count": 8,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(r, http.MethodGet, "/api/stations", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	stations, ok := body["stations"].([]any)
	require.True(t, ok)
	assert.Len(t, stations, 1)
}
