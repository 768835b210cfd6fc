package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, r *gin.Engine, user string, stationID int64) map[string]any {
	t.Helper()
	w := doJSON(r, http.MethodPost, "/api/charging-sessions/start", user,
		map[string]any{"station_id": stationID})
	require.Equal(t, http.StatusCreated, w.Code)
	return decode(t, w)
}

func TestStartSessionAPI(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 2)

	body := startSession(t, r, "alice", id)
	assert.Equal(t, "active", body["state"])
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, float64(id), body["station_id"])
}

func TestStartSessionConflictAPI(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 2)

	startSession(t, r, "alice", id)
	w := doJSON(r, http.MethodPost, "/api/charging-sessions/start", "alice",
		map[string]any{"station_id": id})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartSessionNoChargerAPI(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 1)

	startSession(t, r, "alice", id)
	w := doJSON(r, http.MethodPost, "/api/charging-sessions/start", "bob",
		map[string]any{"station_id": id})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartSessionValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/charging-sessions/start", "alice",
		map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/charging-sessions/start", "alice",
		map[string]any{"station_id": 1, "battery_start_percent": 150})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEndSessionAPI(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 2)

	session := startSession(t, r, "alice", id)
	sessionID := session["id"].(string)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/charging-sessions/%s/end", sessionID), "alice",
		map[string]any{"energy_kwh": 10.5, "battery_end_percent": 80})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ended", body["state"])
	assert.Equal(t, 10.5, body["energy_kwh"])
	assert.NotNil(t, body["duration_minutes"])

	// 重复结束：幂等守卫返回 409
	w = doJSON(r, http.MethodPost, fmt.Sprintf("/api/charging-sessions/%s/end", sessionID), "alice",
		map[string]any{})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEndSessionOwnershipAPI(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 2)

	session := startSession(t, r, "alice", id)
	sessionID := session["id"].(string)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/api/charging-sessions/%s/end", sessionID), "mallory",
		map[string]any{})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEndSessionNotFoundAPI(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/charging-sessions/missing/end", "alice",
		map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMyActiveSessionAPI(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 2)

	w := doJSON(r, http.MethodGet, "/api/charging-sessions/my-active", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	session := startSession(t, r, "alice", id)
	w = doJSON(r, http.MethodGet, "/api/charging-sessions/my-active", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	active, ok := body["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, session["id"], active["id"])
	// 响应同时附带站点聚合视图
	require.Contains(t, body, "station")

	// 其他用户看不到 alice 的会话
	w = doJSON(r, http.MethodGet, "/api/charging-sessions/my-active", "bob", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionTelemetryTiers(t *testing.T) {
	r, repo := newTestRouter(t)
	id := seedStation(t, repo, 2)

	w := doJSON(r, http.MethodPost, "/api/charging-sessions/start", "alice", map[string]any{
		"station_id":     id,
		"is_auto_tracked": true,
		"max_power_kw":   55.0,
		"max_temp_c":     48.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ultra_fast", body["speed_tier"])
	assert.Equal(t, "warm", body["safety_tier"])
	assert.Equal(t, true, body["is_auto_tracked"])
}
