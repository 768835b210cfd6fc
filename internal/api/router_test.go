package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/voltmap/voltmap-server/internal/api/middleware"
	cfgpkg "github.com/voltmap/voltmap-server/internal/config"
	"github.com/voltmap/voltmap-server/internal/lifecycle"
	"github.com/voltmap/voltmap-server/internal/station"
	"github.com/voltmap/voltmap-server/internal/storage/models"
	"github.com/voltmap/voltmap-server/internal/storage/storagetest"
	"github.com/voltmap/voltmap-server/internal/trust"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storagetest.FakeRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := storagetest.NewFakeRepo()
	engine := trust.NewEngine(repo, cfgpkg.TrustConfig{RecencyWindow: 24 * time.Hour}, nil, nil, nil)

	r := gin.New()
	RegisterRoutes(r, Deps{
		Repo:       repo,
		Aggregator: station.NewAggregator(repo, engine, nil),
		Ingestor:   station.NewIngestor(repo, nil, nil, nil),
		Trust:      engine,
		Lifecycle:  lifecycle.NewManager(repo, nil, nil, nil, nil),
		Auth:       middleware.AuthConfig{Enabled: false},
		RateLimit:  middleware.RateLimitConfig{Enabled: false},
	})
	return r, repo
}

func seedStation(t *testing.T, repo *storagetest.FakeRepo, chargers int32) int64 {
	t.Helper()
	s := &models.Station{
		Name:              "City Garage L1",
		Lat:               48.137,
		Lng:               11.575,
		ChargerType:       "type2",
		ChargerCount:      chargers,
		AvailableChargers: chargers,
		Status:            "operational",
		TrustLevel:        "normal",
	}
	require.NoError(t, repo.CreateStation(context.Background(), s))
	return s.ID
}

func doJSON(r *gin.Engine, method, path, user string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}
