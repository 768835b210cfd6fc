package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/api/middleware"
	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/station"
	"github.com/voltmap/voltmap-server/internal/trust"
)

// StationHandler 站点API处理器
type StationHandler struct {
	agg    *station.Aggregator
	ingest *station.Ingestor
	trust  *trust.Engine
	logger *zap.Logger
}

// NewStationHandler 创建站点API处理器
func NewStationHandler(agg *station.Aggregator, ingest *station.Ingestor, engine *trust.Engine, logger *zap.Logger) *StationHandler {
	return &StationHandler{agg: agg, ingest: ingest, trust: engine, logger: logger}
}

func stationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "invalid station id"})
		return 0, false
	}
	return id, true
}

// ListStations 查询站点列表
// @Summary 查询站点列表
// @Description 分页查询站点聚合视图，默认隐藏低信任站点
// @Tags 站点
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "每页数量(默认100)"
// @Param offset query int false "偏移量(默认0)"
// @Param include_low_trust query bool false "包含低信任站点"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/stations [get]
func (h *StationHandler) ListStations(c *gin.Context) {
	limit := 100
	offset := 0
	if v := c.Query("limit"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			limit = vv
		}
	}
	if v := c.Query("offset"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			offset = vv
		}
	}
	includeLowTrust := c.Query("include_low_trust") == "true"

	views, err := h.agg.List(c.Request.Context(), limit, offset, includeLowTrust)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stations": views})
}

type createStationRequest struct {
	Name              string  `json:"name" binding:"required"`
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	ChargerType       string  `json:"charger_type" binding:"required"`
	ChargerCount      int32   `json:"charger_count" binding:"required,gt=0"`
	AvailableChargers *int32  `json:"available_chargers"`
}

// CreateStation 登记站点
// @Summary 登记新充电站点
// @Tags 站点
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body createStationRequest true "站点信息"
// @Success 201 {object} map[string]interface{} "成功"
// @Router /api/stations [post]
func (h *StationHandler) CreateStation(c *gin.Context) {
	var req createStationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	st, err := h.ingest.CreateStation(c.Request.Context(), station.CreateStationParams{
		Name:              req.Name,
		Lat:               req.Lat,
		Lng:               req.Lng,
		ChargerType:       req.ChargerType,
		ChargerCount:      req.ChargerCount,
		AvailableChargers: req.AvailableChargers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"station_id": st.ID})
}

// GetStation 查询站点聚合视图
// @Summary 查询站点
// @Description 合成人工状态、实时可用数与信任摘要的站点视图
// @Tags 站点
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "站点ID"
// @Success 200 {object} coremodel.StationView "成功"
// @Router /api/stations/{id} [get]
func (h *StationHandler) GetStation(c *gin.Context) {
	id, ok := stationID(c)
	if !ok {
		return
	}
	view, err := h.agg.View(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetVerificationSummary 查询站点校验摘要
// @Summary 查询校验摘要
// @Tags 站点
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "站点ID"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/stations/{id}/verification-summary [get]
func (h *StationHandler) GetVerificationSummary(c *gin.Context) {
	id, ok := stationID(c)
	if !ok {
		return
	}
	summary, err := h.agg.Summary(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"station_id":         summary.StationID,
		"score":              summary.Score,
		"label":              h.trust.Badge(summary),
		"total_votes":        summary.TotalVotes,
		"leading_vote":       summary.LeadingVote,
		"is_verified":        summary.IsVerified,
		"is_strong_verified": summary.IsStrongVerified,
		"last_verified_at":   summary.LastVerifiedAt,
	})
}

type verifyRequest struct {
	Vote string `json:"vote" binding:"required"`
}

// SubmitVote 提交校验投票
// @Summary 提交校验投票
// @Description 投票类别 working/not_working/busy，历史投票追加保留
// @Tags 站点
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "站点ID"
// @Param body body verifyRequest true "投票"
// @Success 201 {object} map[string]interface{} "成功"
// @Router /api/stations/{id}/verify [post]
func (h *StationHandler) SubmitVote(c *gin.Context) {
	id, ok := stationID(c)
	if !ok {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing identity"})
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	vote, err := h.ingest.SubmitVote(c.Request.Context(), id, userID, coremodel.VoteKind(req.Vote))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"vote_id":    vote.ID,
		"station_id": vote.StationID,
		"vote":       vote.Vote,
		"created_at": vote.CreatedAt,
	})
}

type reportRequest struct {
	Status string  `json:"status" binding:"required"`
	Note   *string `json:"note"`
}

// SubmitReport 提交站点报告
// @Summary 提交站点报告
// @Description 报告直接翻转站点运营状态：working 恢复，not_working 下线
// @Tags 站点
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "站点ID"
// @Param body body reportRequest true "报告"
// @Success 201 {object} map[string]interface{} "成功"
// @Router /api/stations/{id}/report [post]
func (h *StationHandler) SubmitReport(c *gin.Context) {
	id, ok := stationID(c)
	if !ok {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing identity"})
		return
	}
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}

	report, err := h.ingest.SubmitReport(c.Request.Context(), id, userID, coremodel.ReportStatus(req.Status), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"report_id":  report.ID,
		"station_id": report.StationID,
		"status":     report.Status,
		"created_at": report.CreatedAt,
	})
}

type availabilityRequest struct {
	AvailableChargers *int32 `json:"available_chargers" binding:"required"`
}

// SetAvailability 校准站点可用数
// @Summary 校准可用充电桩数
// @Description 取值必须落在 [0, charger_count]
// @Tags 站点
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "站点ID"
// @Param body body availabilityRequest true "可用数"
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/stations/{id}/availability [patch]
func (h *StationHandler) SetAvailability(c *gin.Context) {
	id, ok := stationID(c)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AvailableChargers == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "available_chargers is required"})
		return
	}

	if err := h.ingest.SetAvailability(c.Request.Context(), id, *req.AvailableChargers); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"station_id": id, "available_chargers": *req.AvailableChargers})
}
