package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voltmap/voltmap-server/internal/api/middleware"
	"github.com/voltmap/voltmap-server/internal/lifecycle"
	"github.com/voltmap/voltmap-server/internal/station"
)

// SessionHandler 充电会话API处理器
type SessionHandler struct {
	mgr    *lifecycle.Manager
	agg    *station.Aggregator
	logger *zap.Logger
}

// NewSessionHandler 创建会话API处理器
func NewSessionHandler(mgr *lifecycle.Manager, agg *station.Aggregator, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{mgr: mgr, agg: agg, logger: logger}
}

type startSessionRequest struct {
	StationID           int64    `json:"station_id" binding:"required,gt=0"`
	UserVehicleID       *int64   `json:"user_vehicle_id"`
	CustomVehicleName   *string  `json:"custom_vehicle_name"`
	BatteryStartPercent *int32   `json:"battery_start_percent"`
	IsAutoTracked       bool     `json:"is_auto_tracked"`
	GridVoltage         *int32   `json:"grid_voltage"`
	MaxPowerKw          *float64 `json:"max_power_kw"`
	MaxTempC            *float64 `json:"max_temp_c"`
}

// vehicleRef 把外部车辆档案ID或自定义名称折叠为单一引用
func (r *startSessionRequest) vehicleRef() *string {
	if r.UserVehicleID != nil {
		ref := fmt.Sprintf("vehicle:%d", *r.UserVehicleID)
		return &ref
	}
	return r.CustomVehicleName
}

// StartSession 开始充电会话
// @Summary 开始充电会话
// @Description 单用户同时至多一个活跃会话；站点需有可用充电桩
// @Tags 充电会话
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body startSessionRequest true "会话参数"
// @Success 201 {object} sessionResponse "成功"
// @Failure 409 {object} map[string]interface{} "已有活跃会话或无可用桩"
// @Router /api/charging-sessions/start [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing identity"})
		return
	}
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	if req.BatteryStartPercent != nil && (*req.BatteryStartPercent < 0 || *req.BatteryStartPercent > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "battery_start_percent must be 0..100"})
		return
	}

	session, err := h.mgr.StartSession(c.Request.Context(), lifecycle.StartParams{
		UserID:              userID,
		StationID:           req.StationID,
		VehicleRef:          req.vehicleRef(),
		BatteryStartPercent: req.BatteryStartPercent,
		IsAutoTracked:       req.IsAutoTracked,
		GridVoltage:         req.GridVoltage,
		MaxPowerKw:          req.MaxPowerKw,
		MaxTempC:            req.MaxTempC,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

type endSessionRequest struct {
	BatteryEndPercent *int32   `json:"battery_end_percent"`
	EnergyKwh         *float64 `json:"energy_kwh"`
	ScreenshotPath    *string  `json:"screenshot_path"`
}

// EndSession 结束充电会话
// @Summary 结束充电会话
// @Description 会话必须属于调用方且处于活跃状态；重复结束返回 409
// @Tags 充电会话
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param body body endSessionRequest true "结束参数"
// @Success 200 {object} sessionResponse "成功"
// @Failure 409 {object} map[string]interface{} "会话已结束"
// @Router /api/charging-sessions/{id}/end [post]
func (h *SessionHandler) EndSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing identity"})
		return
	}
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "missing session id"})
		return
	}
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})
		return
	}
	if req.BatteryEndPercent != nil && (*req.BatteryEndPercent < 0 || *req.BatteryEndPercent > 100) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "battery_end_percent must be 0..100"})
		return
	}
	if req.EnergyKwh != nil && *req.EnergyKwh < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": "energy_kwh must be non-negative"})
		return
	}

	session, err := h.mgr.EndSession(c.Request.Context(), lifecycle.EndParams{
		SessionID:         sessionID,
		UserID:            userID,
		BatteryEndPercent: req.BatteryEndPercent,
		EnergyKwh:         req.EnergyKwh,
		ScreenshotPath:    req.ScreenshotPath,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// GetMyActiveSession 查询当前用户的活跃会话，附带所在站点的聚合视图
// @Summary 查询我的活跃会话
// @Description 无活跃会话时返回 204
// @Tags 充电会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "会话与站点视图"
// @Success 204 "无活跃会话"
// @Router /api/charging-sessions/my-active [get]
func (h *SessionHandler) GetMyActiveSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "missing identity"})
		return
	}

	session, err := h.mgr.GetActiveSession(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrSessionNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		writeError(c, err)
		return
	}

	resp := gin.H{"session": toSessionResponse(session)}
	if view, err := h.agg.View(c.Request.Context(), session.StationID); err == nil {
		resp["station"] = view
	} else {
		h.logger.Warn("station view for active session unavailable",
			zap.Int64("station_id", session.StationID),
			zap.Error(err))
	}
	c.JSON(http.StatusOK, resp)
}
