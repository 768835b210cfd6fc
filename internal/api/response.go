package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voltmap/voltmap-server/internal/coremodel"
	"github.com/voltmap/voltmap-server/internal/lifecycle"
	"github.com/voltmap/voltmap-server/internal/station"
	"github.com/voltmap/voltmap-server/internal/storage"
	"github.com/voltmap/voltmap-server/internal/storage/models"
)

// writeError 把业务错误映射到 HTTP 状态码。
// 分类：校验错误 400，未找到 404，属主不符 403，业务冲突 409，其余 500。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, station.ErrInvalidVote),
		errors.Is(err, station.ErrInvalidReportStatus),
		errors.Is(err, station.ErrInvalidStation),
		errors.Is(err, station.ErrAvailabilityOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation", "message": err.Error()})

	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, lifecycle.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})

	case errors.Is(err, lifecycle.ErrNotSessionOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})

	case errors.Is(err, lifecycle.ErrSessionConflict),
		errors.Is(err, lifecycle.ErrNoChargerAvailable),
		errors.Is(err, lifecycle.ErrSessionNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal error"})
	}
}

// sessionResponse 会话响应体。速度/安全档位是展示层分类，
// 只从原始遥测推导，不落库。
type sessionResponse struct {
	ID                  string                `json:"id"`
	UserID              int64                 `json:"user_id"`
	StationID           int64                 `json:"station_id"`
	State               string                `json:"state"`
	StartTime           string                `json:"start_time"`
	EndTime             *string               `json:"end_time,omitempty"`
	BatteryStartPercent *int32                `json:"battery_start_percent,omitempty"`
	BatteryEndPercent   *int32                `json:"battery_end_percent,omitempty"`
	EnergyKwh           *float64              `json:"energy_kwh,omitempty"`
	DurationMinutes     *int32                `json:"duration_minutes,omitempty"`
	IsAutoTracked       bool                  `json:"is_auto_tracked"`
	GridVoltage         *int32                `json:"grid_voltage,omitempty"`
	MaxPowerKw          *float64              `json:"max_power_kw,omitempty"`
	MaxTempC            *float64              `json:"max_temp_c,omitempty"`
	SpeedTier           *coremodel.SpeedTier  `json:"speed_tier,omitempty"`
	SafetyTier          *coremodel.SafetyTier `json:"safety_tier,omitempty"`
	ScreenshotPath      *string               `json:"screenshot_path,omitempty"`
	VehicleRef          *string               `json:"vehicle_ref,omitempty"`
}

func toSessionResponse(s *models.ChargingSession) sessionResponse {
	resp := sessionResponse{
		ID:                  s.ID,
		UserID:              s.UserID,
		StationID:           s.StationID,
		State:               s.State,
		StartTime:           s.StartTime.UTC().Format(timeLayout),
		BatteryStartPercent: s.BatteryStartPercent,
		BatteryEndPercent:   s.BatteryEndPercent,
		EnergyKwh:           s.EnergyKwh,
		DurationMinutes:     s.DurationMinutes,
		IsAutoTracked:       s.IsAutoTracked,
		GridVoltage:         s.GridVoltage,
		MaxPowerKw:          s.MaxPowerKw,
		MaxTempC:            s.MaxTempC,
		ScreenshotPath:      s.ScreenshotPath,
		VehicleRef:          s.VehicleRef,
	}
	if s.EndTime != nil {
		t := s.EndTime.UTC().Format(timeLayout)
		resp.EndTime = &t
	}
	if s.MaxPowerKw != nil {
		tier := coremodel.SpeedTierFor(*s.MaxPowerKw)
		resp.SpeedTier = &tier
	}
	if s.MaxTempC != nil {
		tier := coremodel.SafetyTierFor(*s.MaxTempC)
		resp.SafetyTier = &tier
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
