package events

import (
	"fmt"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventSessionStarted 充电会话开始事件
	EventSessionStarted EventType = "session.started"

	// EventSessionEnded 充电会话结束事件
	EventSessionEnded EventType = "session.ended"

	// EventStationReported 站点报告事件（报告会直接翻转站点状态）
	EventStationReported EventType = "station.reported"

	// EventStationVerified 站点校验投票事件
	EventStationVerified EventType = "station.verified"
)

// StandardEvent 标准事件结构
type StandardEvent struct {
	// 基础字段
	EventID   string    `json:"event_id"`   // 事件唯一ID（用于去重）
	EventType EventType `json:"event_type"` // 事件类型
	StationID int64     `json:"station_id"` // 站点ID
	Timestamp int64     `json:"timestamp"`  // 事件时间戳（Unix秒）
	Nonce     string    `json:"nonce"`      // 随机数（用于签名）

	// 业务数据
	Data map[string]interface{} `json:"data"` // 具体事件数据
}

// NewEvent 创建标准事件
func NewEvent(eventType EventType, stationID int64, data map[string]interface{}) *StandardEvent {
	now := time.Now()
	return &StandardEvent{
		EventID:   fmt.Sprintf("%s-%d-%d", eventType, stationID, now.UnixNano()),
		EventType: eventType,
		StationID: stationID,
		Timestamp: now.Unix(),
		Nonce:     fmt.Sprintf("%08x", uint32(now.UnixNano())),
		Data:      data,
	}
}

// SessionStartedData 充电会话开始事件数据
type SessionStartedData struct {
	SessionID     string `json:"session_id"`
	UserID        int64  `json:"user_id"`
	StationID     int64  `json:"station_id"`
	IsAutoTracked bool   `json:"is_auto_tracked"`
	StartedAt     int64  `json:"started_at"`
}

// SessionEndedData 充电会话结束事件数据
type SessionEndedData struct {
	SessionID       string   `json:"session_id"`
	UserID          int64    `json:"user_id"`
	StationID       int64    `json:"station_id"`
	DurationMinutes int32    `json:"duration_minutes"`
	EnergyKwh       *float64 `json:"energy_kwh,omitempty"`
	EndedAt         int64    `json:"ended_at"`
}

// StationReportedData 站点报告事件数据
type StationReportedData struct {
	ReporterID int64  `json:"reporter_id"`
	Status     string `json:"status"`
	NewState   string `json:"new_state"` // 报告触发后的站点运营状态
	ReportedAt int64  `json:"reported_at"`
}

// StationVerifiedData 站点校验投票事件数据
type StationVerifiedData struct {
	VoterID int64  `json:"voter_id"`
	Vote    string `json:"vote"`
	VotedAt int64  `json:"voted_at"`
}

// ToMap 将事件数据转换为map（用于创建StandardEvent）
func (d *SessionStartedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"session_id":      d.SessionID,
		"user_id":         d.UserID,
		"station_id":      d.StationID,
		"is_auto_tracked": d.IsAutoTracked,
		"started_at":      d.StartedAt,
	}
}

func (d *SessionEndedData) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"session_id":       d.SessionID,
		"user_id":          d.UserID,
		"station_id":       d.StationID,
		"duration_minutes": d.DurationMinutes,
		"ended_at":         d.EndedAt,
	}
	if d.EnergyKwh != nil {
		m["energy_kwh"] = *d.EnergyKwh
	}
	return m
}

func (d *StationReportedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"reporter_id": d.ReporterID,
		"status":      d.Status,
		"new_state":   d.NewState,
		"reported_at": d.ReportedAt,
	}
}

func (d *StationVerifiedData) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"voter_id": d.VoterID,
		"vote":     d.Vote,
		"voted_at": d.VotedAt,
	}
}
