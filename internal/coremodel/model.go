package coremodel

import "time"

// StationID 站点标识类型
type StationID int64

// UserID 用户标识类型
type UserID int64

// SessionID 充电会话ID（UUID 字符串）
type SessionID string

// StationStatus 站点运营状态（人工/报告驱动）
type StationStatus string

const (
	StationStatusOperational StationStatus = "operational"
	StationStatusMaintenance StationStatus = "maintenance"
	StationStatusOffline     StationStatus = "offline"
)

// Valid 校验状态枚举取值
func (s StationStatus) Valid() bool {
	switch s {
	case StationStatusOperational, StationStatusMaintenance, StationStatusOffline:
		return true
	}
	return false
}

// TrustLevel 站点信任等级（长周期信号推导）
type TrustLevel string

const (
	TrustLevelLow     TrustLevel = "low"
	TrustLevelNormal  TrustLevel = "normal"
	TrustLevelTrusted TrustLevel = "trusted"
)

// VoteKind 校验投票类别
type VoteKind string

const (
	VoteWorking    VoteKind = "working"
	VoteNotWorking VoteKind = "not_working"
	VoteBusy       VoteKind = "busy"
)

// Valid 校验投票枚举取值
func (v VoteKind) Valid() bool {
	switch v {
	case VoteWorking, VoteNotWorking, VoteBusy:
		return true
	}
	return false
}

// ReportStatus 报告类别（直接驱动站点状态变更）
type ReportStatus string

const (
	ReportWorking    ReportStatus = "working"
	ReportNotWorking ReportStatus = "not_working"
)

// Valid 校验报告枚举取值
func (r ReportStatus) Valid() bool {
	return r == ReportWorking || r == ReportNotWorking
}

// SessionState 充电会话状态。会话一旦结束不可重开。
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// VerificationSummary 信任引擎对单个站点的聚合输出。
// 纯计算结果，安全地在每次读取时重算。
type VerificationSummary struct {
	StationID  StationID `json:"station_id"`
	TotalVotes int       `json:"total_votes"`
	// Score 窗口内去重后 WORKING 票占比，0..1，无票时为 0
	Score            float64    `json:"score"`
	LeadingVote      VoteKind   `json:"leading_vote,omitempty"`
	IsVerified       bool       `json:"is_verified"`
	IsStrongVerified bool       `json:"is_strong_verified"`
	LastVerifiedAt   *time.Time `json:"last_verified_at,omitempty"`
}

// StationView 聚合器对外暴露的站点视图。
// 人工 OFFLINE 状态优先于群体乐观投票。
type StationView struct {
	StationID         StationID           `json:"station_id"`
	Name              string              `json:"name"`
	Lat               float64             `json:"lat"`
	Lng               float64             `json:"lng"`
	ChargerType       string              `json:"charger_type"`
	ChargerCount      int32               `json:"charger_count"`
	AvailableChargers int32               `json:"available_chargers"`
	Status            StationStatus       `json:"status"`
	TrustLevel        TrustLevel          `json:"trust_level"`
	Badge             string              `json:"badge,omitempty"`
	Verification      VerificationSummary `json:"verification"`
}
