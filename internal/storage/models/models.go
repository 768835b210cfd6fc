package models

import (
	"time"
)

// 注意：
// - 与 db/migrations/0001_init_up.sql 保持对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt
// - 可空列使用指针类型

// Station 映射 stations 表
type Station struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 展示名称
	Name string `gorm:"column:name;type:text;not null"`
	// 地理坐标
	Lat float64 `gorm:"column:lat;not null"`
	Lng float64 `gorm:"column:lng;not null"`
	// 充电桩类型（type2/ccs/chademo/...）
	ChargerType string `gorm:"column:charger_type;type:text;not null"`
	// 桩数与可用数，约束 0 <= available_chargers <= charger_count
	ChargerCount      int32 `gorm:"column:charger_count;not null"`
	AvailableChargers int32 `gorm:"column:available_chargers;not null"`
	// 人工/报告驱动的运营状态
	Status string `gorm:"column:status;type:text;not null;default:operational"`
	// 长周期信号推导的信任等级
	TrustLevel string `gorm:"column:trust_level;type:text;not null;default:normal"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Station) TableName() string { return "stations" }

// User 映射 users 表。认证由外部网关负责，这里只保存其主体标识。
type User struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalID  string    `gorm:"column:external_id;type:text;not null;uniqueIndex"`
	DisplayName *string   `gorm:"column:display_name;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// VerificationVote 映射 verification_votes 表（追加写日志，不做更新）。
// 同一投票人的历史投票全部保留，聚合时按最近一票去重。
type VerificationVote struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StationID int64     `gorm:"column:station_id;not null;index:idx_votes_station_time,priority:1"`
	VoterID   int64     `gorm:"column:voter_id;not null"`
	Vote      string    `gorm:"column:vote;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_votes_station_time,priority:2,sort:desc"`
}

func (VerificationVote) TableName() string { return "verification_votes" }

// Report 映射 reports 表（追加写日志）。
// 报告不只是参考意见：入库同时直接翻转站点运营状态。
type Report struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	StationID  int64     `gorm:"column:station_id;not null;index:idx_reports_station_time,priority:1"`
	ReporterID int64     `gorm:"column:reporter_id;not null"`
	Status     string    `gorm:"column:status;type:text;not null"`
	Note       *string   `gorm:"column:note;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index:idx_reports_station_time,priority:2,sort:desc"`
}

func (Report) TableName() string { return "reports" }

// ChargingSession 映射 charging_sessions 表。
// 单用户活跃会话唯一性由部分唯一索引 (user_id) WHERE state='active' 兜底，
// 该索引无法用 gorm tag 表达，见 app/db.go 中的 DDL。
type ChargingSession struct {
	ID        string `gorm:"column:id;type:text;primaryKey"`
	UserID    int64  `gorm:"column:user_id;not null;index"`
	StationID int64  `gorm:"column:station_id;not null;index"`
	State     string `gorm:"column:state;type:text;not null;default:active"`
	StartTime time.Time  `gorm:"column:start_time;not null"`
	EndTime   *time.Time `gorm:"column:end_time"`
	// 电量与时长，结束时一次性写入
	BatteryStartPercent *int32   `gorm:"column:battery_start_percent"`
	BatteryEndPercent   *int32   `gorm:"column:battery_end_percent"`
	EnergyKwh           *float64 `gorm:"column:energy_kwh"`
	DurationMinutes     *int32   `gorm:"column:duration_minutes"`
	// 自动检测创建的会话走同一状态机
	IsAutoTracked bool `gorm:"column:is_auto_tracked;not null;default:false"`
	// 自动跟踪时的原始遥测，仅保存数值，展示层分档不落库
	GridVoltage *int32   `gorm:"column:grid_voltage"`
	MaxPowerKw  *float64 `gorm:"column:max_power_kw"`
	MaxTempC    *float64 `gorm:"column:max_temp_c"`
	// 手动会话结束时的可选凭证照片
	ScreenshotPath *string `gorm:"column:screenshot_path;type:text"`
	// 车辆引用（外部车辆档案 ID 或自定义名称）
	VehicleRef *string   `gorm:"column:vehicle_ref;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChargingSession) TableName() string { return "charging_sessions" }

// SessionClose 结束会话时一次性写入的字段集合
type SessionClose struct {
	EndTime           time.Time
	DurationMinutes   int32
	BatteryEndPercent *int32
	EnergyKwh         *float64
	ScreenshotPath    *string
}
