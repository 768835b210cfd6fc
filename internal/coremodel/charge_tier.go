package coremodel

// SpeedTier 充电速度档位（展示层分类，不落库）
type SpeedTier string

const (
	SpeedSlow      SpeedTier = "slow"
	SpeedNormal    SpeedTier = "normal"
	SpeedFast      SpeedTier = "fast"
	SpeedUltraFast SpeedTier = "ultra_fast"
)

// SafetyTier 温度安全档位（展示层分类，不落库）
type SafetyTier string

const (
	SafetySafe SafetyTier = "safe"
	SafetyWarm SafetyTier = "warm"
	SafetyHot  SafetyTier = "hot"
)

// 档位阈值。纯阈值判定、无滞回，边界附近的抖动是接受的取舍。
const (
	speedSlowMaxKw   = 7.0
	speedNormalMaxKw = 22.0
	speedFastMaxKw   = 50.0

	safetySafeMaxC = 45.0
	safetyWarmMaxC = 55.0
)

// SpeedTierFor 按最大功率（kW）归档充电速度
func SpeedTierFor(maxPowerKw float64) SpeedTier {
	switch {
	case maxPowerKw <= speedSlowMaxKw:
		return SpeedSlow
	case maxPowerKw <= speedNormalMaxKw:
		return SpeedNormal
	case maxPowerKw <= speedFastMaxKw:
		return SpeedFast
	default:
		return SpeedUltraFast
	}
}

// SafetyTierFor 按最高温度（℃）归档安全等级
func SafetyTierFor(maxTempC float64) SafetyTier {
	switch {
	case maxTempC < safetySafeMaxC:
		return SafetySafe
	case maxTempC < safetyWarmMaxC:
		return SafetyWarm
	default:
		return SafetyHot
	}
}
