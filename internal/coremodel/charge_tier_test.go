package coremodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedTierFor(t *testing.T) {
	cases := []struct {
		powerKw float64
		want    SpeedTier
	}{
		{3.7, SpeedSlow},
		{7, SpeedSlow},
		{7.1, SpeedNormal},
		{22, SpeedNormal},
		{22.5, SpeedFast},
		{50, SpeedFast},
		{50.1, SpeedUltraFast},
		{150, SpeedUltraFast},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SpeedTierFor(c.powerKw), "power=%v", c.powerKw)
	}
}

func TestSafetyTierFor(t *testing.T) {
	assert.Equal(t, SafetySafe, SafetyTierFor(44.9))
	assert.Equal(t, SafetyWarm, SafetyTierFor(45))
	assert.Equal(t, SafetyWarm, SafetyTierFor(54.9))
	assert.Equal(t, SafetyHot, SafetyTierFor(55))
	assert.Equal(t, SafetyHot, SafetyTierFor(80))
}

func TestStatusEnums(t *testing.T) {
	assert.True(t, StationStatusOffline.Valid())
	assert.False(t, StationStatus("broken").Valid())
	assert.True(t, VoteBusy.Valid())
	assert.False(t, VoteKind("maybe").Valid())
	assert.True(t, ReportNotWorking.Valid())
	assert.False(t, ReportStatus("busy").Valid())
}
