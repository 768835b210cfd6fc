package trust

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/voltmap/voltmap-server/internal/coremodel"
)

// BadgeTable 徽标文案映射：校验摘要状态 -> 展示文案。
// 文案可通过 YAML 文件覆盖，缺省使用内置英文文案。
type BadgeTable struct {
	Labels map[string]string `yaml:"labels"`
}

const (
	badgeStrongWorking = "strong_working"
	badgeWorking       = "working"
	badgeBusy          = "busy"
	badgeNotWorking    = "not_working"
	badgeUnverified    = "unverified"
)

// DefaultBadgeTable 返回内置文案
func DefaultBadgeTable() *BadgeTable {
	return &BadgeTable{
		Labels: map[string]string{
			badgeStrongWorking: "Community verified",
			badgeWorking:       "Recently confirmed working",
			badgeBusy:          "Often busy",
			badgeNotWorking:    "Reported not working",
			badgeUnverified:    "Not yet verified",
		},
	}
}

// LoadBadgeTable 从 YAML 文件加载文案映射，缺失的键回退内置文案
func LoadBadgeTable(path string) (*BadgeTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge table: %w", err)
	}
	var t BadgeTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("unmarshal badge table: %w", err)
	}
	defaults := DefaultBadgeTable()
	if t.Labels == nil {
		t.Labels = defaults.Labels
		return &t, nil
	}
	for k, v := range defaults.Labels {
		if _, ok := t.Labels[k]; !ok {
			t.Labels[k] = v
		}
	}
	return &t, nil
}

// Label 返回摘要对应的徽标文案
func (t *BadgeTable) Label(s coremodel.VerificationSummary) string {
	if t == nil || t.Labels == nil {
		return ""
	}
	key := badgeUnverified
	switch {
	case s.IsStrongVerified:
		key = badgeStrongWorking
	case s.IsVerified && s.LeadingVote == coremodel.VoteWorking:
		key = badgeWorking
	case s.IsVerified && s.LeadingVote == coremodel.VoteBusy:
		key = badgeBusy
	case s.IsVerified && s.LeadingVote == coremodel.VoteNotWorking:
		key = badgeNotWorking
	}
	return t.Labels[key]
}
