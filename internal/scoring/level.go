// Package scoring converts detection results into a 0-100 risk score with a
// per-category breakdown.
package scoring

import (
	"fmt"
	"strings"
)

// RiskLevel is a coarse bucket derived from the final score.
type RiskLevel string

const (
	Low      RiskLevel = "LOW"
	Medium   RiskLevel = "MEDIUM"
	High     RiskLevel = "HIGH"
	Critical RiskLevel = "CRITICAL"
)

// Thresholds holds the inclusive upper bound of each level below CRITICAL.
// Scores above HighMax are CRITICAL.
type Thresholds struct {
	LowMax    int `yaml:"low_max" json:"low_max"`
	MediumMax int `yaml:"medium_max" json:"medium_max"`
	HighMax   int `yaml:"high_max" json:"high_max"`
}

// DefaultThresholds returns the 30/60/80 bands.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: 30, MediumMax: 60, HighMax: 80}
}

// Validate checks that the bounds are strictly increasing inside [0,100).
func (t Thresholds) Validate() error {
	if t.LowMax < 0 || t.LowMax >= t.MediumMax || t.MediumMax >= t.HighMax || t.HighMax >= 100 {
		return fmt.Errorf("scoring: thresholds must satisfy 0 <= low < medium < high < 100, got %d/%d/%d",
			t.LowMax, t.MediumMax, t.HighMax)
	}
	return nil
}

// Level maps a final score onto a risk level.
func (t Thresholds) Level(score int) RiskLevel {
	switch {
	case score <= t.LowMax:
		return Low
	case score <= t.MediumMax:
		return Medium
	case score <= t.HighMax:
		return High
	default:
		return Critical
	}
}

// Severity orders levels from 0 (LOW) to 3 (CRITICAL). Unknown levels
// return -1.
func (l RiskLevel) Severity() int {
	switch l {
	case Low:
		return 0
	case Medium:
		return 1
	case High:
		return 2
	case Critical:
		return 3
	default:
		return -1
	}
}

// ParseRiskLevel accepts a level name in any case.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	l := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if l.Severity() < 0 {
		return "", false
	}
	return l, true
}
