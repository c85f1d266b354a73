package alerts

import (
	"fmt"

	"github.com/terraferm/fieldops/internal/config"
	"github.com/terraferm/fieldops/internal/metrics"
	"github.com/terraferm/fieldops/internal/store"
)

// Stable rule identifiers. Re-evaluation upserts on these keys, so repeated
// runs refresh the live alert instead of duplicating it.
const (
	RulePlantingRate = "planting_rate"
	RuleAreaProgress = "area_progress"
	RuleStackHeight  = "stack_height"
)

// RuleAlert is a metric-triggered alert produced by one rule evaluation.
type RuleAlert struct {
	RuleKey        string `json:"rule_key"`
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Status         string `json:"status"`
}

// EvaluateRules runs the metric rules against a farm summary. Each rule
// evaluates independently against its fixed target; rules with a zero target
// are skipped.
func EvaluateRules(m metrics.FarmSummary, t config.Targets) []RuleAlert {
	var out []RuleAlert

	if t.DailyPlantingRate > 0 {
		ratio := m.AvgDailyRate / t.DailyPlantingRate
		if ratio < 1.0 {
			severity := "medium"
			recommendation := "Consider adding workers"
			switch {
			case ratio < 0.5:
				severity = "critical"
				recommendation = "Urgent: add workers or extend hours"
			case ratio < 0.7:
				severity = "high"
			default:
				severity = "medium"
			}
			out = append(out, RuleAlert{
				RuleKey:  RulePlantingRate,
				Type:     "performance",
				Severity: severity,
				Title:    "Planting Rate Below Target",
				Description: fmt.Sprintf("Current rate: %.0f/day (%.0f%% of %.0f/day target)",
					m.AvgDailyRate, ratio*100, t.DailyPlantingRate),
				Recommendation: recommendation,
				Status:         store.AlertActive,
			})
		}
	}

	if t.AreaHa > 0 {
		ratio := m.AreaPlantedHa / t.AreaHa
		if ratio < 0.5 {
			severity := "medium"
			if ratio < 0.25 {
				severity = "high"
			}
			out = append(out, RuleAlert{
				RuleKey:  RuleAreaProgress,
				Type:     "progress",
				Severity: severity,
				Title:    "Area Planted Behind Schedule",
				Description: fmt.Sprintf("%.2f ha planted (%.0f%% of %.1f ha target)",
					m.AreaPlantedHa, ratio*100, t.AreaHa),
				Recommendation: "Focus resources on expanding planted area",
				Status:         store.AlertActive,
			})
		}
	}

	if t.StackHeight > 0 && m.AvgStackHeight >= t.StackHeight {
		// Achievement alerts are informational and start acknowledged.
		out = append(out, RuleAlert{
			RuleKey:  RuleStackHeight,
			Type:     "achievement",
			Severity: "low",
			Title:    "Stack Height Target Achieved",
			Description: fmt.Sprintf("Average %.1f cladodes per station (target %.1f)",
				m.AvgStackHeight, t.StackHeight),
			Recommendation: "Continue current multi-cladode stacking practice",
			Status:         store.AlertAcknowledged,
		})
	}

	return out
}
