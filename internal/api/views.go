package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/store"
)

// alertView is the wire shape of one alert.
type alertView struct {
	ID             uuid.UUID  `json:"id"`
	RuleKey        string     `json:"rule_key,omitempty"`
	Type           string     `json:"alert_type"`
	Severity       string     `json:"severity"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Recommendation string     `json:"recommendation,omitempty"`
	PlotID         *uuid.UUID `json:"related_plot_id,omitempty"`
	ActivityID     *uuid.UUID `json:"related_activity_id,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toAlertViews(list []store.Alert) []alertView {
	out := make([]alertView, 0, len(list))
	for _, a := range list {
		out = append(out, alertView{
			ID:             a.ID,
			RuleKey:        a.RuleKey,
			Type:           a.Type,
			Severity:       a.Severity,
			Title:          a.Title,
			Description:    a.Description,
			Recommendation: a.Recommendation,
			PlotID:         a.PlotID,
			ActivityID:     a.ActivityID,
			Status:         a.Status,
			CreatedAt:      a.CreatedAt,
		})
	}
	return out
}
