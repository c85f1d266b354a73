package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert lifecycle states. Transitions are forward-only:
// active → acknowledged → resolved.
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
)

// Alert is an operator-facing notification. Issue-triggered alerts carry a
// related plot and activity and no rule key; metric-triggered alerts carry a
// stable rule key.
type Alert struct {
	ID             uuid.UUID
	RuleKey        string
	Type           string
	Severity       string
	Title          string
	Description    string
	Recommendation string
	PlotID         *uuid.UUID
	ActivityID     *uuid.UUID
	Status         string
	CreatedAt      time.Time
}

// InsertIssueAlert creates an issue-triggered alert, deduplicated by
// (type, plot, activity) via the partial unique index on those columns. A
// second observation of the same type on the same activity is a no-op.
func (s *Store) InsertIssueAlert(ctx context.Context, a Alert) (uuid.UUID, bool, error) {
	id := uuid.New()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			id, alert_type, severity, title, description, recommendation,
			related_plot_id, related_activity_id, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, now())
		ON CONFLICT (alert_type, related_plot_id, related_activity_id)
			WHERE related_activity_id IS NOT NULL
		DO NOTHING`,
		id, a.Type, a.Severity, a.Title, a.Description, a.Recommendation,
		a.PlotID, a.ActivityID, AlertActive,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert issue alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// UpsertMetricAlert creates or refreshes the alert for a rule key. A partial
// unique index on rule_key over non-resolved rows keeps at most one live
// alert per rule. Only active alerts are refreshed in place; acknowledged
// alerts are left untouched, and a resolved alert allows a fresh row on the
// next breach.
func (s *Store) UpsertMetricAlert(ctx context.Context, a Alert) error {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			id, rule_key, alert_type, severity, title, description,
			recommendation, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, now())
		ON CONFLICT (rule_key) WHERE status <> 'resolved'
		DO UPDATE SET
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			recommendation = EXCLUDED.recommendation,
			updated_at = now()
		WHERE alerts.status = 'active'`,
		id, a.RuleKey, a.Type, a.Severity, a.Title, a.Description,
		a.Recommendation, a.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert metric alert %s: %w", a.RuleKey, err)
	}
	return nil
}

// AcknowledgeAlert moves an active alert forward. ok is false when the alert
// does not exist or has already moved past active.
func (s *Store) AcknowledgeAlert(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET status = $1, acknowledged_at = now()
		WHERE id = $2 AND status = $3`,
		AlertAcknowledged, id, AlertActive,
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResolveAlert closes an alert from either live state. ok is false when the
// alert does not exist or is already resolved.
func (s *Store) ResolveAlert(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET status = $1, resolved_at = now()
		WHERE id = $2 AND status IN ($3, $4)`,
		AlertResolved, id, AlertActive, AlertAcknowledged,
	)
	if err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListAlerts returns alerts newest first, optionally filtered by status.
func (s *Store) ListAlerts(ctx context.Context, status string) ([]Alert, error) {
	query := `
		SELECT id, COALESCE(rule_key, ''), alert_type, severity, title,
		       description, COALESCE(recommendation, ''),
		       related_plot_id, related_activity_id, status, created_at
		FROM alerts`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(
			&a.ID, &a.RuleKey, &a.Type, &a.Severity, &a.Title,
			&a.Description, &a.Recommendation,
			&a.PlotID, &a.ActivityID, &a.Status, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}
