package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity is a committed field operation record.
type Activity struct {
	ID                    uuid.UUID
	PlotID                uuid.UUID
	Kind                  string
	Date                  time.Time
	CladodesPlanted       *int
	StationsPlanted       *int
	AvgCladodesPerStation *float64
	Workers               *int
	HoursWorked           *float64
	ReportedBy            string
	ReportMethod          string
	Notes                 string
	AIExtracted           bool
	AIConfidence          float64
	SourceMessageID       string
}

// InsertActivity writes one activity keyed by its source message. The unique
// constraint on source_message_id makes the insert safe under concurrent
// duplicate delivery: a second insert is ignored and the existing id is
// returned with created=false.
func (s *Store) InsertActivity(ctx context.Context, a Activity) (uuid.UUID, bool, error) {
	id := uuid.New()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO activities (
			id, plot_id, activity_type, activity_date,
			cladodes_planted, stations_planted, avg_cladodes_per_station,
			workers_count, hours_worked,
			reported_by, report_method, notes,
			ai_extracted, ai_confidence, source_message_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (source_message_id) DO NOTHING`,
		id, a.PlotID, a.Kind, a.Date,
		a.CladodesPlanted, a.StationsPlanted, a.AvgCladodesPerStation,
		a.Workers, a.HoursWorked,
		a.ReportedBy, a.ReportMethod, a.Notes,
		a.AIExtracted, a.AIConfidence, a.SourceMessageID,
	)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var existing uuid.UUID
		if err := s.pool.QueryRow(ctx,
			`SELECT id FROM activities WHERE source_message_id = $1`, a.SourceMessageID,
		).Scan(&existing); err != nil {
			return uuid.Nil, false, fmt.Errorf("lookup existing activity: %w", err)
		}
		return existing, false, nil
	}
	return id, true, nil
}

// ActivitiesInRange fetches activity rows for the metrics engine, ordered by
// date, optionally filtered to one plot.
func (s *Store) ActivitiesInRange(ctx context.Context, start, end time.Time, plotID *uuid.UUID) ([]Activity, error) {
	query := `
		SELECT id, plot_id, activity_type, activity_date,
		       cladodes_planted, stations_planted, avg_cladodes_per_station,
		       workers_count, hours_worked
		FROM activities
		WHERE activity_date >= $1 AND activity_date <= $2`
	args := []any{start, end}
	if plotID != nil {
		query += ` AND plot_id = $3`
		args = append(args, *plotID)
	}
	query += ` ORDER BY activity_date`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(
			&a.ID, &a.PlotID, &a.Kind, &a.Date,
			&a.CladodesPlanted, &a.StationsPlanted, &a.AvgCladodesPerStation,
			&a.Workers, &a.HoursWorked,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}
