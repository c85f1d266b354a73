package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Observation statuses.
const (
	ObservationOpen     = "open"
	ObservationResolved = "resolved"
)

// FieldObservation is a detected issue tied to an activity and its plot.
type FieldObservation struct {
	ID             uuid.UUID
	ActivityID     uuid.UUID
	PlotID         uuid.UUID
	Date           time.Time
	Type           string
	Severity       string
	Description    string
	ActionRequired string
	AIDetected     bool
	Status         string
}

func (s *Store) InsertObservation(ctx context.Context, o FieldObservation) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO field_observations (
			id, activity_id, plot_id, observation_date,
			observation_type, severity, description, action_required,
			ai_detected, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, now())`,
		id, o.ActivityID, o.PlotID, o.Date,
		o.Type, o.Severity, o.Description, o.ActionRequired,
		o.AIDetected, ObservationOpen,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert observation: %w", err)
	}
	return id, nil
}
