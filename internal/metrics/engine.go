package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/config"
	"github.com/terraferm/fieldops/internal/store"
)

// Fetcher supplies the activity rows a snapshot is derived from.
type Fetcher interface {
	ActivitiesInRange(ctx context.Context, start, end time.Time, plotID *uuid.UUID) ([]store.Activity, error)
}

// Engine fetches activity rows and computes snapshots on demand.
type Engine struct {
	fetcher Fetcher
	targets config.Targets
	logger  *slog.Logger
}

func NewEngine(fetcher Fetcher, targets config.Targets, logger *slog.Logger) *Engine {
	return &Engine{fetcher: fetcher, targets: targets, logger: logger}
}

// Snapshot computes metrics for the date range, optionally filtered by plot.
func (e *Engine) Snapshot(ctx context.Context, start, end time.Time, plotID *uuid.UUID) (*Snapshot, error) {
	activities, err := e.fetcher.ActivitiesInRange(ctx, start, end, plotID)
	if err != nil {
		return nil, fmt.Errorf("fetch activities: %w", err)
	}

	snap := Compute(activities, start, end, e.targets)

	e.logger.Debug("metrics computed",
		"start", snap.Period.Start,
		"end", snap.Period.End,
		"days", snap.Period.Days,
		"total_planted", snap.Totals.CladodesPlanted,
	)
	return &snap, nil
}
