package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/config"
	"github.com/terraferm/fieldops/internal/metrics"
	"github.com/terraferm/fieldops/internal/store"
)

// evaluationWindowDays is the lookback for metric rule evaluation.
const evaluationWindowDays = 30

// Snapshotter supplies the metrics a rule evaluation runs against.
type Snapshotter interface {
	Snapshot(ctx context.Context, start, end time.Time, plotID *uuid.UUID) (*metrics.Snapshot, error)
}

// Sink persists metric-triggered alerts.
type Sink interface {
	UpsertMetricAlert(ctx context.Context, a store.Alert) error
}

// Engine evaluates the metric rules and persists the resulting alerts.
// Evaluation is idempotent per rule key and safe to run concurrently with
// message materialization: the two write paths target disjoint keys.
type Engine struct {
	metrics Snapshotter
	sink    Sink
	targets config.Targets
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(m Snapshotter, sink Sink, targets config.Targets, logger *slog.Logger) *Engine {
	return &Engine{
		metrics: m,
		sink:    sink,
		targets: targets,
		logger:  logger,
		now:     time.Now,
	}
}

// Evaluate runs all metric rules over the evaluation window and upserts the
// raised alerts.
func (e *Engine) Evaluate(ctx context.Context) ([]RuleAlert, error) {
	end := e.now().UTC()
	start := end.AddDate(0, 0, -evaluationWindowDays)

	snap, err := e.metrics.Snapshot(ctx, start, end, nil)
	if err != nil {
		return nil, fmt.Errorf("metrics snapshot: %w", err)
	}

	raised := EvaluateRules(snap.Farm, e.targets)
	for _, ra := range raised {
		alert := store.Alert{
			RuleKey:        ra.RuleKey,
			Type:           ra.Type,
			Severity:       ra.Severity,
			Title:          ra.Title,
			Description:    ra.Description,
			Recommendation: ra.Recommendation,
			Status:         ra.Status,
		}
		if err := e.sink.UpsertMetricAlert(ctx, alert); err != nil {
			return nil, fmt.Errorf("persist alert %s: %w", ra.RuleKey, err)
		}
	}

	e.logger.Info("metric rules evaluated",
		"window_days", evaluationWindowDays,
		"raised", len(raised),
	)
	return raised, nil
}
