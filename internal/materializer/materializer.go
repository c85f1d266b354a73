// Package materializer turns extraction output into committed domain
// records: activities, field observations, and issue-triggered alerts.
package materializer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/extractor"
	"github.com/terraferm/fieldops/internal/store"
)

// Store is the slice of the data store the materializer writes through.
type Store interface {
	ResolvePlot(ctx context.Context, code string) (uuid.UUID, bool, error)
	InsertActivity(ctx context.Context, a store.Activity) (uuid.UUID, bool, error)
	InsertObservation(ctx context.Context, o store.FieldObservation) (uuid.UUID, error)
	InsertIssueAlert(ctx context.Context, a store.Alert) (uuid.UUID, bool, error)
	MarkMessageProcessed(ctx context.Context, id uuid.UUID, extracted []byte) error
	MarkMessageFailed(ctx context.Context, id uuid.UUID) error
	LinkActivity(ctx context.Context, messageID, activityID uuid.UUID) error
}

// Outcome describes what one message materialized into.
type Outcome struct {
	ActivityID   uuid.UUID
	Created      bool
	PlotID       uuid.UUID
	PlotFound    bool
	Observations int
	AlertsRaised int
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(s Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger, now: time.Now}
}

// Materialize commits the extraction result for one raw message and links the
// outcome back to it. A nil payload, an absent activity kind, zero confidence
// or an unknown plot code all end with the message marked processed and no
// activity — those are expected outcomes, not errors. Storage faults mark the
// message failed and propagate so the caller can retry.
func (s *Service) Materialize(ctx context.Context, msg store.RawMessage, res extractor.Result, method string) (Outcome, error) {
	var out Outcome

	var extracted []byte
	if res.Data != nil {
		var err error
		extracted, err = json.Marshal(res.Data)
		if err != nil {
			return out, fmt.Errorf("marshal extracted data: %w", err)
		}
	}

	if res.Data == nil || res.Data.ActivityKind == "" || res.Confidence == 0 {
		if err := s.store.MarkMessageProcessed(ctx, msg.ID, extracted); err != nil {
			return out, s.fail(ctx, msg.ID, err)
		}
		return out, nil
	}
	data := res.Data

	if data.PlotCode != "" {
		plotID, found, err := s.store.ResolvePlot(ctx, data.PlotCode)
		if err != nil {
			return out, s.fail(ctx, msg.ID, err)
		}
		out.PlotID, out.PlotFound = plotID, found
	}
	if !out.PlotFound {
		// Report stays orphaned: stored, processed, no activity.
		s.logger.Info("plot not resolved, no activity created",
			"message_id", msg.MessageID,
			"plot_code", data.PlotCode,
		)
		if err := s.store.MarkMessageProcessed(ctx, msg.ID, extracted); err != nil {
			return out, s.fail(ctx, msg.ID, err)
		}
		return out, nil
	}

	activity := store.Activity{
		PlotID:                out.PlotID,
		Kind:                  data.ActivityKind,
		Date:                  s.activityDate(data.Date),
		CladodesPlanted:       data.CladodesPlanted,
		StationsPlanted:       data.StationsPlanted,
		AvgCladodesPerStation: data.AvgCladodesPerStation,
		Workers:               data.Workers,
		HoursWorked:           data.HoursWorked,
		ReportedBy:            msg.Sender,
		ReportMethod:          method,
		Notes:                 notes(data, msg.Body),
		AIExtracted:           true,
		AIConfidence:          res.Confidence,
		SourceMessageID:       msg.MessageID,
	}

	activityID, created, err := s.store.InsertActivity(ctx, activity)
	if err != nil {
		return out, s.fail(ctx, msg.ID, err)
	}
	out.ActivityID = activityID
	out.Created = created

	// A duplicate delivery already materialized observations and alerts.
	if created {
		for _, issue := range data.Issues {
			obs := store.FieldObservation{
				ActivityID:     activityID,
				PlotID:         out.PlotID,
				Date:           activity.Date,
				Type:           issue.Type,
				Severity:       issue.Severity,
				Description:    issue.Description,
				ActionRequired: issue.ActionRequired,
				AIDetected:     true,
			}
			if _, err := s.store.InsertObservation(ctx, obs); err != nil {
				return out, s.fail(ctx, msg.ID, err)
			}
			out.Observations++

			if issue.Severity == extractor.SeverityHigh || issue.Severity == extractor.SeverityCritical {
				plotID := out.PlotID
				alert := store.Alert{
					Type:        issue.Type,
					Severity:    issue.Severity,
					Title:       alertTitle(issue.Type),
					Description: issue.Description,
					PlotID:      &plotID,
					ActivityID:  &activityID,
				}
				if _, raised, err := s.store.InsertIssueAlert(ctx, alert); err != nil {
					return out, s.fail(ctx, msg.ID, err)
				} else if raised {
					out.AlertsRaised++
				}
			}
		}
	}

	if err := s.store.LinkActivity(ctx, msg.ID, activityID); err != nil {
		return out, s.fail(ctx, msg.ID, err)
	}
	if err := s.store.MarkMessageProcessed(ctx, msg.ID, extracted); err != nil {
		return out, s.fail(ctx, msg.ID, err)
	}

	s.logger.Info("message materialized",
		"message_id", msg.MessageID,
		"activity_id", activityID,
		"created", created,
		"observations", out.Observations,
		"alerts", out.AlertsRaised,
	)
	return out, nil
}

// fail returns the message to a retryable state. The marking itself is
// best-effort; the original fault is what propagates.
func (s *Service) fail(ctx context.Context, msgID uuid.UUID, cause error) error {
	if err := s.store.MarkMessageFailed(ctx, msgID); err != nil {
		s.logger.Error("failed to mark message failed", "message_id", msgID, "error", err)
	}
	return fmt.Errorf("materialize message: %w", cause)
}

func (s *Service) activityDate(date string) time.Time {
	if d, err := time.Parse("2006-01-02", date); err == nil {
		return d
	}
	return s.now().UTC().Truncate(24 * time.Hour)
}

func notes(data *extractor.ActivityData, body string) string {
	if data.Notes != "" {
		return data.Notes
	}
	return body
}

// alertTitle renders an issue type as an operator-facing title, e.g.
// "spacing_error" → "Spacing error detected".
func alertTitle(issueType string) string {
	title := strings.ReplaceAll(issueType, "_", " ")
	if title == "" {
		return "Issue detected"
	}
	return strings.ToUpper(title[:1]) + title[1:] + " detected"
}
