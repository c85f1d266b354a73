// Package processor orchestrates the ingestion pipeline: it receives field
// reports from the gateway, runs extraction, materializes the results, and
// always acknowledges back to the reporter.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/extractor"
	"github.com/terraferm/fieldops/internal/gateway"
	"github.com/terraferm/fieldops/internal/materializer"
	"github.com/terraferm/fieldops/internal/store"
)

// Publisher sends events back through the gateway.
type Publisher interface {
	Publish(subject string, data any) error
}

// Store is the slice of the data store the processor itself writes through.
// The rest of the writes go through the materializer.
type Store interface {
	InsertRawMessage(ctx context.Context, m store.RawMessage) (uuid.UUID, bool, string, error)
	AttachImageAnalysis(ctx context.Context, id uuid.UUID, analysis []byte) error
	InsertObservation(ctx context.Context, o store.FieldObservation) (uuid.UUID, error)
}

type Processor struct {
	store        Store
	extractor    *extractor.Engine
	materializer *materializer.Service
	gateway      Publisher
	images       *extractor.ImageAnalyzer // optional
	logger       *slog.Logger
}

func New(s Store, ext *extractor.Engine, mat *materializer.Service, gw Publisher, images *extractor.ImageAnalyzer, logger *slog.Logger) *Processor {
	return &Processor{
		store:        s,
		extractor:    ext,
		materializer: mat,
		gateway:      gw,
		images:       images,
		logger:       logger,
	}
}

// HandleInboundMessage is the NATS handler for farm.gateway.message.received.
// Whatever happens to the message — materialized, orphaned, duplicate, failed —
// the reporter gets exactly one acknowledgement back.
func (p *Processor) HandleInboundMessage(subject string, data []byte) {
	var evt gateway.InboundMessage
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse inbound message event", "error", err)
		return
	}

	ack, err := p.Ingest(context.Background(), evt)
	if err != nil {
		p.logger.Error("ingest failed", "message_id", evt.MessageID, "error", err)
		if evt.From == "" {
			return
		}
		// The message may be retried later; the reporter still hears back.
		ack = genericAck
	}
	p.ack(evt.From, ack)
}

// Ingest runs the full pipeline for one field report and returns the
// acknowledgement text for the reporter. Duplicate deliveries of an already
// handled message are absorbed without reprocessing; a message whose earlier
// attempt hit a storage fault is run through the pipeline again, which the
// source-message constraints make safe.
func (p *Processor) Ingest(ctx context.Context, evt gateway.InboundMessage) (string, error) {
	if evt.MessageID == "" || evt.From == "" {
		return "", fmt.Errorf("inbound message missing message_id or sender")
	}

	p.logger.Info("processing field report",
		"message_id", evt.MessageID,
		"from", evt.From,
	)

	msg := store.RawMessage{
		MessageID: evt.MessageID,
		Sender:    evt.From,
		Body:      evt.Body,
		MediaURL:  evt.MediaURL,
	}
	id, created, state, err := p.store.InsertRawMessage(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("store raw message: %w", err)
	}
	msg.ID = id

	if !created {
		if state != store.MessageFailed {
			p.logger.Info("duplicate delivery, skipping", "message_id", evt.MessageID)
			return genericAck, nil
		}
		p.logger.Info("retrying failed message", "message_id", evt.MessageID)
	}

	result := p.extractor.Extract(ctx, evt.Body, evt.From)

	outcome, err := p.materializer.Materialize(ctx, msg, result, channel(evt))
	if err != nil {
		return "", err
	}

	if evt.MediaURL != "" && p.images != nil {
		p.analyzeMedia(ctx, evt, msg.ID, outcome)
	}

	p.logger.Info("field report processed",
		"message_id", evt.MessageID,
		"source", result.Source,
		"activity_created", outcome.Created,
		"alerts", outcome.AlertsRaised,
	)
	return buildAck(result, outcome), nil
}

// analyzeMedia runs photo analysis and commits the result: the full analysis
// is attached to the raw message, and detected issues become field
// observations on the materialized activity. Analysis failure never unwinds
// the committed materialization.
func (p *Processor) analyzeMedia(ctx context.Context, evt gateway.InboundMessage, msgID uuid.UUID, out materializer.Outcome) {
	analysis, err := p.images.AnalyzeURL(ctx, evt.MediaURL)
	if err != nil {
		p.logger.Error("image analysis failed", "message_id", evt.MessageID, "error", err)
		return
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		p.logger.Error("failed to marshal image analysis", "message_id", evt.MessageID, "error", err)
		return
	}
	if err := p.store.AttachImageAnalysis(ctx, msgID, payload); err != nil {
		p.logger.Error("failed to attach image analysis", "message_id", evt.MessageID, "error", err)
	}

	if out.Created {
		for _, issue := range analysis.IssuesDetected {
			obs := store.FieldObservation{
				ActivityID:  out.ActivityID,
				PlotID:      out.PlotID,
				Date:        time.Now().UTC().Truncate(24 * time.Hour),
				Type:        "photo_finding",
				Severity:    extractor.SeverityMedium,
				Description: issue,
				AIDetected:  true,
			}
			if _, err := p.store.InsertObservation(ctx, obs); err != nil {
				p.logger.Error("failed to store photo observation", "message_id", evt.MessageID, "error", err)
			}
		}
	}

	p.logger.Info("image analyzed",
		"message_id", evt.MessageID,
		"confidence", analysis.Confidence,
		"issues", len(analysis.IssuesDetected),
	)
}

// ack publishes the reply event. Delivery back to the reporter is best-effort:
// a publish failure never unwinds a committed materialization.
func (p *Processor) ack(to, body string) {
	if err := p.gateway.Publish(gateway.SubjectMessageAck, gateway.AckEvent{To: to, Body: body}); err != nil {
		p.logger.Error("failed to publish ack", "to", to, "error", err)
	}
}

const genericAck = "✅ Message received. Please include activity details like: \"Planted 400 cladodes in Plot 2A with 6 workers\""

func buildAck(res extractor.Result, out materializer.Outcome) string {
	if out.ActivityID == uuid.Nil || res.Data == nil {
		return genericAck
	}
	quantity := "activity"
	if res.Data.CladodesPlanted != nil {
		quantity = fmt.Sprintf("%d cladodes", *res.Data.CladodesPlanted)
	}
	return fmt.Sprintf("✅ Received! Logged %s in Plot %s. Confidence: %d%%",
		quantity, res.Data.PlotCode, int(res.Confidence*100))
}

func channel(evt gateway.InboundMessage) string {
	if evt.Channel != "" {
		return evt.Channel
	}
	return "whatsapp"
}
