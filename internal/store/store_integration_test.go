//go:build integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_RawMessageDedup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msg := RawMessage{
		MessageID: "itest-" + uuid.New().String(),
		Sender:    "+27820000001",
		Body:      "Planted 400 cladodes in Plot 2A today",
	}

	id1, created, state, err := s.InsertRawMessage(ctx, msg)
	if err != nil {
		t.Fatalf("InsertRawMessage failed: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create a row")
	}
	if state != MessageReceived {
		t.Errorf("expected received state, got %q", state)
	}

	id2, created, state, err := s.InsertRawMessage(ctx, msg)
	if err != nil {
		t.Fatalf("duplicate InsertRawMessage failed: %v", err)
	}
	if created {
		t.Error("expected duplicate insert to be ignored")
	}
	if id2 != id1 {
		t.Errorf("expected duplicate to resolve to %s, got %s", id1, id2)
	}

	// A failed earlier attempt surfaces through the duplicate path so the
	// caller can re-run the pipeline.
	if err := s.MarkMessageFailed(ctx, id1); err != nil {
		t.Fatalf("MarkMessageFailed failed: %v", err)
	}
	_, _, state, err = s.InsertRawMessage(ctx, msg)
	if err != nil {
		t.Fatalf("redelivery InsertRawMessage failed: %v", err)
	}
	if state != MessageFailed {
		t.Errorf("expected failed state on redelivery, got %q", state)
	}
}

func TestIntegration_ActivityIdempotency(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	plotID, found, err := s.ResolvePlot(ctx, "2A")
	if err != nil {
		t.Fatalf("ResolvePlot failed: %v", err)
	}
	if !found {
		t.Skip("plot 2A not seeded, skipping")
	}

	n := 400
	a := Activity{
		PlotID:          plotID,
		Kind:            "planting",
		Date:            time.Now().UTC().Truncate(24 * time.Hour),
		CladodesPlanted: &n,
		ReportedBy:      "+27820000001",
		ReportMethod:    "whatsapp",
		AIExtracted:     true,
		AIConfidence:    0.5,
		SourceMessageID: "itest-" + uuid.New().String(),
	}

	id1, created, err := s.InsertActivity(ctx, a)
	if err != nil {
		t.Fatalf("InsertActivity failed: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create an activity")
	}

	id2, created, err := s.InsertActivity(ctx, a)
	if err != nil {
		t.Fatalf("duplicate InsertActivity failed: %v", err)
	}
	if created {
		t.Error("expected duplicate insert to be ignored")
	}
	if id2 != id1 {
		t.Errorf("expected same activity id, got %s and %s", id1, id2)
	}
}

func TestIntegration_MetricAlertUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ruleKey := "itest-rule-" + uuid.New().String()[:8]
	a := Alert{
		RuleKey:     ruleKey,
		Type:        "performance",
		Severity:    "high",
		Title:       "Planting Rate Below Target",
		Description: "first evaluation",
		Status:      AlertActive,
	}

	if err := s.UpsertMetricAlert(ctx, a); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	a.Severity = "critical"
	a.Description = "second evaluation"
	if err := s.UpsertMetricAlert(ctx, a); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	active, err := s.ListAlerts(ctx, AlertActive)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	count := 0
	var got Alert
	for _, al := range active {
		if al.RuleKey == ruleKey {
			count++
			got = al
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 active alert for rule, got %d", count)
	}
	if got.Severity != "critical" || got.Description != "second evaluation" {
		t.Errorf("expected refreshed alert, got %+v", got)
	}

	// Forward-only lifecycle.
	ok, err := s.AcknowledgeAlert(ctx, got.ID)
	if err != nil || !ok {
		t.Fatalf("acknowledge failed: ok=%v err=%v", ok, err)
	}
	ok, err = s.AcknowledgeAlert(ctx, got.ID)
	if err != nil {
		t.Fatalf("second acknowledge errored: %v", err)
	}
	if ok {
		t.Error("expected second acknowledge to be a no-op")
	}
	ok, err = s.ResolveAlert(ctx, got.ID)
	if err != nil || !ok {
		t.Fatalf("resolve failed: ok=%v err=%v", ok, err)
	}
	ok, err = s.ResolveAlert(ctx, got.ID)
	if err != nil {
		t.Fatalf("second resolve errored: %v", err)
	}
	if ok {
		t.Error("expected resolved alert to stay resolved")
	}
}
