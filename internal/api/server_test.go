package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/terraferm/fieldops/internal/alerts"
	"github.com/terraferm/fieldops/internal/gateway"
	"github.com/terraferm/fieldops/internal/metrics"
	"github.com/terraferm/fieldops/internal/store"
)

type fakeAlertStore struct {
	alerts   []store.Alert
	statuses map[uuid.UUID]string
	plots    map[string]uuid.UUID
}

func (f *fakeAlertStore) ListAlerts(_ context.Context, status string) ([]store.Alert, error) {
	if status == "" {
		return f.alerts, nil
	}
	var out []store.Alert
	for _, a := range f.alerts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) AcknowledgeAlert(_ context.Context, id uuid.UUID) (bool, error) {
	if f.statuses[id] != store.AlertActive {
		return false, nil
	}
	f.statuses[id] = store.AlertAcknowledged
	return true, nil
}

func (f *fakeAlertStore) ResolveAlert(_ context.Context, id uuid.UUID) (bool, error) {
	st := f.statuses[id]
	if st != store.AlertActive && st != store.AlertAcknowledged {
		return false, nil
	}
	f.statuses[id] = store.AlertResolved
	return true, nil
}

func (f *fakeAlertStore) ResolvePlot(_ context.Context, code string) (uuid.UUID, bool, error) {
	id, ok := f.plots[code]
	return id, ok, nil
}

type fakeSnapshotter struct {
	lastStart, lastEnd time.Time
	lastPlot           *uuid.UUID
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, start, end time.Time, plotID *uuid.UUID) (*metrics.Snapshot, error) {
	f.lastStart, f.lastEnd, f.lastPlot = start, end, plotID
	return &metrics.Snapshot{
		Period: metrics.Period{
			Start: start.Format("2006-01-02"),
			End:   end.Format("2006-01-02"),
		},
		Totals: metrics.Totals{CladodesPlanted: 400},
	}, nil
}

type fakeEvaluator struct {
	raised []alerts.RuleAlert
}

func (f *fakeEvaluator) Evaluate(_ context.Context) ([]alerts.RuleAlert, error) {
	return f.raised, nil
}

type fakeIngestor struct {
	last gateway.InboundMessage
}

func (f *fakeIngestor) Ingest(_ context.Context, evt gateway.InboundMessage) (string, error) {
	f.last = evt
	return "received", nil
}

const testToken = "test-token"

func testServer(fs *fakeAlertStore) (*Server, *fakeSnapshotter, *fakeEvaluator, *fakeIngestor) {
	if fs == nil {
		fs = &fakeAlertStore{statuses: map[uuid.UUID]string{}, plots: map[string]uuid.UUID{}}
	}
	snap := &fakeSnapshotter{}
	ev := &fakeEvaluator{}
	ing := &fakeIngestor{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(0, testToken, fs, snap, ev, ing, nil, logger), snap, ev, ing
}

func do(t *testing.T, s *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _, _ := testServer(nil)
	rec := do(t, s, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetMetrics_DefaultRange(t *testing.T) {
	s, snap, _, _ := testServer(nil)
	rec := do(t, s, http.MethodGet, "/api/v1/metrics", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if days := snap.lastEnd.Sub(snap.lastStart).Hours() / 24; days != 30 {
		t.Errorf("default window = %v days, want 30", days)
	}
	var resp metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Totals.CladodesPlanted != 400 {
		t.Errorf("totals = %+v", resp.Totals)
	}
}

func TestGetMetrics_ExplicitRangeAndPlot(t *testing.T) {
	fs := &fakeAlertStore{statuses: map[uuid.UUID]string{}, plots: map[string]uuid.UUID{}}
	plotID := uuid.New()
	fs.plots["2A"] = plotID
	s, snap, _, _ := testServer(fs)

	rec := do(t, s, http.MethodGet, "/api/v1/metrics?start_date=2025-06-01&end_date=2025-06-30&plot_id=2-a", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if snap.lastPlot == nil || *snap.lastPlot != plotID {
		t.Error("plot filter not forwarded, hyphenated code should resolve")
	}
	if snap.lastStart.Format("2006-01-02") != "2025-06-01" {
		t.Errorf("start = %v", snap.lastStart)
	}
}

func TestGetMetrics_BadRequests(t *testing.T) {
	s, _, _, _ := testServer(nil)
	for _, path := range []string{
		"/api/v1/metrics?start_date=June-1",
		"/api/v1/metrics?start_date=2025-06-30&end_date=2025-06-01",
		"/api/v1/metrics?plot_id=9Z",
	} {
		rec := do(t, s, http.MethodGet, path, "", false)
		if rec.Code != http.StatusBadRequest && rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 4xx", path, rec.Code)
		}
	}
}

func TestListAlerts_StatusFilter(t *testing.T) {
	fs := &fakeAlertStore{
		statuses: map[uuid.UUID]string{},
		plots:    map[string]uuid.UUID{},
		alerts: []store.Alert{
			{ID: uuid.New(), Type: "pest", Severity: "high", Status: store.AlertActive},
			{ID: uuid.New(), Type: "disease", Severity: "critical", Status: store.AlertResolved},
		},
	}
	s, _, _, _ := testServer(fs)

	rec := do(t, s, http.MethodGet, "/api/v1/alerts?status=active", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("count = %d, want 1", resp.Count)
	}

	if rec := do(t, s, http.MethodGet, "/api/v1/alerts?status=bogus", "", false); rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d, want 400", rec.Code)
	}
}

func TestAlertLifecycle_ForwardOnly(t *testing.T) {
	id := uuid.New()
	fs := &fakeAlertStore{
		statuses: map[uuid.UUID]string{id: store.AlertActive},
		plots:    map[string]uuid.UUID{},
	}
	s, _, _, _ := testServer(fs)

	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/"+id.String()+"/acknowledge", "", true); rec.Code != http.StatusOK {
		t.Fatalf("acknowledge status = %d: %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/"+id.String()+"/acknowledge", "", true); rec.Code != http.StatusConflict {
		t.Errorf("second acknowledge status = %d, want 409", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/"+id.String()+"/resolve", "", true); rec.Code != http.StatusOK {
		t.Errorf("resolve status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/"+id.String()+"/resolve", "", true); rec.Code != http.StatusConflict {
		t.Errorf("resolve after resolved status = %d, want 409", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/not-a-uuid/acknowledge", "", true); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestBearerAuth_GatesMutatingRoutes(t *testing.T) {
	s, _, _, _ := testServer(nil)

	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/evaluate", "", false); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated evaluate status = %d, want 401", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/alerts/evaluate", "", true); rec.Code != http.StatusOK {
		t.Errorf("authenticated evaluate status = %d, want 200", rec.Code)
	}
	// Reads stay open.
	if rec := do(t, s, http.MethodGet, "/api/v1/alerts", "", false); rec.Code != http.StatusOK {
		t.Errorf("unauthenticated list status = %d, want 200", rec.Code)
	}
}

func TestIngestMessage(t *testing.T) {
	s, _, _, ing := testServer(nil)

	rec := do(t, s, http.MethodPost, "/api/v1/messages",
		`{"from":"+27821234567","body":"Planted 400 cladodes in Plot 2A"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ing.last.From != "+27821234567" {
		t.Errorf("ingestor got %+v", ing.last)
	}
	if !strings.HasPrefix(ing.last.MessageID, "api-") {
		t.Errorf("generated message id = %q", ing.last.MessageID)
	}

	if rec := do(t, s, http.MethodPost, "/api/v1/messages", `{"body":"no sender"}`, true); rec.Code != http.StatusBadRequest {
		t.Errorf("missing from status = %d, want 400", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/messages", `{`, true); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rec.Code)
	}
}
