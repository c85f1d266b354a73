package extractor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/terraferm/fieldops/internal/anthropic"
)

func llmServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": text}},
			"stop_reason": "end_turn",
		})
	}))
}

func TestExtract_LLMSuccess(t *testing.T) {
	server := llmServer(t, `Here is the extraction:
{"activity_type":"planting","plot_id":"2a","cladodes_planted":400,"workers":6,
"date":"2026-01-26","sentiment":"positive",
"issues":[{"type":"pest","severity":"high","description":"aphids on row 3"}],
"confidence":0.92}`)
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	e := New(llm, 5*time.Second, discardLogger())

	res := e.Extract(t.Context(), "Planted 400 cladodes in Plot 2A with 6 workers, aphids on row 3", "+27820000001")

	if res.Source != SourceLLM {
		t.Fatalf("expected llm source, got %q", res.Source)
	}
	if res.Data == nil {
		t.Fatal("expected extracted data")
	}
	if res.Data.ActivityKind != KindPlanting {
		t.Errorf("expected planting, got %q", res.Data.ActivityKind)
	}
	if res.Data.PlotCode != "2A" {
		t.Errorf("expected normalized plot 2A, got %q", res.Data.PlotCode)
	}
	if res.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", res.Confidence)
	}
	if len(res.Data.Issues) != 1 || res.Data.Issues[0].Severity != SeverityHigh {
		t.Errorf("expected one high issue, got %+v", res.Data.Issues)
	}
	if res.RawResponse == "" {
		t.Error("expected raw response to be preserved")
	}
}

func TestExtract_MalformedResponseIsNotFatal(t *testing.T) {
	server := llmServer(t, "I could not find any structured data in that message.")
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	e := New(llm, 5*time.Second, discardLogger())

	res := e.Extract(t.Context(), "hello there", "")

	if res.Source != SourceLLM {
		t.Fatalf("expected llm source, got %q", res.Source)
	}
	if res.Data != nil {
		t.Errorf("expected nil data for unparseable response, got %+v", res.Data)
	}
	if res.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", res.Confidence)
	}
}

func TestExtract_ServiceFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	e := New(llm, 5*time.Second, discardLogger())
	e.now = func() time.Time { return time.Date(2026, 1, 26, 8, 0, 0, 0, time.UTC) }

	res := e.Extract(t.Context(), "Planted 400 cladodes in Plot 2A today. Had 6 workers.", "")

	if res.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %q", res.Source)
	}
	if res.Confidence != 0.5 {
		t.Errorf("expected fallback confidence 0.5, got %f", res.Confidence)
	}
	if res.Data == nil || res.Data.ActivityKind != KindPlanting {
		t.Errorf("expected fallback planting extraction, got %+v", res.Data)
	}
}

func TestExtract_EmptyMessage(t *testing.T) {
	e := New(nil, time.Second, discardLogger())

	res := e.Extract(t.Context(), "   \n\t ", "someone")

	if res.Source != SourceNone {
		t.Errorf("expected no extraction attempt, got %q", res.Source)
	}
	if res.Data != nil {
		t.Errorf("expected nil data, got %+v", res.Data)
	}
}

func TestExtract_ConfidenceClampedAndKindDropped(t *testing.T) {
	server := llmServer(t, `{"activity_type":"dancing","cladodes_planted":-5,"confidence":1.7}`)
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	e := New(llm, 5*time.Second, discardLogger())

	res := e.Extract(t.Context(), "we danced", "")

	if res.Data == nil {
		t.Fatal("expected data")
	}
	if res.Data.ActivityKind != "" {
		t.Errorf("expected unknown kind dropped, got %q", res.Data.ActivityKind)
	}
	if res.Data.CladodesPlanted != nil {
		t.Errorf("expected negative quantity dropped, got %v", res.Data.CladodesPlanted)
	}
	if res.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %f", res.Confidence)
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{`noise before {"a":{"b":2}} noise after {"c":3}`, `{"a":{"b":2}}`, true},
		{`{"s":"brace in string }"}`, `{"s":"brace in string }"}`, true},
		{`{"s":"escaped \" quote }"}`, `{"s":"escaped \" quote }"}`, true},
		{`no object here`, ``, false},
		{`{"unterminated":`, ``, false},
	}
	for _, tt := range tests {
		got, ok := firstJSONObject(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("firstJSONObject(%q) = %q,%v, want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
