package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/terraferm/fieldops/internal/anthropic"
)

// Engine is the two-tier extraction engine: an LLM call with a deterministic
// rule-based fallback. Extract never returns an error; extraction failure is
// represented in the Result, not propagated.
type Engine struct {
	llm     *anthropic.Client
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(llm *anthropic.Client, timeout time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		llm:     llm,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

type llmPayload struct {
	ActivityData
	Confidence float64 `json:"confidence"`
}

// Extract processes a field message and returns structured data.
//
// Empty messages are not attempted. A failed extraction-service call selects
// the rule-based fallback; a successful call whose text cannot be parsed
// yields a nil payload (the message is still considered processed).
func (e *Engine) Extract(ctx context.Context, body, sender string) Result {
	if strings.TrimSpace(body) == "" {
		return Result{Source: SourceNone}
	}

	if e.llm == nil {
		return e.extractWithRules(body)
	}

	prompt := fmt.Sprintf(extractionUserPrompt, body, sender, e.now().UTC().Format(time.RFC3339))

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.llm.Complete(callCtx, systemPrompt, prompt, 1024)
	if err != nil {
		e.logger.Warn("extraction service unavailable, using rule-based fallback", "error", err)
		return e.extractWithRules(body)
	}

	span, ok := firstJSONObject(raw)
	if !ok {
		e.logger.Warn("no JSON object in extraction response", "response_len", len(raw))
		return Result{RawResponse: raw, Source: SourceLLM}
	}

	var payload llmPayload
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		e.logger.Warn("unparseable extraction payload", "error", err)
		return Result{RawResponse: raw, Source: SourceLLM}
	}

	data := payload.ActivityData
	sanitize(&data)

	e.logger.Info("extraction complete",
		"source", SourceLLM,
		"activity_kind", data.ActivityKind,
		"plot_code", data.PlotCode,
		"issues", len(data.Issues),
	)

	return Result{
		Data:        &data,
		Confidence:  clamp01(payload.Confidence),
		RawResponse: raw,
		Source:      SourceLLM,
	}
}

// sanitize drops or clamps malformed fields in place. Invalid values are
// treated as absent rather than propagated.
func sanitize(d *ActivityData) {
	d.ActivityKind = normalizeKind(d.ActivityKind)
	d.PlotCode = normalizePlotCode(d.PlotCode)
	d.Sentiment = normalizeSentiment(d.Sentiment)

	if d.CladodesPlanted != nil && *d.CladodesPlanted < 0 {
		d.CladodesPlanted = nil
	}
	if d.StationsPlanted != nil && *d.StationsPlanted < 0 {
		d.StationsPlanted = nil
	}
	if d.AvgCladodesPerStation != nil && *d.AvgCladodesPerStation <= 0 {
		d.AvgCladodesPerStation = nil
	}
	if d.Workers != nil && *d.Workers < 0 {
		d.Workers = nil
	}
	if d.HoursWorked != nil && *d.HoursWorked < 0 {
		d.HoursWorked = nil
	}
	if _, err := time.Parse("2006-01-02", d.Date); d.Date != "" && err != nil {
		d.Date = ""
	}

	issues := d.Issues[:0]
	for _, iss := range d.Issues {
		if iss.Type == "" {
			continue
		}
		iss.Severity = normalizeSeverity(iss.Severity)
		issues = append(issues, iss)
	}
	d.Issues = issues
}

func normalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	// The extraction service sometimes shortens site_clearing.
	if k == "clearing" {
		k = KindSiteClearing
	}
	switch k {
	case KindPlanting, KindSiteClearing, KindInspection, KindWeeding,
		KindWatering, KindFertilizing, KindHarvesting, KindOther:
		return k
	}
	return ""
}

func normalizeSeverity(sev string) string {
	switch strings.ToLower(strings.TrimSpace(sev)) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	}
	return SeverityLow
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "neutral", "concerned", "urgent":
		return strings.ToLower(strings.TrimSpace(s))
	}
	return ""
}

// normalizePlotCode strips hyphens and uppercases, so "3-b" and "3b" both
// resolve to "3B".
func normalizePlotCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// firstJSONObject returns the first balanced {...} span in text. Braces
// inside JSON strings are ignored.
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
