package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/terraferm/fieldops/internal/anthropic"
)

// ImageAnalysis is the structured result of analyzing one field photo.
type ImageAnalysis struct {
	RowSpacingCm       *float64 `json:"row_spacing_cm,omitempty"`
	PlantsVisible      *int     `json:"plants_visible,omitempty"`
	PlantHealthScore   *float64 `json:"plant_health_score,omitempty"`
	WeedPressure       string   `json:"weed_pressure,omitempty"`
	IssuesDetected     []string `json:"issues_detected,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
	Confidence         float64  `json:"confidence"`
}

// ImageAnalyzer wraps the vision variant of the extraction service. Same
// contract shape as text extraction: prompt in, one JSON object out.
type ImageAnalyzer struct {
	llm     *anthropic.Client
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewImageAnalyzer(llm *anthropic.Client, timeout time.Duration, logger *slog.Logger) *ImageAnalyzer {
	return &ImageAnalyzer{
		llm:     llm,
		http:    &http.Client{Timeout: 30 * time.Second},
		timeout: timeout,
		logger:  logger,
	}
}

// AnalyzeURL fetches a media reference and runs image analysis on it.
func (a *ImageAnalyzer) AnalyzeURL(ctx context.Context, mediaURL string) (*ImageAnalysis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	return a.analyze(ctx, base64.StdEncoding.EncodeToString(raw), mediaType)
}

func (a *ImageAnalyzer) analyze(ctx context.Context, imageB64, mediaType string) (*ImageAnalysis, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.llm.CompleteWithImage(callCtx, "", imageAnalysisPrompt, imageB64, mediaType, 1024)
	if err != nil {
		return nil, fmt.Errorf("image analysis: %w", err)
	}

	span, ok := firstJSONObject(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object in image analysis response")
	}

	var analysis ImageAnalysis
	if err := json.Unmarshal([]byte(span), &analysis); err != nil {
		return nil, fmt.Errorf("parse image analysis: %w", err)
	}
	analysis.Confidence = clamp01(analysis.Confidence)

	a.logger.Info("image analyzed",
		"confidence", analysis.Confidence,
		"issues", len(analysis.IssuesDetected),
	)
	return &analysis, nil
}
