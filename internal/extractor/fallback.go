package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// fallbackConfidence is the fixed confidence for rule-based extraction; no
// self-assessment is available without the extraction service.
const fallbackConfidence = 0.5

// The fallback extractors are ordered rule tables evaluated in declared
// order, first match wins.

var plotCodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)plot\s*([0-9]+[a-z]?)`),
	regexp.MustCompile(`\b([0-9]+[A-Za-z])\b`),
	regexp.MustCompile(`\b([0-9]+-[A-Za-z])\b`),
}

var cladodePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*cladodes?`),
	regexp.MustCompile(`(?i)planted\s*(\d[\d,]*)`),
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*plants?`),
	regexp.MustCompile(`(?i)(\d[\d,]*)\s*paddles?`),
}

var workerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)\s*workers?`),
	regexp.MustCompile(`(?i)(\d+)\s*people`),
	regexp.MustCompile(`(?i)(\d+)\s*staff`),
	regexp.MustCompile(`(?i)team\s*of\s*(\d+)`),
	regexp.MustCompile(`(?i)(\d+)\s*laborers?`),
}

type activityRule struct {
	kind     string
	keywords []string
}

var activityRules = []activityRule{
	{KindPlanting, []string{"plant", "sow"}},
	{KindSiteClearing, []string{"clear", "prepare", "preparation"}},
	{KindInspection, []string{"inspect", "check", "review"}},
	{KindWeeding, []string{"weed", "remove weeds"}},
	{KindWatering, []string{"water", "irrigat"}},
	{KindFertilizing, []string{"fertili", "compost", "manure"}},
}

type issueRule struct {
	typ      string
	severity string
	keywords []string
}

var issueRules = []issueRule{
	{"spacing_error", SeverityMedium, []string{"spacing", "too close", "too far", "alignment"}},
	{"pest", SeverityHigh, []string{"pest", "insect", "bug", "caterpillar", "aphid"}},
	{"disease", SeverityHigh, []string{"disease", "rot", "fungus", "mold", "sick", "dying"}},
	{"weed", SeverityMedium, []string{"weed", "overgrown", "grass"}},
	{"water", SeverityHigh, []string{"dry", "need water", "drought", "wilting"}},
	{"quality", SeverityMedium, []string{"quality", "poor", "damaged", "broken"}},
}

type sentimentRule struct {
	tag      string
	keywords []string
}

// Precedence: urgent > concerned > positive > neutral.
var sentimentRules = []sentimentRule{
	{"urgent", []string{"urgent", "asap", "immediately", "emergency", "critical"}},
	{"concerned", []string{"problem", "issue", "concern", "worry", "bad", "trouble"}},
	{"positive", []string{"good", "great", "excellent", "completed", "done", "success"}},
}

var (
	isoDateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	// "D Mon" is deliberately tried before "Mon D". With a bare day number
	// both patterns can match the same text, so declared order decides.
	dayMonthRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\b`)
	monthDayRe = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\s+(\d{1,2})\b`)
)

var monthNums = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// extractWithRules runs the deterministic extractors over the message text.
// It never does network I/O.
func (e *Engine) extractWithRules(body string) Result {
	data := &ActivityData{
		ActivityKind: detectActivityKind(body),
		PlotCode:     extractPlotCode(body),
		Date:         extractDate(body, e.now()),
		Issues:       detectIssues(body),
		Sentiment:    analyzeSentiment(body),
	}
	if n, ok := extractCladodeCount(body); ok {
		data.CladodesPlanted = &n
	}
	if n, ok := extractWorkerCount(body); ok {
		data.Workers = &n
	}

	e.logger.Info("extraction complete",
		"source", SourceFallback,
		"activity_kind", data.ActivityKind,
		"plot_code", data.PlotCode,
		"issues", len(data.Issues),
	)

	return Result{
		Data:       data,
		Confidence: fallbackConfidence,
		Source:     SourceFallback,
	}
}

func extractPlotCode(text string) string {
	for _, re := range plotCodePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return normalizePlotCode(m[1])
		}
	}
	return ""
}

func extractCladodeCount(text string) (int, bool) {
	for _, re := range cladodePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func extractWorkerCount(text string) (int, bool) {
	for _, re := range workerPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func extractDate(text string, now time.Time) string {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "today") {
		return now.Format("2006-01-02")
	}
	if strings.Contains(lower, "yesterday") {
		return now.AddDate(0, 0, -1).Format("2006-01-02")
	}

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err == nil {
			return m[1]
		}
	}

	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		return monthDate(monthNums[strings.ToLower(m[2])], day, now)
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[2])
		return monthDate(monthNums[strings.ToLower(m[1])], day, now)
	}

	return ""
}

// monthDate resolves a day+month against the current year.
func monthDate(month time.Month, day int, now time.Time) string {
	return time.Date(now.Year(), month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

func detectActivityKind(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range activityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}
	return ""
}

// detectIssues reports at most one issue per type per message.
func detectIssues(text string) []Issue {
	lower := strings.ToLower(text)
	var issues []Issue
	for _, rule := range issueRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				issues = append(issues, Issue{
					Type:        rule.typ,
					Severity:    rule.severity,
					Description: "detected keyword: " + kw,
				})
				break
			}
		}
	}
	return issues
}

func analyzeSentiment(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range sentimentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.tag
			}
		}
	}
	return "neutral"
}
