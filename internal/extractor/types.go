package extractor

// Activity kinds recognized by the pipeline. Extraction output with any other
// kind is treated as having no kind at all.
const (
	KindPlanting     = "planting"
	KindSiteClearing = "site_clearing"
	KindInspection   = "inspection"
	KindWeeding      = "weeding"
	KindWatering     = "watering"
	KindFertilizing  = "fertilizing"
	KindHarvesting   = "harvesting"
	KindOther        = "other"
)

// Issue severities and alert severities share one scale.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Extraction sources, recorded on the result for observability.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// Issue is a single problem reported in a field message.
type Issue struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	ActionRequired string `json:"action_required,omitempty"`
}

// ResourceRequest is a supply or equipment need mentioned in a message.
type ResourceRequest struct {
	Item     string   `json:"item"`
	Urgency  string   `json:"urgency"`
	Quantity *float64 `json:"quantity,omitempty"`
}

// ActivityData is the structured payload extracted from one field message.
// All fields are optional; pointer fields distinguish "absent" from zero.
type ActivityData struct {
	ActivityKind          string            `json:"activity_type,omitempty"`
	PlotCode              string            `json:"plot_id,omitempty"`
	CladodesPlanted       *int              `json:"cladodes_planted,omitempty"`
	StationsPlanted       *int              `json:"stations_planted,omitempty"`
	AvgCladodesPerStation *float64          `json:"avg_cladodes_per_station,omitempty"`
	Workers               *int              `json:"workers,omitempty"`
	HoursWorked           *float64          `json:"hours_worked,omitempty"`
	Date                  string            `json:"date,omitempty"`
	Issues                []Issue           `json:"issues,omitempty"`
	ResourcesNeeded       []ResourceRequest `json:"resources_needed,omitempty"`
	Weather               string            `json:"weather_conditions,omitempty"`
	Sentiment             string            `json:"sentiment,omitempty"`
	Notes                 string            `json:"notes,omitempty"`
}

// Result is the outcome of one extraction attempt. Data is nil when nothing
// could be extracted; that is a valid outcome, not an error.
type Result struct {
	Data        *ActivityData
	Confidence  float64
	RawResponse string
	Source      string
}
