package domain

import (
    "time"

    "github.com/shopspring/decimal"
)

// Issue is one normalized tracker work item. Key is the stable identity;
// every other field is overwritten on re-extraction.
type Issue struct {
    Key         string
    Summary     string
    Description string
    Status      string
    Assignee    *string
    Reporter    *string
    Priority    *string
    IssueType   string
    Created     *time.Time
    Updated     *time.Time
    Resolution  *string
    StoryPoints *float64
    Labels      []string
    Components  []string
    ExtractedAt time.Time
}

// Transition is one status change derived from an issue's changelog.
// Identity is (IssueKey, FromStatus, ToStatus, At); re-extraction of the same
// composite key overwrites Author and DwellHours only.
type Transition struct {
    IssueKey   string
    FromStatus string
    ToStatus   string
    At         time.Time
    Author     string
    DwellHours *float64 // nil for an issue's most recent transition
}

// FlowMetric is one (team, calendar date) aggregate, recomputed wholesale per run.
type FlowMetric struct {
    TeamID               string
    Date                 string // YYYY-MM-DD
    IssuesCreated        int
    IssuesCompleted      int
    TotalStoryPoints     decimal.Decimal
    CompletedStoryPoints decimal.Decimal
    AvgCycleTime         decimal.Decimal // batch-global average, same on every row
    Throughput           int
    ExtractedAt          time.Time
}

// ForecastItem is one day of the flat 30-day projection.
type ForecastItem struct {
    ID                  string // <team>_<yyyymmdd>
    TeamID              string
    Date                string // YYYY-MM-DD
    PredictedThroughput decimal.Decimal
    PredictedCycleTime  decimal.Decimal
    Confidence          decimal.Decimal
    ForecastType        string
    CreatedAt           time.Time
}

// Skip records one fail-soft unit skipped during a run.
type Skip struct {
    Stage  string `json:"stage"`
    Unit   string `json:"unit"`
    Reason string `json:"reason"`
}

// RunReport accumulates what one extraction run did. Exposed via the
// last-run endpoint instead of living only in logs.
type RunReport struct {
    StartedAt          time.Time  `json:"started_at"`
    FinishedAt         *time.Time `json:"finished_at"`
    Stage              string     `json:"stage"`
    Sink               string     `json:"sink"`
    IssuesFetched      int        `json:"issues_fetched"`
    TransitionsDerived int        `json:"transitions_derived"`
    MetricsComputed    int        `json:"metrics_computed"`
    ForecastsGenerated int        `json:"forecasts_generated"`
    IssuesWritten      int        `json:"issues_written"`
    TransitionsWritten int        `json:"transitions_written"`
    MetricsWritten     int        `json:"metrics_written"`
    ForecastsWritten   int        `json:"forecasts_written"`
    Skips              []Skip     `json:"skips,omitempty"`
    Success            bool       `json:"success"`
    Error              string     `json:"error,omitempty"`
}
