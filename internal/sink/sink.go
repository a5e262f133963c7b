package sink

import (
    "context"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/shopspring/decimal"
)

// Sink is a destination accepting the four record streams of one run. Every
// write is an upsert by the record's natural key; a single failed record is
// logged and skipped without aborting its batch. The returned count is the
// number of records actually written.
type Sink interface {
    CreateSchema(ctx context.Context) error
    WriteIssues(ctx context.Context, issues []domain.Issue) (int, error)
    WriteTransitions(ctx context.Context, transitions []domain.Transition) (int, error)
    WriteMetrics(ctx context.Context, metrics []domain.FlowMetric) (int, error)
    WriteForecasts(ctx context.Context, forecasts []domain.ForecastItem) (int, error)
    Close()
}

// floatArg converts an optional float to its exact decimal text form, so the
// stored value carries no binary rounding artifacts. Returns nil for absent
// values so the sink stores NULL/empty.
func floatArg(f *float64) any {
    if f == nil { return nil }
    return decimal.NewFromFloat(*f).String()
}
