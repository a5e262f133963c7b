package metrics

import (
    "fmt"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/shopspring/decimal"
)

const (
    forecastHorizonDays = 30
    forecastType        = "throughput_based"
)

var forecastConfidence = decimal.RequireFromString("0.70")

// Forecast projects a flat 30-day series from the batch averages: every day
// carries the mean throughput and mean cycle time of the metric set with a
// fixed confidence. An empty metric set yields an empty forecast.
func Forecast(teamID string, ms []domain.FlowMetric, now time.Time) []domain.ForecastItem {
    if len(ms) == 0 { return nil }

    throughput := decimal.Zero
    cycle := decimal.Zero
    for _, m := range ms {
        throughput = throughput.Add(decimal.NewFromInt(int64(m.Throughput)))
        cycle = cycle.Add(m.AvgCycleTime)
    }
    n := decimal.NewFromInt(int64(len(ms)))
    avgThroughput := throughput.Div(n).Round(2)
    avgCycle := cycle.Div(n).Round(2)

    out := make([]domain.ForecastItem, 0, forecastHorizonDays)
    for i := 1; i <= forecastHorizonDays; i++ {
        day := now.AddDate(0, 0, i)
        out = append(out, domain.ForecastItem{
            ID:                  fmt.Sprintf("%s_%s", teamID, day.Format("20060102")),
            TeamID:              teamID,
            Date:                day.Format("2006-01-02"),
            PredictedThroughput: avgThroughput,
            PredictedCycleTime:  avgCycle,
            Confidence:          forecastConfidence,
            ForecastType:        forecastType,
            CreatedAt:           now,
        })
    }
    return out
}
