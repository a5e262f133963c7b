/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "sort"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/shopspring/decimal"
)

// terminalStatuses marks an issue or transition as completed.
var terminalStatuses = map[string]bool{"Done": true, "Closed": true, "Resolved": true}

// startedStatuses marks the beginning of an issue's cycle.
var startedStatuses = map[string]bool{"In Progress": true, "In Development": true}

// Aggregate produces one flow-metric record per distinct creation date in the
// batch. Story points are summed in decimal so persisted totals carry no
// binary-float drift. The avg_cycle_time on every row is the mean over the
// whole extraction batch, not the row's date cohort.
func Aggregate(teamID string, issues []domain.Issue, transitions []domain.Transition, now time.Time) []domain.FlowMetric {
    type daily struct {
        created, completed             int
        totalPoints, completedPoints decimal.Decimal
    }
    days := map[string]*daily{}
    for _, issue := range issues {
        if issue.Created == nil { continue }
        date := issue.Created.Format("2006-01-02")
        d := days[date]
        if d == nil { d = &daily{}; days[date] = d }
        d.created++
        var pts decimal.Decimal
        if issue.StoryPoints != nil { pts = decimal.NewFromFloat(*issue.StoryPoints) }
        d.totalPoints = d.totalPoints.Add(pts)
        if terminalStatuses[issue.Status] {
            d.completed++
            d.completedPoints = d.completedPoints.Add(pts)
        }
    }

    avgCycle := averageCycleTime(CycleTimes(transitions))

    out := make([]domain.FlowMetric, 0, len(days))
    for date, d := range days {
        out = append(out, domain.FlowMetric{
            TeamID:               teamID,
            Date:                 date,
            IssuesCreated:        d.created,
            IssuesCompleted:      d.completed,
            TotalStoryPoints:     d.totalPoints,
            CompletedStoryPoints: d.completedPoints,
            AvgCycleTime:         avgCycle,
            Throughput:           d.completed,
            ExtractedAt:          now,
        })
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
    return out
}

// CycleTimes computes whole-day cycle times keyed by issue. For every
// transition into a terminal status, the first transition of the same issue
// into a started status anchors the cycle; the last completion of an issue
// wins. Transitions without usable timestamps are left out.
func CycleTimes(transitions []domain.Transition) map[string]int {
    out := map[string]int{}
    for _, tr := range transitions {
        if !terminalStatuses[tr.ToStatus] || tr.At.IsZero() { continue }
        for _, start := range transitions {
            if start.IssueKey != tr.IssueKey || !startedStatuses[start.ToStatus] { continue }
            if start.At.IsZero() { break }
            out[tr.IssueKey] = int(tr.At.Sub(start.At).Hours() / 24)
            break
        }
    }
    return out
}

func averageCycleTime(cycles map[string]int) decimal.Decimal {
    if len(cycles) == 0 { return decimal.Zero }
    sum := 0
    for _, d := range cycles { sum += d }
    return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(cycles)))).Round(2)
}
