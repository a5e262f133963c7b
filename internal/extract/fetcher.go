/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package extract

import (
    "context"
    "fmt"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/rs/zerolog"
)

// Searcher is the paged search operation the fetcher consumes.
type Searcher interface {
    SearchPage(ctx context.Context, jql string, startAt, max int) (domain.SearchPage, error)
}

type Fetcher struct {
    jira       Searcher
    log        zerolog.Logger
    pageSize   int
    maxTotal   int
    delay      time.Duration
    pointSlots []string
}

func NewFetcher(jira Searcher, log zerolog.Logger, pageSize, maxTotal int, delay time.Duration, pointSlots []string) *Fetcher {
    if pageSize <= 0 { pageSize = 50 }
    if maxTotal <= 0 { maxTotal = 500 }
    return &Fetcher{jira: jira, log: log, pageSize: pageSize, maxTotal: maxTotal, delay: delay, pointSlots: pointSlots}
}

// Fetch pages through the search results for the given JQL, normalizing each
// raw record, until a short page, the configured cap, or the upstream total
// is reached. A page-level failure ends the loop but keeps what was already
// accumulated; the skip records why. A rate-limit pause separates pages.
func (f *Fetcher) Fetch(ctx context.Context, jql string) ([]domain.Issue, []domain.Skip) {
    var issues []domain.Issue
    var skips []domain.Skip
    startAt := 0
    for {
        if len(issues) >= f.maxTotal {
            f.log.Info().Int("max_total", f.maxTotal).Msg("reached issue cap, stopping fetch")
            break
        }
        size := f.pageSize
        if rem := f.maxTotal - len(issues); rem < size { size = rem }
        page, err := f.jira.SearchPage(ctx, jql, startAt, size)
        if err != nil {
            f.log.Error().Err(err).Int("start_at", startAt).Msg("search page failed, keeping partial results")
            skips = append(skips, domain.Skip{Stage: "fetching_issues", Unit: fmt.Sprintf("page@%d", startAt), Reason: err.Error()})
            break
        }
        if len(page.Issues) == 0 { break }
        now := time.Now().UTC()
        for _, raw := range page.Issues {
            issues = append(issues, Normalize(raw, f.pointSlots, now))
        }
        if len(page.Issues) < f.pageSize { break }
        if page.Total >= 0 && len(issues) >= page.Total { break }
        startAt += size
        time.Sleep(f.delay)
    }
    f.log.Info().Int("count", len(issues)).Msg("fetched issues")
    return issues, skips
}
