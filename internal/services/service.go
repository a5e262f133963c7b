/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/config"
    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/Integratz/jira-flow-etl/internal/extract"
    "github.com/Integratz/jira-flow-etl/internal/metrics"
    "github.com/Integratz/jira-flow-etl/internal/sink"
    "github.com/rs/zerolog"
)

// Run stages, in pipeline order. Failed is terminal and reachable from any stage.
const (
    StageIdle          = "idle"
    StageCreateSchema  = "creating_sink_schema"
    StageFetchIssues   = "fetching_issues"
    StageTransitions   = "deriving_transitions"
    StageMetrics       = "aggregating_metrics"
    StageForecast      = "generating_forecast"
    StageWriteOutputs  = "writing_outputs"
    StageDone          = "done"
    StageFailed        = "failed"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("extraction run already in progress")

// JiraClient is the upstream surface the pipeline consumes.
type JiraClient interface {
    extract.Searcher
    extract.ChangelogFetcher
    ServerInfo(ctx context.Context) (baseURL, version string, err error)
}

type Service struct {
    cfg  config.Config
    log  zerolog.Logger
    jira JiraClient
    sink sink.Sink

    mu      sync.Mutex
    running bool
    last    *domain.RunReport
}

func New(cfg config.Config, log zerolog.Logger, jira JiraClient, s sink.Sink) *Service {
    return &Service{cfg: cfg, log: log, jira: jira, sink: s}
}

// RunExtraction executes one full pipeline run: schema, fetch, transitions,
// metrics, forecast, writes. The sink keeps whatever was written before a
// failure; nothing is rolled back. Only one run is active at a time.
// The report is published as s.last at start, so every mutation goes through
// update: LastRun snapshots it under the same lock mid-run.
func (s *Service) RunExtraction(ctx context.Context) error {
    s.mu.Lock()
    if s.running {
        s.mu.Unlock()
        return ErrRunInProgress
    }
    s.running = true
    s.last = &domain.RunReport{StartedAt: time.Now().UTC(), Stage: StageIdle, Sink: s.cfg.SinkKind}
    s.mu.Unlock()
    defer func() {
        s.mu.Lock()
        s.running = false
        now := time.Now().UTC()
        s.last.FinishedAt = &now
        s.mu.Unlock()
    }()

    fail := func(err error) error {
        s.update(func(r *domain.RunReport) {
            r.Stage = StageFailed
            r.Error = err.Error()
        })
        s.log.Error().Err(err).Msg("extraction run failed")
        return err
    }

    s.log.Info().Str("project", s.cfg.JiraProject).Str("sink", s.cfg.SinkKind).Msg("extraction run: start")
    if base, version, err := s.jira.ServerInfo(ctx); err == nil {
        s.log.Info().Str("base_url", base).Str("version", version).Msg("connected to jira")
    }

    s.update(func(r *domain.RunReport) { r.Stage = StageCreateSchema })
    if err := s.sink.CreateSchema(ctx); err != nil {
        return fail(fmt.Errorf("create sink schema: %w", err))
    }

    s.update(func(r *domain.RunReport) { r.Stage = StageFetchIssues })
    fetcher := extract.NewFetcher(s.jira, s.log, s.cfg.PageSize, s.cfg.MaxTotalIssues, s.cfg.RateLimitDelay, s.cfg.StoryPointFields)
    issues, skips := fetcher.Fetch(ctx, s.lookbackJQL())
    s.update(func(r *domain.RunReport) {
        r.Skips = append(r.Skips, skips...)
        r.IssuesFetched = len(issues)
    })
    if len(issues) == 0 {
        return fail(errors.New("no issues fetched"))
    }

    s.update(func(r *domain.RunReport) { r.Stage = StageTransitions })
    extractor := extract.NewTransitionExtractor(s.jira, s.log)
    transitions, skips := extractor.Extract(ctx, issues, extract.ModeDurations)
    s.update(func(r *domain.RunReport) {
        r.Skips = append(r.Skips, skips...)
        r.TransitionsDerived = len(transitions)
    })

    s.update(func(r *domain.RunReport) { r.Stage = StageMetrics })
    now := time.Now().UTC()
    flowMetrics := metrics.Aggregate(s.cfg.JiraProject, issues, transitions, now)
    s.update(func(r *domain.RunReport) { r.MetricsComputed = len(flowMetrics) })

    s.update(func(r *domain.RunReport) { r.Stage = StageForecast })
    forecasts := metrics.Forecast(s.cfg.JiraProject, flowMetrics, now)
    s.update(func(r *domain.RunReport) { r.ForecastsGenerated = len(forecasts) })

    s.update(func(r *domain.RunReport) { r.Stage = StageWriteOutputs })
    issuesWritten := s.write("issues", len(issues), func() (int, error) {
        return s.sink.WriteIssues(ctx, issues)
    })
    transitionsWritten := s.write("transitions", len(transitions), func() (int, error) {
        return s.sink.WriteTransitions(ctx, transitions)
    })
    metricsWritten := s.write("flow_metrics", len(flowMetrics), func() (int, error) {
        return s.sink.WriteMetrics(ctx, flowMetrics)
    })
    forecastsWritten := s.write("forecast_items", len(forecasts), func() (int, error) {
        return s.sink.WriteForecasts(ctx, forecasts)
    })

    s.update(func(r *domain.RunReport) {
        r.IssuesWritten = issuesWritten
        r.TransitionsWritten = transitionsWritten
        r.MetricsWritten = metricsWritten
        r.ForecastsWritten = forecastsWritten
        r.Stage = StageDone
        r.Success = true
    })
    s.log.Info().
        Int("issues", issuesWritten).
        Int("transitions", transitionsWritten).
        Int("metrics", metricsWritten).
        Int("forecasts", forecastsWritten).
        Msg("extraction run: done")
    return nil
}

// update mutates the active run report under the report lock.
func (s *Service) update(fn func(*domain.RunReport)) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.last != nil { fn(s.last) }
}

func (s *Service) write(stream string, total int, fn func() (int, error)) int {
    written, err := fn()
    if err != nil {
        s.log.Error().Err(err).Str("stream", stream).Msg("stream write failed")
        s.update(func(r *domain.RunReport) {
            r.Skips = append(r.Skips, domain.Skip{Stage: StageWriteOutputs, Unit: stream, Reason: err.Error()})
        })
        return written
    }
    if written < total {
        s.update(func(r *domain.RunReport) {
            r.Skips = append(r.Skips, domain.Skip{
                Stage:  StageWriteOutputs,
                Unit:   stream,
                Reason: fmt.Sprintf("%d of %d records skipped", total-written, total),
            })
        })
    }
    return written
}

func (s *Service) lookbackJQL() string {
    since := time.Now().UTC().AddDate(0, 0, -s.cfg.LookbackDays)
    return fmt.Sprintf(`project = "%s" AND updated >= "%s" ORDER BY created DESC`,
        s.cfg.JiraProject, since.Format("2006-01-02"))
}

// LastRun returns a copy of the most recent run report, or nil before the first run.
func (s *Service) LastRun() *domain.RunReport {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.last == nil { return nil }
    cp := *s.last
    return &cp
}
