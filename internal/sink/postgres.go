/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package sink

import (
    "context"
    "fmt"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"
)

// pgxPool is the slice of the pgxpool API the sink needs; pgxmock satisfies
// it in tests.
type pgxPool interface {
    Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
    Ping(ctx context.Context) error
    Close()
}

type Postgres struct {
    pool   pgxPool
    prefix string
    log    zerolog.Logger
}

func OpenPostgres(ctx context.Context, dsn, prefix string, log zerolog.Logger) (*Postgres, error) {
    pool, err := pgxpool.New(ctx, dsn)
    if err != nil { return nil, fmt.Errorf("db connect: %w", err) }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil {
        pool.Close()
        return nil, fmt.Errorf("db ping: %w", err)
    }
    return &Postgres{pool: pool, prefix: prefix, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// CreateSchema creates the four destination tables. IF NOT EXISTS makes an
// already-provisioned schema a no-op.
func (p *Postgres) CreateSchema(ctx context.Context) error {
    stmts := []string{
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_issues (
            issue_key VARCHAR(20) PRIMARY KEY,
            summary TEXT,
            description TEXT,
            status VARCHAR(50),
            assignee VARCHAR(100),
            reporter VARCHAR(100),
            priority VARCHAR(50),
            issue_type VARCHAR(50),
            created TIMESTAMPTZ,
            updated TIMESTAMPTZ,
            resolution VARCHAR(50),
            story_points NUMERIC,
            labels TEXT[],
            components TEXT[],
            extract_timestamp TIMESTAMPTZ
        )`, p.prefix),
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_transitions (
            issue_key VARCHAR(20),
            from_status VARCHAR(50),
            to_status VARCHAR(50),
            transition_date TIMESTAMPTZ,
            author VARCHAR(100),
            time_in_status_hours NUMERIC,
            PRIMARY KEY (issue_key, from_status, to_status, transition_date)
        )`, p.prefix),
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_flow_metrics (
            team_id VARCHAR(50),
            date DATE,
            issues_created INTEGER,
            issues_completed INTEGER,
            total_story_points NUMERIC,
            completed_story_points NUMERIC,
            avg_cycle_time NUMERIC,
            throughput INTEGER,
            extract_timestamp TIMESTAMPTZ,
            PRIMARY KEY (team_id, date)
        )`, p.prefix),
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_forecast_items (
            forecast_id VARCHAR(70) PRIMARY KEY,
            team_id VARCHAR(50),
            forecast_date DATE,
            predicted_throughput NUMERIC,
            predicted_cycle_time NUMERIC,
            confidence_level NUMERIC,
            forecast_type VARCHAR(50),
            created_at TIMESTAMPTZ
        )`, p.prefix),
    }
    for _, q := range stmts {
        if _, err := p.pool.Exec(ctx, q); err != nil { return fmt.Errorf("create schema: %w", err) }
    }
    return nil
}

func (p *Postgres) WriteIssues(ctx context.Context, issues []domain.Issue) (int, error) {
    q := fmt.Sprintf(`INSERT INTO %s_issues (issue_key, summary, description, status, assignee, reporter,
            priority, issue_type, created, updated, resolution, story_points, labels, components, extract_timestamp)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (issue_key) DO UPDATE SET
            summary=EXCLUDED.summary,
            description=EXCLUDED.description,
            status=EXCLUDED.status,
            assignee=EXCLUDED.assignee,
            reporter=EXCLUDED.reporter,
            priority=EXCLUDED.priority,
            issue_type=EXCLUDED.issue_type,
            created=EXCLUDED.created,
            updated=EXCLUDED.updated,
            resolution=EXCLUDED.resolution,
            story_points=EXCLUDED.story_points,
            labels=EXCLUDED.labels,
            components=EXCLUDED.components,
            extract_timestamp=EXCLUDED.extract_timestamp`, p.prefix)
    written := 0
    for _, i := range issues {
        _, err := p.pool.Exec(ctx, q, i.Key, i.Summary, i.Description, i.Status, i.Assignee, i.Reporter,
            i.Priority, i.IssueType, i.Created, i.Updated, i.Resolution, floatArg(i.StoryPoints),
            i.Labels, i.Components, i.ExtractedAt)
        if err != nil {
            p.log.Error().Err(err).Str("issue", i.Key).Msg("issue upsert failed, skipping record")
            continue
        }
        written++
    }
    return written, nil
}

func (p *Postgres) WriteTransitions(ctx context.Context, transitions []domain.Transition) (int, error) {
    // the composite key stays authoritative; re-extraction refreshes author and dwell only
    q := fmt.Sprintf(`INSERT INTO %s_transitions (issue_key, from_status, to_status, transition_date, author, time_in_status_hours)
        VALUES($1,$2,$3,$4,$5,$6)
        ON CONFLICT (issue_key, from_status, to_status, transition_date) DO UPDATE SET
            author=EXCLUDED.author,
            time_in_status_hours=EXCLUDED.time_in_status_hours`, p.prefix)
    written := 0
    for _, t := range transitions {
        _, err := p.pool.Exec(ctx, q, t.IssueKey, t.FromStatus, t.ToStatus, t.At, t.Author, floatArg(t.DwellHours))
        if err != nil {
            p.log.Error().Err(err).Str("issue", t.IssueKey).Msg("transition upsert failed, skipping record")
            continue
        }
        written++
    }
    return written, nil
}

func (p *Postgres) WriteMetrics(ctx context.Context, metrics []domain.FlowMetric) (int, error) {
    q := fmt.Sprintf(`INSERT INTO %s_flow_metrics (team_id, date, issues_created, issues_completed,
            total_story_points, completed_story_points, avg_cycle_time, throughput, extract_timestamp)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (team_id, date) DO UPDATE SET
            issues_created=EXCLUDED.issues_created,
            issues_completed=EXCLUDED.issues_completed,
            total_story_points=EXCLUDED.total_story_points,
            completed_story_points=EXCLUDED.completed_story_points,
            avg_cycle_time=EXCLUDED.avg_cycle_time,
            throughput=EXCLUDED.throughput,
            extract_timestamp=EXCLUDED.extract_timestamp`, p.prefix)
    written := 0
    for _, m := range metrics {
        _, err := p.pool.Exec(ctx, q, m.TeamID, m.Date, m.IssuesCreated, m.IssuesCompleted,
            m.TotalStoryPoints.String(), m.CompletedStoryPoints.String(), m.AvgCycleTime.String(),
            m.Throughput, m.ExtractedAt)
        if err != nil {
            p.log.Error().Err(err).Str("team", m.TeamID).Str("date", m.Date).Msg("metric upsert failed, skipping record")
            continue
        }
        written++
    }
    return written, nil
}

func (p *Postgres) WriteForecasts(ctx context.Context, forecasts []domain.ForecastItem) (int, error) {
    q := fmt.Sprintf(`INSERT INTO %s_forecast_items (forecast_id, team_id, forecast_date,
            predicted_throughput, predicted_cycle_time, confidence_level, forecast_type, created_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (forecast_id) DO UPDATE SET
            team_id=EXCLUDED.team_id,
            forecast_date=EXCLUDED.forecast_date,
            predicted_throughput=EXCLUDED.predicted_throughput,
            predicted_cycle_time=EXCLUDED.predicted_cycle_time,
            confidence_level=EXCLUDED.confidence_level,
            forecast_type=EXCLUDED.forecast_type,
            created_at=EXCLUDED.created_at`, p.prefix)
    written := 0
    for _, f := range forecasts {
        _, err := p.pool.Exec(ctx, q, f.ID, f.TeamID, f.Date,
            f.PredictedThroughput.String(), f.PredictedCycleTime.String(), f.Confidence.String(),
            f.ForecastType, f.CreatedAt)
        if err != nil {
            p.log.Error().Err(err).Str("forecast", f.ID).Msg("forecast upsert failed, skipping record")
            continue
        }
        written++
    }
    return written, nil
}
