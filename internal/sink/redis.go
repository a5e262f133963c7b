package sink

import (
    "context"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"
)

// Redis stores each record as one hash keyed <prefix>:<stream>:<natural key>.
// It is the key-value counterpart of the relational sink; numeric attributes
// are written in exact decimal text form.
type Redis struct {
    client *redis.Client
    prefix string
    log    zerolog.Logger
}

func OpenRedis(ctx context.Context, addr, password string, db int, prefix string, log zerolog.Logger) (*Redis, error) {
    client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := client.Ping(ctx2).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return &Redis{client: client, prefix: prefix, log: log}, nil
}

func (r *Redis) Close() { _ = r.client.Close() }

// CreateSchema is a connectivity probe; a key-value store has no schema to provision.
func (r *Redis) CreateSchema(ctx context.Context) error {
    return r.client.Ping(ctx).Err()
}

func docKey(prefix, stream, id string) string {
    return fmt.Sprintf("%s:%s:%s", prefix, stream, id)
}

func transitionID(t domain.Transition) string {
    return fmt.Sprintf("%s|%s|%s|%s", t.IssueKey, t.FromStatus, t.ToStatus, t.At.UTC().Format(time.RFC3339))
}

func metricID(m domain.FlowMetric) string {
    return fmt.Sprintf("%s|%s", m.TeamID, m.Date)
}

func (r *Redis) WriteIssues(ctx context.Context, issues []domain.Issue) (int, error) {
    keys := make([]string, 0, len(issues))
    docs := make([]map[string]string, 0, len(issues))
    for _, i := range issues {
        keys = append(keys, docKey(r.prefix, "issues", i.Key))
        docs = append(docs, issueDoc(i))
    }
    return r.writeDocs(ctx, keys, docs)
}

func (r *Redis) WriteTransitions(ctx context.Context, transitions []domain.Transition) (int, error) {
    keys := make([]string, 0, len(transitions))
    docs := make([]map[string]string, 0, len(transitions))
    for _, t := range transitions {
        keys = append(keys, docKey(r.prefix, "transitions", transitionID(t)))
        docs = append(docs, transitionDoc(t))
    }
    return r.writeDocs(ctx, keys, docs)
}

func (r *Redis) WriteMetrics(ctx context.Context, metrics []domain.FlowMetric) (int, error) {
    keys := make([]string, 0, len(metrics))
    docs := make([]map[string]string, 0, len(metrics))
    for _, m := range metrics {
        keys = append(keys, docKey(r.prefix, "flow_metrics", metricID(m)))
        docs = append(docs, metricDoc(m))
    }
    return r.writeDocs(ctx, keys, docs)
}

func (r *Redis) WriteForecasts(ctx context.Context, forecasts []domain.ForecastItem) (int, error) {
    keys := make([]string, 0, len(forecasts))
    docs := make([]map[string]string, 0, len(forecasts))
    for _, f := range forecasts {
        keys = append(keys, docKey(r.prefix, "forecast_items", f.ID))
        docs = append(docs, forecastDoc(f))
    }
    return r.writeDocs(ctx, keys, docs)
}

// writeDocs upserts each hash through one pipeline. HSET overwrites existing
// fields, so a rewrite of the same key is a plain last-write-wins upsert.
// Per-command failures are logged and skipped.
func (r *Redis) writeDocs(ctx context.Context, keys []string, docs []map[string]string) (int, error) {
    if len(keys) == 0 { return 0, nil }
    pipe := r.client.Pipeline()
    for i, key := range keys {
        pipe.HSet(ctx, key, docs[i])
    }
    cmds, err := pipe.Exec(ctx)
    written := 0
    for i, cmd := range cmds {
        if cerr := cmd.Err(); cerr != nil {
            r.log.Error().Err(cerr).Str("key", keys[i]).Msg("hash write failed, skipping record")
            continue
        }
        written++
    }
    if err != nil && written == 0 { return 0, fmt.Errorf("redis pipeline: %w", err) }
    return written, nil
}

func issueDoc(i domain.Issue) map[string]string {
    doc := map[string]string{
        "issue_id":          i.Key,
        "summary":           i.Summary,
        "description":       i.Description,
        "status":            i.Status,
        "assignee":          strOrEmpty(i.Assignee),
        "reporter":          strOrEmpty(i.Reporter),
        "priority":          strOrEmpty(i.Priority),
        "issue_type":        i.IssueType,
        "created":           timeOrEmpty(i.Created),
        "updated":           timeOrEmpty(i.Updated),
        "resolution":        strOrEmpty(i.Resolution),
        "story_points":      decOrEmpty(i.StoryPoints),
        "labels":            joinList(i.Labels),
        "components":        joinList(i.Components),
        "extract_timestamp": i.ExtractedAt.UTC().Format(time.RFC3339),
    }
    return doc
}

func transitionDoc(t domain.Transition) map[string]string {
    return map[string]string{
        "issue_id":             t.IssueKey,
        "from_status":          t.FromStatus,
        "to_status":            t.ToStatus,
        "transition_timestamp": t.At.UTC().Format(time.RFC3339),
        "author":               t.Author,
        "time_in_status_hours": decOrEmpty(t.DwellHours),
    }
}

func metricDoc(m domain.FlowMetric) map[string]string {
    return map[string]string{
        "team_id":                m.TeamID,
        "date":                   m.Date,
        "issues_created":         strconv.Itoa(m.IssuesCreated),
        "issues_completed":       strconv.Itoa(m.IssuesCompleted),
        "total_story_points":     m.TotalStoryPoints.String(),
        "completed_story_points": m.CompletedStoryPoints.String(),
        "avg_cycle_time":         m.AvgCycleTime.String(),
        "throughput":             strconv.Itoa(m.Throughput),
        "extract_timestamp":      m.ExtractedAt.UTC().Format(time.RFC3339),
    }
}

func forecastDoc(f domain.ForecastItem) map[string]string {
    return map[string]string{
        "forecast_id":          f.ID,
        "team_id":              f.TeamID,
        "forecast_date":        f.Date,
        "predicted_throughput": f.PredictedThroughput.String(),
        "predicted_cycle_time": f.PredictedCycleTime.String(),
        "confidence_level":     f.Confidence.String(),
        "forecast_type":        f.ForecastType,
        "created_at":           f.CreatedAt.UTC().Format(time.RFC3339),
    }
}

func strOrEmpty(s *string) string {
    if s == nil { return "" }
    return *s
}

func timeOrEmpty(t *time.Time) string {
    if t == nil { return "" }
    return t.UTC().Format(time.RFC3339)
}

func decOrEmpty(f *float64) string {
    if f == nil { return "" }
    return floatArg(f).(string)
}

func joinList(xs []string) string { return strings.Join(xs, ",") }
