package extract

import (
    "context"
    "math"
    "sort"

    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/rs/zerolog"
)

// ChangelogFetcher is the per-issue history retrieval the extractor consumes.
type ChangelogFetcher interface {
    IssueChangelog(ctx context.Context, key string) ([]domain.RawHistory, error)
}

// Mode selects how dwell durations are derived.
type Mode int

const (
    // ModeDurations sorts each issue's status changes chronologically and
    // pairs every transition with its successor to compute dwell hours;
    // the final transition has no successor and carries a nil dwell.
    ModeDurations Mode = iota
    // ModeIndependent emits each status change as-is, leaving duration
    // computation to the aggregation step.
    ModeIndependent
)

type TransitionExtractor struct {
    jira ChangelogFetcher
    log  zerolog.Logger
}

func NewTransitionExtractor(jira ChangelogFetcher, log zerolog.Logger) *TransitionExtractor {
    return &TransitionExtractor{jira: jira, log: log}
}

// Extract retrieves each issue's change history and derives its status
// transitions. An issue with no changelog yields zero transitions; a failed
// retrieval is logged and skipped without aborting the remaining issues.
func (e *TransitionExtractor) Extract(ctx context.Context, issues []domain.Issue, mode Mode) ([]domain.Transition, []domain.Skip) {
    var out []domain.Transition
    var skips []domain.Skip
    for _, issue := range issues {
        histories, err := e.jira.IssueChangelog(ctx, issue.Key)
        if err != nil {
            e.log.Error().Err(err).Str("issue", issue.Key).Msg("changelog fetch failed, skipping issue")
            skips = append(skips, domain.Skip{Stage: "deriving_transitions", Unit: issue.Key, Reason: err.Error()})
            continue
        }
        out = append(out, FromHistories(issue.Key, histories, mode)...)
    }
    e.log.Info().Int("count", len(out)).Msg("extracted transitions")
    return out, skips
}

// FromHistories derives the ordered transitions of one issue from its raw,
// unordered history entries. Only status-field changes are considered.
func FromHistories(issueKey string, histories []domain.RawHistory, mode Mode) []domain.Transition {
    var changes []domain.Transition
    for _, h := range histories {
        at := ParseTime(h.Created)
        if at == nil { continue }
        author := "Unknown"
        if name := userName(h.Author); name != nil { author = *name }
        for _, item := range h.Items {
            if item.Field == nil || *item.Field != "status" { continue }
            from, to := "Unknown", "Unknown"
            if item.FromString != nil { from = *item.FromString }
            if item.ToString != nil { to = *item.ToString }
            changes = append(changes, domain.Transition{
                IssueKey:   issueKey,
                FromStatus: from,
                ToStatus:   to,
                At:         *at,
                Author:     author,
            })
        }
    }
    if mode == ModeIndependent { return changes }

    sort.Slice(changes, func(i, j int) bool { return changes[i].At.Before(changes[j].At) })
    for i := range changes {
        if i+1 < len(changes) {
            hours := round2(changes[i+1].At.Sub(changes[i].At).Hours())
            changes[i].DwellHours = &hours
        }
    }
    return changes
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
