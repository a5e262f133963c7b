package jobs

import (
    "context"
    "errors"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/config"
    "github.com/Integratz/jira-flow-etl/internal/services"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type runner interface { RunExtraction(ctx context.Context) error }

type Cron struct {
    cfg config.Config
    log zerolog.Logger
    svc runner
    c   *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc runner) *Cron {
    c := cron.New(cron.WithLocation(location(cfg.TZ)), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, c: c}
    _, _ = c.AddFunc(cfg.ExtractCron, cr.extract)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// location resolves the configured timezone, falling back to UTC so a bad
// APP_TZ cannot hand the scheduler a nil location.
func location(tz string) *time.Location {
    loc, err := time.LoadLocation(tz)
    if err != nil { return time.UTC }
    return loc
}

func (cr *Cron) extract() {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute); defer cancel()
    cr.log.Info().Msg("cron: scheduled extraction")
    if err := cr.svc.RunExtraction(ctx); err != nil {
        if errors.Is(err, services.ErrRunInProgress) {
            cr.log.Info().Msg("cron: run already in progress, skipping")
            return
        }
        cr.log.Error().Err(err).Msg("cron: extraction failed")
    }
}
