/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/adapters/jira"
    "github.com/Integratz/jira-flow-etl/internal/config"
    apphttp "github.com/Integratz/jira-flow-etl/internal/http"
    "github.com/Integratz/jira-flow-etl/internal/jobs"
    "github.com/Integratz/jira-flow-etl/internal/logger"
    "github.com/Integratz/jira-flow-etl/internal/services"
    "github.com/Integratz/jira-flow-etl/internal/sink"
    "github.com/rs/zerolog"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // Sink: one shared connection per process, released on exit
    dst, err := openSink(ctx, cfg, log)
    if err != nil {
        log.Fatal().Err(err).Str("sink", cfg.SinkKind).Msg("sink open failed")
    }
    defer dst.Close()

    // Adapters
    jc := jira.NewClient(cfg, log)

    // Service
    svc := services.New(cfg, log, jc, dst)

    // HTTP server (Gin)
    router := apphttp.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc)
    cron.Start()
    defer cron.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}

func openSink(ctx context.Context, cfg config.Config, log zerolog.Logger) (sink.Sink, error) {
    switch cfg.SinkKind {
    case "postgres":
        return sink.OpenPostgres(ctx, cfg.DBDSN, cfg.TablePrefix, log)
    case "redis":
        return sink.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.TablePrefix, log)
    default:
        return nil, fmt.Errorf("unknown sink kind %q", cfg.SinkKind)
    }
}
