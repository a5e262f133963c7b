/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"

    "github.com/Integratz/jira-flow-etl/internal/config"
    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/Integratz/jira-flow-etl/internal/services"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

// Runner is the slice of the service the HTTP surface needs.
type Runner interface {
    RunExtraction(ctx context.Context) error
    LastRun() *domain.RunReport
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc Runner
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc Runner) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr := h.svc.LastRun()
    if lr == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "no run yet"})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func() {
        if err := h.svc.RunExtraction(context.Background()); err != nil && !errors.Is(err, services.ErrRunInProgress) {
            h.log.Error().Err(err).Msg("on-demand run failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
