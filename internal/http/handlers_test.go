package http

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/config"
    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/rs/zerolog"
)

type fakeRunner struct {
    mu   sync.Mutex
    runs int
    last *domain.RunReport
}

func (f *fakeRunner) RunExtraction(context.Context) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.runs++
    return nil
}

func (f *fakeRunner) LastRun() *domain.RunReport {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.last
}

func TestHealthz(t *testing.T) {
    r := NewRouter(config.Config{}, zerolog.Nop(), &fakeRunner{})
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if w.Code != http.StatusOK { t.Fatalf("status = %d", w.Code) }
}

func TestLastRun_NotFoundBeforeFirstRun(t *testing.T) {
    r := NewRouter(config.Config{}, zerolog.Nop(), &fakeRunner{})
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/last-run", nil))
    if w.Code != http.StatusNotFound { t.Fatalf("status = %d", w.Code) }
}

func TestLastRun_ReturnsReport(t *testing.T) {
    runner := &fakeRunner{last: &domain.RunReport{Stage: "done", Success: true, IssuesFetched: 7}}
    r := NewRouter(config.Config{}, zerolog.Nop(), runner)
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/last-run", nil))

    if w.Code != http.StatusOK { t.Fatalf("status = %d", w.Code) }
    var got domain.RunReport
    if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil { t.Fatalf("decode: %v", err) }
    if got.Stage != "done" || !got.Success || got.IssuesFetched != 7 {
        t.Fatalf("report = %+v", got)
    }
}

func TestRunNow_QueuesBackgroundRun(t *testing.T) {
    runner := &fakeRunner{}
    r := NewRouter(config.Config{}, zerolog.Nop(), runner)
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/run", nil))

    if w.Code != http.StatusAccepted { t.Fatalf("status = %d", w.Code) }
    deadline := time.Now().Add(time.Second)
    for {
        runner.mu.Lock()
        runs := runner.runs
        runner.mu.Unlock()
        if runs == 1 { break }
        if time.Now().After(deadline) { t.Fatalf("runs = %d, want the queued run to start", runs) }
        time.Sleep(5 * time.Millisecond)
    }
}
