/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/config"
    "github.com/rs/zerolog"
)

func newTestClient(baseURL string) *Client {
    cfg := config.Config{JiraBaseURL: baseURL, JiraPAT: "token", HTTPTimeout: 5 * time.Second}
    return NewClient(cfg, zerolog.Nop())
}

func TestSearchPage_BulkEndpoint(t *testing.T) {
    var gotPath, gotAuth string
    var gotBody map[string]any
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotPath = r.URL.Path
        gotAuth = r.Header.Get("Authorization")
        if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil { t.Errorf("body: %v", err) }
        w.Write([]byte(`{"issues":[{"key":"TEST-1"}],"total":1}`))
    }))
    defer srv.Close()

    page, err := newTestClient(srv.URL).SearchPage(context.Background(), "project = TEST", 0, 50)
    if err != nil { t.Fatalf("search: %v", err) }
    if gotPath != "/rest/api/3/search/jql" { t.Fatalf("path = %q", gotPath) }
    if gotAuth != "Bearer token" { t.Fatalf("auth = %q", gotAuth) }
    if gotBody["jql"] != "project = TEST" { t.Fatalf("jql = %v", gotBody["jql"]) }
    // changelogs are fetched per issue, search must not ask for the expansion
    if _, ok := gotBody["expand"]; ok { t.Fatalf("unexpected expand in search body: %v", gotBody["expand"]) }
    if len(page.Issues) != 1 || page.Issues[0].Key != "TEST-1" { t.Fatalf("page = %+v", page) }
    if page.Total != 1 { t.Fatalf("total = %d", page.Total) }
}

func TestSearchPage_StickyFallbackToLegacySearch(t *testing.T) {
    var bulkHits, legacyHits int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/rest/api/3/search/jql":
            atomic.AddInt32(&bulkHits, 1)
            http.Error(w, "no such endpoint", http.StatusNotFound)
        case "/rest/api/3/search":
            atomic.AddInt32(&legacyHits, 1)
            if r.URL.Query().Get("jql") == "" { t.Error("missing jql query param") }
            if r.URL.Query().Get("expand") != "" { t.Error("unexpected expand in legacy search") }
            w.Write([]byte(`{"issues":[{"key":"TEST-1"}],"total":1}`))
        default:
            t.Errorf("unexpected path %q", r.URL.Path)
        }
    }))
    defer srv.Close()

    c := newTestClient(srv.URL)
    for i := 0; i < 2; i++ {
        page, err := c.SearchPage(context.Background(), "project = TEST", 0, 50)
        if err != nil { t.Fatalf("search %d: %v", i, err) }
        if len(page.Issues) != 1 { t.Fatalf("search %d: page = %+v", i, page) }
    }
    // The 404 is not retried and the fallback sticks, so the bulk endpoint is
    // probed exactly once across both searches.
    if bulkHits != 1 { t.Fatalf("bulk hits = %d, want 1", bulkHits) }
    if legacyHits != 2 { t.Fatalf("legacy hits = %d, want 2", legacyHits) }
}

func TestDo_RetriesOnRateLimit(t *testing.T) {
    var hits int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if atomic.AddInt32(&hits, 1) < 3 {
            http.Error(w, "slow down", http.StatusTooManyRequests)
            return
        }
        w.Write([]byte(`{"baseUrl":"https://jira.test","version":"9.12.0"}`))
    }))
    defer srv.Close()

    base, version, err := newTestClient(srv.URL).ServerInfo(context.Background())
    if err != nil { t.Fatalf("server info: %v", err) }
    if hits != 3 { t.Fatalf("hits = %d, want 2 retries", hits) }
    if base != "https://jira.test" || version != "9.12.0" { t.Fatalf("got %q %q", base, version) }
}

func TestDo_GivesUpAfterThreeAttempts(t *testing.T) {
    var hits int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        atomic.AddInt32(&hits, 1)
        http.Error(w, "boom", http.StatusInternalServerError)
    }))
    defer srv.Close()

    _, _, err := newTestClient(srv.URL).ServerInfo(context.Background())
    if err == nil { t.Fatal("expected error") }
    if hits != 3 { t.Fatalf("hits = %d, want 3 attempts", hits) }
    var serr *StatusError
    if !errors.As(err, &serr) || serr.Code != 500 { t.Fatalf("err = %v", err) }
}

func TestDo_NoRetryOnClientError(t *testing.T) {
    var hits int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        atomic.AddInt32(&hits, 1)
        http.Error(w, "bad jql", http.StatusBadRequest)
    }))
    defer srv.Close()

    _, err := newTestClient(srv.URL).IssueChangelog(context.Background(), "TEST-1")
    if err == nil { t.Fatal("expected error") }
    if hits != 1 { t.Fatalf("hits = %d, want no retries on 400", hits) }
}

func TestIssueChangelog(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/rest/api/3/issue/TEST-1" { t.Errorf("path = %q", r.URL.Path) }
        if r.URL.Query().Get("expand") != "changelog" { t.Error("missing changelog expand") }
        w.Write([]byte(`{"changelog":{"histories":[
            {"created":"2025-03-01T10:00:00.000+0000","items":[{"field":"status","fromString":"To Do","toString":"Done"}]}
        ]}}`))
    }))
    defer srv.Close()

    histories, err := newTestClient(srv.URL).IssueChangelog(context.Background(), "TEST-1")
    if err != nil { t.Fatalf("changelog: %v", err) }
    if len(histories) != 1 || len(histories[0].Items) != 1 {
        t.Fatalf("histories = %+v", histories)
    }
    if got := *histories[0].Items[0].Field; got != "status" { t.Fatalf("field = %q", got) }
}

func TestIssueChangelog_EmptyKey(t *testing.T) {
    if _, err := newTestClient("http://unused").IssueChangelog(context.Background(), ""); err == nil {
        t.Fatal("expected error for empty key")
    }
}
