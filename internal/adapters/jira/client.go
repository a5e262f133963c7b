/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "os"
    "strings"
    "sync"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/config"
    "github.com/Integratz/jira-flow-etl/internal/domain"
    "github.com/rs/zerolog"
)

// issueFields is the field set requested on every search and issue fetch.
const issueFields = "summary,description,status,assignee,reporter,priority,issuetype,created,updated,resolution,labels,components,customfield_10016,customfield_10002,customfield_10004"

type Client struct {
    baseURL string
    token   string
    basic   string
    user    string
    pass    string
    http    *http.Client

    mu       sync.Mutex
    fallback bool // sticky: bulk search endpoint rejected, use legacy search

    log zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.JiraBaseURL,
        token:   cfg.JiraPAT,
        basic:   getenvBasic(),
        user:    cfg.JiraUsername,
        pass:    cfg.JiraAPIToken,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
    }
}

// getenvBasic reads JIRA_BASIC_AUTH from environment if present (format: user:pass base64), optional
func getenvBasic() string {
    v := ""
    if s := strings.TrimSpace(os.Getenv("JIRA_BASIC_AUTH")); s != "" { v = s }
    return v
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
    Code int
    Body string
}

func (e *StatusError) Error() string {
    return fmt.Sprintf("jira api status=%d body=%s", e.Code, e.Body)
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) do(ctx context.Context, method, u string, body, out any) error {
    if c.baseURL == "" { return errors.New("jira: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        if attempt > 0 {
            // backoff
            time.Sleep(time.Duration(300*(1<<(attempt-1))) * time.Millisecond)
        }
        var r io.Reader
        if payload != nil { r = strings.NewReader(string(payload)) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        } else if c.basic != "" {
            req.Header.Set("Authorization", "Basic "+c.basic)
        }
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err; continue }
        if resp.StatusCode >= 300 {
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
            // retry on 429/5xx only
            if resp.StatusCode == 429 || resp.StatusCode >= 500 { lastErr = serr; continue }
            return serr
        }
        err = json.NewDecoder(resp.Body).Decode(out)
        resp.Body.Close()
        return err
    }
    return lastErr
}

type searchResponse struct {
    Issues []domain.RawIssue `json:"issues"`
    Total  *int              `json:"total"`
}

// SearchPage fetches one page of issues for the given JQL. It prefers the
// newer bulk endpoint (POST /rest/api/3/search/jql) and falls back to the
// legacy search endpoint when the bulk one answers with an error status; the
// fallback sticks for the lifetime of the client.
func (c *Client) SearchPage(ctx context.Context, jql string, startAt, max int) (domain.SearchPage, error) {
    if jql == "" { return domain.SearchPage{}, errors.New("jira: empty jql") }
    c.mu.Lock()
    useFallback := c.fallback
    c.mu.Unlock()

    if !useFallback {
        body := map[string]any{
            "jql":        jql,
            "startAt":    startAt,
            "maxResults": max,
            "fields":     strings.Split(issueFields, ","),
        }
        var out searchResponse
        err := c.do(ctx, http.MethodPost, c.apiURL("/rest/api/3/search/jql", nil), body, &out)
        if err == nil { return pageOf(out), nil }
        var serr *StatusError
        if !errors.As(err, &serr) { return domain.SearchPage{}, err }
        c.log.Warn().Int("status", serr.Code).Msg("bulk search endpoint unavailable, falling back to legacy search")
        c.mu.Lock()
        c.fallback = true
        c.mu.Unlock()
    }

    q := url.Values{}
    q.Set("jql", jql)
    if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
    if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
    q.Set("fields", issueFields)
    var out searchResponse
    if err := c.do(ctx, http.MethodGet, c.apiURL("/rest/api/3/search", q), nil, &out); err != nil {
        return domain.SearchPage{}, err
    }
    return pageOf(out), nil
}

func pageOf(r searchResponse) domain.SearchPage {
    total := -1
    if r.Total != nil { total = *r.Total }
    return domain.SearchPage{Issues: r.Issues, Total: total}
}

// IssueChangelog fetches the full change history of one issue.
func (c *Client) IssueChangelog(ctx context.Context, key string) ([]domain.RawHistory, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    q := url.Values{}
    q.Set("expand", "changelog")
    q.Set("fields", "key")
    u := c.apiURL("/rest/api/3/issue/"+url.PathEscape(key), q)
    var out struct {
        Changelog *domain.RawChangelog `json:"changelog"`
    }
    if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil { return nil, err }
    if out.Changelog == nil { return nil, nil }
    return out.Changelog.Histories, nil
}

// ServerInfo probes the upstream and reports its base URL and version.
func (c *Client) ServerInfo(ctx context.Context) (baseURL, version string, err error) {
    var out struct {
        BaseURL string `json:"baseUrl"`
        Version string `json:"version"`
    }
    if err := c.do(ctx, http.MethodGet, c.apiURL("/rest/api/3/serverInfo", nil), nil, &out); err != nil {
        return "", "", err
    }
    return out.BaseURL, out.Version, nil
}
