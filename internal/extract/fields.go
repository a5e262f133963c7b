/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package extract

import (
    "encoding/json"
    "strings"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
)

// jiraTime is the timestamp layout Jira uses in fields and changelogs.
const jiraTime = "2006-01-02T15:04:05.000-0700"

// ParseTime parses an upstream timestamp, accepting the Jira layout and
// RFC 3339. Returns nil on malformed or absent input.
func ParseTime(s *string) *time.Time {
    if s == nil || strings.TrimSpace(*s) == "" { return nil }
    if t, err := time.Parse(jiraTime, *s); err == nil { return &t }
    if t, err := time.Parse(time.RFC3339, *s); err == nil { return &t }
    return nil
}

// Normalize flattens one raw issue into a fully-defaulted record. Every
// recognized field gets a defined value: empty string for text, nil for
// optional scalars, empty slice for collections, "Unknown" for status and
// issue type. It never fails; a malformed field degrades to its default
// without touching the others.
func Normalize(raw domain.RawIssue, pointSlots []string, now time.Time) domain.Issue {
    out := domain.Issue{
        Key:         raw.Key,
        Status:      "Unknown",
        IssueType:   "Unknown",
        Labels:      []string{},
        Components:  []string{},
        ExtractedAt: now,
    }
    f := raw.Fields
    if f == nil { return out }

    if f.Summary != nil { out.Summary = *f.Summary }
    out.Description = FlattenDescription(f.Description)
    if name := namedValue(f.Status); name != nil { out.Status = *name }
    if name := namedValue(f.IssueType); name != nil { out.IssueType = *name }
    out.Assignee = userName(f.Assignee)
    out.Reporter = userName(f.Reporter)
    out.Priority = namedValue(f.Priority)
    out.Resolution = namedValue(f.Resolution)
    out.Created = ParseTime(f.Created)
    out.Updated = ParseTime(f.Updated)
    out.StoryPoints = StoryPoints(f, pointSlots)
    if f.Labels != nil { out.Labels = f.Labels }
    for _, c := range f.Components {
        if c.Name != nil { out.Components = append(out.Components, *c.Name) }
    }
    return out
}

// StoryPoints probes the candidate custom-field slots in order and returns
// the first numeric value found. Non-numeric values count as absent.
func StoryPoints(f *domain.RawFields, slots []string) *float64 {
    for _, slot := range slots {
        rawVal := f.Custom(slot)
        if rawVal == nil || string(rawVal) == "null" { continue }
        var v float64
        if err := json.Unmarshal(rawVal, &v); err != nil { continue }
        return &v
    }
    return nil
}

// FlattenDescription turns a raw description into plain text. The source is
// either a plain JSON string or an Atlassian Document Format tree, whose
// text nodes get concatenated paragraph by paragraph.
func FlattenDescription(raw json.RawMessage) string {
    if len(raw) == 0 || string(raw) == "null" { return "" }
    var s string
    if err := json.Unmarshal(raw, &s); err == nil { return s }
    var doc adfNode
    if err := json.Unmarshal(raw, &doc); err != nil { return "" }
    var b strings.Builder
    doc.write(&b)
    return strings.TrimSpace(b.String())
}

type adfNode struct {
    Type    string    `json:"type"`
    Text    string    `json:"text"`
    Content []adfNode `json:"content"`
}

func (n adfNode) write(b *strings.Builder) {
    if n.Text != "" { b.WriteString(n.Text) }
    for _, c := range n.Content {
        c.write(b)
    }
    switch n.Type {
    case "paragraph", "heading", "blockquote", "listItem", "codeBlock":
        b.WriteString("\n")
    case "hardBreak":
        b.WriteString("\n")
    }
}

func namedValue(n *domain.RawNamed) *string {
    if n == nil || n.Name == nil { return nil }
    return n.Name
}

func userName(u *domain.RawUser) *string {
    if u == nil { return nil }
    if u.DisplayName != nil { return u.DisplayName }
    return u.Name
}
