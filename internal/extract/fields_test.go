package extract

import (
    "encoding/json"
    "testing"
    "time"

    "github.com/Integratz/jira-flow-etl/internal/domain"
)

func strp(s string) *string { return &s }

var pointSlots = []string{"customfield_10016", "customfield_10002", "customfield_10004"}

func TestNormalize_AllOptionalFieldsMissing(t *testing.T) {
    now := time.Now().UTC()
    got := Normalize(domain.RawIssue{Key: "TEST-1"}, pointSlots, now)

    if got.Key != "TEST-1" { t.Fatalf("key = %q", got.Key) }
    if got.Summary != "" || got.Description != "" { t.Fatalf("expected empty text fields, got %+v", got) }
    if got.Status != "Unknown" || got.IssueType != "Unknown" {
        t.Fatalf("expected Unknown categorical defaults, got status=%q type=%q", got.Status, got.IssueType)
    }
    if got.Assignee != nil || got.Reporter != nil || got.Priority != nil || got.Resolution != nil {
        t.Fatalf("expected nil optional scalars, got %+v", got)
    }
    if got.Created != nil || got.Updated != nil || got.StoryPoints != nil {
        t.Fatalf("expected nil timestamps and points, got %+v", got)
    }
    if got.Labels == nil || len(got.Labels) != 0 { t.Fatalf("labels = %#v", got.Labels) }
    if got.Components == nil || len(got.Components) != 0 { t.Fatalf("components = %#v", got.Components) }
    if !got.ExtractedAt.Equal(now) { t.Fatalf("extracted at = %v", got.ExtractedAt) }
}

func TestNormalize_FullFields(t *testing.T) {
    fields := &domain.RawFields{
        Summary:    strp("fix pagination"),
        Status:     &domain.RawNamed{Name: strp("In Progress")},
        Assignee:   &domain.RawUser{DisplayName: strp("Alice")},
        Reporter:   &domain.RawUser{Name: strp("bob")},
        Priority:   &domain.RawNamed{Name: strp("High")},
        IssueType:  &domain.RawNamed{Name: strp("Bug")},
        Created:    strp("2025-03-01T10:30:00.000+0000"),
        Updated:    strp("2025-03-02T08:00:00.000+0000"),
        Resolution: &domain.RawNamed{Name: strp("Done")},
        Labels:     []string{"backend"},
        Components: []domain.RawNamed{{Name: strp("api")}, {}},
    }
    fields.SetCustom("customfield_10016", json.RawMessage("3"))
    got := Normalize(domain.RawIssue{Key: "TEST-2", Fields: fields}, pointSlots, time.Now().UTC())

    if got.Summary != "fix pagination" || got.Status != "In Progress" || got.IssueType != "Bug" {
        t.Fatalf("unexpected normalized record %+v", got)
    }
    if got.Assignee == nil || *got.Assignee != "Alice" { t.Fatalf("assignee = %v", got.Assignee) }
    if got.Reporter == nil || *got.Reporter != "bob" { t.Fatalf("reporter = %v", got.Reporter) }
    if got.Created == nil || got.Created.UTC().Format("2006-01-02") != "2025-03-01" {
        t.Fatalf("created = %v", got.Created)
    }
    if got.StoryPoints == nil || *got.StoryPoints != 3 { t.Fatalf("points = %v", got.StoryPoints) }
    if len(got.Components) != 1 || got.Components[0] != "api" { t.Fatalf("components = %#v", got.Components) }
}

func TestStoryPoints_FirstNumericWins(t *testing.T) {
    f := &domain.RawFields{}
    f.SetCustom("customfield_10016", json.RawMessage("null"))
    f.SetCustom("customfield_10002", json.RawMessage(`"abc"`))
    f.SetCustom("customfield_10004", json.RawMessage("5.0"))

    got := StoryPoints(f, pointSlots)
    if got == nil || *got != 5.0 { t.Fatalf("expected 5.0, got %v", got) }
}

func TestStoryPoints_NoneNumeric(t *testing.T) {
    f := &domain.RawFields{}
    f.SetCustom("customfield_10016", json.RawMessage("null"))
    if got := StoryPoints(f, pointSlots); got != nil { t.Fatalf("expected nil, got %v", got) }
    if got := StoryPoints(&domain.RawFields{}, pointSlots); got != nil { t.Fatalf("expected nil for absent slots, got %v", got) }
}

func TestFlattenDescription(t *testing.T) {
    if got := FlattenDescription(json.RawMessage(`"plain text"`)); got != "plain text" {
        t.Fatalf("plain = %q", got)
    }
    adf := `{"type":"doc","version":1,"content":[
        {"type":"paragraph","content":[{"type":"text","text":"first line"}]},
        {"type":"paragraph","content":[{"type":"text","text":"second "},{"type":"text","text":"line"}]}
    ]}`
    if got := FlattenDescription(json.RawMessage(adf)); got != "first line\nsecond line" {
        t.Fatalf("adf = %q", got)
    }
    if got := FlattenDescription(nil); got != "" { t.Fatalf("nil = %q", got) }
    if got := FlattenDescription(json.RawMessage("null")); got != "" { t.Fatalf("null = %q", got) }
    if got := FlattenDescription(json.RawMessage(`{"broken`)); got != "" { t.Fatalf("malformed = %q", got) }
}

func TestParseTime(t *testing.T) {
    if got := ParseTime(strp("2025-03-01T10:30:00.000+0330")); got == nil {
        t.Fatal("expected jira layout to parse")
    }
    if got := ParseTime(strp("2025-03-01T10:30:00Z")); got == nil {
        t.Fatal("expected RFC3339 to parse")
    }
    if got := ParseTime(strp("yesterday")); got != nil { t.Fatalf("expected nil, got %v", got) }
    if got := ParseTime(nil); got != nil { t.Fatalf("expected nil, got %v", got) }
}
