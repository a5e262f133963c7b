package domain

import (
    "encoding/json"
    "strings"
)

// Raw* types model the upstream search/changelog payloads as a typed-optional
// tree: every nested field is explicitly nilable, and custom fields are kept
// as raw JSON so story-point slot probing stays schema-agnostic.

type RawIssue struct {
    Key    string     `json:"key"`
    Fields *RawFields `json:"fields"`
}

type RawFields struct {
    Summary     *string         `json:"summary"`
    Description json.RawMessage `json:"description"` // plain string or ADF document
    Status      *RawNamed       `json:"status"`
    Assignee    *RawUser        `json:"assignee"`
    Reporter    *RawUser        `json:"reporter"`
    Priority    *RawNamed       `json:"priority"`
    IssueType   *RawNamed       `json:"issuetype"`
    Created     *string         `json:"created"`
    Updated     *string         `json:"updated"`
    Resolution  *RawNamed       `json:"resolution"`
    Labels      []string        `json:"labels"`
    Components  []RawNamed      `json:"components"`

    custom map[string]json.RawMessage
}

func (f *RawFields) UnmarshalJSON(b []byte) error {
    type alias RawFields
    var a alias
    if err := json.Unmarshal(b, &a); err != nil { return err }
    *f = RawFields(a)
    var m map[string]json.RawMessage
    if err := json.Unmarshal(b, &m); err == nil {
        for k, v := range m {
            if !strings.HasPrefix(k, "customfield_") { continue }
            if f.custom == nil { f.custom = map[string]json.RawMessage{} }
            f.custom[k] = v
        }
    }
    return nil
}

// Custom returns the raw JSON of a customfield_* slot, or nil when absent.
func (f *RawFields) Custom(id string) json.RawMessage {
    if f == nil || f.custom == nil { return nil }
    return f.custom[id]
}

// SetCustom exists for building raw issues in tests and fakes.
func (f *RawFields) SetCustom(id string, v json.RawMessage) {
    if f.custom == nil { f.custom = map[string]json.RawMessage{} }
    f.custom[id] = v
}

type RawNamed struct {
    Name *string `json:"name"`
}

type RawUser struct {
    DisplayName *string `json:"displayName"`
    Name        *string `json:"name"`
}

type RawChangelog struct {
    Histories []RawHistory `json:"histories"`
}

type RawHistory struct {
    Created *string          `json:"created"`
    Author  *RawUser         `json:"author"`
    Items   []RawHistoryItem `json:"items"`
}

type RawHistoryItem struct {
    Field      *string `json:"field"`
    FromString *string `json:"fromString"`
    ToString   *string `json:"toString"`
}

// SearchPage is one page of raw search results. Total is -1 when the upstream
// variant does not report a total count.
type SearchPage struct {
    Issues []RawIssue
    Total  int
}
