package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Issue is one finding reported by the AI reviewer.
type Issue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
	CodeSnippet string `json:"code_snippet"`
}

// UnmarshalJSON accepts line as a number, a numeric string or a range such as
// "12-15", keeping the first line. Any other value leaves Line at zero.
func (i *Issue) UnmarshalJSON(data []byte) error {
	type plain Issue
	aux := struct {
		*plain
		Line json.RawMessage `json:"line"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.Line = parseLine(aux.Line)
	return nil
}

func parseLine(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return max(int(n), 0)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 || (start > 0 && s[start-1] == '-' && strings.TrimSpace(s[:start-1]) == "") {
		return 0
	}
	digits := s[start:]
	if end := strings.IndexFunc(digits, func(r rune) bool { return !unicode.IsDigit(r) }); end >= 0 {
		digits = digits[:end]
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return v
}

// FileChange is one file touched by a commit.
type FileChange struct {
	ChangeType ChangeType `json:"change_type"`
	Path       string     `json:"path"`
	OldPath    string     `json:"old_path,omitempty"`
	IsCritical bool       `json:"is_critical"`
}

// CommitRef identifies a commit discovered on a branch.
type CommitRef struct {
	Hash        string
	Branch      string
	Message     string
	Author      string
	AuthorEmail string
	CommittedAt time.Time
}

// ShortHash returns the first eight characters of the hash.
func (c CommitRef) ShortHash() string {
	return ShortHash(c.Hash)
}

// ShortHash truncates a commit hash to eight characters.
func ShortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// ReviewResult is the AI engine's verdict on one commit.
type ReviewResult struct {
	Score   float64
	Level   RiskLevel
	Content string
	Summary string
	Issues  []Issue
	Praise  []string
	Model   string

	// FreeForm is set when the model's response could not be parsed as JSON.
	FreeForm bool
	// Degraded is set when the model could not be reached at all.
	Degraded bool
}

// CodeReviewRecord is the persisted review of one commit. At most one exists
// per (RepositoryID, CommitHash).
type CodeReviewRecord struct {
	ID            int64
	RepositoryID  int64
	CommitHash    string
	Branch        string
	CommitMessage string
	Author        string
	AuthorEmail   string
	CommittedAt   time.Time

	TriggerMode TriggerMode
	TriggeredBy string

	RiskScore float64
	RiskLevel RiskLevel
	AIContent string
	AIModel   string
	Summary   string
	Issues    []Issue
	Praise    []string
	Files     []FileChange
	DiffText  string

	LinesAdded   int
	LinesDeleted int
	LinesChanged int

	Feedback        FeedbackStatus
	FeedbackComment string
	FeedbackBy      string
	FeedbackAt      *time.Time

	Notified   bool
	NotifiedAt *time.Time

	CreatedAt time.Time
}

// Feedback is a human verdict applied to a review record.
type Feedback struct {
	Status  FeedbackStatus
	Comment string
	By      string
}
