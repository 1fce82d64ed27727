// Package viewmodel holds the presentation types rendered by the review page.
package viewmodel

import "html/template"

// ReviewPage is everything the review detail template needs.
type ReviewPage struct {
	ID             int64
	RepositoryName string
	CommitHash     string
	ShortHash      string
	Branch         string
	Author         string
	AuthorEmail    string
	CommittedAt    string
	CommitMessage  string

	RiskLevel   string
	RiskPercent int
	RiskClass   string
	AIModel     string
	TriggerMode string

	Summary template.HTML
	Content template.HTML
	Issues  []Issue
	Praise  []string
	Files   []File
	Diff    template.HTML

	LinesAdded   int
	LinesDeleted int

	Feedback        string
	FeedbackComment string
	FeedbackBy      string
	FeedbackOptions []string
	CSRFToken       string
}

// Issue is one reported problem.
type Issue struct {
	Severity    string
	Type        string
	Location    string
	Description string
	Suggestion  string
}

// File is one changed file.
type File struct {
	ChangeType string
	Path       string
	OldPath    string
	IsCritical bool
}
