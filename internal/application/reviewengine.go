package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
	"github.com/ericfisherdev/commitreview/internal/domain/port/driven"
)

const (
	// maxPromptDiff bounds the diff quoted in the prompt, in characters.
	maxPromptDiff = 15000

	defaultSummary = "AI review completed"
)

const systemPrompt = `You are a senior code reviewer. Review the commit you are given for security, performance, reliability and maintainability problems.

Answer with a single JSON object inside a ` + "```json" + ` fenced block:
{
  "summary": "one paragraph overall assessment",
  "issues": [
    {"type": "security|performance|reliability|maintainability", "severity": "high|medium|low",
     "file": "path", "line": 0, "description": "...", "suggestion": "...", "code_snippet": "..."}
  ],
  "praise": ["..."],
  "ai_content": "the full review in markdown"
}`

var fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.+?)\\n\\s*```")

// ReviewEngine asks a reasoning model to review one commit and scores the
// answer. It never fails: an unreachable model yields a degraded result.
type ReviewEngine struct {
	reviewer driven.Reviewer
	timeout  time.Duration
}

// NewReviewEngine creates a ReviewEngine. A zero timeout defaults to 60s.
func NewReviewEngine(reviewer driven.Reviewer, timeout time.Duration) *ReviewEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ReviewEngine{reviewer: reviewer, timeout: timeout}
}

// Review builds the prompt, calls the model and classifies the result.
func (e *ReviewEngine) Review(ctx context.Context, diff string, files []model.FileChange, commitMessage string) model.ReviewResult {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.reviewer.Complete(callCtx, systemPrompt, buildPrompt(diff, files, commitMessage))
	if err != nil {
		msg := fmt.Sprintf("AI review unavailable: %v", err)
		slog.Error("reviewer call failed", "model", e.reviewer.Model(), "error", err)
		return model.ReviewResult{
			Score:    0,
			Level:    model.RiskLow,
			Content:  msg,
			Summary:  msg,
			Issues:   []model.Issue{},
			Praise:   []string{},
			Model:    e.reviewer.Model(),
			Degraded: true,
		}
	}

	result := parseReview(raw)
	result.Model = e.reviewer.Model()
	result.Score = Classify(result.Issues, files)
	result.Level = model.LevelFor(result.Score)
	return result
}

func buildPrompt(diff string, files []model.FileChange, commitMessage string) string {
	var b strings.Builder

	b.WriteString("## Commit message\n")
	b.WriteString(commitMessage)
	fmt.Fprintf(&b, "\n\n## Changed files (%d)\n", len(files))
	for _, f := range files {
		fmt.Fprintf(&b, "- [%s] %s", f.ChangeType, f.Path)
		if f.IsCritical {
			b.WriteString(" [CRITICAL]")
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n## Diff\n```diff\n")
	b.WriteString(truncateDiff(diff, maxPromptDiff))
	b.WriteString("\n```\n")
	return b.String()
}

// truncateDiff keeps the first limit characters of diff and appends a marker
// saying how many were dropped. It never splits a multi-byte character.
func truncateDiff(diff string, limit int) string {
	total := utf8.RuneCountInString(diff)
	if total <= limit {
		return diff
	}

	cut, n := 0, 0
	for i := range diff {
		if n == limit {
			cut = i
			break
		}
		n++
	}
	return fmt.Sprintf("%s\n... [diff truncated, %d more characters]", diff[:cut], total-limit)
}

// reviewPayload is the JSON shape the model is asked to produce.
type reviewPayload struct {
	Summary   *string       `json:"summary"`
	Issues    []model.Issue `json:"issues"`
	Praise    []string      `json:"praise"`
	AIContent string        `json:"ai_content"`
}

// parseReview extracts a structured review from a model response: a fenced
// json block first, then the whole body, else the response is kept as
// free-form text with empty findings.
func parseReview(raw string) model.ReviewResult {
	payload, ok := decodePayload(raw)
	if !ok {
		return model.ReviewResult{
			Content:  raw,
			Summary:  defaultSummary,
			Issues:   []model.Issue{},
			Praise:   []string{},
			FreeForm: true,
		}
	}

	result := model.ReviewResult{
		Content: payload.AIContent,
		Summary: defaultSummary,
		Issues:  payload.Issues,
		Praise:  payload.Praise,
	}
	if payload.Summary != nil {
		result.Summary = *payload.Summary
	}
	if result.Content == "" {
		result.Content = raw
	}
	if result.Issues == nil {
		result.Issues = []model.Issue{}
	}
	if result.Praise == nil {
		result.Praise = []string{}
	}
	return result
}

func decodePayload(raw string) (reviewPayload, bool) {
	var p reviewPayload
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &p); err == nil {
			return p, true
		}
	}

	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		p = reviewPayload{}
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil {
			return p, true
		}
	}
	return reviewPayload{}, false
}
