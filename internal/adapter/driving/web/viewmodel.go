package web

import (
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	vm "github.com/ericfisherdev/commitreview/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

var feedbackOptions = []string{
	string(model.FeedbackPending),
	string(model.FeedbackCorrect),
	string(model.FeedbackFalsePositive),
	string(model.FeedbackMissed),
}

// trustedHTML marks output of RenderMarkdown or RenderDiff, which is already
// sanitized or escaped, as safe for the template.
func trustedHTML(s string) template.HTML {
	return template.HTML(s) //nolint:gosec
}

// toReviewPage converts a review record into the page view model.
func toReviewPage(rec model.CodeReviewRecord, repoName, csrf string) vm.ReviewPage {
	page := vm.ReviewPage{
		ID:              rec.ID,
		RepositoryName:  repoName,
		CommitHash:      rec.CommitHash,
		ShortHash:       model.ShortHash(rec.CommitHash),
		Branch:          rec.Branch,
		Author:          rec.Author,
		AuthorEmail:     rec.AuthorEmail,
		CommitMessage:   rec.CommitMessage,
		RiskLevel:       string(rec.RiskLevel),
		RiskPercent:     int(math.Round(rec.RiskScore * 100)),
		RiskClass:       "risk-" + strings.ToLower(string(rec.RiskLevel)),
		AIModel:         rec.AIModel,
		TriggerMode:     string(rec.TriggerMode),
		Summary:         trustedHTML(RenderMarkdown(rec.Summary)),
		Content:         trustedHTML(RenderMarkdown(rec.AIContent)),
		Praise:          rec.Praise,
		Diff:            trustedHTML(RenderDiff(rec.DiffText)),
		LinesAdded:      rec.LinesAdded,
		LinesDeleted:    rec.LinesDeleted,
		Feedback:        string(rec.Feedback),
		FeedbackComment: rec.FeedbackComment,
		FeedbackBy:      rec.FeedbackBy,
		FeedbackOptions: feedbackOptions,
		CSRFToken:       csrf,
	}
	if !rec.CommittedAt.IsZero() {
		page.CommittedAt = rec.CommittedAt.UTC().Format(time.DateTime)
	}
	if page.Feedback == "" {
		page.Feedback = string(model.FeedbackPending)
	}

	for _, is := range rec.Issues {
		loc := is.File
		if loc != "" && is.Line > 0 {
			loc = fmt.Sprintf("%s:%d", is.File, is.Line)
		}
		page.Issues = append(page.Issues, vm.Issue{
			Severity:    strings.ToUpper(is.Severity),
			Type:        is.Type,
			Location:    loc,
			Description: is.Description,
			Suggestion:  is.Suggestion,
		})
	}
	for _, f := range rec.Files {
		page.Files = append(page.Files, vm.File{
			ChangeType: string(f.ChangeType),
			Path:       f.Path,
			OldPath:    f.OldPath,
			IsCritical: f.IsCritical,
		})
	}
	return page
}
