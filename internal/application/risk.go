package application

import (
	"strings"

	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

// Per-issue contributions to the risk score, by severity.
const (
	highIssueScore   = 0.15
	mediumIssueScore = 0.08
	otherIssueScore  = 0.03

	criticalFileFactor = 1.2
)

// highIssueWeight returns the multiplier applied once per high-severity issue.
func highIssueWeight(issueType string) float64 {
	switch strings.ToLower(issueType) {
	case "security":
		return 1.5
	case "reliability":
		return 1.3
	case "performance":
		return 1.1
	default:
		return 0.8
	}
}

// Classify scores a commit from the reviewer's issues and the files it touched.
// The result is clamped to [0, 1]; map it to a level with model.LevelFor.
func Classify(issues []model.Issue, files []model.FileChange) float64 {
	var score float64
	for _, issue := range issues {
		switch strings.ToLower(issue.Severity) {
		case "high":
			score += highIssueScore
		case "medium":
			score += mediumIssueScore
		default:
			score += otherIssueScore
		}
	}

	for _, f := range files {
		if f.IsCritical {
			score *= criticalFileFactor
			break
		}
	}

	for _, issue := range issues {
		if strings.EqualFold(issue.Severity, "high") {
			score *= highIssueWeight(issue.Type)
		}
	}

	return min(1, max(0, score))
}
