package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/commitreview/internal/application"
	"github.com/ericfisherdev/commitreview/internal/domain/model"
)

func TestClassify(t *testing.T) {
	critical := []model.FileChange{{Path: "db.sql", IsCritical: true}, {Path: "a.go"}}
	plain := []model.FileChange{{Path: "a.go"}}

	tests := []struct {
		name   string
		issues []model.Issue
		files  []model.FileChange
		want   float64
	}{
		{name: "no issues", files: critical, want: 0},
		{
			name:   "one low issue",
			issues: []model.Issue{{Type: "style", Severity: "low"}},
			files:  plain,
			want:   0.03,
		},
		{
			name:   "medium issue on critical file",
			issues: []model.Issue{{Type: "performance", Severity: "medium"}},
			files:  critical,
			want:   0.08 * 1.2,
		},
		{
			name:   "high security issue",
			issues: []model.Issue{{Type: "security", Severity: "high"}},
			files:  plain,
			want:   0.15 * 1.5,
		},
		{
			name: "weights compound across high issues",
			issues: []model.Issue{
				{Type: "security", Severity: "high"},
				{Type: "reliability", Severity: "high"},
				{Type: "performance", Severity: "medium"},
			},
			files: critical,
			want:  (0.15 + 0.15 + 0.08) * 1.2 * 1.5 * 1.3,
		},
		{
			name:   "high maintainability issue is damped",
			issues: []model.Issue{{Type: "maintainability", Severity: "high"}},
			files:  plain,
			want:   0.15 * 0.8,
		},
		{
			name:   "unknown severity counts as low",
			issues: []model.Issue{{Type: "security", Severity: "urgent"}},
			files:  plain,
			want:   0.03,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, application.Classify(tt.issues, tt.files), 1e-9)
		})
	}
}

func TestClassify_ClampsToOne(t *testing.T) {
	var issues []model.Issue
	for range 10 {
		issues = append(issues, model.Issue{Type: "security", Severity: "high"})
	}

	score := application.Classify(issues, []model.FileChange{{IsCritical: true}})
	assert.Equal(t, 1.0, score)
	assert.Equal(t, model.RiskHigh, model.LevelFor(score))
}

func TestLevelFor_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  model.RiskLevel
	}{
		{0.70, model.RiskHigh},
		{0.699, model.RiskMedium},
		{0.40, model.RiskMedium},
		{0.399, model.RiskLow},
		{0, model.RiskLow},
		{1, model.RiskHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, model.LevelFor(tt.score), "score %v", tt.score)
	}
}
