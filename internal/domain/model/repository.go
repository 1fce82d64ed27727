package model

import "time"

// AuthMode selects how the mirror authenticates against the remote.
type AuthMode string

const (
	AuthModePassword AuthMode = "password"
	AuthModeSSHKey   AuthMode = "ssh_key"
)

// Repository is a remote git repository registered for automated review.
// Password and WebhookSecret are plaintext at the domain boundary; the store
// adapter encrypts them at rest.
type Repository struct {
	ID       int64
	Name     string
	GitURL   string
	AuthMode AuthMode
	Username string
	Password string

	// LocalPath is the on-disk mirror directory.
	LocalPath     string
	DefaultBranch string

	HighRiskThreshold   float64
	MediumRiskThreshold float64

	CriticalPatterns []string
	IgnorePatterns   []string

	ManualEnabled    bool
	ScheduledEnabled bool
	RealtimeEnabled  bool

	CronExpression    string
	PollInterval      time.Duration
	MonitoredBranches []string
	AutoReview        bool

	NotifyOnComplete bool
	MinNotifyLevel   RiskLevel
	WebhookURL       string
	WebhookSecret    string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewBranch returns the default review branch, falling back to "master".
func (r Repository) ReviewBranch() string {
	if r.DefaultBranch == "" {
		return "master"
	}
	return r.DefaultBranch
}

// NotifyLevel maps a score onto the repository's own thresholds. It is used
// only to gate notifications; stored risk levels always come from LevelFor.
func (r Repository) NotifyLevel(score float64) RiskLevel {
	high, medium := r.HighRiskThreshold, r.MediumRiskThreshold
	if high <= 0 {
		high = HighRiskScore
	}
	if medium <= 0 {
		medium = MediumRiskScore
	}

	switch {
	case score >= high:
		return RiskHigh
	case score >= medium:
		return RiskMedium
	default:
		return RiskLow
	}
}
