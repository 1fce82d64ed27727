package model

// RiskLevel is the coarse risk bucket assigned to a reviewed commit.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

// Score boundaries for LevelFor. Both are inclusive on the high side.
const (
	HighRiskScore   = 0.70
	MediumRiskScore = 0.40
)

// LevelFor maps a risk score in [0,1] to its level.
func LevelFor(score float64) RiskLevel {
	switch {
	case score >= HighRiskScore:
		return RiskHigh
	case score >= MediumRiskScore:
		return RiskMedium
	default:
		return RiskLow
	}
}

// rank orders levels so they can be compared.
func (l RiskLevel) rank() int {
	switch l {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is the same as or more severe than min.
// An empty min matches every level.
func (l RiskLevel) AtLeast(min RiskLevel) bool {
	return l.rank() >= min.rank()
}

// Valid reports whether l is one of the declared levels.
func (l RiskLevel) Valid() bool {
	return l.rank() > 0
}

// TriggerMode identifies which trigger source started a task.
type TriggerMode string

const (
	TriggerManual    TriggerMode = "MANUAL"
	TriggerScheduled TriggerMode = "SCHEDULED"
	TriggerRealtime  TriggerMode = "REALTIME"
	TriggerWebhook   TriggerMode = "WEBHOOK"
)

// TaskIDPrefix returns the lowercase prefix used when minting task ids.
func (m TriggerMode) TaskIDPrefix() string {
	switch m {
	case TriggerManual:
		return "manual"
	case TriggerScheduled:
		return "scheduled"
	case TriggerRealtime:
		return "realtime"
	case TriggerWebhook:
		return "webhook"
	default:
		return "task"
	}
}

// FeedbackStatus is a human verdict on an AI review.
type FeedbackStatus string

const (
	FeedbackPending       FeedbackStatus = "PENDING"
	FeedbackCorrect       FeedbackStatus = "CORRECT"
	FeedbackFalsePositive FeedbackStatus = "FALSE_POSITIVE"
	FeedbackMissed        FeedbackStatus = "MISSED"
)

// Valid reports whether s is one of the declared feedback states.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackPending, FeedbackCorrect, FeedbackFalsePositive, FeedbackMissed:
		return true
	default:
		return false
	}
}

// ChangeType is the kind of change a commit made to a file.
type ChangeType string

const (
	ChangeAdded    ChangeType = "A"
	ChangeModified ChangeType = "M"
	ChangeDeleted  ChangeType = "D"
	ChangeRenamed  ChangeType = "R"
)
