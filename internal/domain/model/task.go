package model

import "time"

// TaskStatus is a state of the review task state machine.
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCloning   TaskStatus = "CLONING"
	TaskFetching  TaskStatus = "FETCHING"
	TaskDiffing   TaskStatus = "DIFFING"
	TaskReviewing TaskStatus = "REVIEWING"
	TaskSaving    TaskStatus = "SAVING"
	TaskNotifying TaskStatus = "NOTIFYING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskCancelled TaskStatus = "CANCELLED"
)

// TerminalStatuses lists the states a task never leaves.
var TerminalStatuses = []TaskStatus{TaskCompleted, TaskFailed, TaskCancelled}

// IsTerminal reports whether s is COMPLETED, FAILED or CANCELLED.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Label returns the human readable status text shown to operators.
func (s TaskStatus) Label() string {
	switch s {
	case TaskPending:
		return "Pending"
	case TaskRunning:
		return "Running"
	case TaskCloning:
		return "Cloning repository"
	case TaskFetching:
		return "Fetching commits"
	case TaskDiffing:
		return "Analyzing diff"
	case TaskReviewing:
		return "AI reviewing"
	case TaskSaving:
		return "Saving results"
	case TaskNotifying:
		return "Sending notification"
	case TaskCompleted:
		return "Completed"
	case TaskFailed:
		return "Failed"
	case TaskCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}

// RiskCounts accumulates per-level counts for records created by a task.
type RiskCounts struct {
	High     int
	Medium   int
	Low      int
	Notified int
}

// Add increments the counter for level.
func (c *RiskCounts) Add(level RiskLevel) {
	switch level {
	case RiskHigh:
		c.High++
	case RiskMedium:
		c.Medium++
	case RiskLow:
		c.Low++
	}
}

// ReviewTask is one pipeline invocation and its progress.
type ReviewTask struct {
	ID               int64
	TaskID           string
	RepositoryID     int64
	RepositoryName   string
	Branch           string
	Status           TaskStatus
	CurrentStep      string
	Progress         int
	TotalCommits     int
	ProcessedCommits int
	TriggerMode      TriggerMode
	TriggeredBy      string
	Counts           RiskCounts
	ErrorMessage     string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// Duration returns the elapsed run time, or zero if the task has not both
// started and completed.
func (t ReviewTask) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// ProgressFor returns floor(processed/total*100), clamped to [0,100].
func ProgressFor(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := processed * 100 / total
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
