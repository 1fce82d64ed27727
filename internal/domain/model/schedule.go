package model

import "time"

// ScheduledReviewConfig fans out cron-driven reviews across repositories.
type ScheduledReviewConfig struct {
	ID             int64
	Name           string
	CronExpression string
	Branches       []string
	AllBranches    bool
	RepositoryIDs  []int64
	IsActive       bool
	LastRunAt      *time.Time
	CreatedAt      time.Time
}

// RealtimeMonitorConfig drives the polling trigger for one repository.
// BranchCursors holds the last tip seen per monitored branch; LastCheckedCommit
// mirrors the most recently advanced cursor.
type RealtimeMonitorConfig struct {
	ID                int64
	RepositoryID      int64
	IsActive          bool
	MonitoredBranches []string
	CheckInterval     time.Duration
	AutoReview        bool
	LastCheckedCommit string
	LastCheckedAt     *time.Time
	BranchCursors     map[string]string
}
