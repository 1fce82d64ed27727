package model

import "time"

// JobStatus is the lifecycle of a queued invocation.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ReviewJob is a durable queue entry carrying one invocation.
type ReviewJob struct {
	ID          int64
	Invocation  Invocation
	Status      JobStatus
	Attempts    int
	LastError   string
	AvailableAt time.Time
	CreatedAt   time.Time
}
