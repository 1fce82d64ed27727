package model

import (
	"errors"
	"fmt"
)

// SyncErrorKind classifies why a mirror sync failed.
type SyncErrorKind string

const (
	SyncAuth    SyncErrorKind = "auth"
	SyncNetwork SyncErrorKind = "network"
	SyncCorrupt SyncErrorKind = "corrupt"
)

// SyncError is a task-fatal failure to clone, fetch or enumerate a mirror.
type SyncError struct {
	Kind SyncErrorKind
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("git %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// DiffError is a failure to diff a single commit. The pipeline skips the
// commit and continues.
type DiffError struct {
	Commit string
	Err    error
}

func (e *DiffError) Error() string {
	return fmt.Sprintf("diff %s: %v", ShortHash(e.Commit), e.Err)
}

func (e *DiffError) Unwrap() error { return e.Err }

// ErrBranchNotFound is returned when the remote has no such branch. Retrying
// will not help.
var ErrBranchNotFound = errors.New("branch not found on remote")
