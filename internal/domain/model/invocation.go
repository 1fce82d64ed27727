package model

import "fmt"

// Scope selects which commits an invocation reviews. It is fixed when the
// trigger fires and never inferred from the shape of a branch or hash string.
type Scope string

const (
	ScopeBranch      Scope = "branch"
	ScopeAllBranches Scope = "all_branches"
	ScopeCommit      Scope = "commit"
)

// Invocation is the single shape every trigger source produces.
type Invocation struct {
	RepositoryID int64       `json:"repository_id"`
	Branch       string      `json:"branch"`
	AllBranches  bool        `json:"all_branches"`
	Scope        Scope       `json:"scope"`
	TaskID       string      `json:"task_id"`
	TriggerMode  TriggerMode `json:"trigger_mode"`
	TriggeredBy  string      `json:"triggered_by,omitempty"`

	// Commit is set only for ScopeCommit.
	Commit *CommitRef `json:"commit,omitempty"`
}

// Validate checks that the invocation is internally consistent.
func (inv Invocation) Validate() error {
	if inv.RepositoryID <= 0 {
		return fmt.Errorf("invalid repository id %d", inv.RepositoryID)
	}
	if inv.TaskID == "" {
		return fmt.Errorf("task id is required")
	}

	switch inv.Scope {
	case ScopeBranch:
		if inv.Branch == "" {
			return fmt.Errorf("branch scope requires a branch")
		}
		if inv.AllBranches {
			return fmt.Errorf("branch scope cannot set all_branches")
		}
	case ScopeAllBranches:
		if !inv.AllBranches {
			return fmt.Errorf("all_branches scope requires all_branches")
		}
	case ScopeCommit:
		if inv.Commit == nil || inv.Commit.Hash == "" {
			return fmt.Errorf("commit scope requires a commit hash")
		}
	default:
		return fmt.Errorf("unknown scope %q", inv.Scope)
	}

	switch inv.TriggerMode {
	case TriggerManual, TriggerScheduled, TriggerRealtime, TriggerWebhook:
	default:
		return fmt.Errorf("unknown trigger mode %q", inv.TriggerMode)
	}

	return nil
}
