package application

import "sync"

// RepoLocks serializes mirror access per repository. Syncs of different
// repositories proceed in parallel.
type RepoLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewRepoLocks creates an empty lock table.
func NewRepoLocks() *RepoLocks {
	return &RepoLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock blocks until the repository's lock is held and returns the release func.
func (l *RepoLocks) Lock(repoID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[repoID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[repoID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
