package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// userLocks serializes balance credits per user. The balance store has no
// atomic increment, so two concurrent submits by the same user would race on
// the read-modify-write; a keyed mutex closes that window within this
// process. Entries are kept for the process lifetime: the map grows with the
// active user set, a few dozen bytes per user.
type userLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (u *userLocks) lock(userID uuid.UUID) func() {
	u.mu.Lock()
	m, ok := u.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		u.locks[userID] = m
	}
	u.mu.Unlock()

	m.Lock()
	return m.Unlock
}
