package progression

import (
	"sync"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// userLocks serializes work per user. Entries are reference counted and
// dropped when no goroutine holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[domain.UserID]*userLock)}
}

// lock blocks until user's lock is held and returns its release func.
func (l *userLocks) lock(user domain.UserID) func() {
	l.mu.Lock()
	ul, ok := l.locks[user]
	if !ok {
		ul = &userLock{}
		l.locks[user] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, user)
		}
		l.mu.Unlock()
	}
}

// size reports how many users currently have a live entry.
func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
