package progression

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocks_SerializesSameUser(t *testing.T) {
	l := newUserLocks()
	var active, peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.lock("u1")
			defer release()
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, l.size(), "idle entries are released")
}

func TestUserLocks_DifferentUsersIndependent(t *testing.T) {
	l := newUserLocks()
	releaseA := l.lock("a")

	done := make(chan struct{})
	go func() {
		release := l.lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for b blocked behind a")
	}
	assert.Equal(t, 1, l.size())
	releaseA()
	assert.Equal(t, 0, l.size())
}
