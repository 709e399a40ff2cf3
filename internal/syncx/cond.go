// Package syncx holds small synchronization helpers shared by the queues and
// the playback session.
package syncx

import (
	"sync"
	"sync/atomic"
	"time"
)

// WaitTimeout waits on c like c.Wait, but returns after at most d even when
// nobody signals. It reports whether the wait ended because d elapsed. The
// caller must hold c.L, and must re-check its predicate after the call
// returns, exactly as with c.Wait.
func WaitTimeout(c *sync.Cond, d time.Duration) bool {
	var fired atomic.Bool
	t := time.AfterFunc(d, func() {
		c.L.Lock()
		fired.Store(true)
		c.Broadcast()
		c.L.Unlock()
	})
	c.Wait()
	t.Stop()
	return fired.Load()
}
