package syncx

import (
	"sync"
	"testing"
	"time"
)

func TestWaitTimeoutExpires(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	c := sync.NewCond(&mu)

	mu.Lock()
	start := time.Now()
	timedOut := WaitTimeout(c, 20*time.Millisecond)
	elapsed := time.Since(start)
	mu.Unlock()

	if !timedOut {
		t.Error("expected timeout")
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("returned after %v, want >= ~20ms", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("returned after %v, want bounded wait", elapsed)
	}
}

func TestWaitTimeoutSignaled(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	c := sync.NewCond(&mu)
	ready := false

	go func() {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		ready = true
		c.Signal()
		mu.Unlock()
	}()

	mu.Lock()
	for !ready {
		WaitTimeout(c, 5*time.Second)
	}
	mu.Unlock()
}
