package decode

import (
	"sync"
	"time"

	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/packetq"
	"github.com/zsiec/prismplay/internal/syncx"
)

// Aborter is the packet queue a frame queue follows for shutdown.
type Aborter interface {
	Aborted() bool
}

// FrameQueue is a fixed-size ring of decoded frames between one decode
// goroutine and one render goroutine.
//
// With keepLast set, the frame most recently handed to the renderer stays
// in the queue after Next until the following frame is consumed, so the
// renderer can redraw or time against it (PeekLast).
type FrameQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	frames   []*media.Frame
	rindex   int
	windex   int
	size     int
	keepLast bool
	shown    int // 1 while the frame at rindex has been shown and kept

	src          Aborter
	aborted      bool
	pollInterval time.Duration
}

// NewFrameQueue returns a queue holding up to capacity frames. It aborts
// together with src.
func NewFrameQueue(src Aborter, capacity int, keepLast bool) *FrameQueue {
	f := &FrameQueue{
		frames:       make([]*media.Frame, capacity),
		keepLast:     keepLast,
		src:          src,
		pollInterval: packetq.DefaultPollInterval,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *FrameQueue) abortedLocked() bool {
	return f.aborted || f.src.Aborted()
}

// Abort wakes every waiter and makes Put and Wait fail from now on.
func (f *FrameQueue) Abort() {
	f.mu.Lock()
	f.aborted = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

// Put appends fr, waiting while the queue is full. It returns
// packetq.ErrAborted once the queue or its packet queue is aborted.
func (f *FrameQueue) Put(fr *media.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.size >= len(f.frames) && !f.abortedLocked() {
		syncx.WaitTimeout(f.cond, f.pollInterval)
	}
	if f.abortedLocked() {
		return packetq.ErrAborted
	}
	f.frames[f.windex] = fr
	f.windex = (f.windex + 1) % len(f.frames)
	f.size++
	f.cond.Signal()
	return nil
}

// Wait blocks until an unshown frame is available and returns it without
// consuming it.
func (f *FrameQueue) Wait() (*media.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.size-f.shown <= 0 && !f.abortedLocked() {
		syncx.WaitTimeout(f.cond, f.pollInterval)
	}
	if f.abortedLocked() {
		return nil, packetq.ErrAborted
	}
	return f.frames[(f.rindex+f.shown)%len(f.frames)], nil
}

// Remaining returns the number of frames not yet shown.
func (f *FrameQueue) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size - f.shown
}

// Shown reports whether the kept last frame has been presented.
func (f *FrameQueue) Shown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shown == 1
}

// Peek returns the next frame to show. The caller must check Remaining
// first.
func (f *FrameQueue) Peek() *media.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[(f.rindex+f.shown)%len(f.frames)]
}

// PeekNext returns the frame after Peek's. The caller must check that
// Remaining is at least 2.
func (f *FrameQueue) PeekNext() *media.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[(f.rindex+f.shown+1)%len(f.frames)]
}

// PeekLast returns the most recently shown frame, or the head of the queue
// when nothing has been shown yet.
func (f *FrameQueue) PeekLast() *media.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[f.rindex]
}

// Next consumes the current frame. With keepLast the first call only marks
// it as shown.
func (f *FrameQueue) Next() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keepLast && f.shown == 0 {
		f.shown = 1
		return
	}
	if f.size == 0 {
		return
	}
	f.frames[f.rindex] = nil
	f.rindex = (f.rindex + 1) % len(f.frames)
	f.size--
	f.cond.Signal()
}
