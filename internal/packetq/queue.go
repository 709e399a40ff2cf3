// Package packetq implements the packet transport between the demux
// goroutine and a per-stream decode goroutine.
//
// A Queue is a mutex-guarded FIFO of compressed packets with a generation
// counter (serial) that is bumped on every Flush. Consumers compare a
// packet's serial against the queue's live serial to discard data queued
// before a seek. Abort is the only cancellation primitive: it is broadcast
// to every waiter and never cleared.
package packetq

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/syncx"
)

// DefaultPollInterval bounds how long a blocked Get sleeps before
// re-checking the abort flag on its own.
const DefaultPollInterval = 20 * time.Millisecond

// Sentinel errors returned by Get and Put.
var (
	// ErrAborted is returned once the queue has been aborted. It is the
	// cooperative shutdown signal, not a failure.
	ErrAborted = errors.New("packetq: aborted")

	// ErrEmpty is returned by a non-blocking Get on an empty queue.
	ErrEmpty = errors.New("packetq: empty")
)

// Queue is a thread-safe FIFO of packets for one elementary stream.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf      []*media.Packet // ring storage, len(buf) is the capacity
	head     int
	count    int
	size     int
	duration float64

	serial atomic.Int64 // written under mu, read lock-free by clocks
	abort  bool

	pollInterval time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithPollInterval sets the bounded re-check interval of a blocking Get.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithCapacity preallocates room for n packets.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.buf = make([]*media.Packet, n)
		}
	}
}

// New returns an empty queue with serial 0.
func New(opts ...Option) *Queue {
	q := &Queue{
		buf:          make([]*media.Packet, 64),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends pkt to the tail and wakes one blocked consumer. The packet is
// stamped with the queue's current serial and its payload is owned by the
// queue from here on. After Abort the packet is released and ErrAborted is
// returned.
func (q *Queue) Put(pkt *media.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.abort {
		pkt.Release()
		return ErrAborted
	}

	if q.count == len(q.buf) {
		q.grow()
	}
	pkt.Serial = int(q.serial.Load())
	q.buf[(q.head+q.count)%len(q.buf)] = pkt
	q.count++
	q.size += pkt.Size
	q.duration += pkt.Duration

	q.cond.Signal()
	return nil
}

// PutNull enqueues the zero-size drain sentinel for streamIndex.
func (q *Queue) PutNull(streamIndex int) error {
	return q.Put(media.NullPacket(streamIndex))
}

// Get pops the head of the queue. With block false an empty queue yields
// ErrEmpty. With block true the caller waits until a packet arrives or the
// queue is aborted, re-checking at least every poll interval.
func (q *Queue) Get(block bool) (*media.Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.abort {
			return nil, ErrAborted
		}
		if q.count > 0 {
			return q.pop(), nil
		}
		if !block {
			return nil, ErrEmpty
		}
		syncx.WaitTimeout(q.cond, q.pollInterval)
	}
}

func (q *Queue) pop() *media.Packet {
	pkt := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.size -= pkt.Size
	q.duration -= pkt.Duration
	if q.count == 0 {
		q.head = 0
		q.duration = 0
	}
	return pkt
}

func (q *Queue) grow() {
	next := make([]*media.Packet, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}

// Flush releases every queued packet, zeroes the counters and starts a new
// generation. Packets queued before the call are stale from now on.
func (q *Queue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushLocked()
}

func (q *Queue) flushLocked() {
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.buf)
		q.buf[idx].Release()
		q.buf[idx] = nil
	}
	q.head = 0
	q.count = 0
	q.size = 0
	q.duration = 0
	q.serial.Add(1)
}

// Abort wakes every waiter and makes all further Get and Put calls return
// ErrAborted. It is idempotent.
func (q *Queue) Abort() {
	q.mu.Lock()
	q.abort = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Destroy flushes the queue and drops its storage. It must only be called
// once every producer and consumer has exited.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf != nil {
		q.flushLocked()
	}
	q.abort = true
	q.buf = nil
}

// Serial returns the live generation counter.
func (q *Queue) Serial() int {
	return int(q.serial.Load())
}

// Aborted reports whether Abort has been called.
func (q *Queue) Aborted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.abort
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Size returns the total payload size of the queued packets in bytes.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Duration returns the summed duration of the queued packets in seconds.
func (q *Queue) Duration() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.duration
}

// HasEnoughPackets reports whether the consumer has enough buffered data
// that the reader may pause: more than minFrames packets and, when packet
// durations are known, more than minDuration seconds. An aborted queue
// always has enough.
func (q *Queue) HasEnoughPackets(minFrames int, minDuration float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.abort {
		return true
	}
	return q.count > minFrames && (q.duration == 0 || q.duration > minDuration)
}
