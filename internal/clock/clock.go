// Package clock implements the playback clocks and the synchronizer that
// keeps independently decoded audio and video presented in step.
//
// A Clock is anchored at the presentation timestamp of the last presented
// unit and extrapolates "now" from the wall time elapsed since that anchor.
// Each clock is tied to the serial of the packet queue feeding it; once a
// flush bumps that serial the clock reads as undefined (NaN) until it is
// re-anchored with data from the new generation.
package clock

import (
	"math"
	"sync"
	"time"
)

var epoch = time.Now()

// Wall returns a monotonic wall time in seconds.
func Wall() float64 {
	return time.Since(epoch).Seconds()
}

// Undefined reports whether a clock reading carries no valid anchor. It is
// a normal transient state: callers should skip synchronization, not fail.
func Undefined(t float64) bool {
	return math.IsNaN(t)
}

// SerialSource exposes the live generation of the queue a clock follows.
// *packetq.Queue implements it.
type SerialSource interface {
	Serial() int
}

// Clock is a single playback clock. All methods are safe for concurrent
// use; Set from the render goroutine and SetPaused from the input goroutine
// are serialized by the clock's own lock.
type Clock struct {
	mu          sync.Mutex
	pts         float64
	ptsDrift    float64
	lastUpdated float64
	speed       float64
	serial      int
	paused      bool

	src  SerialSource
	wall func() float64
}

// Option configures a Clock.
type Option func(*Clock)

// WithWall replaces the wall time source, in seconds.
func WithWall(wall func() float64) Option {
	return func(c *Clock) {
		c.wall = wall
	}
}

// New returns a clock following src. A nil src makes the clock its own
// serial reference, which is how the external clock is built. The clock
// starts undefined with serial -1.
func New(src SerialSource, opts ...Option) *Clock {
	c := &Clock{
		speed: 1.0,
		src:   src,
		wall:  Wall,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetAt(math.NaN(), -1, c.wall())
	return c
}

func (c *Clock) liveSerial() int {
	if c.src == nil {
		return c.serial
	}
	return c.src.Serial()
}

// Now returns the current presentation time: NaN when the clock's data has
// been superseded by a flush, the frozen pts while paused, and otherwise
// the anchor extrapolated by the elapsed wall time at the clock's speed.
func (c *Clock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() float64 {
	if c.liveSerial() != c.serial {
		return math.NaN()
	}
	if c.paused {
		return c.pts
	}
	t := c.wall()
	return c.ptsDrift + t - (t-c.lastUpdated)*(1.0-c.speed)
}

// SetAt anchors the clock at pts for the given serial at wall time t.
func (c *Clock) SetAt(pts float64, serial int, t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAtLocked(pts, serial, t)
}

func (c *Clock) setAtLocked(pts float64, serial int, t float64) {
	c.pts = pts
	c.lastUpdated = t
	c.ptsDrift = pts - t
	c.serial = serial
}

// Set anchors the clock at pts for the given serial at the current wall time.
func (c *Clock) Set(pts float64, serial int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAtLocked(pts, serial, c.wall())
}

// SetSpeed changes the playback rate. The clock is re-anchored at its
// current time first so the change causes no jump.
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAtLocked(c.nowLocked(), c.serial, c.wall())
	c.speed = speed
}

// Speed returns the playback rate multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetPaused freezes or releases the clock. Releasing re-anchors at the
// frozen pts so the paused interval is not counted as played time.
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused == paused {
		return
	}
	if !paused {
		c.paused = false
		c.setAtLocked(c.pts, c.serial, c.wall())
		return
	}
	c.pts = c.nowLocked()
	c.paused = true
}

// Paused reports whether the clock is frozen.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Serial returns the generation the clock's pts belongs to.
func (c *Clock) Serial() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// SinceUpdate returns the wall time elapsed since the last anchor.
func (c *Clock) SinceUpdate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall() - c.lastUpdated
}

// PTS returns the last anchored presentation timestamp, without
// extrapolation.
func (c *Clock) PTS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pts
}

// snapshot returns the clock's current time and serial in one critical
// section.
func (c *Clock) snapshot() (float64, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked(), c.serial
}

// SyncToSlave re-anchors c to slave's current time and serial when slave is
// defined and c is either undefined or further than threshold seconds away.
// Drift under the threshold is tolerated; anything beyond it is snapped in
// one step.
func SyncToSlave(c, slave *Clock, threshold float64) bool {
	slaveTime, slaveSerial := slave.snapshot()
	if Undefined(slaveTime) {
		return false
	}
	t := c.Now()
	if !Undefined(t) && math.Abs(t-slaveTime) <= threshold {
		return false
	}
	c.Set(slaveTime, slaveSerial)
	return true
}
