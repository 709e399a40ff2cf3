package clock

import (
	"math"
	"testing"
)

type fakeWall struct{ t float64 }

func (w *fakeWall) now() float64 { return w.t }

type fakeSerial struct{ serial int }

func (f *fakeSerial) Serial() int { return f.serial }

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestClockUndefinedAfterInit(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 100}
	c := New(&fakeSerial{}, WithWall(w.now))
	if got := c.Now(); !Undefined(got) {
		t.Errorf("Now() = %v, want NaN", got)
	}
	if got := c.Serial(); got != -1 {
		t.Errorf("Serial() = %d, want -1", got)
	}
	if got := c.Speed(); got != 1.0 {
		t.Errorf("Speed() = %v, want 1", got)
	}
}

func TestClockExtrapolates(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 100}
	c := New(&fakeSerial{serial: 3}, WithWall(w.now))
	c.Set(5.0, 3)
	if got := c.Now(); !near(got, 5.0) {
		t.Fatalf("Now() = %v, want 5.0", got)
	}
	w.t = 100.25
	if got := c.Now(); !near(got, 5.25) {
		t.Errorf("Now() after 250ms = %v, want 5.25", got)
	}
}

func TestClockStaleAfterFlush(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 10}
	src := &fakeSerial{serial: 0}
	c := New(src, WithWall(w.now))
	c.Set(1.0, 0)
	if Undefined(c.Now()) {
		t.Fatal("clock undefined with matching serial")
	}
	src.serial = 1
	if got := c.Now(); !Undefined(got) {
		t.Errorf("Now() after flush = %v, want NaN", got)
	}
	c.Set(7.0, 1)
	if got := c.Now(); !near(got, 7.0) {
		t.Errorf("Now() after re-anchor = %v, want 7.0", got)
	}
}

func TestClockExternalIsOwnReference(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 0}
	c := New(nil, WithWall(w.now))
	if !Undefined(c.Now()) {
		t.Fatal("external clock defined before first set")
	}
	c.Set(42, 0)
	w.t = 1
	if got := c.Now(); !near(got, 43) {
		t.Errorf("Now() = %v, want 43", got)
	}
}

func TestClockSetSpeedNoJump(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 50}
	c := New(nil, WithWall(w.now))
	c.Set(2.0, 0)
	w.t = 51
	before := c.Now()
	c.SetSpeed(1.0)
	if got := c.Now(); !near(got, before) {
		t.Errorf("Now() after SetSpeed(1) = %v, want %v", got, before)
	}

	c.SetSpeed(0.5)
	if got := c.Now(); !near(got, before) {
		t.Errorf("Now() right after SetSpeed(0.5) = %v, want %v", got, before)
	}
	w.t = 53
	if got := c.Now(); !near(got, before+1) {
		t.Errorf("Now() 2s at half speed = %v, want %v", got, before+1)
	}
}

func TestClockPauseFreezes(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 0}
	c := New(nil, WithWall(w.now))
	c.Set(10, 0)
	w.t = 1
	c.SetPaused(true)
	w.t = 30
	if got := c.Now(); !near(got, 11) {
		t.Errorf("paused Now() = %v, want 11", got)
	}
	c.SetPaused(false)
	w.t = 31
	if got := c.Now(); !near(got, 12) {
		t.Errorf("resumed Now() = %v, want 12", got)
	}
}

func TestSyncToSlaveSnaps(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 100}
	src := &fakeSerial{}
	audio := New(src, WithWall(w.now))
	video := New(src, WithWall(w.now))
	audio.Set(5.0, 0)
	video.Set(5.3, 0)

	if !SyncToSlave(video, audio, 0.1) {
		t.Fatal("SyncToSlave() = false, want true")
	}
	if got := video.Now(); !near(got, 5.0) {
		t.Errorf("video Now() = %v, want 5.0", got)
	}
}

func TestSyncToSlaveWithinThreshold(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 100}
	src := &fakeSerial{}
	audio := New(src, WithWall(w.now))
	video := New(src, WithWall(w.now))
	audio.Set(5.0, 0)
	video.Set(5.05, 0)

	if SyncToSlave(video, audio, 0.1) {
		t.Error("SyncToSlave() = true within threshold")
	}
	if got := video.Now(); !near(got, 5.05) {
		t.Errorf("video Now() = %v, want 5.05", got)
	}
}

func TestSyncToSlaveUndefined(t *testing.T) {
	t.Parallel()
	w := &fakeWall{t: 0}
	ext := New(nil, WithWall(w.now))
	slave := New(&fakeSerial{}, WithWall(w.now))

	if SyncToSlave(ext, slave, 10) {
		t.Error("synced to undefined slave")
	}

	slave.Set(3, 0)
	if !SyncToSlave(ext, slave, 10) {
		t.Fatal("undefined clock not snapped to defined slave")
	}
	if got := ext.Now(); !near(got, 3) {
		t.Errorf("ext Now() = %v, want 3", got)
	}
}
