package tui

import (
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zsiec/prismplay/internal/player"
)

type fakeController struct {
	mu     sync.Mutex
	pauses int
	steps  int
	seeks  []float64
	quits  int
	state  string
	done   chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{state: player.Running.String(), done: make(chan struct{})}
}

func (f *fakeController) TogglePause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	if f.state == player.Paused.String() {
		f.state = player.Running.String()
	} else {
		f.state = player.Paused.String()
	}
}

func (f *fakeController) StepFrame() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps++
}

func (f *fakeController) SeekRelative(incr float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, incr)
	return true
}

func (f *fakeController) Quit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quits++
}

func (f *fakeController) Status() player.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return player.Status{ID: "abc", State: f.state, Master: "audio", Position: 12.5, Duration: 60}
}

func (f *fakeController) Done() <-chan struct{} { return f.done }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestSeekKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want float64
	}{
		{"left", tea.KeyMsg{Type: tea.KeyLeft}, -SeekShort},
		{"right", tea.KeyMsg{Type: tea.KeyRight}, SeekShort},
		{"down", tea.KeyMsg{Type: tea.KeyDown}, -SeekLong},
		{"up", tea.KeyMsg{Type: tea.KeyUp}, SeekLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctl := newFakeController()
			m := New(ctl, "test")
			if _, cmd := m.Update(tt.msg); cmd != nil {
				t.Errorf("seek key returned a command")
			}
			if len(ctl.seeks) != 1 || ctl.seeks[0] != tt.want {
				t.Errorf("seeks = %v, want [%v]", ctl.seeks, tt.want)
			}
		})
	}
}

func TestPauseAndStep(t *testing.T) {
	t.Parallel()
	ctl := newFakeController()
	var m tea.Model = New(ctl, "test")

	m, _ = m.Update(runes("p"))
	if ctl.pauses != 1 {
		t.Fatalf("pauses = %d, want 1", ctl.pauses)
	}
	if got := m.(Model).status.State; got != "paused" {
		t.Errorf("status after pause = %q, want paused", got)
	}
	if !strings.Contains(m.View(), "paused") {
		t.Errorf("view does not show the paused state:\n%s", m.View())
	}

	m, _ = m.Update(runes("s"))
	if ctl.steps != 1 {
		t.Errorf("steps = %d, want 1", ctl.steps)
	}
}

func TestQuitKey(t *testing.T) {
	t.Parallel()
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}} {
		ctl := newFakeController()
		_, cmd := New(ctl, "test").Update(msg)
		if ctl.quits != 1 {
			t.Errorf("%v: quits = %d, want 1", msg, ctl.quits)
		}
		if !isQuit(cmd) {
			t.Errorf("%v: command is not tea.Quit", msg)
		}
	}
}

func TestUnboundKeyIgnored(t *testing.T) {
	t.Parallel()
	ctl := newFakeController()
	_, cmd := New(ctl, "test").Update(runes("x"))
	if cmd != nil || ctl.pauses+ctl.steps+ctl.quits+len(ctl.seeks) != 0 {
		t.Errorf("unbound key had an effect: %+v", ctl)
	}
}

func TestSessionDoneQuits(t *testing.T) {
	t.Parallel()
	ctl := newFakeController()
	m := New(ctl, "test")
	close(ctl.done)

	msg := m.waitDone()()
	if _, ok := msg.(doneMsg); !ok {
		t.Fatalf("waitDone produced %T, want doneMsg", msg)
	}
	if _, cmd := m.Update(msg); !isQuit(cmd) {
		t.Error("session end did not quit the program")
	}
	if ctl.quits != 0 {
		t.Errorf("quits = %d, want 0", ctl.quits)
	}
}

func TestViewShowsStatusLine(t *testing.T) {
	t.Parallel()
	v := New(newFakeController(), "movie.ts").View()
	for _, want := range []string{"movie.ts", "00:00:12.50", "00:01:00.00", "running"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q:\n%s", want, v)
		}
	}
}
