package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PRISMPLAY_LOG_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlayMissingFile(t *testing.T) {
	_, err := execute(t, "play", "--headless", "/does/not/exist.ts")
	if err == nil {
		t.Fatal("play of a missing file succeeded")
	}
}

func TestPlayRejectsBadSyncMode(t *testing.T) {
	_, err := execute(t, "play", "--headless", "--sync", "wallclock", "x.ts")
	if err == nil || !strings.Contains(err.Error(), "sync") {
		t.Fatalf("err = %v, want sync mode error", err)
	}
}

func TestCtlBadFingerprint(t *testing.T) {
	_, err := execute(t, "ctl", "pause", "--addr", "127.0.0.1:1", "--fingerprint", "nope")
	if err == nil {
		t.Fatal("ctl accepted a malformed fingerprint")
	}
}

func TestCtlSeekNeedsNumber(t *testing.T) {
	_, err := execute(t, "ctl", "seek", "soon", "--addr", "127.0.0.1:1", "--fingerprint", "x")
	if err == nil || !strings.Contains(err.Error(), "seek") {
		t.Fatalf("err = %v, want seek parse error", err)
	}
}

func TestCtlRequiresAddr(t *testing.T) {
	_, err := execute(t, "ctl", "status", "--fingerprint", "x")
	if err == nil || !strings.Contains(err.Error(), "addr") {
		t.Fatalf("err = %v, want required flag error", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("version output %q does not contain %q", out, version)
	}
}
