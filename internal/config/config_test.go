package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/zsiec/prismplay/internal/clock"
	"github.com/zsiec/prismplay/internal/player"
)

func TestDefaults(t *testing.T) {
	v := New(t.TempDir())
	if err := Read(v); err != nil {
		t.Fatalf("Read without file: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		Sync:      clock.ModeAudio,
		FrameDrop: player.FrameDropAuto,
		LogLevel:  slog.LevelInfo,
	}
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestFieldEnv(t *testing.T) {
	t.Parallel()
	f := Field{Key: KeyRemoteAddr}
	if got, want := f.Env(), "PRISMPLAY_REMOTE_ADDR"; got != want {
		t.Errorf("Env() = %q, want %q", got, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRISMPLAY_PLAY_SYNC", "video")
	t.Setenv("PRISMPLAY_PLAY_LOOP", "true")
	t.Setenv("PRISMPLAY_LOG_LEVEL", "debug")

	cfg, err := Load(New(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync != clock.ModeVideo {
		t.Errorf("Sync = %v, want video", cfg.Sync)
	}
	if !cfg.Loop {
		t.Error("Loop = false, want true")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := "[play]\nframedrop = \"never\"\nautoexit = true\n\n[remote]\naddr = \"127.0.0.1:4443\"\n"
	if err := os.WriteFile(filepath.Join(dir, Name+".toml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	v := New(dir)
	if err := Read(v); err != nil {
		t.Fatalf("Read: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FrameDrop != player.FrameDropNever {
		t.Errorf("FrameDrop = %v, want never", cfg.FrameDrop)
	}
	if !cfg.AutoExit {
		t.Error("AutoExit = false, want true")
	}
	if cfg.RemoteAddr != "127.0.0.1:4443" {
		t.Errorf("RemoteAddr = %q", cfg.RemoteAddr)
	}
}

func TestMalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Name+".toml"), []byte("[play\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Read(New(dir)); err == nil {
		t.Error("Read accepted a malformed file")
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Parallel()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("sync", "audio", "")
	fs.Bool("headless", false, "")

	v := New("")
	if err := BindFlags(v, fs, map[string]string{
		KeySync:     "sync",
		KeyHeadless: "headless",
		KeyLoop:     "missing",
	}); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := fs.Parse([]string{"--sync=external", "--headless"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync != clock.ModeExternal {
		t.Errorf("Sync = %v, want external", cfg.Sync)
	}
	if !cfg.Headless {
		t.Error("Headless = false, want true")
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key, value string
	}{
		{KeySync, "wallclock"},
		{KeyFrameDrop, "sometimes"},
		{KeyLogLevel, "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			v := New("")
			v.Set(tt.key, tt.value)
			if _, err := Load(v); err == nil {
				t.Errorf("Load accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestNewLoggerFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "play.log")
	cfg := Config{LogLevel: slog.LevelInfo, LogFile: path, LogJSON: true}

	log, closer, err := cfg.NewLogger(os.Stderr, true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("hello", "n", 1)
	log.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), `"msg":"hello"`; !strings.Contains(got, want) {
		t.Errorf("log file = %q, want it to contain %q", got, want)
	}
	if strings.Contains(string(data), "hidden") {
		t.Errorf("debug record written at info level: %q", data)
	}
}

