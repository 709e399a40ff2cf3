// Package config holds the player settings: a registry of keys with
// defaults, bound to PRISMPLAY_* environment variables, an optional
// prismplay.toml file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zsiec/prismplay/internal/clock"
	"github.com/zsiec/prismplay/internal/player"
)

// Name is the config file base name and the environment prefix.
const Name = "prismplay"

// Keys.
const (
	KeySync       = "play.sync"
	KeyFrameDrop  = "play.framedrop"
	KeyAutoExit   = "play.autoexit"
	KeyLoop       = "play.loop"
	KeyHeadless   = "play.headless"
	KeyRemoteAddr = "remote.addr"
	KeyLogLevel   = "log.level"
	KeyLogJSON    = "log.json"
	KeyLogFile    = "log.file"
)

// EnvKeyReplacer maps keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Field is one registered setting.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Env returns the environment variable bound to the field.
func (f Field) Env() string {
	return strings.ToUpper(Name + "_" + EnvKeyReplacer.Replace(f.Key))
}

// Fields lists every setting with its default, in display order.
var Fields = []Field{
	{KeySync, "audio", "Master clock: audio, video or external"},
	{KeyFrameDrop, "auto", "Drop late video frames: auto, always or never"},
	{KeyAutoExit, false, "Quit when playback reaches the end"},
	{KeyLoop, false, "Restart from the beginning at the end"},
	{KeyHeadless, false, "Run without the terminal UI"},
	{KeyRemoteAddr, "", "UDP address of the QUIC control channel, empty to disable"},
	{KeyLogLevel, "info", "Log level: debug, info, warn or error"},
	{KeyLogJSON, false, "Write logs as JSON"},
	{KeyLogFile, "", "Write logs to this file instead of stderr"},
}

// Config is the typed view of the settings.
type Config struct {
	Sync       clock.Mode
	FrameDrop  player.FrameDrop
	AutoExit   bool
	Loop       bool
	Headless   bool
	RemoteAddr string
	LogLevel   slog.Level
	LogJSON    bool
	LogFile    string
}

// New returns a viper instance with every field's default registered and
// bound to its environment variable. configDir, when not empty, is searched
// for prismplay.toml by Read.
func New(configDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(Name)
	v.SetConfigType("toml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.SetTypeByDefaultValue(true)
	for _, f := range Fields {
		v.SetDefault(f.Key, f.Value)
		_ = v.BindEnv(f.Key)
	}
	return v
}

// DefaultDir returns the per-user config directory, or "" when unknown.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, Name)
}

// Read loads the config file if there is one.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("config: %w", err)
}

// BindFlags binds command-line flags to keys. flags maps key to flag name;
// flags missing from fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, flags map[string]string) error {
	for key, name := range flags {
		fl := fs.Lookup(name)
		if fl == nil {
			continue
		}
		if err := v.BindPFlag(key, fl); err != nil {
			return fmt.Errorf("config: bind --%s: %w", name, err)
		}
	}
	return nil
}

// Load converts the settings of v into a Config.
func Load(v *viper.Viper) (Config, error) {
	sync, err := clock.ParseMode(v.GetString(KeySync))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeySync, err)
	}
	drop, err := player.ParseFrameDrop(v.GetString(KeyFrameDrop))
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyFrameDrop, err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}

	return Config{
		Sync:       sync,
		FrameDrop:  drop,
		AutoExit:   v.GetBool(KeyAutoExit),
		Loop:       v.GetBool(KeyLoop),
		Headless:   v.GetBool(KeyHeadless),
		RemoteAddr: v.GetString(KeyRemoteAddr),
		LogLevel:   level,
		LogJSON:    v.GetBool(KeyLogJSON),
		LogFile:    v.GetString(KeyLogFile),
	}, nil
}

// NewLogger builds the process logger. When the terminal UI owns the
// screen and no log file is set, logs are discarded. The returned closer
// releases the log file, if any.
func (c Config) NewLogger(stderr io.Writer, tui bool) (*slog.Logger, io.Closer, error) {
	var out io.Writer = stderr
	var closer io.Closer = io.NopCloser(nil)

	switch {
	case c.LogFile != "":
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("config: open log file: %w", err)
		}
		out, closer = f, f
	case tui:
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: c.LogLevel}
	var h slog.Handler = slog.NewTextHandler(out, opts)
	if c.LogJSON {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h), closer, nil
}
