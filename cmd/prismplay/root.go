package main

import (
	"io"
	"log/slog"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zsiec/prismplay/internal/config"
)

// app carries the state shared by every command once flags are parsed.
type app struct {
	v        *viper.Viper
	cfg      config.Config
	log      *slog.Logger
	closeLog io.Closer
}

// flagKeys binds flag names to config keys.
var flagKeys = map[string]string{
	config.KeySync:       "sync",
	config.KeyFrameDrop:  "framedrop",
	config.KeyAutoExit:   "autoexit",
	config.KeyLoop:       "loop",
	config.KeyHeadless:   "headless",
	config.KeyRemoteAddr: "remote",
	config.KeyLogLevel:   "log-level",
	config.KeyLogJSON:    "log-json",
	config.KeyLogFile:    "log-file",
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configDir string

	root := &cobra.Command{
		Use:           "prismplay",
		Short:         "Play MPEG-TS files and SRT streams with audio/video sync",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.v = config.New(configDir)
			if err := config.BindFlags(a.v, cmd.Flags(), flagKeys); err != nil {
				return err
			}
			if err := config.Read(a.v); err != nil {
				return err
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			// Only the playing commands have a UI to protect from log output.
			tui := cmd.Flags().Lookup("headless") != nil && !cfg.Headless
			log, closer, err := cfg.NewLogger(cmd.ErrOrStderr(), tui)
			if err != nil {
				return err
			}
			a.log, a.closeLog = log, closer
			slog.SetDefault(log)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configDir, "config-dir", config.DefaultDir(), "Directory holding "+config.Name+".toml")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.Bool("log-json", false, "Write logs as JSON")
	pf.String("log-file", "", "Write logs to this file")
	lo.Must0(root.RegisterFlagCompletionFunc("log-level", fixedCompletion("debug", "info", "warn", "error")))

	root.AddCommand(newPlayCmd(a), newListenCmd(a), newCtlCmd())
	return root
}

// addPlayFlags registers the flags shared by play and listen.
func addPlayFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("sync", "audio", "Master clock: audio, video or external")
	f.String("framedrop", "auto", "Drop late video frames: auto, always or never")
	f.Bool("autoexit", false, "Quit at the end of the input")
	f.Bool("loop", false, "Restart at the end of the input")
	f.Bool("headless", false, "Run without the terminal UI")
	f.String("remote", "", "Serve the QUIC control channel on this UDP address")
	lo.Must0(cmd.RegisterFlagCompletionFunc("sync", fixedCompletion("audio", "video", "external")))
	lo.Must0(cmd.RegisterFlagCompletionFunc("framedrop", fixedCompletion("auto", "always", "never")))
}

func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}
