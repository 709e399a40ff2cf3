package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/prismplay/internal/certs"
	"github.com/zsiec/prismplay/internal/demux"
	"github.com/zsiec/prismplay/internal/ingest/srt"
	"github.com/zsiec/prismplay/internal/player"
	"github.com/zsiec/prismplay/internal/remote"
	"github.com/zsiec/prismplay/internal/tui"
)

func newPlayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <file|srt://host:port|->",
		Short: "Play an MPEG-TS file, standard input or an SRT stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, title, live, err := a.openInput(ctx, args[0])
			if err != nil {
				return err
			}
			return a.play(ctx, r, title, live)
		},
	}
	addPlayFlags(cmd)
	return cmd
}

// openInput opens a file, standard input ("-") or an srt:// URL. live
// reports whether the input is a real-time stream.
func (a *app) openInput(ctx context.Context, input string) (r io.ReadCloser, title string, live bool, err error) {
	switch {
	case input == "-":
		return io.NopCloser(os.Stdin), "stdin", false, nil
	case srt.IsURL(input):
		ep, err := srt.ParseURL(input)
		if err != nil {
			return nil, "", false, err
		}
		st, err := srt.Dial(ctx, ep, a.log)
		if err != nil {
			return nil, "", false, err
		}
		return st, input, true, nil
	default:
		f, err := os.Open(input)
		if err != nil {
			return nil, "", false, err
		}
		return f, filepath.Base(input), false, nil
	}
}

// play runs one session over r together with the optional control channel
// and terminal UI. It returns once the session has terminated.
func (a *app) play(ctx context.Context, r io.ReadCloser, title string, live bool) error {
	src, err := demux.Open(ctx, r, demux.Options{Log: a.log})
	if err != nil {
		r.Close()
		return fmt.Errorf("open %s: %w", title, err)
	}

	sess, err := player.New(src, player.Options{
		Sync:           a.cfg.Sync,
		FrameDrop:      a.cfg.FrameDrop,
		AutoExit:       a.cfg.AutoExit,
		Loop:           a.cfg.Loop,
		InfiniteBuffer: live,
		Video:          player.LogVideo{Log: a.log},
		Log:            a.log,
	})
	if err != nil {
		src.Close()
		return err
	}
	log := a.log.With("session", sess.ID())

	var srv *remote.Server
	if addr := a.cfg.RemoteAddr; addr != "" {
		cert, err := certs.Generate(certs.DefaultValidity)
		if err != nil {
			src.Close()
			return fmt.Errorf("generate certificate: %w", err)
		}
		if srv, err = remote.Listen(addr, cert, sess, log); err != nil {
			src.Close()
			return err
		}
	}

	// Everything besides the session itself stops when it terminates.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return sess.Run(gctx)
	})
	if srv != nil {
		g.Go(func() error { return srv.Serve(gctx) })
	}
	if !a.cfg.Headless {
		g.Go(func() error {
			defer sess.Quit()
			return tui.Run(gctx, sess, title)
		})
	}

	return g.Wait()
}
