package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsiec/prismplay/internal/certs"
	"github.com/zsiec/prismplay/internal/player"
	"github.com/zsiec/prismplay/internal/remote"
)

type ctlFlags struct {
	addr        string
	fingerprint string
	timeout     time.Duration
}

func newCtlCmd() *cobra.Command {
	var f ctlFlags
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running player over its QUIC control channel",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.addr, "addr", "", "Control channel address (host:port)")
	pf.StringVar(&f.fingerprint, "fingerprint", "", "Base64 SHA-256 fingerprint logged by the player")
	pf.DurationVar(&f.timeout, "timeout", 5*time.Second, "Per-request timeout")
	_ = cmd.MarkPersistentFlagRequired("addr")
	_ = cmd.MarkPersistentFlagRequired("fingerprint")

	simple := func(use, short string, call func(*remote.Client, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return f.run(cmd.Context(), func(ctx context.Context, c *remote.Client) error {
					return call(c, ctx)
				})
			},
		}
	}

	var relative bool
	seek := &cobra.Command{
		Use:   "seek <seconds>",
		Short: "Seek to a position, or by an offset with --relative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sec, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("seek: %w", err)
			}
			return f.run(cmd.Context(), func(ctx context.Context, c *remote.Client) error {
				accepted, err := c.Seek(ctx, remote.Seek{Seconds: sec, Relative: relative})
				if err != nil {
					return err
				}
				if !accepted {
					fmt.Fprintln(cmd.OutOrStdout(), "seek ignored: another seek is pending")
				}
				return nil
			})
		},
	}
	seek.Flags().BoolVarP(&relative, "relative", "r", false, "Treat seconds as an offset from the current position")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the player status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return f.run(cmd.Context(), func(ctx context.Context, c *remote.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd, st)
				return nil
			})
		},
	}

	cmd.AddCommand(
		simple("pause", "Toggle pause", (*remote.Client).TogglePause),
		simple("step", "Show the next video frame and pause", (*remote.Client).Step),
		simple("quit", "Stop the player", (*remote.Client).Quit),
		seek,
		status,
	)
	return cmd
}

// run connects, performs one request and disconnects.
func (f ctlFlags) run(ctx context.Context, do func(context.Context, *remote.Client) error) error {
	fp, err := certs.ParseFingerprint(f.fingerprint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	c, err := remote.Dial(ctx, f.addr, fp)
	if err != nil {
		return err
	}
	defer c.Close()
	return do(ctx, c)
}

func printStatus(cmd *cobra.Command, st player.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session  %s\n", st.ID)
	fmt.Fprintf(out, "state    %s\n", st.State)
	fmt.Fprintf(out, "master   %s\n", st.Master)
	fmt.Fprintln(out, st.String())
	for _, q := range []struct {
		name string
		qs   *player.QueueStatus
	}{{"video", st.Video}, {"audio", st.Audio}} {
		if q.qs == nil {
			continue
		}
		fmt.Fprintf(out, "%-8s packets=%d bytes=%d dur=%.2fs serial=%d frames=%d decoded=%d\n",
			q.name, q.qs.Packets, q.qs.Bytes, q.qs.Duration, q.qs.Serial, q.qs.Frames, q.qs.Decoded)
	}
}
