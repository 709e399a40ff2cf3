package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zsiec/prismplay/internal/ingest/srt"
)

func newListenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen <addr>",
		Short: "Wait for one SRT caller on addr and play its stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ln, err := srt.Listen(args[0], a.log)
			if err != nil {
				return err
			}
			a.log.Info("waiting for SRT caller", "addr", args[0])
			st, err := ln.Accept(ctx)
			ln.Close()
			if err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			return a.play(ctx, st, "srt://"+st.Key, true)
		},
	}
	addPlayFlags(cmd)
	return cmd
}
