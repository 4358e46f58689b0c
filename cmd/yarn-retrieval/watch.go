package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var catchUp bool

	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Watch directories and keep embeddings current",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, log, err := newEngine(flags)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if catchUp {
				if err := eng.ProcessPending(cmd.Context(), 0); err != nil {
					log.Warn("catch-up failed", "error", err)
				}
			}

			if err := eng.StartWatching(cmd.Context(), args); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				log.Info("shutting down", "signal", sig)
			case <-cmd.Context().Done():
			}
			return eng.StopWatching()
		},
	}

	cmd.Flags().BoolVar(&catchUp, "catch-up", true, "drain pending embedding jobs before watching")
	return cmd
}
