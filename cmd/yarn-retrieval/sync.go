package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd(flags *rootFlags) *cobra.Command {
	var embed bool
	var pendingLimit int

	cmd := &cobra.Command{
		Use:   "sync <dir>...",
		Short: "Mirror documents from directories into the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, log, err := newEngine(flags)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			total := 0
			for _, dir := range args {
				n, err := eng.SyncDirectory(cmd.Context(), dir)
				if err != nil {
					return fmt.Errorf("sync %s: %w", dir, err)
				}
				total += n
			}
			log.Info("sync complete", "documents", total)

			if embed {
				if err := eng.ProcessPending(cmd.Context(), pendingLimit); err != nil {
					return err
				}
			}
			fmt.Printf("Synced %d documents\n", total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&embed, "embed", false, "also drain pending embedding jobs after syncing")
	cmd.Flags().IntVar(&pendingLimit, "pending-limit", 0, "max pending jobs to drain (0 = all)")
	return cmd
}
