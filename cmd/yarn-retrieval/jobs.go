package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain the embedding job queue",
	}
	cmd.AddCommand(newJobsListCmd(flags), newJobsCleanupCmd(flags), newJobsDrainCmd(flags))
	return cmd
}

func newJobsListCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending embedding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := newEngine(flags)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			jobs, err := eng.Storage().PendingJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No pending jobs.")
				return nil
			}
			for _, job := range jobs {
				fmt.Printf("%d\tdoc=%d\t%s\t%s\n", job.ID, job.DocumentID, job.FilePath, job.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max jobs to list (0 = all)")
	return cmd
}

func newJobsDrainCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process pending embedding jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := newEngine(flags)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()
			return eng.ProcessPending(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max jobs to drain (0 = all)")
	return cmd
}

func newJobsCleanupCmd(flags *rootFlags) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old completed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := newEngine(flags)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			n, err := eng.CleanupJobs(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d jobs\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "minimum age of jobs to remove")
	return cmd
}
