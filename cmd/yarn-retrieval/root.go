package main

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/feamando/yarn-retrieval/internal/embedder"
	"github.com/feamando/yarn-retrieval/internal/engine"
	"github.com/feamando/yarn-retrieval/internal/logger"
	"github.com/feamando/yarn-retrieval/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type rootFlags struct {
	dbPath    string
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "yarn-retrieval",
		Short: "Hybrid lexical and vector retrieval over a document corpus",
		Long: `yarn-retrieval indexes documents into a SQLite FTS5 lexical index and a
vector store of embeddings, then answers queries by fusing BM25 rank with
cosine similarity into a length-bounded context block.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing .env is fine; env vars may be set directly.
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "yarn-retrieval.db", "SQLite database path")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format (text, json)")

	cmd.AddCommand(
		newRetrieveCmd(flags),
		newSyncCmd(flags),
		newWatchCmd(flags),
		newJobsCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// newEngine builds the engine from the root flags and environment.
func newEngine(flags *rootFlags) (*engine.Engine, *slog.Logger, error) {
	log := logger.New(logger.Config{Level: flags.logLevel, Format: flags.logFormat})

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Options{
		DBPath:   flags.dbPath,
		Embedder: emb,
		Logger:   log,
	})
	if err != nil {
		emb.Close()
		return nil, nil, err
	}
	return eng, log, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("yarn-retrieval %s (sqlite driver: %s, build mode: %s)\n",
				Version, storage.DriverName, storage.BuildMode)
		},
	}
}
