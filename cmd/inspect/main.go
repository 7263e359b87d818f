// Command inspect prints the identity, sessions and history stored by a mini-chat client.
// The database is opened read-only, a running client keeps its lock.
package main

import (
	"fmt"
	"log/slog"
	"mini-chat/infrastructure/storage"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

var (
	config Config
	dbPath string
	db     *badger.DB
	kv     *storage.BadgerKV
	logger *slog.Logger
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func Execute() error {
	root := &cobra.Command{
		Use:          "inspect",
		Short:        "Read the local mini-chat store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if config, err = LoadConfig(); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if dbPath == "" {
				dbPath = config.BadgerFilepath
			}
			if dbPath == "" {
				return fmt.Errorf("no database path, use --db or INSPECT_BADGER_FILEPATH")
			}
			opts := badger.DefaultOptions(dbPath).
				WithReadOnly(true).
				WithBypassLockGuard(true).
				WithLoggingLevel(badger.WARNING)
			if db, err = badger.Open(opts); err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			logger = logs.GetLoggerFromLevel(slog.LevelWarn)
			kv = storage.NewBadgerKV(db, logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to the badger directory (default $INSPECT_BADGER_FILEPATH)")
	root.AddCommand(identityCmd(), sessionsCmd(), messagesCmd())
	return root.Execute()
}
