package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "listener",
		Short:        "Contract event listener",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow one contract event and keep a deduplicated snapshot",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("rpc", "", "RPC URL")
	watchCmd.Flags().StringSlice("contracts", nil, "contracts as name=address (comma-separated)")
	watchCmd.Flags().StringSlice("abi", nil, "ABI files as name=path (comma-separated), ERC-20 events when omitted")
	watchCmd.Flags().String("contract", "", "name of the contract to follow")
	watchCmd.Flags().String("event", "", "name of the event to follow")
	watchCmd.Flags().Uint64("start-block", 0, "block to start scanning historical events from, chain head when unset")
	watchCmd.Flags().Duration("poll-interval", 4*time.Second, "interval between log polls")
	watchCmd.Flags().Uint64("batch-size", 2000, "blocks per FilterLogs call")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts per RPC call")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().String("out", "./data/events.jsonl", "snapshot JSONL path, empty to disable")
	watchCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty to disable")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
