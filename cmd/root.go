package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"paimon-mirror/config"
	"paimon-mirror/storage"
)

var (
	cfgFile   string
	warehouse string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "paimon-mirror",
	Short: "Mirror Postgres tables into Paimon tables and query them",
	Long: `paimon-mirror streams Postgres logical replication into append-only Paimon
tables on local disk or S3, serves them to Postgres clients through DuckDB,
and inspects table snapshots, manifests and data files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(cmd)
	},
	SilenceUsage: true,
}

// Execute is called by main.go and is the entry point for the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&warehouse, "warehouse", "", "local warehouse directory, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text, json")
}

// loadConfig reads --config, or builds a default configuration around
// --warehouse when no file is given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		if warehouse == "" {
			return nil, fmt.Errorf("one of --config or --warehouse is required")
		}
		return config.New(warehouse), nil
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if warehouse != "" {
		cfg.Storage.Type = "local"
		cfg.Warehouse.Path = warehouse
	}
	return cfg, nil
}

func openStorage(ctx context.Context) (*config.Config, storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	fsys, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, fsys, nil
}

// parseTableName splits "database.table".
func parseTableName(s string) (database, table string, err error) {
	database, table, ok := strings.Cut(s, ".")
	if !ok || database == "" || table == "" || strings.Contains(table, ".") {
		return "", "", fmt.Errorf("table %q: expected database.table", s)
	}
	return database, table, nil
}

func tableRoot(s string) (string, error) {
	database, table, err := parseTableName(s)
	if err != nil {
		return "", err
	}
	return config.Table{Schema: database, Name: table}.Path(), nil
}

// setupLogger applies --log-level and --log-format, falling back to the
// config file's log section.
func setupLogger(cmd *cobra.Command) error {
	level, format := logLevel, logFormat
	if cfgFile != "" && (level == "" || format == "") {
		if cfg, err := config.LoadConfig(cfgFile); err == nil {
			if level == "" {
				level = cfg.Log.Level
			}
			if format == "" {
				format = cfg.Log.Format
			}
		}
	}
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "text"
	}

	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("unknown log level: %q (expected debug, info, warn, error)", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	default:
		return fmt.Errorf("unknown log format: %q (expected text, json)", format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
