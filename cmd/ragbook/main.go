package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/config"
)

var (
	configPath string
	logLevel   string
)

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragbook",
		Short:         "Ask questions about your documents",
		Long:          "ragbook ingests PDF, EPUB and text files into a vector store and answers questions about them with a language model. It also trains small tabular classifiers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	root.AddCommand(
		newIngestCommand(),
		newQueryCommand(),
		newAskCommand(),
		newChatCommand(),
		newDocsCommand(),
		newModelsCommand(),
		newMigrateCommand(),
		newConfigCommand(),
		newTabularCommand(),
	)
	return root
}

// loadConfig reads the config file and installs the logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
