package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/config"
	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/store"
)

// loadConfig reads --config and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DatabasePath = v
	}
	if v, _ := cmd.Flags().GetString("catalog"); v != "" {
		cfg.CatalogPath = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the text logger used by every command.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// loadEngine loads the catalog and builds the scorer from cfg.
func loadEngine(cfg *config.Config) (*catalog.Catalog, *scoring.Scorer, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	scorer := scoring.NewScorer(cat,
		scoring.WithThresholds(cfg.Scoring.Thresholds),
		scoring.WithNormalization(cfg.Scoring.Normalization),
	)
	return cat, scorer, nil
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.DatabasePath, err)
	}
	return s, nil
}
