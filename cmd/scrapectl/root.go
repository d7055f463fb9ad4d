package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/CharanSaiVaddi/scrapectl/internal/config"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "scrapectl",
	Short:         "Run dealer scrapers with retries, timeouts and a persistent run state.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath, boundFlags(cmd))
		if err != nil {
			return err
		}
		cfg = c
		slog.SetDefault(newLogger(cfg.LogFormat, cfg.LogLevel))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config file (default ./"+config.DefaultFileName+" if present)")
	pf.String("jobs", "", "Path to the jobs file (default jobs.yaml)")
	pf.String("runs-dir", "", "Directory for state.json and attempt logs (default runs)")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("log-level", "", "Log level: debug, info, warn or error")
}

// boundFlags maps config keys to the flags of cmd that can override them.
func boundFlags(cmd *cobra.Command) map[string]*pflag.Flag {
	out := map[string]*pflag.Flag{}
	for key, name := range map[string]string{
		"jobs_file":     "jobs",
		"runs_dir":      "runs-dir",
		"log_format":    "log-format",
		"log_level":     "log-level",
		"concurrency":   "concurrency",
		"retry_backoff": "backoff",
	} {
		if f := cmd.Flags().Lookup(name); f != nil {
			out[key] = f
		}
	}
	return out
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
