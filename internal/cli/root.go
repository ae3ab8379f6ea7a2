// Package cli implements the origincrawl command line.
package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/origincrawl/internal/config"
	crawllog "github.com/BenjaminSRussell/origincrawl/internal/log"
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "origincrawl",
		Short: "A concurrent single-origin web crawler",
		Long: `origincrawl starts from one seed URL and follows links that stay on the
seed's origin, fetching each page at most once with a bounded pool of
workers. The crawl stops after a time budget or a page count, or when
there is nothing left to fetch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (default $XDG_CONFIG_HOME/origincrawl/config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "text", "log format: text or json")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

// Execute runs the root command with ctx, which carries interrupt cancellation
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig reads the config file, if any, and applies the global flags
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	explicit, _ := flags.GetString("config")
	path, err := config.FindConfigFile(explicit)
	if err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}

	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	return crawllog.New(w, cfg.Logging.Level, cfg.Logging.Format)
}
