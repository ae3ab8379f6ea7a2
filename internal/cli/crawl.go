package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/origincrawl/internal/config"
	"github.com/BenjaminSRussell/origincrawl/internal/crawler"
	"github.com/BenjaminSRussell/origincrawl/internal/types"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url]",
		Short: "Crawl one origin starting from a seed URL",
		Long: `Crawl fetches the seed URL, then every same-origin link it finds, until
the stop condition is met. Links are in scope when they start with "/" or
with the seed's scheme and host.

Stop conditions:
  --stop time   stop dispatching after --duration (default)
  --stop count  stop after --max-urls URLs have been dispatched

Stores (--store):
  ""                    discard pages
  -                     print title and text to stdout
  pages.jsonl           JSON lines file
  crawl.db              SQLite database
  postgres://...        PostgreSQL`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawl,
	}

	flags := cmd.Flags()
	flags.String("stop", string(types.StopByTime), "stop basis: time or count")
	flags.Duration("duration", 10*time.Second, "time budget when --stop=time")
	flags.Int("max-urls", 100, "URL budget when --stop=count")
	flags.Int("workers", 5, "number of concurrent fetches")
	flags.String("store", "", "where to store pages (see above)")
	flags.String("visited", "exact", "visited set: exact or bloom")
	flags.Bool("sitemap", false, "also start from the URLs in the site's sitemap.xml")
	flags.Bool("render", false, "re-render script-heavy pages with headless Chrome")
	flags.String("tls-profile", "", "browser TLS fingerprint: chrome, firefox, edge, safari")
	flags.Bool("rotate-headers", false, "send rotating browser request headers")
	flags.StringSlice("proxy", nil, "proxy to rotate through, host:port or scheme://host:port (repeatable)")
	flags.Duration("drain-timeout", 30*time.Second, "how long in-flight fetches may finish after dispatch stops")

	return cmd
}

// resolveConfig layers the config file, explicitly set flags, and the seed argument
func resolveConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("stop") {
		basis, _ := flags.GetString("stop")
		cfg.Stop.Basis = types.StopBasis(basis)
	}
	if flags.Changed("duration") {
		d, _ := flags.GetDuration("duration")
		cfg.Stop.Duration = config.DurationFrom(d)
	}
	if flags.Changed("max-urls") {
		cfg.Stop.MaxURLs, _ = flags.GetInt("max-urls")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("visited") {
		cfg.Visited.Mode, _ = flags.GetString("visited")
	}
	if flags.Changed("sitemap") {
		cfg.Seeding.Sitemap, _ = flags.GetBool("sitemap")
	}
	if flags.Changed("render") {
		cfg.Render.Enabled, _ = flags.GetBool("render")
	}
	if flags.Changed("tls-profile") {
		cfg.Fetch.TLSProfile, _ = flags.GetString("tls-profile")
	}
	if flags.Changed("rotate-headers") {
		cfg.Fetch.RotateHeaders, _ = flags.GetBool("rotate-headers")
	}
	if flags.Changed("proxy") {
		cfg.Fetch.Proxies, _ = flags.GetStringSlice("proxy")
	}
	if flags.Changed("drain-timeout") {
		d, _ := flags.GetDuration("drain-timeout")
		cfg.Engine.DrainTimeout = config.DurationFrom(d)
	}
	if len(args) == 1 {
		cfg.Seed = args[0]
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	c, err := crawler.NewFromConfig(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close resources", "error", err)
		}
	}()

	stats, err := c.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	printSummary(cmd.OutOrStdout(), stats)
	return nil
}

func printSummary(w io.Writer, stats *types.CrawlStats) {
	fmt.Fprintf(w, "\nCrawl completed: %s\n", stats.StopReason)
	fmt.Fprintf(w, "Seed:       %s\n", stats.SeedURL)
	fmt.Fprintf(w, "Visited:    %s URLs\n", humanize.Comma(int64(stats.VisitedCount)))
	fmt.Fprintf(w, "Fetched:    %s pages, %s errors\n", humanize.Comma(stats.Fetched), humanize.Comma(stats.FetchErrors))
	fmt.Fprintf(w, "Saved:      %s records, %s errors\n", humanize.Comma(stats.Saved), humanize.Comma(stats.SaveErrors))
	fmt.Fprintf(w, "Downloaded: %s\n", humanize.Bytes(uint64(stats.BytesFetched)))
	fmt.Fprintf(w, "Elapsed:    %s\n", stats.Elapsed.Round(time.Millisecond))

	if len(stats.SampleURLs) == 0 {
		return
	}
	fmt.Fprintf(w, "First %d visited URLs:\n", len(stats.SampleURLs))
	for _, u := range stats.SampleURLs {
		fmt.Fprintf(w, "  %s\n", u)
	}
}
