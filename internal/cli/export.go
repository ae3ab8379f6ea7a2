package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/origincrawl/internal/export"
	"github.com/BenjaminSRussell/origincrawl/internal/storage"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored pages as a sitemap, CSV, or JSON",
		Long: `Export reads the records a previous crawl wrote to a JSON lines file,
SQLite database, or PostgreSQL database and writes them in another format.`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	flags := cmd.Flags()
	flags.String("from", "", "store to read, same syntax as crawl --store (required)")
	flags.String("format", "sitemap", "output format: sitemap, csv, json")
	flags.String("output", "-", "output file, - for stdout")
	flags.Bool("include-lastmod", true, "include lastmod in sitemap")
	flags.Bool("include-changefreq", true, "include changefreq in sitemap")
	flags.Float64("default-priority", 0.5, "sitemap priority for every URL")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	from, _ := flags.GetString("from")
	formatName, _ := flags.GetString("format")
	output, _ := flags.GetString("output")

	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}

	sitemap := export.DefaultSitemapConfig()
	sitemap.IncludeLastmod, _ = flags.GetBool("include-lastmod")
	sitemap.IncludeChangefreq, _ = flags.GetBool("include-changefreq")
	sitemap.DefaultPriority, _ = flags.GetFloat64("default-priority")

	ctx := cmd.Context()
	loader, err := storage.OpenLoader(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer loader.Close()

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" && output != "" {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}

	count, err := export.Export(ctx, loader, format, w, sitemap)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if output != "-" && output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully exported %d entries to %s\n", count, output)
	}
	return nil
}
