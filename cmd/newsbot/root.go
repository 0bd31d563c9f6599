package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"NewsBot/internal/app"
	"NewsBot/internal/config"
	"NewsBot/internal/domain"
	"NewsBot/internal/logging"
)

type rootOptions struct {
	configPath string
	dryRun     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "newsbot",
		Short:        "Crawl news sites via sitemaps and custom selectors",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config (default $NEWSBOT_CONFIG)")
	cmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "keep records in memory instead of the database")

	cmd.AddCommand(
		newCrawlCommand(opts),
		newScheduleCommand(opts),
		newIndexesCommand(opts),
		newSitesCommand(opts),
		newArticlesCommand(opts),
	)
	return cmd
}

// bootstrap loads config and assembles the application.
func bootstrap(ctx context.Context, opts *rootOptions, appOpts app.Options) (*app.Application, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	appOpts.DryRun = appOpts.DryRun || opts.dryRun

	application, err := app.New(ctx, cfg, logger, appOpts)
	if err != nil {
		return nil, nil, err
	}
	return application, logger, nil
}

func newCrawlCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl over all sources and print the summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			application, _, err := bootstrap(ctx, opts, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close(context.WithoutCancel(ctx))

			run, err := application.Crawl(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}
}

func newScheduleCommand(opts *rootOptions) *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Crawl on the configured cron expression until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			application, logger, err := bootstrap(ctx, opts, app.Options{RunOnStart: runOnStart})
			if err != nil {
				return err
			}
			defer application.Close(context.WithoutCancel(ctx))

			if err := application.Schedule(ctx); err != nil {
				return err
			}
			logger.Info("scheduler stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "trigger one crawl immediately")
	return cmd
}

func newIndexesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create storage indexes (url unique, source_type, crawled_at)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			application, logger, err := bootstrap(ctx, opts, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close(context.WithoutCancel(ctx))

			if err := application.EnsureIndexes(ctx); err != nil {
				return err
			}
			logger.Info("indexes ensured")
			return nil
		},
	}
}

func newSitesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sites [url]",
		Short: "List configured sources, or show how a URL would be crawled",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				src, match, err := cfg.ResolveURL(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s resolved via %s\n", src.BaseURL, match)
				renderSelectors(out, src.Selectors)
				return nil
			}

			sources, err := cfg.Sources()
			if err != nil {
				return err
			}
			renderSources(out, sources)
			fmt.Fprintf(out, "presets: %s\n", strings.Join(config.PresetNames(), ", "))
			return nil
		},
	}
}

func newArticlesCommand(opts *rootOptions) *cobra.Command {
	var query domain.ArticleQuery
	var sourceType string
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Query stored articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			application, _, err := bootstrap(ctx, opts, app.Options{})
			if err != nil {
				return err
			}
			defer application.Close(context.WithoutCancel(ctx))

			query.SourceType = domain.SourceType(sourceType)
			if query.SourceType != "" && !query.SourceType.Valid() {
				return fmt.Errorf("unknown source type %q", sourceType)
			}
			records, err := application.Repository().Find(ctx, query)
			if err != nil {
				return err
			}
			renderArticles(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceType, "type", "", "sitemap_news, html_content or custom_crawl")
	cmd.Flags().StringVar(&query.URLPattern, "url", "", "regular expression the URL must match")
	cmd.Flags().StringVar(&query.HasField, "has", "", "only records with this field set")
	cmd.Flags().IntVar(&query.Limit, "limit", 20, "maximum number of rows")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSources(w io.Writer, sources []domain.SourceConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "URL", "Sitemap", "HTML", "Custom", "Links"})
	for _, src := range sources {
		t.AppendRow(table.Row{src.Name, src.BaseURL, src.CrawlSitemap, src.CrawlHTML, src.UseCustomSelectors, src.DiscoverLinks})
	}
	t.Render()
}

func renderSelectors(w io.Writer, selectors domain.Selectors) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Selectors"})
	for _, field := range domain.KnownFields {
		if list, ok := selectors[field]; ok {
			t.AppendRow(table.Row{field, strings.Join(list, " | ")})
		}
	}
	t.Render()
}

func renderArticles(w io.Writer, records []domain.NormalizedRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"URL", "Title", "Date", "Type"})
	for _, rec := range records {
		t.AppendRow(table.Row{rec.URL, truncate(rec.Title, 60), rec.Date, rec.SourceType})
	}
	t.AppendFooter(table.Row{"", "", "total", len(records)})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
