package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/interest-enricher/internal/cache"
	"github.com/Veraticus/interest-enricher/internal/cli"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the suggestion cache",
	}

	cmd.AddCommand(cachePurgeCmd())
	cmd.AddCommand(cacheWarmCmd())
	cmd.AddCommand(cacheStatsCmd())

	return cmd
}

func cachePurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete cache rows older than the persistent TTL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			n, err := a.persistent.Purge(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Purged %d cache entries older than %s", n, a.cfg.Cache.PersistentTTL)))
			return nil
		},
	}
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count cached search results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			n, err := a.store.CountCacheEntries(ctx)
			if err != nil {
				return fmt.Errorf("failed to count cache entries: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%d cached search results", n)))
			return nil
		},
	}
}

func cacheWarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warm [terms...]",
		Short: "Search terms ahead of a run so the run is served from cache",
		Example: `  enrich cache warm coffee tea
  enrich cache warm --country GB --file interests.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			country, _ := cmd.Flags().GetString("country")
			file, _ := cmd.Flags().GetString("file")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx := cmd.Context()
			terms := append([]string(nil), args...)
			if file != "" {
				items, err := readItemsFile(ctx, file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				for _, it := range items {
					terms = append(terms, it.Label)
				}
			}
			if len(terms) == 0 {
				return errors.New("no terms given: pass them as arguments or with --file")
			}

			a, err := newApp(ctx, appOptions{search: true, offline: dryRun})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			results, err := cache.Warm(ctx, a.cache, a.client, terms,
				strings.ToUpper(strings.TrimSpace(country)), a.cfg.Search.Limit, a.cfg.Pipeline.MaxConcurrency)
			if err != nil {
				return err
			}

			searched := 0
			for _, r := range results {
				if r.Source == cache.SourceNone {
					searched++
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Warmed %d terms (%d searched, %d already cached)", len(results), searched, len(results)-searched)))
			return nil
		},
	}

	cmd.Flags().String("country", "US", "country code to warm")
	cmd.Flags().StringP("file", "f", "", `read terms from a file ("-" for stdin)`)
	cmd.Flags().Bool("dry-run", false, "answer searches with no candidates instead of calling the API; nothing is cached")
	return cmd
}
