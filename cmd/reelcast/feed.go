package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gauthierbraillon/reelcast/internal/display"
	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
)

// previewWorkers bounds concurrent comment fetches.
const previewWorkers = 4

// newFeedCmd creates the feed subcommand.
func newFeedCmd(flags *globalFlags) *cobra.Command {
	var limit, offset, comments int

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print a page of the feed",
		Long:  "Print one page of the feed with engagement counts and a preview of the newest comments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logging.Init(cfg.LogLevel)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			client := newClient(ctx, cfg, cmd.ErrOrStderr())

			page, err := client.FetchPage(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to fetch feed: %w", err)
			}

			var previews map[string][]feed.Comment
			if comments > 0 {
				previews = fetchPreviews(ctx, client, page.Items)
			}

			formatter := display.NewTerminalFormatter()
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatFeed(page.Items, previews, comments))
			if page.HasMore {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore items available (--offset %d)\n", offset+len(page.Items)+page.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum number of items to display")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many items")
	cmd.Flags().IntVarP(&comments, "comments", "c", 2, "Newest comments to preview per item (0 disables)")

	return cmd
}

// fetchPreviews loads comments for every item concurrently. Items whose
// comments fail to load are shown without a preview.
func fetchPreviews(ctx context.Context, gw feed.Gateway, items []feed.Item) map[string][]feed.Comment {
	var mu sync.Mutex
	previews := make(map[string][]feed.Comment, len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(previewWorkers)
	for _, item := range items {
		g.Go(func() error {
			list, err := gw.FetchComments(ctx, item.ID)
			if err != nil {
				logging.Warn("comments unavailable", "item", item.ID, "err", err)
				return nil
			}
			mu.Lock()
			previews[item.ID] = list
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return previews
}
