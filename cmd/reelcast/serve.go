package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/reelcast/internal/backend"
	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
	"github.com/gauthierbraillon/reelcast/pkg/oauth"
)

// newServeCmd creates the serve subcommand.
func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen, dbPath, user string
	var seed int
	var saveToken bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local feed service",
		Long: `Run the development feed service backed by SQLite.

The database is seeded with demo items on first start, and a bearer token is
issued for a demo user and saved so 'reelcast play' can like and comment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("db") {
				cfg.Server.DBPath = dbPath
			}
			if cmd.Flags().Changed("seed") {
				cfg.Server.SeedItems = seed
			}
			logging.Init(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := backend.New(cfg.Server.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if cfg.Server.SeedItems > 0 {
				added, err := backend.Seed(ctx, store, cfg.Server.SeedItems)
				if err != nil {
					return err
				}
				if added > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d demo items\n", added)
				}
			}

			token, err := store.IssueToken(ctx, feed.Author{ID: user, DisplayName: user})
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			if saveToken {
				if err := oauth.NewTokenStorage(cfg.Dir).Save(oauth.DefaultProvider, token); err != nil {
					return fmt.Errorf("failed to save token: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as @%s (token saved to %s)\n", user, cfg.Dir)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Token for @%s: %s\n", user, token.AccessToken)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Feed service on http://%s (database %s)\n", cfg.Server.Listen, cfg.Server.DBPath)
			return backend.NewServer(store).ListenAndServe(ctx, cfg.Server.Listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default: reelcast.db in the config directory)")
	cmd.Flags().IntVar(&seed, "seed", 40, "Demo items to create on first start (0 disables)")
	cmd.Flags().StringVar(&user, "user", "demo", "Demo user the issued token belongs to")
	cmd.Flags().BoolVar(&saveToken, "save-token", true, "Save the issued token for 'reelcast play'")

	return cmd
}
