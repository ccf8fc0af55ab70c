package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/reelcast/internal/controller"
	"github.com/gauthierbraillon/reelcast/internal/engagement"
	"github.com/gauthierbraillon/reelcast/internal/logging"
	"github.com/gauthierbraillon/reelcast/internal/playback"
	"github.com/gauthierbraillon/reelcast/internal/tui"
)

// newPlayCmd creates the play subcommand.
func newPlayCmd(flags *globalFlags) *cobra.Command {
	var pageSize, prefetch, cells, clipSeconds int

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the feed in the terminal",
		Long: `Open the interactive feed player.

Keys: j/k scroll, l like, c comment, s share, o open media, p profile,
space pause, r reload, q quit. Logs go to the logs/ folder of the config
directory while the player owns the terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("page-size") {
				cfg.PageSize = pageSize
			}
			if cmd.Flags().Changed("prefetch") {
				cfg.PrefetchDistance = prefetch
			}
			if cmd.Flags().Changed("cells") {
				cfg.Player.Cells = cells
			}
			if cmd.Flags().Changed("clip") {
				cfg.Player.ClipSeconds = clipSeconds
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := logging.InitFile(filepath.Join(cfg.Dir, "logs"), cfg.LogLevel); err != nil {
				return err
			}
			defer logging.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			client := newClient(ctx, cfg, cmd.ErrOrStderr())
			cancel()

			engine := tui.NewClockEngine(time.Duration(cfg.Player.ClipSeconds) * time.Second)
			recycler := playback.NewRecycler(engine, cfg.Player.Cells,
				playback.WithCellLogger(logging.WithPrefix("playback")))
			store := engagement.NewStore(client)
			ctrl := controller.New(client, store,
				controller.WithRecycler(recycler),
				controller.WithPageSize(cfg.PageSize),
				controller.WithPrefetchDistance(cfg.PrefetchDistance),
			)

			model := tui.New(ctrl, store, engine, tui.WithWindow(cfg.Player.Cells))
			defer model.Close()

			logging.Info("player starting", "api", cfg.APIURL, "page_size", cfg.PageSize, "cells", cfg.Player.Cells)
			if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
				return fmt.Errorf("player failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 10, "Items requested per page")
	cmd.Flags().IntVar(&prefetch, "prefetch", 2, "Load the next page this many cards before the end")
	cmd.Flags().IntVar(&cells, "cells", 3, "Cards kept bound to players around the current one")
	cmd.Flags().IntVar(&clipSeconds, "clip", 15, "Seconds each clip runs before looping")

	return cmd
}
