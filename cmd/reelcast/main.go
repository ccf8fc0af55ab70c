// Package main provides the reelcast CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/reelcast/internal/api"
	"github.com/gauthierbraillon/reelcast/internal/config"
	"github.com/gauthierbraillon/reelcast/pkg/oauth"
)

// version is injected at build time:
//
//	go build -ldflags="-X main.version=$(git describe --tags --always --dirty)" ./cmd/reelcast
var version = "dev"

// clientID identifies the CLI to the token endpoint.
const clientID = "reelcast-cli"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveVersion prefers the ldflags version and falls back to the module
// version recorded by go install.
func resolveVersion(ldflags string, info *debug.BuildInfo) string {
	if ldflags != "dev" {
		return ldflags
	}
	if info == nil || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func buildInfo() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
}

// globalFlags are overrides shared by every subcommand.
type globalFlags struct {
	apiURL   string
	logLevel string
}

// newRootCmd creates the root command for reelcast CLI.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "reelcast",
		Short:         "A vertical video feed in your terminal",
		Long:          "Reelcast plays a paged vertical video feed: scroll, like, comment and share from the terminal.",
		Version:       resolveVersion(version, buildInfo()),
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate("reelcast version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "Feed service URL (overrides "+config.EnvAPIURL+")")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newPlayCmd(flags))
	rootCmd.AddCommand(newFeedCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newAuthCmd(flags))
	rootCmd.AddCommand(newConfigCmd(flags))

	return rootCmd
}

// loadConfig resolves the configuration and applies command-line overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.apiURL != "" {
		cfg.APIURL = flags.apiURL
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// newClient builds a feed service client with the stored token, refreshing
// it first when it has expired. Without a token the client reads anonymously.
func newClient(ctx context.Context, cfg *config.Config, stderr io.Writer) *api.Client {
	storage := oauth.NewTokenStorage(cfg.Dir)
	flow := oauth.NewFlow(oauth.ServiceConfig(cfg.APIURL, clientID))

	token, err := storage.LoadFresh(ctx, oauth.DefaultProvider, flow)
	switch {
	case errors.Is(err, oauth.ErrTokenNotFound):
		fmt.Fprintln(stderr, "Not signed in: likes, comments and shares need a token (run 'reelcast auth <token>').")
		token = nil
	case errors.Is(err, oauth.ErrInvalidGrant):
		fmt.Fprintln(stderr, "Your session expired (run 'reelcast auth <token>' to sign in again).")
	case err != nil:
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}

	return api.NewClient(token,
		api.WithBaseURL(cfg.APIURL),
		api.WithRateLimit(cfg.RateLimit),
	)
}
