package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gauthierbraillon/reelcast/pkg/oauth"
)

// newAuthCmd creates the auth subcommand.
func newAuthCmd(flags *globalFlags) *cobra.Command {
	var refreshToken string

	cmd := &cobra.Command{
		Use:   "auth <access-token>",
		Short: "Save a bearer token for the feed service",
		Long:  "Save the bearer token used for likes, comments and shares. Reading the feed works without one.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("requires an access token argument")
			}
			if strings.TrimSpace(args[0]) == "" {
				return fmt.Errorf("invalid access token: must not be empty")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			token := &oauth.Token{
				AccessToken:  strings.TrimSpace(args[0]),
				RefreshToken: refreshToken,
				TokenType:    "Bearer",
			}
			if err := oauth.NewTokenStorage(cfg.Dir).Save(oauth.DefaultProvider, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to: %s\n", cfg.Dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh", "", "Refresh token used to renew the access token")

	cmd.AddCommand(newAuthRefreshCmd(flags))
	cmd.AddCommand(newAuthLogoutCmd(flags))

	return cmd
}

// newAuthRefreshCmd exchanges the stored refresh token for a new access token.
func newAuthRefreshCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			storage := oauth.NewTokenStorage(cfg.Dir)
			current, err := storage.Load(oauth.DefaultProvider)
			if errors.Is(err, oauth.ErrTokenNotFound) {
				return fmt.Errorf("not authenticated (run 'reelcast auth <token>')")
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			flow := oauth.NewFlow(oauth.ServiceConfig(cfg.APIURL, clientID))
			token, err := flow.RefreshAccessToken(ctx, current.RefreshToken)
			if errors.Is(err, oauth.ErrInvalidGrant) {
				return fmt.Errorf("refresh token rejected (run 'reelcast auth <token>' to sign in again)")
			}
			if err != nil {
				return err
			}
			if err := storage.Save(oauth.DefaultProvider, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Token refreshed.")
			if !token.Expiry.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "Valid until %s\n", token.Expiry.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

// newAuthLogoutCmd removes the stored token.
func newAuthLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if err := oauth.NewTokenStorage(cfg.Dir).Delete(oauth.DefaultProvider); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
