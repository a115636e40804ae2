package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podpublish/internal/services/googleauth"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Drive and Gmail access",
	}
	authCmd.AddCommand(newAuthURLCommand(ctx))
	authCmd.AddCommand(newAuthExchangeCommand(ctx))
	return authCmd
}

func authOptions(ctx *commandContext) (googleauth.Options, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return googleauth.Options{}, err
	}
	return googleauth.Options{CredentialsFile: cfg.Mail.CredentialsFile, TokenFile: cfg.Mail.TokenFile}, nil
}

func newAuthURLCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the consent URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := authOptions(ctx)
			if err != nil {
				return err
			}
			oauthCfg, err := googleauth.LoadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Open this URL, approve access, then run `podpublish auth exchange <code>`:")
			fmt.Fprintln(out, googleauth.AuthCodeURL(oauthCfg))
			return nil
		},
	}
}

func newAuthExchangeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <code>",
		Short: "Exchange an authorization code for a stored token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := authOptions(ctx)
			if err != nil {
				return err
			}
			oauthCfg, err := googleauth.LoadConfig(opts)
			if err != nil {
				return err
			}
			tok, err := googleauth.Exchange(cmd.Context(), oauthCfg, args[0], opts.TokenFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token saved to %s\n", opts.TokenFile)
			if tok.RefreshToken == "" {
				fmt.Fprintln(out, "Warning: no refresh token returned; revoke the app grant and authorize again")
			}
			return nil
		},
	}
}
