package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentx/liveassist/internal/auth"
	"github.com/agentx/liveassist/internal/config"
	"github.com/agentx/liveassist/internal/models"
)

type tokenOptions struct {
	userID         string
	tenantID       string
	role           string
	conversationID string
}

func newTokenCmd() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint tokens for local testing",
	}
	cmd.PersistentFlags().StringVar(&opts.userID, "user", "", "user ID (required)")
	cmd.PersistentFlags().StringVar(&opts.tenantID, "tenant", "", "tenant ID (required)")
	cmd.PersistentFlags().StringVar(&opts.role, "role", models.RoleAgent, "principal role")
	_ = cmd.MarkPersistentFlagRequired("user")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	access := &cobra.Command{
		Use:   "access",
		Short: "Mint an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return mintAccessToken(cmd.OutOrStdout(), cfg, opts)
		},
	}

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Mint a relay session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return mintRelayToken(cmd.OutOrStdout(), cfg, opts)
		},
	}
	relayCmd.Flags().StringVar(&opts.conversationID, "conversation", "", "bind the token to a conversation")

	cmd.AddCommand(access, relayCmd)
	return cmd
}

func (o *tokenOptions) principal() models.Principal {
	return models.Principal{UserID: o.userID, TenantID: o.tenantID, Role: o.role}
}

func jwtService(cfg *config.Config) (*auth.JWTService, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("no JWT secret configured, set LIVEASSIST_JWT_SECRET")
	}
	return auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.RelayTokenTTL), nil
}

func mintAccessToken(w io.Writer, cfg *config.Config, opts *tokenOptions) error {
	svc, err := jwtService(cfg)
	if err != nil {
		return err
	}

	token, err := svc.GenerateAccessToken(opts.principal())
	if err != nil {
		return fmt.Errorf("generate access token: %w", err)
	}

	fmt.Fprintf(w, "Access token for %s (tenant %s), valid %s:\n", opts.userID, opts.tenantID, auth.AccessTokenTTL)
	fmt.Fprintln(w, token)
	fmt.Fprintln(w, "\nAdd this to localStorage in the browser console:")
	fmt.Fprintf(w, "localStorage.setItem('access_token', '%s');\n", token)
	return nil
}

func mintRelayToken(w io.Writer, cfg *config.Config, opts *tokenOptions) error {
	svc, err := jwtService(cfg)
	if err != nil {
		return err
	}

	principal := opts.principal()
	token, expiresAt, err := svc.IssueRelayToken(&principal, opts.conversationID)
	if err != nil {
		return fmt.Errorf("issue relay token: %w", err)
	}

	fmt.Fprintf(w, "Relay token, expires %s:\n", expiresAt.Format(time.RFC3339))
	fmt.Fprintln(w, token)
	return nil
}
