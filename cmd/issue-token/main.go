// Command issue-token mints a signed bearer token for local testing of the offer API.
//
//	issue-token --sub u-42 --roles SalesManager,SalesSupport
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/offer-lifecycle/internal/config"
	"github.com/garyjia/offer-lifecycle/pkg/auth"
)

var (
	configPath string
	subject    string
	roles      string
	ttl        time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "issue-token",
	Short:         "Mint a bearer token for the offer API",
	Long:          `Signs a JWT with the configured auth.jwt_secret and prints it to stdout.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIssue,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to the YAML config file")
	rootCmd.Flags().StringVar(&subject, "sub", "", "user id placed in the sub claim")
	rootCmd.Flags().StringVar(&roles, "roles", "SalesSupport", "comma separated role names")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to auth.token_ttl")
	_ = rootCmd.MarkFlagRequired("sub")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIssue(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lifetime := cfg.Auth.TokenTTL
	if ttl > 0 {
		lifetime = ttl
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, lifetime)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	token, err := tokens.Generate(subject, splitRoles(roles))
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Token for %s expires at %s\n", subject, time.Now().Add(lifetime).Format(time.RFC3339))
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
