package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/poyrazK/tourpass/internal/adapters/repository"
	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/poyrazK/tourpass/internal/core/ports"
	"github.com/poyrazK/tourpass/internal/core/services"
	"github.com/poyrazK/tourpass/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cliEnv struct {
	configPath string
	cfg        *config.Config
}

func (e *cliEnv) load() error {
	if e.cfg != nil {
		return nil
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg
	return nil
}

func (e *cliEnv) open(ctx context.Context, migrate bool) (repository.Store, error) {
	if err := e.load(); err != nil {
		return nil, err
	}
	return repository.Open(ctx, repository.Options{
		Driver:        e.cfg.Store.Driver,
		DSN:           e.cfg.Store.DSN,
		RedisAddr:     e.cfg.Redis.Addr,
		RedisPassword: e.cfg.Redis.Password,
		RedisDB:       e.cfg.Redis.DB,
		Migrate:       migrate,
	})
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}
	rootCmd := &cobra.Command{
		Use:           "tokenctl",
		Short:         "Operate on tourpass access tokens",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&env.configPath, "config", "", "Path to a YAML config file (default $TOURPASS_CONFIG)")

	rootCmd.AddCommand(issueCmd(env))
	rootCmd.AddCommand(showCmd(env))
	rootCmd.AddCommand(matchCmd(env))
	rootCmd.AddCommand(migrateCmd(env))
	return rootCmd
}

func issueCmd(env *cliEnv) *cobra.Command {
	var (
		resource string
		orderID  string
		ttl      time.Duration
		maxUses  int
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for a resource without a purchase",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer store.Close()

			catalog, err := env.cfg.Catalog()
			if err != nil {
				return err
			}
			policy := env.cfg.Policy
			if cmd.Flags().Changed("ttl") {
				policy.TTL = ttl
			}
			if cmd.Flags().Changed("max-uses") {
				policy.MaxUses = maxUses
			}
			req := domain.IssueRequest{ResourceID: domain.ResourceID(resource), Policy: policy}
			if orderID != "" {
				req.IdempotencyKey = &orderID
			}
			return issueToken(cmd.Context(), store, catalog, env.cfg.BaseURL, req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&resource, "resource", "r", "", "Resource id (e.g. Ross)")
	cmd.Flags().StringVar(&orderID, "order-id", "", "Idempotency key; reissuing with the same id returns the same token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime, 0 = never expires (default from config)")
	cmd.Flags().IntVar(&maxUses, "max-uses", 0, "Redemption cap, 0 = unlimited (default from config)")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

func issueToken(ctx context.Context, repo ports.TokenRepository, catalog *domain.Catalog, baseURL string, req domain.IssueRequest, out io.Writer) error {
	res, err := services.NewTokenIssuer(repo, catalog, nil).Issue(ctx, req)
	if err != nil {
		return err
	}
	accessURL := services.BuildAccessURL(baseURL, res.Record.Token)

	if res.AlreadyProcessed {
		fmt.Fprintln(out, "Order already processed, existing token:")
	} else {
		fmt.Fprintln(out, "Token issued:")
	}
	fmt.Fprintf(out, "  Token:      %s\n", res.Record.Token)
	fmt.Fprintf(out, "  Resource:   %s\n", res.Record.ResourceID)
	fmt.Fprintf(out, "  Expires:    %s\n", formatExpiry(res.Record.ExpiresAt))
	fmt.Fprintf(out, "  Max uses:   %s\n", formatUses(res.Record.MaxUses))
	fmt.Fprintf(out, "  Access URL: %s\n", accessURL)
	return nil
}

func showCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "show <token>",
		Short: "Print a token's state without consuming a use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer store.Close()
			return showToken(cmd.Context(), store, args[0], time.Now(), cmd.OutOrStdout())
		},
	}
}

func showToken(ctx context.Context, repo ports.TokenRepository, token string, now time.Time, out io.Writer) error {
	if err := domain.ValidateToken(token); err != nil {
		return err
	}
	rec, err := repo.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("token %s: %w", token, domain.ErrInvalidToken)
	}

	view := struct {
		*domain.TokenRecord
		RemainingUses int  `json:"remaining_uses"`
		Expired       bool `json:"expired"`
	}{rec, rec.RemainingUses(), rec.Expired(now)}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func matchCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "match <product name>",
		Short: "Show which resource a product name maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.load(); err != nil {
				return err
			}
			catalog, err := env.cfg.Catalog()
			if err != nil {
				return err
			}
			matcher, err := env.cfg.Matcher(catalog)
			if err != nil {
				return err
			}
			return matchProduct(matcher, catalog, args[0], cmd.OutOrStdout())
		},
	}
}

func matchProduct(matcher *domain.Matcher, catalog *domain.Catalog, name string, out io.Writer) error {
	normalized := domain.NormalizeName(name)
	rule, ok := matcher.Match(normalized)
	if !ok {
		fmt.Fprintf(out, "%q: no matching rule\n", normalized)
		return nil
	}
	res, _ := catalog.Lookup(rule.ResourceID)
	fmt.Fprintf(out, "%q -> %s (rule %q, path %s)\n", normalized, rule.ResourceID, rule.Pattern, res.RedirectPath("<token>"))
	return nil
}

func migrateCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the token store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", env.cfg.Store.Driver)
			return nil
		},
	}
}

func formatExpiry(t time.Time) string {
	if t.Equal(domain.NeverExpires) {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func formatUses(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
