// Command auth manages admin API keys and mints development bearer tokens.
//
//	auth create --name ops [--rate-limit 100] [--expires-in 720h]
//	auth revoke --key pv_admin_...
//	auth list
//	auth token [--user <uuid>] [--email a@b.co] [--ttl 1h]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries what the subcommands share once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	out        io.Writer
}

// withKeys opens Postgres, makes sure the schema exists and hands fn a key
// store. The connection is closed when fn returns.
func (a *app) withKeys(ctx context.Context, fn func(*apikey.Validator) error) error {
	db, err := postgres.New(a.cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(apikey.NewValidator(db))
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "auth",
		Short:         "Manage admin API keys and development tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "configs/development.yaml", "path to config file")
	root.AddCommand(a.createCmd(), a.revokeCmd(), a.listCmd(), a.tokenCmd())
	return root
}

func (a *app) createCmd() *cobra.Command {
	var (
		name      string
		rateLimit int
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().Add(expiresIn).UTC()
				expiresAt = &t
			}
			return a.withKeys(cmd.Context(), func(keys *apikey.Validator) error {
				raw, err := keys.CreateKey(cmd.Context(), name, rateLimit, expiresAt)
				if err != nil {
					return fmt.Errorf("creating key: %w", err)
				}
				fmt.Fprintf(a.out, "Admin key created. It is shown only once:\n\n  %s\n\n", raw)
				fmt.Fprintf(a.out, "  name        %s\n  rate limit  %d req/min\n", name, rateLimit)
				if expiresAt != nil {
					fmt.Fprintf(a.out, "  expires     %s\n", expiresAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name for the admin key")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 100, "requests per minute")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime, e.g. 720h (0 = never)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) revokeCmd() *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an admin API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeys(cmd.Context(), func(keys *apikey.Validator) error {
				if err := keys.RevokeKey(cmd.Context(), raw); err != nil {
					if errors.Is(err, apikey.ErrInvalidKey) {
						return fmt.Errorf("no active key matches")
					}
					return fmt.Errorf("revoking key: %w", err)
				}
				fmt.Fprintln(a.out, "Admin key revoked.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&raw, "key", "", "raw admin key to revoke")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active admin API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeys(cmd.Context(), func(keys *apikey.Validator) error {
				infos, err := keys.ListKeys(cmd.Context())
				if err != nil {
					return fmt.Errorf("listing keys: %w", err)
				}
				return printKeys(a.out, infos)
			})
		},
	}
}

func printKeys(w io.Writer, infos []apikey.KeyInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "No active admin keys.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE LIMIT\tCREATED\tEXPIRES")
	for _, k := range infos {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", k.ID, k.Name, k.RateLimit, k.CreatedAt.Format(time.RFC3339), expires)
	}
	return tw.Flush()
}

// tokenCmd signs a bearer token with the shared secret, for local testing
// without an identity provider.
func (a *app) tokenCmd() *cobra.Command {
	var (
		user  string
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwtSecret is not configured (set PV_AUTH_JWT_SECRET)")
			}
			if user == "" {
				user = uuid.NewString()
			}
			signed, err := token.NewSigner(a.cfg.Auth).Sign(user, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject user id (default: random)")
	cmd.Flags().StringVar(&email, "email", "dev@promptvault.local", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
