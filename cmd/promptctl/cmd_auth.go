package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/client"
)

var (
	loginEmail  string
	signupEmail string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Signs in against the identity provider and stores the session.

The password is read from PV_PASSWORD or, if unset, from the first line of
standard input.`,
	RunE: runLogin,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Registers a new account with the identity provider. Passwords need at
least 6 characters and are read like login reads them.

When the provider signs the account in straight away the session is
stored. Otherwise confirm the address from your inbox, then run login.`,
	RunE: runSignup,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sess.SignOut(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := sess.Current()
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.Email, id.UserID)
		if !id.ExpiresAt.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "session expires %s\n", id.ExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email (required)")
	loginCmd.MarkFlagRequired("email")
	signupCmd.Flags().StringVar(&signupEmail, "email", "", "account email (required)")
	signupCmd.MarkFlagRequired("email")
}

// readPassword takes PV_PASSWORD or the first line of standard input.
func readPassword(cmd *cobra.Command) (string, error) {
	password := os.Getenv("PV_PASSWORD")
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return "", errors.New("password is required")
	}
	return password, nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	idp := client.NewIdentity(cfg.Auth.IdentityURL, cfg.Auth.AnonKey)
	res, err := idp.SignUp(ctx, signupEmail, password)
	if err != nil {
		return err
	}
	if res.ConfirmationPending() {
		fmt.Fprintf(cmd.OutOrStdout(), "Check your email to confirm %s, then run promptctl login.\n", res.Identity.Email)
		return nil
	}
	if err := sess.SignIn(res.Identity, res.AccessToken); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Account created. Signed in as %s.\n", res.Identity.Email)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	idp := client.NewIdentity(cfg.Auth.IdentityURL, cfg.Auth.AnonKey)
	id, token, err := idp.SignIn(ctx, loginEmail, password)
	if err != nil {
		return err
	}
	if err := sess.SignIn(id, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", id.Email)
	return nil
}
