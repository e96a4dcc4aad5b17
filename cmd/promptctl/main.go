// Command promptctl is the terminal client for PromptVault: it browses and
// searches the public prompt library, manages the signed-in user's prompts
// and copies prompts to the clipboard.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/client"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/session"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
)

var (
	// Global flags
	configPath  string
	apiURL      string
	sessionPath string
	logFile     string
	timeout     time.Duration

	// Set up by PersistentPreRunE
	cfg     *config.Config
	sess    *session.Session
	api     *client.Client
	logSink io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "promptctl",
	Short: "Browse, search and share AI prompts",
	Long: `promptctl talks to a PromptVault API server.

Run "promptctl explore" for the interactive search view, or use the
subcommands to list, submit and manage prompts from scripts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := setupLogging(); err != nil {
			return err
		}
		path := sessionPath
		if path == "" {
			if path, err = session.DefaultPath(); err != nil {
				return err
			}
		}
		sess, err = session.Load(path)
		if err != nil {
			return err
		}
		sess.Subscribe(func(ev session.Event, id session.Identity) {
			slog.Info("session changed", "event", ev.String(), "user_id", id.UserID)
		})
		api = client.New(resolveAPIURL(), sess)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			_ = logSink.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (or set PV_API_URL)")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", "", "session file (default ~/.config/promptvault/session.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write debug logs to this file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(listCmd, submitCmd, mineCmd, editCmd, deleteCmd, copyCmd)
	rootCmd.AddCommand(waitlistCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setupLogging keeps logs off the terminal unless a log file is given,
// since explore owns the screen.
func setupLogging() error {
	if logFile == "" {
		logger.SetupWriter(io.Discard, "error", "text")
		return nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logSink = f
	logger.SetupWriter(f, "debug", cfg.Logging.Format)
	return nil
}

func resolveAPIURL() string {
	if apiURL != "" {
		return apiURL
	}
	if v := strings.TrimSpace(os.Getenv("PV_API_URL")); v != "" {
		return v
	}
	return fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
}
