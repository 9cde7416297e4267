package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nimasrn/intake-gateway/internal/console"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	tokenFile string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "inbox",
	Short:         "Operator console for the intake gateway admin inbox",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if errors.Is(err, console.ErrUnauthorized) {
		return fmt.Errorf("token rejected (reason=%s), run `inbox login` again", console.ReasonUnauthorized)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("INBOX_SERVER", "http://localhost:8080"), "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", defaultTokenFile(), "where the admin token is kept")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "per request timeout")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(markReadCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "intake-gateway", "admin_token")
}

func newConsole() (*console.Console, error) {
	session, err := console.NewSession(console.NewFileTokenStore(tokenFile))
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	client := console.NewClient(console.ClientConfig{BaseURL: serverURL, Timeout: timeout})
	return console.New(client, session), nil
}

// resumed returns a console holding the stored token with page loaded.
func resumed(ctx context.Context, page int) (*console.Console, error) {
	c, err := newConsole()
	if err != nil {
		return nil, err
	}
	if err := c.Resume(); err != nil {
		return nil, fmt.Errorf("%w, run `inbox login <token>` first", err)
	}
	if err := c.Load(ctx, page); err != nil {
		return nil, err
	}
	return c, nil
}
