package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dataDir  string
	backend  string
	logLevel string
	email    string
	password string
)

var rootCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage your prompts from the terminal",
	Long: `vault works directly on a PromptVault data directory. It can run next
to the server: writes made here show up in every live stream the server holds.

Credentials come from --email/--password or PROMPTVAULT_EMAIL and
PROMPTVAULT_PASSWORD. After a successful sign-in the access token is kept in
the data directory and reused until it expires.

Examples:
  vault register --email ada@example.com --password 'correct horse'
  vault add "Summarize this thread" --tags "ai, writing"
  vault list --search ai
  vault watch --search react
  vault rm <id>
  vault copy <id>`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.promptvault)")
	rootCmd.PersistentFlags().StringVar(&backend, "store", "", "store backend: sqlite or badger")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.PersistentFlags().StringVar(&email, "email", os.Getenv("PROMPTVAULT_EMAIL"), "account email")
	rootCmd.PersistentFlags().StringVar(&password, "password", os.Getenv("PROMPTVAULT_PASSWORD"), "account password")

	rootCmd.AddCommand(registerCmd, addCmd, listCmd, rmCmd, copyCmd, watchCmd)
}

// configArgs forwards the persistent flags to config.Load.
func configArgs() []string {
	args := []string{"--log-level", logLevel}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	if backend != "" {
		args = append(args, "--store", backend)
	}
	return args
}
