// Command toastyctl is the operator CLI: schema migrations, account
// bootstrap and offline menu checks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/toastysunday/api/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "toastyctl",
		Short:         "Operator tools for the toasty pre-order API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAccountCmd())
	rootCmd.AddCommand(menuCmd())
	return rootCmd
}

// loadConfig reads the environment and sets up logging the way the server
// does.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ConfigureLogger(); err != nil {
		return nil, err
	}
	return cfg, nil
}
