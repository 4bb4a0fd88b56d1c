// Command splitctl is the operator tool for the split payment service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitwiser-pay/internal/config"
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
		Use:           "splitctl",
		Short:         "splitctl - operator tool for split payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(sendWebhookCmd())
	rootCmd.AddCommand(showSplitCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

// loadConfig reads the service configuration for defaults. Validation is
// skipped; each command checks only the values it needs.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
