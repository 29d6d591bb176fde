// Package cmd defines the CLI commands for the trendwatch executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trendwatch",
		Short: "Crawls social and e-commerce platforms and tracks metrics over time.",
		Long: `trendwatch collects posts, videos and products for configured keywords
from Facebook, Shopee, TikTok and YouTube. Each entity is deduplicated
into a master record while every metric observation is kept as an
append-only snapshot history.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./trendwatch.yaml)")

	cmd.AddCommand(newCrawlCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
