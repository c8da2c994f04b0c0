package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "cjdns-admin",
	Short: "Admin interface with live, filterable log subscriptions",
	Long: `cjdns-admin runs the daemon's administrative interface and lets operators
subscribe to a live stream of its log records, filtered by level, source file
and source line.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(unsubscribeCmd)
	rootCmd.AddCommand(functionsCmd)
	rootCmd.AddCommand(tokenCmd)
}
