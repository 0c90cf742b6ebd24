package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Distributed multi-window admission control",
	Long: `Throttle is a distributed admission-control service. It decides, per
request identity and action, whether a request fits within its quota tier
across several concurrently enforced calendar windows (per second, minute,
hour, day, and month), using a shared Redis counter store to coordinate an
arbitrary number of instances without distributed locks.

It exposes an HTTP admission API plus Prometheus metrics, and ships an
embeddable engine and net/http middleware for in-process use.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
