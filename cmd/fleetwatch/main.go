// Package main is the entry point for the fleetwatch binary.
//
// fleetwatch polls a fleet of network devices for reachability, records the
// results in daily CSV partitions, tracks consecutive-timeout streaks, and
// alerts when a device stays unreachable past a threshold.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

var configFile string

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "fleetwatch",
	Short: "Reachability monitoring for a fleet of network devices",
	Long: `fleetwatch periodically pings every device in an inventory,
stores the outcomes in daily result partitions, tracks consecutive
timeouts per device, and sends alerts when a device crosses the
critical threshold.

Quick start:
  1. Create a config file (configs/config.yaml)
  2. Run: fleetwatch serve -c configs/config.yaml`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the polling service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(configFile)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleetwatch %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "path to the configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
