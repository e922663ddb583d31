// Package cmd provides the CLI commands for Contract Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Contractgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "contract-gate",
	Short: "Contract Gate - usage-control connector core",
	Long: `Contract Gate negotiates data usage contracts between connectors and
enforces the agreed usage rules whenever data is accessed.

Quick start:
  1. Create a config file: contract-gate.yaml
  2. Run: contract-gate start

Configuration:
  Config is loaded from contract-gate.yaml in the current directory,
  $HOME/.contract-gate/, or /etc/contract-gate/.

  Environment variables can override config values with the CONTRACT_GATE_ prefix.
  Example: CONTRACT_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gate (HTTP access endpoint and enforcement sweep)
  stop        Stop the running gate
  sweep       Run the enforcement sweep once
  classify    Print the usage pattern of every rule in a file
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./contract-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
