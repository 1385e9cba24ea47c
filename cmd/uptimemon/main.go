// Command uptimemon probes configured HTTP endpoints on their intervals and
// exports the results as Prometheus metrics.
//
// Usage:
//
//	uptimemon serve --settings settings.toml
//	uptimemon validate --settings settings.toml
//	uptimemon version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "uptimemon"

// Set at build time: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "HTTP uptime monitoring daemon",
	Long: `uptimemon checks HTTP endpoints on per-monitor intervals, tracks up/down
transitions and exposes the results on a Prometheus /metrics endpoint.

Monitors are read from a TOML or YAML settings file; process settings
(listen addresses, API keys, history storage) come from the environment.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", appName, version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("settings", "s", "./settings.toml", "path to the settings file (.toml, .yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
