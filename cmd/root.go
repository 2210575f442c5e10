package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atmo-climate/atmo/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "atmo",
	Short: "Climate science assistant with regional context",
	Long: `Atmo answers climate-science questions through a three-stage prompt
chain: it identifies the key concept, explains it, and then streams an
answer that prioritises the configured region. It runs as an HTTP
gateway, an MCP server for AI agents, or an interactive terminal session.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
