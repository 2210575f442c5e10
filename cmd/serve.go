package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/atmo-climate/atmo/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing the climate assistant and its stored conversations as tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "atmo MCP server started on stdio (provider=%s, model=%s, region=%s)\n",
			a.cfg.Provider, a.cfg.Model, a.region.Name)

		srv := mcpserver.NewServer(a.gateway)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
