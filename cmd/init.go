package cmd

import (
	"github.com/spf13/cobra"

	"github.com/atmo-climate/atmo/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize atmo configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose a model provider and describe the region the assistant should prioritise, then writes atmo.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
