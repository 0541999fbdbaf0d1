package cmd

import (
	"os"

	"github.com/merchflow/harvester/internal/build"
	"github.com/spf13/cobra"
)

var (
	// cfgFile parameter
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   build.AppName,
		Short: "Marketplace harvest pipeline.",
		Long:  `Resumable crawl-and-ingest pipeline for marketplace catalog, product and stock data.`,
	}
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func registerCommands() {
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(
			&cfgFile, "config", "",
			"config file (default is ./harvester.yaml)",
		)

	registerCommands()
}
