package cmd

import (
	"os"

	"github.com/encodeous/ospf6rde/state"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ospf6rde",
	Short: "OSPFv3 Route Decision Engine",
	Long: `ospf6rde is the route decision engine of an OSPFv3 router.
It keeps the link-state database, computes shortest paths and programs the resulting routes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "ny",
		Title: "Engine Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cfg",
		Title: "Configuration",
	})
	rootCmd.PersistentFlags().StringVarP(&state.ConfigPath, "config", "c", state.ConfigPath, "engine config")
}
