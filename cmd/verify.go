package cmd

import (
	"fmt"

	"github.com/encodeous/ospf6rde/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validates the engine config and prints it with defaults filled in",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.ReadConfig(state.ConfigPath)
		if err != nil {
			panic(err)
		}
		err = state.ConfigValidator(cfg)
		if err != nil {
			panic(err)
		}

		cfgYaml, err := yaml.Marshal(cfg)
		if err != nil {
			panic(err)
		}

		fmt.Println("Config is valid")
		fmt.Print(string(cfgYaml))
	},
	GroupID: "cfg",
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
