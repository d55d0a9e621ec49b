// Package cli provides configuration inspection commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect conductor configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after defaults, config file, environment variables and flags have been merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return errConfigNotLoaded
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, appConfig)
		}

		data, err := yaml.Marshal(appConfig)
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config and data directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return errConfigNotLoaded
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]string{
				"config_dir": appConfig.Global.ConfigDir,
				"data_dir":   appConfig.Global.DataDir,
			})
		}

		fmt.Printf("Config dir: %s\n", appConfig.Global.ConfigDir)
		fmt.Printf("Data dir:   %s\n", appConfig.Global.DataDir)
		return nil
	},
}
