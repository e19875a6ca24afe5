package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "suitectl",
	Short: "Inspect test suite runs",
	Long: `suitectl reads the result files a suite binary writes with
--test-launcher-output and shows the configuration a suite would resolve.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "suite config file (default is $HOME/.suitectl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		candidate := filepath.Join(home, ".suitectl", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			cfgFile = candidate
		}
	}

	viper.SetEnvPrefix("SUITECTL")
	viper.AutomaticEnv()
	viper.BindEnv("output", "SUITECTL_OUTPUT")

	if !rootCmd.PersistentFlags().Changed("output") && viper.GetString("output") != "" {
		outputFormat = viper.GetString("output")
	}
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

// IsYAMLOutput returns true if YAML output is requested
func IsYAMLOutput() bool {
	return outputFormat == "yaml"
}
