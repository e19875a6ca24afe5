package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/testsuite/internal/config"
	"github.com/psantana5/testsuite/pkg/cmdline"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the settings a suite would resolve",
	Long: `Resolves suite settings the same way a suite binary does: defaults,
then the file given with --config, then TESTSUITE_* environment variables,
then switches passed after "--".`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [-- suite switches...]",
	Short: "Print the resolved configuration",
	RunE:  runConfigShow,
}

var configArgsCmd = &cobra.Command{
	Use:   "args [-- suite switches...]",
	Short: "Print the suite command line the configuration expands to",
	RunE:  runConfigArgs,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configArgsCmd)
}

// resolve builds the command line a suite would see and loads its config.
func resolve(args []string) (*config.Config, *cmdline.CommandLine, error) {
	argv := []string{"suite"}
	if cfgFile != "" {
		argv = append(argv, "--"+cmdline.SuiteConfig+"="+cfgFile)
	}
	argv = append(argv, args...)
	cl := cmdline.Parse(argv)

	cfg, err := config.Load(cl)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cl, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := resolve(args)
	if err != nil {
		return err
	}
	return printConfig(cmd.OutOrStdout(), cfg)
}

func printConfig(w io.Writer, cfg *config.Config) error {
	switch {
	case IsJSONOutput():
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case IsYAMLOutput():
		return yaml.NewEncoder(w).Encode(cfg)
	}

	// Table output goes through the YAML form so keys match the file format.
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var flat map[string]interface{}
	if err := yaml.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	table := tablewriter.NewWriter(w)
	table.Header("Key", "Value")
	for _, key := range sortedKeys(flat) {
		table.Append(key, fmt.Sprint(flat[key]))
	}
	table.Render()
	return nil
}

func runConfigArgs(cmd *cobra.Command, args []string) error {
	cfg, cl, err := resolve(args)
	if err != nil {
		return err
	}
	cl.RemoveSwitch(cmdline.SuiteConfig)
	cfg.ApplyToCommandLine(cl)
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(cl.Argv()[1:], " "))
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
