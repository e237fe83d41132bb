package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"adforge/internal/config"
	"adforge/internal/prompt"
)

var configTemplateDir string

// configCmd is the parent for configuration subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage adforge configuration",
}

// configInitCmd writes a default config file (and, optionally, the default
// prompt templates) so operators have something concrete to edit.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes the default configuration to the path given by --config
(default adforge.yaml). Refuses to overwrite an existing file.

With --templates <dir>, also materializes the built-in prompt templates
as *.tmpl files in that directory so they can be edited and hot-reloaded.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd prints the effective configuration after file and
// environment overrides are applied.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().StringVar(&configTemplateDir, "templates", "", "Also write default prompt templates to this directory")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("config file %s already exists; remove it first", cfgPath)
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := config.WriteDefault(cfgPath); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", cfgPath)

	if configTemplateDir != "" {
		if err := prompt.WriteDefaults(configTemplateDir); err != nil {
			return err
		}
		fmt.Printf("Wrote default prompt templates to %s\n", configTemplateDir)
		fmt.Printf("Set prompts.template_dir: %s in %s to use them\n", configTemplateDir, cfgPath)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
