package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/StanleyZhang1992/stayd/internal/config"
)

var configInitPath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and scaffold configuration",
	Long:  `Commands for showing the effective configuration and writing a starter config file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Show resolves configuration the same way serve does (defaults, config
file, environment) and prints the result as YAML.`,
	SilenceUsage: true,
	RunE:         runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:          "init",
	Short:        "Write a commented example config file",
	Long:         `Init writes an example configuration with defaults and documentation to the given path.`,
	SilenceUsage: true,
	RunE:         runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVarP(&configInitPath, "path", "p", "stayd.yaml", "where to write the example config")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	output, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	fmt.Print(string(output))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configInitPath); err == nil {
		return fmt.Errorf("refusing to overwrite existing file %s", configInitPath)
	}

	if dir := filepath.Dir(configInitPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(configInitPath, []byte(config.ExampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Wrote example config to %s\n", configInitPath)
	return nil
}
