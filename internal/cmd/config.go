package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/inercia/carechat/internal/config"
	"github.com/inercia/carechat/internal/fileutil"
)

var (
	configOutputPath string
	configForce      bool
)

// configCmd represents the config parent command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the carechat configuration",
	Long: `Print the effective configuration and where it was loaded from.

Use the create subcommand to write a configuration file with the defaults.`,
	RunE: runConfigShow,
}

// configCreateCmd represents the config create subcommand
var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a default configuration file",
	Long: `Create a configuration file with the built-in defaults.

Examples:
  carechat config create                    # Create the default RC file
  carechat config create --output /path/to  # Create /path/to/.carechatrc
  carechat config create --force            # Overwrite existing file`,
	RunE: runConfigCreate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCreateCmd)

	configCreateCmd.Flags().StringVarP(&configOutputPath, "output", "o", "",
		"Directory to write the config file (default: the RC file location)")
	configCreateCmd.Flags().BoolVarP(&configForce, "force", "f", false,
		"Overwrite existing configuration file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return printConfig(cmd.OutOrStdout(), configResult)
}

// printConfig writes the source line followed by the YAML form.
func printConfig(out io.Writer, result *config.LoadResult) error {
	data, err := result.Config.YAML()
	if err != nil {
		return err
	}
	if result.SourcePath != "" {
		fmt.Fprintf(out, "# source: %s (%s)\n", result.Source, result.SourcePath)
	} else {
		fmt.Fprintf(out, "# source: %s\n", result.Source)
	}
	_, err = out.Write(data)
	return err
}

func runConfigCreate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configPath := config.DefaultConfigPath()
	if configOutputPath != "" {
		configPath = filepath.Join(configOutputPath, ".carechatrc")
	}

	written, err := writeDefaultConfig(configPath, configForce)
	if err != nil {
		return err
	}
	if !written {
		fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
		fmt.Fprintln(out, "Use --force to overwrite the existing file.")
		return nil
	}

	fmt.Fprintf(out, "Configuration file created: %s\n", configPath)
	fmt.Fprintln(out, "Set server.base_url to the address of your care chat server.")
	return nil
}

// writeDefaultConfig writes the built-in defaults to path. It reports false
// when the file exists and force is not set.
func writeDefaultConfig(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	data, err := config.Default().YAML()
	if err != nil {
		return false, err
	}
	if err := fileutil.WriteAtomic(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write configuration file: %w", err)
	}
	return true, nil
}
