package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/mdpreview/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect mdpreview configuration",
	Long: `Inspect the configuration mdpreview would run with.

Examples:
  mdpreview config show README.md            # Show resolved configuration
  mdpreview config show --format json        # Show it as JSON
  mdpreview config validate README.md        # Check configuration
  mdpreview config validate --strict doc.md  # Treat warnings as errors`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Validate configuration",
	Long: `Validate the merged configuration from the config file, environment
and flags, and report every problem found.

This command checks for:
- A readable Markdown document and stylesheet
- Valid and distinct ports
- A known highlight style
- Valid ignore patterns and debounce window`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show [FILE]",
	Short: "Show current configuration",
	Long: `Display the configuration after loading the config file, applying
environment variable overrides, processing flags and filling defaults.

The YAML output is a valid .mdpreview.yml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigShow,
}

var (
	configFormat string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

// resolveConfig loads the configuration without validating it.
func resolveConfig(args []string) (*config.Config, error) {
	if len(args) > 0 {
		viper.Set("document", args[0])
	}
	return config.Resolve()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := config.ValidateConfigWithDetails(cfg)

	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(out, "✅ Configuration is valid")
		return nil
	}

	fmt.Fprint(out, result.String())

	if result.HasErrors() {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}
	if configStrict {
		return fmt.Errorf("configuration has %d warning(s) (strict mode)", len(result.Warnings))
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	switch configFormat {
	case "yaml":
		fmt.Fprintln(out, "# Current mdpreview configuration")
		fmt.Fprintln(out, "# Resolved from all sources (file, env vars, flags, defaults)")
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}
