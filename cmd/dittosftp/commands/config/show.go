package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosftp/internal/cli/output"
	"github.com/marmos91/dittosftp/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective configuration after defaults and environment
overrides are applied.

Examples:
  # Show as YAML
  dittosftp config show

  # Show as JSON
  dittosftp config show --output json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	case output.FormatYAML:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	default:
		return fmt.Errorf("config show supports yaml and json only")
	}
}
