package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosftp/internal/cli/output"
	"github.com/marmos91/dittosftp/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the dittosftp configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  dittosftp config validate

  # Validate specific config file
  dittosftp config validate --config /etc/dittosftp/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if _, err := os.Stat(cfg.SFTP.HostKeyPath); os.IsNotExist(err) && !cfg.SFTP.GenerateHostKeyEnabled() {
		warnings = append(warnings, "Host key does not exist and generate_host_key is false")
	}
	if _, err := os.Stat(cfg.Tenants.Dir); os.IsNotExist(err) {
		warnings = append(warnings, "Tenants directory does not exist yet (created on start)")
	}
	if cfg.SFTP.ReadOnly {
		warnings = append(warnings, "Gateway is read-only: uploads and modifications will be refused")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.SimpleTable(out, [][2]string{
		{"SFTP port", strconv.Itoa(cfg.SFTP.Port)},
		{"Control plane", cfg.Remote.URL},
		{"Tenants dir", cfg.Tenants.Dir},
		{"Log level", cfg.Logging.Level},
	})
}
