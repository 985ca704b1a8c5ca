package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosftp/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Long: `Write a dittosftp configuration file populated with default values.

By default the file is created at $XDG_CONFIG_HOME/dittosftp/config.yaml.
Use --config to choose another path.

Examples:
  # Initialize at the default location
  dittosftp config init

  # Overwrite an existing file
  dittosftp config init --force --config /etc/dittosftp/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Set remote.url and remote.token to point at the control plane")
	_, _ = fmt.Fprintln(out, "  2. Put one YAML definition per tenant in tenants.dir")
	_, _ = fmt.Fprintf(out, "  3. Start the gateway with: dittosftp start --config %s\n", configPath)
	return nil
}
