package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	sftpadapter "github.com/marmos91/dittosftp/pkg/adapter/sftp"
	"github.com/marmos91/dittosftp/pkg/config"
)

var (
	keygenPath  string
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the SSH host key",
	Long: `Generate an ed25519 SSH host key.

The key is written to sftp.host_key_path unless --path is given. An existing
key is kept unless --force is set; replacing it changes the fingerprint
clients have pinned.

Examples:
  # Generate the configured host key
  dittosftp keygen

  # Replace an existing key
  dittosftp keygen --force --path /etc/dittosftp/ssh_host_ed25519_key`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenPath, "path", "", "Host key path (default: sftp.host_key_path)")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing key")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	path := keygenPath
	if path == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		path = cfg.SFTP.HostKeyPath
	}

	signer, err := sftpadapter.GenerateHostKey(path, keygenForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Host key written to %s\n", path)
	_, _ = fmt.Fprintf(out, "Fingerprint: %s\n", ssh.FingerprintSHA256(signer.PublicKey()))
	return nil
}
