package sftp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateHostKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "ssh_host_ed25519_key")

	signer, err := GenerateHostKey(path, false)
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", signer.PublicKey().Type())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadHostKey(path)
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey().Marshal(), loaded.PublicKey().Marshal())
}

func TestGenerateHostKeyRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host_key")

	first, err := GenerateHostKey(path, false)
	require.NoError(t, err)

	_, err = GenerateHostKey(path, false)
	require.Error(t, err)

	second, err := GenerateHostKey(path, true)
	require.NoError(t, err)
	assert.NotEqual(t, first.PublicKey().Marshal(), second.PublicKey().Marshal())
}

func TestLoadOrGenerateHostKey(t *testing.T) {
	t.Run("MissingWithoutGenerate", func(t *testing.T) {
		_, err := LoadOrGenerateHostKey(filepath.Join(t.TempDir(), "missing"), false)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("GeneratesOnce", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "host_key")

		first, err := LoadOrGenerateHostKey(path, true)
		require.NoError(t, err)
		second, err := LoadOrGenerateHostKey(path, true)
		require.NoError(t, err)
		assert.Equal(t, first.PublicKey().Marshal(), second.PublicKey().Marshal())
	})

	t.Run("InvalidKey", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "host_key")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0600))

		_, err := LoadOrGenerateHostKey(path, true)
		assert.Error(t, err)
	})
}
