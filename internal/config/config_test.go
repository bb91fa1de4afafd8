package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, "411111", cfg.IssuerPrefix)
	assert.Equal(t, 5*time.Second, cfg.TransferTimeout)
	assert.Len(t, cfg.EncryptionKeyBytes(), 32)
	assert.False(t, cfg.NotificationsEnabled())
}

func TestNewConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: \"9090\"\nstorage_driver: memory\nissuer_prefix: \"${TEST_PREFIX}\"\ntransfer_timeout: 3s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TEST_PREFIX", "400000")
	t.Setenv("PORT", "7070")
	t.Setenv("TRANSFER_TIMEOUT", "2")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, "400000", cfg.IssuerPrefix)
	assert.Equal(t, 2*time.Second, cfg.TransferTimeout)
}

func TestNewConfig_Validation(t *testing.T) {
	cases := map[string][2]string{
		"bad prefix":    {"ISSUER_PREFIX", "41a111"},
		"short prefix":  {"ISSUER_PREFIX", "4111"},
		"bad key":       {"ENCRYPTION_KEY", "abcd"},
		"no jwt secret": {"JWT_SECRET", ""},
		"bad driver":    {"STORAGE_DRIVER", "mysql"},
		"zero timeout":  {"TRANSFER_TIMEOUT", "0s"},
		"bad timeout":   {"TRANSFER_TIMEOUT", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(kv[0], kv[1])
			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewConfig_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := NewConfig()
	assert.Error(t, err)
}
