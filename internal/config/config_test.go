package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, 168*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 8, cfg.Auth.PasswordMinLength)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("auth:\n  password_min_length: 12\nlog:\n  format: json\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Auth.PasswordMinLength)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bcrypt cost":   "auth:\n  bcrypt_cost: 2\n",
		"log format":    "log:\n  format: xml\n",
		"base path":     "server:\n  base_path: api\n",
		"seed password": "seed:\n  admin_password: short\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rasapp.yml"), []byte("seed:\n  framework_name: North\n"), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "North", cfg.Seed.FrameworkName)
}
