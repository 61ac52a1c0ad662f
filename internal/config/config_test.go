package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), cfg.CHAIN_ID)
	assert.Equal(t, "https://api.0x.org", cfg.ZEROX_BASE_URL)
	assert.Equal(t, []string{"0.1", "0.2", "0.5"}, cfg.BUY_PRESETS)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg := Default()
	cfg.TELEGRAM_TOKEN = "token"
	cfg.AUTHORIZED_USERS = []int64{42, 7}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "token", loaded.TELEGRAM_TOKEN)
	assert.Equal(t, []int64{42, 7}, loaded.AUTHORIZED_USERS)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("AUTHORIZED_USERS", "1, 2,3")
	t.Setenv("CHAIN_ID", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.TELEGRAM_TOKEN)
	assert.Equal(t, []int64{1, 2, 3}, cfg.AUTHORIZED_USERS)
	assert.Equal(t, int64(1), cfg.CHAIN_ID)
}

func TestValidateReportsAllMissing(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
	assert.Contains(t, err.Error(), "ZEROX_API_KEY")
	assert.Contains(t, err.Error(), "PRIVATE_KEY")

	cfg.TELEGRAM_TOKEN = "t"
	cfg.ZEROX_API_KEY = "k"
	cfg.PRIVATE_KEY = "p"
	assert.NoError(t, cfg.Validate())
}
