package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("CAMRELAY_AUTH_TOKEN", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Auth.Token)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, "./uploads", cfg.Store.UploadDir)
	assert.Equal(t, int64(32*1024*1024), cfg.Store.MaxUploadSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("CAMRELAY_AUTH_TOKEN", "secret")
	t.Setenv("CAMRELAY_SERVER_PORT", "6001")
	t.Setenv("CAMRELAY_STORE_UPLOAD_DIR", "/tmp/photos")
	t.Setenv("CAMRELAY_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Server.Port)
	assert.Equal(t, "/tmp/photos", cfg.Store.UploadDir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRequiresToken(t *testing.T) {
	viper.Reset()
	t.Setenv("CAMRELAY_AUTH_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth token")
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	viper.Reset()
	t.Setenv("CAMRELAY_AUTH_TOKEN", "secret")
	t.Setenv("CAMRELAY_SERVER_PORT", "99999")

	_, err := Load()
	require.Error(t, err)
}
