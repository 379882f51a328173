package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "America/New_York", cfg.Timezone)
	require.Equal(t, 6, cfg.HorizonMonths)
	require.Equal(t, 2, cfg.ExtendLeadMonths)
	require.Equal(t, 5, cfg.SlugRetries)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Second load reads the file back.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Listen, again.Listen)
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \"0.0.0.0:9000\"\nhorizon_months: 12\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Listen)
	require.Equal(t, 12, cfg.HorizonMonths)
	// Unset fields are normalized to defaults.
	require.Equal(t, "America/New_York", cfg.Timezone)
	require.Equal(t, "0 4 * * *", cfg.ExtendCron)
}

func TestNormalizeClampsLead(t *testing.T) {
	cfg := &Config{HorizonMonths: 3, ExtendLeadMonths: 9}
	cfg.Normalize()
	require.Equal(t, 3, cfg.ExtendLeadMonths)
}

func TestNormalizeEnvOverridesDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-wins")
	cfg := &Config{DatabaseURL: "postgres://from-file"}
	cfg.Normalize()
	require.Equal(t, "postgres://env-wins", cfg.DatabaseURL)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}
