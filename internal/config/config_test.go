package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultRadiusMeters), cfg.RadiusMeters)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultUser, cfg.DefaultUser)
	assert.False(t, cfg.Cooperative)
	assert.Equal(t, log.InfoLevel, cfg.Level())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
db_path: /tmp/points.db
radius_meters: 125.5
cooperative: true
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/points.db", cfg.DBPath)
	assert.Equal(t, 125.5, cfg.RadiusMeters)
	assert.True(t, cfg.Cooperative)
	assert.Equal(t, log.DebugLevel, cfg.Level())
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr, "unset keys keep defaults")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "radius_meters: [1, 2"},
		{"bad level", "log_level: chatty"},
		{"infinite radius", "radius_meters: .inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultPathsFollowXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	assert.Equal(t, "/xdg/config/geodedupe/config.yaml", DefaultConfigPath())
	assert.Equal(t, "/xdg/data/geodedupe/geodedupe.db", DefaultDBPath())
}
