package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.WSAddr)
	require.Equal(t, "memory", cfg.Recording.Backend)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 4096, cfg.Providers.Anthropic.MaxTokens)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  wsAddr: ":9999"
recording:
  backend: "file"
  filePath: "/tmp/recordings"
logging:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.WSAddr)
	require.Equal(t, "file", cfg.Recording.Backend)
	require.Equal(t, "/tmp/recordings", cfg.Recording.FilePath)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	yaml := `recording:
  backend: "carrier-pigeon"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
}

func TestLoadRejectsMongoBackendWithoutURI(t *testing.T) {
	dir := t.TempDir()
	yaml := `recording:
  backend: "mongo"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
}

func TestEnvOverridesDefault(t *testing.T) {
	t.Setenv("HARNESS_LOGGING_LEVEL", "warn")
	dir := t.TempDir()
	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Logging.Level)
}
