package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
	Reset()
}

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	resetViper()
	defer resetViper()

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	require.NoError(t, Load(""))
	cfg := Get()
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Metadata.Backend)
	assert.Equal(t, 8, cfg.Consolidation.Threshold)
	assert.Equal(t, 32, cfg.Consolidation.MaxChunksToConsolidate)
}

func TestLoadReadsExplicitConfigFile(t *testing.T) {
	resetViper()
	defer resetViper()

	dir := t.TempDir()
	path := filepath.Join(dir, "cube.yaml")
	contents := `
storage:
  backend: s3
  bucket: my-bucket
metadata:
  backend: postgres
  dsn: "postgres://localhost/cube"
consolidation:
  threshold: 16
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	require.NoError(t, Load(path))
	cfg := Get()
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "postgres", cfg.Metadata.Backend)
	assert.Equal(t, "postgres://localhost/cube", cfg.Metadata.DSN)
	assert.Equal(t, 16, cfg.Consolidation.Threshold)
	// unset sections still get their defaults
	assert.Equal(t, 1<<20, cfg.Sorter.ItemsInMemory)
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	resetViper()
	defer resetViper()

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	os.Setenv("CUBE_STORAGE_BACKEND", "gcs")
	defer os.Unsetenv("CUBE_STORAGE_BACKEND")

	require.NoError(t, Load(""))
	assert.Equal(t, "gcs", Get().Storage.Backend)
}
