package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaderWithConfigDir(dir string) *Loader {
	return &Loader{configDir: func() (string, error) { return dir, nil }}
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("cache-dir", "", "Cache directory")
	cmd.Flags().String("compression", "", "Compression")
	cmd.Flags().String("log-level", "", "Log level")
	cmd.Flags().IntP("jobs", "j", 0, "Jobs")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")

	return cmd
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
	assert.NotNil(t, loader.configDir)
}

func TestLoader_SetupViperDefaults(t *testing.T) {
	viper.Reset()
	loader := NewLoader()
	loader.setupViperDefaults()

	assert.Equal(t, ".outcache", viper.GetString("cache_dir"))
	assert.Equal(t, "gzip", viper.GetString("compression"))
	assert.Equal(t, "info", viper.GetString("log_level"))
	assert.Equal(t, "auto", viper.GetString("log_format"))
	assert.Equal(t, DefaultJobs, viper.GetInt("jobs"))
	assert.Equal(t, false, viper.GetBool("verbose"))
}

func TestLoader_LoadGlobalConfig(t *testing.T) {
	tempDir := t.TempDir()
	globalDir := filepath.Join(tempDir, "outcache")
	err := os.Mkdir(globalDir, 0o755)
	require.NoError(t, err)

	t.Run("loads yaml config", func(t *testing.T) {
		viper.Reset()
		configPath := filepath.Join(globalDir, "config.yml")
		configContent := `cache_dir: "/global/cache"
compression: zstd
verbose: true`
		err := os.WriteFile(configPath, []byte(configContent), 0o644)
		require.NoError(t, err)

		loader := loaderWithConfigDir(tempDir)
		loader.loadGlobalConfig()

		assert.Equal(t, "/global/cache", viper.GetString("cache_dir"))
		assert.Equal(t, "zstd", viper.GetString("compression"))
		assert.Equal(t, true, viper.GetBool("verbose"))
	})

	t.Run("loads json config", func(t *testing.T) {
		viper.Reset()

		// Remove YAML file
		os.Remove(filepath.Join(globalDir, "config.yml"))

		configPath := filepath.Join(globalDir, "config.json")
		configContent := `{
  "cache_dir": "/json/cache",
  "jobs": 2
}`
		err := os.WriteFile(configPath, []byte(configContent), 0o644)
		require.NoError(t, err)

		loader := loaderWithConfigDir(tempDir)
		loader.loadGlobalConfig()

		assert.Equal(t, "/json/cache", viper.GetString("cache_dir"))
		assert.Equal(t, 2, viper.GetInt("jobs"))
	})

	t.Run("handles missing config dir gracefully", func(t *testing.T) {
		viper.Reset()

		loader := &Loader{configDir: func() (string, error) { return "", os.ErrNotExist }}

		assert.NotPanics(t, func() {
			loader.loadGlobalConfig()
		})
		assert.Equal(t, "", viper.GetString("cache_dir"))
	})
}

func TestLoader_LoadLocalConfig(t *testing.T) {
	t.Run("loads local config from unit directory", func(t *testing.T) {
		viper.Reset()

		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, ".outcache.yml")
		configContent := `cache_dir: "/local/cache"
skip_empty: true`
		err := os.WriteFile(configPath, []byte(configContent), 0o644)
		require.NoError(t, err)

		unitFile := filepath.Join(tempDir, "unit.yml")
		err = os.WriteFile(unitFile, []byte("name: test"), 0o644)
		require.NoError(t, err)

		loader := NewLoader()
		loader.loadLocalConfig([]string{unitFile})

		assert.Equal(t, "/local/cache", viper.GetString("cache_dir"))
		assert.Equal(t, true, viper.GetBool("skip_empty"))
	})

	t.Run("walks up directory tree to find config", func(t *testing.T) {
		viper.Reset()

		tempDir := t.TempDir()
		subDir := filepath.Join(tempDir, "subdir", "nested")
		err := os.MkdirAll(subDir, 0o755)
		require.NoError(t, err)

		// Put config in parent directory
		configPath := filepath.Join(tempDir, ".outcache.yml")
		err = os.WriteFile(configPath, []byte(`compression: none`), 0o644)
		require.NoError(t, err)

		unitFile := filepath.Join(subDir, "unit.yml")
		err = os.WriteFile(unitFile, []byte("name: test"), 0o644)
		require.NoError(t, err)

		loader := NewLoader()
		loader.loadLocalConfig([]string{unitFile})

		assert.Equal(t, "none", viper.GetString("compression"))
	})

	t.Run("handles empty args", func(t *testing.T) {
		viper.Reset()

		loader := NewLoader()

		assert.NotPanics(t, func() {
			loader.loadLocalConfig([]string{})
		})
	})
}

func TestLoader_BindCommandFlags(t *testing.T) {
	viper.Reset()

	cmd := newFlagCommand()
	cmd.Flags().Set("cache-dir", "/flag/cache")
	cmd.Flags().Set("jobs", "5")
	cmd.Flags().Set("verbose", "true")

	loader := NewLoader()
	loader.bindCommandFlags(cmd)

	assert.Equal(t, "/flag/cache", viper.GetString("cache_dir"))
	assert.Equal(t, 5, viper.GetInt("jobs"))
	assert.Equal(t, true, viper.GetBool("verbose"))
}

func TestLoader_LoadForUnits_Integration(t *testing.T) {
	t.Run("flags override local override global", func(t *testing.T) {
		viper.Reset()

		// Global config
		configDir := t.TempDir()
		err := os.Mkdir(filepath.Join(configDir, "outcache"), 0o755)
		require.NoError(t, err)

		globalContent := `cache_dir: "/global/cache"
compression: zstd
log_format: json
jobs: 2`
		err = os.WriteFile(filepath.Join(configDir, "outcache", "config.yml"), []byte(globalContent), 0o644)
		require.NoError(t, err)

		// Local config
		localDir := t.TempDir()
		localContent := `compression: gzip
jobs: 3`
		err = os.WriteFile(filepath.Join(localDir, ".outcache.yml"), []byte(localContent), 0o644)
		require.NoError(t, err)

		unitFile := filepath.Join(localDir, "unit.yml")
		err = os.WriteFile(unitFile, []byte("name: test"), 0o644)
		require.NoError(t, err)

		cmd := newFlagCommand()
		cmd.Flags().Set("jobs", "4")

		loader := loaderWithConfigDir(configDir)
		cfg, err := loader.LoadForUnits(cmd, []string{unitFile})
		require.NoError(t, err)

		// Flag value should win
		assert.Equal(t, 4, cfg.Jobs)
		// Local config should override global
		assert.Equal(t, "gzip", cfg.Compression)
		// Global config is kept where nothing overrides it
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, filepath.Clean("/global/cache"), cfg.CacheDir)
	})
}

func TestLoader_LoadForDir(t *testing.T) {
	viper.Reset()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, ".outcache.yml"), []byte(`cache_dir: "/dir/cache"`), 0o644)
	require.NoError(t, err)

	loader := loaderWithConfigDir(t.TempDir())
	cfg, err := loader.LoadForDir(newFlagCommand(), dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Clean("/dir/cache"), cfg.CacheDir)
}
