package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct {
	fs        afero.Fs
	configDir func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{fs: afero.NewOsFs(), configDir: os.UserConfigDir}
}

// LoadForUnits loads configuration for commands operating on unit files.
// Later sources override earlier ones: defaults, global config, local
// config next to the first unit file, then command flags.
func (l *Loader) LoadForUnits(cmd *cobra.Command, args []string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfig(args)
	l.bindCommandFlags(cmd)

	return Load()
}

// LoadForDir loads configuration for commands that take no unit files,
// looking for local config from dir upwards
func (l *Loader) LoadForDir(cmd *cobra.Command, dir string) (*Config, error) {
	l.setupViperDefaults()
	l.loadGlobalConfig()
	l.loadLocalConfigFrom(dir)
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("compression", DefaultCompression)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("log_format", DefaultLogFormat)
	viper.SetDefault("debug_keys", DefaultDebugKeys)
	viper.SetDefault("jobs", DefaultJobs)
	viper.SetDefault("skip_empty", DefaultSkipEmpty)
	viper.SetDefault("metrics", DefaultMetrics)
	viper.SetDefault("verbose", DefaultVerbose)
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	dir, err := l.configDir()
	if err != nil || dir == "" {
		return
	}

	globalPath := findConfigIn(l.filesystem(), filepath.Join(dir, "outcache"), "config")
	if globalPath == "" {
		return
	}

	viper.SetConfigFile(globalPath)
	_ = viper.MergeInConfig()
}

// loadLocalConfig loads local configuration from the project directory
func (l *Loader) loadLocalConfig(args []string) {
	if len(args) > 0 {
		absFirstFile, err := filepath.Abs(args[0])
		if err != nil {
			return // silently ignore, unit loading will report it
		}

		l.loadLocalConfigFrom(filepath.Dir(absFirstFile))
	}
}

func (l *Loader) loadLocalConfigFrom(dir string) {
	localPath := FindLocalConfig(l.filesystem(), dir)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		_ = viper.MergeInConfig()
	}
}

func (l *Loader) filesystem() afero.Fs {
	if l.fs == nil {
		return afero.NewOsFs()
	}

	return l.fs
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"cache_dir":   "cache-dir",
		"compression": "compression",
		"log_level":   "log-level",
		"log_format":  "log-format",
		"debug_keys":  "debug-keys",
		"jobs":        "jobs",
		"skip_empty":  "skip-empty",
		"metrics":     "metrics",
		"verbose":     "verbose",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}
