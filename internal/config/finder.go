package config

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalConfigName is the base name of a project config file
const LocalConfigName = ".outcache"

// configExtensions in lookup order
var configExtensions = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig walks up from dir looking for a .outcache.{yml,yaml,json,toml}
// file. The walk stops after the first directory holding a .git entry, so a
// config outside the repository is never picked up.
func FindLocalConfig(fs afero.Fs, dir string) string {
	for {
		if path := findConfigIn(fs, dir, LocalConfigName); path != "" {
			return path
		}

		if exists, _ := afero.Exists(fs, filepath.Join(dir, ".git")); exists {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// findConfigIn returns the first regular file named base.<ext> in dir
func findConfigIn(fs afero.Fs, dir, base string) string {
	for _, ext := range configExtensions {
		path := filepath.Join(dir, base+"."+ext)

		if info, err := fs.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}

	return ""
}
