// Package workunit reads work unit definitions and derives their cache keys.
//
// A unit file names a command, the implementation identity behind it, the
// files it reads and the outputs it produces:
//
//	name: compile
//	command: [go, build, -o, bin/app, ./cmd/app]
//	implementation: {type: go-build, version: "1.25", tool: /usr/local/go/bin/go}
//	inputs:
//	  - {name: sources, paths: [cmd, internal, go.mod, go.sum]}
//	outputs:
//	  - {name: binary, type: file, path: bin/app}
//
// Relative paths are resolved against the directory holding the unit file.
package workunit

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/Norgate-AV/outcache/internal/cachekey"
	"github.com/Norgate-AV/outcache/internal/hashing"
	"github.com/Norgate-AV/outcache/internal/property"
	"github.com/Norgate-AV/outcache/internal/snapshot"
)

// DefaultImplementationType is used when a unit does not name one
const DefaultImplementationType = "exec"

// Implementation identifies the code behind a unit or one of its actions
type Implementation struct {
	Type    string `mapstructure:"type"`
	Version string `mapstructure:"version"`
	// Tool is an executable whose content is part of the identity
	Tool string `mapstructure:"tool"`
}

// Input is a named set of files and directories the unit reads
type Input struct {
	Name  string   `mapstructure:"name"`
	Paths []string `mapstructure:"paths"`
}

// Output is a declared output property
type Output struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Path     string `mapstructure:"path"`
	Optional bool   `mapstructure:"optional"`
}

// Unit is a work unit definition
type Unit struct {
	Name           string           `mapstructure:"name"`
	Command        []string         `mapstructure:"command"`
	Implementation Implementation   `mapstructure:"implementation"`
	Actions        []Implementation `mapstructure:"actions"`
	Inputs         []Input          `mapstructure:"inputs"`
	Untracked      []string         `mapstructure:"untracked_inputs"`
	Outputs        []Output         `mapstructure:"outputs"`
	LocalState     []string         `mapstructure:"local_state"`

	// Path is the unit file, Dir its directory. Both are absolute.
	Path string `mapstructure:"-"`
	Dir  string `mapstructure:"-"`
}

// Load reads a unit file (yml, yaml, json or toml) from fs
func Load(fs afero.Fs, path string) (*Unit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve unit path: %w", err)
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(abs)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read unit %s: %w", path, err)
	}

	u := &Unit{}
	if err := v.Unmarshal(u); err != nil {
		return nil, fmt.Errorf("failed to decode unit %s: %w", path, err)
	}

	u.Path = abs
	u.Dir = filepath.Dir(abs)

	if u.Name == "" {
		u.Name = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	}

	if u.Implementation.Type == "" {
		u.Implementation.Type = DefaultImplementationType
	}

	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid unit %s: %w", path, err)
	}

	return u, nil
}

// Validate checks the unit for problems that make it unusable
func (u *Unit) Validate() error {
	var errs []error

	seen := map[string]bool{}
	for _, in := range u.Inputs {
		if in.Name == "" {
			errs = append(errs, errors.New("input without a name"))
			continue
		}

		if seen[in.Name] {
			errs = append(errs, fmt.Errorf("duplicate input %q", in.Name))
		}

		seen[in.Name] = true
	}

	if len(u.Outputs) == 0 {
		errs = append(errs, errors.New("no outputs declared"))
	}

	if _, err := u.Specs(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Specs returns the output properties with absolute roots, sorted by name
func (u *Unit) Specs() ([]property.Spec, error) {
	specs := make([]property.Spec, 0, len(u.Outputs))

	for _, out := range u.Outputs {
		kind, err := property.ParseType(out.Type)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", out.Name, err)
		}

		root := ""
		if out.Path != "" {
			root = u.resolve(out.Path)
		}

		specs = append(specs, property.Spec{
			Name:     out.Name,
			Type:     kind,
			Root:     root,
			Optional: out.Optional,
		})
	}

	if err := property.Validate(specs); err != nil {
		return nil, err
	}

	return property.SortByName(specs), nil
}

// LocalStatePaths returns the scratch paths removed after every load
func (u *Unit) LocalStatePaths() []string {
	paths := make([]string, 0, len(u.LocalState))
	for _, p := range u.LocalState {
		paths = append(paths, u.resolve(p))
	}

	return paths
}

// Key computes the cache key of the unit.
// Input files are read through fs; tools are looked up on the host.
func (u *Unit) Key(fs afero.Fs, kb cachekey.KeyBuilder) (cachekey.Key, error) {
	impl, err := u.implementation(fs, u.Implementation)
	if err != nil {
		return cachekey.Key{}, err
	}

	kb.AppendImplementation(impl)

	actions := make([]cachekey.Implementation, 0, len(u.Actions))
	for _, a := range u.Actions {
		action, err := u.implementation(fs, a)
		if err != nil {
			return cachekey.Key{}, err
		}

		actions = append(actions, action)
	}

	kb.AppendActionImplementations(actions)

	inputs := slices.Clone(u.Inputs)
	slices.SortFunc(inputs, func(a, b Input) int { return strings.Compare(a.Name, b.Name) })

	for _, in := range inputs {
		hash, err := HashInput(fs, u.Dir, in.Paths)
		if err != nil {
			return cachekey.Key{}, fmt.Errorf("failed to hash input %q: %w", in.Name, err)
		}

		kb.AppendInputHash(in.Name, hash)
	}

	untracked := slices.Clone(u.Untracked)
	slices.Sort(untracked)

	for _, name := range untracked {
		kb.AppendInputPropertyFromUnknownOrigin(name)
	}

	specs, err := u.Specs()
	if err != nil {
		return cachekey.Key{}, err
	}

	for _, spec := range specs {
		kb.AppendOutputPropertyName(spec.Name)
	}

	return kb.Build(), nil
}

func (u *Unit) implementation(fs afero.Fs, impl Implementation) (cachekey.Implementation, error) {
	result := cachekey.Implementation{TypeName: impl.Type}

	if impl.Version == "" && impl.Tool == "" {
		// Nothing identifies this code, so results cannot be reused
		return result, nil
	}

	b := hashing.NewBuilder(hashing.NewKeyHash())
	b.PutString(impl.Version)

	if impl.Tool != "" {
		tool, err := u.lookTool(impl.Tool)
		if err != nil {
			return result, err
		}

		hash, err := hashing.HashFile(fs, tool, hashing.NewKeyHash)
		if err != nil {
			return result, fmt.Errorf("failed to hash tool %s: %w", tool, err)
		}

		b.PutHash(hash)
	}

	result.OriginHash = b.Hash()

	return result, nil
}

// Bare names are searched for in PATH, anything else is a path
func (u *Unit) lookTool(tool string) (string, error) {
	if strings.ContainsRune(tool, '/') || strings.ContainsRune(tool, filepath.Separator) {
		return u.resolve(tool), nil
	}

	path, err := exec.LookPath(tool)
	if err != nil {
		return "", fmt.Errorf("failed to find tool %s: %w", tool, err)
	}

	return path, nil
}

func (u *Unit) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(u.Dir, path)
}

const (
	kindFile byte = iota + 1
	kindDirectory
	kindMissing
)

// HashInput hashes a set of paths relative to base.
// Paths are hashed in sorted order; a missing path hashes differently from
// an empty file or directory. File contents are hashed with the key hash,
// since the result identifies cache entries.
func HashInput(fs afero.Fs, base string, paths []string) (hashing.HashCode, error) {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	b := hashing.NewBuilder(hashing.NewKeyHash())
	b.PutInt(int64(len(sorted)))

	for _, p := range sorted {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(base, p)
		}

		snap, err := snapshot.Walk(fs, abs, hashing.NewKeyHash)
		if err != nil {
			return nil, err
		}

		b.PutString(filepath.ToSlash(p))

		switch s := snap.(type) {
		case *snapshot.File:
			b.PutKind(kindFile)
			b.PutHash(s.ContentHash)
		case *snapshot.Directory:
			b.PutKind(kindDirectory)
			b.PutHash(s.MerkleHash)
		case *snapshot.Missing:
			b.PutKind(kindMissing)
		}
	}

	return b.Hash(), nil
}
