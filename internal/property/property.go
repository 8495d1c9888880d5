// Package property describes the output properties of a work unit
package property

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Type is the kind of filesystem object an output property produces
type Type int

const (
	// File is a single regular file
	File Type = iota
	// Directory is a directory tree
	Directory
)

func (t Type) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses "file" or "directory" (also "dir")
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file":
		return File, nil
	case "directory", "dir":
		return Directory, nil
	default:
		return 0, fmt.Errorf("unknown output type %q", s)
	}
}

// Spec declares one output property
type Spec struct {
	Name     string
	Type     Type
	Root     string
	// Optional allows an empty Root; such a property is always missing
	Optional bool
}

// Unset reports whether the property has no root to read or write
func (s Spec) Unset() bool {
	return s.Root == ""
}

// Validate checks every spec and that names are unique
func Validate(specs []Spec) error {
	var errs []error
	seen := make(map[string]bool, len(specs))

	for _, spec := range specs {
		switch {
		case spec.Name == "":
			errs = append(errs, errors.New("output property has no name"))
		case seen[spec.Name]:
			errs = append(errs, fmt.Errorf("duplicate output property %q", spec.Name))
		}

		seen[spec.Name] = true

		switch {
		case spec.Root == "" && spec.Optional:
			// Always packed as missing
		case spec.Root == "":
			errs = append(errs, fmt.Errorf("output property %q has no root", spec.Name))
		case !filepath.IsAbs(spec.Root):
			errs = append(errs, fmt.Errorf("output property %q root must be absolute: %s", spec.Name, spec.Root))
		}

		if spec.Type != File && spec.Type != Directory {
			errs = append(errs, fmt.Errorf("output property %q has invalid type %s", spec.Name, spec.Type))
		}
	}

	return errors.Join(errs...)
}

// SortByName returns a copy of specs ordered by name
func SortByName(specs []Spec) []Spec {
	sorted := make([]Spec, len(specs))
	copy(sorted, specs)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	return sorted
}

// ByName indexes specs by name
func ByName(specs []Spec) map[string]Spec {
	index := make(map[string]Spec, len(specs))
	for _, spec := range specs {
		index[spec.Name] = spec
	}

	return index
}
