// Package model provides the records tracked by fluffpkg: candidates that can
// be installed, installations that exist on this machine and the sources
// candidates were imported from.
package model

import (
	"maps"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Candidate is a package known to be installable.
type Candidate struct {
	Module      string            `json:"module" yaml:"module"`
	Name        string            `json:"name" yaml:"name"`
	PackageName string            `json:"package_name" yaml:"package_name"`
	Categories  []string          `json:"categories" yaml:"categories"`
	Source      Source            `json:"source" yaml:"source"`
	DownloadURL string            `json:"download_url" yaml:"download_url"`
	ModuleData  map[string]string `json:"module_data,omitempty" yaml:"module_data,omitempty"`
	// ImportedCategories are the categories the owning source file listed at
	// the last import. Nil for candidates that did not come from a file.
	ImportedCategories []string `json:"imported_categories" yaml:"-"`
}

// Clone returns a deep copy of the candidate.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Categories = slices.Clone(c.Categories)
	out.ImportedCategories = slices.Clone(c.ImportedCategories)
	out.ModuleData = maps.Clone(c.ModuleData)
	return &out
}

// Data returns a module data value, or "" when unset.
func (c *Candidate) Data(key string) string {
	if c.ModuleData == nil {
		return ""
	}
	return c.ModuleData[key]
}

// Installation is a record of a currently installed package.
type Installation struct {
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	PackageName    string    `json:"package_name"`
	Launcher       bool      `json:"launcher"`
	Path           bool      `json:"path"`
	Module         string    `json:"module"`
	Source         Source    `json:"source"`
	ExecutablePath string    `json:"executable_path"`
	VersionLocked  bool      `json:"version_locked"`
	InstalledAt    time.Time `json:"installed_at"`
}

// Clone returns a copy of the installation.
func (i *Installation) Clone() *Installation {
	if i == nil {
		return nil
	}
	out := *i
	return &out
}

// Installation attributes that may be changed after install.
const (
	AttributeLauncher = "launcher"
	AttributePath     = "path"
)

// MutableAttributes is the allow-list accepted by MarkAttribute.
var MutableAttributes = []string{AttributeLauncher, AttributePath}

// NormalizePackageName derives a stable package identifier from a display name.
func NormalizePackageName(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	return strings.ReplaceAll(folded, " ", "_")
}
