// Package jsonstore provides a store.Store kept in a single JSON document that
// is rewritten atomically after every mutation.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
)

// FormatVersion is written into every document.
const FormatVersion = "1"

// DefaultFileName is the name of the document inside the state directory.
const DefaultFileName = "fluffpkg.json"

type document struct {
	FormatVersion string                `json:"format_version"`
	LastUpdate    time.Time             `json:"last_update"`
	Sources       []model.Source        `json:"sources"`
	Candidates    []*model.Candidate    `json:"candidates"`
	Installed     []*model.Installation `json:"installed"`
}

// Store is the JSON document engine.
type Store struct {
	path    string
	doc     document
	rwMutex sync.RWMutex
}

var _ store.Store = (*Store)(nil)

// Open loads the document at path. A missing file yields an empty store that
// is created on the first mutation.
func Open(path string) (*Store, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("store path must be absolute: %s: %w", path, errors.ErrInvalidPath)
	}

	s := &Store{
		path: cleanPath,
		doc:  document{FormatVersion: FormatVersion, LastUpdate: time.Now()},
	}

	file, err := os.Open(cleanPath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := s.parse(file); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) parse(reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return fmt.Errorf("failed to parse store: %w", err)
	}
	return nil
}

// save writes the document through a temporary file in the same directory.
// Callers hold the write lock.
func (s *Store) save() (err error) {
	s.doc.LastUpdate = time.Now()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, "fluffpkg-store-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to marshal store to JSON: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write to temporary file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temporary file to disk: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temporary file to %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) candidateIndex(packageName string) int {
	return slices.IndexFunc(s.doc.Candidates, func(c *model.Candidate) bool {
		return c.PackageName == packageName
	})
}

func (s *Store) installedIndex(packageName string) int {
	return slices.IndexFunc(s.doc.Installed, func(i *model.Installation) bool {
		return i.PackageName == packageName
	})
}

// AddCandidate inserts a candidate.
func (s *Store) AddCandidate(_ context.Context, c *model.Candidate, skipIfExists bool) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	if s.candidateIndex(c.PackageName) >= 0 {
		if skipIfExists {
			return nil
		}
		return errors.ErrAlreadySourcedWithName(c.PackageName)
	}
	s.doc.Candidates = append(s.doc.Candidates, c.Clone())
	return s.save()
}

// UpdateCandidate replaces the record of an existing candidate.
func (s *Store) UpdateCandidate(_ context.Context, c *model.Candidate) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := s.candidateIndex(c.PackageName)
	if i < 0 {
		return errors.ErrNotSourcedWithName(c.PackageName)
	}
	s.doc.Candidates[i] = c.Clone()
	return s.save()
}

// Candidate returns a candidate by package name.
func (s *Store) Candidate(_ context.Context, packageName string) (*model.Candidate, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()

	i := s.candidateIndex(packageName)
	if i < 0 {
		return nil, errors.ErrNotSourcedWithName(packageName)
	}
	return s.doc.Candidates[i].Clone(), nil
}

// Candidates returns every candidate in insertion order.
func (s *Store) Candidates(_ context.Context) ([]*model.Candidate, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()

	out := make([]*model.Candidate, 0, len(s.doc.Candidates))
	for _, c := range s.doc.Candidates {
		out = append(out, c.Clone())
	}
	return out, nil
}

// UpdateCategories replaces the categories of a candidate.
func (s *Store) UpdateCategories(_ context.Context, packageName string, categories []string) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := s.candidateIndex(packageName)
	if i < 0 {
		return errors.ErrNotSourcedWithName(packageName)
	}
	s.doc.Candidates[i].Categories = slices.Clone(categories)
	return s.save()
}

// SetModuleData sets one module data key of a candidate. An empty value
// deletes the key.
func (s *Store) SetModuleData(_ context.Context, packageName, key, value string) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := s.candidateIndex(packageName)
	if i < 0 {
		return errors.ErrNotSourcedWithName(packageName)
	}
	c := s.doc.Candidates[i]
	if value == "" {
		delete(c.ModuleData, key)
	} else {
		if c.ModuleData == nil {
			c.ModuleData = make(map[string]string)
		}
		c.ModuleData[key] = value
	}
	return s.save()
}

// RemoveCandidate deletes a candidate that is not installed.
func (s *Store) RemoveCandidate(_ context.Context, packageName string) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := s.candidateIndex(packageName)
	if i < 0 {
		return errors.ErrNotSourcedWithName(packageName)
	}
	if s.installedIndex(packageName) >= 0 {
		return errors.ErrStillInstalledWithName(packageName)
	}
	s.doc.Candidates = slices.Delete(s.doc.Candidates, i, i+1)
	return s.save()
}

// MarkInstalled records an installation.
func (s *Store) MarkInstalled(_ context.Context, inst *model.Installation) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	if s.installedIndex(inst.PackageName) >= 0 {
		return errors.ErrAlreadyInstalledWithName(inst.PackageName)
	}
	rec := inst.Clone()
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now()
	}
	s.doc.Installed = append(s.doc.Installed, rec)
	return s.save()
}

// Installation returns an installation by package name.
func (s *Store) Installation(_ context.Context, packageName string) (*model.Installation, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()

	i := s.installedIndex(packageName)
	if i < 0 {
		return nil, errors.ErrNotInstalledWithName(packageName)
	}
	return s.doc.Installed[i].Clone(), nil
}

// Installations returns every installation in insertion order.
func (s *Store) Installations(_ context.Context) ([]*model.Installation, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()

	out := make([]*model.Installation, 0, len(s.doc.Installed))
	for _, i := range s.doc.Installed {
		out = append(out, i.Clone())
	}
	return out, nil
}

// MarkAttribute sets the launcher or path attribute of an installation.
func (s *Store) MarkAttribute(_ context.Context, packageName, attribute string, value bool) error {
	if !store.ValidAttribute(attribute) {
		return fmt.Errorf("%w: %s", errors.ErrAttributeNotAllowed, attribute)
	}

	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := s.installedIndex(packageName)
	if i < 0 {
		return errors.ErrNotInstalledWithName(packageName)
	}
	switch attribute {
	case model.AttributeLauncher:
		s.doc.Installed[i].Launcher = value
	case model.AttributePath:
		s.doc.Installed[i].Path = value
	}
	return s.save()
}

// UnmarkInstalled deletes an installation record.
func (s *Store) UnmarkInstalled(_ context.Context, packageName string) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := s.installedIndex(packageName)
	if i < 0 {
		return errors.ErrNotInstalledWithName(packageName)
	}
	s.doc.Installed = slices.Delete(s.doc.Installed, i, i+1)
	return s.save()
}

// AddSource records a source.
func (s *Store) AddSource(_ context.Context, src model.Source) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	if slices.Contains(s.doc.Sources, src) {
		return fmt.Errorf("%w: %s", errors.ErrSourceAlreadyExists, src)
	}
	s.doc.Sources = append(s.doc.Sources, src)
	return s.save()
}

// RemoveSource forgets a source. Its candidates are left alone.
func (s *Store) RemoveSource(_ context.Context, src model.Source) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	i := slices.Index(s.doc.Sources, src)
	if i < 0 {
		return errors.ErrSourceNotFoundWithLocation(src.String())
	}
	s.doc.Sources = slices.Delete(s.doc.Sources, i, i+1)
	return s.save()
}

// Sources returns every recorded source.
func (s *Store) Sources(_ context.Context) ([]model.Source, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()

	return slices.Clone(s.doc.Sources), nil
}

// Close is a no-op; every mutation is already on disk.
func (s *Store) Close() error { return nil }
