// Package store defines the record store holding candidates, installations
// and sources. Engines live in the jsonstore and sqlitestore sub-packages.
package store

import (
	"context"
	stderrors "errors"
	"slices"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"golang.org/x/text/cases"
)

// Kinds of store engines selectable in the configuration.
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

// Store persists candidates, installations and sources keyed by package name.
// Records returned by a Store are copies; mutating them has no effect.
type Store interface {
	// AddCandidate inserts a candidate. An existing package name fails with
	// ErrAlreadySourced unless skipIfExists is set, in which case it is a no-op.
	AddCandidate(ctx context.Context, c *model.Candidate, skipIfExists bool) error
	// UpdateCandidate replaces an existing candidate record.
	UpdateCandidate(ctx context.Context, c *model.Candidate) error
	Candidate(ctx context.Context, packageName string) (*model.Candidate, error)
	Candidates(ctx context.Context) ([]*model.Candidate, error)
	UpdateCategories(ctx context.Context, packageName string, categories []string) error
	SetModuleData(ctx context.Context, packageName, key, value string) error
	// RemoveCandidate fails with ErrNotSourced for unknown packages and with
	// ErrStillInstalled while the package is installed.
	RemoveCandidate(ctx context.Context, packageName string) error

	// MarkInstalled records an installation. It never creates a second record
	// for the same package name.
	MarkInstalled(ctx context.Context, inst *model.Installation) error
	Installation(ctx context.Context, packageName string) (*model.Installation, error)
	Installations(ctx context.Context) ([]*model.Installation, error)
	// MarkAttribute sets one of model.MutableAttributes.
	MarkAttribute(ctx context.Context, packageName, attribute string, value bool) error
	UnmarkInstalled(ctx context.Context, packageName string) error

	AddSource(ctx context.Context, src model.Source) error
	RemoveSource(ctx context.Context, src model.Source) error
	Sources(ctx context.Context) ([]model.Source, error)

	Close() error
}

// Query runs a candidate query against every candidate in the store.
func Query(ctx context.Context, s Store, query string) (model.QueryResult, error) {
	candidates, err := s.Candidates(ctx)
	if err != nil {
		return model.QueryResult{}, err
	}
	return model.Query(candidates, query), nil
}

// FindInstallation resolves an installation by package name, then by display
// name ignoring case.
func FindInstallation(ctx context.Context, s Store, name string) (*model.Installation, error) {
	inst, err := s.Installation(ctx, name)
	if err == nil {
		return inst, nil
	}
	if !stderrors.Is(err, errors.ErrNotInstalled) {
		return nil, err
	}

	all, err := s.Installations(ctx)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	want := fold.String(name)
	for _, i := range all {
		if fold.String(i.PackageName) == want || fold.String(i.Name) == want {
			return i, nil
		}
	}
	return nil, errors.ErrNotInstalledWithName(name)
}

// IsInstalled reports whether an installation exists for the package.
func IsInstalled(ctx context.Context, s Store, packageName string) (bool, error) {
	_, err := s.Installation(ctx, packageName)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, errors.ErrNotInstalled):
		return false, nil
	default:
		return false, err
	}
}

// ValidAttribute reports whether an installation attribute may be changed.
func ValidAttribute(attribute string) bool {
	return slices.Contains(model.MutableAttributes, attribute)
}
