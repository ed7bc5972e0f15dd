// Package backends holds the helpers shared by the bundled modules: version
// ordering, package directories, GitHub release lookups and the common
// command arguments.
package backends

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
	"github.com/glorpus-work/fluffpkg/pkg/github"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"github.com/hashicorp/go-version"
)

// CurrentLink is the name of the link pointing at the active version
// directory of a package.
const CurrentLink = "current"

// Install flags shared by the install-style module commands.
var (
	NoLauncherFlag = grammar.Flag{Short: "-l", Long: "--nolauncher", Help: "Do not create a launcher"}
	PathFlag       = grammar.Flag{Short: "-p", Long: "--path", Help: "Link the executable into the bin directory"}
)

// SortVersions orders versions newest first. Strings that do not parse as
// versions go last, in reverse lexical order.
func SortVersions(versions []string) []string {
	out := slices.Clone(versions)
	slices.SortStableFunc(out, func(a, b string) int {
		va, errA := version.NewVersion(a)
		vb, errB := version.NewVersion(b)
		switch {
		case errA == nil && errB == nil:
			return vb.Compare(va)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			return strings.Compare(b, a)
		}
	})
	return out
}

// SameVersion reports whether a and b name the same version, ignoring a
// leading "v" and trailing zero segments.
func SameVersion(a, b string) bool {
	va, errA := version.NewVersion(a)
	vb, errB := version.NewVersion(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return va.Equal(vb)
}

// Layout places the files of one module under Root/<package>/<version>.
type Layout struct {
	Root string
}

// PackageDir returns the directory holding every version of a package.
func (l Layout) PackageDir(packageName string) string {
	return filepath.Join(l.Root, packageName)
}

// VersionDir returns the directory of one installed version.
func (l Layout) VersionDir(packageName, ver string) string {
	return filepath.Join(l.Root, packageName, ver)
}

// CurrentDir returns the stable path of the active version.
func (l Layout) CurrentDir(packageName string) string {
	return filepath.Join(l.Root, packageName, CurrentLink)
}

// Prepare creates an empty version directory, replacing leftovers of an
// earlier attempt.
func (l Layout) Prepare(packageName, ver string) (string, error) {
	if filepath.Base(packageName) != packageName || filepath.Base(ver) != ver || ver == CurrentLink {
		return "", fmt.Errorf("package %q version %q: %w", packageName, ver, errors.ErrInvalidPath)
	}
	dir := l.VersionDir(packageName, ver)
	if err := os.RemoveAll(dir); err != nil {
		return "", errors.Wrapf(err, "failed to clean %s", dir)
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}
	return dir, nil
}

// Activate points the current link at a version directory.
func (l Layout) Activate(packageName, ver string) error {
	return fsutil.ReplaceSymlink(ver, l.CurrentDir(packageName))
}

// Remove deletes every file of a package.
func (l Layout) Remove(packageName string) error {
	if filepath.Base(packageName) != packageName {
		return fmt.Errorf("package %q: %w", packageName, errors.ErrInvalidPath)
	}
	return os.RemoveAll(l.PackageDir(packageName))
}

// StablePath rewrites a path inside the version directory of inst to the
// same path under the current link.
func (l Layout) StablePath(inst *model.Installation) (string, error) {
	rel, err := filepath.Rel(l.VersionDir(inst.PackageName, inst.Version), inst.ExecutablePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the package directory: %w", inst.ExecutablePath, errors.ErrInvalidPath)
	}
	return filepath.Join(l.CurrentDir(inst.PackageName), rel), nil
}

// RepoCandidate builds a manual candidate for a GitHub repository.
func RepoCandidate(ctx context.Context, client github.Client, module, repo string) (*model.Candidate, error) {
	r, err := client.Repository(ctx, repo)
	if err != nil {
		return nil, err
	}
	return &model.Candidate{
		Module:      module,
		Name:        r.Name,
		PackageName: model.NormalizePackageName(r.Name),
		Source:      model.ManualSource,
		DownloadURL: r.FullName,
		ModuleData:  map[string]string{},
	}, nil
}

// AddCandidate records a candidate created by a module command.
func AddCandidate(ctx context.Context, st store.Store, c *model.Candidate) error {
	c.Source = model.ManualSource
	return st.AddCandidate(ctx, c, false)
}

// Release returns the release of repo tagged ver, or the latest release when
// ver is empty.
func Release(ctx context.Context, client github.Client, repo, ver string) (*github.Release, error) {
	if ver == "" {
		return client.LatestRelease(ctx, repo)
	}
	rel, err := client.ReleaseByTag(ctx, repo, ver)
	if err == nil {
		return rel, nil
	}
	if !strings.HasPrefix(ver, "v") {
		if rel, vErr := client.ReleaseByTag(ctx, repo, "v"+ver); vErr == nil {
			return rel, nil
		}
	}
	return nil, fmt.Errorf("%s@%s: %w: %w", repo, ver, errors.ErrVersionNotFound, err)
}

// ReleaseVersions lists the published release tags of repo, newest first.
func ReleaseVersions(ctx context.Context, client github.Client, repo string, match func(github.Asset) bool) ([]string, error) {
	releases, err := client.Releases(ctx, repo)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, r := range releases {
		if r.Draft || !slices.ContainsFunc(r.Assets, match) {
			continue
		}
		tags = append(tags, r.TagName)
	}
	return SortVersions(tags), nil
}
