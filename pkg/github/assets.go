package github

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
)

// archAliases lists the names release assets commonly use for a GOARCH.
var archAliases = map[string][]string{
	"amd64": {"x86_64", "amd64", "x64"},
	"arm64": {"aarch64", "arm64"},
	"386":   {"i386", "i686", "x86"},
	"arm":   {"armhf", "armv7", "arm"},
}

// ArchNames returns the asset name fragments that identify arch.
func ArchNames(arch string) []string {
	if names, ok := archAliases[arch]; ok {
		return names
	}
	return []string{arch}
}

// AssetSelector narrows the assets of a release down to one.
type AssetSelector struct {
	// Match accepts assets of the wanted kind (AppImage, archive...).
	Match func(Asset) bool
	// Filter, when set, must appear in the asset name (case-insensitive).
	Filter string
	// Arch is a GOARCH value used to break ties. Defaults to runtime.GOARCH.
	Arch string
}

// Select picks exactly one asset. When several match, assets naming the
// target architecture are preferred.
func (s AssetSelector) Select(release *Release) (Asset, error) {
	var matched []Asset
	for _, a := range release.Assets {
		if s.Match != nil && !s.Match(a) {
			continue
		}
		if s.Filter != "" && !strings.Contains(strings.ToLower(a.Name), strings.ToLower(s.Filter)) {
			continue
		}
		matched = append(matched, a)
	}
	if len(matched) == 0 {
		return Asset{}, fmt.Errorf("release %s: %w", release.TagName, errors.ErrNoAsset)
	}
	if len(matched) == 1 {
		return matched[0], nil
	}

	arch := s.Arch
	if arch == "" {
		arch = runtime.GOARCH
	}
	names := ArchNames(arch)
	var byArch []Asset
	for _, a := range matched {
		lower := strings.ToLower(a.Name)
		if slices.ContainsFunc(names, func(n string) bool { return strings.Contains(lower, n) }) {
			byArch = append(byArch, a)
		}
	}
	if len(byArch) == 1 {
		return byArch[0], nil
	}

	candidates := make([]string, len(matched))
	for i, a := range matched {
		candidates[i] = a.Name
	}
	return Asset{}, fmt.Errorf("release %s has %s, set an asset filter: %w",
		release.TagName, strings.Join(candidates, ", "), errors.ErrAmbiguousAsset)
}

// IsAppImage matches AppImage assets by content type or extension.
func IsAppImage(a Asset) bool {
	return a.ContentType == "application/vnd.appimage" || strings.HasSuffix(strings.ToLower(a.Name), ".appimage")
}

var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.xz", ".txz", ".tar.bz2", ".tbz2", ".tar.zst", ".zip"}

// IsArchive matches release archives by extension.
func IsArchive(a Asset) bool {
	lower := strings.ToLower(a.Name)
	return slices.ContainsFunc(archiveSuffixes, func(s string) bool { return strings.HasSuffix(lower, s) })
}

// IsDeb matches Debian packages.
func IsDeb(a Asset) bool {
	return strings.HasSuffix(strings.ToLower(a.Name), ".deb")
}
