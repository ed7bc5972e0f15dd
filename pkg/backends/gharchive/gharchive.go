// Package gharchive installs command line tools shipped as tar or zip
// archives on GitHub releases.
package gharchive

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/archive"
	"github.com/glorpus-work/fluffpkg/pkg/auth"
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/backends"
	"github.com/glorpus-work/fluffpkg/pkg/backends/appimage"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/github"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
)

// Name is the module name recorded on candidates.
const Name = "github-archive"

// Module data keys.
const (
	DataAssetFilter = appimage.DataAssetFilter
	DataBinary      = "binary"
)

// Module installs release archives.
type Module struct {
	layout      backends.Layout
	downloadDir string
	client      github.Client
	downloader  download.Manager
	archives    *archive.Manager
	auth        auth.Authenticator
}

var (
	_ backend.Remover           = (*Module)(nil)
	_ backend.Upgrader          = (*Module)(nil)
	_ backend.Versioner         = (*Module)(nil)
	_ backend.ExecPather        = (*Module)(nil)
	_ backend.CommandProvider   = (*Module)(nil)
	_ backend.AttributeProvider = (*Module)(nil)
)

// New returns the module. Packages are extracted below root; archives are
// downloaded to downloadDir and deleted after extraction.
func New(root, downloadDir string, client github.Client, downloader download.Manager, authenticator auth.Authenticator) *Module {
	return &Module{
		layout:      backends.Layout{Root: root},
		downloadDir: downloadDir,
		client:      client,
		downloader:  downloader,
		archives:    archive.NewManager(),
		auth:        authenticator,
	}
}

// Name implements backend.Backend.
func (m *Module) Name() string { return Name }

// Install downloads and extracts the release archive and locates the binary.
func (m *Module) Install(ctx context.Context, c *model.Candidate, opts backend.InstallOptions) (*backend.InstallResult, error) {
	release, err := backends.Release(ctx, m.client, c.DownloadURL, opts.Version)
	if err != nil {
		return nil, err
	}
	asset, err := github.AssetSelector{Match: github.IsArchive, Filter: c.Data(DataAssetFilter)}.Select(release)
	if err != nil {
		return nil, err
	}
	assetURL, err := url.Parse(asset.BrowserDownloadURL)
	if err != nil {
		return nil, fmt.Errorf("asset %s has an invalid download URL: %w", asset.Name, err)
	}

	logger.Info("Downloading archive", logger.Fields{"package": c.PackageName, "asset": asset.Name, "version": release.TagName})
	archivePath, err := m.downloader.Fetch(ctx, download.Item{
		ID:       c.PackageName,
		URL:      assetURL,
		Filename: asset.Name,
		Auth:     m.auth,
	}, download.Options{Dir: m.downloadDir})
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(archivePath) }()

	ok, err := m.archives.IsArchive(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s is not an archive: %w", asset.Name, errors.ErrNoAsset)
	}

	dir, err := m.layout.Prepare(c.PackageName, release.TagName)
	if err != nil {
		return nil, err
	}
	if err := m.archives.ExtractAll(ctx, archivePath, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	root, err := archive.StripSingleRoot(dir)
	if err != nil {
		return nil, err
	}
	exe, err := findBinary(root, c)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if err := m.layout.Activate(c.PackageName, release.TagName); err != nil {
		return nil, err
	}
	return &backend.InstallResult{Version: release.TagName, ExecutablePath: exe}, nil
}

// findBinary looks for the configured binary, then for one named after the
// package, then for any executable.
func findBinary(root string, c *model.Candidate) (string, error) {
	if name := c.Data(DataBinary); name != "" {
		rel, err := archive.FindExecutable(root, name)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, rel), nil
	}
	rel, err := archive.FindExecutable(root, c.PackageName)
	if stderrors.Is(err, errors.ErrInvalidPath) {
		rel, err = archive.FindExecutable(root, "")
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// Remove deletes every extracted version.
func (m *Module) Remove(_ context.Context, inst *model.Installation) error {
	return m.layout.Remove(inst.PackageName)
}

// Newest returns the tag of the latest release.
func (m *Module) Newest(ctx context.Context, c *model.Candidate) (string, error) {
	release, err := m.client.LatestRelease(ctx, c.DownloadURL)
	if err != nil {
		return "", err
	}
	return release.TagName, nil
}

// Versions lists the release tags that carry an archive.
func (m *Module) Versions(ctx context.Context, c *model.Candidate) ([]string, error) {
	return backends.ReleaseVersions(ctx, m.client, c.DownloadURL, github.IsArchive)
}

// ExecPath returns the binary, or its path through the current link.
func (m *Module) ExecPath(_ context.Context, inst *model.Installation, opts backend.ExecPathOptions) (string, error) {
	if !opts.NoVersion {
		return inst.ExecutablePath, nil
	}
	return m.layout.StablePath(inst)
}

// Commands contributes add-github-archive.
func (m *Module) Commands() []backend.Command {
	return []backend.Command{{
		Grammar: &grammar.Command{
			Name: "add-github-archive",
			Help: "Add GitHub repositories publishing archived binaries as candidates",
			Args: []grammar.Arg{
				grammar.Value{Short: "-b", Long: "--binary", Help: "Name of the executable inside the archive", Placeholder: "NAME"},
				grammar.Rest{Name: "repos", Help: "GitHub repositories as owner/repo"},
			},
		},
		Run: m.runAdd,
	}}
}

func (m *Module) runAdd(ctx context.Context, inv *backend.Invocation) error {
	binary, _ := inv.Result.Value("--binary")
	for _, repo := range inv.Result.Rest("repos") {
		c, err := backends.RepoCandidate(ctx, m.client, Name, repo)
		if err != nil {
			return err
		}
		if binary != "" {
			c.ModuleData[DataBinary] = binary
		}
		if err := backends.AddCandidate(ctx, inv.Store, c); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(inv.Out, "Added %s as %s\n", c.DownloadURL, c.PackageName)
	}
	return nil
}

// Attributes contributes asset-filter and binary.
func (m *Module) Attributes() []backend.Attribute {
	return []backend.Attribute{
		appimage.AssetFilterAttribute(),
		{
			Name: "binary",
			Help: "Name of the executable inside the archive",
			Args: []grammar.Arg{grammar.Pos{Name: "name", Help: "Executable name, empty to search"}},
			Modify: func(ctx context.Context, inv *backend.Invocation, c *model.Candidate) error {
				name, _ := inv.Result.Pos("name")
				return inv.Store.SetModuleData(ctx, c.PackageName, DataBinary, name)
			},
			Show: func(_ context.Context, _ *backend.Invocation, c *model.Candidate) (string, error) {
				return c.Data(DataBinary), nil
			},
		},
	}
}
