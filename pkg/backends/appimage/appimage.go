// Package appimage installs AppImages published as GitHub release assets.
package appimage

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/auth"
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/backends"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
	"github.com/glorpus-work/fluffpkg/pkg/github"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
)

// Name is the module name recorded on candidates.
const Name = "github-appimage"

// DataAssetFilter is the module data key of the asset filter.
const DataAssetFilter = "asset_filter"

// Module implements every backend capability for AppImages.
type Module struct {
	layout     backends.Layout
	client     github.Client
	downloader download.Manager
	auth       auth.Authenticator
}

var (
	_ backend.Remover           = (*Module)(nil)
	_ backend.Upgrader          = (*Module)(nil)
	_ backend.Versioner         = (*Module)(nil)
	_ backend.ExecPather        = (*Module)(nil)
	_ backend.CommandProvider   = (*Module)(nil)
	_ backend.AttributeProvider = (*Module)(nil)
)

// New returns the module. Packages are stored below root.
func New(root string, client github.Client, downloader download.Manager, authenticator auth.Authenticator) *Module {
	return &Module{
		layout:     backends.Layout{Root: root},
		client:     client,
		downloader: downloader,
		auth:       authenticator,
	}
}

// Name implements backend.Backend.
func (m *Module) Name() string { return Name }

// Install downloads the AppImage of the requested release.
func (m *Module) Install(ctx context.Context, c *model.Candidate, opts backend.InstallOptions) (*backend.InstallResult, error) {
	release, err := backends.Release(ctx, m.client, c.DownloadURL, opts.Version)
	if err != nil {
		return nil, err
	}
	asset, err := m.selector(c).Select(release)
	if err != nil {
		return nil, err
	}
	assetURL, err := url.Parse(asset.BrowserDownloadURL)
	if err != nil {
		return nil, fmt.Errorf("asset %s has an invalid download URL: %w", asset.Name, err)
	}

	dir, err := m.layout.Prepare(c.PackageName, release.TagName)
	if err != nil {
		return nil, err
	}
	logger.Info("Downloading AppImage", logger.Fields{"package": c.PackageName, "asset": asset.Name, "version": release.TagName})
	path, err := m.downloader.Fetch(ctx, download.Item{
		ID:       c.PackageName,
		URL:      assetURL,
		Filename: asset.Name,
		Auth:     m.auth,
	}, download.Options{Dir: dir})
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, fsutil.FileModeExec); err != nil {
		return nil, errors.Wrapf(err, "failed to make %s executable", path)
	}
	if err := m.layout.Activate(c.PackageName, release.TagName); err != nil {
		return nil, err
	}
	return &backend.InstallResult{Version: release.TagName, ExecutablePath: path}, nil
}

func (m *Module) selector(c *model.Candidate) github.AssetSelector {
	return github.AssetSelector{Match: github.IsAppImage, Filter: c.Data(DataAssetFilter)}
}

// Remove deletes every downloaded version.
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

// Versions lists the release tags that carry an AppImage.
func (m *Module) Versions(ctx context.Context, c *model.Candidate) ([]string, error) {
	return backends.ReleaseVersions(ctx, m.client, c.DownloadURL, github.IsAppImage)
}

// ExecPath returns the AppImage, or its path through the current link.
func (m *Module) ExecPath(_ context.Context, inst *model.Installation, opts backend.ExecPathOptions) (string, error) {
	if !opts.NoVersion {
		return inst.ExecutablePath, nil
	}
	return m.layout.StablePath(inst)
}

// Commands contributes add-github-appimage and install-github-appimage.
func (m *Module) Commands() []backend.Command {
	repos := grammar.Rest{Name: "repos", Help: "GitHub repositories as owner/repo"}
	return []backend.Command{
		{
			Grammar: &grammar.Command{
				Name: "add-github-appimage",
				Help: "Add GitHub repositories publishing AppImages as candidates",
				Args: []grammar.Arg{repos},
			},
			Run: m.runAdd,
		},
		{
			Grammar: &grammar.Command{
				Name: "install-github-appimage",
				Help: "Add GitHub repositories publishing AppImages and install them",
				Args: []grammar.Arg{backends.NoLauncherFlag, backends.PathFlag, repos},
			},
			Run: m.runAddInstall,
		},
	}
}

func (m *Module) runAdd(ctx context.Context, inv *backend.Invocation) error {
	_, err := m.add(ctx, inv)
	return err
}

func (m *Module) runAddInstall(ctx context.Context, inv *backend.Invocation) error {
	added, err := m.add(ctx, inv)
	if err != nil {
		return err
	}
	req := backend.InstallRequest{
		NoLauncher: inv.Result.Flag("--nolauncher"),
		Path:       inv.Result.Flag("--path"),
	}
	for _, c := range added {
		inst, err := inv.Installer.Install(ctx, c.PackageName, req)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(inv.Out, "%s %s successfully installed\n", inst.Name, inst.Version)
	}
	return nil
}

func (m *Module) add(ctx context.Context, inv *backend.Invocation) ([]*model.Candidate, error) {
	var added []*model.Candidate
	for _, repo := range inv.Result.Rest("repos") {
		c, err := backends.RepoCandidate(ctx, m.client, Name, repo)
		if err != nil {
			return added, err
		}
		if err := backends.AddCandidate(ctx, inv.Store, c); err != nil {
			return added, err
		}
		_, _ = fmt.Fprintf(inv.Out, "Added %s as %s\n", c.DownloadURL, c.PackageName)
		added = append(added, c)
	}
	return added, nil
}

// Attributes contributes asset-filter.
func (m *Module) Attributes() []backend.Attribute {
	return []backend.Attribute{AssetFilterAttribute()}
}

// AssetFilterAttribute narrows release assets by a substring of their name.
func AssetFilterAttribute() backend.Attribute {
	return backend.Attribute{
		Name: "asset-filter",
		Help: "Substring a release asset name must contain",
		Args: []grammar.Arg{grammar.Pos{Name: "filter", Help: "Filter text, empty to clear", Optional: true}},
		Modify: func(ctx context.Context, inv *backend.Invocation, c *model.Candidate) error {
			filter, _ := inv.Result.Pos("filter")
			return inv.Store.SetModuleData(ctx, c.PackageName, DataAssetFilter, filter)
		},
		Show: func(_ context.Context, _ *backend.Invocation, c *model.Candidate) (string, error) {
			return c.Data(DataAssetFilter), nil
		},
	}
}
