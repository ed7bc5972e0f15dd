package appimage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/backend"
	mock_backend "github.com/glorpus-work/fluffpkg/pkg/backend/mocks"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/github"
	mock_github "github.com/glorpus-work/fluffpkg/pkg/github/mocks"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"github.com/glorpus-work/fluffpkg/pkg/store/jsonstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	module *Module
	client *mock_github.MockClient
	store  store.Store
	server *httptest.Server
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("AppImage " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	st, err := jsonstore.Open(filepath.Join(t.TempDir(), jsonstore.DefaultFileName))
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	client := mock_github.NewMockClient(ctrl)
	root := filepath.Join(t.TempDir(), "packages")
	return &fixture{
		module: New(root, client, download.NewManager(5*time.Second, "test"), nil),
		client: client,
		store:  st,
		server: srv,
		root:   root,
	}
}

func (f *fixture) release(tag string) *github.Release {
	return &github.Release{TagName: tag, Assets: []github.Asset{
		{Name: "Krita-" + tag + "-x86_64.AppImage", BrowserDownloadURL: f.server.URL + "/x86_64/" + tag},
		{Name: "Krita-" + tag + "-aarch64.AppImage", BrowserDownloadURL: f.server.URL + "/aarch64/" + tag},
		{Name: "krita-" + tag + ".tar.gz", BrowserDownloadURL: f.server.URL + "/src"},
	}}
}

func kritaCandidate() *model.Candidate {
	return &model.Candidate{
		Module:      Name,
		Name:        "Krita",
		PackageName: "krita",
		DownloadURL: "KDE/krita",
		ModuleData:  map[string]string{DataAssetFilter: "x86_64"},
	}
}

func TestInstallLatest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().LatestRelease(ctx, "KDE/krita").Return(f.release("v5.2.0"), nil)

	res, err := f.module.Install(ctx, kritaCandidate(), backend.InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "v5.2.0", res.Version)
	assert.Equal(t, filepath.Join(f.root, "krita", "v5.2.0", "Krita-v5.2.0-x86_64.AppImage"), res.ExecutablePath)

	info, err := os.Stat(res.ExecutablePath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100)
	content, err := os.ReadFile(res.ExecutablePath)
	require.NoError(t, err)
	assert.Equal(t, "AppImage /x86_64/v5.2.0", string(content))

	inst := &model.Installation{PackageName: "krita", Version: res.Version, ExecutablePath: res.ExecutablePath}
	stable, err := f.module.ExecPath(ctx, inst, backend.ExecPathOptions{NoVersion: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, "krita", "current", "Krita-v5.2.0-x86_64.AppImage"), stable)
	assert.FileExists(t, stable)

	path, err := f.module.ExecPath(ctx, inst, backend.ExecPathOptions{})
	require.NoError(t, err)
	assert.Equal(t, res.ExecutablePath, path)

	require.NoError(t, f.module.Remove(ctx, inst))
	assert.NoDirExists(t, filepath.Join(f.root, "krita"))
}

func TestInstallPinnedVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().ReleaseByTag(ctx, "KDE/krita", "v5.1.0").Return(f.release("v5.1.0"), nil)

	res, err := f.module.Install(ctx, kritaCandidate(), backend.InstallOptions{Version: "v5.1.0"})
	require.NoError(t, err)
	assert.Equal(t, "v5.1.0", res.Version)
}

func TestInstallNoMatchingAsset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().LatestRelease(ctx, "KDE/krita").Return(f.release("v5.2.0"), nil)

	c := kritaCandidate()
	c.ModuleData[DataAssetFilter] = "riscv64"
	_, err := f.module.Install(ctx, c, backend.InstallOptions{})
	assert.ErrorIs(t, err, errors.ErrNoAsset)
	assert.NoDirExists(t, filepath.Join(f.root, "krita"))
}

func TestNewestAndVersions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().LatestRelease(ctx, "KDE/krita").Return(f.release("v5.2.0"), nil)
	f.client.EXPECT().Releases(ctx, "KDE/krita").Return([]*github.Release{f.release("v5.1.0"), f.release("v5.2.0")}, nil)

	newest, err := f.module.Newest(ctx, kritaCandidate())
	require.NoError(t, err)
	assert.Equal(t, "v5.2.0", newest)

	versions, err := f.module.Versions(ctx, kritaCandidate())
	require.NoError(t, err)
	assert.Equal(t, []string{"v5.2.0", "v5.1.0"}, versions)
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := backend.NewRegistry(nil)
	require.NoError(t, reg.Register(f.module))

	f.client.EXPECT().Repository(ctx, "KDE/krita").Return(&github.Repository{Name: "Krita", FullName: "KDE/krita"}, nil).Times(2)

	res, err := grammar.Parse([]string{"add-github-appimage", "KDE/krita"}, reg.Grammar())
	require.NoError(t, err)
	cmd, ok := reg.Command(res.Command)
	require.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, cmd.Run(ctx, &backend.Invocation{Result: res, Store: f.store, Out: &out}))
	assert.Equal(t, "Added KDE/krita as krita\n", out.String())

	c, err := f.store.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, Name, c.Module)
	assert.Equal(t, model.ManualSource, c.Source)

	// a second add of the same repository is rejected
	err = cmd.Run(ctx, &backend.Invocation{Result: res, Store: f.store, Out: &out})
	assert.ErrorIs(t, err, errors.ErrAlreadySourced)
}

func TestInstallCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	reg := backend.NewRegistry(nil)
	require.NoError(t, reg.Register(f.module))

	ctrl := gomock.NewController(t)
	installer := mock_backend.NewMockInstaller(ctrl)
	f.client.EXPECT().Repository(ctx, "KDE/krita").Return(&github.Repository{Name: "Krita", FullName: "KDE/krita"}, nil)
	installer.EXPECT().
		Install(ctx, "krita", backend.InstallRequest{NoLauncher: true, Path: true}).
		Return(&model.Installation{Name: "Krita", Version: "v5.2.0"}, nil)

	res, err := grammar.Parse([]string{"install-github-appimage", "-l", "--path", "KDE/krita"}, reg.Grammar())
	require.NoError(t, err)
	cmd, ok := reg.Command("install-github-appimage")
	require.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, cmd.Run(ctx, &backend.Invocation{Result: res, Store: f.store, Installer: installer, Out: &out}))
	assert.Contains(t, out.String(), "Krita v5.2.0 successfully installed")
}

func TestAssetFilterAttribute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.AddCandidate(ctx, kritaCandidate(), false))

	attr := AssetFilterAttribute()
	res, err := grammar.Parse([]string{"asset-filter", "aarch64"}, []*grammar.Command{{Name: attr.Name, Args: attr.Args}})
	require.NoError(t, err)

	c, err := f.store.Candidate(ctx, "krita")
	require.NoError(t, err)
	require.NoError(t, attr.Modify(ctx, &backend.Invocation{Result: res, Store: f.store}, c))

	c, err = f.store.Candidate(ctx, "krita")
	require.NoError(t, err)
	shown, err := attr.Show(ctx, &backend.Invocation{Store: f.store}, c)
	require.NoError(t, err)
	assert.Equal(t, "aarch64", shown)
}
