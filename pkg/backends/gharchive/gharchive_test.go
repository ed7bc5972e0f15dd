package gharchive

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/archive"
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/github"
	mock_github "github.com/glorpus-work/fluffpkg/pkg/github/mocks"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store/jsonstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// buildTarball packs files into a tar.gz. Names ending in * are executable.
func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	for name, content := range files {
		mode := os.FileMode(0o644)
		if n := len(name); name[n-1] == '*' {
			name, mode = name[:n-1], 0o755
		}
		p := filepath.Join(src, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), mode))
	}
	out := filepath.Join(tempDir, "release.tar.gz")
	require.NoError(t, archive.NewManager().Create(context.Background(), src, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return data
}

type fixture struct {
	module      *Module
	client      *mock_github.MockClient
	root        string
	downloadDir string
	release     *github.Release
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tarball := buildTarball(t, map[string]string{
		"ripgrep-14.1.0/rg*":          "#!/bin/sh\necho rg\n",
		"ripgrep-14.1.0/doc/rg.1":     "man page",
		"ripgrep-14.1.0/complete/_rg": "zsh",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/notes.txt" {
			_, _ = w.Write([]byte("release notes"))
			return
		}
		_, _ = w.Write(tarball)
	}))
	t.Cleanup(srv.Close)

	ctrl := gomock.NewController(t)
	client := mock_github.NewMockClient(ctrl)
	root := filepath.Join(t.TempDir(), "packages")
	downloadDir := filepath.Join(t.TempDir(), "downloads")
	return &fixture{
		module:      New(root, downloadDir, client, download.NewManager(5*time.Second, "test"), nil),
		client:      client,
		root:        root,
		downloadDir: downloadDir,
		release: &github.Release{TagName: "14.1.0", Assets: []github.Asset{
			{Name: "ripgrep-14.1.0-x86_64-unknown-linux-musl.tar.gz", BrowserDownloadURL: srv.URL + "/rg.tar.gz"},
			{Name: "ripgrep-14.1.0.sha256", BrowserDownloadURL: srv.URL + "/sum"},
			{Name: "notes.zip", BrowserDownloadURL: srv.URL + "/notes.txt"},
		}},
	}
}

func ripgrepCandidate() *model.Candidate {
	return &model.Candidate{
		Module:      Name,
		Name:        "ripgrep",
		PackageName: "ripgrep",
		DownloadURL: "BurntSushi/ripgrep",
		ModuleData:  map[string]string{DataAssetFilter: "linux", DataBinary: "rg"},
	}
}

func TestInstall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().LatestRelease(ctx, "BurntSushi/ripgrep").Return(f.release, nil)

	res, err := f.module.Install(ctx, ripgrepCandidate(), backend.InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "14.1.0", res.Version)
	assert.Equal(t, filepath.Join(f.root, "ripgrep", "14.1.0", "ripgrep-14.1.0", "rg"), res.ExecutablePath)
	assert.FileExists(t, filepath.Join(f.root, "ripgrep", "14.1.0", "ripgrep-14.1.0", "doc", "rg.1"))

	entries, err := os.ReadDir(f.downloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "downloaded archive is removed after extraction")

	inst := &model.Installation{PackageName: "ripgrep", Version: res.Version, ExecutablePath: res.ExecutablePath}
	stable, err := f.module.ExecPath(ctx, inst, backend.ExecPathOptions{NoVersion: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.root, "ripgrep", "current", "ripgrep-14.1.0", "rg"), stable)
	assert.FileExists(t, stable)

	require.NoError(t, f.module.Remove(ctx, inst))
	assert.NoDirExists(t, filepath.Join(f.root, "ripgrep"))
}

func TestInstallFindsBinaryByPackageName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().ReleaseByTag(ctx, "BurntSushi/ripgrep", "14.1.0").Return(f.release, nil)

	c := ripgrepCandidate()
	delete(c.ModuleData, DataBinary)
	res, err := f.module.Install(ctx, c, backend.InstallOptions{Version: "14.1.0"})
	require.NoError(t, err)
	assert.Equal(t, "rg", filepath.Base(res.ExecutablePath))
}

func TestInstallMissingBinary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().LatestRelease(ctx, "BurntSushi/ripgrep").Return(f.release, nil)

	c := ripgrepCandidate()
	c.ModuleData[DataBinary] = "ripgrep"
	_, err := f.module.Install(ctx, c, backend.InstallOptions{})
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
	assert.NoDirExists(t, filepath.Join(f.root, "ripgrep", "14.1.0"))
}

func TestInstallRejectsNonArchive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.EXPECT().LatestRelease(ctx, "BurntSushi/ripgrep").Return(f.release, nil)

	c := ripgrepCandidate()
	c.ModuleData[DataAssetFilter] = "notes"
	_, err := f.module.Install(ctx, c, backend.InstallOptions{})
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(f.root, "ripgrep", "14.1.0"))
}

func TestAddCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	st, err := jsonstore.Open(filepath.Join(t.TempDir(), jsonstore.DefaultFileName))
	require.NoError(t, err)

	reg := backend.NewRegistry(nil)
	require.NoError(t, reg.Register(f.module))
	f.client.EXPECT().Repository(ctx, "BurntSushi/ripgrep").Return(&github.Repository{Name: "ripgrep", FullName: "BurntSushi/ripgrep"}, nil)

	res, err := grammar.Parse([]string{"add-github-archive", "-b", "rg", "BurntSushi/ripgrep"}, reg.Grammar())
	require.NoError(t, err)
	cmd, ok := reg.Command("add-github-archive")
	require.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, cmd.Run(ctx, &backend.Invocation{Result: res, Store: st, Out: &out}))

	c, err := st.Candidate(ctx, "ripgrep")
	require.NoError(t, err)
	assert.Equal(t, "rg", c.Data(DataBinary))
	assert.Equal(t, Name, c.Module)

	attr, ok := reg.Attribute(Name, "binary")
	require.True(t, ok)
	shown, err := attr.Show(ctx, &backend.Invocation{Store: st}, c)
	require.NoError(t, err)
	assert.Equal(t, "rg", shown)
}
