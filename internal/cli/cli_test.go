package cli

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/backends/appimage"
	"github.com/glorpus-work/fluffpkg/pkg/backends/dotdeb"
	"github.com/glorpus-work/fluffpkg/pkg/backends/gharchive"
	"github.com/glorpus-work/fluffpkg/pkg/config"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	*App
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{"XDG_DATA_HOME", "XDG_CACHE_HOME", "XDG_STATE_HOME", "XDG_CONFIG_HOME"} {
		t.Setenv(env, "")
	}
	return home
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	setHome(t)
	logger.SetTestOutput(io.Discard)
	t.Cleanup(logger.UnsetTestOutput)

	var out, errOut bytes.Buffer
	app, err := NewApp(config.DefaultConfig(), &out, &errOut)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return &testApp{App: app, out: &out, errOut: &errOut}
}

func (ta *testApp) run(t *testing.T, args ...string) error {
	t.Helper()
	ta.out.Reset()
	ta.errOut.Reset()
	return ta.Run(context.Background(), args)
}

func (ta *testApp) addCandidate(t *testing.T, module, pkg string, categories ...string) {
	t.Helper()
	require.NoError(t, ta.Store.AddCandidate(context.Background(), &model.Candidate{
		Module:      module,
		Name:        pkg,
		PackageName: pkg,
		Categories:  categories,
		Source:      model.ManualSource,
		DownloadURL: "owner/" + pkg,
	}, false))
}

func (ta *testApp) markInstalled(t *testing.T, module, pkg, ver string) *model.Installation {
	t.Helper()
	exe := filepath.Join(t.TempDir(), pkg)
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
	inst := &model.Installation{
		Name:           pkg,
		Version:        ver,
		PackageName:    pkg,
		Module:         module,
		Source:         model.ManualSource,
		ExecutablePath: exe,
		VersionLocked:  true,
		InstalledAt:    time.Now(),
	}
	require.NoError(t, ta.Store.MarkInstalled(context.Background(), inst))
	return inst
}

func TestOpenStore(t *testing.T) {
	setHome(t)

	for _, kind := range []string{store.KindJSON, store.KindSQLite} {
		t.Run(kind, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Settings.StateDir = t.TempDir()
			cfg.Settings.Store = kind
			st, err := openStore(cfg)
			require.NoError(t, err)
			require.NoError(t, st.AddSource(context.Background(), model.Source{Kind: model.SourceLocal, URL: "/tmp/list.yaml"}))
			require.NoError(t, st.Close())
		})
	}

	cfg := config.DefaultConfig()
	cfg.Settings.Store = "bolt"
	_, err := openStore(cfg)
	assert.ErrorIs(t, err, errors.ErrUnsupportedStoreKind)
}

func TestLoadConfigOverrides(t *testing.T) {
	home := setHome(t)
	path := filepath.Join(home, "custom.yaml")
	cfg := config.DefaultConfig()
	cfg.Settings.MaxConcurrent = 7
	require.NoError(t, cfg.SaveConfig(path))

	t.Setenv("FLUFFPKG_CONFIG", path)
	t.Setenv("FLUFFPKG_STORE", store.KindSQLite)
	t.Setenv("FLUFFPKG_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "ghp_plain")

	loaded, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Settings.MaxConcurrent)
	assert.Equal(t, store.KindSQLite, loaded.Settings.Store)
	assert.Equal(t, "ghp_plain", loaded.GitHub.Token)

	t.Setenv("FLUFFPKG_GITHUB_TOKEN", "ghp_prefixed")
	loaded, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "ghp_prefixed", loaded.GitHub.Token)

	t.Setenv("FLUFFPKG_STORE", "bolt")
	_, err = loadConfig()
	assert.ErrorIs(t, err, errors.ErrUnsupportedStoreKind)
}

func TestRunUnknownCommand(t *testing.T) {
	ta := newTestApp(t)

	err := ta.run(t, "instal", "krita")
	require.ErrorIs(t, err, errors.ErrUnknownCommand)
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "install")

	assert.ErrorIs(t, ta.run(t), errors.ErrUnknownCommand)
}

func TestRunUsageErrorPrintsUsage(t *testing.T) {
	ta := newTestApp(t)

	err := ta.run(t, "install", "--nolauncher")
	assert.ErrorIs(t, err, errors.ErrUsage)
	assert.Contains(t, ta.errOut.String(), "Usage: install")

	err = ta.run(t, "install", "--bogus", "krita")
	assert.ErrorIs(t, err, errors.ErrUsage)
}

func TestRunIsCaseInsensitive(t *testing.T) {
	ta := newTestApp(t)
	ta.addCandidate(t, appimage.Name, "krita")

	require.NoError(t, ta.run(t, "SHOW", "krita", "Module"))
	assert.Equal(t, appimage.Name+"\n", ta.out.String())
}

func TestModifyModuleAttribute(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	ta.addCandidate(t, appimage.Name, "krita")

	require.NoError(t, ta.run(t, "modify", "krita", "asset-filter", "x86_64"))
	c, err := ta.Store.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, "x86_64", c.Data(appimage.DataAssetFilter))

	require.NoError(t, ta.run(t, "show", "krita", "asset-filter"))
	assert.Equal(t, "x86_64\n", ta.out.String())
}

func TestModifyAttributeOfOtherModule(t *testing.T) {
	ta := newTestApp(t)
	ta.addCandidate(t, dotdeb.Name, "tool")

	err := ta.run(t, "modify", "tool", "asset-filter", "amd64")
	assert.ErrorIs(t, err, errors.ErrUsage)
	assert.Contains(t, ta.errOut.String(), "deb-name")
	assert.NotContains(t, ta.errOut.String(), "asset-filter")

	// unknown packages only get the built-in attributes
	err = ta.run(t, "modify", "missing", "deb-name", "x")
	assert.ErrorIs(t, err, errors.ErrUsage)
}

func TestModifyCategories(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	ta.addCandidate(t, appimage.Name, "krita", "Graphics")

	require.NoError(t, ta.run(t, "modify", "krita", "add-categories", "Graphics", "Qt"))
	c, err := ta.Store.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, []string{"Graphics", "Qt"}, c.Categories)

	require.NoError(t, ta.run(t, "modify", "krita", "remove-categories", "Graphics"))
	c, err = ta.Store.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, []string{"Qt"}, c.Categories)

	assert.ErrorIs(t, ta.run(t, "modify", "gimp", "add-categories", "Graphics"), errors.ErrNoCandidate)
}

func TestModifyLauncherAndCategories(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	ta.addCandidate(t, appimage.Name, "krita", "Graphics")
	ta.markInstalled(t, appimage.Name, "krita", "5.2.0")

	require.NoError(t, ta.run(t, "modify", "krita", "launcher", "on"))
	launcher := ta.Desktop.LauncherPath("krita")
	assert.FileExists(t, launcher)
	inst, err := ta.Store.Installation(ctx, "krita")
	require.NoError(t, err)
	assert.True(t, inst.Launcher)

	require.NoError(t, ta.run(t, "modify", "krita", "add-categories", "Qt"))
	content, err := os.ReadFile(launcher)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Categories=Graphics;Qt;")

	require.NoError(t, ta.run(t, "modify", "krita", "launcher", "off"))
	assert.NoFileExists(t, launcher)

	assert.ErrorIs(t, ta.run(t, "modify", "krita", "launcher", "maybe"), errors.ErrInvalidBoolValue)
}

type failingInstallations struct {
	store.Store
	err error
}

func (f failingInstallations) Installation(context.Context, string) (*model.Installation, error) {
	return nil, f.err
}

func TestModifyCategoriesReportsStoreFailure(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	ta.addCandidate(t, appimage.Name, "krita", "Graphics")
	c, err := ta.Store.Candidate(ctx, "krita")
	require.NoError(t, err)

	st := ta.Store
	broken := stderrors.New("database is locked")
	ta.Store = failingInstallations{Store: st, err: broken}
	assert.ErrorIs(t, ta.setCategories(ctx, c, []string{"Qt"}), broken)

	ta.Store = failingInstallations{Store: st, err: errors.ErrNotInstalledWithName("krita")}
	require.NoError(t, ta.setCategories(ctx, c, []string{"Art"}))
	c, err = ta.Store.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, []string{"Art"}, c.Categories)
}

func TestShowAttributes(t *testing.T) {
	ta := newTestApp(t)
	ta.addCandidate(t, appimage.Name, "krita", "Graphics", "Qt")
	inst := ta.markInstalled(t, appimage.Name, "krita", "5.2.0")

	tests := []struct {
		attribute string
		expected  string
	}{
		{"categories", "Graphics;Qt"},
		{"version", "5.2.0"},
		{"module", appimage.Name},
		{"source", "manual:_"},
		{"executable", inst.ExecutablePath},
		{"launcher", "no"},
		{"path", "no"},
		{"locked", "yes"},
		{"download-url", "owner/krita"},
	}
	for _, tt := range tests {
		t.Run(tt.attribute, func(t *testing.T) {
			require.NoError(t, ta.run(t, "show", "krita", tt.attribute))
			assert.Equal(t, tt.expected+"\n", ta.out.String())
		})
	}
}

func TestShowRequiresInstallation(t *testing.T) {
	ta := newTestApp(t)
	ta.addCandidate(t, gharchive.Name, "ripgrep")

	assert.ErrorIs(t, ta.run(t, "show", "ripgrep", "version"), errors.ErrNotInstalled)
	require.NoError(t, ta.run(t, "show", "ripgrep", "binary"))
	assert.Equal(t, "\n", ta.out.String())
}

func TestList(t *testing.T) {
	ta := newTestApp(t)

	require.NoError(t, ta.run(t, "list"))
	assert.Contains(t, ta.out.String(), "No candidates")
	require.NoError(t, ta.run(t, "list", "--installed"))
	assert.Contains(t, ta.out.String(), "No packages installed")

	ta.addCandidate(t, appimage.Name, "krita", "Graphics")
	ta.addCandidate(t, appimage.Name, "inkscape")
	ta.markInstalled(t, appimage.Name, "krita", "5.2.0")

	require.NoError(t, ta.run(t, "list"))
	out := ta.out.String()
	assert.Contains(t, out, "PACKAGE")
	assert.Contains(t, out, "inkscape")
	assert.Contains(t, out, "installed 5.2.0")

	require.NoError(t, ta.run(t, "list", "-i"))
	out = ta.out.String()
	assert.Contains(t, out, "krita")
	assert.Contains(t, out, "5.2.0")
	assert.NotContains(t, out, "inkscape")
}

func TestInstallRejectsInstalledPackage(t *testing.T) {
	ta := newTestApp(t)
	ta.addCandidate(t, appimage.Name, "krita")
	ta.markInstalled(t, appimage.Name, "krita", "5.2.0")

	assert.ErrorIs(t, ta.run(t, "install", "krita"), errors.ErrAlreadyInstalled)
	assert.ErrorIs(t, ta.run(t, "install", "gimp"), errors.ErrNoCandidate)
}

func TestRemoveAndUpgradeWithoutInstallations(t *testing.T) {
	ta := newTestApp(t)

	assert.ErrorIs(t, ta.run(t, "remove", "krita"), errors.ErrNotInstalled)
	require.NoError(t, ta.run(t, "upgrade"))
	assert.Empty(t, ta.out.String())
}

func TestExecPath(t *testing.T) {
	ta := newTestApp(t)
	ta.addCandidate(t, appimage.Name, "krita")
	inst := ta.markInstalled(t, appimage.Name, "krita", "5.2.0")

	require.NoError(t, ta.run(t, "execpath", "krita"))
	assert.Equal(t, inst.ExecutablePath+"\n", ta.out.String())
}

func TestForget(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	ta.addCandidate(t, appimage.Name, "krita")
	ta.addCandidate(t, appimage.Name, "inkscape")
	ta.markInstalled(t, appimage.Name, "krita", "5.2.0")

	require.NoError(t, ta.run(t, "forget", "inkscape"))
	_, err := ta.Store.Candidate(ctx, "inkscape")
	assert.ErrorIs(t, err, errors.ErrNotSourced)

	assert.ErrorIs(t, ta.run(t, "forget", "krita"), errors.ErrStillInstalled)
	assert.ErrorIs(t, ta.run(t, "forget", "inkscape"), errors.ErrNotSourced)
}

func TestSourceCommands(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "apps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- module: github-appimage
  name: Krita
  package_name: krita
  categories: [Graphics]
  download_url: KDE/krita
- module: github-archive
  name: ripgrep
  package_name: ripgrep
  download_url: BurntSushi/ripgrep
`), 0o644))

	require.NoError(t, ta.run(t, "source", "add", path))
	assert.Contains(t, ta.out.String(), "2 added")

	c, err := ta.Store.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, model.Source{Kind: model.SourceLocal, URL: path}, c.Source)

	require.NoError(t, ta.run(t, "source", "list"))
	assert.Equal(t, "local:"+path+"\n", ta.out.String())

	require.NoError(t, ta.run(t, "source", "update"))
	assert.Contains(t, ta.out.String(), "0 added")

	assert.ErrorIs(t, ta.run(t, "source", "add", path), errors.ErrSourceAlreadyExists)
	assert.ErrorIs(t, ta.run(t, "source", "add", "--remote", "ftp://example.com/x"), errors.ErrInvalidSource)

	require.NoError(t, ta.run(t, "source", "remove", path))
	_, err = ta.Store.Candidate(ctx, "krita")
	assert.ErrorIs(t, err, errors.ErrNotSourced)

	assert.ErrorIs(t, ta.run(t, "source", "update", path), errors.ErrSourceNotFound)
	assert.ErrorIs(t, ta.run(t, "source", "prune"), errors.ErrUsage)
}

func TestHelp(t *testing.T) {
	ta := newTestApp(t)

	require.NoError(t, ta.run(t, "help"))
	out := ta.out.String()
	for _, name := range []string{"install", "source", "add-github-appimage", "add-github-archive", "add-dotdeb", "config"} {
		assert.Contains(t, out, name)
	}

	require.NoError(t, ta.run(t, "help", "modify"))
	out = ta.out.String()
	assert.Contains(t, out, "Usage: modify <package> <attribute> ...")
	for _, name := range []string{"add-categories", "asset-filter", "binary", "deb-name"} {
		assert.Contains(t, out, name)
	}

	require.NoError(t, ta.run(t, "help", "add-dotdeb"))
	assert.Contains(t, ta.out.String(), "Usage: add-dotdeb")

	assert.ErrorIs(t, ta.run(t, "help", "nope"), errors.ErrUnknownCommand)
}

func TestSuggest(t *testing.T) {
	names := []string{"install", "remove", "upgrade", "list", "source", "install-github-appimage"}

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"subsequence", "upgrd", []string{"upgrade"}},
		{"upper case", "LST", []string{"list"}},
		{"prefix fallback", "sorcue", []string{"source"}},
		{"nothing", "zzz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, suggest(tt.input, names))
		})
	}

	assert.LessOrEqual(t, len(suggest("i", names)), MaxSuggestions)
}

func TestUpdateCategories(t *testing.T) {
	current := []string{"Graphics", "Qt"}

	assert.Equal(t, []string{"Graphics", "Qt", "KDE"}, updateCategories(current, []string{"Qt", "KDE"}, true))
	assert.Equal(t, []string{"Qt"}, updateCategories(current, []string{"Graphics", "Office"}, false))
	assert.Equal(t, []string{"Graphics", "Qt"}, current)
}

func TestParseState(t *testing.T) {
	for _, s := range []string{"on", "ON", "yes", "true", "1"} {
		on, err := parseState(s)
		require.NoError(t, err, s)
		assert.True(t, on, s)
	}
	for _, s := range []string{"off", "no", "false", "0"} {
		on, err := parseState(s)
		require.NoError(t, err, s)
		assert.False(t, on, s)
	}
	_, err := parseState("maybe")
	assert.ErrorIs(t, err, errors.ErrInvalidBoolValue)
}
