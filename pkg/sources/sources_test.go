package sources

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/fluffpkg/pkg/download"
	mock_download "github.com/glorpus-work/fluffpkg/pkg/download/mocks"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"github.com/glorpus-work/fluffpkg/pkg/store/jsonstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const appsYAML = `
- module: appimage
  name: Cura Slicer
  package_name: cura-slicer
  categories: [Graphics, "3DGraphics"]
  download_url: Ultimaker/Cura
- module: appimage
  name: Krita
  package_name: krita
  download_url: KDE/krita
  module_data:
    asset_filter: x86_64
`

const appsJSON = `[
  {"module": "gharchive", "name": "ripgrep", "package_name": "ripgrep", "download_url": "BurntSushi/ripgrep",
   "module_data": {"binary": "rg"}}
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := jsonstore.Open(filepath.Join(t.TempDir(), jsonstore.DefaultFileName))
	require.NoError(t, err)
	return st
}

func TestParse(t *testing.T) {
	src := model.Source{Kind: model.SourceLocal, URL: "/etc/apps.yaml"}

	candidates, err := Parse([]byte(appsYAML), src)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, &model.Candidate{
		Module:      "appimage",
		Name:        "Cura Slicer",
		PackageName: "cura-slicer",
		Categories:  []string{"Graphics", "3DGraphics"},
		Source:      src,
		DownloadURL: "Ultimaker/Cura",
	}, candidates[0])
	assert.Equal(t, "x86_64", candidates[1].Data("asset_filter"))

	candidates, err = Parse([]byte(appsJSON), src)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "rg", candidates[0].Data("binary"))
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
	}{
		{name: "not a list", content: `module: appimage`},
		{name: "missing package name", content: `[{"module": "appimage", "name": "Krita"}]`, path: "/0"},
		{name: "unknown field", content: `[{"module": "a", "name": "b", "package_name": "c", "version": "1"}]`, path: "/0"},
		{name: "space in package name", content: `[{"module": "a", "name": "b", "package_name": "c d"}]`, path: "/0/package_name"},
		{name: "non-string module data", content: `[{"module": "a", "name": "b", "package_name": "c", "module_data": {"x": 1}}]`, path: "/0/module_data/x"},
		{name: "malformed", content: `[{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), model.ManualSource)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidSource)

			var ve *ValidationError
			if tt.path != "" {
				require.True(t, stderrors.As(err, &ve))
				paths := make([]string, len(ve.Issues))
				for i, issue := range ve.Issues {
					paths[i] = issue.Path
				}
				assert.Contains(t, paths, tt.path)
			}
		})
	}

	_, err := Parse([]byte(`[{"module": "a", "name": "b", "package_name": "c"}, {"module": "a", "name": "B", "package_name": "c"}]`), model.ManualSource)
	assert.ErrorIs(t, err, errors.ErrInvalidSource)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource("https://example.com/apps.yaml", true)
	require.NoError(t, err)
	assert.Equal(t, model.Source{Kind: model.SourceRemote, URL: "https://example.com/apps.yaml"}, src)

	_, err = NewSource("ftp://example.com/apps.yaml", true)
	assert.ErrorIs(t, err, errors.ErrInvalidSource)
	_, err = NewSource("", false)
	assert.ErrorIs(t, err, errors.ErrInvalidSource)

	src, err = NewSource("apps.yaml", false)
	require.NoError(t, err)
	assert.Equal(t, model.SourceLocal, src.Kind)
	assert.True(t, filepath.IsAbs(src.URL))
}

func TestAddUpdateRemoveLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := newStore(t)
	im := &Importer{Store: st}

	path := writeFile(t, dir, "apps.yaml", appsYAML)
	src, err := NewSource(path, false)
	require.NoError(t, err)

	report, err := im.Add(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"cura-slicer", "krita"}, report.Added)

	_, err = im.Add(ctx, src)
	assert.ErrorIs(t, err, errors.ErrSourceAlreadyExists)

	result, err := store.Query(ctx, st, "cura")
	require.NoError(t, err)
	assert.Equal(t, model.QueryStrongRecommend, result.Kind)

	// krita vanishes, cura changes, a new package appears
	writeFile(t, dir, "apps.yaml", `
- module: appimage
  name: Cura
  package_name: cura-slicer
- module: appimage
  name: Inkscape
  package_name: inkscape
`)
	report, err = im.Update(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"inkscape"}, report.Added)
	assert.Equal(t, []string{"cura-slicer"}, report.Updated)
	assert.Equal(t, []string{"krita"}, report.Removed)

	cura, err := st.Candidate(ctx, "cura-slicer")
	require.NoError(t, err)
	assert.Equal(t, "Cura", cura.Name)

	// installed candidates are kept and block removal of the source
	require.NoError(t, st.MarkInstalled(ctx, &model.Installation{PackageName: "inkscape", Name: "Inkscape", Module: "appimage", Source: src}))
	assert.ErrorIs(t, im.Remove(ctx, src), errors.ErrStillInstalled)

	writeFile(t, dir, "apps.yaml", `[]`)
	report, err = im.Update(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"cura-slicer"}, report.Removed)
	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0].Reason, errors.ErrStillInstalled)

	require.NoError(t, st.UnmarkInstalled(ctx, "inkscape"))
	require.NoError(t, im.Remove(ctx, src))
	srcs, err := st.Sources(ctx)
	require.NoError(t, err)
	assert.Empty(t, srcs)
	all, err := st.Candidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = im.Update(ctx, src)
	assert.ErrorIs(t, err, errors.ErrSourceNotFound)
}

func TestUpdateKeepsUserEdits(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := newStore(t)
	im := &Importer{Store: st}

	path := writeFile(t, dir, "apps.yaml", appsYAML)
	src, err := NewSource(path, false)
	require.NoError(t, err)
	_, err = im.Add(ctx, src)
	require.NoError(t, err)

	require.NoError(t, st.UpdateCategories(ctx, "krita", []string{"Art"}))
	require.NoError(t, st.SetModuleData(ctx, "krita", "binary", "krita-bin"))
	require.NoError(t, st.UpdateCategories(ctx, "cura-slicer", []string{"3DGraphics"}))

	// the file now lists a category for krita and drops its asset filter
	writeFile(t, dir, "apps.yaml", `
- module: appimage
  name: Cura Slicer
  package_name: cura-slicer
  categories: [Graphics, "3DGraphics", Engineering]
  download_url: Ultimaker/Cura
- module: appimage
  name: Krita
  package_name: krita
  categories: [Graphics]
  download_url: KDE/krita
`)
	_, err = im.Update(ctx, src)
	require.NoError(t, err)

	krita, err := st.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.Equal(t, []string{"Graphics", "Art"}, krita.Categories)
	assert.Equal(t, map[string]string{"binary": "krita-bin", "asset_filter": "x86_64"}, krita.ModuleData)

	cura, err := st.Candidate(ctx, "cura-slicer")
	require.NoError(t, err)
	assert.Equal(t, []string{"3DGraphics", "Engineering"}, cura.Categories, "removed category stays removed")

	// a second update without edits is stable
	_, err = im.Update(ctx, src)
	require.NoError(t, err)
	cura, err = st.Candidate(ctx, "cura-slicer")
	require.NoError(t, err)
	assert.Equal(t, []string{"3DGraphics", "Engineering"}, cura.Categories)
	assert.Equal(t, []string{"Graphics", "3DGraphics", "Engineering"}, cura.ImportedCategories)
}

func TestAddSkipsCandidatesOfOtherSources(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := newStore(t)
	im := &Importer{Store: st}

	require.NoError(t, st.AddCandidate(ctx, &model.Candidate{Module: "appimage", Name: "Krita", PackageName: "krita", Source: model.ManualSource}, false))

	src, err := NewSource(writeFile(t, dir, "apps.yaml", appsYAML), false)
	require.NoError(t, err)
	report, err := im.Add(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"cura-slicer"}, report.Added)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "krita", report.Skipped[0].Package)
	assert.ErrorIs(t, report.Skipped[0].Reason, errors.ErrAlreadySourced)

	krita, err := st.Candidate(ctx, "krita")
	require.NoError(t, err)
	assert.True(t, krita.Source.IsManual())
}

func TestAddInvalidFileRecordsNothing(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	im := &Importer{Store: st}

	src, err := NewSource(writeFile(t, t.TempDir(), "bad.json", `{"not": "a list"}`), false)
	require.NoError(t, err)
	_, err = im.Add(ctx, src)
	assert.ErrorIs(t, err, errors.ErrInvalidSource)

	srcs, err := st.Sources(ctx)
	require.NoError(t, err)
	assert.Empty(t, srcs)

	_, err = im.Add(ctx, model.ManualSource)
	assert.ErrorIs(t, err, errors.ErrInvalidSource)
}

func TestRemoteSources(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	dl := mock_download.NewMockManager(ctrl)
	cache := t.TempDir()
	st := newStore(t)
	im := &Importer{Store: st, Downloader: dl, CacheDir: cache, Concurrency: 2}

	remotePath := writeFile(t, cache, "remote.json", appsJSON)
	src, err := NewSource("https://example.com/apps.json", true)
	require.NoError(t, err)

	dl.EXPECT().
		Fetch(gomock.Any(), gomock.Any(), download.Options{Dir: cache}).
		DoAndReturn(func(_ context.Context, item download.Item, _ download.Options) (string, error) {
			assert.Equal(t, src.String(), item.ID)
			assert.Equal(t, src.URL, item.URL.String())
			return remotePath, nil
		})
	report, err := im.Add(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"ripgrep"}, report.Added)

	localSrc, err := NewSource(writeFile(t, t.TempDir(), "apps.yaml", appsYAML), false)
	require.NoError(t, err)
	_, err = im.Add(ctx, localSrc)
	require.NoError(t, err)

	dl.EXPECT().
		FetchAll(gomock.Any(), gomock.Len(1), download.Options{Dir: cache, Concurrency: 2}).
		Return(map[string]string{src.String(): remotePath}, nil)
	reports, err := im.UpdateAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{"ripgrep"}, reports[0].Updated)
	assert.Equal(t, []string{"cura-slicer", "krita"}, reports[1].Updated)

	resolved, err := im.Resolve(ctx, "https://example.com/apps.json")
	require.NoError(t, err)
	assert.Equal(t, src, resolved)
	resolved, err = im.Resolve(ctx, localSrc.String())
	require.NoError(t, err)
	assert.Equal(t, localSrc, resolved)
	_, err = im.Resolve(ctx, "https://example.com/other.json")
	assert.ErrorIs(t, err, errors.ErrSourceNotFound)
}

func TestRemoteFetchFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	dl := mock_download.NewMockManager(ctrl)
	im := &Importer{Store: newStore(t), Downloader: dl, CacheDir: t.TempDir()}

	src, err := NewSource("https://example.com/apps.json", true)
	require.NoError(t, err)
	dl.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.ErrDownloadFailed)

	_, err = im.Add(context.Background(), src)
	assert.ErrorIs(t, err, errors.ErrDownloadFailed)
}
