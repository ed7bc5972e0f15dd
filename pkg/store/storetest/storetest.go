// Package storetest holds the behaviour every store.Store engine must share.
package storetest

import (
	"context"
	"testing"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store.
type Opener func(t *testing.T) store.Store

func cura() *model.Candidate {
	return &model.Candidate{
		Module:      "github-appimage",
		Name:        "Cura Slicer",
		PackageName: "cura-slicer",
		Categories:  []string{"Graphics", "3DGraphics"},
		Source:      model.ManualSource,
		DownloadURL: "Ultimaker/Cura",
		ModuleData:  map[string]string{"asset_filter": "X64"},
	}
}

func curaInstallation() *model.Installation {
	return &model.Installation{
		Name:           "Cura Slicer",
		Version:        "5.7.0",
		PackageName:    "cura-slicer",
		Launcher:       true,
		Module:         "github-appimage",
		Source:         model.ManualSource,
		ExecutablePath: "/home/me/.local/share/fluffpkg/cura-slicer/cura-slicer-5.7.0.AppImage",
	}
}

// Run exercises a store engine.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("AddCandidateThenQuery", func(t *testing.T) {
		s := open(t)
		c := cura()
		require.NoError(t, s.AddCandidate(ctx, c, false))

		res, err := store.Query(ctx, s, c.PackageName)
		require.NoError(t, err)
		assert.Equal(t, model.QueryFound, res.Kind)
		assert.Equal(t, []*model.Candidate{c}, res.Candidates)
	})

	t.Run("DuplicateCandidate", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.AddCandidate(ctx, cura(), false))

		dup := cura()
		dup.Name = "Another Cura"
		assert.ErrorIs(t, s.AddCandidate(ctx, dup, false), errors.ErrAlreadySourced)

		require.NoError(t, s.AddCandidate(ctx, dup, true))
		got, err := s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, "Cura Slicer", got.Name)

		all, err := s.Candidates(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("CandidateMutations", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.AddCandidate(ctx, cura(), false))

		require.NoError(t, s.UpdateCategories(ctx, "cura-slicer", []string{"Office"}))
		require.NoError(t, s.SetModuleData(ctx, "cura-slicer", "asset_filter", "arm64"))
		require.NoError(t, s.SetModuleData(ctx, "cura-slicer", "binary", "cura"))

		got, err := s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, []string{"Office"}, got.Categories)
		assert.Equal(t, map[string]string{"asset_filter": "arm64", "binary": "cura"}, got.ModuleData)

		require.NoError(t, s.SetModuleData(ctx, "cura-slicer", "binary", ""))
		got, err = s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, "", got.Data("binary"))

		changed := got.Clone()
		changed.DownloadURL = "Ultimaker/Cura-Beta"
		require.NoError(t, s.UpdateCandidate(ctx, changed))
		got, err = s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, "Ultimaker/Cura-Beta", got.DownloadURL)

		assert.ErrorIs(t, s.UpdateCategories(ctx, "missing", nil), errors.ErrNotSourced)
		assert.ErrorIs(t, s.SetModuleData(ctx, "missing", "k", "v"), errors.ErrNotSourced)
		assert.ErrorIs(t, s.UpdateCandidate(ctx, &model.Candidate{PackageName: "missing"}), errors.ErrNotSourced)
		_, err = s.Candidate(ctx, "missing")
		assert.ErrorIs(t, err, errors.ErrNotSourced)
	})

	t.Run("ImportedCategories", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.AddCandidate(ctx, cura(), false))
		got, err := s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Nil(t, got.ImportedCategories)

		got.ImportedCategories = []string{}
		require.NoError(t, s.UpdateCandidate(ctx, got))
		got, err = s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.NotNil(t, got.ImportedCategories)
		assert.Empty(t, got.ImportedCategories)

		got.ImportedCategories = []string{"Graphics"}
		require.NoError(t, s.UpdateCandidate(ctx, got))
		require.NoError(t, s.UpdateCategories(ctx, "cura-slicer", []string{"Office"}))
		got, err = s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, []string{"Graphics"}, got.ImportedCategories)
		assert.Equal(t, []string{"Office"}, got.Categories)
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.AddCandidate(ctx, cura(), false))

		got, err := s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		got.Categories[0] = "Changed"

		again, err := s.Candidate(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, "Graphics", again.Categories[0])
	})

	t.Run("RemoveCandidate", func(t *testing.T) {
		s := open(t)
		assert.ErrorIs(t, s.RemoveCandidate(ctx, "cura-slicer"), errors.ErrNotSourced)

		require.NoError(t, s.AddCandidate(ctx, cura(), false))
		require.NoError(t, s.MarkInstalled(ctx, curaInstallation()))
		assert.ErrorIs(t, s.RemoveCandidate(ctx, "cura-slicer"), errors.ErrStillInstalled)

		require.NoError(t, s.UnmarkInstalled(ctx, "cura-slicer"))
		require.NoError(t, s.RemoveCandidate(ctx, "cura-slicer"))
		assert.ErrorIs(t, s.RemoveCandidate(ctx, "cura-slicer"), errors.ErrNotSourced)
	})

	t.Run("MarkInstalledTwice", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.MarkInstalled(ctx, curaInstallation()))

		second := curaInstallation()
		second.Version = "5.8.0"
		assert.ErrorIs(t, s.MarkInstalled(ctx, second), errors.ErrAlreadyInstalled)

		all, err := s.Installations(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "5.7.0", all[0].Version)
		assert.False(t, all[0].InstalledAt.IsZero())
	})

	t.Run("InstallationRoundTrip", func(t *testing.T) {
		s := open(t)
		inst := curaInstallation()
		inst.VersionLocked = true
		inst.Path = true
		require.NoError(t, s.MarkInstalled(ctx, inst))

		got, err := s.Installation(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.Equal(t, inst.Version, got.Version)
		assert.Equal(t, inst.ExecutablePath, got.ExecutablePath)
		assert.Equal(t, inst.Source, got.Source)
		assert.True(t, got.VersionLocked)
		assert.True(t, got.Launcher)
		assert.True(t, got.Path)

		found, err := store.FindInstallation(ctx, s, "CURA SLICER")
		require.NoError(t, err)
		assert.Equal(t, "cura-slicer", found.PackageName)

		_, err = store.FindInstallation(ctx, s, "krita")
		assert.ErrorIs(t, err, errors.ErrNotInstalled)
	})

	t.Run("MarkAttribute", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.MarkInstalled(ctx, curaInstallation()))

		require.NoError(t, s.MarkAttribute(ctx, "cura-slicer", model.AttributeLauncher, false))
		require.NoError(t, s.MarkAttribute(ctx, "cura-slicer", model.AttributePath, true))
		got, err := s.Installation(ctx, "cura-slicer")
		require.NoError(t, err)
		assert.False(t, got.Launcher)
		assert.True(t, got.Path)

		assert.ErrorIs(t, s.MarkAttribute(ctx, "cura-slicer", "version", true), errors.ErrAttributeNotAllowed)
		assert.ErrorIs(t, s.MarkAttribute(ctx, "missing", model.AttributePath, true), errors.ErrNotInstalled)
	})

	t.Run("UnmarkInstalled", func(t *testing.T) {
		s := open(t)
		assert.ErrorIs(t, s.UnmarkInstalled(ctx, "cura-slicer"), errors.ErrNotInstalled)

		require.NoError(t, s.MarkInstalled(ctx, curaInstallation()))
		require.NoError(t, s.UnmarkInstalled(ctx, "cura-slicer"))
		installed, err := store.IsInstalled(ctx, s, "cura-slicer")
		require.NoError(t, err)
		assert.False(t, installed)
	})

	t.Run("Sources", func(t *testing.T) {
		s := open(t)
		local := model.Source{Kind: model.SourceLocal, URL: "/srv/fluffpkg/source.json"}
		remote := model.Source{Kind: model.SourceRemote, URL: "https://example.com/source.yaml"}

		require.NoError(t, s.AddSource(ctx, local))
		require.NoError(t, s.AddSource(ctx, remote))
		assert.ErrorIs(t, s.AddSource(ctx, local), errors.ErrSourceAlreadyExists)

		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.Source{local, remote}, sources)

		require.NoError(t, s.RemoveSource(ctx, local))
		assert.ErrorIs(t, s.RemoveSource(ctx, local), errors.ErrSourceNotFound)

		sources, err = s.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.Source{remote}, sources)
	})
}
