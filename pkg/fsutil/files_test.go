package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFile(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "source.AppImage")
	dst := filepath.Join(tempDir, "nested", "target.AppImage")

	require.NoError(t, os.WriteFile(src, []byte("ELF"), FileModeExec))
	require.NoError(t, Move(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "ELF", string(content))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveDirectory(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "extracted")
	dst := filepath.Join(tempDir, "installed", "ripgrep")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "doc"), DirModeDefault))
	require.NoError(t, os.WriteFile(filepath.Join(src, "rg"), []byte("bin"), FileModeExec))
	require.NoError(t, os.WriteFile(filepath.Join(src, "doc", "rg.1"), []byte("man"), FileModeDefault))

	require.NoError(t, Move(src, dst))
	assert.FileExists(t, filepath.Join(dst, "rg"))
	assert.FileExists(t, filepath.Join(dst, "doc", "rg.1"))
	assert.NoDirExists(t, src)
}

func TestMoveErrors(t *testing.T) {
	assert.Error(t, Move("", "/tmp/x"))
	assert.Error(t, Move("/tmp/x", ""))
	assert.Error(t, Move(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "dst")))
}

func TestIsCrossFilesystemError(t *testing.T) {
	linkErr := &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}
	assert.True(t, isCrossFilesystemError(linkErr))
	assert.True(t, isCrossFilesystemError(fmt.Errorf("wrapped: %w", linkErr)))
	assert.False(t, isCrossFilesystemError(&os.LinkError{Op: "rename", Err: syscall.ENOENT}))
	assert.False(t, isCrossFilesystemError(nil))
}

func TestMoveFileFallback(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "a")
	dst := filepath.Join(tempDir, "b")
	require.NoError(t, os.WriteFile(src, []byte("data"), FileModeExec))

	require.NoError(t, moveFile(src, dst))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FileModeExec), info.Mode().Perm())
	assert.NoFileExists(t, src)
}

func TestCopyPreservesMode(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "tool")
	dst := filepath.Join(tempDir, "tool-copy")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), FileModeExec))

	require.NoError(t, Copy(src, dst))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FileModeExec), info.Mode().Perm())
	assert.FileExists(t, src)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applications", "fluffpkg-krita.desktop")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), FileModeDefault))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), FileModeDefault))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReplaceSymlink(t *testing.T) {
	tempDir := t.TempDir()
	v1 := filepath.Join(tempDir, "krita-1.AppImage")
	v2 := filepath.Join(tempDir, "krita-2.AppImage")
	link := filepath.Join(tempDir, "bin", "krita")
	require.NoError(t, os.WriteFile(v1, nil, FileModeExec))
	require.NoError(t, os.WriteFile(v2, nil, FileModeExec))

	require.NoError(t, ReplaceSymlink(v1, link))
	require.NoError(t, ReplaceSymlink(v2, link))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, v2, target)

	assert.ErrorIs(t, ReplaceSymlink(v1, v2), os.ErrExist)

	require.NoError(t, RemoveSymlink(link))
	require.NoError(t, RemoveSymlink(link))
	assert.ErrorIs(t, RemoveSymlink(v1), os.ErrExist)
}

func TestDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")

	tests := []struct {
		name     string
		fn       func() (string, error)
		expected string
	}{
		{"data", GetDataDir, filepath.Join(home, ".local", "share", AppName)},
		{"cache", GetCacheDir, filepath.Join(home, "cache", AppName)},
		{"state", GetStateDir, filepath.Join(home, ".local", "state", AppName)},
		{"config", GetConfigDir, filepath.Join(home, ".config", AppName)},
		{"hooks", GetHooksDir, filepath.Join(home, ".config", AppName, "hooks")},
		{"applications", GetApplicationsDir, filepath.Join(home, ".local", "share", "applications")},
		{"bin", GetBinDir, filepath.Join(home, ".local", "bin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dir)
		})
	}

	require.NoError(t, EnsureFileDir(filepath.Join(home, "a", "b", "file")))
	assert.DirExists(t, filepath.Join(home, "a", "b"))
}
