// Package archive extracts release archives (tar, zip and their compressed
// variants) into installation directories.
package archive

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
	"github.com/mholt/archives"
)

// Manager handles archive extraction and creation.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// IsArchive reports whether the file at path is an archive format that can be
// extracted. Bare executables and compressed single files are not archives.
func (am *Manager) IsArchive(ctx context.Context, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	format, _, err := archives.Identify(ctx, filepath.Base(path), f)
	if stderrors.Is(err, archives.NoMatch) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to identify %s: %w", path, err)
	}
	_, ok := format.(archives.Extractor)
	return ok, nil
}

// ExtractAll extracts every entry of archivePath below destDir. Entries that
// would land outside destDir are rejected.
func (am *Manager) ExtractAll(ctx context.Context, archivePath, destDir string) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := fsutil.EnsureDir(destDir); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return am.extractEntry(fsys, path, destDir, d)
	})
}

// Create writes sourceDir as a gzip-compressed tarball at archivePath. The
// backends only read archives; this builds release fixtures for their tests.
func (am *Manager) Create(ctx context.Context, sourceDir, archivePath string) error {
	absolutePath, err := filepath.Abs(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for source directory: %w", err)
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		absolutePath + string(os.PathSeparator): "",
	})
	if err != nil {
		return fmt.Errorf("failed to read files from disk: %w", err)
	}

	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", archivePath, err)
	}
	defer func() { _ = file.Close() }()

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	if err := format.Archive(ctx, file, archiveFiles); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	return file.Sync()
}

// StripSingleRoot returns the only directory inside dir when dir contains
// nothing else, which is how most release tarballs are laid out.
// Otherwise it returns dir.
func StripSingleRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

// FindExecutable walks dir for a regular file named name with an executable
// bit set. When name is empty the first executable found in a shallowest
// directory is returned. The result is relative to dir.
func FindExecutable(dir, name string) (string, error) {
	var (
		best      string
		bestDepth = -1
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if name != "" && d.Name() != name {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		depth := strings.Count(rel, string(os.PathSeparator))
		if bestDepth == -1 || depth < bestDepth {
			best, bestDepth = rel, depth
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		if name == "" {
			return "", fmt.Errorf("no executable found in %s: %w", dir, pkgerrors.ErrInvalidPath)
		}
		return "", fmt.Errorf("executable %q not found in %s: %w", name, dir, pkgerrors.ErrInvalidPath)
	}
	return best, nil
}

func (am *Manager) extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	if path == "." {
		return nil
	}

	targetPath, err := safeJoin(destDir, path)
	if err != nil {
		return err
	}
	if d.IsDir() {
		return fsutil.EnsureDir(targetPath)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info for %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return am.writeSymlink(fsys, path, targetPath)
	}
	return am.writeRegularFile(fsys, path, targetPath, info)
}

// safeJoin joins an archive entry name onto destDir and rejects names that
// escape it.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination: %w", name, pkgerrors.ErrInvalidPath)
	}
	return target, nil
}

func (am *Manager) writeSymlink(fsys fs.FS, path, targetPath string) error {
	link, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", path, err)
	}
	defer func() { _ = link.Close() }()

	target, err := io.ReadAll(link)
	if err != nil {
		return fmt.Errorf("failed to read symlink target %s: %w", path, err)
	}
	if filepath.IsAbs(string(target)) {
		return fmt.Errorf("symlink %s points to absolute path: %w", path, pkgerrors.ErrInvalidPath)
	}
	if err := fsutil.EnsureFileDir(targetPath); err != nil {
		return fmt.Errorf("failed to create parent directory for symlink %s: %w", path, err)
	}
	_ = os.Remove(targetPath)
	return os.Symlink(string(target), targetPath)
}

func (am *Manager) writeRegularFile(fsys fs.FS, path, targetPath string, info fs.FileInfo) error {
	src, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	if err := fsutil.EnsureFileDir(targetPath); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", path, err)
	}

	dst, err := fsutil.CreateFilePerm(targetPath, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", targetPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to copy file %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if err := os.Chmod(targetPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set permissions for %s: %w", targetPath, err)
	}
	return os.Chtimes(targetPath, info.ModTime(), info.ModTime())
}
