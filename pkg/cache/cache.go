// Package cache reports on and cleans the fluffpkg cache directory: downloaded
// package files and fetched remote source files. Nothing in it is needed once
// an install or source import has finished.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
)

// Sub-directories of the cache directory.
const (
	DownloadsDir = "downloads"
	SourcesDir   = "sources"
)

// CleanOptions specifies what to clean from the cache. No selection cleans
// everything.
type CleanOptions struct {
	Downloads bool
	Sources   bool
}

// CleanResult contains the number of bytes freed per area.
type CleanResult struct {
	TotalFreed     int64
	DownloadsFreed int64
	SourcesFreed   int64
}

// Info describes the cache contents.
type Info struct {
	Directory     string
	TotalSize     int64
	DownloadSize  int64
	DownloadFiles int
	SourceSize    int64
	SourceFiles   int
}

// Manager operates on one cache directory.
type Manager struct {
	directory string
}

// NewManager creates a cache manager for directory.
func NewManager(directory string) *Manager {
	return &Manager{directory: directory}
}

// Directory returns the cache directory path.
func (m *Manager) Directory() string {
	return m.directory
}

// Clean removes cached files according to options.
func (m *Manager) Clean(options CleanOptions) (*CleanResult, error) {
	if m.directory == "" {
		return nil, fmt.Errorf("cache directory is not set: %w", errors.ErrInvalidPath)
	}
	if !options.Downloads && !options.Sources {
		options.Downloads, options.Sources = true, true
	}

	result := &CleanResult{}
	if options.Downloads {
		size, err := cleanDirectory(filepath.Join(m.directory, DownloadsDir))
		if err != nil {
			return nil, errors.Wrap(err, "failed to clean downloads")
		}
		result.DownloadsFreed = size
	}
	if options.Sources {
		size, err := cleanDirectory(filepath.Join(m.directory, SourcesDir))
		if err != nil {
			return nil, errors.Wrap(err, "failed to clean source files")
		}
		result.SourcesFreed = size
	}
	result.TotalFreed = result.DownloadsFreed + result.SourcesFreed
	return result, nil
}

// Info returns the size of the cache areas.
func (m *Manager) Info() (*Info, error) {
	info := &Info{Directory: m.directory}

	var err error
	info.DownloadSize, info.DownloadFiles, err = dirSizeAndFiles(filepath.Join(m.directory, DownloadsDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to inspect downloads")
	}
	info.SourceSize, info.SourceFiles, err = dirSizeAndFiles(filepath.Join(m.directory, SourcesDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to inspect source files")
	}
	info.TotalSize = info.DownloadSize + info.SourceSize
	return info, nil
}

// cleanDirectory empties dir and returns the bytes freed. A missing
// directory frees nothing.
func cleanDirectory(dir string) (int64, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	size, _, err := dirSizeAndFiles(dir)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, errors.Wrapf(err, "failed to remove directory %s", dir)
	}
	if err := os.MkdirAll(dir, fsutil.DirModePrivate); err != nil {
		return size, errors.Wrapf(err, "failed to recreate directory %s", dir)
	}
	return size, nil
}

func dirSizeAndFiles(dir string) (size int64, count int, err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		return 0, 0, nil
	}
	err = filepath.WalkDir(dir, func(_ string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		count++
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "error walking directory %s", dir)
	}
	return size, count, err
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
