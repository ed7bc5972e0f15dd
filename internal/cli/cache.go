package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/cache"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the download cache",
		Long:  "Clean and inspect downloaded package files and fetched source files",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var options cache.CleanOptions

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean the cache",
		Long:  "Remove cached files to free up disk space. Without flags everything is removed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClean(cmd.OutOrStdout(), options)
		},
	}

	cmd.Flags().BoolVar(&options.Downloads, "downloads", false, "Clean only downloaded package files")
	cmd.Flags().BoolVar(&options.Sources, "sources", false, "Clean only fetched source files")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the size of the cached downloads and source files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheInfo(cmd.OutOrStdout())
		},
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := cacheManager()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), manager.Directory())
			return nil
		},
	}
}

func cacheManager() (*cache.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cache.NewManager(cfg.Settings.CacheDir), nil
}

func runCacheClean(w io.Writer, options cache.CleanOptions) error {
	manager, err := cacheManager()
	if err != nil {
		return err
	}

	result, err := manager.Clean(options)
	if err != nil {
		return fmt.Errorf("failed to clean cache: %w", err)
	}

	logger.Debug("Cache cleaned", logger.Fields{
		"downloads": result.DownloadsFreed,
		"sources":   result.SourcesFreed,
	})
	_, _ = fmt.Fprintf(w, "Freed %s\n", cache.FormatBytes(result.TotalFreed))
	return nil
}

func runCacheInfo(w io.Writer) error {
	manager, err := cacheManager()
	if err != nil {
		return err
	}

	info, err := manager.Info()
	if err != nil {
		return fmt.Errorf("failed to get cache info: %w", err)
	}

	rows := [][]string{
		{cache.DownloadsDir, cache.FormatBytes(info.DownloadSize), strconv.Itoa(info.DownloadFiles)},
		{cache.SourcesDir, cache.FormatBytes(info.SourceSize), strconv.Itoa(info.SourceFiles)},
		{"total", cache.FormatBytes(info.TotalSize), strconv.Itoa(info.DownloadFiles + info.SourceFiles)},
	}
	_, _ = fmt.Fprintf(w, "Cache directory: %s\n", info.Directory)
	_, err = fmt.Fprintln(w, renderTable([]string{"AREA", "SIZE", "FILES"}, rows))
	return err
}
