package download

//go:generate mockgen -destination=./mocks/download.go . Manager

import (
	"context"
	"net/url"

	"github.com/glorpus-work/fluffpkg/pkg/auth"
)

// Manager fetches remote files (source lists, AppImages, release archives,
// .deb packages) into a local directory.
type Manager interface {
	// FetchAll downloads all items and returns a map from Item.ID to the
	// absolute local path. Items sharing a URL are downloaded once.
	FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error)

	// Fetch downloads a single item into opts.Dir and returns its absolute path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)
}

// Item represents one remote resource to download.
type Item struct {
	ID       string             // unique within a batch
	URL      *url.URL           // source URL
	Checksum string             // optional hex-encoded SHA-256, verified when set
	Filename string             // optional file name, derived when empty
	Auth     auth.Authenticator // optional credentials applied to the request
}

// Options control the behavior of the download manager.
type Options struct {
	Dir         string // destination directory, must be absolute
	Concurrency int    // parallel downloads for FetchAll, defaulted when <= 0
}
