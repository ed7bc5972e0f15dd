package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	pkgerrors "github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
	"golang.org/x/sync/errgroup"
)

// DefaultUserAgent is sent when NewManager is given no user agent.
const DefaultUserAgent = "fluffpkg/1.0"

// HTTPManager downloads over HTTP(S). Files are verified against their
// checksum when one is known and batches are de-duplicated by URL.
type HTTPManager struct {
	client    *http.Client
	userAgent string
}

var _ Manager = (*HTTPManager)(nil)

// NewManager creates a new download manager with the given timeout and user agent.
func NewManager(timeout time.Duration, userAgent string) *HTTPManager {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPManager{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// FetchAll downloads items with at most opts.Concurrency transfers in
// flight. The first failure cancels the remaining downloads.
func (m *HTTPManager) FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = max(2, runtime.NumCPU()/2)
	}
	if err := prepareDir(opts.Dir); err != nil {
		return nil, err
	}

	byURL, order, err := groupByURL(items)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string]string, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, key := range order {
		indices := byURL[key]
		g.Go(func() error {
			p, err := m.fetchOne(gctx, items[indices[0]], opts)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, i := range indices {
				out[items[i].ID] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Fetch downloads a single item and returns the path to the downloaded file.
func (m *HTTPManager) Fetch(ctx context.Context, item Item, opts Options) (string, error) {
	if err := prepareDir(opts.Dir); err != nil {
		return "", err
	}
	return m.fetchOne(ctx, item, opts)
}

func prepareDir(dir string) error {
	if dir == "" || !filepath.IsAbs(dir) {
		return fmt.Errorf("download dir must be absolute: %s: %w", dir, pkgerrors.ErrInvalidPath)
	}
	if err := os.MkdirAll(dir, fsutil.DirModePrivate); err != nil {
		return pkgerrors.Wrap(err, "could not create download dir")
	}
	return nil
}

// groupByURL returns item indices per URL and the URLs in first-seen order.
func groupByURL(items []Item) (map[string][]int, []string, error) {
	byURL := make(map[string][]int)
	var order []string
	for i, it := range items {
		if it.URL == nil {
			return nil, nil, fmt.Errorf("item %d has nil URL: %w", i, pkgerrors.ErrDownloadFailed)
		}
		key := it.URL.String()
		if _, ok := byURL[key]; !ok {
			order = append(order, key)
		}
		byURL[key] = append(byURL[key], i)
	}
	return byURL, order, nil
}

func (m *HTTPManager) fetchOne(ctx context.Context, item Item, opts Options) (string, error) {
	if item.URL == nil {
		return "", fmt.Errorf("nil URL: %w", pkgerrors.ErrDownloadFailed)
	}
	target := filepath.Join(opts.Dir, selectFilename(item))
	if item.Checksum != "" && cachedMatches(target, item.Checksum) {
		logger.Debug("Reusing cached download", logger.Fields{"url": item.URL.String(), "path": target})
		return target, nil
	}

	logger.Debug("Downloading", logger.Fields{"url": item.URL.String(), "path": target})
	resp, err := m.doRequest(ctx, item)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := store(resp.Body, target, item.Checksum); err != nil {
		return "", fmt.Errorf("%s: %w", item.URL, err)
	}
	return target, nil
}

// store writes body next to target, verifies it against checksum when one
// is given and renames it into place. Nothing is left behind on failure.
func store(body io.Reader, target, checksum string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".dl-*.tmp")
	if err != nil {
		return pkgerrors.Wrap(err, "could not create temp file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, hash), body)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return pkgerrors.Wrap(err, "could not write file")
	}

	if checksum != "" && hex.EncodeToString(hash.Sum(nil)) != normalizeHex(checksum) {
		return fmt.Errorf("checksum mismatch: %w", pkgerrors.ErrFileHashMismatch)
	}
	if err = fsutil.Move(tmp.Name(), target); err != nil {
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	return nil
}

// selectFilename prefers the explicit name, then the last URL path segment
// prefixed by a short URL hash, then the checksum.
func selectFilename(item Item) string {
	if item.Filename != "" {
		return filepath.Base(item.Filename)
	}
	h := sha256.Sum256([]byte(item.URL.String()))
	prefix := hex.EncodeToString(h[:])[:12]
	if base := path.Base(item.URL.Path); base != "" && base != "/" && base != "." {
		return prefix + "-" + base
	}
	if item.Checksum != "" {
		return normalizeHex(item.Checksum)
	}
	return hex.EncodeToString(h[:])
}

// cachedMatches reports whether path already holds a file with the given
// SHA-256.
func cachedMatches(path, checksum string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return false
	}
	return hex.EncodeToString(hash.Sum(nil)) == normalizeHex(checksum)
}

func (m *HTTPManager) doRequest(ctx context.Context, item Item) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL.String(), http.NoBody)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", m.userAgent)
	if item.Auth != nil {
		if err := item.Auth.Apply(req); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to apply authentication")
		}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", item.URL, pkgerrors.ErrDownloadFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status code %d: %w", item.URL, resp.StatusCode, pkgerrors.ErrDownloadFailed)
	}
	return resp, nil
}

func normalizeHex(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
