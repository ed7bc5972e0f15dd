package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/auth"
	pkgerrors "github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name       string
		timeout    time.Duration
		userAgent  string
		expectedUA string
	}{
		{name: "default user agent", timeout: time.Second, expectedUA: DefaultUserAgent},
		{name: "custom user agent", timeout: 2 * time.Second, userAgent: "test-agent/1.0", expectedUA: "test-agent/1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.timeout, tt.userAgent)
			require.NotNil(t, m)
			assert.Equal(t, tt.timeout, m.client.Timeout)
			assert.Equal(t, tt.expectedUA, m.userAgent)
		})
	}
}

func TestFetchSingleFile(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		expectError string
	}{
		{name: "successful download", status: http.StatusOK, body: "test content"},
		{name: "not found", status: http.StatusNotFound, expectError: "unexpected status code 404"},
		{name: "server error", status: http.StatusInternalServerError, expectError: "unexpected status code 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			m := NewManager(time.Second, "test")
			item := Item{ID: "krita", URL: mustParse(t, server.URL+"/krita-5.2.AppImage")}
			p, err := m.Fetch(context.Background(), item, Options{Dir: t.TempDir()})
			if tt.expectError != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, pkgerrors.ErrDownloadFailed)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}

			require.NoError(t, err)
			assert.Contains(t, filepath.Base(p), "krita-5.2.AppImage")
			content, err := os.ReadFile(p)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(content))
		})
	}
}

func TestFetchWithChecksum(t *testing.T) {
	sum := sha256.Sum256([]byte("test content"))
	checksum := hex.EncodeToString(sum[:])

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("test content"))
	}))
	defer server.Close()

	dir := t.TempDir()
	m := NewManager(time.Second, "test")

	item := Item{ID: "ok", URL: mustParse(t, server.URL+"/file"), Checksum: checksum}
	_, err := m.Fetch(context.Background(), item, Options{Dir: dir})
	require.NoError(t, err)

	// verified files already in the cache are reused
	_, err = m.Fetch(context.Background(), item, Options{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	bad := Item{ID: "bad", URL: mustParse(t, server.URL+"/other"), Checksum: "deadbeef"}
	_, err = m.Fetch(context.Background(), bad, Options{Dir: dir})
	assert.ErrorIs(t, err, pkgerrors.ErrFileHashMismatch)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "failed downloads leave no temp files behind")
}

func TestFetchAllConcurrent(t *testing.T) {
	const numItems = 5
	responses := make(map[string]string)
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		content, ok := responses[r.URL.Path[1:]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	var items []Item
	for i := 0; i < numItems; i++ {
		id := string(rune('a' + i))
		responses[id] = "content for " + id
		items = append(items, Item{ID: id, URL: mustParse(t, server.URL+"/"+id)})
	}
	// same URL as "a" under another ID
	items = append(items, Item{ID: "a-again", URL: mustParse(t, server.URL+"/a")})

	for _, concurrency := range []int{0, 1, 3} {
		hits.Store(0)
		results, err := NewManager(5*time.Second, "test").FetchAll(context.Background(), items, Options{
			Dir:         t.TempDir(),
			Concurrency: concurrency,
		})
		require.NoError(t, err)
		require.Len(t, results, numItems+1)
		assert.Equal(t, int32(numItems), hits.Load())
		assert.Equal(t, results["a"], results["a-again"])

		for _, item := range items[:numItems] {
			content, err := os.ReadFile(results[item.ID])
			require.NoError(t, err)
			assert.Equal(t, responses[item.ID], string(content))
		}
	}
}

func TestFetchAllFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	items := []Item{
		{ID: "ok", URL: mustParse(t, server.URL+"/ok")},
		{ID: "missing", URL: mustParse(t, server.URL+"/missing")},
	}
	_, err := NewManager(time.Second, "test").FetchAll(context.Background(), items, Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, pkgerrors.ErrDownloadFailed)

	_, err = NewManager(time.Second, "test").FetchAll(context.Background(), []Item{{ID: "nil"}}, Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, pkgerrors.ErrDownloadFailed)
}

func TestFetchAppliesAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("private"))
	}))
	defer server.Close()

	m := NewManager(time.Second, "test")
	item := Item{ID: "x", URL: mustParse(t, server.URL+"/asset")}

	_, err := m.Fetch(context.Background(), item, Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, pkgerrors.ErrDownloadFailed)

	item.Auth = auth.BearerAuth{Token: "secret"}
	_, err = m.Fetch(context.Background(), item, Options{Dir: t.TempDir()})
	assert.NoError(t, err)
}

func TestFetchRejectsRelativeDir(t *testing.T) {
	m := NewManager(time.Second, "test")
	_, err := m.Fetch(context.Background(), Item{ID: "x", URL: mustParse(t, "http://example.invalid/x")}, Options{Dir: "relative"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)

	_, err = m.FetchAll(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
}

func TestSelectFilename(t *testing.T) {
	u := &url.URL{Scheme: "https", Host: "example.com", Path: "/releases/rg.tar.gz"}
	assert.Equal(t, "custom.deb", selectFilename(Item{URL: u, Filename: "../custom.deb"}))
	assert.Regexp(t, `^[0-9a-f]{12}-rg\.tar\.gz$`, selectFilename(Item{URL: u}))

	root := &url.URL{Scheme: "https", Host: "example.com", Path: "/"}
	assert.Equal(t, "abcd", selectFilename(Item{URL: root, Checksum: " ABCD "}))
	assert.Len(t, selectFilename(Item{URL: root}), 64)
}
