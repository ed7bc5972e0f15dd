// Package github is a small client for the GitHub REST API covering the
// repository and release lookups the GitHub-based modules need.
package github

//go:generate mockgen -destination=./mocks/github.go . Client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/auth"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
)

// DefaultAPIURL is the public GitHub API endpoint.
const DefaultAPIURL = "https://api.github.com"

// Repository is the subset of a GitHub repository fluffpkg uses.
type Repository struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
}

// Asset is a file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Release is a published GitHub release.
type Release struct {
	TagName    string    `json:"tag_name"`
	Name       string    `json:"name"`
	Draft      bool      `json:"draft"`
	Prerelease bool      `json:"prerelease"`
	Assets     []Asset   `json:"assets"`
	Published  time.Time `json:"published_at"`
}

// Client looks up repositories and releases. Repositories are addressed as
// "owner/repo".
type Client interface {
	Repository(ctx context.Context, repo string) (*Repository, error)
	LatestRelease(ctx context.Context, repo string) (*Release, error)
	ReleaseByTag(ctx context.Context, repo, tag string) (*Release, error)
	Releases(ctx context.Context, repo string) ([]*Release, error)
}

// HTTPClient implements Client against the REST API.
type HTTPClient struct {
	baseURL   *url.URL
	client    *http.Client
	auth      auth.Authenticator
	userAgent string
}

var _ Client = (*HTTPClient)(nil)

// NewClient returns a client for apiURL. authenticator may be nil.
func NewClient(apiURL string, timeout time.Duration, authenticator auth.Authenticator, userAgent string) (*HTTPClient, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	base, err := url.Parse(strings.TrimSuffix(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
	}
	// a custom API URL means GitHub Enterprise; send the token there too
	if scoped, ok := authenticator.(auth.Scoped); ok && base.Hostname() != "api.github.com" {
		scoped.Hosts = append(append([]string(nil), scoped.Hosts...), strings.ToLower(base.Hostname()))
		authenticator = scoped
	}
	return &HTTPClient{
		baseURL:   base,
		client:    &http.Client{Timeout: timeout},
		auth:      authenticator,
		userAgent: userAgent,
	}, nil
}

// SplitRepo validates an "owner/repo" reference.
func SplitRepo(repo string) (owner, name string, err error) {
	repo = strings.TrimSuffix(strings.TrimPrefix(repo, "https://github.com/"), ".git")
	owner, name, ok := strings.Cut(strings.Trim(repo, "/"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository must be given as owner/repo, got %q: %w", repo, errors.ErrAPIRequest)
	}
	return owner, name, nil
}

// Repository fetches repository metadata.
func (c *HTTPClient) Repository(ctx context.Context, repo string) (*Repository, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out Repository
	if err := c.get(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LatestRelease returns the newest non-draft, non-prerelease release.
func (c *HTTPClient) LatestRelease(ctx context.Context, repo string) (*Release, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out Release
	if err := c.get(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name)+"/releases/latest", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseByTag returns the release tagged tag.
func (c *HTTPClient) ReleaseByTag(ctx context.Context, repo, tag string) (*Release, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out Release
	path := "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + "/releases/tags/" + url.PathEscape(tag)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Releases returns the most recent releases, newest first.
func (c *HTTPClient) Releases(ctx context.Context, repo string) ([]*Release, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	var out []*Release
	if err := c.get(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name)+"/releases?per_page=100", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, v interface{}) error {
	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.auth != nil {
		if err := c.auth.Apply(req); err != nil {
			return errors.Wrap(err, "failed to apply authentication")
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w: %w", endpoint, errors.ErrAPIRequest, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return fmt.Errorf("GET %s: %d %s: %w", endpoint, resp.StatusCode, msg, errors.ErrAPIRequest)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w: %w", endpoint, errors.ErrAPIRequest, err)
	}
	return nil
}
