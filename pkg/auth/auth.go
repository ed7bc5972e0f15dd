// Package auth applies credentials to outgoing HTTP requests.
package auth

import (
	"net/http"
	"slices"
	"strings"
)

// Authenticator applies authentication to an HTTP request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// Type names an authentication scheme.
type Type string

// Authentication types.
const (
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

// HeaderAuth sets fixed request headers.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth sends a token in the Authorization header.
type BearerAuth struct {
	Token string
}

// Apply adds custom headers to the HTTP request.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns HeaderAuthType.
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Apply adds a Bearer token to the Authorization header of the HTTP request.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }

// Scoped applies Auth only to requests for one of Hosts, so a token meant
// for one service is never sent to a mirror or CDN.
type Scoped struct {
	Hosts []string
	Auth  Authenticator
}

// Apply delegates to Auth when the request host is in scope.
func (s Scoped) Apply(req *http.Request) error {
	if s.Auth == nil || req.URL == nil {
		return nil
	}
	host := strings.ToLower(req.URL.Hostname())
	if !slices.Contains(s.Hosts, host) {
		return nil
	}
	return s.Auth.Apply(req)
}

// Type returns the type of the wrapped authenticator.
func (s Scoped) Type() Type {
	if s.Auth == nil {
		return ""
	}
	return s.Auth.Type()
}

// GitHubHosts are the hosts a GitHub token is sent to.
var GitHubHosts = []string{"github.com", "api.github.com"}

// GitHubToken returns an authenticator sending token to GitHub hosts, or nil
// when token is empty.
func GitHubToken(token string) Authenticator {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return Scoped{Hosts: GitHubHosts, Auth: BearerAuth{Token: token}}
}
