package config

import "github.com/glorpus-work/fluffpkg/pkg/auth"

// Authenticator returns the authenticator for GitHub requests, or nil when
// no token is configured.
func (g GitHubConfig) Authenticator() auth.Authenticator {
	return auth.GitHubToken(g.Token)
}
