package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// QueryKind classifies the outcome of a candidate query.
type QueryKind string

const (
	// QueryFound means candidates whose package name equals the query exist.
	QueryFound QueryKind = "found"
	// QueryStrongRecommend means only substring matches exist.
	QueryStrongRecommend QueryKind = "strong_recommend"
	// QueryNone means nothing matched.
	QueryNone QueryKind = "none"
)

// QueryResult is the result of searching candidates by name.
type QueryResult struct {
	Kind       QueryKind
	Candidates []*Candidate
}

// Found reports whether the query matched package names exactly.
func (r QueryResult) Found() bool { return r.Kind == QueryFound }

// PackageNames returns the package names of the matched candidates.
func (r QueryResult) PackageNames() []string {
	names := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		names = append(names, c.PackageName)
	}
	return names
}

// Query matches candidates against a package name. Exact package name matches
// win over substring matches on the package name or display name. Matching is
// case-insensitive.
func Query(candidates []*Candidate, query string) QueryResult {
	fold := cases.Fold()
	q := fold.String(query)

	var found, recommend []*Candidate
	for _, c := range candidates {
		pkg := fold.String(c.PackageName)
		if pkg == q {
			found = append(found, c)
			continue
		}
		if strings.Contains(pkg, q) || strings.Contains(fold.String(c.Name), q) {
			recommend = append(recommend, c)
		}
	}

	switch {
	case len(found) > 0:
		return QueryResult{Kind: QueryFound, Candidates: found}
	case len(recommend) > 0:
		return QueryResult{Kind: QueryStrongRecommend, Candidates: recommend}
	default:
		return QueryResult{Kind: QueryNone}
	}
}
