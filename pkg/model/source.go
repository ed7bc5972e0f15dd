package model

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
)

// SourceKind identifies where candidates were imported from.
type SourceKind string

const (
	// SourceLocal is a source file on the local filesystem.
	SourceLocal SourceKind = "local"
	// SourceRemote is a source file fetched over HTTP(S).
	SourceRemote SourceKind = "remote"
	// SourceManual marks candidates created by a module command.
	SourceManual SourceKind = "manual"
)

// ManualSource is the provenance of candidates created ad hoc by module commands.
var ManualSource = Source{Kind: SourceManual, URL: "_"}

// Source identifies the provenance of a candidate.
type Source struct {
	Kind SourceKind `json:"kind" yaml:"kind"`
	URL  string     `json:"url" yaml:"url"`
}

// Valid reports whether the kind is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceLocal, SourceRemote, SourceManual:
		return true
	default:
		return false
	}
}

// String renders the source as "kind:url".
func (s Source) String() string {
	return string(s.Kind) + ":" + s.URL
}

// IsManual reports whether the source is the ad hoc manual source.
func (s Source) IsManual() bool {
	return s.Kind == SourceManual
}

// ParseSource parses the "kind:url" form produced by Source.String.
func ParseSource(s string) (Source, error) {
	kind, url, ok := strings.Cut(s, ":")
	if !ok || url == "" {
		return Source{}, fmt.Errorf("%w: %q", errors.ErrInvalidSource, s)
	}
	src := Source{Kind: SourceKind(kind), URL: url}
	if !src.Kind.Valid() {
		return Source{}, fmt.Errorf("%w: unknown kind %q", errors.ErrInvalidSource, kind)
	}
	return src, nil
}
