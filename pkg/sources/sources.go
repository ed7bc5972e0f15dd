// Package sources imports candidate lists from source files into the record
// store. A source file is a JSON or YAML list of candidates, read from a
// local path or downloaded from a URL.
package sources

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"gopkg.in/yaml.v3"
)

// entry is one candidate as written in a source file.
type entry struct {
	Module        string            `yaml:"module"`
	ModuleVersion int               `yaml:"module_version,omitempty"`
	Name          string            `yaml:"name"`
	PackageName   string            `yaml:"package_name"`
	Categories    []string          `yaml:"categories,omitempty"`
	DownloadURL   string            `yaml:"download_url,omitempty"`
	ModuleData    map[string]string `yaml:"module_data,omitempty"`
}

// Parse validates a source document and returns its candidates attributed
// to src. Duplicate package names within one document are rejected.
func Parse(data []byte, src model.Source) ([]*model.Candidate, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding source file: %w: %w", errors.ErrInvalidSource, err)
	}

	seen := make(map[string]bool, len(entries))
	out := make([]*model.Candidate, 0, len(entries))
	for _, e := range entries {
		if seen[e.PackageName] {
			return nil, fmt.Errorf("duplicate package %q: %w", e.PackageName, errors.ErrInvalidSource)
		}
		seen[e.PackageName] = true
		out = append(out, &model.Candidate{
			Module:      e.Module,
			Name:        e.Name,
			PackageName: e.PackageName,
			Categories:  e.Categories,
			Source:      src,
			DownloadURL: e.DownloadURL,
			ModuleData:  e.ModuleData,
		})
	}
	return out, nil
}

// NewSource builds a Source from a location given on the command line.
// Local paths are made absolute; remote locations must be http(s) URLs.
func NewSource(location string, remote bool) (model.Source, error) {
	if location == "" {
		return model.Source{}, fmt.Errorf("empty location: %w", errors.ErrInvalidSource)
	}
	if remote {
		u, err := url.Parse(location)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return model.Source{}, fmt.Errorf("%q is not an http(s) URL: %w", location, errors.ErrInvalidSource)
		}
		return model.Source{Kind: model.SourceRemote, URL: u.String()}, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return model.Source{}, fmt.Errorf("%q: %w: %w", location, errors.ErrInvalidSource, err)
	}
	return model.Source{Kind: model.SourceLocal, URL: abs}, nil
}

// Skip records a candidate that was not imported.
type Skip struct {
	Package string
	Reason  error
}

// Report summarizes the import of one source.
type Report struct {
	Source  model.Source
	Added   []string
	Updated []string
	Removed []string
	Skipped []Skip
}

// Importer keeps the store in sync with source files.
type Importer struct {
	Store      store.Store
	Downloader download.Manager
	// CacheDir receives downloaded remote source files.
	CacheDir    string
	Concurrency int
}

// Add registers a new source and imports its candidates. The source is only
// recorded when the import succeeds.
func (im *Importer) Add(ctx context.Context, src model.Source) (*Report, error) {
	if src.IsManual() {
		return nil, fmt.Errorf("manual sources cannot be added: %w", errors.ErrInvalidSource)
	}
	known, err := im.Store.Sources(ctx)
	if err != nil {
		return nil, err
	}
	if slices.Contains(known, src) {
		return nil, fmt.Errorf("%s: %w", src, errors.ErrSourceAlreadyExists)
	}

	data, err := im.read(ctx, src)
	if err != nil {
		return nil, err
	}
	candidates, err := Parse(data, src)
	if err != nil {
		return nil, err
	}
	if err := im.Store.AddSource(ctx, src); err != nil {
		return nil, err
	}
	return im.sync(ctx, src, candidates)
}

// Update re-reads a known source and applies its changes.
func (im *Importer) Update(ctx context.Context, src model.Source) (*Report, error) {
	if err := im.requireKnown(ctx, src); err != nil {
		return nil, err
	}
	data, err := im.read(ctx, src)
	if err != nil {
		return nil, err
	}
	candidates, err := Parse(data, src)
	if err != nil {
		return nil, err
	}
	return im.sync(ctx, src, candidates)
}

// UpdateAll updates every known source. Remote sources are downloaded
// concurrently before any of them is imported.
func (im *Importer) UpdateAll(ctx context.Context) ([]*Report, error) {
	srcs, err := im.Store.Sources(ctx)
	if err != nil {
		return nil, err
	}

	var items []download.Item
	for _, src := range srcs {
		if src.Kind != model.SourceRemote {
			continue
		}
		item, err := remoteItem(src)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	fetched := map[string]string{}
	if len(items) > 0 {
		fetched, err = im.Downloader.FetchAll(ctx, items, download.Options{Dir: im.CacheDir, Concurrency: im.Concurrency})
		if err != nil {
			return nil, err
		}
	}

	reports := make([]*Report, 0, len(srcs))
	for _, src := range srcs {
		var data []byte
		switch src.Kind {
		case model.SourceRemote:
			data, err = os.ReadFile(fetched[src.String()])
		case model.SourceLocal:
			data, err = os.ReadFile(src.URL)
		default:
			continue
		}
		if err != nil {
			return reports, fmt.Errorf("reading %s: %w", src, err)
		}
		candidates, err := Parse(data, src)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", src, err)
		}
		report, err := im.sync(ctx, src, candidates)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Remove forgets a source and every candidate it provided. It fails with
// ErrStillInstalled while any of those candidates is installed.
func (im *Importer) Remove(ctx context.Context, src model.Source) error {
	if err := im.requireKnown(ctx, src); err != nil {
		return err
	}
	owned, err := im.owned(ctx, src)
	if err != nil {
		return err
	}
	for _, c := range owned {
		installed, err := store.IsInstalled(ctx, im.Store, c.PackageName)
		if err != nil {
			return err
		}
		if installed {
			return errors.ErrStillInstalledWithName(c.PackageName)
		}
	}
	for _, c := range owned {
		if err := im.Store.RemoveCandidate(ctx, c.PackageName); err != nil {
			return err
		}
	}
	return im.Store.RemoveSource(ctx, src)
}

// Resolve maps a location given on the command line to a known source,
// accepting the "kind:url" form as well as bare paths and URLs.
func (im *Importer) Resolve(ctx context.Context, location string) (model.Source, error) {
	known, err := im.Store.Sources(ctx)
	if err != nil {
		return model.Source{}, err
	}
	var options []model.Source
	if src, err := model.ParseSource(location); err == nil {
		options = append(options, src)
	}
	if src, err := NewSource(location, true); err == nil {
		options = append(options, src)
	}
	if src, err := NewSource(location, false); err == nil {
		options = append(options, src)
	}
	for _, src := range options {
		if slices.Contains(known, src) {
			return src, nil
		}
	}
	return model.Source{}, errors.ErrSourceNotFoundWithLocation(location)
}

func (im *Importer) requireKnown(ctx context.Context, src model.Source) error {
	known, err := im.Store.Sources(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(known, src) {
		return errors.ErrSourceNotFoundWithLocation(src.String())
	}
	return nil
}

func (im *Importer) owned(ctx context.Context, src model.Source) ([]*model.Candidate, error) {
	all, err := im.Store.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Candidate
	for _, c := range all {
		if c.Source == src {
			out = append(out, c)
		}
	}
	return out, nil
}

// sync upserts candidates owned by src and drops the ones that vanished from
// the file, keeping installed packages.
func (im *Importer) sync(ctx context.Context, src model.Source, candidates []*model.Candidate) (*Report, error) {
	report := &Report{Source: src}
	wanted := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		wanted[c.PackageName] = true
		existing, err := im.Store.Candidate(ctx, c.PackageName)
		switch {
		case stderrors.Is(err, errors.ErrNotSourced):
			c.ImportedCategories = slices.Clone(c.Categories)
			if c.ImportedCategories == nil {
				c.ImportedCategories = []string{}
			}
			if err := im.Store.AddCandidate(ctx, c, false); err != nil {
				return report, err
			}
			report.Added = append(report.Added, c.PackageName)
		case err != nil:
			return report, err
		case existing.Source != src:
			reason := fmt.Errorf("provided by %s: %w", existing.Source, errors.ErrAlreadySourced)
			logger.Warn("Skipping candidate", logger.Fields{"package": c.PackageName, "source": src.String(), "reason": reason.Error()})
			report.Skipped = append(report.Skipped, Skip{Package: c.PackageName, Reason: reason})
		default:
			if err := im.Store.UpdateCandidate(ctx, keepUserEdits(existing, c)); err != nil {
				return report, err
			}
			report.Updated = append(report.Updated, c.PackageName)
		}
	}

	owned, err := im.owned(ctx, src)
	if err != nil {
		return report, err
	}
	for _, c := range owned {
		if wanted[c.PackageName] {
			continue
		}
		err := im.Store.RemoveCandidate(ctx, c.PackageName)
		if stderrors.Is(err, errors.ErrStillInstalled) {
			report.Skipped = append(report.Skipped, Skip{Package: c.PackageName, Reason: err})
			continue
		}
		if err != nil {
			return report, err
		}
		report.Removed = append(report.Removed, c.PackageName)
	}
	return report, nil
}

// keepUserEdits carries changes made with modify over to the freshly imported
// record: categories added or removed since the last import, and module data
// keys the file does not set.
func keepUserEdits(existing, incoming *model.Candidate) *model.Candidate {
	merged := incoming.Clone()
	merged.ImportedCategories = slices.Clone(incoming.Categories)
	if merged.ImportedCategories == nil {
		merged.ImportedCategories = []string{}
	}

	base := existing.ImportedCategories
	if base == nil {
		base = existing.Categories
	}
	for _, cat := range existing.Categories {
		if !slices.Contains(base, cat) && !slices.Contains(merged.Categories, cat) {
			merged.Categories = append(merged.Categories, cat)
		}
	}
	merged.Categories = slices.DeleteFunc(merged.Categories, func(cat string) bool {
		return slices.Contains(base, cat) && !slices.Contains(existing.Categories, cat)
	})
	if len(merged.Categories) == 0 {
		merged.Categories = nil
	}

	for k, v := range existing.ModuleData {
		if _, ok := merged.ModuleData[k]; ok {
			continue
		}
		if merged.ModuleData == nil {
			merged.ModuleData = map[string]string{}
		}
		merged.ModuleData[k] = v
	}
	return merged
}

func (im *Importer) read(ctx context.Context, src model.Source) ([]byte, error) {
	switch src.Kind {
	case model.SourceLocal:
		data, err := os.ReadFile(src.URL)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", src, err)
		}
		return data, nil
	case model.SourceRemote:
		item, err := remoteItem(src)
		if err != nil {
			return nil, err
		}
		path, err := im.Downloader.Fetch(ctx, item, download.Options{Dir: im.CacheDir})
		if err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	default:
		return nil, fmt.Errorf("%s cannot be read: %w", src, errors.ErrInvalidSource)
	}
}

func remoteItem(src model.Source) (download.Item, error) {
	u, err := url.Parse(src.URL)
	if err != nil {
		return download.Item{}, fmt.Errorf("%s: %w: %w", src, errors.ErrInvalidSource, err)
	}
	return download.Item{ID: src.String(), URL: u}, nil
}
