// Package dotdeb installs Debian packages listed on a plain index page into
// the user's data directory, without root, by unpacking them with dpkg-deb.
package dotdeb

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/archive"
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/backends"
	"github.com/glorpus-work/fluffpkg/pkg/download"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/shell"
)

// Name is the module name recorded on candidates.
const Name = "dotdeb"

// Module data keys.
const (
	DataLineRegex = "line_regex"
	DataDebName   = "deb_name"
)

// Capture group names a line regex may use. version is required; file
// defaults to the whole match.
const (
	GroupVersion = "version"
	GroupFile    = "file"
)

// extractScript unpacks $1 into $2.
const extractScript = `dpkg-deb -x "$1" "$2"`

// Module installs .deb files.
type Module struct {
	layout      backends.Layout
	downloadDir string
	downloader  download.Manager
	shell       shell.Runner
}

var (
	_ backend.Remover           = (*Module)(nil)
	_ backend.Upgrader          = (*Module)(nil)
	_ backend.Versioner         = (*Module)(nil)
	_ backend.ExecPather        = (*Module)(nil)
	_ backend.CommandProvider   = (*Module)(nil)
	_ backend.AttributeProvider = (*Module)(nil)
)

// New returns the module.
func New(root, downloadDir string, downloader download.Manager, runner shell.Runner) *Module {
	return &Module{
		layout:      backends.Layout{Root: root},
		downloadDir: downloadDir,
		downloader:  downloader,
		shell:       runner,
	}
}

// Name implements backend.Backend.
func (m *Module) Name() string { return Name }

// Entry is one package file listed on an index page.
type Entry struct {
	Version string
	URL     *url.URL
}

// CompileLineRegex compiles a line regex and checks it captures a version.
func CompileLineRegex(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: line regex: %w", errors.ErrUsage, err)
	}
	if re.SubexpIndex(GroupVersion) < 0 {
		return nil, fmt.Errorf("%w: line regex must have a (?P<%s>...) group", errors.ErrUsage, GroupVersion)
	}
	return re, nil
}

// ParseIndex returns the entries of an index page, newest first. Relative
// file references are resolved against base.
// Lines may be arbitrarily long, minified listings put the whole page on one.
func ParseIndex(page string, re *regexp.Regexp, base *url.URL) []Entry {
	byVersion := make(map[string]Entry)
	var versions []string
	for _, line := range strings.Split(page, "\n") {
		line = strings.TrimSpace(line)
		match := re.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		ver := match[re.SubexpIndex(GroupVersion)]
		file := match[0]
		if i := re.SubexpIndex(GroupFile); i >= 0 && match[i] != "" {
			file = match[i]
		}
		ref, err := url.Parse(file)
		if err != nil {
			continue
		}
		if _, seen := byVersion[ver]; seen || ver == "" {
			continue
		}
		byVersion[ver] = Entry{Version: ver, URL: base.ResolveReference(ref)}
		versions = append(versions, ver)
	}

	entries := make([]Entry, 0, len(versions))
	for _, v := range backends.SortVersions(versions) {
		entries = append(entries, byVersion[v])
	}
	return entries
}

// index downloads and parses the index page of a candidate.
func (m *Module) index(ctx context.Context, c *model.Candidate) ([]Entry, error) {
	re, err := CompileLineRegex(c.Data(DataLineRegex))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(c.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("invalid index URL %q: %w", c.DownloadURL, err)
	}
	pagePath, err := m.downloader.Fetch(ctx, download.Item{
		ID:       c.PackageName + "-index",
		URL:      base,
		Filename: c.PackageName + ".index",
	}, download.Options{Dir: m.downloadDir})
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(pagePath) }()

	page, err := os.ReadFile(pagePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read index page")
	}
	entries := ParseIndex(string(page), re, base)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no line of %s matches %q: %w", c.DownloadURL, re.String(), errors.ErrVersionNotFound)
	}
	return entries, nil
}

// Install downloads the requested (or newest) .deb and unpacks it.
func (m *Module) Install(ctx context.Context, c *model.Candidate, opts backend.InstallOptions) (*backend.InstallResult, error) {
	entries, err := m.index(ctx, c)
	if err != nil {
		return nil, err
	}
	entry := entries[0]
	if opts.Version != "" {
		i := slices.IndexFunc(entries, func(e Entry) bool { return backends.SameVersion(e.Version, opts.Version) })
		if i < 0 {
			return nil, fmt.Errorf("%s@%s: %w", c.PackageName, opts.Version, errors.ErrVersionNotFound)
		}
		entry = entries[i]
	}

	logger.Info("Downloading package", logger.Fields{"package": c.PackageName, "version": entry.Version, "url": entry.URL.String()})
	debPath, err := m.downloader.Fetch(ctx, download.Item{
		ID:       c.PackageName,
		URL:      entry.URL,
		Filename: path.Base(entry.URL.Path),
	}, download.Options{Dir: m.downloadDir})
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(debPath) }()

	dir, err := m.layout.Prepare(c.PackageName, entry.Version)
	if err != nil {
		return nil, err
	}
	if err := m.shell.Run(ctx, extractScript, shell.Options{Args: []string{debPath, dir}}); err != nil {
		_ = os.RemoveAll(dir)
		return nil, errors.Wrapf(err, "failed to unpack %s", filepath.Base(debPath))
	}

	exe, err := findBinary(dir, c)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	if err := m.layout.Activate(c.PackageName, entry.Version); err != nil {
		return nil, err
	}
	return &backend.InstallResult{Version: entry.Version, ExecutablePath: exe, Icon: findIcon(dir, binaryName(c))}, nil
}

func binaryName(c *model.Candidate) string {
	if name := c.Data(DataDebName); name != "" {
		return name
	}
	return c.PackageName
}

// findBinary prefers usr/bin/<name>, then any executable of that name.
func findBinary(dir string, c *model.Candidate) (string, error) {
	name := binaryName(c)
	candidate := filepath.Join(dir, "usr", "bin", name)
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		return candidate, nil
	}
	rel, err := archive.FindExecutable(dir, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, rel), nil
}

// findIcon returns a hicolor or pixmaps icon shipped for name, if any.
func findIcon(dir, name string) string {
	patterns := []string{
		filepath.Join(dir, "usr", "share", "icons", "hicolor", "scalable", "apps", name+".svg"),
		filepath.Join(dir, "usr", "share", "icons", "hicolor", "*", "apps", name+".png"),
		filepath.Join(dir, "usr", "share", "pixmaps", name+".*"),
	}
	for _, p := range patterns {
		if matches, _ := filepath.Glob(p); len(matches) > 0 {
			slices.Sort(matches)
			return matches[len(matches)-1]
		}
	}
	return ""
}

// Remove deletes every unpacked version.
func (m *Module) Remove(_ context.Context, inst *model.Installation) error {
	return m.layout.Remove(inst.PackageName)
}

// Newest returns the newest version listed on the index page.
func (m *Module) Newest(ctx context.Context, c *model.Candidate) (string, error) {
	entries, err := m.index(ctx, c)
	if err != nil {
		return "", err
	}
	return entries[0].Version, nil
}

// Versions lists every version on the index page, newest first.
func (m *Module) Versions(ctx context.Context, c *model.Candidate) ([]string, error) {
	entries, err := m.index(ctx, c)
	if err != nil {
		return nil, err
	}
	versions := make([]string, len(entries))
	for i, e := range entries {
		versions[i] = e.Version
	}
	return versions, nil
}

// ExecPath returns the binary, or its path through the current link.
func (m *Module) ExecPath(_ context.Context, inst *model.Installation, opts backend.ExecPathOptions) (string, error) {
	if !opts.NoVersion {
		return inst.ExecutablePath, nil
	}
	return m.layout.StablePath(inst)
}

// Commands contributes add-dotdeb.
func (m *Module) Commands() []backend.Command {
	return []backend.Command{{
		Grammar: &grammar.Command{
			Name: "add-dotdeb",
			Help: "Add a package whose .deb files are listed on an index page",
			Args: []grammar.Arg{
				grammar.Value{Short: "-n", Long: "--deb-name", Help: "Executable name inside the package", Placeholder: "NAME"},
				grammar.Pos{Name: "package", Help: "Display name of the package"},
				grammar.Pos{Name: "index-url", Help: "URL of the index page"},
				grammar.Pos{Name: "line-regex", Help: "Regex matching one listed file, with a (?P<version>...) group"},
			},
		},
		Run: m.runAdd,
	}}
}

func (m *Module) runAdd(ctx context.Context, inv *backend.Invocation) error {
	name, _ := inv.Result.Pos("package")
	indexURL, _ := inv.Result.Pos("index-url")
	lineRegex, _ := inv.Result.Pos("line-regex")

	if _, err := CompileLineRegex(lineRegex); err != nil {
		return err
	}
	u, err := url.Parse(indexURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: index URL must be http(s): %q", errors.ErrUsage, indexURL)
	}

	c := &model.Candidate{
		Module:      Name,
		Name:        name,
		PackageName: model.NormalizePackageName(name),
		DownloadURL: indexURL,
		ModuleData:  map[string]string{DataLineRegex: lineRegex},
	}
	if debName, ok := inv.Result.Value("--deb-name"); ok && debName != "" {
		c.ModuleData[DataDebName] = debName
	}
	if err := backends.AddCandidate(ctx, inv.Store, c); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(inv.Out, "Added %s as %s\n", name, c.PackageName)
	return nil
}

// Attributes contributes deb-name.
func (m *Module) Attributes() []backend.Attribute {
	return []backend.Attribute{{
		Name: "deb-name",
		Help: "Executable name inside the package",
		Args: []grammar.Arg{grammar.Pos{Name: "name", Help: "Executable name"}},
		Modify: func(ctx context.Context, inv *backend.Invocation, c *model.Candidate) error {
			name, _ := inv.Result.Pos("name")
			return inv.Store.SetModuleData(ctx, c.PackageName, DataDebName, name)
		},
		Show: func(_ context.Context, _ *backend.Invocation, c *model.Candidate) (string, error) {
			return binaryName(c), nil
		},
	}}
}
