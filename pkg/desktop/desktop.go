// Package desktop integrates installed packages with the desktop: launcher
// entries under the XDG applications directory and executable links in the
// user's bin directory.
package desktop

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
	"github.com/glorpus-work/fluffpkg/pkg/model"
)

// launcherPrefix keeps our entries apart from the ones other tools write.
const launcherPrefix = fsutil.AppName + "-"

// Manager writes launcher entries into LauncherDir and links them into
// ApplicationsDir, and links executables into BinDir.
type Manager struct {
	LauncherDir     string
	ApplicationsDir string
	BinDir          string

	// Getenv is used to read PATH. Defaults to os.Getenv.
	Getenv func(string) string
}

// New returns a Manager for the given directories.
func New(launcherDir, applicationsDir, binDir string) *Manager {
	return &Manager{
		LauncherDir:     launcherDir,
		ApplicationsDir: applicationsDir,
		BinDir:          binDir,
		Getenv:          os.Getenv,
	}
}

// LauncherName returns the file name of the launcher of a package.
func LauncherName(packageName string) string {
	return launcherPrefix + packageName + ".desktop"
}

// LauncherPath returns where the launcher of a package is written.
func (m *Manager) LauncherPath(packageName string) string {
	return filepath.Join(m.LauncherDir, LauncherName(packageName))
}

// AttachLauncher writes the launcher entry of inst and links it into the
// applications directory.
func (m *Manager) AttachLauncher(inst *model.Installation, c *model.Candidate, icon string) error {
	if inst.ExecutablePath == "" {
		return fmt.Errorf("%s has no executable to launch: %w", inst.PackageName, errors.ErrInvalidPath)
	}
	var categories []string
	if c != nil {
		categories = c.Categories
	}
	entry := Entry{
		Name:       inst.Name,
		Exec:       inst.ExecutablePath,
		Icon:       icon,
		Categories: categories,
		Package:    inst.PackageName,
	}

	path := m.LauncherPath(inst.PackageName)
	if err := fsutil.WriteFileAtomic(path, entry.Render(), fsutil.FileModeDefault); err != nil {
		return errors.Wrapf(err, "failed to write launcher %s", path)
	}
	link := filepath.Join(m.ApplicationsDir, LauncherName(inst.PackageName))
	if err := fsutil.ReplaceSymlink(path, link); err != nil {
		return errors.Wrapf(err, "failed to link launcher into %s", m.ApplicationsDir)
	}
	logger.Debug("Launcher created", logger.Fields{"package": inst.PackageName, "path": link})
	return nil
}

// DetachLauncher removes the launcher of inst. Missing files are ignored.
func (m *Manager) DetachLauncher(inst *model.Installation) error {
	link := filepath.Join(m.ApplicationsDir, LauncherName(inst.PackageName))
	if err := fsutil.RemoveSymlink(link); err != nil {
		return errors.Wrapf(err, "failed to remove launcher link %s", link)
	}
	if err := os.Remove(m.LauncherPath(inst.PackageName)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove launcher")
	}
	return nil
}

// SetCategories rewrites the Categories line of an existing launcher. It is
// a no-op when the package has no launcher.
func (m *Manager) SetCategories(packageName string, categories []string) error {
	path := m.LauncherPath(packageName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read launcher %s", path)
	}
	out := replaceKey(data, "Categories", joinList(categories))
	return fsutil.WriteFileAtomic(path, out, fsutil.FileModeDefault)
}

// AttachPath links the executable of inst into the bin directory under the
// package name.
func (m *Manager) AttachPath(inst *model.Installation) error {
	if inst.ExecutablePath == "" {
		return fmt.Errorf("%s has no executable to link: %w", inst.PackageName, errors.ErrInvalidPath)
	}
	link := filepath.Join(m.BinDir, inst.PackageName)
	if err := fsutil.ReplaceSymlink(inst.ExecutablePath, link); err != nil {
		return errors.Wrapf(err, "failed to link %s", link)
	}
	if !m.OnPath() {
		logger.Warnf("%s is not in your PATH, add it to run %s by name", m.BinDir, inst.PackageName)
	}
	return nil
}

// DetachPath removes the bin link of inst.
func (m *Manager) DetachPath(inst *model.Installation) error {
	return fsutil.RemoveSymlink(filepath.Join(m.BinDir, inst.PackageName))
}

// OnPath reports whether BinDir is listed in PATH.
func (m *Manager) OnPath() bool {
	getenv := m.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	want := filepath.Clean(m.BinDir)
	return slices.ContainsFunc(filepath.SplitList(getenv("PATH")), func(dir string) bool {
		return dir != "" && filepath.Clean(dir) == want
	})
}

// Entry is a Desktop Entry of type Application.
type Entry struct {
	Name       string
	Exec       string
	Icon       string
	Categories []string
	Package    string
}

// Render formats the entry as a .desktop file.
func (e Entry) Render() []byte {
	var b bytes.Buffer
	b.WriteString("[Desktop Entry]\n")
	fmt.Fprintf(&b, "Name=%s\n", e.Name)
	fmt.Fprintf(&b, "Exec=%s\n", quoteExec(e.Exec))
	if e.Icon != "" {
		fmt.Fprintf(&b, "Icon=%s\n", e.Icon)
	}
	fmt.Fprintf(&b, "Categories=%s\n", joinList(e.Categories))
	b.WriteString("Type=Application\n")
	b.WriteString("Terminal=false\n")
	if e.Package != "" {
		fmt.Fprintf(&b, "X-Fluffpkg-Package=%s\n", e.Package)
	}
	return b.Bytes()
}

func joinList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.Join(values, ";") + ";"
}

// quoteExec quotes an executable path that contains characters the Exec key
// reserves.
func quoteExec(path string) string {
	if !strings.ContainsAny(path, " \t\"'\\$`") {
		return path
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
	return `"` + r.Replace(path) + `"`
}

// replaceKey sets key in the [Desktop Entry] group, appending it when the
// group has no such line.
func replaceKey(data []byte, key, value string) []byte {
	var out bytes.Buffer
	found := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !found && strings.HasPrefix(line, key+"=") {
			line = key + "=" + value
			found = true
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if !found {
		fmt.Fprintf(&out, "%s=%s\n", key, value)
	}
	return out.Bytes()
}
