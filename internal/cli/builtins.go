package cli

import (
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/backends"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
)

// Names of the built-in commands.
const (
	cmdInstall  = "install"
	cmdRemove   = "remove"
	cmdUpgrade  = "upgrade"
	cmdList     = "list"
	cmdVersions = "versions"
	cmdExecPath = "execpath"
	cmdSource   = "source"
	cmdForget   = "forget"
	cmdHelp     = "help"
)

// Built-in attributes of modify and show.
const (
	attrAddCategories    = "add-categories"
	attrRemoveCategories = "remove-categories"
	attrLauncher         = "launcher"
	attrPath             = "path"
	attrCategories       = "categories"
	attrVersion          = "version"
	attrModule           = "module"
	attrSource           = "source"
	attrExecutable       = "executable"
	attrLocked           = "locked"
	attrDownloadURL      = "download-url"
)

var (
	packageArg  = grammar.Pos{Name: "package", Help: "Package name"}
	packagesArg = grammar.Rest{Name: "packages", Help: "Package names"}
	stateArg    = grammar.Pos{Name: "state", Help: "on or off"}
)

// Builtins returns the grammar of the built-in commands. Every call returns a
// fresh tree.
func Builtins() []*grammar.Command {
	return []*grammar.Command{
		{
			Name: cmdInstall,
			Help: "Install packages",
			Args: []grammar.Arg{
				backends.NoLauncherFlag,
				backends.PathFlag,
				grammar.Value{Short: "-v", Long: "--version", Help: "Install and lock a specific version", Placeholder: "VER"},
				packagesArg,
			},
		},
		{
			Name: cmdRemove,
			Help: "Remove installed packages",
			Args: []grammar.Arg{packagesArg},
		},
		{
			Name: cmdUpgrade,
			Help: "Upgrade packages, all installed packages when none are given",
			Args: []grammar.Arg{
				grammar.Flag{Short: "-f", Long: "--force", Help: "Also upgrade packages locked to a version"},
				grammar.Rest{Name: "packages", Help: "Package names", Optional: true},
			},
		},
		{
			Name: cmdList,
			Help: "List candidates",
			Args: []grammar.Arg{
				grammar.Flag{Short: "-i", Long: "--installed", Help: "List installed packages only"},
			},
		},
		{
			Name: backend.ModifyCommand,
			Help: "Modify an attribute of a package",
			Args: []grammar.Arg{
				packageArg,
				grammar.Sub{Name: backend.AttributeArg, Help: "Attribute to modify", Commands: []*grammar.Command{
					{Name: attrAddCategories, Help: "Add launcher categories", Args: []grammar.Arg{grammar.Rest{Name: "categories"}}},
					{Name: attrRemoveCategories, Help: "Remove launcher categories", Args: []grammar.Arg{grammar.Rest{Name: "categories"}}},
					{Name: attrLauncher, Help: "Create or remove the launcher", Args: []grammar.Arg{stateArg}},
					{Name: attrPath, Help: "Create or remove the link in the bin directory", Args: []grammar.Arg{stateArg}},
				}},
			},
		},
		{
			Name: backend.ShowCommand,
			Help: "Show an attribute of a package",
			Args: []grammar.Arg{
				packageArg,
				grammar.Sub{Name: backend.AttributeArg, Help: "Attribute to show", Commands: []*grammar.Command{
					{Name: attrCategories, Help: "Launcher categories"},
					{Name: attrVersion, Help: "Installed version"},
					{Name: attrModule, Help: "Module installing the package"},
					{Name: attrSource, Help: "Source the candidate came from"},
					{Name: attrExecutable, Help: "Path of the installed executable"},
					{Name: attrLauncher, Help: "Whether a launcher exists"},
					{Name: attrPath, Help: "Whether the executable is linked into the bin directory"},
					{Name: attrLocked, Help: "Whether the package is locked to its version"},
					{Name: attrDownloadURL, Help: "Download location recorded on the candidate"},
				}},
			},
		},
		{
			Name: cmdVersions,
			Help: "List the versions available for a package",
			Args: []grammar.Arg{packageArg},
		},
		{
			Name: cmdExecPath,
			Help: "Print the executable of an installed package",
			Args: []grammar.Arg{
				grammar.Flag{Short: "-v", Long: "--noversion", Help: "Print a path that stays valid across upgrades"},
				packageArg,
			},
		},
		{
			Name: cmdSource,
			Help: "Manage candidate sources",
			Args: []grammar.Arg{
				grammar.Sub{Name: "action", Help: "Source operation", Commands: []*grammar.Command{
					{Name: "add", Help: "Add a source and import its candidates", Args: []grammar.Arg{
						grammar.Flag{Short: "-r", Long: "--remote", Help: "The location is an http(s) URL"},
						grammar.Pos{Name: "location", Help: "Path or URL of the source file"},
					}},
					{Name: "remove", Help: "Remove a source and its candidates", Args: []grammar.Arg{
						grammar.Pos{Name: "location", Help: "Path or URL of the source file"},
					}},
					{Name: "update", Help: "Re-import one source, or all of them", Args: []grammar.Arg{
						grammar.Pos{Name: "location", Help: "Path or URL of the source file", Optional: true},
					}},
					{Name: "list", Help: "List sources"},
				}},
			},
		},
		{
			Name: cmdForget,
			Help: "Remove candidates that are not installed",
			Args: []grammar.Arg{packagesArg},
		},
		{
			Name: cmdHelp,
			Help: "Show help for a command",
			Args: []grammar.Arg{grammar.Pos{Name: "command", Help: "Command name", Optional: true}},
		},
	}
}
