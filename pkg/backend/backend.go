//go:generate mockgen -destination=./mocks/backend.go . Installer

// Package backend defines the contract between fluffpkg and the modules that
// install packages. Install is the only required operation; everything else
// is an optional capability discovered through interface assertions.
package backend

import (
	"context"
	"io"

	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
)

// Capability names an operation a module may support.
type Capability string

// Capabilities understood by Supports.
const (
	CapInstall    Capability = "install"
	CapRemove     Capability = "remove"
	CapUpgrade    Capability = "upgrade"
	CapVersions   Capability = "versions"
	CapExecPath   Capability = "execpath"
	CapCommands   Capability = "commands"
	CapAttributes Capability = "attributes"
)

// InstallOptions are passed to a module's Install.
type InstallOptions struct {
	// Version pins the exact version to install. Empty lets the module pick
	// its newest version.
	Version string
}

// InstallResult describes what a module put on disk.
type InstallResult struct {
	Version        string
	ExecutablePath string
	// Icon is an optional icon path or name for the launcher.
	Icon string
}

// ExecPathOptions are passed to ExecPather.
type ExecPathOptions struct {
	// NoVersion asks for a path that stays stable across upgrades.
	NoVersion bool
}

// Backend is the required part of every module.
type Backend interface {
	Name() string
	Install(ctx context.Context, c *model.Candidate, opts InstallOptions) (*InstallResult, error)
}

// Remover removes installed files.
type Remover interface {
	Remove(ctx context.Context, inst *model.Installation) error
}

// Upgrader reports the newest available version of a candidate.
type Upgrader interface {
	Newest(ctx context.Context, c *model.Candidate) (string, error)
}

// Versioner lists the versions available for a candidate, newest first.
type Versioner interface {
	Versions(ctx context.Context, c *model.Candidate) ([]string, error)
}

// ExecPather resolves the executable of an installation.
type ExecPather interface {
	ExecPath(ctx context.Context, inst *model.Installation, opts ExecPathOptions) (string, error)
}

// Handler runs a module command.
type Handler func(ctx context.Context, inv *Invocation) error

// Command is a top-level command contributed by a module.
type Command struct {
	Grammar *grammar.Command
	Run     Handler
}

// CommandProvider contributes top-level commands.
type CommandProvider interface {
	Commands() []Command
}

// Attribute is a per-package attribute a module adds to modify and show.
// Either function may be nil, in which case the attribute is not offered by
// that command.
type Attribute struct {
	Name   string
	Help   string
	Args   []grammar.Arg
	Modify func(ctx context.Context, inv *Invocation, c *model.Candidate) error
	Show   func(ctx context.Context, inv *Invocation, c *model.Candidate) (string, error)
}

// AttributeProvider contributes modify and show attributes.
type AttributeProvider interface {
	Attributes() []Attribute
}

// InstallRequest is what a user asks the lifecycle engine to install.
type InstallRequest struct {
	Version    string
	NoLauncher bool
	Path       bool
}

// Installer is the lifecycle engine as seen by module commands.
type Installer interface {
	Install(ctx context.Context, name string, req InstallRequest) (*model.Installation, error)
}

// Invocation carries everything a command handler needs.
type Invocation struct {
	// Result is the parse result of the invoked command. For attributes it
	// is the nested result of the attribute command.
	Result    *grammar.Result
	Installer Installer
	Store     store.Store
	Out       io.Writer
}

// Supports reports whether b implements the capability.
func Supports(b Backend, c Capability) bool {
	var ok bool
	switch c {
	case CapInstall:
		ok = true
	case CapRemove:
		_, ok = b.(Remover)
	case CapUpgrade:
		_, ok = b.(Upgrader)
	case CapVersions:
		_, ok = b.(Versioner)
	case CapExecPath:
		_, ok = b.(ExecPather)
	case CapCommands:
		_, ok = b.(CommandProvider)
	case CapAttributes:
		_, ok = b.(AttributeProvider)
	}
	return ok
}
