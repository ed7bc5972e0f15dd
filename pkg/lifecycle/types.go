package lifecycle

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
)

// Script hook names run around install and remove.
const (
	HookPreInstall  = "pre-install"
	HookPostInstall = "post-install"
	HookPreRemove   = "pre-remove"
	HookPostRemove  = "post-remove"
)

// Event phases.
const (
	PhaseResolving  = "resolving"
	PhaseInstalling = "installing"
	PhaseRemoving   = "removing"
	PhaseUpgrading  = "upgrading"
	PhaseSkipped    = "skipped"
	PhaseWarning    = "warning"
	PhaseDone       = "done"
)

// InstallOptions control a single install.
type InstallOptions = backend.InstallRequest

// Desktop attaches and detaches launcher entries and PATH links.
type Desktop interface {
	AttachLauncher(inst *model.Installation, c *model.Candidate, icon string) error
	DetachLauncher(inst *model.Installation) error
	AttachPath(inst *model.Installation) error
	DetachPath(inst *model.Installation) error
}

// HookRunner runs user scripts around lifecycle steps. Missing scripts are
// not an error.
type HookRunner interface {
	RunHook(hook string, vars map[string]interface{}) error
}

// Event represents a simple progress notification.
type Event struct {
	Phase   string
	Package string
	Msg     string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Skip is a package the bulk upgrade left alone.
type Skip struct {
	Package string
	Reason  error
}

// UpgradeReport is the outcome of UpgradeAll.
type UpgradeReport struct {
	Upgraded []*model.Installation
	Skipped  []Skip
}

// SuggestionError reports a query that only matched package names or
// display names partially.
type SuggestionError struct {
	Query       string
	Suggestions []string
}

func (e *SuggestionError) Error() string {
	return fmt.Sprintf("no installation candidate found for '%s', did you mean: %s",
		e.Query, strings.Join(e.Suggestions, ", "))
}

func (e *SuggestionError) Unwrap() error { return errors.ErrNoCandidate }

// PartialUpgradeError reports an upgrade that removed the old version but
// failed to install the new one. The package is left uninstalled.
type PartialUpgradeError struct {
	Package  string
	Previous *model.Installation
	Err      error
}

func (e *PartialUpgradeError) Error() string {
	return fmt.Sprintf("upgrade of %s removed version %s but the new version failed to install, the package is no longer installed: %v",
		e.Package, e.Previous.Version, e.Err)
}

func (e *PartialUpgradeError) Unwrap() error { return e.Err }
