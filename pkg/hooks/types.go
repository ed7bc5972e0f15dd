// Package hooks runs user-provided tengo scripts around package
// installation and removal.
package hooks

import "slices"

// HookType names the point in the lifecycle a script runs at.
type HookType string

// Supported hook types.
const (
	PreInstall  HookType = "pre-install"
	PostInstall HookType = "post-install"
	PreRemove   HookType = "pre-remove"
	PostRemove  HookType = "post-remove"
)

// ScriptExtension is the file extension of hook scripts.
const ScriptExtension = ".tengo"

// AllTypes lists every supported hook type.
var AllTypes = []HookType{PreInstall, PostInstall, PreRemove, PostRemove}

// Valid reports whether t is a supported hook type.
func (t HookType) Valid() bool {
	return slices.Contains(AllTypes, t)
}
