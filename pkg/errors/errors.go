// Package errors defines the failure taxonomy shared by the fluffpkg packages.
// Errors are plain sentinel values created with fmt.Errorf and are meant to be
// wrapped with %w and matched with errors.Is at the CLI boundary.
package errors

import "fmt"

// Lifecycle precondition errors.
var (
	ErrAlreadyInstalled   = fmt.Errorf("package is already installed")
	ErrAlreadyNewest      = fmt.Errorf("package is already newest")
	ErrNoCandidate        = fmt.Errorf("no installation candidate found")
	ErrMultipleCandidates = fmt.Errorf("multiple candidates found")
	ErrSpecificVersion    = fmt.Errorf("package was installed as a specific version, use --force to override")
	ErrNotInstalled       = fmt.Errorf("package is not installed")
	ErrNotSupported       = fmt.Errorf("operation not supported by module")
	ErrUnknownModule      = fmt.Errorf("unknown module")
)

// Record store errors.
var (
	ErrAlreadySourced       = fmt.Errorf("package is already sourced")
	ErrNotSourced           = fmt.Errorf("package is not sourced")
	ErrStillInstalled       = fmt.Errorf("package is still installed")
	ErrSourceNotFound       = fmt.Errorf("source not found")
	ErrSourceAlreadyExists  = fmt.Errorf("source is already included, update it instead")
	ErrAttributeNotAllowed  = fmt.Errorf("attribute cannot be modified")
	ErrInvalidSource        = fmt.Errorf("invalid source")
	ErrUnsupportedStoreKind = fmt.Errorf("unsupported store kind")
)

// Grammar and registry errors.
var (
	ErrUnknownCommand  = fmt.Errorf("unknown command")
	ErrUsage           = fmt.Errorf("invalid usage")
	ErrInvalidGrammar  = fmt.Errorf("invalid command grammar")
	ErrCommandConflict = fmt.Errorf("command name conflict")
	ErrModuleExists    = fmt.Errorf("module already registered")
)

// ErrInternal marks a programming-contract violation. It is always surfaced.
var ErrInternal = fmt.Errorf("internal error")

// ErrBackend wraps failures reported by a backend module or an external tool.
var ErrBackend = fmt.Errorf("module error")

// Config errors.
var (
	ErrEmptyConfigPath      = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath    = fmt.Errorf("invalid config file path")
	ErrConfigParse          = fmt.Errorf("failed to parse config")
	ErrConfigValidation     = fmt.Errorf("invalid configuration")
	ErrConfigEncode         = fmt.Errorf("failed to encode config")
	ErrConfigDirectory      = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate     = fmt.Errorf("failed to create config file")
	ErrConfigFileExists     = fmt.Errorf("configuration file already exists (use --force to overwrite)")
	ErrConfigFileRename     = fmt.Errorf("failed to rename temporary config file")
	ErrConfigMarshal        = fmt.Errorf("failed to marshal config to YAML")
	ErrHTTPTimeoutNegative  = fmt.Errorf("http_timeout cannot be negative")
	ErrMaxConcurrentInvalid = fmt.Errorf("max_concurrent must be at least 1")
	ErrInvalidLogLevel      = fmt.Errorf("invalid log level")
	ErrInvalidLogFormat     = fmt.Errorf("invalid log format")
	ErrUnknownConfigKey     = fmt.Errorf("unknown configuration key")
	ErrInvalidBoolValue     = fmt.Errorf("invalid boolean value")
)

// Filesystem and transfer errors.
var (
	ErrInvalidPath      = fmt.Errorf("invalid path")
	ErrFileHashMismatch = fmt.Errorf("file hash mismatch")
	ErrDownloadFailed   = fmt.Errorf("download failed")
)

// Remote API and package payload errors.
var (
	ErrAPIRequest      = fmt.Errorf("API request failed")
	ErrNoAsset         = fmt.Errorf("no matching release asset")
	ErrAmbiguousAsset  = fmt.Errorf("several release assets match")
	ErrVersionNotFound = fmt.Errorf("version not found")
	ErrCommandFailed   = fmt.Errorf("external command failed")
)

// Hook errors.
var (
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
	ErrHookLoad      = fmt.Errorf("failed to load hook")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ErrAlreadyInstalledWithName returns ErrAlreadyInstalled annotated with the package name.
func ErrAlreadyInstalledWithName(pkg string) error {
	return fmt.Errorf("package '%s': %w", pkg, ErrAlreadyInstalled)
}

// ErrAlreadyNewestWithName returns ErrAlreadyNewest annotated with the package name.
func ErrAlreadyNewestWithName(pkg, version string) error {
	return fmt.Errorf("package '%s' (%s): %w", pkg, version, ErrAlreadyNewest)
}

// ErrNoCandidateWithName returns ErrNoCandidate annotated with the query.
func ErrNoCandidateWithName(query string) error {
	return fmt.Errorf("%w for '%s'", ErrNoCandidate, query)
}

// ErrNotInstalledWithName returns ErrNotInstalled annotated with the package name.
func ErrNotInstalledWithName(pkg string) error {
	return fmt.Errorf("package '%s': %w", pkg, ErrNotInstalled)
}

// ErrAlreadySourcedWithName returns ErrAlreadySourced annotated with the package name.
func ErrAlreadySourcedWithName(pkg string) error {
	return fmt.Errorf("package '%s': %w", pkg, ErrAlreadySourced)
}

// ErrNotSourcedWithName returns ErrNotSourced annotated with the package name.
func ErrNotSourcedWithName(pkg string) error {
	return fmt.Errorf("package '%s': %w", pkg, ErrNotSourced)
}

// ErrStillInstalledWithName returns ErrStillInstalled annotated with the package name.
func ErrStillInstalledWithName(pkg string) error {
	return fmt.Errorf("package '%s': %w", pkg, ErrStillInstalled)
}

// ErrSourceNotFoundWithLocation returns ErrSourceNotFound annotated with the source location.
func ErrSourceNotFoundWithLocation(location string) error {
	return fmt.Errorf("%w: %s", ErrSourceNotFound, location)
}

// ErrNotSupportedWithDetails names the module and the missing capability.
func ErrNotSupportedWithDetails(module, capability string) error {
	return fmt.Errorf("module '%s' does not support %s: %w", module, capability, ErrNotSupported)
}

// ErrUnknownModuleWithName returns ErrUnknownModule annotated with the module name.
func ErrUnknownModuleWithName(module string) error {
	return fmt.Errorf("%w: %s", ErrUnknownModule, module)
}

// ErrInvalidLogLevelWithDetails lists the accepted log levels.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("%w: '%s', must be one of: debug, info, warn, error", ErrInvalidLogLevel, level)
}

// ErrInvalidLogFormatWithDetails lists the accepted log formats.
func ErrInvalidLogFormatWithDetails(format string) error {
	return fmt.Errorf("%w: '%s', must be one of: text, json", ErrInvalidLogFormat, format)
}

// ErrUnsupportedStoreKindWithDetails lists the accepted store kinds.
func ErrUnsupportedStoreKindWithDetails(kind string) error {
	return fmt.Errorf("%w: '%s', must be one of: json, sqlite", ErrUnsupportedStoreKind, kind)
}

// Internalf builds an ErrInternal with a formatted description.
func Internalf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
