// Package config loads, validates and saves the fluffpkg configuration file.
// Defaults follow the XDG base directory layout.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
	"github.com/glorpus-work/fluffpkg/pkg/store"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Settings Settings     `yaml:"settings"`
	GitHub   GitHubConfig `yaml:"github"`
}

// Settings represents general application settings.
type Settings struct {
	// Installed package payloads
	DataDir string `yaml:"data_dir,omitempty"`
	// Downloads and fetched source files
	CacheDir string `yaml:"cache_dir,omitempty"`
	// Record store location
	StateDir string `yaml:"state_dir,omitempty"`
	// Record store engine: json or sqlite
	Store string `yaml:"store"`

	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ApplicationsDir string `yaml:"applications_dir,omitempty"`
	BinDir          string `yaml:"bin_dir,omitempty"`
	HooksDir        string `yaml:"hooks_dir,omitempty"`
}

// GitHubConfig holds the settings of the GitHub release client.
type GitHubConfig struct {
	Token  string `yaml:"token,omitempty"`
	APIURL string `yaml:"api_url,omitempty"`
}

// Default configuration values.
const (
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultMaxConcurrent = 4
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultGitHubAPIURL  = "https://api.github.com"

	// FileName is the name of the configuration file inside the config dir.
	FileName = "config.yaml"

	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		Settings: Settings{
			Store:         store.KindJSON,
			HTTPTimeout:   DefaultHTTPTimeout,
			MaxConcurrent: DefaultMaxConcurrent,
			LogLevel:      DefaultLogLevel,
			LogFormat:     DefaultLogFormat,
		},
		GitHub: GitHubConfig{APIURL: DefaultGitHubAPIURL},
	}
	for _, d := range []struct {
		dst *string
		fn  func() (string, error)
	}{
		{&cfg.Settings.DataDir, fsutil.GetDataDir},
		{&cfg.Settings.CacheDir, fsutil.GetCacheDir},
		{&cfg.Settings.StateDir, fsutil.GetStateDir},
		{&cfg.Settings.ApplicationsDir, fsutil.GetApplicationsDir},
		{&cfg.Settings.BinDir, fsutil.GetBinDir},
		{&cfg.Settings.HooksDir, fsutil.GetHooksDir},
	} {
		if dir, err := d.fn(); err == nil {
			*d.dst = dir
		}
	}
	return cfg
}

// GetDefaultConfigPath returns $XDG_CONFIG_HOME/fluffpkg/config.yaml.
func GetDefaultConfigPath() (string, error) {
	dir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user config directory")
	}
	return filepath.Join(dir, FileName), nil
}

// LoadConfig loads configuration from a file. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	return &config, nil
}

// SaveConfig writes the configuration atomically to path.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	// the file may hold a GitHub token
	if err := fsutil.WriteFileAtomic(absPath, data, fsutil.FileModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML encodes the configuration as YAML.
func (c *Config) ToYAML() ([]byte, error) {
	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(YAMLIndent)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return []byte(sb.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	s := c.Settings
	if s.HTTPTimeout < 0 {
		return errors.ErrHTTPTimeoutNegative
	}
	if s.MaxConcurrent < 1 {
		return errors.ErrMaxConcurrentInvalid
	}
	switch s.Store {
	case store.KindJSON, store.KindSQLite:
	default:
		return errors.ErrUnsupportedStoreKindWithDetails(s.Store)
	}
	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return errors.ErrInvalidLogFormatWithDetails(s.LogFormat)
	}
	for _, dir := range []string{s.DataDir, s.CacheDir, s.StateDir, s.ApplicationsDir, s.BinDir, s.HooksDir} {
		if dir != "" && !filepath.IsAbs(dir) {
			return errors.Wrapf(errors.ErrInvalidPath, "directory must be absolute: %s", dir)
		}
	}
	return nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	s, d := &c.Settings, defaults.Settings

	setIfEmpty(&s.DataDir, d.DataDir)
	setIfEmpty(&s.CacheDir, d.CacheDir)
	setIfEmpty(&s.StateDir, d.StateDir)
	setIfEmpty(&s.Store, d.Store)
	setIfEmpty(&s.LogLevel, d.LogLevel)
	setIfEmpty(&s.LogFormat, d.LogFormat)
	setIfEmpty(&s.ApplicationsDir, d.ApplicationsDir)
	setIfEmpty(&s.BinDir, d.BinDir)
	setIfEmpty(&s.HooksDir, d.HooksDir)
	setIfEmpty(&c.GitHub.APIURL, defaults.GitHub.APIURL)

	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = d.HTTPTimeout
	}
	if s.MaxConcurrent == 0 {
		s.MaxConcurrent = d.MaxConcurrent
	}
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// PackagesDir is where module payloads (AppImages, extracted archives) live.
func (c *Config) PackagesDir() string {
	return filepath.Join(c.Settings.DataDir, "packages")
}

// DownloadDir is where downloaded package files are cached.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.Settings.CacheDir, "downloads")
}

// SourcesDir is where fetched remote source files are cached.
func (c *Config) SourcesDir() string {
	return filepath.Join(c.Settings.CacheDir, "sources")
}
