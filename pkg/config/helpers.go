package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
)

// key binds a dotted configuration key to its field.
type key struct {
	name string
	get  func(c *Config) string
	set  func(c *Config, value string) error
}

func stringKey(name string, field func(c *Config) *string) key {
	return key{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set: func(c *Config, value string) error {
			*field(c) = value
			return nil
		},
	}
}

var keys = []key{
	stringKey("data_dir", func(c *Config) *string { return &c.Settings.DataDir }),
	stringKey("cache_dir", func(c *Config) *string { return &c.Settings.CacheDir }),
	stringKey("state_dir", func(c *Config) *string { return &c.Settings.StateDir }),
	stringKey("store", func(c *Config) *string { return &c.Settings.Store }),
	{
		name: "http_timeout",
		get:  func(c *Config) string { return c.Settings.HTTPTimeout.String() },
		set: func(c *Config, value string) error {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for http_timeout: %s: %w", value, errors.ErrConfigValidation)
			}
			c.Settings.HTTPTimeout = d
			return nil
		},
	},
	{
		name: "max_concurrent",
		get:  func(c *Config) string { return strconv.Itoa(c.Settings.MaxConcurrent) },
		set: func(c *Config, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer for max_concurrent: %s: %w", value, errors.ErrConfigValidation)
			}
			c.Settings.MaxConcurrent = n
			return nil
		},
	},
	stringKey("log_level", func(c *Config) *string { return &c.Settings.LogLevel }),
	stringKey("log_format", func(c *Config) *string { return &c.Settings.LogFormat }),
	stringKey("applications_dir", func(c *Config) *string { return &c.Settings.ApplicationsDir }),
	stringKey("bin_dir", func(c *Config) *string { return &c.Settings.BinDir }),
	stringKey("hooks_dir", func(c *Config) *string { return &c.Settings.HooksDir }),
	stringKey("github.token", func(c *Config) *string { return &c.GitHub.Token }),
	stringKey("github.api_url", func(c *Config) *string { return &c.GitHub.APIURL }),
}

func lookupKey(name string) (key, error) {
	for _, k := range keys {
		if k.name == name {
			return k, nil
		}
	}
	return key{}, fmt.Errorf("%s: %w", name, errors.ErrUnknownConfigKey)
}

// Keys returns the supported configuration keys in display order.
func Keys() []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.name
	}
	return names
}

// SetValue sets a configuration value by key and validates the result. The
// configuration is left unchanged when validation fails.
func (c *Config) SetValue(name, value string) error {
	k, err := lookupKey(name)
	if err != nil {
		return err
	}
	updated := *c
	if err := k.set(&updated, value); err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	*c = updated
	return nil
}

// GetValue returns the value of a configuration key as a string.
func (c *Config) GetValue(name string) (string, error) {
	k, err := lookupKey(name)
	if err != nil {
		return "", err
	}
	return k.get(c), nil
}

// ToMap returns every configuration key with its value. The GitHub token
// is masked.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string, len(keys))
	for _, k := range keys {
		result[k.name] = k.get(c)
	}
	if result["github.token"] != "" {
		result["github.token"] = "********"
	}
	return result
}
