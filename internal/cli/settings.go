package cli

import (
	"strings"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLUFFPKG"

// Keys overridable from the environment or from root flags. Each one is also
// a configuration key, except keyConfig.
const (
	keyConfig      = "config"
	keyLogLevel    = "log_level"
	keyLogFormat   = "log_format"
	keyStore       = "store"
	keyGitHubToken = "github.token"
)

var overrideKeys = []string{keyLogLevel, keyLogFormat, keyStore, keyGitHubToken}

var settings = newSettings()

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// GITHUB_TOKEN is honoured as well, the prefixed variable wins
	_ = v.BindEnv(keyGitHubToken, EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	return v
}

// BindFlags binds the persistent root flags so that flags given on the
// command line take precedence over the environment.
func BindFlags(cmd *cobra.Command) error {
	for key, flag := range map[string]string{
		keyConfig:    "config",
		keyLogLevel:  "log-level",
		keyLogFormat: "log-format",
	} {
		if err := settings.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

func getConfigPath() string {
	if path := settings.GetString(keyConfig); path != "" {
		return path
	}
	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

// loadConfig reads the configuration file and applies environment and flag
// overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, err
	}
	for _, key := range overrideKeys {
		value := settings.GetString(key)
		if value == "" {
			continue
		}
		if err := cfg.SetValue(key, value); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitLogging configures the logger from the effective configuration. An
// unreadable configuration falls back to the defaults so that the error is
// reported by the command itself.
func InitLogging() {
	level, format := config.DefaultLogLevel, config.DefaultLogFormat
	if cfg, err := loadConfig(); err == nil {
		level, format = cfg.Settings.LogLevel, cfg.Settings.LogFormat
	} else if l := settings.GetString(keyLogLevel); l != "" {
		level = l
	}
	logger.InitLogger(level, logger.OutputFormat(format))
}
