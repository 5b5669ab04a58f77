// Package appconfig loads the bridge process configuration from a TOML
// file and EXTBRIDGE_ environment variables.
//
// User settings are not configured here; they live in the settings file
// that internal/configuration loads and watches.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/extbridge/internal/logx"
)

// EnvPrefix prefixes every environment override, e.g. EXTBRIDGE_LOG_LEVEL.
const EnvPrefix = "EXTBRIDGE"

// Config is the process configuration.
type Config struct {
	// Home holds derived paths that are not set explicitly.
	Home string `mapstructure:"home"`

	SettingsPath  string `mapstructure:"settings_path"`
	ExtensionsDir string `mapstructure:"extensions_dir"`
	StatePath     string `mapstructure:"state_path"`

	LogLevel      string `mapstructure:"log_level"`
	LogStructured bool   `mapstructure:"log_structured"`

	Host      HostConfig      `mapstructure:"host"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type HostConfig struct {
	// Command starts the extension host. Empty means this executable's
	// own exthost subcommand.
	Command []string `mapstructure:"command"`

	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`
}

type TelemetryConfig struct {
	Product string `mapstructure:"product"`
	// StoreLimit bounds the persisted events; zero disables the store.
	StoreLimit int  `mapstructure:"store_limit"`
	Log        bool `mapstructure:"log"`
}

// DefaultHome returns the per-user configuration directory.
func DefaultHome() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appconfig: locate config dir: %w", err)
	}
	return filepath.Join(dir, "extbridge"), nil
}

// DefaultConfigPath returns Home/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := DefaultHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "config.toml"), nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("home", home)
	v.SetDefault("settings_path", "")
	v.SetDefault("extensions_dir", "")
	v.SetDefault("state_path", "")
	v.SetDefault("log_level", logx.LevelInfo)
	v.SetDefault("log_structured", false)
	v.SetDefault("host.command", []string{})
	v.SetDefault("host.call_timeout", 30*time.Second)
	v.SetDefault("host.settle_timeout", 5*time.Second)
	v.SetDefault("telemetry.product", "extbridge")
	v.SetDefault("telemetry.store_limit", 1000)
	v.SetDefault("telemetry.log", false)
}

// Load reads the configuration at path. An empty path means
// DefaultConfigPath; a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	home, err := DefaultHome()
	if err != nil {
		home = ".extbridge"
	}
	if path == "" {
		path = filepath.Join(home, "config.toml")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("appconfig: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("appconfig: decode %s: %w", path, err)
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths() {
	c.Home = expandPath(c.Home)
	derive := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(c.Home, name)
			return
		}
		*p = expandPath(*p)
	}
	derive(&c.SettingsPath, "settings.toml")
	derive(&c.ExtensionsDir, "extensions")
	derive(&c.StatePath, "state.db")
}

func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks values that decode but make no sense.
func (c Config) Validate() error {
	var errs []error
	if !logx.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Host.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("host.call_timeout must not be negative"))
	}
	if c.Host.SettleTimeout < 0 {
		errs = append(errs, fmt.Errorf("host.settle_timeout must not be negative"))
	}
	if c.Telemetry.StoreLimit < 0 {
		errs = append(errs, fmt.Errorf("telemetry.store_limit must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("appconfig: invalid configuration")
