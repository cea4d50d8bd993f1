// Package config loads cpctl's configuration through a layered viper
// setup: a project .cfgrepo/config.yaml, falling back to a user config
// directory, then defaults — overridable at every layer by CFGREPO_
// environment variables. The layering and override-reporting shape
// follows the wider codebase's own config package; the keys and
// defaults are cfgrepo's own.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Call once at
// startup before any Get* function is used.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD to find a project .cfgrepo/config.yaml, so
	// cpctl works the same from any subdirectory of a checkout.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".cfgrepo", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/cfgrepo/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "cfgrepo", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory fallback (~/.cfgrepo/config.yaml).
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".cfgrepo", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("CFGREPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("backend", "memory") // memory | sqlite | git
	v.SetDefault("db", ".cfgrepo/store.db")
	v.SetDefault("branch", "master")
	v.SetDefault("actor", "")
	v.SetDefault("lock-timeout", "30s")

	v.SetDefault("git.path", ".cfgrepo/repo")
	v.SetDefault("git.remote", "")
	v.SetDefault("git.no-gpg-sign", false)

	v.SetDefault("log.file", ".cfgrepo/cpctl.log")
	v.SetDefault("log.verbose", false)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// ConfigSource is where a configuration value came from.
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// ConfigOverride is a detected configuration override, surfaced to the
// operator in verbose mode so a surprising effective value can be
// traced back to its source.
type ConfigOverride struct {
	Key            string
	EffectiveValue interface{}
	OverriddenBy   ConfigSource
	OriginalSource ConfigSource
}

// GetValueSource reports where key's effective value came from.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	envKey := "CFGREPO_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// LogOverride prints a one-line explanation of a detected override.
// Callers gate this on verbose mode.
func LogOverride(override ConfigOverride) {
	fmt.Fprintf(os.Stderr, "config: %s overridden by %s (effective: %v)\n",
		override.Key, override.OverriddenBy, override.EffectiveValue)
}

func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// Get returns key's effective value with no type conversion, for
// diagnostics that don't know the value's static type ahead of time.
func Get(key string) interface{} {
	if v == nil {
		return nil
	}
	return v.Get(key)
}

func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetIdentity resolves the actor attributed to commits and merges.
// Priority: explicit flag value, CFGREPO_ACTOR / config.yaml actor,
// git config user.name, hostname.
func GetIdentity(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if actor := GetString("actor"); actor != "" {
		return actor
	}
	if out, err := exec.Command("git", "config", "user.name").Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "unknown"
}
