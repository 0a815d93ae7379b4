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

// Initialize sets up the viper configuration singleton
// Should be called once at application startup
func Initialize() error {
	v = viper.New()

	// Set config type to yaml (we only load config.yml, not config.json)
	v.SetConfigType("yaml")

	// Explicitly locate config.yml and use SetConfigFile to avoid surprises
	// Precedence: project .civic/config.yml > ~/.config/civic/config.yml > ~/.civic/config.yml
	configFileSet := false

	// 1. Walk up from CWD to find project .civic/config.yml
	//    This allows commands to work from subdirectories
	cwd, err := os.Getwd()
	if err == nil && !configFileSet {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			civicDir := filepath.Join(dir, ".civic")
			configPath := filepath.Join(civicDir, "config.yml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/civic/config.yml)
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "civic", "config.yml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.civic/config.yml)
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".civic", "config.yml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// Automatic environment variable binding
	// Environment variables take precedence over config file
	// E.g., CIVIC_JSON, CIVIC_AUTHOR, CIVIC_DB
	v.SetEnvPrefix("CIVIC")

	// Replace hyphens and dots with underscores for env var mapping
	// This allows CIVIC_SAGA_STEP_TIMEOUT to map to "saga.step-timeout"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Set defaults for all flags
	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("author", "")
	v.SetDefault("data-dir", "")

	// Record catalogue defaults. Both enums are injected into the schema
	// validator; editing them in config.yml changes what validates.
	v.SetDefault("records.types", []string{
		"bylaw", "ordinance", "policy", "proclamation", "resolution", "minutes",
	})
	v.SetDefault("records.statuses", []string{
		"draft", "proposed", "reviewed", "approved", "active", "published", "archived",
	})

	// Modules extend the base record schema for the types they claim
	v.SetDefault("modules", map[string]interface{}{
		"legal-register": map[string]interface{}{
			"record_types": []string{"bylaw", "ordinance", "policy", "proclamation", "resolution"},
		},
	})

	// Saga engine defaults
	v.SetDefault("saga.step-timeout", "60s")
	v.SetDefault("saga.timeout", "5m")
	v.SetDefault("saga.lock-timeout", "30s")
	v.SetDefault("saga.idempotency-ttl", "24h")

	// Recovery sweep defaults
	v.SetDefault("recovery.interval", "60s")
	v.SetDefault("recovery.stuck-timeout", "5m")

	// Template resolution: custom dir is searched before the base dir
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("templates.custom-dir", ".civic/templates")

	// Git configuration defaults
	v.SetDefault("git.author", "")         // Override commit author (e.g., "civic-bot <civic@example.com>")
	v.SetDefault("git.no-gpg-sign", false) // Disable GPG signing for record commits

	// Hook scripts under .civic/hooks/<event>/
	v.SetDefault("hooks.dir", "")
	v.SetDefault("hooks.timeout", "30s")

	// Daemon log rotation
	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("log.max-age-days", 28)

	// Read config file if it was found
	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): env var > config file > default
// Note: Flag overrides are handled separately in main.go since viper doesn't know about cobra flags.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}

	envKey := "CIVIC_" + strings.ToUpper(strings.ReplaceAll(strings.ReplaceAll(key, "-", "_"), ".", "_"))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}

	if v.InConfig(key) {
		return SourceConfigFile
	}

	return SourceDefault
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// GetStringMapString retrieves a map[string]string configuration value
func GetStringMapString(key string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v.GetStringMapString(key)
}

// GetRecordTypes returns the configured record type catalogue.
// Falls back to the built-in defaults when viper is not initialized.
func GetRecordTypes() []string {
	if v == nil {
		return []string{"bylaw", "ordinance", "policy", "proclamation", "resolution", "minutes"}
	}
	return v.GetStringSlice("records.types")
}

// GetRecordStatuses returns the configured record status catalogue.
func GetRecordStatuses() []string {
	if v == nil {
		return []string{"draft", "proposed", "reviewed", "approved", "active", "published", "archived"}
	}
	return v.GetStringSlice("records.statuses")
}

// Module describes a schema-extending module and the record types it claims.
type Module struct {
	Name        string
	RecordTypes []string
}

// GetModules returns the configured modules.
// Each module's schema extension applies only to the record types it lists.
func GetModules() []Module {
	if v == nil {
		return []Module{{
			Name:        "legal-register",
			RecordTypes: []string{"bylaw", "ordinance", "policy", "proclamation", "resolution"},
		}}
	}

	raw := v.GetStringMap("modules")
	modules := make([]Module, 0, len(raw))
	for name, val := range raw {
		m := Module{Name: name}
		if sub, ok := val.(map[string]interface{}); ok {
			if types, ok := sub["record_types"].([]interface{}); ok {
				for _, t := range types {
					if s, ok := t.(string); ok {
						m.RecordTypes = append(m.RecordTypes, s)
					}
				}
			}
			// Also accept a pre-converted string slice (env/Set paths)
			if types, ok := sub["record_types"].([]string); ok {
				m.RecordTypes = append(m.RecordTypes, types...)
			}
		}
		modules = append(modules, m)
	}
	return modules
}

// FindRoot walks up from startDir looking for a .civic directory.
// Returns the directory containing .civic, or an error when none is found.
func FindRoot(startDir string) (string, error) {
	dir := startDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		dir = cwd
	}

	for ; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if info, err := os.Stat(filepath.Join(dir, ".civic")); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no .civic directory found (run 'civic init' first)")
}

// GetAuthor resolves the acting user for record authorship.
// Priority chain:
//  1. flagValue (if non-empty, from --author flag)
//  2. CIVIC_AUTHOR env var / config.yml author field (via viper)
//  3. git config user.name
//  4. hostname
func GetAuthor(flagValue string) string {
	// 1. Command-line flag takes precedence
	if flagValue != "" {
		return flagValue
	}

	// 2. CIVIC_AUTHOR env var or config.yml author (viper handles both)
	if author := GetString("author"); author != "" {
		return author
	}

	// 3. git config user.name
	cmd := exec.Command("git", "config", "user.name")
	if output, err := cmd.Output(); err == nil {
		if gitUser := strings.TrimSpace(string(output)); gitUser != "" {
			return gitUser
		}
	}

	// 4. hostname
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}

	return "unknown"
}
