// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application. The values are read
// by viper from an optional TOML file or environment variables; every key
// has a default, so the file may be absent.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Exclude     ExcludeConfig     `mapstructure:"exclude"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Volumes     VolumesConfig     `mapstructure:"volumes"`
}

// GeneralConfig stores top-level behavior switches.
type GeneralConfig struct {
	// AutoStartUsn enters watch mode automatically after a scan.
	AutoStartUsn bool `mapstructure:"auto_start_usn"`

	// MaxResults caps search results when the caller does not pass a limit.
	MaxResults int `mapstructure:"max_results"`

	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string `mapstructure:"log_level"`

	// IndexPath overrides the snapshot location.
	IndexPath string `mapstructure:"index_path"`
}

// ExcludeConfig omits paths and patterns from the index.
type ExcludeConfig struct {
	// Paths are case-insensitive path prefixes to skip.
	Paths []string `mapstructure:"paths"`

	// Patterns are glob patterns matched against names and full paths.
	Patterns []string `mapstructure:"patterns"`
}

// PerformanceConfig tunes indexing and search.
type PerformanceConfig struct {
	// CompressIndex writes compressed snapshots.
	CompressIndex bool `mapstructure:"compress_index"`

	// ParallelSearch enables the shard-parallel scan.
	ParallelSearch bool `mapstructure:"parallel_search"`
}

// VolumesConfig selects volumes explicitly.
type VolumesConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// knownKeys is the recognized key set; anything else in the file is
// reported once and ignored.
var knownKeys = map[string]bool{
	"general.auto_start_usn":      true,
	"general.max_results":         true,
	"general.log_level":           true,
	"general.index_path":          true,
	"exclude.paths":               true,
	"exclude.patterns":            true,
	"performance.compress_index":  true,
	"performance.parallel_search": true,
	"volumes.include":             true,
	"volumes.exclude":             true,
}

// Load reads configuration from path, or from the default locations when
// path is empty. GLINT_CONFIG_PATH overrides the default search when set.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("glint")
	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv("GLINT_CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "glint"))
		}
	}

	// Defaults
	v.SetDefault("general.auto_start_usn", true)
	v.SetDefault("general.max_results", 10000)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.index_path", "")
	v.SetDefault("exclude.paths", []string{})
	v.SetDefault("exclude.patterns", []string{})
	v.SetDefault("performance.compress_index", true)
	v.SetDefault("performance.parallel_search", true)
	v.SetDefault("volumes.include", []string{})
	v.SetDefault("volumes.exclude", []string{})

	v.SetEnvPrefix("GLINT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), os.IsNotExist(err):
			// The file is optional.
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	for _, key := range v.AllKeys() {
		if !knownKeys[key] {
			log.Warn().Str("key", key).Msg("ignoring unknown configuration key")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if _, ok := logLevels[cfg.General.LogLevel]; !ok {
		log.Warn().Str("log_level", cfg.General.LogLevel).Msg("unknown log level, using info")
		cfg.General.LogLevel = "info"
	}

	return &cfg, nil
}

var logLevels = map[string]bool{
	"error": true, "warn": true, "info": true, "debug": true, "trace": true,
}

// IndexPath resolves the snapshot file location: GLINT_INDEX_PATH, then
// the config value, then the platform app-data default.
func (c *Config) IndexPath() string {
	if p := os.Getenv("GLINT_INDEX_PATH"); p != "" {
		return p
	}
	if c.General.IndexPath != "" {
		return c.General.IndexPath
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "glint", "glint.idx")
}

// ShouldIndexVolume applies the include/exclude volume lists to a mount
// path such as "C:\".
func (c *Config) ShouldIndexVolume(mount string) bool {
	m := strings.ToLower(strings.TrimRight(mount, `\/`))
	for _, ex := range c.Volumes.Exclude {
		if strings.ToLower(strings.TrimRight(ex, `\/`)) == m {
			return false
		}
	}
	if len(c.Volumes.Include) == 0 {
		return true
	}
	for _, in := range c.Volumes.Include {
		if strings.ToLower(strings.TrimRight(in, `\/`)) == m {
			return true
		}
	}
	return false
}
