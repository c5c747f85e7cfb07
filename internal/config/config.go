package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LINEAGE_WORKERS=8.
const EnvPrefix = "lineage"

// Config holds application configuration.
type Config struct {
	// LogBase is the logarithm base applied to persistence sums.
	LogBase float64 `json:"log_base,omitempty" mapstructure:"log_base" validate:"gt=0,ne=1"`

	// SimilarityThreshold is the ratio a changed line must exceed to keep the
	// origins of its characters.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" mapstructure:"similarity_threshold" validate:"gte=0,lt=1"`

	// Workers bounds how many files are analyzed at once.
	Workers int `json:"workers,omitempty" mapstructure:"workers" validate:"gte=1"`

	// MemoryHighWater is the system memory usage percentage above which no new
	// file is started until usage drops.
	MemoryHighWater float64 `json:"memory_high_water,omitempty" mapstructure:"memory_high_water" validate:"gt=0,lte=100"`

	// MemoryPollMillis is how often memory usage is checked while waiting.
	MemoryPollMillis int `json:"memory_poll_millis,omitempty" mapstructure:"memory_poll_millis" validate:"gte=10"`

	// SkipRevisionScores disables the per-revision ownership snapshots. Only
	// the final snapshot of each file is stored.
	SkipRevisionScores bool `json:"skip_revision_scores,omitempty" mapstructure:"skip_revision_scores"`

	// ExcludeExtensions lists file extensions that are never analyzed. Lists
	// from each config layer accumulate; an entry written "!ext" removes ext
	// added by an earlier layer, e.g. "!svg" re-enables a default.
	ExcludeExtensions []string `json:"exclude_extensions,omitempty" mapstructure:"exclude_extensions"`

	// AllowedPaths is an allowlist of directories for export operations.
	// Paths outside ~/.lineage/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty" mapstructure:"allowed_paths"`

	// AllowUnsafePaths disables directory restrictions for export.
	// Symlink checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" mapstructure:"allow_unsafe_paths"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" mapstructure:"db_max_open_conns" validate:"gte=0"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" mapstructure:"db_max_idle_conns" validate:"gte=0"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" mapstructure:"disabled_tools"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultExcludeExtensions are the binary formats skipped unless configured
// otherwise.
var DefaultExcludeExtensions = []string{"png", "bmp", "dll", "jpg", "jpeg", "exe", "ttf", "ico", "icns", "svg", "ogg"}

// envKeys are the keys that can be overridden from the environment.
var envKeys = []string{
	"log_base",
	"similarity_threshold",
	"workers",
	"memory_high_water",
	"memory_poll_millis",
	"skip_revision_scores",
	"exclude_extensions",
	"allowed_paths",
	"allow_unsafe_paths",
	"db_max_open_conns",
	"db_max_idle_conns",
	"disabled_tools",
	"log_level",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogBase:             10,
		SimilarityThreshold: 0.6,
		Workers:             runtime.NumCPU(),
		MemoryHighWater:     80,
		MemoryPollMillis:    500,
		ExcludeExtensions:   append([]string(nil), DefaultExcludeExtensions...),
		LogLevel:            "info",
	}
}

// DefaultBaseDir returns ~/.lineage.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lineage"), nil
}

// Load loads configuration from baseDir/config.json, then applies
// LINEAGE_* environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lineage.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return finish(Merge(DefaultConfig(), cfg))
}

// LoadWithRepo loads configuration from both global (~/.lineage) and repo (.lineage) directories.
// Repo config is found by walking upward from startDir to find the nearest .lineage/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo, then environment
	return finish(Merge(Merge(DefaultConfig(), global), repo))
}

// FindRepoConfig walks upward from startDir to find the nearest .lineage/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".lineage", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Validate checks value ranges.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// finish applies environment overrides and validates the result.
func finish(cfg *Config) (*Config, error) {
	env, err := loadEnv()
	if err != nil {
		return nil, err
	}
	cfg = Merge(cfg, env)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}
	return cfg, nil
}

// loadEnv reads LINEAGE_* variables into a zero-valued config. List values
// are comma separated.
func loadEnv() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.LogBase = overlay.LogBase
	if result.LogBase == 0 {
		result.LogBase = base.LogBase
	}

	result.SimilarityThreshold = overlay.SimilarityThreshold
	if result.SimilarityThreshold == 0 {
		result.SimilarityThreshold = base.SimilarityThreshold
	}

	result.Workers = overlay.Workers
	if result.Workers == 0 {
		result.Workers = base.Workers
	}

	result.MemoryHighWater = overlay.MemoryHighWater
	if result.MemoryHighWater == 0 {
		result.MemoryHighWater = base.MemoryHighWater
	}

	result.MemoryPollMillis = overlay.MemoryPollMillis
	if result.MemoryPollMillis == 0 {
		result.MemoryPollMillis = base.MemoryPollMillis
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.LogLevel = strings.ToLower(strings.TrimSpace(overlay.LogLevel))
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.SkipRevisionScores = base.SkipRevisionScores || overlay.SkipRevisionScores

	// Arrays: merge and deduplicate
	result.ExcludeExtensions = mergeExtensions(base.ExcludeExtensions, overlay.ExcludeExtensions)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeExtensions combines extension lists, case-insensitively and without
// leading dots. A "!ext" entry removes ext from what came before it.
func mergeExtensions(a, b []string) []string {
	result := make([]string, 0, len(a)+len(b))
	index := func(ext string) int {
		for i, e := range result {
			if strings.EqualFold(e, ext) {
				return i
			}
		}
		return -1
	}

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			negate := strings.HasPrefix(s, "!")
			s = strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(s, "!")), ".")
			if s == "" {
				continue
			}
			i := index(s)
			switch {
			case negate && i >= 0:
				result = append(result[:i], result[i+1:]...)
			case !negate && i < 0:
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
