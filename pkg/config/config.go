// Package config loads matcher configuration from defaults, an optional YAML
// file and GPMATCH_ environment variables, in that order of increasing
// precedence, and validates the result.
//
// Example Usage:
//
//	cfg, err := config.Load("gpmatch.yaml")
//	if err != nil {
//		klog.Fatalf("Invalid config: %v", err)
//	}
//	klog.Infof("Starting with %s", cfg)
//
// Environment Variables:
//   - GPMATCH_MATCH_TIMEOUT=6s
//   - GPMATCH_MATCH_TRACE=true
//   - GPMATCH_INT_ATTRIBUTES="id,age,year"
//   - GPMATCH_DATA_DIR="./data"
//   - GPMATCH_SYNC_WRITES=false
//   - GPMATCH_CACHE_ENABLED=true
//   - GPMATCH_CACHE_SIZE=10000
//   - GPMATCH_CACHE_TTL=5m
//   - GPMATCH_EVAL_CONCURRENCY=4
//   - GPMATCH_EVAL_VERIFY=false
//   - GPMATCH_LOG_VERBOSITY=0
//   - GPMATCH_MEMORY_LIMIT=2GB
//   - GPMATCH_GC_PERCENT=100
//   - GPMATCH_POOL_ENABLED=true
//   - GPMATCH_POOL_MAX_SIZE=1MB
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/szrrizvi/arebac/pkg/attrs"
)

// Config holds all matcher configuration.
//
// Configuration is organized into logical sections:
//   - Match: search deadline and tracing
//   - Attributes: which attribute names compare as integers
//   - Storage: the live BadgerDB store
//   - Cache: the neighbourhood cache in front of the store
//   - Eval: the evaluation harness
//   - Memory: Go runtime limits and buffer pooling
//   - Logging: klog verbosity
type Config struct {
	Match      MatchConfig      `yaml:"match"`
	Attributes AttributesConfig `yaml:"attributes"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Eval       EvalConfig       `yaml:"eval"`
	Memory     MemoryConfig     `yaml:"memory"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MatchConfig holds engine settings.
type MatchConfig struct {
	// Timeout is the watchdog deadline of one check. Zero disables it.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// Trace logs every search event through klog
	Trace bool `yaml:"trace"`
}

// AttributesConfig holds the attribute typing policy.
type AttributesConfig struct {
	// IntAttributes compare numerically when both sides are integral
	IntAttributes []string `yaml:"int_attributes" validate:"dive,required"`
}

// StorageConfig holds live store settings.
type StorageConfig struct {
	// DataDir is the BadgerDB directory
	DataDir string `yaml:"data_dir" validate:"required"`
	// SyncWrites fsyncs every commit
	SyncWrites bool `yaml:"sync_writes"`
}

// CacheConfig holds neighbourhood cache settings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size" validate:"gt=0"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
}

// EvalConfig holds evaluation harness settings.
type EvalConfig struct {
	// Concurrency bounds the cases run at once
	Concurrency int `yaml:"concurrency" validate:"gte=1,lte=256"`
	// Verify cross-checks every case against the reference enumerator
	Verify bool `yaml:"verify"`
}

// MemoryConfig holds runtime memory management settings.
type MemoryConfig struct {
	// RuntimeLimitStr is the human-readable Go memory limit ("2GB", "0")
	RuntimeLimitStr string `yaml:"limit"`
	// RuntimeLimit is RuntimeLimitStr in bytes. Zero means no limit.
	RuntimeLimit int64 `yaml:"-" validate:"gte=0"`
	// GCPercent is passed to debug.SetGCPercent; -1 disables GC
	GCPercent int `yaml:"gc_percent" validate:"gte=-1"`
	// PoolEnabled turns buffer pooling on
	PoolEnabled bool `yaml:"pool_enabled"`
	// PoolMaxSizeStr is the largest pooled buffer ("1MB")
	PoolMaxSizeStr string `yaml:"pool_max_size"`
	// PoolMaxSize is PoolMaxSizeStr in bytes
	PoolMaxSize int64 `yaml:"-" validate:"gte=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Verbosity is the klog -v level
	Verbosity int `yaml:"verbosity" validate:"gte=0,lte=10"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{
		Match: MatchConfig{
			Timeout: 6 * time.Second,
		},
		Attributes: AttributesConfig{
			IntAttributes: slices.Clone(attrs.DefaultIntAttributes),
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    10000,
			TTL:     5 * time.Minute,
		},
		Eval: EvalConfig{
			Concurrency: 4,
		},
		Memory: MemoryConfig{
			RuntimeLimitStr: "0",
			GCPercent:       100,
			PoolEnabled:     true,
			PoolMaxSizeStr:  "1MB",
		},
	}
	c.resolveSizes()
	return c
}

// LoadFromEnv returns the defaults overridden by environment variables.
// It does not validate.
func LoadFromEnv() *Config {
	c := Default()
	c.applyEnv()
	return c
}

// Load reads the defaults, then path if it is non-empty, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	c.resolveSizes()
	return nil
}

func (c *Config) applyEnv() {
	c.Match.Timeout = getEnvDuration("GPMATCH_MATCH_TIMEOUT", c.Match.Timeout)
	c.Match.Trace = getEnvBool("GPMATCH_MATCH_TRACE", c.Match.Trace)

	c.Attributes.IntAttributes = getEnvStringSlice("GPMATCH_INT_ATTRIBUTES", c.Attributes.IntAttributes)

	c.Storage.DataDir = getEnv("GPMATCH_DATA_DIR", c.Storage.DataDir)
	c.Storage.SyncWrites = getEnvBool("GPMATCH_SYNC_WRITES", c.Storage.SyncWrites)

	c.Cache.Enabled = getEnvBool("GPMATCH_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Size = getEnvInt("GPMATCH_CACHE_SIZE", c.Cache.Size)
	c.Cache.TTL = getEnvDuration("GPMATCH_CACHE_TTL", c.Cache.TTL)

	c.Eval.Concurrency = getEnvInt("GPMATCH_EVAL_CONCURRENCY", c.Eval.Concurrency)
	c.Eval.Verify = getEnvBool("GPMATCH_EVAL_VERIFY", c.Eval.Verify)

	c.Memory.RuntimeLimitStr = getEnv("GPMATCH_MEMORY_LIMIT", c.Memory.RuntimeLimitStr)
	c.Memory.GCPercent = getEnvInt("GPMATCH_GC_PERCENT", c.Memory.GCPercent)
	c.Memory.PoolEnabled = getEnvBool("GPMATCH_POOL_ENABLED", c.Memory.PoolEnabled)
	c.Memory.PoolMaxSizeStr = getEnv("GPMATCH_POOL_MAX_SIZE", c.Memory.PoolMaxSizeStr)

	c.Logging.Verbosity = getEnvInt("GPMATCH_LOG_VERBOSITY", c.Logging.Verbosity)

	c.resolveSizes()
}

func (c *Config) resolveSizes() {
	c.Memory.RuntimeLimit = parseMemorySize(c.Memory.RuntimeLimitStr)
	c.Memory.PoolMaxSize = parseMemorySize(c.Memory.PoolMaxSizeStr)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid values.
//
// Returns nil if configuration is valid, or an error naming every offending
// field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Policy returns the attribute policy described by the Attributes section.
func (c *Config) Policy() *attrs.Policy {
	return attrs.NewPolicy(c.Attributes.IntAttributes)
}

// String returns a compact representation of the Config, safe for logging.
func (c *Config) String() string {
	cache := "off"
	if c.Cache.Enabled {
		cache = fmt.Sprintf("%d/%v", c.Cache.Size, c.Cache.TTL)
	}
	return fmt.Sprintf(
		"Config{Timeout: %v, IntAttributes: %d, Store: %s, Cache: %s, EvalConcurrency: %d, MemoryLimit: %s}",
		c.Match.Timeout,
		len(c.Attributes.IntAttributes),
		c.Storage.DataDir,
		cache,
		c.Eval.Concurrency,
		FormatMemorySize(c.Memory.RuntimeLimit),
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Try parsing as seconds
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		// Split by comma, trim whitespace
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited"
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// ApplyRuntimeMemory applies the runtime memory settings to the Go runtime.
// Should be called early in main() before heavy allocations.
func (c *MemoryConfig) ApplyRuntimeMemory() {
	if c.RuntimeLimit > 0 {
		debug.SetMemoryLimit(c.RuntimeLimit)
	}
	if c.GCPercent != 100 {
		debug.SetGCPercent(c.GCPercent)
	}
}
