// Package config loads sort run settings from TOML and maps them onto backend and
// sorter options.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/Carmen-Shannon/oxy-sort/engine/sorter"
	"github.com/cogentcore/webgpu/wgpu"
	"go.uber.org/zap"
)

// FileName is the config file looked up by Find.
const FileName = "bitonic.toml"

// SearchPaths are the directories Find checks, in order.
var SearchPaths = []string{".", "etc"}

const (
	defaultBackend         = "wgpu"
	defaultPowerPreference = "high-performance"
	defaultPollInterval    = "100us"
	defaultElement         = "f32"
	defaultLogLen          = 20
	defaultMaxAttempts     = 1
)

// Config is the complete set of settings for a sort run.
type Config struct {
	LogLevel string        `toml:"log_level"`
	Backend  BackendConfig `toml:"backend"`
	Sort     SortConfig    `toml:"sort"`
	Run      RunConfig     `toml:"run"`
}

// BackendConfig selects and tunes the compute backend.
type BackendConfig struct {
	Type                 string `toml:"type"`
	ForceFallbackAdapter bool   `toml:"force_fallback_adapter"`
	PowerPreference      string `toml:"power_preference"`
	PollInterval         string `toml:"poll_interval"`
	HostWorkers          int    `toml:"host_workers"`
}

// SortConfig tunes the sorter.
type SortConfig struct {
	// GroupCapacityLog is log2 of the kernel lanes per workgroup. 0 selects
	// kernel.DefaultGroupCapacityLog, so one lane per workgroup cannot be configured.
	GroupCapacityLog uint32 `toml:"group_capacity_log"`
	MaxAttempts      int    `toml:"max_attempts"`
	Verify           bool   `toml:"verify"`
}

// RunConfig describes the generated input of a benchmark run.
type RunConfig struct {
	LogLen  uint32 `toml:"log_len"`
	Element string `toml:"element"`
	Seed    uint64 `toml:"seed"`
	Profile bool   `toml:"profile"`
}

// Default returns the configuration used when no file or flag overrides a value.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	c.Sort.Verify = true
	c.Run.Profile = true
	return c
}

// ApplyDefaults replaces every zero setting that has a default with that default.
// Booleans are left as they are.
func (c *Config) ApplyDefaults() {
	c.LogLevel = common.Coalesce(c.LogLevel, "info")
	c.Backend.Type = common.Coalesce(c.Backend.Type, defaultBackend)
	c.Backend.PowerPreference = common.Coalesce(c.Backend.PowerPreference, defaultPowerPreference)
	c.Backend.PollInterval = common.Coalesce(c.Backend.PollInterval, defaultPollInterval)
	c.Sort.GroupCapacityLog = common.Coalesce(c.Sort.GroupCapacityLog, kernel.DefaultGroupCapacityLog)
	c.Sort.MaxAttempts = common.Coalesce(c.Sort.MaxAttempts, defaultMaxAttempts)
	c.Run.LogLen = common.Coalesce(c.Run.LogLen, defaultLogLen)
	c.Run.Element = common.Coalesce(c.Run.Element, defaultElement)
}

// Load decodes a TOML file. Keys absent from the file keep their default values.
//
// Parameters:
//   - path: the TOML file to read
//
// Returns:
//   - Config: the decoded and defaulted configuration
//   - error: an error if the file cannot be decoded, has unknown keys, or fails Validate
func Load(path string) (Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config: %s has unknown keys %v", path, undecoded)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Find returns the first FileName found in SearchPaths.
//
// Returns:
//   - string: the path of the config file
//   - bool: false if no search path holds one
func Find() (string, bool) {
	for _, dir := range SearchPaths {
		p := filepath.Join(dir, FileName)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks every enumerated and bounded setting.
func (c Config) Validate() error {
	if _, err := backend.ParseBackendType(c.Backend.Type); err != nil {
		return err
	}
	if _, err := parsePowerPreference(c.Backend.PowerPreference); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Backend.PollInterval); err != nil {
		return fmt.Errorf("poll_interval: %w", err)
	}
	if _, err := common.ParseElementKind(c.Run.Element); err != nil {
		return err
	}
	if c.Sort.GroupCapacityLog > kernel.MaxGroupCapacityLog {
		return fmt.Errorf("group_capacity_log %d exceeds %d", c.Sort.GroupCapacityLog, kernel.MaxGroupCapacityLog)
	}
	if c.Sort.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Sort.MaxAttempts)
	}
	if c.Run.LogLen > 30 {
		return fmt.Errorf("log_len %d exceeds 30", c.Run.LogLen)
	}
	if c.Backend.HostWorkers < 0 {
		return fmt.Errorf("host_workers must not be negative, got %d", c.Backend.HostWorkers)
	}
	return nil
}

// BackendType returns the configured backend type.
func (c Config) BackendType() (backend.BackendType, error) {
	return backend.ParseBackendType(c.Backend.Type)
}

// ElementKind returns the configured element kind of generated input.
func (c Config) ElementKind() (common.ElementKind, error) {
	return common.ParseElementKind(c.Run.Element)
}

// BackendOptions maps the backend section onto backend builder options.
//
// Parameters:
//   - logger: the logger passed to the backend
//
// Returns:
//   - []backend.BackendBuilderOption: options for backend.NewBackend
//   - error: an error if a setting cannot be parsed
func (c Config) BackendOptions(logger *zap.Logger) ([]backend.BackendBuilderOption, error) {
	pref, err := parsePowerPreference(c.Backend.PowerPreference)
	if err != nil {
		return nil, err
	}
	poll, err := time.ParseDuration(common.Coalesce(c.Backend.PollInterval, defaultPollInterval))
	if err != nil {
		return nil, fmt.Errorf("poll_interval: %w", err)
	}
	return []backend.BackendBuilderOption{
		backend.WithLogger(logger),
		backend.WithForceFallbackAdapter(c.Backend.ForceFallbackAdapter),
		backend.WithPowerPreference(pref),
		backend.WithPollInterval(poll),
		backend.WithHostWorkers(c.Backend.HostWorkers),
	}, nil
}

// SorterOptions maps the sort section onto sorter builder options.
//
// Parameters:
//   - logger: the logger passed to the sorter
//
// Returns:
//   - []sorter.SorterBuilderOption: options for sorter.NewSorter
func (c Config) SorterOptions(logger *zap.Logger) []sorter.SorterBuilderOption {
	return []sorter.SorterBuilderOption{
		sorter.WithLogger(logger),
		sorter.WithGroupCapacityLog(c.Sort.GroupCapacityLog),
		sorter.WithMaxAttempts(c.Sort.MaxAttempts),
		sorter.WithVerify(c.Sort.Verify),
	}
}

func parsePowerPreference(s string) (wgpu.PowerPreference, error) {
	switch common.Coalesce(s, defaultPowerPreference) {
	case "high-performance", "high":
		return wgpu.PowerPreferenceHighPerformance, nil
	case "low-power", "low":
		return wgpu.PowerPreferenceLowPower, nil
	default:
		return 0, fmt.Errorf("unknown power_preference %q", s)
	}
}
