package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/pathname"
	"gopkg.in/yaml.v3"
)

// Log verbosity as given on the command line or in config files.
// Higher is noisier.
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultFsName = "memfs"
	DefaultName   = "memfs"

	DefaultLogLvl = util.InfoLevel

	// DefaultWorkingDirectory is the initial working directory relative
	// paths are resolved from
	DefaultWorkingDirectory = "/"

	DefaultDirPerms  = 0o755
	DefaultFilePerms = 0o644

	// Uses 31 bits (2^31 - 1 = 2,147,483,647) to ensure compatibility with libfuse
	// and avoid signed integer overflow.
	DefaultMaxFH = (1 << 31) - 1

	// DefaultMaxWrite is the maximum write size per FUSE request
	DefaultMaxWrite = 1024 * 1024

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	// DefaultDirectIO determines whether to bypass the page cache for file reads
	DefaultDirectIO = true
)

// MountOptions holds the settings handed to the FUSE server on mount.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug      bool   // fuse debug logs
	AllowOther bool   // let users other than the mounting one access the tree
	FsName     string // mount's FsName
	Name       string // mount's Name
}

// Config contains runtime configuration values for the filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel

	// Normalizations applied to the spelling stored for new names
	// (none, nfc, nfd, case_fold_ascii, case_fold_unicode)
	NameDisplayNormalization []string
	// Normalizations applied to the key names are matched by
	NameCanonicalNormalization []string
	WorkingDirectory           string // Must be absolute (Default "/")

	DirPerms  uint32 // Permission bits for directories created without explicit perms (Default 0755)
	FilePerms uint32 // Permission bits for files created without explicit perms (Default 0644)

	MetricsAddr string // Address to serve prometheus metrics on; empty disables

	// NOTE: Low-level FUSE config (strongly recommend defaults unless you really know what you're doing):

	MaxFH        int     // Maximum file handle value for FUSE compatibility (Default 2147483647)
	MaxWrite     int     // Maximum write size per FUSE request (Default 1MB)
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
	DirectIO     bool    // Whether to bypass page cache for file reads (Default true)
}

// NewParser builds the path parser described by the name normalization
// settings
func (c *Config) NewParser() (*pathname.Parser, error) {
	display, err := pathname.ParseNormalizations(c.NameDisplayNormalization)
	if err != nil {
		return nil, err
	}
	canonical, err := pathname.ParseNormalizations(c.NameCanonicalNormalization)
	if err != nil {
		return nil, err
	}
	return pathname.NewParser(display, canonical)
}

func (c *Config) AttrTimeoutDuration() time.Duration {
	return time.Duration(c.AttrTimeout * float64(time.Second))
}

func (c *Config) EntryTimeoutDuration() time.Duration {
	return time.Duration(c.EntryTimeout * float64(time.Second))
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	Debug      *bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
	AllowOther *bool   `yaml:"allow_other,omitempty" json:"allow_other,omitempty"`
	FsName     *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name       *string `yaml:"name,omitempty" json:"name,omitempty"`
	// LogLvl is a verbosity from ErrorVerbose (1) to TraceVerbose (5)
	LogLvl                     *int      `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	NameDisplayNormalization   *[]string `yaml:"name_display_normalization,omitempty" json:"name_display_normalization,omitempty"`
	NameCanonicalNormalization *[]string `yaml:"name_canonical_normalization,omitempty" json:"name_canonical_normalization,omitempty"`
	WorkingDirectory           *string   `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	DirPerms                   *uint32   `yaml:"dir_perms,omitempty" json:"dir_perms,omitempty"`
	FilePerms                  *uint32   `yaml:"file_perms,omitempty" json:"file_perms,omitempty"`
	MetricsAddr                *string   `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	MaxFH                      *int      `yaml:"max_fh,omitempty" json:"max_fh,omitempty"`
	MaxWrite                   *int      `yaml:"max_write,omitempty" json:"max_write,omitempty"`
	AttrTimeout                *float64  `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout               *float64  `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	DirectIO                   *bool     `yaml:"direct_io,omitempty" json:"direct_io,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:           DefaultLogLvl,
		WorkingDirectory: DefaultWorkingDirectory,
		DirPerms:         DefaultDirPerms,
		FilePerms:        DefaultFilePerms,
		MaxFH:            DefaultMaxFH,
		MaxWrite:         DefaultMaxWrite,
		AttrTimeout:      DefaultAttrTimeout,
		EntryTimeout:     DefaultEntryTimeout,
		DirectIO:         DefaultDirectIO,
	}
}

// NewConfig returns the defaults with override applied; override may be nil
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.AllowOther != nil {
		c.AllowOther = *override.AllowOther
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.LogLvl != nil {
		// verbosity counts up while internal levels count down
		v := min(max(*override.LogLvl, ErrorVerbose), TraceVerbose)
		c.LogLvl = TraceVerbose - v
	}
	if override.NameDisplayNormalization != nil {
		c.NameDisplayNormalization = append([]string(nil), *override.NameDisplayNormalization...)
	}
	if override.NameCanonicalNormalization != nil {
		c.NameCanonicalNormalization = append([]string(nil), *override.NameCanonicalNormalization...)
	}
	if override.WorkingDirectory != nil {
		c.WorkingDirectory = *override.WorkingDirectory
	}
	if override.DirPerms != nil {
		c.DirPerms = *override.DirPerms
	}
	if override.FilePerms != nil {
		c.FilePerms = *override.FilePerms
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
	if override.MaxFH != nil {
		c.MaxFH = *override.MaxFH
	}
	if override.MaxWrite != nil {
		c.MaxWrite = *override.MaxWrite
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.DirectIO != nil {
		c.DirectIO = *override.DirectIO
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
