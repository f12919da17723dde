// Package config loads prevail settings from a YAML file, PREVAIL_*
// environment variables and command-line flags, in that order of
// precedence from lowest to highest, and validates the result against an
// embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PREVAIL_"

// Config is the full configuration of a prevalent system.
type Config struct {
	DataDir    string         `yaml:"data_dir"`
	Serializer string         `yaml:"serializer"`
	Snapshot   SnapshotConfig `yaml:"snapshot"`
	Search     SearchConfig   `yaml:"search"`
	Log        LogConfig      `yaml:"log"`
}

// SnapshotConfig controls periodic snapshots.
type SnapshotConfig struct {
	Interval time.Duration `yaml:"interval"`
	Retain   int           `yaml:"retain"`
}

// SearchConfig controls the full-text index.
type SearchConfig struct {
	Enabled   bool `yaml:"enabled"`
	BatchSize int  `yaml:"batch_size"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:    "/var/data/prevail",
		Serializer: "msgpack",
		Snapshot:   SnapshotConfig{Interval: 24 * time.Hour, Retain: 3},
		Search:     SearchConfig{Enabled: true, BatchSize: 20},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their current
// values; unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("DATA_DIR", &cfg.DataDir)
	str("SERIALIZER", &cfg.Serializer)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup(EnvPrefix + "SNAPSHOT_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSNAPSHOT_INTERVAL: %w", EnvPrefix, err)
		}
		cfg.Snapshot.Interval = d
	}
	ints := map[string]*int{
		"SNAPSHOT_RETAIN":   &cfg.Snapshot.Retain,
		"SEARCH_BATCH_SIZE": &cfg.Search.BatchSize,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "SEARCH_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSEARCH_ENABLED: %w", EnvPrefix, err)
		}
		cfg.Search.Enabled = b
	}
	return nil
}

// Validate checks cfg against the embedded CUE schema.
func (c Config) Validate() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Snapshot.Interval <= 0 {
		return fmt.Errorf("invalid config: snapshot.interval must be positive")
	}
	return nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
