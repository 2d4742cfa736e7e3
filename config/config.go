// Package config loads bufmap settings from YAML.
//
// Fields left out of a file keep their Default values, so a file only needs
// to mention what it changes:
//
//	table:
//	  capacity: 64
//	  buckets: 128
//	memory:
//	  backend: wasm
package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/bufmap/errors"
	"github.com/wippyai/bufmap/table"
)

// Memory backends.
const (
	BackendHeap = "heap"
	BackendWasm = "wasm"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// maxFileSize bounds what Load will read.
const maxFileSize = 1 << 20

// Config is the top-level configuration.
type Config struct {
	Table  Table  `yaml:"table"`
	Memory Memory `yaml:"memory"`
	Log    Log    `yaml:"log"`
}

// Table configures the hash table.
type Table struct {
	Capacity int    `yaml:"capacity"`
	Buckets  int    `yaml:"buckets"` // 0 = Capacity
	Hash     string `yaml:"hash"`
}

// Memory configures the linear memory behind the allocator.
type Memory struct {
	Backend string `yaml:"backend"`
	Size    uint32 `yaml:"size"` // bytes; wasm rounds up to whole pages
}

// Log configures the zap logger built by NewLogger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Table: Table{
			Capacity: table.DefaultCapacity,
			Hash:     "xxhash",
		},
		Memory: Memory{
			Backend: BackendHeap,
			Size:    1 << 20,
		},
		Log: Log{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Load reads and validates a YAML file.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errors.NotFound(errors.PhaseConfig, "config file", path)
		}
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "open "+path)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}
	if len(data) > maxFileSize {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(path).
			Detail("config file larger than %d bytes", maxFileSize).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.ParseFailed("config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	if c.Table.Capacity <= 0 {
		return invalid(c.Table.Capacity, "must be positive", "table", "capacity")
	}
	if c.Table.Buckets != 0 && c.Table.Buckets < c.Table.Capacity {
		return invalid(c.Table.Buckets, "must not be less than capacity", "table", "buckets")
	}
	if _, ok := table.HasherByName(c.Table.Hash); !ok {
		return invalid(c.Table.Hash, "unknown hash, want xxhash or addrtext", "table", "hash")
	}

	switch c.Memory.Backend {
	case BackendHeap, BackendWasm:
	default:
		return invalid(c.Memory.Backend, "unknown backend, want heap or wasm", "memory", "backend")
	}
	if c.Memory.Size == 0 {
		return invalid(c.Memory.Size, "must be positive", "memory", "size")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid(c.Log.Level, err.Error(), "log", "level")
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		return invalid(c.Log.Format, "unknown format, want console or json", "log", "format")
	}
	return nil
}

// EffectiveBuckets returns the bucket count, resolving 0 to Capacity.
func (t Table) EffectiveBuckets() int {
	if t.Buckets == 0 {
		return t.Capacity
	}
	return t.Buckets
}

// Options translates the table section into table.New options.
func (t Table) Options() []table.Option {
	h, _ := table.HasherByName(t.Hash)
	return []table.Option{
		table.WithBuckets(t.EffectiveBuckets()),
		table.WithHasher(h),
	}
}

func invalid(value any, detail string, path ...string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(path...).
		Value(value).
		Detail("%s", detail).
		Build()
}
