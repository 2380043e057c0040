// Package config loads tracer settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zboralski/lktrace/internal/payload"
	"github.com/zboralski/lktrace/internal/sysno"
	"gopkg.in/yaml.v3"
)

// ErrUnknownSyscall is returned when the allow-list names a syscall the
// table does not know.
var ErrUnknownSyscall = errors.New("unknown syscall")

// Config holds every tunable of a tracing session.
type Config struct {
	Arch string `yaml:"arch"`

	StringCapacity  int    `yaml:"string_capacity"`
	MaxHeapPayload  uint64 `yaml:"max_heap_payload"`
	MaxArrayEntries int    `yaml:"max_array_entries"`

	// Syscalls restricts tracing to these names. Empty traces everything.
	Syscalls []string `yaml:"syscalls"`

	Output   string `yaml:"output"`
	Compress bool   `yaml:"compress"`
	Debug    bool   `yaml:"debug"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Arch:            "riscv64",
		StringCapacity:  payload.DefaultStringCapacity,
		MaxHeapPayload:  payload.DefaultMaxHeapPayload,
		MaxArrayEntries: payload.DefaultMaxArrayEntries,
		Output:          "lktrace.out",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays YAML data onto c and validates the result.
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return c.Validate()
}

// Validate checks ranges and the architecture.
func (c *Config) Validate() error {
	if _, err := sysno.ForArch(c.Arch); err != nil {
		return err
	}
	if c.StringCapacity < 2 {
		return fmt.Errorf("string_capacity %d: must be at least 2", c.StringCapacity)
	}
	if c.MaxHeapPayload == 0 {
		return fmt.Errorf("max_heap_payload must be positive")
	}
	if c.MaxArrayEntries <= 0 {
		return fmt.Errorf("max_array_entries %d: must be positive", c.MaxArrayEntries)
	}
	return nil
}

// SyscallNumbers resolves the allow-list. Entries may be names or decimal
// numbers.
func (c *Config) SyscallNumbers() ([]uint64, error) {
	if len(c.Syscalls) == 0 {
		return nil, nil
	}
	tbl, err := sysno.ForArch(c.Arch)
	if err != nil {
		return nil, err
	}

	out := make([]uint64, 0, len(c.Syscalls))
	var bad []string
	for _, name := range c.Syscalls {
		name = strings.TrimSpace(name)
		if nr, ok := tbl.Lookup(name); ok {
			out = append(out, nr)
			continue
		}
		if nr, err := strconv.ParseUint(name, 10, 64); err == nil && nr < sysno.MaxSyscall {
			out = append(out, nr)
			continue
		}
		bad = append(bad, name)
	}
	if len(bad) > 0 {
		return out, fmt.Errorf("%w: %s", ErrUnknownSyscall, strings.Join(bad, ", "))
	}
	return out, nil
}

// Apply configures an extractor with the payload limits.
func (c *Config) Apply(x *payload.Extractor) {
	x.StringCapacity = c.StringCapacity
	x.MaxHeapPayload = c.MaxHeapPayload
	x.MaxArrayEntries = c.MaxArrayEntries
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
