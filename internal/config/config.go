package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"tidy-go/internal/hash"
)

const (
	TraversalSequential = "sequential"
	TraversalParallel   = "parallel"

	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	Skip            []string `toml:"skip" yaml:"skip"`
	Workers         int      `toml:"workers" yaml:"workers"`
	Algorithm       string   `toml:"algorithm" yaml:"algorithm"`
	Traversal       string   `toml:"traversal" yaml:"traversal"`
	Format          string   `toml:"format" yaml:"format"`
	ContinueOnError bool     `toml:"continue_on_error" yaml:"continue_on_error"`
	// MinSize hides duplicate groups whose files are smaller, e.g. "4KiB".
	MinSize    string `toml:"min_size" yaml:"min_size"`
	OutputFile string `toml:"output_file" yaml:"output_file"`
}

func DefaultConfig() *Config {
	return &Config{
		Skip:      []string{},
		Workers:   runtime.NumCPU() * 2,
		Algorithm: string(hash.DefaultAlgorithm),
		Traversal: TraversalSequential,
		Format:    FormatText,
		MinSize:   "0B",
	}
}

// LoadConfig reads a TOML or YAML config file (chosen by extension) on top
// of DefaultConfig. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	}

	// Initialize Skip slice if nil (for empty configs)
	if cfg.Skip == nil {
		cfg.Skip = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks enumerated values and normalizes their case.
func (c *Config) Validate() error {
	algo, err := hash.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return err
	}
	c.Algorithm = string(algo)

	c.Traversal = strings.ToLower(c.Traversal)
	if c.Traversal == "" {
		c.Traversal = TraversalSequential
	}
	if !slices.Contains([]string{TraversalSequential, TraversalParallel}, c.Traversal) {
		return fmt.Errorf("invalid traversal %q: must be %s or %s", c.Traversal, TraversalSequential, TraversalParallel)
	}

	c.Format = strings.ToLower(c.Format)
	if c.Format == "" {
		c.Format = FormatText
	}
	if !slices.Contains([]string{FormatText, FormatJSON}, c.Format) {
		return fmt.Errorf("invalid output format %q: must be %s or %s", c.Format, FormatText, FormatJSON)
	}

	if _, err := c.MinSizeBytes(); err != nil {
		return err
	}

	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() * 2
	}

	return nil
}

// MinSizeBytes parses MinSize. An empty value means no minimum.
func (c *Config) MinSizeBytes() (int64, error) {
	if strings.TrimSpace(c.MinSize) == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(c.MinSize)
	if err != nil {
		return 0, fmt.Errorf("invalid min_size %q: %w", c.MinSize, err)
	}
	return int64(size), nil
}

// HashAlgorithm returns the validated fingerprint algorithm.
func (c *Config) HashAlgorithm() hash.Algorithm {
	return hash.Algorithm(c.Algorithm)
}
