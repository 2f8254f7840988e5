package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	textFormat = "text"
	yamlFormat = "yaml"
)

// Config holds the defaults that command line flags override.
type Config struct {
	Format           string `yaml:"format"`
	Demangle         bool   `yaml:"demangle"`
	DisassembleLimit int    `yaml:"disassemble_limit"`
	Prompt           string `yaml:"prompt"`

	// Process memory read buffer size.  Zero disables buffering.
	ReadBufferSize int `yaml:"read_buffer_size"`
}

func DefaultConfig() Config {
	return Config{
		Format:           textFormat,
		Demangle:         true,
		DisassembleLimit: 16,
		Prompt:           "elfinfo > ",
		ReadBufferSize:   64 * 1024,
	}
}

func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config, err := ParseConfig(content)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// ParseConfig decodes a yaml config over the defaults.  Unknown keys are
// rejected.
func ParseConfig(content []byte) (Config, error) {
	config := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	err := decoder.Decode(&config)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	return config, config.Validate()
}

func (config Config) Validate() error {
	switch config.Format {
	case textFormat, yamlFormat:
	default:
		return fmt.Errorf("unknown output format: %q", config.Format)
	}

	if config.DisassembleLimit < 1 {
		return fmt.Errorf(
			"invalid disassemble limit: %d",
			config.DisassembleLimit)
	}

	if config.ReadBufferSize < 0 {
		return fmt.Errorf("invalid read buffer size: %d", config.ReadBufferSize)
	}

	return nil
}
