// Package feeders reads bootstrap documents from YAML, TOML and JSON files
// and from environment variables, on top of github.com/golobby/config.
package feeders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golobby/config/v3"
)

// Feeder aliases the golobby feeder interface.
type Feeder = config.Feeder

// KeyFeeder is a Feeder that can also feed a single top-level key of its
// source into target.
type KeyFeeder interface {
	Feeder
	FeedKey(key string, target any) error
}

// ForFile picks the file feeder matching the extension of path.
func ForFile(path string) (KeyFeeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// feedKey reads the whole source through f into a map, then remarshals the
// value under key into target. A missing key leaves target untouched.
func feedKey(f Feeder, key string, target any, marshal func(any) ([]byte, error), unmarshal func([]byte, any) error, what string) error {
	var all map[string]any
	if err := f.Feed(&all); err != nil {
		return fmt.Errorf("failed to read %s: %w", what, err)
	}

	value, exists := all[key]
	if !exists {
		return nil
	}
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("%w: %s in %s", ErrKeyNotTable, key, what)
	}

	data, err := marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal value to target: %w", err)
	}
	return nil
}
