package amd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the script load timeout used when none is configured.
const DefaultTimeout = 5000 * time.Millisecond

// Config is the normalized configuration of a Context. Values handed to
// factories are snapshots; mutating them does not affect the context.
type Config struct {
	// BaseURL is prepended to module paths. Non-empty values end in "/".
	BaseURL string

	// Paths maps module id prefixes to replacement paths.
	Paths map[string]string

	// URLArgs is appended to module URLs, either "" or "?k=v&...".
	URLArgs string

	// Timeout bounds every script load.
	Timeout time.Duration

	// Extra holds unrecognized configuration keys.
	Extra map[string]any
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Paths:   map[string]string{},
		Timeout: DefaultTimeout,
		Extra:   map[string]any{},
	}
}

// NewConfig normalizes a configuration document.
func NewConfig(doc ConfigDocument) Config {
	cfg := DefaultConfig()

	if doc.BaseURL != "" {
		cfg.BaseURL = doc.BaseURL
		if !strings.HasSuffix(cfg.BaseURL, "/") {
			cfg.BaseURL += "/"
		}
	}

	cfg.URLArgs = string(doc.URLArgs)

	for k, v := range doc.Paths {
		cfg.Paths[k] = v
	}

	if doc.Timeout > 0 {
		cfg.Timeout = time.Duration(doc.Timeout * float64(time.Millisecond))
	}

	for k, v := range doc.Extra {
		cfg.Extra[k] = deepCopy(v)
	}

	return cfg
}

// Snapshot returns a deep copy of c.
func (c Config) Snapshot() Config {
	out := c
	out.Paths = make(map[string]string, len(c.Paths))
	for k, v := range c.Paths {
		out.Paths[k] = v
	}
	out.Extra = make(map[string]any, len(c.Extra))
	for k, v := range c.Extra {
		out.Extra[k] = deepCopy(v)
	}
	return out
}

// Get looks up a configuration value by its document key.
func (c Config) Get(key string) (any, bool) {
	switch key {
	case "baseUrl":
		return c.BaseURL, true
	case "paths":
		return c.Snapshot().Paths, true
	case "urlArgs":
		return c.URLArgs, true
	case "timeout":
		return float64(c.Timeout) / float64(time.Millisecond), true
	}
	v, ok := c.Extra[key]
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	}
	return v
}

// URLArgs is a normalized query string: either empty or "?k=v&...".
type URLArgs string

// EncodeURLArgs normalizes a string ("a=b", "?a=b") or a key/value map
// into URLArgs. Map keys are sorted; keys and values are URL-component
// encoded.
func EncodeURLArgs(v any) (URLArgs, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		t = strings.TrimPrefix(t, "?")
		if t == "" {
			return "", nil
		}
		return URLArgs("?" + t), nil
	case URLArgs:
		return EncodeURLArgs(string(t))
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = e
		}
		return EncodeURLArgs(m)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, encodeComponent(k)+"="+encodeComponent(scalarString(t[k])))
		}
		if len(parts) == 0 {
			return "", nil
		}
		return URLArgs("?" + strings.Join(parts, "&")), nil
	}
	return "", fmt.Errorf("%w: urlArgs must be a string or a map, got %T", ErrInvalidDocument, v)
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return "undefined"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// UnmarshalText accepts the string form, used by environment feeders.
func (u *URLArgs) UnmarshalText(text []byte) error {
	enc, err := EncodeURLArgs(string(text))
	if err != nil {
		return err
	}
	*u = enc
	return nil
}

// ConfigDocument is the configuration as written in a bootstrap document.
// Unknown keys are kept in Extra.
type ConfigDocument struct {
	BaseURL string            `json:"baseUrl" yaml:"baseUrl" toml:"baseUrl" env:"BASE_URL"`
	Paths   map[string]string `json:"paths" yaml:"paths" toml:"paths"`
	URLArgs URLArgs           `json:"urlArgs" yaml:"urlArgs" toml:"urlArgs" env:"URL_ARGS"`
	Timeout float64           `json:"timeout" yaml:"timeout" toml:"timeout" env:"TIMEOUT"`
	Extra   map[string]any    `json:"-" yaml:"-" toml:"-"`
}

// UnmarshalJSON decodes the document, keeping unknown keys.
func (d *ConfigDocument) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return d.fromMap(m)
}

// UnmarshalYAML decodes the document, keeping unknown keys.
func (d *ConfigDocument) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return d.fromMap(m)
}

// UnmarshalTOML decodes the document, keeping unknown keys.
func (d *ConfigDocument) UnmarshalTOML(data any) error {
	m, ok := data.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: config must be a table, got %T", ErrInvalidDocument, data)
	}
	return d.fromMap(m)
}

func (d *ConfigDocument) fromMap(m map[string]any) error {
	*d = ConfigDocument{Extra: map[string]any{}}
	for key, value := range m {
		switch key {
		case "baseUrl":
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: baseUrl must be a string, got %T", ErrInvalidDocument, value)
			}
			d.BaseURL = s
		case "paths":
			paths, err := stringMap(value)
			if err != nil {
				return err
			}
			d.Paths = paths
		case "urlArgs":
			args, err := EncodeURLArgs(value)
			if err != nil {
				return err
			}
			d.URLArgs = args
		case "timeout":
			d.Timeout = toFloat(value)
		default:
			d.Extra[key] = normalizeValue(value)
		}
	}
	return nil
}

func stringMap(v any) (map[string]string, error) {
	out := map[string]string{}
	switch t := v.(type) {
	case nil:
	case map[string]string:
		for k, e := range t {
			out[k] = e
		}
	case map[string]any:
		for k, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: paths.%s must be a string, got %T", ErrInvalidDocument, k, e)
			}
			out[k] = s
		}
	default:
		return nil, fmt.Errorf("%w: paths must be a map, got %T", ErrInvalidDocument, v)
	}
	return out, nil
}

// toFloat returns 0 for anything that is not a number, so that invalid
// timeouts fall back to the default.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// normalizeValue turns decoder-specific shapes (yaml's map[any]any, toml's
// []map[string]any) into map[string]any and []any.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeValue(e)
		}
		return m
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalizeValue(e)
		}
		return m
	case []map[string]any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalizeValue(e)
		}
		return s
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalizeValue(e)
		}
		return s
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}
