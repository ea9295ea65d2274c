package amd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewConfigNormalizes(t *testing.T) {
	cfg := NewConfig(ConfigDocument{
		BaseURL: "/static",
		Paths:   map[string]string{"lib": "vendor/lib"},
		URLArgs: "?v=1",
		Timeout: 250,
		Extra:   map[string]any{"theme": "dark"},
	})

	assert.Equal(t, "/static/", cfg.BaseURL)
	assert.Equal(t, "vendor/lib", cfg.Paths["lib"])
	assert.Equal(t, "?v=1", cfg.URLArgs)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "dark", cfg.Extra["theme"])
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig(ConfigDocument{Timeout: -3})
	assert.Equal(t, "", cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.NotNil(t, cfg.Paths)
	assert.NotNil(t, cfg.Extra)
}

func TestEncodeURLArgs(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want URLArgs
	}{
		{"nil", nil, ""},
		{"empty", "", ""},
		{"string", "a=b", "?a=b"},
		{"string with question mark", "?a=b", "?a=b"},
		{"map sorted and encoded", map[string]any{"v": 2.0, "a b": "x&y"}, "?a%20b=x%26y&v=2"},
		{"string map", map[string]string{"k": "v"}, "?k=v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeURLArgs(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := EncodeURLArgs(42)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestConfigSnapshotIsDeep(t *testing.T) {
	cfg := NewConfig(ConfigDocument{
		Paths: map[string]string{"a": "b"},
		Extra: map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{"x"}},
	})
	snap := cfg.Snapshot()
	snap.Paths["a"] = "changed"
	snap.Extra["nested"].(map[string]any)["k"] = "changed"
	snap.Extra["list"].([]any)[0] = "changed"

	assert.Equal(t, "b", cfg.Paths["a"])
	assert.Equal(t, "v", cfg.Extra["nested"].(map[string]any)["k"])
	assert.Equal(t, "x", cfg.Extra["list"].([]any)[0])
}

func TestConfigGet(t *testing.T) {
	cfg := NewConfig(ConfigDocument{BaseURL: "b", Timeout: 100, Extra: map[string]any{"x": 1.0}})

	v, ok := cfg.Get("baseUrl")
	require.True(t, ok)
	assert.Equal(t, "b/", v)

	v, ok = cfg.Get("timeout")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	v, ok = cfg.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = cfg.Get("missing")
	assert.False(t, ok)
}

func TestConfigDocumentDecoding(t *testing.T) {
	want := ConfigDocument{
		BaseURL: "/js",
		Paths:   map[string]string{"lib": "vendor"},
		URLArgs: "?bust=1",
		Timeout: 1500,
		Extra:   map[string]any{"theme": "dark"},
	}

	t.Run("json", func(t *testing.T) {
		var doc ConfigDocument
		require.NoError(t, json.Unmarshal([]byte(`{
			"baseUrl": "/js", "paths": {"lib": "vendor"},
			"urlArgs": {"bust": 1}, "timeout": 1500, "theme": "dark"
		}`), &doc))
		assert.Equal(t, want, doc)
	})

	t.Run("yaml", func(t *testing.T) {
		var doc ConfigDocument
		require.NoError(t, yaml.Unmarshal([]byte(`
baseUrl: /js
paths:
  lib: vendor
urlArgs: bust=1
timeout: 1500
theme: dark
`), &doc))
		assert.Equal(t, want, doc)
	})

	t.Run("toml", func(t *testing.T) {
		var doc ConfigDocument
		_, err := toml.Decode(`
baseUrl = "/js"
urlArgs = "?bust=1"
timeout = 1500
theme = "dark"

[paths]
lib = "vendor"
`, &doc)
		require.NoError(t, err)
		assert.Equal(t, want, doc)
	})
}

func TestConfigDocumentRejectsBadShapes(t *testing.T) {
	var doc ConfigDocument
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"baseUrl": 3}`), &doc), ErrInvalidDocument)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"paths": {"a": 1}}`), &doc), ErrInvalidDocument)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"urlArgs": true}`), &doc), ErrInvalidDocument)
}
