package amd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/amd"
	"github.com/GoCodeAlone/amd/feeders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadBootstrapFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "boot.yaml", `
main: app/main
config:
  baseUrl: /static
  paths:
    lib: vendor/lib
  urlArgs:
    v: 2
  timeout: 750
  theme: dark
`)

	b, err := amd.LoadBootstrap(feeders.NewYamlFeeder(path))
	require.NoError(t, err)
	assert.Equal(t, "app/main", b.Main)
	assert.Equal(t, "fifo", b.Order, "order defaults to fifo")

	cfg := amd.NewConfig(b.Config)
	assert.Equal(t, "/static/", cfg.BaseURL)
	assert.Equal(t, map[string]string{"lib": "vendor/lib"}, cfg.Paths)
	assert.Equal(t, "?v=2", cfg.URLArgs)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "dark", cfg.Extra["theme"])
}

func TestLoadBootstrapFormats(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"boot.json": `{"main": "app", "order": "lifo", "config": {"baseUrl": "js"}}`,
		"boot.toml": "main = \"app\"\norder = \"lifo\"\n\n[config]\nbaseUrl = \"js\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := feeders.ForFile(writeFile(t, dir, name, content))
			require.NoError(t, err)

			b, err := amd.LoadBootstrap(f)
			require.NoError(t, err)
			assert.Equal(t, "app", b.Main)
			assert.Equal(t, "lifo", b.Order)
			assert.Equal(t, "js", b.Config.BaseURL)
		})
	}
}

func TestLoadBootstrapEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "boot.yaml", "main: app\nconfig:\n  baseUrl: /static\n")

	t.Setenv("AMDBOOT_MAIN", "other")
	t.Setenv("AMDBOOT_BASE_URL", "/cdn")
	t.Setenv("AMDBOOT_URL_ARGS", "bust=1")

	b, err := amd.LoadBootstrap(feeders.NewYamlFeeder(path), feeders.NewEnvFeeder("AMDBOOT", ""))
	require.NoError(t, err)
	assert.Equal(t, "other", b.Main)
	assert.Equal(t, "/cdn", b.Config.BaseURL)
	assert.Equal(t, amd.URLArgs("?bust=1"), b.Config.URLArgs)
}

func TestLoadBootstrapMissingFile(t *testing.T) {
	_, err := amd.LoadBootstrap(feeders.NewYamlFeeder(filepath.Join(t.TempDir(), "none.yaml")))
	assert.Error(t, err)
}

func TestRunBootstrap(t *testing.T) {
	scripts := amd.NewScriptTable().
		AddDefinition("js/app.js", amd.Definition{Deps: []string{"lib/name", "config"}, Factory: func(name string, cfg amd.Config) string {
			return name + "@" + cfg.BaseURL
		}}).
		AddDefinition("js/lib/name.js", amd.Definition{Deps: []string{}, Value: "demo"})

	l := amd.NewLoader(amd.WithFetcher(scripts))
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := l.Run(ctx, amd.Bootstrap{Main: "app", Order: "fifo", Config: amd.ConfigDocument{BaseURL: "js"}})
	require.NoError(t, err)
	assert.Equal(t, "demo@js/", v)

	_, err = l.Run(ctx, amd.Bootstrap{Order: "fifo"})
	assert.ErrorIs(t, err, amd.ErrMissingMain)

	_, err = l.Run(ctx, amd.Bootstrap{Main: "app", Order: "random"})
	assert.Error(t, err)

	_, err = l.Run(ctx, amd.Bootstrap{Main: "missing", Order: "fifo", Config: amd.ConfigDocument{BaseURL: "js"}})
	assert.ErrorIs(t, err, amd.ErrScriptNotFound)
}
