package amd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeModuleDocuments(t *testing.T) {
	t.Run("yaml stream", func(t *testing.T) {
		docs, err := DecodeModuleDocuments(".yaml", []byte(`
id: first
imports: [lib/a]
module: one
---
module:
  name: second
`))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "first", docs[0].ID)
		assert.Equal(t, []string{"lib/a"}, docs[0].Imports)
		assert.Equal(t, "one", docs[0].Module)
		assert.Equal(t, map[string]any{"name": "second"}, docs[1].Definition().Value)
	})

	t.Run("json object", func(t *testing.T) {
		docs, err := DecodeModuleDocuments("json", []byte(`{"id": "j", "module": {"k": "v"}}`))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "j", docs[0].ID)
	})

	t.Run("json array", func(t *testing.T) {
		docs, err := DecodeModuleDocuments("json", []byte(` [{"id": "a", "module": "x"}, {"module": "y"}]`))
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "y", docs[1].Module)
	})

	t.Run("toml", func(t *testing.T) {
		docs, err := DecodeModuleDocuments(".toml", []byte(`
id = "t"
imports = ["lib/b"]

[module]
greeting = "hi"
`))
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, []string{"lib/b"}, docs[0].Imports)
		assert.Equal(t, map[string]any{"greeting": "hi"}, docs[0].Definition().Value)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := DecodeModuleDocuments(".xml", nil)
		assert.ErrorIs(t, err, ErrInvalidDocument)
		_, err = DecodeModuleDocuments(".json", []byte(`{`))
		assert.ErrorIs(t, err, ErrInvalidDocument)
		_, err = DecodeModuleDocuments(".yaml", []byte("module: [unclosed"))
		assert.ErrorIs(t, err, ErrInvalidDocument)
		_, err = DecodeModuleDocuments(".toml", []byte(`module = `))
		assert.ErrorIs(t, err, ErrInvalidDocument)
	})
}

func TestModuleDocumentDefinition(t *testing.T) {
	def := ModuleDocument{Module: "v"}.Definition()
	assert.NotNil(t, def.Deps, "documents declare their imports explicitly")
	assert.Empty(t, def.Deps)
	assert.Nil(t, def.Factory)
	assert.Equal(t, "v", def.Value)
}

func TestDocumentCandidates(t *testing.T) {
	assert.Equal(t, []string{
		"lib/a.yaml?v=1", "lib/a.yml?v=1", "lib/a.json?v=1", "lib/a.toml?v=1",
	}, documentCandidates("lib/a.js?v=1"))
	assert.Equal(t, []string{"lib/a.toml"}, documentCandidates("lib/a.toml"))
	assert.Equal(t, []string{
		"x.yaml", "x.yml", "x.json", "x.toml",
	}, documentCandidates("x"))
}

func writeDocuments(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dir
}

func TestFileFetcher(t *testing.T) {
	dir := writeDocuments(t, map[string]string{
		"app.yaml": "imports: [lib/greeting]\nmodule:\n  title: demo\n",
		"lib/greeting.toml": `[module]
text = "hi"
`,
		"bundle.yaml": "id: bundle\nmodule: main\n---\nid: extra\nmodule: side\n",
		"broken.json": "{",
	})

	l := NewLoader(WithFetcher(&FileFetcher{Root: dir}))
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values, err := l.Import(ctx, nil, "app", "lib/greeting", "bundle")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "demo"}, values[0])
	assert.Equal(t, map[string]any{"text": "hi"}, values[1])
	assert.Equal(t, "main", values[2])

	values, err = l.Import(ctx, nil, "extra")
	require.NoError(t, err)
	assert.Equal(t, []any{"side"}, values)

	_, err = l.Import(ctx, nil, "nothing")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, ErrScriptNotFound)

	_, err = l.Import(ctx, nil, "broken")
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestFileFetcherStripsURLDecorations(t *testing.T) {
	dir := writeDocuments(t, map[string]string{
		"static/mod.json": `{"module": "ok"}`,
	})
	f := &FileFetcher{Root: dir}

	for _, location := range []string{"static/mod.json?v=2", "file:///static/mod.json", "/static/mod.json"} {
		data, err := f.read(context.Background(), location)
		require.NoError(t, err, location)
		assert.JSONEq(t, `{"module": "ok"}`, string(data))
	}

	_, err := f.read(context.Background(), "static/none.json")
	assert.ErrorIs(t, err, ErrScriptNotFound)
}

func TestFileFetcherRejectsWholeScript(t *testing.T) {
	dir := writeDocuments(t, map[string]string{
		"m.yaml": "id: good\nmodule: 1\n---\nid: ../bad\nmodule: 2\n",
	})

	l := NewLoader(WithFetcher(&FileFetcher{Root: dir}))
	defer l.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	custom := l.NewContext(DefaultConfig())
	_, err := l.Import(ctx, custom, "m")
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	// Let any stray inline definition run before looking.
	require.NoError(t, l.Do(ctx, func() {}))
	require.NoError(t, l.Do(ctx, func() {
		for _, c := range []*Context{l.Context(), custom} {
			assert.False(t, c.Registry().ContainsExports("good"), c.Name())
			_, importing := c.Registry().Importing("good")
			assert.False(t, importing, c.Name())
		}
		assert.Zero(t, l.queue.Len())
	}))
}

func TestDefineAll(t *testing.T) {
	var hooked []error
	h := newHarness(t, WithErrorHook(func(err error) { hooked = append(hooked, err) }))

	err := h.loader.DefineAll([]Definition{
		{ID: "x", Deps: []string{}, Value: 1},
		{ID: "x", Deps: []string{}, Value: 2},
	})
	assert.ErrorIs(t, err, ErrDuplicateDefinition)
	require.Len(t, hooked, 1)
	assert.Zero(t, h.loader.queue.Len())
	_, importing := h.loader.Context().Registry().Importing("x")
	assert.False(t, importing)

	require.NoError(t, h.loader.DefineAll([]Definition{
		{ID: "x", Deps: []string{}, Value: 1},
		{ID: "y", Deps: []string{"x"}, Factory: func(x int) int { return x + 1 }},
	}))
	h.sched.Drain()
	v, err := h.loader.Context().Require().Get("y")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
