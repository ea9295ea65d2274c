package cmd_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/amd/cmd/amdload/cmd"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := cmd.NewRootCommand()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"app.yaml": `
main: app
config:
  baseUrl: modules
  timeout: 2000
`,
		"modules/app.yaml": `
imports: [lib/colors]
module:
  title: demo
`,
		"modules/lib/colors.toml": `
[module]
primary = "blue"
`,
	})

	out, err := execute(t, "run", filepath.Join(dir, "app.yaml"), "--env-prefix", "")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"title": "demo"}, got)
}

func TestRunCommandYAMLOutput(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"boot.json": `{"main": "app"}`,
		"app.json":  `{"module": ["a", "b"]}`,
	})

	out, err := execute(t, "run", filepath.Join(dir, "boot.json"), "--env-prefix", "", "--output", "yaml")
	require.NoError(t, err)

	var got []string
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRunCommandEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"boot.yaml":  "main: app\n",
		"other.yaml": "module: overridden\n",
	})
	t.Setenv("AMDTEST_MAIN", "other")

	out, err := execute(t, "run", filepath.Join(dir, "boot.yaml"), "--env-prefix", "AMDTEST")
	require.NoError(t, err)
	assert.JSONEq(t, `"overridden"`, out)
}

func TestRunCommandMissingModule(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"boot.yaml": "main: nowhere\n"})

	_, err := execute(t, "run", filepath.Join(dir, "boot.yaml"), "--env-prefix", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script not found")
}

func TestRunCommandMissingMain(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"boot.yaml": "config: {}\n"})

	_, err := execute(t, "run", filepath.Join(dir, "boot.yaml"), "--env-prefix", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main module")
}

func TestRunCommandWithMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"boot.yaml": "main: app\n",
		"app.json":  `{"module": "ok"}`,
	})

	out, err := execute(t, "run", filepath.Join(dir, "boot.yaml"), "--env-prefix", "", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, out)
}
