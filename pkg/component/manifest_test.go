package component

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseManifestYAML(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "component.yaml", `
name: web
display_name: Web Console
version: 1.2.0
author: aetherius
load_order: 10
provides_web_interface: true
dependencies:
  - storage
  - api
soft_dependencies:
  - metrics
`)

	info, err := ParseManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "web", info.Name)
	assert.Equal(t, "Web Console", info.DisplayName)
	assert.Equal(t, []string{"storage", "api"}, info.Dependencies)
	assert.Equal(t, []string{"metrics"}, info.SoftDependencies)
	assert.Equal(t, 10, info.LoadOrder)
	assert.True(t, info.ProvidesWebInterface)
	assert.Equal(t, filepath.Dir(path), info.Directory)
}

func TestParseManifestLiftsEngineConstraints(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "component.yaml", `
name: web
dependencies:
  core_version: ">=1.0"
  python_version: ">=3.10"
  storage: "^2"
  api: "*"
`)

	info, err := ParseManifest(path)
	require.NoError(t, err)
	assert.Equal(t, ">=1.0", info.EngineVersion,
		"core_version must become the engine constraint")
	assert.Equal(t, []string{"api", "storage"}, info.Dependencies,
		"remaining map keys are hard deps, sorted")
}

func TestParseManifestJSON(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "component.json", `{
  "name": "backup",
  "version": "0.3.1",
  "dependencies": ["storage"],
  "extra_key_to_ignore": {"anything": true}
}`)

	info, err := ParseManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "backup", info.Name)
	assert.Equal(t, []string{"storage"}, info.Dependencies)
}

func TestParseManifestRequiresName(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "component.yaml", "version: 1.0.0\n")
	_, err := ParseManifest(path)
	assert.Error(t, err)
}

func TestDiscoverSkipsDirsWithoutManifest(t *testing.T) {
	root := t.TempDir()

	aDir := filepath.Join(root, "a")
	require.NoError(t, os.MkdirAll(aDir, 0o755))
	writeManifest(t, aDir, "component.yaml", "name: a\n")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-component"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0o644))

	infos, problems := Discover(root)
	require.Nil(t, problems)
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].Name)
}

func TestDiscoverReportsBrokenManifests(t *testing.T) {
	root := t.TempDir()
	badDir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	writeManifest(t, badDir, "component.yaml", "name: [unclosed\n")

	infos, problems := Discover(root)
	assert.Empty(t, infos)
	assert.Contains(t, problems, "bad")
}
