package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ouroboros/internal/ouro/model"
)

func TestLoad_DefaultsWhenNoConfigFilesPresent(t *testing.T) {
	projectRoot := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	opts, err := Load(projectRoot, model.CliOptions{}, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, "claude-code", opts.Provider)
	assert.Equal(t, 10, opts.IterationLimit)
	assert.Equal(t, 1, opts.ParallelAgents)
}

func TestLoad_ProjectConfigOverridesGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ouroboros"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ouroboros", "config.toml"),
		[]byte("provider = \"global-provider\"\nparallelagents = 2\n"), 0o644))

	projectRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(projectRoot, ".ouroboros"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, ".ouroboros", "config.toml"),
		[]byte("provider = \"project-provider\"\n"), 0o644))

	opts, err := Load(projectRoot, model.CliOptions{}, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, "project-provider", opts.Provider)
	assert.Equal(t, 2, opts.ParallelAgents)
}

func TestLoad_CLIOverridesOnlySetFlags(t *testing.T) {
	projectRoot := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	cli := model.CliOptions{Provider: "cli-provider", ParallelAgents: 7}
	opts, err := Load(projectRoot, cli, map[string]bool{"provider": true})
	require.NoError(t, err)
	assert.Equal(t, "cli-provider", opts.Provider)
	assert.Equal(t, 1, opts.ParallelAgents, "parallel was not marked set, so the config/default value must win")
}

func TestLoad_TaskTrackerBinaryDefaultsToBd(t *testing.T) {
	projectRoot := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	opts, err := Load(projectRoot, model.CliOptions{}, map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, "bd", opts.TaskTrackerBinary)
}

func TestWriteDefaultConfig_DoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("custom = true\n"), 0o644))

	require.NoError(t, WriteDefaultConfig(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom = true\n", string(data))
}

func TestWriteDefaultConfig_CreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	require.NoError(t, WriteDefaultConfig(path))
	assert.FileExists(t, path)
}
