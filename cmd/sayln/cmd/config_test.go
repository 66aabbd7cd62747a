package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guoyu-zhang/say-like-a-native/configs"
	"github.com/guoyu-zhang/say-like-a-native/internal/config"
)

func TestConfigInit_CreatesUserConfig(t *testing.T) {
	// Given: no user config
	isolate(t)
	require.False(t, config.UserConfigExists())

	// When: running config init
	out, err := run(t, "config", "init")

	// Then: the template is written
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, configs.UserConfigTemplate, string(data))
}

func TestConfigInit_ExistingWithoutForce(t *testing.T) {
	// Given: an edited user config
	isolate(t)
	writeFile(t, config.GetUserConfigPath(), "store:\n  backend: sqlite\n")

	// When: running init again
	out, err := run(t, "config", "init")

	// Then: the file is left alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "store:\n  backend: sqlite\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	isolate(t)
	writeFile(t, config.GetUserConfigPath(), "store:\n  backend: sqlite\n")

	out, err := run(t, "config", "init", "--force")

	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListUserConfigBackups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "store:\n  backend: sqlite\n", string(data))
}

func TestConfigInit_Project(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, "config", "init", "--project")

	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, ".sayln.yaml"))
	require.NoError(t, err)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
}

func TestConfigRestore_Newest(t *testing.T) {
	// Given: a config that was replaced with --force
	isolate(t)
	writeFile(t, config.GetUserConfigPath(), "store:\n  backend: sqlite\n")
	_, err := run(t, "config", "init", "--force")
	require.NoError(t, err)

	// When: restoring without naming a backup
	out, err := run(t, "config", "restore")

	// Then: the newest backup is back in place
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, "store:\n  backend: sqlite\n", string(data))
}

func TestConfigRestore_NoBackups(t *testing.T) {
	isolate(t)

	_, err := run(t, "config", "restore")

	assert.Error(t, err)
}

func TestConfigShow_MergedJSON(t *testing.T) {
	// Given: a project config and an env override
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".sayln.yaml"), "search:\n  default_size: 7\n")
	t.Setenv("SAYLN_OPENSEARCH_PASSWORD", "hunter2")

	// When: showing the merged config as JSON
	out, err := run(t, "config", "show", "--json")

	// Then: all layers are applied and the password is not printed
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 7, cfg.Search.DefaultSize)
	assert.Equal(t, config.BackendSQLite, cfg.Store.Backend)
	assert.NotContains(t, out, "hunter2")
}

func TestConfigShow_Sources(t *testing.T) {
	isolate(t)

	out, err := run(t, "config", "show", "--source", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "# Source: defaults")
	assert.Contains(t, out, "youtube-transcripts")

	out, err = run(t, "config", "show", "--source", "user")
	require.NoError(t, err)
	assert.Contains(t, out, "No user configuration file found")

	_, err = run(t, "config", "show", "--source", "bogus")
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".config", "sayln", "config.yaml")+"\n", out)
}
