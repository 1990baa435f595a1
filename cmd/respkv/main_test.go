package main

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/respkv/respkv/internal/config"
	"github.com/respkv/respkv/internal/version"
)

func TestRootCommand_Version(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "respkv "+version.Version)
}

func TestRootCommand_InvalidFlagValue(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--loglevel", "loud"})

	assert.ErrorIs(t, cmd.Execute(), config.ErrInvalidConfig)
}

func TestRootCommand_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "respkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_clients: [1"), 0644))

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path})

	assert.Error(t, cmd.Execute())
}

func TestRootCommand_RejectsArgs(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})

	assert.Error(t, cmd.Execute())
}

func TestRootCommand_MissingConfigFile(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "typo.yaml")})

	assert.ErrorIs(t, cmd.Execute(), fs.ErrNotExist)
}

func TestRootCommand_SaveConfig(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.yaml")
	dst := filepath.Join(dir, "out.yaml")
	require.NoError(t, os.WriteFile(src, []byte("max_clients: 42\n"), 0644))

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", src, "--addr", "127.0.0.1:7001", "--no-admin", "--save-config", dst})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), dst)

	saved, err := config.Load(dst)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", saved.Addr)
	assert.Equal(t, 42, saved.MaxClients)
	assert.False(t, saved.Admin.Enabled)
	assert.Equal(t, config.Default().HotKeys, saved.HotKeys)
}

func TestRootCommand_SaveConfigRejectsInvalid(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.yaml")

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--maxclients", "-1", "--save-config", dst})

	assert.ErrorIs(t, cmd.Execute(), config.ErrInvalidConfig)
	assert.NoFileExists(t, dst)
}
