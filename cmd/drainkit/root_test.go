package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/drainkit/errors"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "drainkit version dev")
	assert.Contains(t, out.String(), "commit: none")
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.toml")
	require.NoError(t, os.WriteFile(path, []byte("[events]\ncapacity = 0\n"), 0o600))

	root := NewRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--config", path})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestServeCmd_MissingConfig(t *testing.T) {
	root := NewRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "absent.toml")})

	assert.Error(t, root.Execute())
}

func TestServeCmd_BadLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	root := NewRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--config", path, "--log-level", "chatty"})

	err := root.Execute()
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}
