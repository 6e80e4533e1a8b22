package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "guard dev")
}

func TestConfigValidateCmd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("app:\n  name: edge\nadmin:\n  addr: 127.0.0.1:9999\n"), 0o644))

	out, err := run(t, "config", "validate", "-c", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "config.yaml")
	assert.Contains(t, out, "app=edge")
	assert.Contains(t, out, "admin=127.0.0.1:9999")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"),
		[]byte("store:\n  driver: etcd\n"), 0o644))
	_, err = run(t, "config", "validate", "-c", dir, "--env", "bad")
	assert.Error(t, err)
}
