package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHostFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadHostFile(t *testing.T) {
	path := writeHostFile(t, `
host: deploy.example.com
port: 2222
user: deploy
password: hunter2
key_path: ~/.ssh/deploy_key
known_hosts: /etc/ssh/known_hosts
insecure: true
`)

	config, err := loadHostFile(path)
	require.NoError(t, err)

	assert.Equal(t, "deploy.example.com", config.Host)
	assert.Equal(t, 2222, config.Port)
	assert.Equal(t, "deploy", config.User)
	assert.Equal(t, "hunter2", config.Password)
	assert.Equal(t, "~/.ssh/deploy_key", config.KeyPath)
	assert.Equal(t, "/etc/ssh/known_hosts", config.KnownHostsFile)
	assert.True(t, config.InsecureIgnoreHostKey)
}

func TestLoadHostFile_PartialFields(t *testing.T) {
	path := writeHostFile(t, "host: box\nuser: admin\n")

	config, err := loadHostFile(path)
	require.NoError(t, err)

	assert.Equal(t, "box", config.Host)
	assert.Equal(t, "admin", config.User)
	assert.Zero(t, config.Port)
	assert.Empty(t, config.Password)
	assert.False(t, config.InsecureIgnoreHostKey)
}

func TestLoadHostFile_Missing(t *testing.T) {
	_, err := loadHostFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadHostFile_BadYAML(t *testing.T) {
	path := writeHostFile(t, "host: [unterminated\n")

	_, err := loadHostFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse host file")
}
