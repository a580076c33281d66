package cmd

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps configuration files and AOCR_* variables of the host out
// of a test.
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, key := range []string{"AOCR_OCR_ENDPOINT", "AOCR_OCR_KEY", "AOCR_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	return dir
}

// executeCommand runs a fresh command tree and captures its streams.
func executeCommand(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "aocr", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"run", "analyze", "config", "version"} {
		assert.Contains(t, names, expected)
	}
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)

	stdout, _, err := executeCommand(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "invisible text layer")
	assert.Contains(t, stdout, "Available Commands:")
}

func TestRootCommandInvalidFlag(t *testing.T) {
	isolate(t)

	_, _, err := executeCommand(t, nil, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := executeCommand(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "aocr version "), stdout)
	assert.Contains(t, stdout, "Commit:")
}

func TestConfigCommand(t *testing.T) {
	isolate(t)
	t.Setenv("AOCR_OCR_KEY", "top-secret")
	t.Setenv("AOCR_PIPELINE_WORKERS", "3")

	stdout, _, err := executeCommand(t, nil, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "workers: 3")
	assert.Contains(t, stdout, "********")
	assert.NotContains(t, stdout, "top-secret")

	stdout, _, err = executeCommand(t, nil, "config", "--show-secrets")
	require.NoError(t, err)
	assert.Contains(t, stdout, "key: top-secret")
}

func TestConfigInitCommand(t *testing.T) {
	dir := isolate(t)

	stdout, _, err := executeCommand(t, nil, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "aocr.yaml")
	assert.FileExists(t, dir+"/aocr.yaml")

	// The generated file is picked up by the next invocation.
	stdout, _, err = executeCommand(t, nil, "config")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# loaded from")
}

func TestInvalidConfigFile(t *testing.T) {
	isolate(t)

	_, _, err := executeCommand(t, nil, "--config", "missing.yaml", "config")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading configuration")
}
