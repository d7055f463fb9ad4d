//go:build unix

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobs = `
jobs:
  - id: kia
    cmd: ["true"]
    timeout_sec: 10
  - id: volvo
    cmd: ["sh", "-c", "echo scraping volvo; exit 2"]
    timeout_sec: 10
    retries: 1
  - id: mazda
    cmd: ["true"]
`

// setupWorkspace writes a jobs file into a fresh directory and runs the
// test from there.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.yaml"), []byte(testJobs), 0644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "jobs.yaml: 3 jobs OK")
	assert.Contains(t, out, "volvo\ttimeout=10s retries=1")
}

func TestValidateCommand_InvalidFile(t *testing.T) {
	dir := setupWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("jobs:\n  - id: x\n"), 0644))

	_, err := execute(t, "validate", "--jobs", "bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty command")
}

func TestRunCommand_OnlyThenOnlyFailed(t *testing.T) {
	dir := setupWorkspace(t)

	out, err := execute(t, "run", "--jobs", "jobs.yaml", "--only", "kia,volvo", "--skip", "", "--concurrency", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[JOBS] to run=[kia volvo]")
	assert.Contains(t, out, "- kia: success (attempt 1) rc=0")
	assert.Contains(t, out, "- volvo: failed (attempt 2) rc=2")
	assert.NotContains(t, out, "- mazda:")
	assert.FileExists(t, filepath.Join(dir, "runs", "state.json"))

	out, err = execute(t, "run", "--jobs", "jobs.yaml", "--only", "", "--only-failed")
	require.NoError(t, err)
	assert.Contains(t, out, "[JOBS] to run=[volvo]")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "mazda")
	assert.Contains(t, out, "- volvo: failed")

	out, err = execute(t, "history", "volvo")
	require.NoError(t, err)
	assert.Contains(t, out, "ATTEMPT")
	assert.Contains(t, out, "exit status 2")

	onlyFailed = false
}

func TestConfigCommands(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "config", "set", "concurrency", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "config saved to scrapectl.yaml")

	out, err = execute(t, "config", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "concurrency: 4")
	assert.Contains(t, out, "kill_grace: 1s")
}
