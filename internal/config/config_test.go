package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CharanSaiVaddi/scrapectl/internal/config"
)

// inTempDir runs the test from an empty directory so no stray config file
// is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "jobs.yaml", cfg.JobsFile)
	assert.Equal(t, "runs", cfg.RunsDir)
	assert.Equal(t, time.Second, cfg.KillGrace)
	assert.Equal(t, time.Duration(0), cfg.RetryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.RetryBackoffMax)
	assert.Equal(t, "runs/history.db", cfg.HistoryDB)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("ORCH_CONCURRENCY", "5")
	t.Setenv("ORCH_RETRY_BACKOFF", "3s")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.RetryBackoff)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("ORCH_CONCURRENCY", "5")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Int("concurrency", 2, "")
	require.NoError(t, fs.Parse([]string{"--concurrency", "7"}))

	cfg, err := config.Load("", map[string]*pflag.Flag{"concurrency": fs.Lookup("concurrency")})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Concurrency)
}

func TestLoad_UnsetFlagKeepsEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("ORCH_CONCURRENCY", "5")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Int("concurrency", 2, "")
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load("", map[string]*pflag.Flag{"concurrency": fs.Lookup("concurrency")})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultFileName), []byte("concurrency: 3\nruns_dir: /var/scrapers/runs\nlog_format: json\n"), 0644))

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "/var/scrapers/runs", cfg.RunsDir)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := inTempDir(t)
	_, err := config.Load(filepath.Join(dir, "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	inTempDir(t)
	t.Setenv("ORCH_CONCURRENCY", "0")

	_, err := config.Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	inTempDir(t)
	t.Setenv("ORCH_LOG_FORMAT", "xml")

	_, err := config.Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_format")
}

func TestSet_PersistsAndValidates(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, config.DefaultFileName)

	require.NoError(t, config.Set(path, "concurrency", "4"))
	require.NoError(t, config.Set(path, "kill_grace", "3s"))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.KillGrace)

	assert.Error(t, config.Set(path, "concurrency", "0"))
	assert.Error(t, config.Set(path, "colour", "blue"))
}

func TestKeys(t *testing.T) {
	keys := config.Keys()
	assert.Contains(t, keys, "concurrency")
	assert.Contains(t, keys, "history_db")
	assert.IsIncreasing(t, keys)
}
