package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"snaprestore.io/snaprestore-cli/internal/report"
)

const doneRecovery = `{"content":{"shards":[
	{"id":0,"type":"SNAPSHOT","stage":"DONE","primary":true,
	 "source":{"repository":"s3-snapshots","snapshot":"my-snapshot","index":"content"},
	 "index":{"files":{"total":4,"reused":0,"recovered":4}}}]}}`

// fakeSearchCluster serves the snapshot and recovery endpoints a restore uses.
type fakeSearchCluster struct {
	mu          sync.Mutex
	restoreBody string
	recoveries  []string
	polls       int
}

func (f *fakeSearchCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/_snapshot/s3-snapshots/_verify":
		_, _ = w.Write([]byte(`{"nodes":{"n1":{"name":"node-1"}}}`))
	case "/_snapshot/s3-snapshots/my-snapshot/_restore":
		_, _ = w.Write([]byte(f.restoreBody))
	case "/content/_recovery":
		body := f.recoveries[min(f.polls, len(f.recoveries)-1)]
		f.polls++
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"repository_missing_exception","reason":"missing"},"status":404}`))
	}
}

func writeConfig(t *testing.T, clusterURL, reportDir, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := fmt.Sprintf(`version: 1
clusters:
  local:
    url: %s
cli:
  report_dir: %s
%s`, clusterURL, reportDir, extra)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(context.Background())
	return stdout.String(), stderr.String(), err
}

func noSleep(t *testing.T) {
	t.Helper()
	prev := sleep
	sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { sleep = prev })
}

func restoreArgs(configFile string, extra ...string) []string {
	args := []string{
		"restore", "local",
		"--config", configFile,
		"--index", "content",
		"--snapshot", "my-snapshot",
		"--repository", "s3-snapshots",
		"--timeout", "0",
		"--max-query-retries", "-1",
		"--no-report=false",
	}
	return append(args, extra...)
}

func TestRestoreCommand_Success(t *testing.T) {
	noSleep(t)
	fake := &fakeSearchCluster{
		restoreBody: `{"accepted":true}`,
		recoveries:  []string{`{}`, doneRecovery},
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	reportDir := t.TempDir()
	cfgPath := writeConfig(t, server.URL, reportDir, "")

	stdout, stderr, err := executeCommand(t, restoreArgs(cfgPath)...)
	require.NoError(t, err)

	assert.Contains(t, stdout, `Waiting for restore of "my-snapshot" to start`)
	assert.Contains(t, stdout, "4/4")
	assert.Contains(t, stdout, `Restored "my-snapshot" snapshot of "content" index to local cluster`)
	assert.Contains(t, stderr, "Report saved to")
	assert.Equal(t, 2, fake.polls)

	reports, err := report.ListReports(reportDir)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Success)
	assert.Equal(t, "local", reports[0].Cluster)
	assert.Equal(t, "content", reports[0].Index)
}

func TestRestoreCommand_IndexNotInSnapshot(t *testing.T) {
	noSleep(t)
	fake := &fakeSearchCluster{
		restoreBody: `{"snapshot":{"snapshot":"my-snapshot","indices":[]}}`,
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	cfgPath := writeConfig(t, server.URL, t.TempDir(), "")

	stdout, stderr, err := executeCommand(t, restoreArgs(cfgPath, "--no-report")...)
	require.Error(t, err)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, stderr, `Restore failed: No index named "content" found`)
	assert.NotContains(t, stdout, "Restored")
	assert.Equal(t, 0, fake.polls)
}

func TestRestoreCommand_RepositoryMissing(t *testing.T) {
	noSleep(t)
	fake := &fakeSearchCluster{restoreBody: `{"accepted":true}`}
	server := httptest.NewServer(fake)
	defer server.Close()

	cfgPath := writeConfig(t, server.URL, t.TempDir(), "")

	_, stderr, err := executeCommand(t, restoreArgs(cfgPath, "--no-report", "--repository", "elsewhere")...)
	require.Error(t, err)
	assert.Contains(t, stderr, "Restore failed:")
	assert.Contains(t, stderr, `repository "elsewhere"`)
}

func TestRestoreCommand_UnknownCluster(t *testing.T) {
	cfgPath := writeConfig(t, "http://localhost:9200", t.TempDir(), "")

	args := restoreArgs(cfgPath, "--no-report")
	args[1] = "staging"
	_, stderr, err := executeCommand(t, args...)
	require.Error(t, err)
	assert.Contains(t, stderr, `No cluster named "staging" configured`)
}

func TestRestoreCommand_RequiresCluster(t *testing.T) {
	_, stderr, err := executeCommand(t, "restore")
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
	assert.Contains(t, stderr, "Error: accepts 1 arg(s), received 0")
	assert.Contains(t, stderr, "snaprestore restore --help")
}

func TestRestoreCommand_UnknownFlag(t *testing.T) {
	_, stderr, err := executeCommand(t, "restore", "local", "--bogus")
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
	assert.Contains(t, stderr, "unknown flag: --bogus")
}

func TestRestoreCommand_FailurePrintedOnce(t *testing.T) {
	cfgPath := writeConfig(t, "http://localhost:9200", t.TempDir(), "")

	args := restoreArgs(cfgPath, "--no-report")
	args[1] = "staging"
	_, stderr, err := executeCommand(t, args...)
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(stderr, "staging"))
	assert.NotContains(t, stderr, "Error:")
}
