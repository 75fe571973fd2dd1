package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydigest/internal/config"
)

func testEnv(t *testing.T, extra map[string]string) func(string) (string, bool) {
	t.Helper()
	env := map[string]string{
		"STORAGE_PATH": filepath.Join(t.TempDir(), "payments.db"),
		"LOG_CONSOLE":  "false",
		"LOG_LEVEL":    "error",
	}
	for k, v := range extra {
		env[k] = v
	}
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func run(t *testing.T, lookup func(string) (string, bool), args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd("test", &rootOptions{lookup: lookup})
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestMigrateIsIdempotent(t *testing.T) {
	env := testEnv(t, nil)

	out, err := run(t, env, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2: migrated")

	out, err = run(t, env, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2: up to date")
}

func TestRunDailyThenSummaries(t *testing.T) {
	env := testEnv(t, nil)

	out, err := run(t, env, "run-daily")
	require.NoError(t, err)
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	assert.Contains(t, out, yesterday+" not_sent")

	out, err = run(t, env, "run-daily")
	require.NoError(t, err)
	assert.Contains(t, out, yesterday+" skipped")

	out, err = run(t, env, "summaries", "--limit", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "DATE"))
	assert.Contains(t, lines[1], yesterday)
	assert.Contains(t, lines[1], "0.00")
	assert.True(t, strings.HasSuffix(lines[1], "-"))
}

func TestSummariesRejectsBadLimit(t *testing.T) {
	_, err := run(t, testEnv(t, nil), "summaries", "--limit", "0")
	require.Error(t, err)
}

func TestRunDailyConfigError(t *testing.T) {
	_, err := run(t, testEnv(t, map[string]string{"RETENTION_DAYS": "x"}), "run-daily")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETENTION_DAYS")
}

func TestRunDailyConnectionFailureExitsNonZero(t *testing.T) {
	env := testEnv(t, map[string]string{
		"STORAGE_DRIVER": "mysql",
		"DB_HOST":        "127.0.0.1",
		"DB_PORT":        "1",
		"DB_NAME":        "paydigest",
	})
	_, err := run(t, env, "run-daily")
	require.Error(t, err)
}

func TestLogsPrintsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paydigest.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\nfour\n"), 0o644))

	out, err := run(t, testEnv(t, nil), "logs", "--file", path, "--lines", "2")
	require.NoError(t, err)
	assert.Equal(t, "three\nfour\n", out)

	out, err = run(t, testEnv(t, map[string]string{"LOG_FILE": path}), "logs", "-n", "0")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour\n", out)
}

func TestLogsMissingFile(t *testing.T) {
	_, err := run(t, testEnv(t, nil), "logs", "--file", filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFollowFileHandlesRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paydigest.log")
	appendLine(t, path, "old")

	var out syncBuffer
	offset, err := printTail(&out, path, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- followFile(ctx, &out, path, offset) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	appendLine(t, path, "appended")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "appended\n") }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Rename(path, path+".1"))
	appendLine(t, path, "fresh")
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "fresh\n") }, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, strings.Count(out.String(), "old\n"))
}

func TestServeFlagsDoNotMutateLoadedConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.TrustedProxies = []string{"10.0.0.1"}

	got := serveConfig(cfg, "127.0.0.1:9090", true)
	assert.Equal(t, "127.0.0.1:9090", got.Server.Addr)
	assert.True(t, got.Scheduler.Enabled)

	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
	assert.False(t, cfg.Scheduler.Enabled)

	got.Server.TrustedProxies[0] = "10.0.0.2"
	assert.Equal(t, "10.0.0.1", cfg.Server.TrustedProxies[0])

	same := serveConfig(cfg, " ", false)
	assert.Equal(t, config.DefaultAddr, same.Server.Addr)
	assert.NotSame(t, cfg, same)
}
