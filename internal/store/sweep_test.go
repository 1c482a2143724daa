package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweeper_RemovesOnlyExpiredFiles(t *testing.T) {
	spanDir := t.TempDir()
	ctxDir := t.TempDir()

	old := writeAgedFile(t, spanDir, "stale.jsonl", 2*time.Hour)
	fresh := writeAgedFile(t, spanDir, "live.jsonl", 30*time.Minute)
	oldCtx := writeAgedFile(t, ctxDir, "stale.json", 3*time.Hour)

	sw := NewSweeper(testLogger(), time.Hour, spanDir, ctxDir)
	removed, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(oldCtx)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err, "files inside the retention window are preserved")
}

func TestSweeper_MissingDirIsNoop(t *testing.T) {
	sw := NewSweeper(testLogger(), time.Hour, filepath.Join(t.TempDir(), "never-created"))
	removed, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSweeper_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o700))
	mtime := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(sub, mtime, mtime))

	sw := NewSweeper(testLogger(), time.Hour, dir)
	removed, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = os.Stat(sub)
	assert.NoError(t, err)
}
