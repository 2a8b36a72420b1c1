package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptWritesRawBytes(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTranscript(dir)
	require.NoError(t, err)

	raw := []byte("\x1b[2J\x1b[H● Bash(ls)\r\n")
	_, err = tr.Write(raw)
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	got, err := os.ReadFile(tr.Path())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestTranscriptCleanupRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, transcriptPrefix+"old.raw")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(dir, transcriptPrefix+"fresh.raw")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	tr, err := NewTranscript(dir)
	require.NoError(t, err)
	defer tr.Close()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
