package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"job/slide01.html":   "job/slide01.html",
		"./job/a.html":       "job/a.html",
		"/job/a.html":        "job/a.html",
		"job\\a.html":        "job/a.html",
		"job/../other/a.txt": "other/a.txt",
	}
	for input, want := range cases {
		got, err := sanitizeKey(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	for _, bad := range []string{"", "  ", ".", "..", "../etc/passwd", "job/../../x"} {
		_, err := sanitizeKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestWriteAndRemoveJob(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)

	dir, err := store.EnsureJobDir("job-1")
	require.NoError(t, err)
	_, err = store.EnsureJobDir("job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "job-1"), dir)

	path, err := store.Write(context.Background(), "job-1/slide01.html", []byte("<html></html>"))
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.RemoveJob("job-1"))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, store.RemoveJob("job-1"))
}

func TestJobDirRejectsNestedIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.JobDir("a/b")
	assert.Error(t, err)
	_, err = store.JobDir("../escape")
	assert.Error(t, err)
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Write(ctx, "job/a.html", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
