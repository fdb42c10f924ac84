package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveLoadDelete(t *testing.T) {
	s := NewFileStore(t.TempDir())

	data := []byte(`{"id":"ABC123"}`)
	require.NoError(t, s.Save("ABC123", data))

	loaded, err := s.Load("ABC123")
	require.NoError(t, err)
	assert.Equal(t, data, loaded)

	// Save overwrites.
	updated := []byte(`{"id":"ABC123","started":true}`)
	require.NoError(t, s.Save("ABC123", updated))
	loaded, err = s.Load("ABC123")
	require.NoError(t, err)
	assert.Equal(t, updated, loaded)

	require.NoError(t, s.Delete("ABC123"))
	loaded, err = s.Load("ABC123")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is a no-op.
	assert.NoError(t, s.Delete("ABC123"))
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := NewFileStore(t.TempDir())

	loaded, err := s.Load("NOPE")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStoreCleanupExpired(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	require.NoError(t, s.Save("OLD111", []byte("{}")))
	require.NoError(t, s.Save("NEW222", []byte("{}")))

	// Age the first file past the cutoff.
	oldPath := filepath.Join(dir, "OLD111.json")
	stale := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, stale, stale))

	removed := s.CleanupExpired(2 * time.Hour)
	assert.Equal(t, 1, removed)

	loaded, err := s.Load("OLD111")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	loaded, err = s.Load("NEW222")
	require.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestFileStoreCleanupMissingDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "never-created"))
	assert.Equal(t, 0, s.CleanupExpired(time.Hour))
}
