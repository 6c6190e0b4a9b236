package storage

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	info, err := store.Save("import.xlsx", "application/vnd.ms-excel", strings.NewReader("spreadsheet bytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "import.xlsx", info.Name)
	assert.Equal(t, int64(len("spreadsheet bytes")), info.Size)

	got, err := store.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	path, err := store.GetFilePath(info.ID)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "spreadsheet bytes", string(data))
}

func TestGetUnknownID(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = store.GetFilePath("nope")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDeleteRemovesFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	info, err := store.Save("import.xlsx", "application/vnd.ms-excel", strings.NewReader("x"))
	require.NoError(t, err)
	path, err := store.GetFilePath(info.ID)
	require.NoError(t, err)

	require.NoError(t, store.Delete(info.ID))
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, store.Delete(info.ID), ErrFileNotFound)
}
