// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveAndOverwrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "photos")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.Equal(t, dir, s.Dir())
	require.DirExists(t, dir)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, []byte("first"), "shot.jpg"))
	data, err := os.ReadFile(filepath.Join(dir, "shot.jpg"))
	require.NoError(t, err)
	require.Equal(t, "first", string(data))

	require.NoError(t, s.Save(ctx, []byte("second"), "shot.jpg"))
	data, err = os.ReadFile(filepath.Join(dir, "shot.jpg"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9}, "a.jpg"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.jpg", entries[0].Name())
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{
		"",
		".",
		"..",
		"../escape.jpg",
		"sub/dir.jpg",
		`win\dir.jpg`,
		"/abs.jpg",
	} {
		require.Error(t, s.Save(context.Background(), []byte("x"), name), "name %q must be rejected", name)
	}
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}
