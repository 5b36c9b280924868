package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)

	ref, err := s.Save(DirBarcodes, "barcode_1.png", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, "barcodes/barcode_1.png", ref)

	data, err := os.ReadFile(filepath.Join(root, "barcodes", "barcode_1.png"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	_, err = s.Save(DirBarcodes, "barcode_1.png", []byte("second"))
	require.NoError(t, err)
	data, err = s.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "barcodes"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestSave_StripsDirectories(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ref, err := s.Save(DirCovers, "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "covers/passwd", ref)
}

func TestPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)

	path, err := s.Path("covers/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "covers", "1.jpg"), path)

	for _, ref := range []string{"", "../secret", "/etc/passwd", "covers/../../x"} {
		_, err := s.Path(ref)
		assert.True(t, errors.Is(err, ErrInvalidRef), ref)
	}
}

func TestExistsAndRemove(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ref, err := s.Save(DirBarcodes, "a.png", []byte("a"))
	require.NoError(t, err)

	assert.True(t, s.Exists(ref))
	require.NoError(t, s.Remove(ref))
	assert.False(t, s.Exists(ref))
	require.NoError(t, s.Remove(ref))
}
