// Package storage keeps barcode images and book covers on local disk.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Directories under the data dir.
const (
	DirBarcodes = "barcodes"
	DirCovers   = "covers"
)

var ErrInvalidRef = errors.New("invalid storage reference")

// Store saves files under a root directory and hands back references relative
// to it, e.g. "barcodes/barcode_012345678901.png".
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Save writes data to dir/name atomically and returns its reference. An
// existing file with the same name is replaced.
func (s *Store) Save(dir, name string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", errors.WithStack(ErrInvalidRef)
	}
	ref := filepath.ToSlash(filepath.Join(dir, name))
	path, err := s.Path(ref)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.WithStack(err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", errors.WithStack(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.WithStack(err)
	}

	return ref, nil
}

// Path resolves a reference to a file path inside the root.
func (s *Store) Path(ref string) (string, error) {
	if ref == "" || filepath.IsAbs(ref) {
		return "", errors.WithStack(ErrInvalidRef)
	}
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", errors.WithStack(ErrInvalidRef)
	}
	return filepath.Join(s.root, cleaned), nil
}

func (s *Store) Read(ref string) ([]byte, error) {
	path, err := s.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

func (s *Store) Exists(ref string) bool {
	path, err := s.Path(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Remove deletes the file behind ref. A missing file is not an error.
func (s *Store) Remove(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}
