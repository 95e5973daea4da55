// Package files stores rendered documents on the local disk.
package files

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/receipt"
)

type LocalStore struct {
	dir string
}

var _ receipt.FileStore = (*LocalStore)(nil)

// NewLocalStore creates dir when missing.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes content under a unique name derived from name and returns that name.
// Previous versions are left on disk.
func (s *LocalStore) Save(_ context.Context, name string, content []byte) (string, error) {
	fname := uuid.New().String() + "-" + filepath.Base(name)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, fname)); err != nil {
		return "", errors.Wrapf(err, "moving %s", fname)
	}
	return fname, nil
}

func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(path)))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return f, nil
}
