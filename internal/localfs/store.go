// Package localfs is the local side of every transfer: the file a download
// writes and the file an upload reads. It sits on a go-billy filesystem so
// tests can run against memfs.
package localfs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// Store reads and writes local files.
type Store struct {
	fs billy.Filesystem
	// abs resolves relative paths against the working directory first. The
	// OS filesystem rejects paths that climb above its root, so "../x" has
	// to become absolute before it reaches billy.
	abs bool
}

// NewOS returns a store over the real filesystem. Relative paths are taken
// from the working directory.
func NewOS() *Store {
	return &Store{fs: osfs.New(""), abs: true}
}

// New wraps any billy filesystem.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// Filesystem exposes the underlying billy filesystem.
func (s *Store) Filesystem() billy.Filesystem { return s.fs }

// EnsureParent creates the parent directory of path, recursively.
func (s *Store) EnsureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return s.fs.MkdirAll(s.resolve(dir), constants.DirMode)
}

// Create opens path for writing, creating or truncating it.
func (s *Store) Create(path string) (io.WriteCloser, error) {
	f, err := s.fs.Create(s.resolve(path))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Open opens path for reading.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := s.fs.Open(s.resolve(path))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Stat describes path.
func (s *Store) Stat(path string) (os.FileInfo, error) {
	return s.fs.Stat(s.resolve(path))
}

func (s *Store) resolve(path string) string {
	if !s.abs || filepath.IsAbs(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
