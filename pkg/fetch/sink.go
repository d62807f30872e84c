package fetch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Sink receives fetched document payloads. Implementations decide where
// the bytes land; the fetcher only names them.
type Sink interface {
	// Exists reports whether a document with this name was already stored.
	Exists(name string) (bool, error)

	// Store writes the document payload under the given name and returns
	// the number of bytes written.
	Store(name string, r io.Reader) (int64, error)
}

// FileSink stores documents as files under a destination directory.
type FileSink struct {
	fs  afero.Fs
	dir string
}

// NewFileSink creates a sink writing to the OS filesystem.
func NewFileSink(dir string) (*FileSink, error) {
	return NewFileSinkWithFs(afero.NewOsFs(), dir)
}

// NewFileSinkWithFs creates a sink on an explicit filesystem (for testing).
func NewFileSinkWithFs(fs afero.Fs, dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	return &FileSink{fs: fs, dir: dir}, nil
}

// Exists implements Sink.
func (s *FileSink) Exists(name string) (bool, error) {
	path, err := s.resolve(name)
	if err != nil {
		return false, err
	}

	_, err = s.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Store implements Sink. The payload is written to a temporary file and
// renamed into place, so a crashed write never leaves a partial document
// under the final name.
func (s *FileSink) Store(name string, r io.Reader) (int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, err
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create document directory: %w", err)
	}

	tmp := path + ".part"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create document file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return 0, fmt.Errorf("write document: %w", err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return 0, fmt.Errorf("close document file: %w", err)
	}

	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return 0, fmt.Errorf("finalize document file: %w", err)
	}

	return n, nil
}

// resolve maps a document name to its path, rejecting escapes from the
// destination directory.
func (s *FileSink) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("document name is required")
	}
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid document name: %s", name)
	}
	return filepath.Join(s.dir, name), nil
}
