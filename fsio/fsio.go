// Package fsio wraps github.com/spf13/afero the same way the teacher
// repo's sysio package wraps it (sysio/ionodeFile.go): a single swappable
// afero.Fs lets production code talk to the real filesystem while tests
// run against afero.NewMemMapFs(), with no behavioral difference in the
// calling code.
//
// tcmur uses this for two things: the control interpreter's "source" verb
// (read a file of commands off disk) and the ram handler's optional
// file-backed mode.
package fsio

import (
	"io"

	"github.com/spf13/afero"
)

// Service is the filesystem a running tcmur instance reads source files
// and ram backing files from.
type Service struct {
	fs afero.Fs
}

// NewOS returns a Service backed by the real operating-system filesystem.
func NewOS() *Service {
	return &Service{fs: afero.NewOsFs()}
}

// NewMem returns a Service backed by an in-memory filesystem, for tests.
func NewMem() *Service {
	return &Service{fs: afero.NewMemMapFs()}
}

// Fs exposes the underlying afero.Fs for callers (e.g. handler
// implementations) that want the full afero surface.
func (s *Service) Fs() afero.Fs { return s.fs }

// Exists reports whether path is present.
func (s *Service) Exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	return err == nil && ok
}

// ReadFileIfExists returns the full contents of path, or nil with no
// error if path does not exist -- used by handlers that treat a
// missing backing file as "start empty" rather than a failure.
func ReadFileIfExists(s *Service, path string) ([]byte, error) {
	if !s.Exists(path) {
		return nil, nil
	}
	return afero.ReadFile(s.fs, path)
}

// WriteFile writes data to path, creating or truncating it, matching
// how original_source/ram.c persists its backing file at close time.
func WriteFile(s *Service, path string, data []byte) error {
	return afero.WriteFile(s.fs, path, data, 0644)
}

// ReadAtMost reads at most limit bytes from path, matching spec.md
// section 6's "a single source file <= 4096 bytes" limit: the caller
// passes that limit and gets back exactly what's on disk, truncated if
// the file is larger.
func (s *Service) ReadAtMost(path string, limit int) ([]byte, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
