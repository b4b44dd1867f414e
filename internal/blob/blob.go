// Package blob stores attachment contents on an afero filesystem, one file
// per attachment named by its UUID.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store keeps blobs under a root directory.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a store rooted at root on fs. The directory is created on
// first write.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// NewOS returns a store on the host filesystem.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

// Fs exposes the underlying filesystem, e.g. for staging uploads.
func (s *Store) Fs() afero.Fs { return s.fs }

// FullPath returns the path of the blob with the given uuid.
func (s *Store) FullPath(uuid string) string {
	return filepath.Join(s.root, uuid)
}

// TempFile creates a staging file for an upload in the store's temp area.
func (s *Store) TempFile() (afero.File, error) {
	dir := filepath.Join(s.root, ".tmp")
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob: temp dir: %w", err)
	}
	f, err := afero.TempFile(s.fs, dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("blob: temp file: %w", err)
	}
	return f, nil
}

// Move places the staged file at tempPath under uuid. A rename is tried
// first; filesystems that refuse it get a copy and remove.
func (s *Store) Move(tempPath, uuid string) error {
	if err := s.fs.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("blob: root dir: %w", err)
	}
	dst := s.FullPath(uuid)
	if err := s.fs.Rename(tempPath, dst); err == nil {
		return nil
	}
	if err := s.copy(tempPath, dst); err != nil {
		return fmt.Errorf("blob: move %s: %w", uuid, err)
	}
	if err := s.fs.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: remove staged %s: %w", tempPath, err)
	}
	return nil
}

func (s *Store) copy(src, dst string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Open returns a reader for the blob.
func (s *Store) Open(uuid string) (afero.File, error) {
	f, err := s.fs.Open(s.FullPath(uuid))
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", uuid, err)
	}
	return f, nil
}

// Exists reports whether the blob is present.
func (s *Store) Exists(uuid string) (bool, error) {
	ok, err := afero.Exists(s.fs, s.FullPath(uuid))
	if err != nil {
		return false, fmt.Errorf("blob: stat %s: %w", uuid, err)
	}
	return ok, nil
}

// Delete removes the blob. A missing blob is not an error.
func (s *Store) Delete(uuid string) error {
	if err := s.fs.Remove(s.FullPath(uuid)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: delete %s: %w", uuid, err)
	}
	return nil
}
