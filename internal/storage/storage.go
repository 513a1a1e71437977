// Package storage is the filesystem capability the mailbox protocol runs on.
//
// Every coordination guarantee in signalbox reduces to one primitive: creating a
// file only if it does not already exist. Storage exposes that primitive plus the
// read, remove, and list operations the protocol needs, over an afero.Fs so the
// same code runs against the real disk or an in-memory filesystem in tests.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Entry is a single directory entry returned by List.
type Entry struct {
	Name    string
	IsDir   bool
	ModTime time.Time
}

// Storage is the set of filesystem operations the mailbox depends on.
type Storage interface {
	// MkdirAll creates dir and any missing parents. Existing directories are fine.
	MkdirAll(dir string) error
	// CreateExclusive creates path and writes data to it. It fails with an error
	// matching os.ErrExist when path is already present.
	CreateExclusive(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
	Remove(path string) error
	// List returns the entries of dir sorted by name. A missing dir yields an
	// error matching os.ErrNotExist.
	List(dir string) ([]Entry, error)
	Exists(path string) (bool, error)
}

// FS implements Storage over an afero filesystem.
type FS struct {
	fs      afero.Fs
	durable bool
}

// NewOS returns Storage backed by the operating system filesystem. Writes are
// fsynced and directory entries are synced after creates and removes.
func NewOS() *FS {
	return &FS{fs: afero.NewOsFs(), durable: true}
}

// NewMemory returns Storage backed by an in-memory filesystem.
func NewMemory() *FS {
	return &FS{fs: afero.NewMemMapFs()}
}

// New wraps an arbitrary afero filesystem. No durability syncing is performed.
func New(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// Afero exposes the underlying filesystem, mostly for tests that need to seed files.
func (s *FS) Afero() afero.Fs {
	return s.fs
}

func (s *FS) MkdirAll(dir string) error {
	return s.fs.MkdirAll(dir, dirPerm)
}

func (s *FS) CreateExclusive(path string, data []byte) error {
	if err := s.writeAndSync(path, data); err != nil {
		return err
	}
	return s.syncDir(filepath.Dir(path))
}

func (s *FS) writeAndSync(path string, data []byte) (err error) {
	file, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			if rmErr := s.fs.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = fmt.Errorf("%w (cleanup: %v)", err, rmErr)
			}
		}
	}()
	if len(data) > 0 {
		if _, err = file.Write(data); err != nil {
			return err
		}
	}
	if !s.durable {
		return nil
	}
	return file.Sync()
}

func (s *FS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

func (s *FS) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil {
		return err
	}
	return s.syncDir(filepath.Dir(path))
}

func (s *FS) List(dir string) ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, Entry{
			Name:    info.Name(),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func (s *FS) Exists(path string) (bool, error) {
	_, err := s.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// syncDir fsyncs a directory so its entries are durable. It is a no-op for
// non-durable backends and for platforms that refuse to sync directories.
func (s *FS) syncDir(dir string) error {
	if !s.durable {
		return nil
	}
	file, err := os.Open(dir)
	if err != nil {
		return err
	}
	syncErr := file.Sync()
	closeErr := file.Close()
	if syncErr != nil {
		if isSyncUnsupported(syncErr) {
			return nil
		}
		return syncErr
	}
	return closeErr
}

func isSyncUnsupported(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTSUP)
}

// IsExist reports whether err means the target already exists.
func IsExist(err error) bool {
	return errors.Is(err, fs.ErrExist)
}

// IsNotExist reports whether err means the target is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
