// Package fsx provides the filesystem abstraction used by the paged file
// backing (component A of the event store).
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//
// Example usage:
//
//	fsys := fsx.NewReal()
//	f, err := fsys.OpenFile("events.dat", os.O_RDWR, 0)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
package fsx

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. Fd must return a descriptor
// usable with mmap/msync syscalls until the file is closed.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor, used for mmap/ftruncate/fsync.
	Fd() uintptr

	// Stat returns the current file info.
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk.
	Sync() error

	// Truncate changes the size of the file.
	Truncate(size int64) error
}

// FS defines the filesystem operations the store's paged file backing
// needs: locate, create, size a handful of fixed-name files in a data
// directory.
//
// Implementations must be safe for concurrent use by multiple goroutines,
// though the store itself is single-threaded cooperative (see spec §5) and
// never calls FS concurrently from more than one goroutine.
type FS interface {
	// OpenFile opens a file with the given flags/permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info. Returns an error satisfying [os.IsNotExist] if absent.
	Stat(path string) (os.FileInfo, error)

	// MkdirAll creates a directory and all parents, akin to [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error
}

// Real implements [FS] using the real filesystem. All methods are pure
// passthroughs to the [os] package.
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real { return &Real{} }

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (r *Real) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (r *Real) Remove(path string) error { return os.Remove(path) }

// Compile-time interface checks.
var (
	_ FS   = (*Real)(nil)
	_ File = (*os.File)(nil)
)
