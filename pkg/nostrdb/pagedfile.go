package nostrdb

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// pagedFile is component A (spec §4.A): it locates, creates, memory-maps,
// syncs, and unmaps one of the seven data files. It knows nothing about
// header layout beyond the common 64-byte size; log.go and the index
// files interpret the header and payload region once mapped.
type pagedFile struct {
	fsys fsx.File
	fd   int
	data []byte
	size int64
	path string
}

// openPagedFile opens path, creating it at defaultSize if absent. created
// reports whether the file was newly created (and thus needs header
// initialisation by the caller).
func openPagedFile(fsys fsx.FS, dir, name string, defaultSize int64) (pf *pagedFile, created bool, err error) {
	path := filepath.Join(dir, name)

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w: %v", path, ErrFileOpen, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("%s: %w: %v", path, ErrFileOpen, err)
	}

	size := info.Size()
	created = size == 0

	if created {
		if err := f.Truncate(defaultSize); err != nil {
			_ = f.Close()
			return nil, false, fmt.Errorf("%s: %w: %v", path, ErrFileCreate, err)
		}
		size = defaultSize
	}

	if size < headerSize {
		_ = f.Close()
		return nil, false, fmt.Errorf("%s: %w: file smaller than header", path, ErrInvalidMagic)
	}

	fd := int(f.Fd())

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("%s: %w: %v", path, ErrMmapFailed, err)
	}

	return &pagedFile{fsys: f, fd: fd, data: data, size: size, path: path}, created, nil
}

// sync flushes dirty pages to the backing file with durability guarantees
// equivalent to a synchronous msync (spec §4.A).
func (pf *pagedFile) sync() error {
	if err := unix.Msync(pf.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%s: msync: %w", pf.path, err)
	}
	return nil
}

// close syncs, unmaps, and closes the underlying file descriptor, in that
// order (spec §4.A).
func (pf *pagedFile) close() error {
	syncErr := pf.sync()

	unmapErr := unix.Munmap(pf.data)
	pf.data = nil

	closeErr := pf.fsys.Close()

	switch {
	case syncErr != nil:
		return syncErr
	case unmapErr != nil:
		return fmt.Errorf("%s: munmap: %w", pf.path, unmapErr)
	case closeErr != nil:
		return fmt.Errorf("%s: %w", pf.path, closeErr)
	}
	return nil
}

// verifyIntegrity returns a murmur3 checksum over the whole mapped region,
// used only by offline tooling (the CLI `info` command) to spot
// page-level corruption beyond the header CRC (spec §5 crash-model note).
// Not called from any append/query hot path.
func (pf *pagedFile) verifyIntegrity() uint32 {
	return pageChecksum(pf.data)
}
