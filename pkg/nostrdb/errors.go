package nostrdb

import "errors"

// Sentinel errors returned by Store operations. Callers should use
// [errors.Is] rather than comparing error values directly, since wrapped
// variants may carry additional context (offending path, offset, etc).
var (
	// ErrFileOpen means an on-disk file could not be opened.
	ErrFileOpen = errors.New("nostrdb: file open failed")

	// ErrFileCreate means an on-disk file could not be created or sized.
	ErrFileCreate = errors.New("nostrdb: file create failed")

	// ErrMmapFailed means the mmap syscall failed while opening a file.
	ErrMmapFailed = errors.New("nostrdb: mmap failed")

	// ErrInvalidMagic means a file's header magic does not match its
	// expected value. The data directory is damaged or was created by a
	// different tool; recreate it.
	ErrInvalidMagic = errors.New("nostrdb: invalid file magic")

	// ErrVersionMismatch means a file's header version is not one this
	// build understands. Recreate the data directory or use a matching
	// build.
	ErrVersionMismatch = errors.New("nostrdb: unsupported file version")

	// ErrFull means a log or index region has no room for the requested
	// write. v1 does not grow files; recreate the store with a larger
	// configured size.
	ErrFull = errors.New("nostrdb: region full")

	// ErrNotFound means the requested id/offset has no live record.
	ErrNotFound = errors.New("nostrdb: not found")

	// ErrDuplicate means an event with this id is already stored.
	ErrDuplicate = errors.New("nostrdb: duplicate event id")

	// ErrInvalidEvent means the event failed validation (hex decode of
	// id/pubkey/sig, field length, or content/tag limits).
	ErrInvalidEvent = errors.New("nostrdb: invalid event")

	// ErrIndexCorrupt means an internal consistency check inside an
	// index failed. Indicates a bug or on-disk corruption; callers may
	// choose to abort the process.
	ErrIndexCorrupt = errors.New("nostrdb: index corrupt")

	// ErrClosed means the store or a resource derived from it was used
	// after Close.
	ErrClosed = errors.New("nostrdb: store is closed")

	// ErrInvalidInput means an argument failed validation before any
	// I/O was attempted (nil pointer, out-of-range field, malformed
	// filter).
	ErrInvalidInput = errors.New("nostrdb: invalid input")
)
