package nostrdb

import (
	"fmt"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Options configures [Open].
type Options struct {
	// Dir is the data directory holding the seven backing files. Created
	// if absent.
	Dir string

	// FS is the filesystem abstraction used for all I/O. Defaults to
	// [fsx.NewReal] when nil.
	FS fsx.FS

	// ContentCeiling is the maximum event content length in bytes.
	// Defaults to 1 MiB (spec §3).
	ContentCeiling int

	// LogFileSize, IndexFileSize are the initial sizes new files are
	// created at (spec §6 "Default initial sizes"). Ignored for files
	// that already exist. Default to 64 MiB and 16 MiB respectively.
	LogFileSize   int64
	IndexFileSize int64
}

func (o *Options) setDefaults() {
	if o.FS == nil {
		o.FS = fsx.NewReal()
	}
	if o.ContentCeiling <= 0 {
		o.ContentCeiling = defaultContentCeiling
	}
	if o.LogFileSize <= 0 {
		o.LogFileSize = defaultLogFileSize
	}
	if o.IndexFileSize <= 0 {
		o.IndexFileSize = defaultIndexFileSize
	}
}

// Store is the event storage engine: an append-only log plus six
// specialised indexes, opened over a data directory (spec §2). A Store
// is single-threaded cooperative (spec §5); callers MUST NOT call its
// methods concurrently from more than one goroutine.
type Store struct {
	opts Options

	log      *eventLog
	idIdx    *idIndex
	pubkey   *pubkeyIndex
	kind     *kindIndex
	pkKind   *pubkeyKindIndex
	tag      *tagIndex
	timeline *timelineIndex

	subs *SubscriptionRegistry

	closed bool
}

// Open opens or creates a store at opts.Dir (spec §6 "open_store"). The
// seven files are opened in a fixed order; any partial failure triggers
// full teardown of whatever was already opened (spec §5 "Resource
// acquisition").
func Open(opts Options) (store *Store, err error) {
	opts.setDefaults()

	if opts.Dir == "" {
		return nil, fmt.Errorf("dir is required: %w", ErrInvalidInput)
	}
	if int64(opts.ContentCeiling) > maxContentCeiling {
		return nil, fmt.Errorf("content ceiling exceeds %d: %w", int64(maxContentCeiling), ErrInvalidInput)
	}
	if err := opts.FS.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", opts.Dir, ErrFileCreate, err)
	}

	s := &Store{opts: opts, subs: NewSubscriptionRegistry()}

	closers := make([]func() error, 0, 7)
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	s.log, err = openEventLog(opts.FS, opts.Dir, opts.LogFileSize, opts.ContentCeiling)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.log.close)

	s.idIdx, err = openIDIndex(opts.FS, opts.Dir, opts.IndexFileSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.idIdx.close)

	s.pubkey, err = openPubkeyIndex(opts.FS, opts.Dir, opts.IndexFileSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.pubkey.close)

	s.kind, err = openKindIndex(opts.FS, opts.Dir, opts.IndexFileSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.kind.close)

	s.pkKind, err = openPubkeyKindIndex(opts.FS, opts.Dir, opts.IndexFileSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.pkKind.close)

	s.tag, err = openTagIndex(opts.FS, opts.Dir, opts.IndexFileSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.tag.close)

	s.timeline, err = openTimelineIndex(opts.FS, opts.Dir, opts.IndexFileSize)
	if err != nil {
		return nil, err
	}
	closers = append(closers, s.timeline.close)

	return s, nil
}

// Close syncs, unmaps, and closes the seven files in reverse open order
// (spec §5 "Resource acquisition").
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.timeline.close())
	record(s.tag.close())
	record(s.pkKind.close())
	record(s.kind.close())
	record(s.pubkey.close())
	record(s.idIdx.close())
	record(s.log.close())

	return firstErr
}

// AppendEvent writes e to the log and registers it in every applicable
// index (spec §2 "Data flow on write", steps 1-2). The subscription
// broadcast (step 3) is the host's responsibility, driven by
// [SubscriptionRegistry.ForEachMatch] after AppendEvent returns.
func (s *Store) AppendEvent(e Event) (LogOffset, AppendOutcome, error) {
	if s.closed {
		return 0, 0, ErrClosed
	}

	id, ok := decodeFixedHex(e.ID, idSize)
	if !ok {
		return 0, 0, fmt.Errorf("id: %w", ErrInvalidEvent)
	}

	if existing, found := s.idIdx.lookup(id); found {
		return existing, Duplicate, nil
	}

	offset, err := s.log.append(e)
	if err != nil {
		return 0, 0, err
	}

	if err := s.idIdx.insert(id, offset); err != nil {
		// The id index ran out of room after the log accepted the
		// record. The record stays in the log (never relocated, spec
		// §3) but is not reachable by id lookup; no rehash exists to
		// add it later.
		return 0, 0, err
	}

	pubkey, _ := decodeFixedHex(e.PubKey, pubKeySize)
	_ = s.pubkey.insert(pubkey, offset, e.CreatedAt)
	_ = s.kind.insert(e.Kind, offset, e.CreatedAt)
	_ = s.pkKind.insert(pubkey, e.Kind, offset, e.CreatedAt)
	_ = s.timeline.insert(e.CreatedAt, offset)

	for _, t := range e.Tags {
		if len(t.Name) != 1 || len(t.Values) == 0 {
			continue
		}
		_ = s.tag.insert(t.Name[0], t.Values[0], offset, e.CreatedAt)
	}

	return offset, Stored, nil
}

// ReadEvent decodes the record at offset (spec §6 "read_event").
func (s *Store) ReadEvent(offset LogOffset) (Event, error) {
	if s.closed {
		return Event{}, ErrClosed
	}
	return s.log.read(offset)
}

// DeleteEvent tombstones the event with the given hex id (spec §6
// "delete_event"). Returns ErrNotFound if no live event has that id.
func (s *Store) DeleteEvent(id string) error {
	if s.closed {
		return ErrClosed
	}
	raw, ok := decodeFixedHex(id, idSize)
	if !ok {
		return fmt.Errorf("id: %w", ErrInvalidEvent)
	}

	offset, found := s.idIdx.lookup(raw)
	if !found {
		return ErrNotFound
	}

	s.log.tombstone(offset)
	s.idIdx.remove(raw)
	return nil
}

// Sync flushes all seven files (spec §5 "Crash model", v1 option (b):
// the store is consistent at sync boundaries; hosts that need durability
// per-event should call Sync after every AppendEvent).
func (s *Store) Sync() error {
	if s.closed {
		return ErrClosed
	}
	for _, sync := range []func() error{
		s.log.sync, s.idIdx.sync, s.pubkey.sync, s.kind.sync,
		s.pkKind.sync, s.tag.sync, s.timeline.sync,
	} {
		if err := sync(); err != nil {
			return err
		}
	}
	return nil
}

// Subscriptions returns the store's subscription registry (spec §4.E).
func (s *Store) Subscriptions() *SubscriptionRegistry {
	return s.subs
}

// IndexedTagNames returns the fixed list of common NIP-01 tag names
// "e", "p" and "t", for introspection via the CLI `info` command. It is
// not derived from the stored data: AppendEvent indexes every tag whose
// name is a single byte, so names outside this list are indexed too.
func (s *Store) IndexedTagNames() []string {
	return []string{"e", "p", "t"}
}

// VerifyIntegrity returns a murmur3 checksum of each of the seven
// backing files' full mapped region, keyed by file name. It is an
// offline diagnostic only (spec §5 crash-model note) surfaced by the
// CLI `info` command, not part of the hot append/query path and not
// checked automatically on Open.
func (s *Store) VerifyIntegrity() map[string]uint32 {
	return map[string]uint32{
		logFileName:         s.log.pf.verifyIntegrity(),
		idIndexFileName:     s.idIdx.pf.verifyIntegrity(),
		pubkeyIndexFileName: s.pubkey.pf.verifyIntegrity(),
		kindIndexFileName:   s.kind.pf.verifyIntegrity(),
		pkKindIndexFileName: s.pkKind.pf.verifyIntegrity(),
		tagIndexFileName:    s.tag.pf.verifyIntegrity(),
		timelineIndexFile:   s.timeline.pf.verifyIntegrity(),
	}
}
