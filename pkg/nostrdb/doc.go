// Package nostrdb is a persistent, memory-mapped event store for a
// Nostr-speaking relay.
//
// It owns seven files in a data directory: an append-only event log and
// six specialised indexes (id, pubkey, kind, pubkey+kind, tag, timeline)
// that together answer filter queries and drive subscription matching.
//
// # Basic Usage
//
//	store, err := nostrdb.Open(nostrdb.Options{Dir: "/var/lib/relay"})
//	if err != nil {
//	    // handle corruption/version errors by recreating the data directory
//	}
//	defer store.Close()
//
//	offset, outcome, err := store.AppendEvent(event)
//	got, err := store.ReadEvent(offset)
//	results, err := store.Query([]nostrdb.Filter{filter})
//
// # Concurrency
//
// The store is single-threaded cooperative (see spec §5): every operation
// runs on one goroutine driven by the host's event loop. There are no
// internal locks; callers MUST NOT call Store methods concurrently from
// more than one goroutine.
//
// # Error Handling
//
// Rebuild-class errors ([ErrInvalidMagic], [ErrVersionMismatch],
// [ErrIndexCorrupt]) mean the data directory is damaged or was written by
// an incompatible version; recreate it.
// Operational errors ([ErrFull], [ErrNotFound], [ErrDuplicate],
// [ErrInvalidEvent]) are ordinary result codes from a single operation and
// do not imply store-wide damage.
package nostrdb
