package nostrdb

import (
	"encoding/binary"
	"sort"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Timeline entry layout, 16 bytes (spec §4.C.6): created_at:i64,
// log_offset:u64.
const (
	timelineOffCreatedAt = 0
	timelineOffLogOffset = 8
)

// timelineIndex is component C.6: a sorted dense array of
// (created_at, log_offset) in descending created_at order (spec
// §4.C.6). header.BucketCount holds the array's fixed capacity;
// header.EntryCount holds its current used length — the header fields
// are reused rather than renamed so all six indexes share one encoder.
type timelineIndex struct {
	pf         *pagedFile
	header     indexHeader
	arrayStart uint64
}

func openTimelineIndex(fsys fsx.FS, dir string, fileSize int64) (*timelineIndex, error) {
	pf, created, err := openPagedFile(fsys, dir, timelineIndexFile, fileSize)
	if err != nil {
		return nil, err
	}

	ix := &timelineIndex{pf: pf, arrayStart: headerSize}

	if created {
		capacity := (uint64(pf.size) - headerSize) / timelineEntrySize
		ix.header = indexHeader{
			Magic:       timelineMagic,
			Version:     fileVersion,
			BucketCount: capacity,
		}
		ix.writeHeader()
		if err := pf.sync(); err != nil {
			return nil, err
		}
		return ix, nil
	}

	hdr := decodeIndexHeader(pf.data[:headerSize])
	if hdr.Magic != timelineMagic {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != fileVersion {
		return nil, ErrVersionMismatch
	}
	if !validateHeaderCRC(pf.data[:headerSize], idxOffHeaderCRC) {
		return nil, ErrIndexCorrupt
	}
	ix.header = hdr
	return ix, nil
}

func (ix *timelineIndex) writeHeader() {
	copy(ix.pf.data[:headerSize], encodeIndexHeader(&ix.header))
}

func (ix *timelineIndex) close() error { return ix.pf.close() }
func (ix *timelineIndex) sync() error  { return ix.pf.sync() }

func (ix *timelineIndex) entryOffset(i uint64) uint64 {
	return ix.arrayStart + i*timelineEntrySize
}

func (ix *timelineIndex) createdAtAt(i uint64) int64 {
	return int64(binary.LittleEndian.Uint64(ix.pf.data[ix.entryOffset(i)+timelineOffCreatedAt:]))
}

func (ix *timelineIndex) logOffsetAt(i uint64) LogOffset {
	return binary.LittleEndian.Uint64(ix.pf.data[ix.entryOffset(i)+timelineOffLogOffset:])
}

func (ix *timelineIndex) setEntry(i uint64, createdAt int64, logOffset LogOffset) {
	off := ix.entryOffset(i)
	binary.LittleEndian.PutUint64(ix.pf.data[off+timelineOffCreatedAt:], uint64(createdAt))
	binary.LittleEndian.PutUint64(ix.pf.data[off+timelineOffLogOffset:], logOffset)
}

// insertPos returns the first index whose created_at <= newCreatedAt,
// i.e. the position a new entry with that timestamp should be inserted
// at to keep the array sorted descending with ties breaking so later
// insertions sort earlier (spec §3 invariant 4, §4.C.6).
func (ix *timelineIndex) insertPos(newCreatedAt int64) uint64 {
	n := ix.header.EntryCount
	return uint64(sort.Search(int(n), func(i int) bool {
		return ix.createdAtAt(uint64(i)) <= newCreatedAt
	}))
}

// insert places (createdAt, logOffset) at its sorted position, shifting
// later entries right by one slot (spec §4.C.6). Fails ErrFull if the
// array has no room.
func (ix *timelineIndex) insert(createdAt int64, logOffset LogOffset) error {
	if ix.header.EntryCount >= ix.header.BucketCount {
		return ErrFull
	}

	pos := ix.insertPos(createdAt)
	for i := ix.header.EntryCount; i > pos; i-- {
		c := ix.createdAtAt(i - 1)
		o := ix.logOffsetAt(i - 1)
		ix.setEntry(i, c, o)
	}
	ix.setEntry(pos, createdAt, logOffset)

	ix.header.EntryCount++
	ix.writeHeader()
	return nil
}

// firstIndexWithCreatedAtLE returns the start index when restricting by
// until (spec §4.C.6).
func (ix *timelineIndex) firstIndexWithCreatedAtLE(until int64) uint64 {
	n := ix.header.EntryCount
	return uint64(sort.Search(int(n), func(i int) bool {
		return ix.createdAtAt(uint64(i)) <= until
	}))
}

// onePastLastIndexWithCreatedAtGE returns the exclusive end index when
// restricting by since (spec §4.C.6).
func (ix *timelineIndex) onePastLastIndexWithCreatedAtGE(since int64) uint64 {
	n := ix.header.EntryCount
	return uint64(sort.Search(int(n), func(i int) bool {
		return ix.createdAtAt(uint64(i)) < since
	}))
}

// iterate walks [start, end) newest-first, applying since/until and
// stopping at limit (spec §4.C.6).
func (ix *timelineIndex) iterate(since, until int64, limit int, visit func(LogOffset, int64) bool) {
	start := uint64(0)
	if until > 0 {
		start = ix.firstIndexWithCreatedAtLE(until)
	}
	end := ix.header.EntryCount
	if since > 0 {
		end = ix.onePastLastIndexWithCreatedAtGE(since)
	}

	count := 0
	for i := start; i < end; i++ {
		if !visit(ix.logOffsetAt(i), ix.createdAtAt(i)) {
			return
		}
		count++
		if limit > 0 && count >= limit {
			return
		}
	}
}
