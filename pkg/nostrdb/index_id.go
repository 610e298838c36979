package nostrdb

import (
	"encoding/binary"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Id bucket layout, 48 bytes (spec §4.C.1): id[32], log_offset:u64,
// state:u8 + 7 bytes padding.
const (
	idBucketOffID        = 0
	idBucketOffLogOffset = 32
	idBucketOffState     = 40
)

// idIndex is component C.1: exact id lookup via open addressing with
// linear probing and tombstones (spec §4.C.1).
type idIndex struct {
	pf          *pagedFile
	header      indexHeader
	bucketStart uint64
}

// openIDIndex opens or creates idx_id.dat.
//
// Design decision (spec §9 open question on ID index sizing): we reserve
// only half the mapped region for buckets at init, leaving the other
// half unused so a future in-place rehash has room to double the bucket
// array without growing the file (option (a) from spec §9).
func openIDIndex(fsys fsx.FS, dir string, fileSize int64) (*idIndex, error) {
	pf, created, err := openPagedFile(fsys, dir, idIndexFileName, fileSize)
	if err != nil {
		return nil, err
	}

	ix := &idIndex{pf: pf, bucketStart: headerSize}

	if created {
		usable := uint64(pf.size) - headerSize
		bucketCount := (usable / 2) / idBucketSize
		ix.header = indexHeader{
			Magic:       idIndexMagic,
			Version:     fileVersion,
			BucketCount: bucketCount,
		}
		ix.writeHeader()
		if err := pf.sync(); err != nil {
			return nil, err
		}
		return ix, nil
	}

	hdr := decodeIndexHeader(pf.data[:headerSize])
	if hdr.Magic != idIndexMagic {
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

func (ix *idIndex) writeHeader() {
	copy(ix.pf.data[:headerSize], encodeIndexHeader(&ix.header))
}

func (ix *idIndex) close() error { return ix.pf.close() }
func (ix *idIndex) sync() error  { return ix.pf.sync() }

func (ix *idIndex) bucketOffset(i uint64) uint64 {
	return ix.bucketStart + i*idBucketSize
}

func (ix *idIndex) bucketState(i uint64) uint8 {
	return ix.pf.data[ix.bucketOffset(i)+idBucketOffState]
}

func (ix *idIndex) bucketID(i uint64) []byte {
	off := ix.bucketOffset(i)
	return ix.pf.data[off+idBucketOffID : off+idBucketOffID+idSize]
}

func (ix *idIndex) bucketLogOffset(i uint64) LogOffset {
	off := ix.bucketOffset(i)
	return binary.LittleEndian.Uint64(ix.pf.data[off+idBucketOffLogOffset:])
}

func (ix *idIndex) setBucket(i uint64, id []byte, logOffset LogOffset, state uint8) {
	off := ix.bucketOffset(i)
	buf := ix.pf.data[off : off+idBucketSize]
	for j := range buf {
		buf[j] = 0
	}
	copy(buf[idBucketOffID:], id)
	binary.LittleEndian.PutUint64(buf[idBucketOffLogOffset:], logOffset)
	buf[idBucketOffState] = state
}

func (ix *idIndex) setState(i uint64, state uint8) {
	ix.pf.data[ix.bucketOffset(i)+idBucketOffState] = state
}

// lookup probes from hash(id)%bucket_count, stopping on EMPTY, skipping
// TOMBSTONE (spec §4.C.1).
func (ix *idIndex) lookup(id []byte) (LogOffset, bool) {
	start := hashFirst8LE(id) % ix.header.BucketCount
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		switch ix.bucketState(slot) {
		case bucketEmpty:
			return 0, false
		case bucketUsed:
			if bytesEqual(ix.bucketID(slot), id) {
				return ix.bucketLogOffset(slot), true
			}
		case bucketTombstone:
			// skip
		}
	}
	return 0, false
}

// insert claims the first EMPTY or TOMBSTONE slot in the probe sequence,
// preferring the first TOMBSTONE seen before a terminating EMPTY slot
// (spec §4.C.1). Returns ErrDuplicate if id is already present, ErrFull
// if the probe wraps back to start without a usable slot.
func (ix *idIndex) insert(id []byte, logOffset LogOffset) error {
	if _, found := ix.lookup(id); found {
		return ErrDuplicate
	}

	start := hashFirst8LE(id) % ix.header.BucketCount
	firstTombstone := uint64(0)
	haveTombstone := false

	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		switch ix.bucketState(slot) {
		case bucketEmpty:
			target := slot
			if haveTombstone {
				target = firstTombstone
			}
			ix.setBucket(target, id, logOffset, bucketUsed)
			ix.header.EntryCount++
			ix.writeHeader()
			return nil
		case bucketTombstone:
			if !haveTombstone {
				firstTombstone = slot
				haveTombstone = true
			}
		case bucketUsed:
			// keep probing
		}
	}

	if haveTombstone {
		ix.setBucket(firstTombstone, id, logOffset, bucketUsed)
		ix.header.EntryCount++
		ix.writeHeader()
		return nil
	}

	return ErrFull
}

// remove tombstones the bucket holding id, if present (spec §4.C.1).
func (ix *idIndex) remove(id []byte) bool {
	start := hashFirst8LE(id) % ix.header.BucketCount
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		switch ix.bucketState(slot) {
		case bucketEmpty:
			return false
		case bucketUsed:
			if bytesEqual(ix.bucketID(slot), id) {
				ix.setState(slot, bucketTombstone)
				ix.writeHeader()
				return true
			}
		}
	}
	return false
}

// needsRehash reports whether the 70% load-factor bound is reached
// (spec §4.C.1, §3 invariant 6). Advisory in v1 (spec §9): rehash itself
// is not implemented, but the bound is still observable via stats.
func (ix *idIndex) needsRehash() bool {
	return ix.header.EntryCount*loadFactorDenominator >= ix.header.BucketCount*loadFactorNumerator
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
