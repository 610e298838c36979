package nostrdb

import (
	"encoding/binary"
	"fmt"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Kind slot layout, 16 bytes (spec §4.C.3): head_entry_offset:u64,
// entry_count:u64. Addressed directly by kind value, O(1), no hashing.
const (
	kindSlotOffHead  = 0
	kindSlotOffCount = 8
)

// kindSlotsRegionSize is fixed regardless of file size: one slot per
// possible u16 kind value (spec §4.C.3 "A direct array of 65,536 slots").
const kindSlotsRegionSize = uint64(kindSlotCount) * kindSlotSize

// kindIndex is component C.3: a direct table of lists keyed by kind
// (spec §4.C.3).
type kindIndex struct {
	pf         *pagedFile
	header     indexHeader
	slotsStart uint64
	pool       entryPool
}

func openKindIndex(fsys fsx.FS, dir string, fileSize int64) (*kindIndex, error) {
	pf, created, err := openPagedFile(fsys, dir, kindIndexFileName, fileSize)
	if err != nil {
		return nil, err
	}

	poolStart := headerSize + kindSlotsRegionSize
	if uint64(pf.size) <= poolStart {
		_ = pf.close()
		return nil, fmt.Errorf("kind index file size too small for fixed slot table: %w", ErrInvalidInput)
	}

	ix := &kindIndex{pf: pf, slotsStart: headerSize}

	if created {
		poolSize := uint64(pf.size) - poolStart
		ix.header = indexHeader{
			Magic:       kindMagic,
			Version:     fileVersion,
			BucketCount: kindSlotCount,
			PoolSize:    poolSize,
		}
		ix.pool = entryPool{data: pf.data, poolStart: poolStart, poolSize: poolSize}
		ix.writeHeader()
		if err := pf.sync(); err != nil {
			return nil, err
		}
		return ix, nil
	}

	hdr := decodeIndexHeader(pf.data[:headerSize])
	if hdr.Magic != kindMagic {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != fileVersion {
		return nil, ErrVersionMismatch
	}
	if !validateHeaderCRC(pf.data[:headerSize], idxOffHeaderCRC) {
		return nil, ErrIndexCorrupt
	}
	ix.header = hdr
	ix.pool = entryPool{data: pf.data, poolStart: poolStart, poolSize: hdr.PoolSize}
	return ix, nil
}

func (ix *kindIndex) writeHeader() {
	copy(ix.pf.data[:headerSize], encodeIndexHeader(&ix.header))
}

func (ix *kindIndex) close() error { return ix.pf.close() }
func (ix *kindIndex) sync() error  { return ix.pf.sync() }

func (ix *kindIndex) slotOffset(kind uint32) uint64 {
	return ix.slotsStart + uint64(kind)*kindSlotSize
}

func (ix *kindIndex) slotHead(kind uint32) uint64 {
	return binary.LittleEndian.Uint64(ix.pf.data[ix.slotOffset(kind)+kindSlotOffHead:])
}

func (ix *kindIndex) setSlotHead(kind uint32, head uint64) {
	binary.LittleEndian.PutUint64(ix.pf.data[ix.slotOffset(kind)+kindSlotOffHead:], head)
}

func (ix *kindIndex) bumpSlotCount(kind uint32) {
	off := ix.slotOffset(kind) + kindSlotOffCount
	n := binary.LittleEndian.Uint64(ix.pf.data[off:])
	binary.LittleEndian.PutUint64(ix.pf.data[off:], n+1)
}

// insert prepends a new entry to kind's list. Kind values outside
// [0,65535] are rejected (spec §4.C.3).
func (ix *kindIndex) insert(kind uint32, logOffset LogOffset, createdAt int64) error {
	if kind > maxKindValue {
		return fmt.Errorf("kind %d exceeds %d: %w", kind, maxKindValue, ErrInvalidInput)
	}

	poolOffset, err := ix.pool.alloc(&ix.header)
	if err != nil {
		return err
	}

	head := ix.slotHead(kind)
	ix.pool.write(poolOffset, logOffset, createdAt, head)
	ix.setSlotHead(kind, poolOffset)
	ix.bumpSlotCount(kind)
	ix.header.EntryCount++
	ix.writeHeader()
	return nil
}

// iterate walks kind's list newest-first applying the time window (spec
// §4.C.3).
func (ix *kindIndex) iterate(kind uint32, since, until int64, limit int, visit func(LogOffset, int64) bool) {
	if kind > maxKindValue {
		return
	}
	ix.pool.walk(ix.slotHead(kind), since, until, limit, visit)
}
