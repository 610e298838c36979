package nostrdb

import (
	"encoding/binary"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Tag bucket layout, 56 bytes (spec §4.C.5): tag_name:u8,
// tag_value:[u8;32], head:u64, count:u32, state:u8 + padding.
const (
	tagBucketOffName  = 0
	tagBucketOffValue = 1
	tagBucketOffHead  = 33
	tagBucketOffCount = 41
	tagBucketOffState = 45
)

// tagIndex is component C.5: a (tag_name, tag_value_prefix32)-keyed
// newest-first linked list (spec §4.C.5). Only single-byte tag names are
// indexed (NIP-01 `#e`, `#p`, `#t`, etc).
type tagIndex struct {
	pf          *pagedFile
	header      indexHeader
	bucketStart uint64
	pool        entryPool
}

func openTagIndex(fsys fsx.FS, dir string, fileSize int64) (*tagIndex, error) {
	pf, created, err := openPagedFile(fsys, dir, tagIndexFileName, fileSize)
	if err != nil {
		return nil, err
	}

	ix := &tagIndex{pf: pf, bucketStart: headerSize}

	if created {
		usable := uint64(pf.size) - headerSize
		bucketRegionSize := usable / bucketRegionFraction
		bucketCount := bucketRegionSize / tagBucketSize
		poolStart := headerSize + bucketCount*tagBucketSize
		poolSize := uint64(pf.size) - poolStart

		ix.header = indexHeader{
			Magic:       tagMagic,
			Version:     fileVersion,
			BucketCount: bucketCount,
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
	if hdr.Magic != tagMagic {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != fileVersion {
		return nil, ErrVersionMismatch
	}
	if !validateHeaderCRC(pf.data[:headerSize], idxOffHeaderCRC) {
		return nil, ErrIndexCorrupt
	}
	ix.header = hdr
	poolStart := headerSize + hdr.BucketCount*tagBucketSize
	ix.pool = entryPool{data: pf.data, poolStart: poolStart, poolSize: hdr.PoolSize}
	return ix, nil
}

func (ix *tagIndex) writeHeader() {
	copy(ix.pf.data[:headerSize], encodeIndexHeader(&ix.header))
}

func (ix *tagIndex) close() error { return ix.pf.close() }
func (ix *tagIndex) sync() error  { return ix.pf.sync() }

// tagValuePrefix returns the 32-byte key derived from a tag value: the
// full decoded binary for 64-char hex values (e/p tags), else a 32-byte
// (zero-padded) prefix of the raw bytes (spec §4.C.5).
func tagValuePrefix(value string) [tagValuePrefixLen]byte {
	var key [tagValuePrefixLen]byte
	if decoded, ok := decodeFixedHex(value, tagValuePrefixLen); ok {
		copy(key[:], decoded)
		return key
	}
	copy(key[:], value)
	return key
}

// hashTag mixes the single-byte tag name into the top byte of the
// value-key hash (spec §4.C.5: "tag_name ⊕ (first-8-bytes of tag_value
// shifted into the top bytes)").
func hashTag(name byte, valueKey []byte) uint64 {
	return hashFirst8LE(valueKey) ^ (uint64(name) << 56)
}

func (ix *tagIndex) bucketOffset(i uint64) uint64 {
	return ix.bucketStart + i*tagBucketSize
}

func (ix *tagIndex) bucketState(i uint64) uint8 {
	return ix.pf.data[ix.bucketOffset(i)+tagBucketOffState]
}

func (ix *tagIndex) bucketMatches(i uint64, name byte, valueKey []byte) bool {
	off := ix.bucketOffset(i)
	if ix.pf.data[off+tagBucketOffName] != name {
		return false
	}
	return bytesEqual(ix.pf.data[off+tagBucketOffValue:off+tagBucketOffValue+tagValuePrefixLen], valueKey)
}

func (ix *tagIndex) bucketHead(i uint64) uint64 {
	off := ix.bucketOffset(i)
	return binary.LittleEndian.Uint64(ix.pf.data[off+tagBucketOffHead:])
}

func (ix *tagIndex) bucketEntryCount(i uint64) uint32 {
	off := ix.bucketOffset(i) + tagBucketOffCount
	return binary.LittleEndian.Uint32(ix.pf.data[off:])
}

// bucketEntryCountFor returns the entry count of the bucket holding
// (name, valueKey), or 0 if no such bucket exists yet. Used by the query
// planner to estimate selectivity when a filter names several tag
// predicates (spec §4.D "the most restrictive (tag_name, value) pair").
func (ix *tagIndex) bucketEntryCountFor(name byte, valueKey []byte) uint32 {
	start := hashTag(name, valueKey) % ix.header.BucketCount
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		state := ix.bucketState(slot)
		if state == bucketEmpty {
			return 0
		}
		if state == bucketUsed && ix.bucketMatches(slot, name, valueKey) {
			return ix.bucketEntryCount(slot)
		}
	}
	return 0
}

func (ix *tagIndex) setBucketHead(i uint64, head uint64) {
	off := ix.bucketOffset(i)
	binary.LittleEndian.PutUint64(ix.pf.data[off+tagBucketOffHead:], head)
}

func (ix *tagIndex) bumpEntryCount(i uint64) {
	off := ix.bucketOffset(i) + tagBucketOffCount
	n := binary.LittleEndian.Uint32(ix.pf.data[off:])
	binary.LittleEndian.PutUint32(ix.pf.data[off:], n+1)
}

func (ix *tagIndex) findOrCreateBucket(name byte, valueKey []byte) (uint64, error) {
	start := hashTag(name, valueKey) % ix.header.BucketCount
	var firstFree uint64
	haveFree := false

probe:
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		switch ix.bucketState(slot) {
		case bucketUsed:
			if ix.bucketMatches(slot, name, valueKey) {
				return slot, nil
			}
		case bucketTombstone:
			if !haveFree {
				firstFree = slot
				haveFree = true
			}
		case bucketEmpty:
			if !haveFree {
				firstFree = slot
				haveFree = true
			}
			break probe
		}
	}

	if !haveFree {
		return 0, ErrFull
	}

	off := ix.bucketOffset(firstFree)
	buf := ix.pf.data[off : off+tagBucketSize]
	for j := range buf {
		buf[j] = 0
	}
	buf[tagBucketOffName] = name
	copy(buf[tagBucketOffValue:], valueKey)
	buf[tagBucketOffState] = bucketUsed
	return firstFree, nil
}

// insert indexes one (name, value) pair for an event. Only called for
// single-byte tag names (spec §4.C.5); the caller filters longer names
// out before calling.
func (ix *tagIndex) insert(name byte, value string, logOffset LogOffset, createdAt int64) error {
	key := tagValuePrefix(value)
	bucket, err := ix.findOrCreateBucket(name, key[:])
	if err != nil {
		return err
	}

	poolOffset, err := ix.pool.alloc(&ix.header)
	if err != nil {
		return err
	}

	head := ix.bucketHead(bucket)
	ix.pool.write(poolOffset, logOffset, createdAt, head)
	ix.setBucketHead(bucket, poolOffset)
	ix.bumpEntryCount(bucket)
	ix.header.EntryCount++
	ix.writeHeader()
	return nil
}

// iterate walks the (name, value) list newest-first (spec §4.C.5).
func (ix *tagIndex) iterate(name byte, value string, since, until int64, limit int, visit func(LogOffset, int64) bool) {
	key := tagValuePrefix(value)
	start := hashTag(name, key[:]) % ix.header.BucketCount
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		state := ix.bucketState(slot)
		if state == bucketEmpty {
			return
		}
		if state == bucketUsed && ix.bucketMatches(slot, name, key[:]) {
			ix.pool.walk(ix.bucketHead(slot), since, until, limit, visit)
			return
		}
	}
}
