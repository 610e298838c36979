package nostrdb

import (
	"encoding/binary"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Pubkey bucket layout, 48 bytes (spec §4.C.2): pubkey[32],
// head_entry_offset:u64, entry_count:u32, state:u8 + 3 bytes padding.
const (
	pkBucketOffPubKey    = 0
	pkBucketOffHead      = 32
	pkBucketOffEntryCnt  = 40
	pkBucketOffState     = 44
)

// bucketRegionFraction is the share of a linked-list index file's usable
// space (after the header) given to the bucket array; the remainder
// backs the entry pool. A fixed split avoids the circular sizing problem
// of deriving bucket_count from a target load factor against a pool
// capacity that itself depends on entry size versus bucket size.
const bucketRegionFraction = 4 // buckets get 1/4, pool gets 3/4

// pubkeyIndex is component C.2: a keyed newest-first linked list per
// pubkey (spec §4.C.2).
type pubkeyIndex struct {
	pf          *pagedFile
	header      indexHeader
	bucketStart uint64
	pool        entryPool
}

func openPubkeyIndex(fsys fsx.FS, dir string, fileSize int64) (*pubkeyIndex, error) {
	pf, created, err := openPagedFile(fsys, dir, pubkeyIndexFileName, fileSize)
	if err != nil {
		return nil, err
	}

	ix := &pubkeyIndex{pf: pf, bucketStart: headerSize}

	if created {
		usable := uint64(pf.size) - headerSize
		bucketRegionSize := usable / bucketRegionFraction
		bucketCount := bucketRegionSize / pubkeyBucketSize
		poolStart := headerSize + bucketCount*pubkeyBucketSize
		poolSize := uint64(pf.size) - poolStart

		ix.header = indexHeader{
			Magic:       pubkeyMagic,
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
	if hdr.Magic != pubkeyMagic {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != fileVersion {
		return nil, ErrVersionMismatch
	}
	if !validateHeaderCRC(pf.data[:headerSize], idxOffHeaderCRC) {
		return nil, ErrIndexCorrupt
	}
	ix.header = hdr
	poolStart := headerSize + hdr.BucketCount*pubkeyBucketSize
	ix.pool = entryPool{data: pf.data, poolStart: poolStart, poolSize: hdr.PoolSize}
	return ix, nil
}

func (ix *pubkeyIndex) writeHeader() {
	copy(ix.pf.data[:headerSize], encodeIndexHeader(&ix.header))
}

func (ix *pubkeyIndex) close() error { return ix.pf.close() }
func (ix *pubkeyIndex) sync() error  { return ix.pf.sync() }

func (ix *pubkeyIndex) bucketOffset(i uint64) uint64 {
	return ix.bucketStart + i*pubkeyBucketSize
}

func (ix *pubkeyIndex) bucketState(i uint64) uint8 {
	return ix.pf.data[ix.bucketOffset(i)+pkBucketOffState]
}

func (ix *pubkeyIndex) bucketKey(i uint64) []byte {
	off := ix.bucketOffset(i)
	return ix.pf.data[off+pkBucketOffPubKey : off+pkBucketOffPubKey+pubKeySize]
}

func (ix *pubkeyIndex) bucketHead(i uint64) uint64 {
	off := ix.bucketOffset(i)
	return binary.LittleEndian.Uint64(ix.pf.data[off+pkBucketOffHead:])
}

func (ix *pubkeyIndex) setBucketHead(i uint64, head uint64) {
	off := ix.bucketOffset(i)
	binary.LittleEndian.PutUint64(ix.pf.data[off+pkBucketOffHead:], head)
}

func (ix *pubkeyIndex) bumpEntryCount(i uint64) {
	off := ix.bucketOffset(i) + pkBucketOffEntryCnt
	n := binary.LittleEndian.Uint32(ix.pf.data[off:])
	binary.LittleEndian.PutUint32(ix.pf.data[off:], n+1)
}

// findOrCreateBucket returns the bucket index for pubkey, creating it in
// the first EMPTY/TOMBSTONE slot encountered if absent. Returns ErrFull
// if the probe wraps around with no usable slot.
func (ix *pubkeyIndex) findOrCreateBucket(pubkey []byte) (uint64, error) {
	start := hashFirst8LE(pubkey) % ix.header.BucketCount
	var firstFree uint64
	haveFree := false

probe:
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		switch ix.bucketState(slot) {
		case bucketUsed:
			if bytesEqual(ix.bucketKey(slot), pubkey) {
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
	buf := ix.pf.data[off : off+pubkeyBucketSize]
	for j := range buf {
		buf[j] = 0
	}
	copy(buf[pkBucketOffPubKey:], pubkey)
	buf[pkBucketOffState] = bucketUsed
	return firstFree, nil
}

// insert prepends a new entry to pubkey's list (spec §4.C.2).
func (ix *pubkeyIndex) insert(pubkey []byte, logOffset LogOffset, createdAt int64) error {
	bucket, err := ix.findOrCreateBucket(pubkey)
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

// iterate walks pubkey's list newest-first applying the time window (spec
// §4.C.2).
func (ix *pubkeyIndex) iterate(pubkey []byte, since, until int64, limit int, visit func(LogOffset, int64) bool) {
	start := hashFirst8LE(pubkey) % ix.header.BucketCount
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		state := ix.bucketState(slot)
		if state == bucketEmpty {
			return
		}
		if state == bucketUsed && bytesEqual(ix.bucketKey(slot), pubkey) {
			ix.pool.walk(ix.bucketHead(slot), since, until, limit, visit)
			return
		}
	}
}
