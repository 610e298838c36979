package nostrdb

import (
	"encoding/binary"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Pubkey+kind bucket layout, 56 bytes (spec §4.C.4): pubkey[32], kind:u32,
// head:u64, count:u32, state:u8 + 7 bytes padding.
const (
	pkKindBucketOffPubKey = 0
	pkKindBucketOffKind   = 32
	pkKindBucketOffHead   = 36
	pkKindBucketOffCount  = 44
	pkKindBucketOffState  = 48
)

// pubkeyKindIndex is component C.4: a composite-keyed newest-first linked
// list over (pubkey, kind) (spec §4.C.4).
type pubkeyKindIndex struct {
	pf          *pagedFile
	header      indexHeader
	bucketStart uint64
	pool        entryPool
}

func openPubkeyKindIndex(fsys fsx.FS, dir string, fileSize int64) (*pubkeyKindIndex, error) {
	pf, created, err := openPagedFile(fsys, dir, pkKindIndexFileName, fileSize)
	if err != nil {
		return nil, err
	}

	ix := &pubkeyKindIndex{pf: pf, bucketStart: headerSize}

	if created {
		usable := uint64(pf.size) - headerSize
		bucketRegionSize := usable / bucketRegionFraction
		bucketCount := bucketRegionSize / pkKindBucketSize
		poolStart := headerSize + bucketCount*pkKindBucketSize
		poolSize := uint64(pf.size) - poolStart

		ix.header = indexHeader{
			Magic:       pkKindMagic,
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
	if hdr.Magic != pkKindMagic {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != fileVersion {
		return nil, ErrVersionMismatch
	}
	if !validateHeaderCRC(pf.data[:headerSize], idxOffHeaderCRC) {
		return nil, ErrIndexCorrupt
	}
	ix.header = hdr
	poolStart := headerSize + hdr.BucketCount*pkKindBucketSize
	ix.pool = entryPool{data: pf.data, poolStart: poolStart, poolSize: hdr.PoolSize}
	return ix, nil
}

func (ix *pubkeyKindIndex) writeHeader() {
	copy(ix.pf.data[:headerSize], encodeIndexHeader(&ix.header))
}

func (ix *pubkeyKindIndex) close() error { return ix.pf.close() }
func (ix *pubkeyKindIndex) sync() error  { return ix.pf.sync() }

// hashPubkeyKind mixes the pubkey's first 8 bytes with the golden-ratio
// scaled kind value (spec §4.C.4).
func hashPubkeyKind(pubkey []byte, kind uint32) uint64 {
	return hashFirst8LE(pubkey) ^ (uint64(kind) * goldenRatio64)
}

func (ix *pubkeyKindIndex) bucketOffset(i uint64) uint64 {
	return ix.bucketStart + i*pkKindBucketSize
}

func (ix *pubkeyKindIndex) bucketState(i uint64) uint8 {
	return ix.pf.data[ix.bucketOffset(i)+pkKindBucketOffState]
}

func (ix *pubkeyKindIndex) bucketMatches(i uint64, pubkey []byte, kind uint32) bool {
	off := ix.bucketOffset(i)
	if binary.LittleEndian.Uint32(ix.pf.data[off+pkKindBucketOffKind:]) != kind {
		return false
	}
	return bytesEqual(ix.pf.data[off+pkKindBucketOffPubKey:off+pkKindBucketOffPubKey+pubKeySize], pubkey)
}

func (ix *pubkeyKindIndex) bucketHead(i uint64) uint64 {
	off := ix.bucketOffset(i)
	return binary.LittleEndian.Uint64(ix.pf.data[off+pkKindBucketOffHead:])
}

func (ix *pubkeyKindIndex) setBucketHead(i uint64, head uint64) {
	off := ix.bucketOffset(i)
	binary.LittleEndian.PutUint64(ix.pf.data[off+pkKindBucketOffHead:], head)
}

func (ix *pubkeyKindIndex) bumpEntryCount(i uint64) {
	off := ix.bucketOffset(i) + pkKindBucketOffCount
	n := binary.LittleEndian.Uint32(ix.pf.data[off:])
	binary.LittleEndian.PutUint32(ix.pf.data[off:], n+1)
}

func (ix *pubkeyKindIndex) findOrCreateBucket(pubkey []byte, kind uint32) (uint64, error) {
	start := hashPubkeyKind(pubkey, kind) % ix.header.BucketCount
	var firstFree uint64
	haveFree := false

probe:
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		switch ix.bucketState(slot) {
		case bucketUsed:
			if ix.bucketMatches(slot, pubkey, kind) {
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
	buf := ix.pf.data[off : off+pkKindBucketSize]
	for j := range buf {
		buf[j] = 0
	}
	copy(buf[pkKindBucketOffPubKey:], pubkey)
	binary.LittleEndian.PutUint32(buf[pkKindBucketOffKind:], kind)
	buf[pkKindBucketOffState] = bucketUsed
	return firstFree, nil
}

// insert prepends a new entry under (pubkey, kind) (spec §4.C.4).
func (ix *pubkeyKindIndex) insert(pubkey []byte, kind uint32, logOffset LogOffset, createdAt int64) error {
	bucket, err := ix.findOrCreateBucket(pubkey, kind)
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

// iterate walks the (pubkey, kind) list newest-first (spec §4.C.4).
func (ix *pubkeyKindIndex) iterate(pubkey []byte, kind uint32, since, until int64, limit int, visit func(LogOffset, int64) bool) {
	start := hashPubkeyKind(pubkey, kind) % ix.header.BucketCount
	for i := uint64(0); i < ix.header.BucketCount; i++ {
		slot := (start + i) % ix.header.BucketCount
		state := ix.bucketState(slot)
		if state == bucketEmpty {
			return
		}
		if state == bucketUsed && ix.bucketMatches(slot, pubkey, kind) {
			ix.pool.walk(ix.bucketHead(slot), since, until, limit, visit)
			return
		}
	}
}
