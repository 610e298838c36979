package nostrdb

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/spaolacci/murmur3"
)

// File names and magics (spec §6). Every file begins with a 64-byte
// header; all multi-byte integers are little-endian throughout.
const (
	logFileName          = "events.dat"
	idIndexFileName      = "idx_id.dat"
	pubkeyIndexFileName  = "idx_pubkey.dat"
	kindIndexFileName    = "idx_kind.dat"
	pkKindIndexFileName  = "idx_pubkey_kind.dat"
	tagIndexFileName     = "idx_tag.dat"
	timelineIndexFile    = "idx_timeline.dat"
)

var (
	logMagic      = [8]byte{'N', 'O', 'S', 'T', 'R', 'D', 'B', 0}
	idIndexMagic  = [8]byte{'N', 'S', 'T', 'I', 'D', 'I', 'D', 0}
	pubkeyMagic   = [8]byte{'N', 'S', 'T', 'I', 'D', 'P', 'K', 0}
	kindMagic     = [8]byte{'N', 'S', 'T', 'I', 'D', 'K', 0, 0}
	pkKindMagic   = [8]byte{'N', 'S', 'T', 'I', 'D', 'P', 'K', 'K'}
	tagMagic      = [8]byte{'N', 'S', 'T', 'I', 'D', 'T', 'A', 'G'}
	timelineMagic = [8]byte{'N', 'S', 'T', 'I', 'D', 'T', 'I', 'M'}
)

const (
	fileVersion = 1
	headerSize  = 64
)

// Log header field offsets, 64 bytes total (spec §3).
const (
	logOffMagic           = 0x00 // [8]byte
	logOffVersion         = 0x08 // uint32
	logOffFlags           = 0x0C // uint32
	logOffEventCount      = 0x10 // uint64
	logOffNextWriteOffset = 0x18 // uint64
	logOffTombstoneCount  = 0x20 // uint64
	logOffFileSize        = 0x28 // uint64
	logOffHeaderCRC       = 0x30 // uint32, inside the 16-byte reserved region
	logOffReserved        = 0x34 // 12 bytes, must be zero
)

// logHeader mirrors the on-disk 64-byte event log header.
type logHeader struct {
	Magic           [8]byte
	Version         uint32
	Flags           uint32
	EventCount      uint64
	NextWriteOffset uint64
	TombstoneCount  uint64
	FileSize        uint64
	HeaderCRC       uint32
}

func encodeLogHeader(h *logHeader) []byte {
	buf := make([]byte, headerSize)
	copy(buf[logOffMagic:], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[logOffVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[logOffFlags:], h.Flags)
	binary.LittleEndian.PutUint64(buf[logOffEventCount:], h.EventCount)
	binary.LittleEndian.PutUint64(buf[logOffNextWriteOffset:], h.NextWriteOffset)
	binary.LittleEndian.PutUint64(buf[logOffTombstoneCount:], h.TombstoneCount)
	binary.LittleEndian.PutUint64(buf[logOffFileSize:], h.FileSize)
	crc := computeHeaderCRC(buf, logOffHeaderCRC)
	binary.LittleEndian.PutUint32(buf[logOffHeaderCRC:], crc)
	return buf
}

func decodeLogHeader(buf []byte) logHeader {
	var h logHeader
	copy(h.Magic[:], buf[logOffMagic:logOffMagic+8])
	h.Version = binary.LittleEndian.Uint32(buf[logOffVersion:])
	h.Flags = binary.LittleEndian.Uint32(buf[logOffFlags:])
	h.EventCount = binary.LittleEndian.Uint64(buf[logOffEventCount:])
	h.NextWriteOffset = binary.LittleEndian.Uint64(buf[logOffNextWriteOffset:])
	h.TombstoneCount = binary.LittleEndian.Uint64(buf[logOffTombstoneCount:])
	h.FileSize = binary.LittleEndian.Uint64(buf[logOffFileSize:])
	h.HeaderCRC = binary.LittleEndian.Uint32(buf[logOffHeaderCRC:])
	return h
}

// Index header field offsets, 64 bytes total (spec §3). Shared by all six
// index files; field meaning is overloaded per index kind (bucket_count is
// the timeline array's capacity, entry_count its used length, and so on).
const (
	idxOffMagic          = 0x00 // [8]byte
	idxOffVersion        = 0x08 // uint32
	idxOffFlags          = 0x0C // uint32
	idxOffBucketCount    = 0x10 // uint64
	idxOffEntryCount     = 0x18 // uint64
	idxOffPoolNextOffset = 0x20 // uint64
	idxOffPoolSize       = 0x28 // uint64
	idxOffHeaderCRC      = 0x30 // uint32, inside the 16-byte reserved region
	idxOffReserved       = 0x34 // 12 bytes, must be zero
)

// indexHeader mirrors the on-disk 64-byte index file header.
type indexHeader struct {
	Magic          [8]byte
	Version        uint32
	Flags          uint32
	BucketCount    uint64
	EntryCount     uint64
	PoolNextOffset uint64
	PoolSize       uint64
	HeaderCRC      uint32
}

func encodeIndexHeader(h *indexHeader) []byte {
	buf := make([]byte, headerSize)
	copy(buf[idxOffMagic:], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[idxOffVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[idxOffFlags:], h.Flags)
	binary.LittleEndian.PutUint64(buf[idxOffBucketCount:], h.BucketCount)
	binary.LittleEndian.PutUint64(buf[idxOffEntryCount:], h.EntryCount)
	binary.LittleEndian.PutUint64(buf[idxOffPoolNextOffset:], h.PoolNextOffset)
	binary.LittleEndian.PutUint64(buf[idxOffPoolSize:], h.PoolSize)
	crc := computeHeaderCRC(buf, idxOffHeaderCRC)
	binary.LittleEndian.PutUint32(buf[idxOffHeaderCRC:], crc)
	return buf
}

func decodeIndexHeader(buf []byte) indexHeader {
	var h indexHeader
	copy(h.Magic[:], buf[idxOffMagic:idxOffMagic+8])
	h.Version = binary.LittleEndian.Uint32(buf[idxOffVersion:])
	h.Flags = binary.LittleEndian.Uint32(buf[idxOffFlags:])
	h.BucketCount = binary.LittleEndian.Uint64(buf[idxOffBucketCount:])
	h.EntryCount = binary.LittleEndian.Uint64(buf[idxOffEntryCount:])
	h.PoolNextOffset = binary.LittleEndian.Uint64(buf[idxOffPoolNextOffset:])
	h.PoolSize = binary.LittleEndian.Uint64(buf[idxOffPoolSize:])
	h.HeaderCRC = binary.LittleEndian.Uint32(buf[idxOffHeaderCRC:])
	return h
}

// computeHeaderCRC returns the CRC32-C (Castagnoli) checksum of a
// header buffer with the 4-byte CRC field at crcOffset treated as zero.
func computeHeaderCRC(buf []byte, crcOffset int) uint32 {
	tmp := make([]byte, len(buf))
	copy(tmp, buf)
	for i := crcOffset; i < crcOffset+4; i++ {
		tmp[i] = 0
	}
	return crc32.Checksum(tmp, crc32.MakeTable(crc32.Castagnoli))
}

func validateHeaderCRC(buf []byte, crcOffset int) bool {
	stored := binary.LittleEndian.Uint32(buf[crcOffset:])
	return stored == computeHeaderCRC(buf, crcOffset)
}

// pageChecksum hashes a region of a mapped file with murmur3, used by the
// CLI's integrity check (not on the append/query hot path) to spot
// silent page corruption beyond what the header CRC alone would catch
// (spec §5 crash-model discussion).
func pageChecksum(data []byte) uint32 {
	return murmur3.Sum32(data)
}

// align8 rounds x up to the next multiple of 8, matching the log record
// and tag-blob alignment rule (spec §3).
func align8(x uint64) uint64 {
	return (x + 7) &^ 7
}

// Bucket states shared by all open-addressed indexes (spec §4.C.1).
const (
	bucketEmpty     uint8 = 0
	bucketUsed      uint8 = 1
	bucketTombstone uint8 = 2
)

// Fixed record sizes (spec §4.C).
const (
	idBucketSize     = 48
	pubkeyBucketSize = 48
	pkKindBucketSize = 56
	tagBucketSize    = 56
	poolEntrySize    = 24
	kindSlotSize     = 16
	timelineEntrySize = 16
)

// goldenRatio64 is Knuth's multiplicative hash constant, used to mix the
// kind field into the pubkey+kind index's bucket hash (spec §4.C.4).
const goldenRatio64 = 0x9E3779B97F4A7C15

// hashFirst8LE reinterprets the first 8 bytes of b as a little-endian
// uint64, the hash used by the id, pubkey, and pubkey+kind indexes (spec
// §4.C.1: "ids are cryptographic hashes, already uniform").
func hashFirst8LE(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b[:8])
}
