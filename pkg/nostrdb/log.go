package nostrdb

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/nostrdb/relaystore/pkg/fsx"
)

// Fixed offsets inside a log record, relative to the record's own start
// (spec §3 "Log record").
const (
	recOffTotalLength   = 0   // uint32
	recOffFlags         = 4   // uint32
	recOffID            = 8   // [32]byte
	recOffCreatedAt     = 40  // int64
	recOffPubKey        = 48  // [32]byte
	recOffSig           = 80  // [64]byte
	recOffKind          = 144 // uint32
	recOffContentLength = 148 // uint32
	recFixedHeaderSize  = 152 // start of the variable content region

	recFlagTombstone = 1 << 0
)

// eventLog is component B: the append-only event log (spec §4.B).
type eventLog struct {
	pf             *pagedFile
	header         logHeader
	contentCeiling int
}

// openEventLog opens or creates events.dat.
func openEventLog(fsys fsx.FS, dir string, fileSize int64, contentCeiling int) (*eventLog, error) {
	pf, created, err := openPagedFile(fsys, dir, logFileName, fileSize)
	if err != nil {
		return nil, err
	}

	el := &eventLog{pf: pf, contentCeiling: contentCeiling}

	if created {
		el.header = logHeader{
			Magic:           logMagic,
			Version:         fileVersion,
			NextWriteOffset: headerSize,
			FileSize:        uint64(pf.size),
		}
		el.writeHeader()
		if err := pf.sync(); err != nil {
			return nil, err
		}
		return el, nil
	}

	hdr := decodeLogHeader(pf.data[:headerSize])
	if hdr.Magic != logMagic {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != fileVersion {
		return nil, ErrVersionMismatch
	}
	if !validateHeaderCRC(pf.data[:headerSize], logOffHeaderCRC) {
		return nil, ErrIndexCorrupt
	}
	el.header = hdr
	return el, nil
}

func (el *eventLog) writeHeader() {
	copy(el.pf.data[:headerSize], encodeLogHeader(&el.header))
}

func (el *eventLog) close() error {
	return el.pf.close()
}

func (el *eventLog) sync() error {
	return el.pf.sync()
}

// recordSize returns the 8-byte-aligned total size of the record encoding
// the given content/tag byte lengths.
func recordSize(contentLen, tagsLen int) uint64 {
	unaligned := uint64(recFixedHeaderSize) + uint64(contentLen) + 4 /* tags_length */ + uint64(tagsLen)
	return align8(unaligned)
}

// append writes a new record for e and returns its log offset (spec
// §4.B). Fails with ErrFull if the record does not fit before file_size,
// or ErrInvalidEvent if id/pubkey/sig fail hex decode or any field
// exceeds a configured limit.
func (el *eventLog) append(e Event) (LogOffset, error) {
	id, ok := decodeFixedHex(e.ID, idSize)
	if !ok {
		return 0, fmt.Errorf("id: %w", ErrInvalidEvent)
	}
	pubkey, ok := decodeFixedHex(e.PubKey, pubKeySize)
	if !ok {
		return 0, fmt.Errorf("pubkey: %w", ErrInvalidEvent)
	}
	sig, ok := decodeFixedHex(e.Sig, sigSize)
	if !ok {
		return 0, fmt.Errorf("sig: %w", ErrInvalidEvent)
	}
	if len(e.Content) > el.contentCeiling {
		return 0, fmt.Errorf("content exceeds %d bytes: %w", el.contentCeiling, ErrInvalidEvent)
	}
	if err := validateTags(e.Tags); err != nil {
		return 0, err
	}

	tagBlob, err := encodeTags(e.Tags)
	if err != nil {
		return 0, err
	}

	total := recordSize(len(e.Content), len(tagBlob))
	offset := el.header.NextWriteOffset

	if offset+total > uint64(el.pf.size) {
		return 0, ErrFull
	}
	if total > uint64(^uint32(0)) {
		return 0, fmt.Errorf("record too large: %w", ErrInvalidEvent)
	}

	buf := el.pf.data[offset : offset+total]
	for i := range buf {
		buf[i] = 0
	}

	binary.LittleEndian.PutUint32(buf[recOffTotalLength:], uint32(total))
	binary.LittleEndian.PutUint32(buf[recOffFlags:], 0)
	copy(buf[recOffID:], id)
	binary.LittleEndian.PutUint64(buf[recOffCreatedAt:], uint64(e.CreatedAt))
	copy(buf[recOffPubKey:], pubkey)
	copy(buf[recOffSig:], sig)
	binary.LittleEndian.PutUint32(buf[recOffKind:], e.Kind)
	binary.LittleEndian.PutUint32(buf[recOffContentLength:], uint32(len(e.Content)))
	contentStart := recFixedHeaderSize
	copy(buf[contentStart:], e.Content)
	tagsLenOff := contentStart + len(e.Content)
	binary.LittleEndian.PutUint32(buf[tagsLenOff:], uint32(len(tagBlob)))
	copy(buf[tagsLenOff+4:], tagBlob)

	el.header.NextWriteOffset = offset + total
	el.header.EventCount++
	el.writeHeader()

	return offset, nil
}

// read decodes the record at offset (spec §4.B). Returns ErrNotFound if
// offset is out of range or the record is tombstoned.
func (el *eventLog) read(offset LogOffset) (Event, error) {
	if offset < headerSize || offset >= el.header.NextWriteOffset {
		return Event{}, ErrNotFound
	}
	if offset+recFixedHeaderSize > uint64(el.pf.size) {
		return Event{}, ErrIndexCorrupt
	}

	buf := el.pf.data
	flags := binary.LittleEndian.Uint32(buf[offset+recOffFlags:])
	if flags&recFlagTombstone != 0 {
		return Event{}, ErrNotFound
	}

	total := binary.LittleEndian.Uint32(buf[offset+recOffTotalLength:])
	rec := buf[offset : offset+uint64(total)]

	id := rec[recOffID : recOffID+idSize]
	createdAt := int64(binary.LittleEndian.Uint64(rec[recOffCreatedAt:]))
	pubkey := rec[recOffPubKey : recOffPubKey+pubKeySize]
	sig := rec[recOffSig : recOffSig+sigSize]
	kind := binary.LittleEndian.Uint32(rec[recOffKind:])
	contentLen := binary.LittleEndian.Uint32(rec[recOffContentLength:])

	contentStart := recFixedHeaderSize
	content := string(rec[contentStart : contentStart+int(contentLen)])

	tagsLenOff := contentStart + int(contentLen)
	tagsLen := binary.LittleEndian.Uint32(rec[tagsLenOff:])
	tagBlob := rec[tagsLenOff+4 : tagsLenOff+4+int(tagsLen)]

	tags, err := decodeTags(tagBlob)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	return Event{
		ID:        hex.EncodeToString(id),
		PubKey:    hex.EncodeToString(pubkey),
		Sig:       hex.EncodeToString(sig),
		CreatedAt: createdAt,
		Kind:      kind,
		Content:   content,
		Tags:      tags,
	}, nil
}

// tombstone marks the record at offset deleted. Idempotent (spec §4.B).
func (el *eventLog) tombstone(offset LogOffset) {
	flagsOff := offset + recOffFlags
	flags := binary.LittleEndian.Uint32(el.pf.data[flagsOff:])
	if flags&recFlagTombstone != 0 {
		return
	}
	binary.LittleEndian.PutUint32(el.pf.data[flagsOff:], flags|recFlagTombstone)
	el.header.TombstoneCount++
	el.writeHeader()
}

// isTombstoned reports whether the record at offset has its deleted bit
// set. Callers (index iterators) must recheck this at read time (spec §3
// invariant 2).
func (el *eventLog) isTombstoned(offset LogOffset) bool {
	flags := binary.LittleEndian.Uint32(el.pf.data[offset+recOffFlags:])
	return flags&recFlagTombstone != 0
}

// readHeaderFields exposes the subset of the log header stats.go needs.
func (el *eventLog) readHeaderFields() (eventCount, tombstoneCount, nextWriteOffset, fileSize uint64) {
	return el.header.EventCount, el.header.TombstoneCount, el.header.NextWriteOffset, el.header.FileSize
}

// kindOf reads only the kind field of the record at offset, without
// decoding the whole event. It currently has no caller; the query
// planner's residual checks decode the full event.
func (el *eventLog) kindOf(offset LogOffset) uint32 {
	return binary.LittleEndian.Uint32(el.pf.data[offset+recOffKind:])
}

// createdAtOf reads only the created_at field without a full decode. It
// currently has no caller; index iterators apply time windows from the
// created_at stored in their own entries.
func (el *eventLog) createdAtOf(offset LogOffset) int64 {
	return int64(binary.LittleEndian.Uint64(el.pf.data[offset+recOffCreatedAt:]))
}
