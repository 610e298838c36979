package nostrdb

import "encoding/binary"

// entryPool is the bump-allocated pool region shared by the four
// linked-list indexes (pubkey, kind, pubkey+kind, tag). Each pool entry is
// 24 bytes: log_offset:u64, created_at:i64, prev_entry_offset:u64 (spec
// §4.C.2). Entries are addressed by their byte offset within the pool
// region (offset 0 reserved as the list terminator, matching
// head_entry_offset's "0 = tail" convention), never relocated (spec §9
// "Cyclic pointer graphs replaced by stable offsets").
type entryPool struct {
	data      []byte // full mapped file
	poolStart uint64 // byte offset of the pool region within data
	poolSize  uint64 // capacity of the pool region in bytes
}

// alloc bump-allocates one entry, advancing hdr.PoolNextOffset. Returns
// ErrFull if the pool region has no room (spec §4.C.2 "fails Full if no
// room").
func (p *entryPool) alloc(hdr *indexHeader) (poolOffset uint64, err error) {
	// Offset 0 is reserved as the empty-list sentinel, so the first real
	// entry starts at poolEntrySize, not 0.
	if hdr.PoolNextOffset == 0 {
		hdr.PoolNextOffset = poolEntrySize
	}
	if hdr.PoolNextOffset+poolEntrySize > p.poolSize {
		return 0, ErrFull
	}
	off := hdr.PoolNextOffset
	hdr.PoolNextOffset += poolEntrySize
	return off, nil
}

func (p *entryPool) write(poolOffset uint64, logOffset LogOffset, createdAt int64, prev uint64) {
	base := p.poolStart + poolOffset
	binary.LittleEndian.PutUint64(p.data[base:], logOffset)
	binary.LittleEndian.PutUint64(p.data[base+8:], uint64(createdAt))
	binary.LittleEndian.PutUint64(p.data[base+16:], prev)
}

func (p *entryPool) read(poolOffset uint64) (logOffset LogOffset, createdAt int64, prev uint64) {
	base := p.poolStart + poolOffset
	logOffset = binary.LittleEndian.Uint64(p.data[base:])
	createdAt = int64(binary.LittleEndian.Uint64(p.data[base+8:]))
	prev = binary.LittleEndian.Uint64(p.data[base+16:])
	return
}

// walk invokes visit(logOffset, createdAt) for each entry starting at
// head and following prev pointers (newest-first, spec §4.C.2), applying
// the since/until window and stopping at limit or when visit returns
// false.
func (p *entryPool) walk(head uint64, since, until int64, limit int, visit func(LogOffset, int64) bool) {
	count := 0
	for off := head; off != 0; {
		logOffset, createdAt, prev := p.read(off)
		off = prev

		if since > 0 && createdAt < since {
			continue
		}
		if until > 0 && createdAt > until {
			continue
		}

		if !visit(logOffset, createdAt) {
			return
		}
		count++
		if limit > 0 && count >= limit {
			return
		}
	}
}
