package nostrdb

import (
	"fmt"
	"strings"
)

// Stats reports the store's current size and occupancy (spec §6
// "stats(Store) -> Stats"). It surfaces the same counters the header
// fields track: event/tombstone counts from the log, and entry/bucket
// counts from each index.
type Stats struct {
	EventCount      uint64
	TombstoneCount  uint64
	NextWriteOffset uint64
	LogFileSize     uint64

	IDIndexEntryCount   uint64
	IDIndexBucketCount  uint64
	IDIndexNeedsRehash  bool

	PubkeyEntryCount    uint64
	KindEntryCount      uint64
	PubkeyKindEntryCount uint64
	TagEntryCount       uint64
	TimelineEntryCount  uint64
	TimelineCapacity    uint64

	ActiveSubscriptions int
}

// Stats computes a fresh snapshot (spec §6 "stats").
func (s *Store) Stats() Stats {
	eventCount, tombstoneCount, nextWriteOffset, fileSize := s.log.readHeaderFields()

	return Stats{
		EventCount:      eventCount,
		TombstoneCount:  tombstoneCount,
		NextWriteOffset: nextWriteOffset,
		LogFileSize:     fileSize,

		IDIndexEntryCount:  s.idIdx.header.EntryCount,
		IDIndexBucketCount: s.idIdx.header.BucketCount,
		IDIndexNeedsRehash: s.idIdx.needsRehash(),

		PubkeyEntryCount:     s.pubkey.header.EntryCount,
		KindEntryCount:       s.kind.header.EntryCount,
		PubkeyKindEntryCount: s.pkKind.header.EntryCount,
		TagEntryCount:        s.tag.header.EntryCount,
		TimelineEntryCount:   s.timeline.header.EntryCount,
		TimelineCapacity:     s.timeline.header.BucketCount,

		ActiveSubscriptions: s.subs.Len(),
	}
}

// String renders Stats as an aligned two-column table in the style of a
// compact status dump, since brimtext itself is not part of this
// module's dependency set.
func (st Stats) String() string {
	rows := [][2]string{
		{"event_count", fmt.Sprintf("%d", st.EventCount)},
		{"tombstone_count", fmt.Sprintf("%d", st.TombstoneCount)},
		{"next_write_offset", fmt.Sprintf("%d", st.NextWriteOffset)},
		{"log_file_size", fmt.Sprintf("%d", st.LogFileSize)},
		{"id_index_entry_count", fmt.Sprintf("%d", st.IDIndexEntryCount)},
		{"id_index_bucket_count", fmt.Sprintf("%d", st.IDIndexBucketCount)},
		{"id_index_needs_rehash", fmt.Sprintf("%t", st.IDIndexNeedsRehash)},
		{"pubkey_entry_count", fmt.Sprintf("%d", st.PubkeyEntryCount)},
		{"kind_entry_count", fmt.Sprintf("%d", st.KindEntryCount)},
		{"pubkey_kind_entry_count", fmt.Sprintf("%d", st.PubkeyKindEntryCount)},
		{"tag_entry_count", fmt.Sprintf("%d", st.TagEntryCount)},
		{"timeline_entry_count", fmt.Sprintf("%d", st.TimelineEntryCount)},
		{"timeline_capacity", fmt.Sprintf("%d", st.TimelineCapacity)},
		{"active_subscriptions", fmt.Sprintf("%d", st.ActiveSubscriptions)},
	}
	return alignTable(rows)
}

// alignTable renders rows of (label, value) pairs padded to the widest
// label in the set, one row per line.
func alignTable(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(r[0])
		b.WriteString(strings.Repeat(" ", width-len(r[0])+2))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return b.String()
}
