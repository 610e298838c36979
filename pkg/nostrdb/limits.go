package nostrdb

// Hardcoded implementation ceilings. These exist so record sizes,
// allocation counts, and loop bounds can be computed with fixed-width
// arithmetic without overflow checks at every step; a value near these
// limits is rejected with ErrInvalidEvent/ErrInvalidInput well before it
// could reach a size computation.

const (
	// idSize, pubKeySize, sigSize are the fixed binary widths of the id,
	// public key, and signature fields (spec §3).
	idSize     = 32
	pubKeySize = 32
	sigSize    = 64

	// defaultContentCeiling is the default maximum content length in
	// bytes; events whose content would exceed it are rejected at
	// append rather than truncated at read (spec §9 "Content truncation").
	defaultContentCeiling = 1 << 20 // 1 MiB

	// maxContentCeiling bounds how large a configured content ceiling
	// may be, so record-size arithmetic (uint32 total_length) cannot
	// overflow.
	maxContentCeiling = 1<<32 - 1<<16

	// minTagNameLen, maxTagNameLen bound a tag's name length (spec §3).
	minTagNameLen = 1
	maxTagNameLen = 64

	// maxTagValues bounds the number of values a single tag may carry.
	maxTagValues = 16

	// maxTagValueLen bounds a single tag value's length.
	maxTagValueLen = 512

	// maxTagsPerEvent bounds the number of tags a single event may
	// carry; chosen generously above any real NIP-01 event while
	// fitting the u16 tag_count field and keeping tags_length (u32)
	// arithmetic safe.
	maxTagsPerEvent = 1<<16 - 1

	// tagValuePrefixLen is the width of the tag-index key's value
	// prefix (spec §4.C.5).
	tagValuePrefixLen = 32

	// idPrefixMaxLen is the maximum byte length of an id/author prefix
	// in a Filter (spec §4.D: "byte prefixes, 1-32 bytes long").
	idPrefixMaxLen = 32

	// maxKindValue is the largest valid event kind (u16 range, spec
	// §4.C.3 "A direct array of 65,536 slots").
	maxKindValue = 65535

	// kindSlotCount is the fixed size of the kind index's direct table.
	kindSlotCount = maxKindValue + 1

	// subscriptionTableSize is the fixed subscription slot count (spec
	// §4.E).
	subscriptionTableSize = 256

	// maxFiltersPerSubscription bounds the filters a single
	// subscription slot may hold.
	maxFiltersPerSubscription = 16

	// maxSubscriptionIDLen bounds a subscription_id's byte length.
	maxSubscriptionIDLen = 64

	// defaultLogFileSize, defaultIndexFileSize are the default initial
	// file sizes from spec §6.
	defaultLogFileSize   = 64 << 20 // 64 MiB
	defaultIndexFileSize = 16 << 20 // 16 MiB

	// pubkeyKindCartesianThreshold bounds the author/kind cardinality
	// the planner will expand into a Cartesian product over the
	// pubkey+kind index before falling back to a single-field index
	// (spec §4.D, step 3: "cardinalities ≤ threshold (say 8 each)").
	pubkeyKindCartesianThreshold = 8

	// loadFactorNumerator/loadFactorDenominator express the 70% max
	// load factor for open-addressed tables (spec §3 invariant 6):
	// entry_count*100 <= bucket_count*70.
	loadFactorNumerator   = 70
	loadFactorDenominator = 100
)
