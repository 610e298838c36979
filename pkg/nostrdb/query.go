package nostrdb

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// QueryResult is one event returned by a query, already decoded so the
// host does not need a second ReadEvent round-trip.
type QueryResult struct {
	Offset LogOffset
	Event  Event
}

// Query runs every filter in filters independently and returns the
// union of their results, deduplicated by log offset (spec §4.D
// "Merging and dedup"). Ordering within a single filter's contribution
// is newest-first; ordering across filters is not guaranteed. limit
// applies per filter, not to the union.
func (s *Store) Query(filters []Filter) ([]QueryResult, error) {
	var results []QueryResult

	// RoaringBitmap dedup set scoped to the lifetime of this query (spec
	// §4.D), keyed by the full 64-bit log offset so log files larger than
	// 4 GiB dedup correctly.
	seen := roaring64.New()

	for _, f := range filters {
		err := s.QueryInto(f, func(offset LogOffset, e Event) bool {
			if seen.Contains(offset) {
				return true
			}
			seen.Add(offset)
			results = append(results, QueryResult{Offset: offset, Event: e})
			return true
		})
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}

// QueryInto runs a single filter and invokes visit for each matching,
// non-tombstoned event in the index's natural (newest-first) order,
// stopping early if visit returns false (spec §4.D). This is the
// primitive [Store.Query] builds on; a host driving a live subscription's
// historical replay calls it once per filter and emits an
// end-of-stored-events marker after the last filter drains (spec §2,
// SPEC_FULL "EOSE marker").
func (s *Store) QueryInto(f Filter, visit func(LogOffset, Event) bool) error {
	if s.closed {
		return ErrClosed
	}

	stop := false
	emit := func(offset LogOffset) bool {
		if stop {
			return false
		}
		e, err := s.log.read(offset)
		if err != nil {
			// Tombstoned or otherwise unreadable: not a match (spec
			// §4.D "Tombstoned log records are treated as not
			// matching").
			return true
		}
		if !MatchesFilter(f, e) {
			return true
		}
		if !visit(offset, e) {
			stop = true
			return false
		}
		return true
	}

	s.selectAndIterate(f, emit)
	return nil
}

// selectAndIterate implements the index-selection policy of spec §4.D,
// picking the most selective index available for f and driving emit over
// its candidates.
func (s *Store) selectAndIterate(f Filter, emit func(LogOffset) bool) {
	adapt := func(emit func(LogOffset) bool) func(LogOffset, int64) bool {
		return func(offset LogOffset, _ int64) bool { return emit(offset) }
	}

	// A tag predicate can only drive the selection when at least one of
	// its (name, value) pairs is single-byte-named and thus indexed
	// (spec §4.C.5). Multi-byte tag names (e.g. "client") have no index
	// to drive from and fall through to the authors/kinds/timeline rules
	// below; MatchesFilter's residual tag check inside emit still
	// enforces the constraint against whatever those rules produce
	// (types.go's documented "residual in-memory check" fallback).
	tagPred, tagValue := s.mostSelectiveTag(f.Tags)

	switch {
	case len(f.IDs) > 0 && allFullLength(f.IDs):
		for _, idHex := range f.IDs {
			id, ok := decodeFixedHex(idHex, idSize)
			if !ok {
				continue
			}
			if offset, found := s.idIdx.lookup(id); found {
				if !emit(offset) {
					return
				}
			}
		}

	case tagPred != nil:
		s.tag.iterate(tagPred.Name[0], tagValue, f.Since, f.Until, f.Limit, adapt(emit))

	// The author-keyed indexes need full 32-byte pubkeys; a filter with
	// any shorter author prefix falls through to the kinds/timeline rules
	// and is enforced by MatchesFilter's residual check inside emit.
	case len(f.Authors) > 0 && allFullLength(f.Authors) && len(f.Kinds) > 0 &&
		len(f.Authors) <= pubkeyKindCartesianThreshold && len(f.Kinds) <= pubkeyKindCartesianThreshold:
		for _, authorHex := range f.Authors {
			author, ok := decodeFixedHex(authorHex, pubKeySize)
			if !ok {
				continue
			}
			for _, kind := range f.Kinds {
				stopped := false
				s.pkKind.iterate(author, kind, f.Since, f.Until, f.Limit, func(offset LogOffset, _ int64) bool {
					if !emit(offset) {
						stopped = true
						return false
					}
					return true
				})
				if stopped {
					return
				}
			}
		}

	case len(f.Authors) > 0 && allFullLength(f.Authors):
		for _, authorHex := range f.Authors {
			author, ok := decodeFixedHex(authorHex, pubKeySize)
			if !ok {
				continue
			}
			stopped := false
			s.pubkey.iterate(author, f.Since, f.Until, f.Limit, func(offset LogOffset, _ int64) bool {
				if !emit(offset) {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return
			}
		}

	case len(f.Kinds) > 0:
		for _, kind := range f.Kinds {
			stopped := false
			s.kind.iterate(kind, f.Since, f.Until, f.Limit, func(offset LogOffset, _ int64) bool {
				if !emit(offset) {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return
			}
		}

	default:
		s.timeline.iterate(f.Since, f.Until, f.Limit, adapt(emit))
	}
}

// allFullLength reports whether every id prefix in ids is a full
// 32-byte (64 hex char) id or pubkey, the condition under which the
// planner can use id-index point lookups (spec §4.D, selection rule 1)
// or the author-keyed indexes.
func allFullLength(ids []string) bool {
	for _, id := range ids {
		if len(id) != idSize*2 {
			return false
		}
	}
	return true
}

// mostSelectiveTag picks the (name, value) pair with the fewest indexed
// entries among a filter's tag predicates (spec §4.D "the most
// restrictive (tag_name, value) pair"). Predicates with names longer
// than one byte cannot be served by the tag index and are skipped; if
// none qualify, both return values are zero.
func (s *Store) mostSelectiveTag(preds []TagPredicate) (*TagPredicate, string) {
	var best *TagPredicate
	var bestValue string
	bestCount := ^uint32(0)

	for i := range preds {
		pred := &preds[i]
		if len(pred.Name) != 1 {
			continue
		}
		for _, v := range pred.Values {
			key := tagValuePrefix(v)
			count := s.tag.bucketEntryCountFor(pred.Name[0], key[:])
			if best == nil || count < bestCount {
				best = pred
				bestValue = v
				bestCount = count
			}
		}
	}

	return best, bestValue
}
