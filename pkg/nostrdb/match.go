package nostrdb

// MatchesFilter reports whether e satisfies every constraint in f (spec
// §4.D "Filter semantics"). It is the single predicate implementation
// shared by the query planner's residual checks and the subscription
// matcher's in-memory evaluation (spec §4.E: "uses the same predicates
// as §4.D").
func MatchesFilter(f Filter, e Event) bool {
	if len(f.IDs) > 0 && !anyHexPrefixMatches(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !anyHexPrefixMatches(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !kindIn(f.Kinds, e.Kind) {
		return false
	}
	for _, pred := range f.Tags {
		if !eventHasTagValue(e, pred) {
			return false
		}
	}
	if f.Since != 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until != 0 && e.CreatedAt > f.Until {
		return false
	}
	return true
}

func kindIn(kinds []uint32, kind uint32) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// anyHexPrefixMatches reports whether fullHex (a full-length hex string,
// e.g. an event id or pubkey) begins with any of the hex prefixes in
// prefixes, compared byte-for-byte after decoding (spec §4.D: "its id
// begins with some entry's prefix").
func anyHexPrefixMatches(prefixes []string, fullHex string) bool {
	full, ok := decodeFixedHex(fullHex, len(fullHex)/2)
	if !ok {
		return false
	}
	for _, p := range prefixes {
		prefix, ok := decodePrefixHex(p, idPrefixMaxLen)
		if !ok {
			continue
		}
		if len(prefix) > len(full) {
			continue
		}
		if bytesEqual(full[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

// eventHasTagValue reports whether e carries a tag named pred.Name with
// at least one value matching one of pred.Values (hex-decoded equality
// for values that decode to 64 hex chars, byte equality up to 32 bytes
// otherwise, spec §4.D).
func eventHasTagValue(e Event, pred TagPredicate) bool {
	for _, t := range e.Tags {
		if t.Name != pred.Name {
			continue
		}
		for _, v := range t.Values {
			for _, want := range pred.Values {
				if tagValuesEqual(v, want) {
					return true
				}
			}
		}
	}
	return false
}

func tagValuesEqual(a, b string) bool {
	ak := tagValuePrefix(a)
	bk := tagValuePrefix(b)
	return ak == bk
}
