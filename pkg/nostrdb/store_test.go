package nostrdb_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nostrdb/relaystore/pkg/nostrdb"
)

func openTestStore(t *testing.T) *nostrdb.Store {
	t.Helper()
	store, err := nostrdb.Open(nostrdb.Options{
		Dir:           t.TempDir(),
		LogFileSize:   1 << 20,
		IndexFileSize: 2 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func hexOf(b byte, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += fmt.Sprintf("%02x", b)
	}
	return s
}

func baseEvent() nostrdb.Event {
	return nostrdb.Event{
		ID:        hexOf(0xAA, 32),
		PubKey:    hexOf(0xBB, 32),
		Sig:       hexOf(0xCC, 64),
		Kind:      1,
		CreatedAt: 1_700_000_000,
		Content:   "hello",
	}
}

// Test_EmptyStore_AppendAndQuery covers spec §8 scenario 1.
func Test_EmptyStore_AppendAndQuery(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	offset, outcome, err := store.AppendEvent(e)
	require.NoError(t, err)
	require.Equal(t, nostrdb.Stored, outcome)
	require.EqualValues(t, 64, offset)

	got, err := store.ReadEvent(offset)
	require.NoError(t, err)
	require.Equal(t, e, got)

	require.EqualValues(t, 1, store.Stats().EventCount)

	results, err := store.Query([]nostrdb.Filter{{Kinds: []uint32{1}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, offset, results[0].Offset)

	results, err = store.Query([]nostrdb.Filter{{Kinds: []uint32{2}}})
	require.NoError(t, err)
	require.Empty(t, results)
}

// Test_Timeline_OrdersByCreatedAtDescending covers spec §8 scenario 2.
func Test_Timeline_OrdersByCreatedAtDescending(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	mk := func(idByte byte, createdAt int64) nostrdb.Event {
		e := baseEvent()
		e.ID = hexOf(idByte, 32)
		e.CreatedAt = createdAt
		return e
	}

	offsets := map[int64]nostrdb.LogOffset{}
	for _, e := range []nostrdb.Event{mk(0x01, 1000), mk(0x02, 3000), mk(0x03, 2000)} {
		offset, _, err := store.AppendEvent(e)
		require.NoError(t, err)
		offsets[e.CreatedAt] = offset
	}

	results, err := store.Query([]nostrdb.Filter{{}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, []nostrdb.LogOffset{offsets[3000], offsets[2000], offsets[1000]},
		[]nostrdb.LogOffset{results[0].Offset, results[1].Offset, results[2].Offset})
}

// Test_Query_DedupsAcrossFilters covers spec §8 scenario 3.
func Test_Query_DedupsAcrossFilters(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	_, _, err := store.AppendEvent(e)
	require.NoError(t, err)

	results, err := store.Query([]nostrdb.Filter{
		{Kinds: []uint32{1}},
		{Authors: []string{e.PubKey}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

// Test_Query_TagPredicate covers spec §8 scenario 4.
func Test_Query_TagPredicate(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	target := hexOf(0xDD, 32)
	e.Tags = []nostrdb.Tag{{Name: "e", Values: []string{target}}}
	offset, _, err := store.AppendEvent(e)
	require.NoError(t, err)

	results, err := store.Query([]nostrdb.Filter{{Tags: []nostrdb.TagPredicate{{Name: "e", Values: []string{target}}}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, offset, results[0].Offset)

	differing := hexOf(0xDD, 31) + "ee"
	results, err = store.Query([]nostrdb.Filter{{Tags: []nostrdb.TagPredicate{{Name: "e", Values: []string{differing}}}}})
	require.NoError(t, err)
	require.Empty(t, results)
}

// Test_DeleteEvent_HidesFromReadAndQuery covers spec §8 scenario 5.
func Test_DeleteEvent_HidesFromReadAndQuery(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	offset, _, err := store.AppendEvent(e)
	require.NoError(t, err)

	require.NoError(t, store.DeleteEvent(e.ID))

	_, err = store.ReadEvent(offset)
	require.ErrorIs(t, err, nostrdb.ErrNotFound)

	results, err := store.Query([]nostrdb.Filter{{}})
	require.NoError(t, err)
	require.Empty(t, results)

	require.EqualValues(t, 1, store.Stats().TombstoneCount)

	require.ErrorIs(t, store.DeleteEvent(e.ID), nostrdb.ErrNotFound)
}

// Test_Subscription_ReplaceIsIdempotentAndRematches covers spec §8 scenario 6.
func Test_Subscription_ReplaceIsIdempotentAndRematches(t *testing.T) {
	t.Parallel()
	regs := nostrdb.NewSubscriptionRegistry()

	const client = "clientA"
	_, err := regs.Add(client, nostrdb.Req{SubscriptionID: "s", Filters: []nostrdb.Filter{{Kinds: []uint32{1}}}})
	require.NoError(t, err)

	_, err = regs.Add(client, nostrdb.Req{SubscriptionID: "s", Filters: []nostrdb.Filter{{Kinds: []uint32{4}}}})
	require.NoError(t, err)
	require.Equal(t, 1, regs.Len())

	kind1 := baseEvent()
	kind1.Kind = 1
	matches := 0
	regs.ForEachMatch(kind1, func(*nostrdb.Subscription) { matches++ })
	require.Equal(t, 0, matches)

	kind4 := baseEvent()
	kind4.Kind = 4
	matches = 0
	regs.ForEachMatch(kind4, func(*nostrdb.Subscription) { matches++ })
	require.Equal(t, 1, matches)
}

func Test_AppendEvent_RejectsDuplicateWithoutChangingState(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	_, first, err := store.AppendEvent(e)
	require.NoError(t, err)
	require.Equal(t, nostrdb.Stored, first)

	before := store.Stats()

	_, second, err := store.AppendEvent(e)
	require.NoError(t, err)
	require.Equal(t, nostrdb.Duplicate, second)

	after := store.Stats()
	require.Equal(t, before, after)
}

func Test_AppendEvent_RejectsInvalidHex(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	e.ID = "not-hex"
	_, _, err := store.AppendEvent(e)
	require.ErrorIs(t, err, nostrdb.ErrInvalidEvent)
}

// Test_Query_MultiByteTagNameFallsBackToResidualCheck covers the
// planner's fallback for tag predicates the tag index cannot serve:
// multi-byte tag names (spec §4.C.5 only indexes single-byte names).
// The filter must still be enforced via the residual in-memory check
// (types.go), not silently dropped.
func Test_Query_MultiByteTagNameFallsBackToResidualCheck(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	matching := baseEvent()
	matching.ID = hexOf(0x01, 32)
	matching.Tags = []nostrdb.Tag{{Name: "client", Values: []string{"myapp"}}}
	matchingOffset, _, err := store.AppendEvent(matching)
	require.NoError(t, err)

	nonMatching := baseEvent()
	nonMatching.ID = hexOf(0x02, 32)
	nonMatching.Tags = []nostrdb.Tag{{Name: "client", Values: []string{"otherapp"}}}
	_, _, err = store.AppendEvent(nonMatching)
	require.NoError(t, err)

	results, err := store.Query([]nostrdb.Filter{
		{Tags: []nostrdb.TagPredicate{{Name: "client", Values: []string{"myapp"}}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, matchingOffset, results[0].Offset)
}

func Test_RoundTrip_PreservesAllFields(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	e := baseEvent()
	e.Tags = []nostrdb.Tag{
		{Name: "e", Values: []string{hexOf(0x11, 32)}},
		{Name: "t", Values: []string{"hello", "world"}},
	}
	offset, _, err := store.AppendEvent(e)
	require.NoError(t, err)

	got, err := store.ReadEvent(offset)
	require.NoError(t, err)
	require.Equal(t, e, got)
}
