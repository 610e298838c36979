package nostrdb

import (
	"encoding/json"
	"fmt"
)

// Event is the host-facing representation of a Nostr event (spec §3). Id,
// PubKey, and Sig are lowercase hex strings, matching the wire
// representation a JSON tokenizer (out of core scope) would hand to
// AppendEvent; the store decodes them to fixed-width binary for storage
// and re-encodes them on read. JSON tags follow NIP-01 field names so a
// demo host (cmd/nostrdb-relay) can decode a wire EVENT frame straight
// into this type without an intermediate wire struct.
type Event struct {
	ID        string `json:"id"`      // 64 lowercase hex chars (32 bytes)
	PubKey    string `json:"pubkey"`  // 64 lowercase hex chars (32 bytes)
	Sig       string `json:"sig"`     // 128 lowercase hex chars (64 bytes)
	CreatedAt int64  `json:"created_at"`
	Kind      uint32 `json:"kind"`
	Content   string `json:"content"`
	Tags      []Tag  `json:"tags"`
}

// Tag is an ordered sequence of values under a name (spec §3). Only
// single-byte tag names participate in the tag index (spec §4.C.5); tags
// with longer names are still stored in the log record but are not
// indexed.
//
// On the wire a tag is a flat JSON array (["e", "<id>", "<relay>"]), not
// an object; MarshalJSON/UnmarshalJSON below translate between that and
// the Name/Values split this package operates on internally.
type Tag struct {
	Name   string
	Values []string
}

func (t Tag) MarshalJSON() ([]byte, error) {
	arr := make([]string, 0, len(t.Values)+1)
	arr = append(arr, t.Name)
	arr = append(arr, t.Values...)
	return json.Marshal(arr)
}

func (t *Tag) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) == 0 {
		return fmt.Errorf("tag array must have at least a name: %w", ErrInvalidEvent)
	}
	t.Name = arr[0]
	t.Values = arr[1:]
	return nil
}

// TagPredicate is one tag constraint inside a Filter: the event must carry
// a tag named Name with at least one value in Values (spec §4.D).
type TagPredicate struct {
	// Name is the tag name being constrained. Only single-byte names
	// (e.g. "e", "p", "t") can be served by the tag index; longer names
	// fall back to a residual in-memory check against the candidates of
	// the authors, kinds or timeline index.
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Filter is a conjunctive predicate over events with disjunctive
// id/author/kind/tag sets and a time window plus a limit (spec §4.D).
// A nil/empty field means "unconstrained" for that dimension.
//
// This is the store's internal Tags: []TagPredicate shape, not NIP-01's
// "#e"/"#p" tag-key convention; wire-level filter parsing is out of core
// scope (spec Non-goals), so cmd/nostrdb-relay decodes REQ filters
// straight into this shape rather than translating from the wire one.
type Filter struct {
	// IDs and Authors hold hex prefixes, 1-32 bytes (2-64 hex chars).
	IDs     []string       `json:"ids,omitempty"`
	Authors []string       `json:"authors,omitempty"`
	Kinds   []uint32       `json:"kinds,omitempty"`
	Tags    []TagPredicate `json:"tags,omitempty"`

	// Since/Until are inclusive Unix-second bounds; zero means
	// unconstrained on that side.
	Since int64 `json:"since,omitempty"`
	Until int64 `json:"until,omitempty"`

	// Limit caps the number of results this filter contributes. Zero
	// means unconstrained.
	Limit int `json:"limit,omitempty"`
}

// Req is a client subscription request: a named disjunction of filters
// (spec §6 "Collaborator contracts consumed").
type Req struct {
	SubscriptionID string   `json:"subscription_id"`
	Filters        []Filter `json:"filters"`
}

// Close is a client request to cancel a subscription (spec §6).
type Close struct {
	SubscriptionID string `json:"subscription_id"`
}

// AppendOutcome reports what AppendEvent actually did, letting a host
// build the Nostr OK-frame ("duplicate" is a positive acknowledgement,
// not an error) without the store knowing about wire format (spec §7,
// SPEC_FULL "Duplicate/Full ack shape").
type AppendOutcome int

const (
	// Stored means the event was newly written and indexed.
	Stored AppendOutcome = iota
	// Duplicate means an event with this id already existed; no state
	// changed and the existing event's log offset is returned.
	Duplicate
)

func (o AppendOutcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// LogOffset identifies a record in the event log by byte offset. Offset 0
// is reserved for the log file's header and is never a valid record
// offset (spec §3).
type LogOffset = uint64
