package nostrdb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/natefinch/atomic"
)

// ClientID is an opaque identifier for a connected client, assigned by
// the transport (spec §6 "Collaborator contracts consumed").
type ClientID = any

// Subscription is one occupied slot in the [SubscriptionRegistry] (spec
// §4.E).
type Subscription struct {
	Client         ClientID
	SubscriptionID string
	Filters        []Filter
}

type subscriptionSlot struct {
	active bool
	sub    Subscription
}

// SubscriptionRegistry is component E: a fixed-capacity table of active
// subscriptions and the matcher that tests newly-written events against
// them (spec §4.E). The matcher performs in-memory filter evaluation
// only; it never touches the indexes, since historical replay is
// [Store.QueryInto]'s job.
type SubscriptionRegistry struct {
	slots [subscriptionTableSize]subscriptionSlot
}

// NewSubscriptionRegistry returns an empty registry with the fixed
// 256-slot capacity (spec §4.E). Hosts own one SubscriptionRegistry
// value alongside their Store (spec §9 "Global singletons").
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{}
}

// Add occupies a slot for (client, req.SubscriptionID), or overwrites an
// existing slot's filters in place if that (client, subscription_id)
// pair is already active — an idempotent re-subscription (spec §4.E).
// Returns ErrFull if no slot is available and ErrInvalidInput if req
// names more filters than maxFiltersPerSubscription or an
// over-long subscription id.
func (r *SubscriptionRegistry) Add(client ClientID, req Req) (*Subscription, error) {
	if len(req.SubscriptionID) > maxSubscriptionIDLen {
		return nil, ErrInvalidInput
	}
	if len(req.Filters) > maxFiltersPerSubscription {
		return nil, ErrInvalidInput
	}

	for i := range r.slots {
		slot := &r.slots[i]
		if slot.active && slot.sub.Client == client && slot.sub.SubscriptionID == req.SubscriptionID {
			slot.sub.Filters = req.Filters
			return &slot.sub, nil
		}
	}

	for i := range r.slots {
		slot := &r.slots[i]
		if !slot.active {
			slot.active = true
			slot.sub = Subscription{Client: client, SubscriptionID: req.SubscriptionID, Filters: req.Filters}
			return &slot.sub, nil
		}
	}

	return nil, ErrFull
}

// Remove deactivates the (client, subscriptionID) slot, if any, and
// reports whether one was found (spec §4.E).
func (r *SubscriptionRegistry) Remove(client ClientID, subscriptionID string) bool {
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.active && slot.sub.Client == client && slot.sub.SubscriptionID == subscriptionID {
			*slot = subscriptionSlot{}
			return true
		}
	}
	return false
}

// RemoveAllFor deactivates every slot belonging to client (invoked on
// disconnect, spec §4.E) and returns how many were removed.
func (r *SubscriptionRegistry) RemoveAllFor(client ClientID) int {
	count := 0
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.active && slot.sub.Client == client {
			*slot = subscriptionSlot{}
			count++
		}
	}
	return count
}

// ForEachMatch tests e against every active subscription's filters and
// invokes visit for each subscription where at least one filter matches
// (spec §4.E). Complexity is O(subscriptions × filters_per_subscription
// × predicates), adequate for the fixed 256-slot table.
func (r *SubscriptionRegistry) ForEachMatch(e Event, visit func(*Subscription)) {
	for i := range r.slots {
		slot := &r.slots[i]
		if !slot.active {
			continue
		}
		for _, f := range slot.sub.Filters {
			if MatchesFilter(f, e) {
				visit(&slot.sub)
				break
			}
		}
	}
}

// debugSubscription is the JSON shape written by DumpDebug.
type debugSubscription struct {
	Client         ClientID `json:"client"`
	SubscriptionID string   `json:"subscription_id"`
	Filters        []Filter `json:"filters"`
}

// DumpDebug writes a snapshot of every active subscription to path as
// JSON, for offline inspection (e.g. the CLI `stats` command). The write
// is atomic (temp file + rename, grounded on the teacher's
// internal/ticket/cache.go use of the same package) so a crash mid-write
// never leaves a half-written dump behind; this is a debug aid only and
// is never read back by the store itself.
func (r *SubscriptionRegistry) DumpDebug(path string) error {
	subs := make([]debugSubscription, 0, subscriptionTableSize)
	for i := range r.slots {
		slot := &r.slots[i]
		if !slot.active {
			continue
		}
		subs = append(subs, debugSubscription{
			Client:         slot.sub.Client,
			SubscriptionID: slot.sub.SubscriptionID,
			Filters:        slot.sub.Filters,
		})
	}

	buf, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding subscription dump: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("writing subscription dump %s: %w", path, err)
	}
	return nil
}

// Len returns the number of active subscription slots, used by Stats.
func (r *SubscriptionRegistry) Len() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].active {
			n++
		}
	}
	return n
}
