// nostrdb-relay is a thin demonstration host wiring pkg/nostrdb to a
// websocket transport. It shows the external interfaces of spec §6 end
// to end (connect -> subscribe -> append -> broadcast -> close) without
// adding any logic of its own: filtering, storage, and subscription
// matching are entirely delegated to the store. NIP-01 signature
// verification, rate limiting, and every other spec Non-goal stay out
// of scope here too.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"

	"github.com/nostrdb/relaystore/pkg/nostrdb"
)

// wireFrame is the minimal NIP-01 client->relay / relay->client envelope
// this demo host understands: ["EVENT", <event>], ["REQ", <sub-id>,
// <filter>...], ["CLOSE", <sub-id>], and relay->client ["OK", ...],
// ["EVENT", <sub-id>, <event>], ["EOSE", <sub-id>], ["NOTICE", <msg>].
type wireFrame []json.RawMessage

func main() {
	var addr string
	var dir string
	flag.StringVar(&addr, "addr", ":8080", "listen address")
	flag.StringVar(&dir, "dir", "./nostrdb-data", "data directory")
	flag.Parse()

	store, err := nostrdb.Open(nostrdb.Options{Dir: dir})
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	relay := &relayHost{
		store: store,
		conns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	http.HandleFunc("/", relay.handleConn)
	log.Printf("nostrdb-relay listening on %s (dir=%s)", addr, dir)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// relayHost owns the single in-process Store and dispatches every
// connected client's REQ/EVENT/CLOSE frames against it. It runs single
// threaded against the store (spec §5): all store calls happen on the
// handler goroutine serialized by connMu.
type relayHost struct {
	store    *nostrdb.Store
	upgrader websocket.Upgrader
	connMu   sync.Mutex
	conns    map[string]*websocket.Conn
}

func (h *relayHost) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	h.connMu.Lock()
	h.conns[clientID] = conn
	h.connMu.Unlock()
	defer func() {
		h.connMu.Lock()
		h.store.Subscriptions().RemoveAllFor(clientID)
		delete(h.conns, clientID)
		h.connMu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(raw, &frame); err != nil || len(frame) == 0 {
			h.notice(conn, "invalid frame")
			continue
		}

		var kind string
		if err := json.Unmarshal(frame[0], &kind); err != nil {
			h.notice(conn, "invalid frame type")
			continue
		}

		switch kind {
		case "EVENT":
			h.handleEvent(conn, frame)
		case "REQ":
			h.handleReq(conn, clientID, frame)
		case "CLOSE":
			h.handleClose(conn, clientID, frame)
		default:
			h.notice(conn, fmt.Sprintf("unknown frame type %q", kind))
		}
	}
}

func (h *relayHost) handleEvent(conn *websocket.Conn, frame wireFrame) {
	if len(frame) != 2 {
		h.notice(conn, "EVENT wants exactly one event payload")
		return
	}
	var e nostrdb.Event
	if err := json.Unmarshal(frame[1], &e); err != nil {
		h.notice(conn, "malformed event")
		return
	}

	h.connMu.Lock()
	offset, outcome, err := h.store.AppendEvent(e)
	h.connMu.Unlock()

	if err != nil {
		h.send(conn, []any{"OK", e.ID, false, err.Error()})
		return
	}

	switch outcome {
	case nostrdb.Duplicate:
		h.send(conn, []any{"OK", e.ID, true, "duplicate: already have this event"})
	default:
		h.send(conn, []any{"OK", e.ID, true, ""})
		h.broadcast(e, offset)
	}
}

func (h *relayHost) handleReq(conn *websocket.Conn, clientID string, frame wireFrame) {
	if len(frame) < 2 {
		h.notice(conn, "REQ wants a subscription id")
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		h.notice(conn, "malformed subscription id")
		return
	}

	filters := make([]nostrdb.Filter, 0, len(frame)-2)
	for _, raw := range frame[2:] {
		var f nostrdb.Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			h.notice(conn, "malformed filter")
			return
		}
		filters = append(filters, f)
	}

	h.connMu.Lock()
	_, err := h.store.Subscriptions().Add(clientID, nostrdb.Req{SubscriptionID: subID, Filters: filters})
	if err != nil {
		h.connMu.Unlock()
		h.send(conn, []any{"OK", subID, false, err.Error()})
		return
	}

	for _, f := range filters {
		_ = h.store.QueryInto(f, func(_ nostrdb.LogOffset, e nostrdb.Event) bool {
			h.send(conn, []any{"EVENT", subID, e})
			return true
		})
	}
	h.connMu.Unlock()

	h.send(conn, []any{"EOSE", subID})
}

func (h *relayHost) handleClose(conn *websocket.Conn, clientID string, frame wireFrame) {
	if len(frame) != 2 {
		h.notice(conn, "CLOSE wants a subscription id")
		return
	}
	var subID string
	if err := json.Unmarshal(frame[1], &subID); err != nil {
		h.notice(conn, "malformed subscription id")
		return
	}

	h.connMu.Lock()
	h.store.Subscriptions().Remove(clientID, subID)
	h.connMu.Unlock()
}

// broadcast pushes a freshly stored event to every subscription it
// matches. Subscriptions hold the opaque client uuid as their ClientID
// (spec §6 "Collaborator contracts consumed"); this host resolves that
// back to a live connection via conns to deliver the EVENT frame.
func (h *relayHost) broadcast(e nostrdb.Event, _ nostrdb.LogOffset) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.store.Subscriptions().ForEachMatch(e, func(sub *nostrdb.Subscription) {
		clientID, ok := sub.Client.(string)
		if !ok {
			return
		}
		if conn, ok := h.conns[clientID]; ok {
			h.send(conn, []any{"EVENT", sub.SubscriptionID, e})
		}
	})
}

func (h *relayHost) send(conn *websocket.Conn, frame []any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (h *relayHost) notice(conn *websocket.Conn, msg string) {
	h.send(conn, []any{"NOTICE", msg})
}
