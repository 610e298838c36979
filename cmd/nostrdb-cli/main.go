// nostrdb-cli is a REPL for poking at a nostrdb store directly, without a
// relay in front of it. Grounded on the teacher's sloty CLI: same liner
// based REPL loop, same bulk/seq commands, adapted to events and
// filters instead of cache keys.
//
// Usage:
//
//	nostrdb-cli [--dir <path>] [--config <path>]
//
// Commands (in REPL):
//
//	append <pubkey> <kind> <content> [tag:name:value ...]   Store an event
//	get <offset>                                            Read an event by log offset
//	del <id>                                                Tombstone an event by id
//	query <filter-json>                                     Run a filter, print matches
//	sub <id> <filter-json>                                  Register a subscription
//	unsub <id>                                               Remove a subscription
//	stats                                                    Show store statistics
//	bulk <count>                                             Append N random events
//	seq <count>                                               Append N sequential events
//	help                                                      Show this help
//	exit / quit / q                                           Exit
package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/nostrdb/relaystore/pkg/nostrdb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dir, configPath string
	flag.StringVar(&dir, "dir", "", "data directory (overrides config)")
	flag.StringVar(&configPath, "config", "", "path to a .nostrdb.json config file")
	flag.Parse()

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	flags := nostrdb.RelayConfig{DataDir: dir}
	cfg, err := nostrdb.LoadRelayConfig(workDir, configPath, flags, os.Environ())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := nostrdb.Open(cfg.ToOptions())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	repl := &REPL{store: store, dir: cfg.DataDir}
	return repl.Run()
}

// REPL is the interactive command loop over a single open Store.
type REPL struct {
	store *nostrdb.Store
	dir   string
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nostrdb_cli_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("nostrdb-cli (dir=%s)\n", r.dir)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("nostrdb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "append":
			r.cmdAppend(args)
		case "get":
			r.cmdGet(args)
		case "del", "delete":
			r.cmdDelete(args)
		case "query":
			r.cmdQuery(args)
		case "sub", "subscribe":
			r.cmdSub(args)
		case "unsub", "unsubscribe":
			r.cmdUnsub(args)
		case "stats":
			r.cmdStats(args)
		case "info":
			r.cmdInfo()
		case "bulk":
			r.cmdBulk(args)
		case "seq":
			r.cmdSeq(args)
		case "clear", "cls":
			fmt.Print("\033[H\033[2J")
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"append", "get", "del", "delete", "query",
		"sub", "subscribe", "unsub", "unsubscribe",
		"stats", "info", "bulk", "seq", "clear", "cls",
		"help", "exit", "quit", "q",
	}
	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  append <pubkey> <kind> <content> [tag:name:value ...]   Store an event")
	fmt.Println("  get <offset>                                           Read an event by log offset")
	fmt.Println("  del <id>                                               Tombstone an event by id")
	fmt.Println("  query <filter-json>                                    Run a filter, print matches")
	fmt.Println("  sub <id> <filter-json>                                 Register a subscription")
	fmt.Println("  unsub <id>                                             Remove a subscription")
	fmt.Println("  stats [dump-path]                                      Show store statistics, optionally dumping subscriptions to dump-path")
	fmt.Println("  info                                                   Show indexed tag names and per-file integrity checksums")
	fmt.Println("  bulk <count>                                           Append N random events")
	fmt.Println("  seq <count>                                            Append N sequential events")
	fmt.Println("  help                                                   Show this help")
	fmt.Println("  exit / quit / q                                        Exit")
	fmt.Println()
	fmt.Println("Filter JSON example: {\"kinds\":[1],\"authors\":[\"<hex pubkey>\"]}")
}

func (r *REPL) cmdAppend(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: append <pubkey> <kind> <content> [tag:name:value ...]")
		return
	}
	kind, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Printf("invalid kind: %v\n", err)
		return
	}

	var tags []nostrdb.Tag
	for _, raw := range args[3:] {
		fields := strings.SplitN(raw, ":", 3)
		if len(fields) != 3 || fields[0] != "tag" {
			fmt.Printf("ignoring malformed tag %q (want tag:name:value)\n", raw)
			continue
		}
		tags = append(tags, nostrdb.Tag{Name: fields[1], Values: []string{fields[2]}})
	}

	e := nostrdb.Event{
		ID:        randomHexID(),
		PubKey:    args[0],
		Sig:       randomHexSig(),
		Kind:      uint32(kind),
		CreatedAt: time.Now().Unix(),
		Content:   args[2],
		Tags:      tags,
	}

	offset, outcome, err := r.store.AppendEvent(e)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("%s id=%s offset=%d\n", outcome, e.ID, offset)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: get <offset>")
		return
	}
	offset, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid offset: %v\n", err)
		return
	}
	e, err := r.store.ReadEvent(nostrdb.LogOffset(offset))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printEvent(e)
}

// cmdStats prints the store's stats table and, if a dump path is given,
// also snapshots the active subscriptions to that path via
// SubscriptionRegistry.DumpDebug.
func (r *REPL) cmdStats(args []string) {
	fmt.Print(r.store.Stats().String())
	if len(args) < 1 {
		return
	}
	if err := r.store.Subscriptions().DumpDebug(args[0]); err != nil {
		fmt.Printf("error dumping subscriptions: %v\n", err)
		return
	}
	fmt.Printf("subscriptions dumped to %s\n", args[0])
}

// cmdInfo reports the indexed tag names and a per-file murmur3 integrity
// checksum of the whole mapped region, for offline sanity checking.
func (r *REPL) cmdInfo() {
	fmt.Printf("indexed tag names: %s\n", strings.Join(r.store.IndexedTagNames(), ", "))
	fmt.Println("file checksums:")
	for name, sum := range r.store.VerifyIntegrity() {
		fmt.Printf("  %-24s %08x\n", name, sum)
	}
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: del <id>")
		return
	}
	if err := r.store.DeleteEvent(args[0]); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("deleted")
}

func (r *REPL) cmdQuery(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: query <filter-json>")
		return
	}
	var f nostrdb.Filter
	if err := json.Unmarshal([]byte(strings.Join(args, " ")), &f); err != nil {
		fmt.Printf("invalid filter json: %v\n", err)
		return
	}
	results, err := r.store.Query([]nostrdb.Filter{f})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, res := range results {
		fmt.Printf("offset=%d ", res.Offset)
		printEvent(res.Event)
	}
	fmt.Printf("%d match(es)\n", len(results))
}

func (r *REPL) cmdSub(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: sub <id> <filter-json>")
		return
	}
	var f nostrdb.Filter
	if err := json.Unmarshal([]byte(strings.Join(args[1:], " ")), &f); err != nil {
		fmt.Printf("invalid filter json: %v\n", err)
		return
	}
	_, err := r.store.Subscriptions().Add("repl", nostrdb.Req{
		SubscriptionID: args[0],
		Filters:        []nostrdb.Filter{f},
	})
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println("subscribed")
}

func (r *REPL) cmdUnsub(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unsub <id>")
		return
	}
	if r.store.Subscriptions().Remove("repl", args[0]) {
		fmt.Println("unsubscribed")
		return
	}
	fmt.Println("no such subscription")
}

func (r *REPL) cmdBulk(args []string) {
	count := 100
	if len(args) >= 1 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			count = n
		}
	}
	pubkey := randomHexID()
	stored, dup := 0, 0
	for i := 0; i < count; i++ {
		e := nostrdb.Event{
			ID:        randomHexID(),
			PubKey:    pubkey,
			Sig:       randomHexSig(),
			Kind:      1,
			CreatedAt: time.Now().Unix(),
			Content:   fmt.Sprintf("bulk event %d", i),
		}
		_, outcome, err := r.store.AppendEvent(e)
		if err != nil {
			fmt.Printf("error at %d: %v\n", i, err)
			return
		}
		if outcome == nostrdb.Stored {
			stored++
		} else {
			dup++
		}
	}
	fmt.Printf("appended %d events (%d stored, %d duplicate)\n", count, stored, dup)
}

func (r *REPL) cmdSeq(args []string) {
	count := 100
	if len(args) >= 1 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			count = n
		}
	}
	start := time.Now().Unix()
	pubkey := randomHexID()
	for i := 0; i < count; i++ {
		e := nostrdb.Event{
			ID:        fmt.Sprintf("%064x", i),
			PubKey:    pubkey,
			Sig:       randomHexSig(),
			Kind:      1,
			CreatedAt: start + int64(i),
			Content:   fmt.Sprintf("seq event %d", i),
		}
		if _, _, err := r.store.AppendEvent(e); err != nil {
			fmt.Printf("error at %d: %v\n", i, err)
			return
		}
	}
	fmt.Printf("appended %d sequential events starting at created_at=%d\n", count, start)
}

func printEvent(e nostrdb.Event) {
	fmt.Printf("id=%s pubkey=%s kind=%d created_at=%d content=%q tags=%d\n",
		e.ID, e.PubKey, e.Kind, e.CreatedAt, e.Content, len(e.Tags))
}

func randomHexID() string {
	return randomHex(32)
}

func randomHexSig() string {
	return randomHex(64)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
