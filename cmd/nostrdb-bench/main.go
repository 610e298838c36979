// nostrdb-bench measures append and query throughput against a scratch
// store, in the style of the teacher's sloty `bench` command but as its
// own standalone binary (no REPL, one-shot run suitable for scripting).
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nostrdb/relaystore/pkg/nostrdb"
)

// fixtureEvent is the YAML shape of one seed-corpus entry: a cut-down
// Event missing the fields this tool fills in itself (id/sig/created_at),
// in the style of the teacher's YAML-fixture test data.
type fixtureEvent struct {
	PubKey  string `yaml:"pubkey"`
	Kind    uint32 `yaml:"kind"`
	Content string `yaml:"content"`
}

// loadFixture reads a YAML seed corpus of events to replay instead of
// generating random ones, for reproducible benchmark runs.
func loadFixture(path string) ([]fixtureEvent, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	var fixtures []fixtureEvent
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	return fixtures, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var count int
	var dir string
	var fixturePath string
	flag.IntVar(&count, "count", 10_000, "number of events to append/query")
	flag.StringVar(&dir, "dir", "", "data directory; a temp directory is used if empty")
	flag.StringVar(&fixturePath, "fixture", "", "YAML seed-corpus file of events to replay instead of random ones")
	flag.Parse()

	if dir == "" {
		tmp, err := os.MkdirTemp("", "nostrdb-bench-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	store, err := nostrdb.Open(nostrdb.Options{Dir: dir})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	pubkeys := make([]string, 16)
	for i := range pubkeys {
		pubkeys[i] = randomHex(32)
	}

	var events []nostrdb.Event
	if fixturePath != "" {
		fixtures, err := loadFixture(fixturePath)
		if err != nil {
			return err
		}
		events = make([]nostrdb.Event, len(fixtures))
		for i, fx := range fixtures {
			pk := fx.PubKey
			if pk == "" {
				pk = pubkeys[i%len(pubkeys)]
			}
			events[i] = nostrdb.Event{
				ID:        fmt.Sprintf("%064x", i+1),
				PubKey:    pk,
				Sig:       randomHex(64),
				Kind:      fx.Kind,
				CreatedAt: time.Now().Unix() + int64(i),
				Content:   fx.Content,
			}
		}
		count = len(events)
	} else {
		events = make([]nostrdb.Event, count)
		for i := range events {
			events[i] = nostrdb.Event{
				ID:        fmt.Sprintf("%064x", i+1),
				PubKey:    pubkeys[i%len(pubkeys)],
				Sig:       randomHex(64),
				Kind:      uint32(1 + i%8),
				CreatedAt: time.Now().Unix() + int64(i),
				Content:   "benchmark payload",
			}
		}
	}

	appendStart := time.Now()
	offsets := make([]nostrdb.LogOffset, 0, count)
	for _, e := range events {
		offset, outcome, err := store.AppendEvent(e)
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
		if outcome == nostrdb.Stored {
			offsets = append(offsets, offset)
		}
	}
	appendElapsed := time.Since(appendStart)

	readStart := time.Now()
	for _, offset := range offsets {
		if _, err := store.ReadEvent(offset); err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
	readElapsed := time.Since(readStart)

	queryStart := time.Now()
	var matches int
	for _, pk := range pubkeys {
		results, err := store.Query([]nostrdb.Filter{{Authors: []string{pk}}})
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		matches += len(results)
	}
	queryElapsed := time.Since(queryStart)

	fmt.Printf("append: %d ops in %v (%.0f ops/sec)\n",
		count, appendElapsed.Round(time.Millisecond), float64(count)/appendElapsed.Seconds())
	fmt.Printf("read:   %d ops in %v (%.0f ops/sec)\n",
		len(offsets), readElapsed.Round(time.Millisecond), float64(len(offsets))/readElapsed.Seconds())
	fmt.Printf("query:  %d filters in %v, %d total matches\n",
		len(pubkeys), queryElapsed.Round(time.Millisecond), matches)
	fmt.Print(store.Stats().String())

	return nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
