package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/cid"
	"github.com/ProllyDB/prolly/pkg/diff"
	"github.com/ProllyDB/prolly/pkg/hash"
	"github.com/ProllyDB/prolly/pkg/node"
	"github.com/ProllyDB/prolly/pkg/stats"
	"github.com/ProllyDB/prolly/pkg/telemetry"
	"github.com/ProllyDB/prolly/pkg/tree"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".root"),
	readline.PcItem(".stats"),
	readline.PcItem(".snap"),
	readline.PcItem(".exit"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("SCAN"),
	readline.PcItem("DIFF"),
)

const helpText = `
Prolly - a probabilistic content-addressed search tree.

Usage:
  prolly [options]

Options:
  -store URL              - Block store URL (default: in-memory; e.g. file:///var/lib/prolly)
  -compress               - Compress blocks at rest with zstd
  -codec NAME             - Bucket codec: native or cbor (default "native")
  -hasher NAME            - Digest function: xxh64, sha256 or highway (default "xxh64")
  -average N              - Average bucket size (default 30)
  -root CID               - Open an existing tree at this root
  -metrics ADDR           - Serve Prometheus metrics on ADDR (e.g. ":9464")

Commands (interactive mode):
  .help                   - Show this help message
  .open CID               - Open the tree stored under CID
  .root                   - Print the current root CID
  .stats                  - Show operation statistics
  .snap                   - Remember the current root for DIFF
  .exit                   - Exit the program

  PUT ts hash value       - Insert or replace the entry (ts, hash)
  GET ts hash             - Look up the entry (ts, hash)
  DELETE ts hash          - Remove the entry (ts, hash)
  SCAN [start [end]]      - List entries between two timestamps
  DIFF                    - Diff the snapshot taken with .snap against the current tree

Timestamps are decimal integers, hashes are hex (at least 4 bytes).
`

type replState struct {
	store     blockstore.Store
	tree      *tree.Tree
	snapshot  *tree.Tree
	collector *stats.Collector
}

func main() {
	storeURL := flag.String("store", "", "block store URL (empty for in-memory)")
	compress := flag.Bool("compress", false, "compress blocks at rest with zstd")
	codecName := flag.String("codec", "native", "bucket codec: native or cbor")
	hasherName := flag.String("hasher", "xxh64", "digest function: xxh64, sha256 or highway")
	average := flag.Uint("average", tree.DefaultAverageBucketSize, "average bucket size")
	rootCID := flag.String("root", "", "open an existing tree at this root CID")
	metricsAddr := flag.String("metrics", "", "serve Prometheus metrics on this address")
	flag.Parse()

	ctx := context.Background()
	collector := stats.NewCollector()

	tel := telemetry.Telemetry(telemetry.NewNoop())
	if *metricsAddr != "" {
		cfg := telemetry.DefaultConfig()
		cfg.Enabled = true
		cfg.Exporters = []string{"prometheus"}
		cfg.LoadFromEnv()
		var err error
		tel, err = telemetry.New(cfg)
		if err != nil {
			log.Fatalf("failed to initialize telemetry: %v", err)
		}
		defer tel.Shutdown(ctx)

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
		fmt.Printf("Serving metrics on %s/metrics\n", *metricsAddr)
	}

	store, err := openStore(*storeURL, *compress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	store = blockstore.NewInstrumentedStore(store, tel, collector)

	cfg, err := buildConfig(*codecName, *hasherName, uint32(*average))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var t *tree.Tree
	if *rootCID != "" {
		c, err := cid.Parse(*rootCID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing root CID: %v\n", err)
			os.Exit(1)
		}
		t, err = tree.Load(ctx, store, c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading tree: %v\n", err)
			os.Exit(1)
		}
	} else {
		t, err = tree.Init(ctx, store, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating tree: %v\n", err)
			os.Exit(1)
		}
	}

	runInteractive(ctx, &replState{store: store, tree: t, collector: collector})
}

func openStore(url string, compress bool) (blockstore.Store, error) {
	var store blockstore.Store
	if url == "" {
		store = blockstore.NewMemStore()
	} else {
		store = blockstore.NewAFSStore(url)
	}
	if compress {
		return blockstore.NewCompressedStore(store)
	}
	return store, nil
}

func buildConfig(codecName, hasherName string, average uint32) (*tree.Config, error) {
	cfg := tree.NewDefaultConfig()
	cfg.AverageBucketSize = average

	switch codecName {
	case "native":
		cfg.Codec = bucket.CodecNative
	case "cbor":
		cfg.Codec = bucket.CodecCBOR
	default:
		return nil, fmt.Errorf("unknown codec %q", codecName)
	}

	switch hasherName {
	case "xxh64":
		cfg.Hasher = hash.XXH64
	case "sha256":
		cfg.Hasher = hash.SHA256
	case "highway":
		cfg.Hasher = hash.Highway64
	default:
		return nil, fmt.Errorf("unknown hasher %q", hasherName)
	}

	return cfg, cfg.Validate()
}

func runInteractive(ctx context.Context, s *replState) {
	fmt.Println("Prolly interactive mode. Type .help for help.")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "prolly> ",
		HistoryFile:     os.TempDir() + "/prolly_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ".exit" {
			break
		}
		if err := dispatch(ctx, s, line); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, s *replState, line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])

	switch cmd {
	case ".HELP":
		fmt.Print(helpText)
		return nil

	case ".ROOT":
		fmt.Println(s.tree.RootCID())
		return nil

	case ".STATS":
		for key, value := range s.collector.GetStats() {
			fmt.Printf("%s: %v\n", key, value)
		}
		return nil

	case ".SNAP":
		s.snapshot = s.tree.Clone()
		fmt.Printf("snapshot at %s\n", s.snapshot.RootCID())
		return nil

	case ".OPEN":
		if len(fields) != 2 {
			return fmt.Errorf("usage: .open CID")
		}
		c, err := cid.Parse(fields[1])
		if err != nil {
			return err
		}
		t, err := tree.Load(ctx, s.store, c)
		if err != nil {
			return err
		}
		s.tree = t
		fmt.Printf("opened %s\n", c)
		return nil

	case "PUT":
		if len(fields) < 4 {
			return fmt.Errorf("usage: PUT ts hash value")
		}
		tup, err := parseTuple(fields[1], fields[2])
		if err != nil {
			return err
		}
		value := strings.Join(fields[3:], " ")
		err = s.tree.Put(ctx, s.store, node.NewNode(tup.Timestamp, tup.Hash, []byte(value)))
		if err != nil {
			s.collector.TrackError(string(stats.OpPut))
			return err
		}
		s.collector.TrackOperation(stats.OpPut)
		fmt.Printf("root %s\n", s.tree.RootCID())
		return nil

	case "GET":
		if len(fields) != 3 {
			return fmt.Errorf("usage: GET ts hash")
		}
		tup, err := parseTuple(fields[1], fields[2])
		if err != nil {
			return err
		}
		results, err := s.tree.Search(ctx, s.store, []node.Tuple{tup})
		if err != nil {
			return err
		}
		s.collector.TrackOperation(stats.OpSearch)
		if results[0].Node == nil {
			fmt.Println("(not found)")
			return nil
		}
		fmt.Printf("%s\n", results[0].Node.Message)
		return nil

	case "DELETE":
		if len(fields) != 3 {
			return fmt.Errorf("usage: DELETE ts hash")
		}
		tup, err := parseTuple(fields[1], fields[2])
		if err != nil {
			return err
		}
		if err := s.tree.Delete(ctx, s.store, tup); err != nil {
			s.collector.TrackError(string(stats.OpDelete))
			return err
		}
		s.collector.TrackOperation(stats.OpDelete)
		fmt.Printf("root %s\n", s.tree.RootCID())
		return nil

	case "SCAN":
		start := node.Tuple{Timestamp: math.MinInt64}
		end := node.Tuple{Timestamp: math.MaxInt64, Hash: maxHash()}
		var err error
		if len(fields) > 1 {
			if start.Timestamp, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
				return fmt.Errorf("bad start timestamp: %w", err)
			}
		}
		if len(fields) > 2 {
			if end.Timestamp, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
				return fmt.Errorf("bad end timestamp: %w", err)
			}
		}
		count := 0
		err = s.tree.Range(ctx, s.store, start, end, func(n node.Node) error {
			fmt.Printf("%d %x => %s\n", n.Timestamp, n.Hash, n.Message)
			count++
			return nil
		})
		if err != nil {
			return err
		}
		s.collector.TrackOperation(stats.OpScan)
		fmt.Printf("%d entries\n", count)
		return nil

	case "DIFF":
		if s.snapshot == nil {
			return fmt.Errorf("no snapshot; use .snap first")
		}
		err := diff.Roots(ctx, s.store, s.store, s.snapshot.Root(), s.tree.Root(), func(d diff.Diff) error {
			for _, nd := range d.Nodes {
				switch {
				case nd.Before != nil && nd.After != nil:
					fmt.Printf("~ %d %x: %s => %s\n", nd.Before.Timestamp, nd.Before.Hash, nd.Before.Message, nd.After.Message)
				case nd.Before != nil:
					fmt.Printf("- %d %x: %s\n", nd.Before.Timestamp, nd.Before.Hash, nd.Before.Message)
				default:
					fmt.Printf("+ %d %x: %s\n", nd.After.Timestamp, nd.After.Hash, nd.After.Message)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.collector.TrackOperation(stats.OpDiff)
		return nil

	default:
		return fmt.Errorf("unknown command %q; type .help for help", fields[0])
	}
}

func parseTuple(tsField, hashField string) (node.Tuple, error) {
	ts, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return node.Tuple{}, fmt.Errorf("bad timestamp: %w", err)
	}
	h, err := hex.DecodeString(hashField)
	if err != nil {
		return node.Tuple{}, fmt.Errorf("bad hash: %w", err)
	}
	if len(h) < node.MinHashLen {
		return node.Tuple{}, fmt.Errorf("hash must be at least %d bytes", node.MinHashLen)
	}
	return node.Tuple{Timestamp: ts, Hash: h}, nil
}

func maxHash() []byte {
	h := make([]byte, 64)
	for i := range h {
		h[i] = 0xff
	}
	return h
}
