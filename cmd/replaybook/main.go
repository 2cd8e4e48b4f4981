// cmd/replaybook reconstructs historical order books from the stored
// tick log and prints them, either at one instant or as a stepped series.
//
// Usage:
//
//	go run ./cmd/replaybook --area=SE3 --contract=NX_12345 --at=2025-03-01T10:00:00Z
//	go run ./cmd/replaybook --area=SE3 --contract=NX_12345 \
//	    --from=2025-03-01T09:00:00Z --to=2025-03-01T10:00:00Z --step=5m
//	go run ./cmd/replaybook --area=SE3 --availability
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"nordpool-dataplane/internal/model"
	"nordpool-dataplane/internal/readapi"
	"nordpool-dataplane/internal/replay"
	"nordpool-dataplane/internal/store/pg"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	area := flag.String("area", "SE3", "Delivery area")
	contract := flag.String("contract", "", "Contract id to replay")
	atStr := flag.String("at", "", "Instant to reconstruct (RFC3339)")
	fromStr := flag.String("from", "", "Series start (RFC3339)")
	toStr := flag.String("to", "", "Series end (RFC3339)")
	step := flag.Duration("step", 5*time.Minute, "Series step")
	depth := flag.Int("depth", 5, "Levels per side to print")
	asJSON := flag.Bool("json", false, "Print snapshots as JSON")
	availability := flag.Bool("availability", false, "Print the area's data availability and exit")
	dsn := flag.String("db", os.Getenv("DATABASE_URL"), "Postgres DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("[replaybook] no DSN: set --db or DATABASE_URL")
	}

	ctx := context.Background()
	store, err := pg.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("[replaybook] postgres open failed: %v", err)
	}
	defer store.Close()

	if *availability {
		printAvailability(ctx, store, *area)
		return
	}

	if *contract == "" {
		log.Fatal("[replaybook] --contract is required")
	}
	svc := replay.NewService(store)

	if *fromStr != "" || *toStr != "" {
		from := parseTS(*fromStr, "--from")
		to := parseTS(*toStr, "--to")
		series, err := svc.Series(ctx, *contract, *area, from, to, *step)
		if err != nil {
			log.Fatalf("[replaybook] series failed: %v", err)
		}
		for i := range series {
			printTopOfBook(&series[i])
		}
		fmt.Printf("\n%d snapshots, %s to %s, step %v\n", len(series), from.Format(time.RFC3339), to.Format(time.RFC3339), *step)
		return
	}

	at := time.Now().UTC()
	if *atStr != "" {
		at = parseTS(*atStr, "--at")
	}
	book, err := svc.SnapshotAt(ctx, *contract, *area, at)
	if err != nil {
		log.Fatalf("[replaybook] snapshot failed: %v", err)
	}
	if *asJSON {
		out, err := json.MarshalIndent(book, "", "  ")
		if err != nil {
			log.Fatalf("[replaybook] encode failed: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	printBook(&book, *depth)
}

func parseTS(s, name string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Fatalf("[replaybook] invalid %s %q: %v", name, s, err)
	}
	return t.UTC()
}

func printBook(b *model.BookSnapshot, depth int) {
	fmt.Printf("book %s (%s) @ %s: %d bids / %d asks\n",
		b.ContractID, b.DeliveryArea, b.Timestamp.Format(time.RFC3339), len(b.Bids), len(b.Asks))
	fmt.Printf("%-12s %10s | %-10s %12s\n", "BID vol", "price", "price", "ASK vol")

	n := len(b.Bids)
	if len(b.Asks) > n {
		n = len(b.Asks)
	}
	if n > depth {
		n = depth
	}
	for i := 0; i < n; i++ {
		bid, ask := "", ""
		bidPx, askPx := "", ""
		if i < len(b.Bids) {
			bid = b.Bids[i].Volume.String()
			bidPx = b.Bids[i].Price.String()
		}
		if i < len(b.Asks) {
			ask = b.Asks[i].Volume.String()
			askPx = b.Asks[i].Price.String()
		}
		fmt.Printf("%-12s %10s | %-10s %12s\n", bid, bidPx, askPx, ask)
	}
}

func printTopOfBook(b *model.BookSnapshot) {
	bid, ask := "-", "-"
	if len(b.Bids) > 0 {
		bid = b.Bids[0].Price.String()
	}
	if len(b.Asks) > 0 {
		ask = b.Asks[0].Price.String()
	}
	fmt.Printf("[%s] best bid %8s | best ask %8s (%d/%d levels)\n",
		b.Timestamp.Format("15:04:05"), bid, ask, len(b.Bids), len(b.Asks))
}

func printAvailability(ctx context.Context, store *pg.Store, area string) {
	svc := readapi.New(store, nil)
	av, err := svc.DataAvailability(ctx, area)
	if err != nil {
		log.Fatalf("[replaybook] availability failed: %v", err)
	}
	fmt.Printf("area %s\n", av.Area)
	fmt.Printf("  trades:    %d rows, %s .. %s (status %s)\n",
		av.TradeCount, fmtTS(av.FirstTradeTime), fmtTS(av.LastTradeTime), av.TradeStatus)
	fmt.Printf("  trade checkpoint:    %s\n", fmtTS(av.TradeCheckpoint))
	fmt.Printf("  candle checkpoint:   %s\n", fmtTS(av.CandleCheckpoint))
	fmt.Printf("  archive checkpoint:  %s\n", fmtTS(av.ArchiveCheckpoint))
	fmt.Printf("  realtime checkpoint: %s (status %s)\n", fmtTS(av.RealtimeCheckpoint), av.OrderFlowStatus)
}

func fmtTS(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
